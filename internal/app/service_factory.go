package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/lojalivre/orders/internal/metrics"
	"github.com/lojalivre/orders/internal/service/directory"
	"github.com/lojalivre/orders/internal/service/notification"
	order "github.com/lojalivre/orders/internal/service/order"
)

// buildOrderService assembles the order service on top of the selected
// storage.
// NOTE: the directory and notification collaborators are in-process mocks for
// development; in production they are replaced with clients of the account,
// store and notification services.
func buildOrderService(rd *runtimeDependencies, logger *log.Entry) order.Service {
	buyers := directory.NewMockUserDirectory()
	stores := directory.NewMockStoreDirectory()
	notifier := notification.NewMockDispatcher()

	return order.NewService(
		rd.repo,
		buyers,
		stores,
		order.WithLogger(logger.WithField("layer", "service")),
		order.WithTimeline(rd.timelineRepo),
		order.WithIdempotency(rd.idempotencyRepo),
		order.WithNotifier(notifier),
		order.WithMetrics(metrics.NewOrderMetrics()),
	)
}
