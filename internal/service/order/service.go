package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/lojalivre/orders/internal/domain"
	"github.com/lojalivre/orders/internal/metrics"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	notifyTimeout         = 5 * time.Second
)

// CreateItemInput is one requested line of a new order.
type CreateItemInput struct {
	ProductID string
	VariantID string
	Qty       int32
}

// CreateInput carries everything a buyer submits to place an order. Shipping
// and Discount default to zero. IdempotencyKey is optional: when set, a retried
// submission replays the already committed order instead of reserving stock
// twice.
type CreateInput struct {
	BuyerID        string
	StoreID        string
	Items          []CreateItemInput
	Shipping       decimal.Decimal
	Discount       decimal.Decimal
	PaymentMethod  string
	Address        domain.Address
	IdempotencyKey string
}

// Service is the order application service: it validates input, resolves
// directory references, drives the creation transaction and the lifecycle
// transitions, and fires the post-commit side effects.
type Service interface {
	Create(ctx context.Context, in CreateInput) (domain.Order, error)
	UpdateStatus(ctx context.Context, id string, tr domain.Transition) (domain.Order, error)
	MarkAsPaid(ctx context.Context, id, reference string) (domain.Order, error)
	MarkAsShipped(ctx context.Context, id, trackingCode, carrier string) (domain.Order, error)
	MarkAsDelivered(ctx context.Context, id string) (domain.Order, error)
	Cancel(ctx context.Context, id, reason, actorID string) (domain.Order, error)
	Delete(ctx context.Context, id, actorID string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error)
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, page domain.Page) ([]domain.Order, int, error)
}

// Options holds the optional collaborators of the service.
type Options struct {
	Logger      *log.Entry
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Notifier    domain.NotificationDispatcher
	Metrics     *metrics.OrderMetrics
}

// Option configures the service.
type Option func(*Options)

// WithLogger sets the service logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithTimeline enables the per-order audit trail.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(opts *Options) {
		opts.Timeline = timeline
	}
}

// WithIdempotency enables idempotency-key handling on Create.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(opts *Options) {
		opts.Idempotency = repo
	}
}

// WithNotifier enables buyer/seller notifications.
func WithNotifier(notifier domain.NotificationDispatcher) Option {
	return func(opts *Options) {
		opts.Notifier = notifier
	}
}

// WithMetrics sets the metrics collector. Nil disables metrics, for tests.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

type service struct {
	repo        domain.OrderRepository
	buyers      domain.UserDirectory
	stores      domain.StoreDirectory
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository
	notifier    domain.NotificationDispatcher
	logger      *log.Entry
	metrics     *metrics.OrderMetrics
}

// NewService creates the order service. repo, buyers and stores are required;
// timeline, idempotency, notifications and metrics are wired through options.
func NewService(
	repo domain.OrderRepository,
	buyers domain.UserDirectory,
	stores domain.StoreDirectory,
	options ...Option,
) Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}

	return &service{
		repo:        repo,
		buyers:      buyers,
		stores:      stores,
		timeline:    opts.Timeline,
		idempotency: opts.Idempotency,
		notifier:    opts.Notifier,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Create places a new order. The whole reservation runs inside the
// repository's creation transaction; only validation, directory resolution and
// the idempotency check happen before it, and only detached side effects after.
func (s *service) Create(ctx context.Context, in CreateInput) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCreateDuration(time.Since(start))
		}
	}()

	if err := validateCreateInput(in); err != nil {
		return domain.Order{}, err
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if replay, done, err := s.claimIdempotencyKey(in); done {
			return replay, err
		}
	}

	buyer, err := s.buyers.FindByID(ctx, in.BuyerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Order{}, domain.ErrBuyerNotFound
		}
		return domain.Order{}, fmt.Errorf("resolve buyer %s: %w", in.BuyerID, err)
	}

	store, err := s.stores.FindByID(ctx, in.StoreID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Order{}, domain.ErrStoreNotFound
		}
		return domain.Order{}, fmt.Errorf("resolve store %s: %w", in.StoreID, err)
	}

	requests := lo.Map(in.Items, func(item CreateItemInput, _ int) domain.StockRequest {
		return domain.StockRequest{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
		}
	})

	order := domain.Order{
		ID:            uuid.NewString(),
		BuyerID:       in.BuyerID,
		StoreID:       in.StoreID,
		Shipping:      in.Shipping,
		Discount:      in.Discount,
		PaymentMethod: in.PaymentMethod,
		Address:       in.Address,
	}

	created, err := s.repo.Create(order, store.Name, requests)
	if err != nil {
		s.recordCreateFailure(err)
		s.failIdempotencyKey(in.IdempotencyKey, err)
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.completeIdempotencyKey(in.IdempotencyKey, created.ID)

	s.appendTimeline(created.ID, domain.TimelineOrderCreated, "", in.BuyerID)
	s.notifyAsync(created, buyer, store, domain.EventOrderCreated)

	s.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"number":   created.Number,
		"buyer_id": created.BuyerID,
		"store_id": created.StoreID,
	}).Info("order created")

	return created, nil
}

// UpdateStatus applies one lifecycle transition to the order.
func (s *service) UpdateStatus(ctx context.Context, id string, tr domain.Transition) (domain.Order, error) {
	return s.transition(ctx, id, tr, "")
}

// MarkAsPaid records a payment confirmation with its provider reference.
func (s *service) MarkAsPaid(ctx context.Context, id, reference string) (domain.Order, error) {
	return s.transition(ctx, id, domain.MarkPaid{Reference: reference}, "")
}

// MarkAsShipped moves the order to ENVIADO with tracking details.
func (s *service) MarkAsShipped(ctx context.Context, id, trackingCode, carrier string) (domain.Order, error) {
	return s.transition(ctx, id, domain.Ship{TrackingCode: trackingCode, Carrier: carrier}, "")
}

// MarkAsDelivered moves the order to the terminal ENTREGUE state.
func (s *service) MarkAsDelivered(ctx context.Context, id string) (domain.Order, error) {
	return s.transition(ctx, id, domain.Deliver{}, "")
}

// Cancel cancels the order with a mandatory reason. actorID identifies who
// requested the cancellation and is recorded on the audit trail.
func (s *service) Cancel(ctx context.Context, id, reason, actorID string) (domain.Order, error) {
	return s.transition(ctx, id, domain.Cancel{Reason: reason}, actorID)
}

// Delete is the administrative removal: orders are never physically deleted,
// they are cancelled with a fixed reason and disappear from listings. actorID
// identifies the administrator performing the removal.
func (s *service) Delete(ctx context.Context, id, actorID string) error {
	_, err := s.transition(ctx, id, domain.Cancel{Reason: "removed by administrator"}, actorID)
	return err
}

// Get returns the order with its items. Unlike the listings it also returns
// cancelled orders: a direct lookup serves audit and support flows, which need
// the final state and cancellation reason of a removed order.
func (s *service) Get(_ context.Context, id string) (domain.Order, error) {
	return s.repo.Get(id)
}

// Timeline returns the order's audit trail, oldest first.
func (s *service) Timeline(_ context.Context, id string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	if _, err := s.repo.Get(id); err != nil {
		return nil, err
	}
	return s.timeline.List(id)
}

// ListByBuyer returns the buyer's non-cancelled orders, newest first.
func (s *service) ListByBuyer(_ context.Context, buyerID string, limit int) ([]domain.Order, error) {
	return s.repo.ListByBuyer(buyerID, limit)
}

// ListByStore returns the store's non-cancelled orders, newest first.
func (s *service) ListByStore(_ context.Context, storeID string, limit int) ([]domain.Order, error) {
	return s.repo.ListByStore(storeID, limit)
}

// List returns one page of non-cancelled orders plus the total count.
func (s *service) List(_ context.Context, page domain.Page) ([]domain.Order, int, error) {
	return s.repo.List(page)
}

func (s *service) transition(_ context.Context, id string, tr domain.Transition, actorID string) (domain.Order, error) {
	start := time.Now()
	kind := string(tr.Kind())

	order, err := s.repo.ApplyTransition(id, tr)
	if err != nil {
		if s.metrics != nil && (domain.IsConflict(err) || domain.IsValidation(err)) {
			s.metrics.RecordTransitionDenied()
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   id,
			"transition": kind,
		}).Warn("transition rejected")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(kind)
		s.metrics.RecordTransitionDuration(kind, time.Since(start))
	}

	eventType := domain.TimelineStatusChanged
	reason := ""
	if cancel, ok := tr.(domain.Cancel); ok {
		eventType = domain.TimelineOrderCanceled
		reason = cancel.Reason
	}
	s.appendTimeline(order.ID, eventType, reason, actorID)
	s.notifyTransitionAsync(order, tr.Kind())

	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"transition": kind,
		"status":     string(order.Status),
	}).Info("order transition applied")

	return order, nil
}

// claimIdempotencyKey registers the key for this request or resolves the fate
// of an earlier request with the same key. done reports that Create must stop
// here and return replay/err as its result.
func (s *service) claimIdempotencyKey(in CreateInput) (replay domain.Order, done bool, err error) {
	hash := requestHash(in)
	ttlAt := time.Now().UTC().Add(defaultIdempotencyTTL)

	record, err := s.idempotency.CreateProcessing(in.IdempotencyKey, hash, ttlAt)
	if err == nil {
		return domain.Order{}, false, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		return domain.Order{}, true, fmt.Errorf("claim idempotency key: %w", err)
	}

	if record.RequestHash != hash {
		return domain.Order{}, true, domain.ErrIdempotencyMismatch
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return domain.Order{}, true, domain.ErrIdempotencyInProgress
	case domain.IdempotencyStatusDone:
		order, getErr := s.repo.Get(record.OrderID)
		if getErr != nil {
			return domain.Order{}, true, fmt.Errorf("replay order %s: %w", record.OrderID, getErr)
		}
		if s.metrics != nil {
			s.metrics.RecordIdempotentReplay()
		}
		s.logger.WithFields(log.Fields{
			"order_id":        order.ID,
			"idempotency_key": in.IdempotencyKey,
		}).Info("replayed committed order for idempotency key")
		return order, true, nil
	default:
		// Earlier attempt failed; this retry runs the create again.
		return domain.Order{}, false, nil
	}
}

func (s *service) completeIdempotencyKey(key, orderID string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.MarkDone(key, orderID); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to mark idempotency key done")
	}
}

func (s *service) failIdempotencyKey(key string, cause error) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.MarkFailed(key, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to mark idempotency key failed")
	}
}

func (s *service) recordCreateFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCreateFailed()
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		s.metrics.RecordStockConflict()
	}
}

func (s *service) appendTimeline(orderID, eventType, reason, actorID string) {
	if s.timeline == nil {
		return
	}
	err := s.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		ActorID:  actorID,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

// notifyAsync informs buyer and seller about a fresh order. Fire-and-forget:
// the order is already committed, a delivery failure is only logged.
func (s *service) notifyAsync(order domain.Order, buyer domain.User, store domain.Store, eventType string) {
	if s.notifier == nil {
		return
	}

	notifications := []domain.Notification{
		{
			UserID:    buyer.ID,
			Title:     "Pedido recebido",
			Message:   fmt.Sprintf("Seu pedido %s foi registrado e aguarda confirmação de pagamento.", order.Number),
			Kind:      eventType,
			Priority:  "normal",
			Link:      "/pedidos/" + order.ID,
			SendEmail: true,
		},
		{
			UserID:   store.OwnerID,
			Title:    "Novo pedido na sua loja",
			Message:  fmt.Sprintf("Pedido %s aguardando processamento.", order.Number),
			Kind:     eventType,
			Priority: "high",
			Link:     "/loja/pedidos/" + order.ID,
		},
	}

	go s.dispatch(order.ID, notifications)
}

func (s *service) notifyTransitionAsync(order domain.Order, kind domain.TransitionKind) {
	if s.notifier == nil {
		return
	}

	title, message := transitionNotification(order, kind)
	if title == "" {
		return
	}

	notifications := []domain.Notification{{
		UserID:   order.BuyerID,
		Title:    title,
		Message:  message,
		Kind:     domain.OutboxEventForTransition(kind),
		Priority: "normal",
		Link:     "/pedidos/" + order.ID,
	}}

	if kind != domain.TransitionCancel {
		go s.dispatch(order.ID, notifications)
		return
	}

	// A cancellation also concerns the seller. The store lookup may fail
	// after the cancel is committed; the buyer notice still goes out.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		store, err := s.stores.FindByID(ctx, order.StoreID)
		cancel()
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"store_id": order.StoreID,
			}).Warn("could not resolve store owner for cancellation notice")
		} else {
			notifications = append(notifications, domain.Notification{
				UserID:   store.OwnerID,
				Title:    "Pedido cancelado",
				Message:  fmt.Sprintf("O pedido %s da sua loja foi cancelado: %s", order.Number, order.CancelReason),
				Kind:     domain.OutboxEventForTransition(kind),
				Priority: "high",
				Link:     "/loja/pedidos/" + order.ID,
			})
		}
		s.dispatch(order.ID, notifications)
	}()
}

func (s *service) dispatch(orderID string, notifications []domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	for _, n := range notifications {
		if err := s.notifier.Create(ctx, n); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"user_id":  n.UserID,
			}).Warn("failed to dispatch notification")
		}
	}
}

func transitionNotification(order domain.Order, kind domain.TransitionKind) (title, message string) {
	switch kind {
	case domain.TransitionConfirm:
		return "Pedido confirmado", fmt.Sprintf("Seu pedido %s foi confirmado pela loja.", order.Number)
	case domain.TransitionMarkPaid:
		return "Pagamento aprovado", fmt.Sprintf("O pagamento do pedido %s foi aprovado.", order.Number)
	case domain.TransitionShip:
		return "Pedido enviado", fmt.Sprintf("Seu pedido %s foi enviado. Código de rastreio: %s (%s).",
			order.Number, order.TrackingCode, order.Carrier)
	case domain.TransitionDeliver:
		return "Pedido entregue", fmt.Sprintf("Seu pedido %s foi entregue.", order.Number)
	case domain.TransitionCancel:
		return "Pedido cancelado", fmt.Sprintf("Seu pedido %s foi cancelado: %s", order.Number, order.CancelReason)
	default:
		return "", ""
	}
}

func validateCreateInput(in CreateInput) error {
	if in.BuyerID == "" {
		return domain.ErrBuyerRequired
	}
	if in.StoreID == "" {
		return domain.ErrStoreRequired
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}
	if in.Shipping.IsNegative() || in.Discount.IsNegative() {
		return domain.ErrAmountNegative
	}

	for _, item := range in.Items {
		if item.ProductID == "" {
			return domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
	}

	ids := lo.Map(in.Items, func(item CreateItemInput, _ int) string { return item.ProductID })
	if len(lo.Uniq(ids)) != len(ids) {
		return fmt.Errorf("%w: duplicate products must be merged into one line item", domain.ErrValidation)
	}

	return nil
}

// requestHash fingerprints the business content of a create request so a
// reused idempotency key with a different body is detectable.
func requestHash(in CreateInput) string {
	in.IdempotencyKey = ""
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

var _ Service = (*service)(nil)
