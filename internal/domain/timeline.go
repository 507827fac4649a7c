package domain

import "time"

// Timeline event types written by the order service.
const (
	TimelineOrderCreated  = "order.created"
	TimelineStatusChanged = "status.changed"
	TimelineOrderCanceled = "order.canceled"
)

// TimelineEvent is one entry in an order's audit trail. ActorID records who
// triggered the event and is empty for system-generated entries.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	ActorID  string
	Occurred time.Time
}
