package domain

import (
	"encoding/json"
	"time"
)

// AggregateOrder is the outbox aggregate type for order events.
const AggregateOrder = "order"

// Outbox event types emitted by the order core.
const (
	EventOrderCreated       = "order.created"
	EventOrderConfirmed     = "order.confirmed"
	EventOrderPaid          = "order.paid"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderShipped       = "order.shipped"
	EventOrderDelivered     = "order.delivered"
	EventOrderCanceled      = "order.canceled"
)

// OutboxEventForTransition maps a lifecycle transition to its outbox event type.
func OutboxEventForTransition(kind TransitionKind) string {
	switch kind {
	case TransitionConfirm:
		return EventOrderConfirmed
	case TransitionMarkPaid:
		return EventOrderPaid
	case TransitionShip:
		return EventOrderShipped
	case TransitionDeliver:
		return EventOrderDelivered
	case TransitionCancel:
		return EventOrderCanceled
	default:
		return EventOrderStatusChanged
	}
}

// NewOrderOutboxMessage builds the outbox message for a committed order state.
// The payload is the stable JSON contract consumed by notification and audit
// workers downstream.
func NewOrderOutboxMessage(o Order, eventType string) (OutboxMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"order_id":       o.ID,
		"number":         o.Number,
		"buyer_id":       o.BuyerID,
		"store_id":       o.StoreID,
		"status":         string(o.Status),
		"payment_status": string(o.PaymentStatus),
		"total":          o.Total.String(),
		"ts":             time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   o.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
