package kafka

import "time"

// EventType identifies an order event on the wire.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderConfirmed     EventType = "order.confirmed"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderShipped       EventType = "order.shipped"
	EventTypeOrderDelivered     EventType = "order.delivered"
	EventTypeOrderCanceled      EventType = "order.canceled"
)

// Kafka topics.
const (
	TopicOrderEvents     = "marketplace.order.events"
	TopicDeadLetterQueue = "marketplace.orders.dlq"
)

// Kafka headers used by the retry logic.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent is the wire form of an order lifecycle event.
type OrderEvent struct {
	EventType     EventType              `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	Number        string                 `json:"number,omitempty"`
	BuyerID       string                 `json:"buyer_id"`
	StoreID       string                 `json:"store_id"`
	Status        string                 `json:"status"`
	PaymentStatus string                 `json:"payment_status,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent builds an order event stamped with the current time.
func NewOrderEvent(eventType EventType, orderID, buyerID, storeID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		BuyerID:   buyerID,
		StoreID:   storeID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
