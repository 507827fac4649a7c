package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. The wire values follow the
// marketplace convention (Portuguese status names).
type OrderStatus string

const (
	// OrderStatusPending — order committed, awaiting payment confirmation.
	OrderStatusPending OrderStatus = "PENDENTE"
	// OrderStatusConfirmed — payment confirmed, order accepted by the store.
	OrderStatusConfirmed OrderStatus = "CONFIRMADO"
	// OrderStatusPreparing — store is packing the order.
	OrderStatusPreparing OrderStatus = "EM_PREPARACAO"
	// OrderStatusShipped — handed to the carrier, tracking code assigned.
	OrderStatusShipped OrderStatus = "ENVIADO"
	// OrderStatusDelivered — terminal state, order frozen for writes.
	OrderStatusDelivered OrderStatus = "ENTREGUE"
	// OrderStatusCanceled — terminal state, reachable from any non-terminal state.
	OrderStatusCanceled OrderStatus = "CANCELADO"
)

// statusRank orders the forward lifecycle. Canceled is outside the rank: it is
// reached only through Cancel and left never.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusConfirmed: 1,
	OrderStatusPreparing: 2,
	OrderStatusShipped:   3,
	OrderStatusDelivered: 4,
}

// Valid reports whether the status is one of the supported lifecycle states.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCanceled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// PaymentStatus is the payment axis, orthogonal to the lifecycle status.
type PaymentStatus string

const (
	// PaymentStatusPending — no payment confirmation received yet.
	PaymentStatusPending PaymentStatus = "PENDENTE"
	// PaymentStatusPaid — payment confirmed; sticky, set at most once.
	PaymentStatusPaid PaymentStatus = "PAGO"
	// PaymentStatusFailed — payment attempt rejected by the provider.
	PaymentStatusFailed PaymentStatus = "FALHADO"
)

// Valid reports whether the payment status is a supported value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// Address is the delivery address snapshot taken at creation time. It is never
// updated after the order is committed.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	ZipCode    string
}

// OrderItem is one product/quantity/price snapshot belonging to exactly one
// order. Items are created atomically with the order and never mutated.
type OrderItem struct {
	ID        string
	ProductID string
	// VariantID is empty when the product has no variants.
	VariantID string
	// Title, Price and ImageURL are captured from the inventory record at order
	// time and are immune to later product edits.
	Title    string
	Price    decimal.Decimal
	ImageURL string
	Qty      int32
	// Subtotal is Price multiplied by Qty.
	Subtotal  decimal.Decimal
	CreatedAt time.Time
}

// Order is a buyer's committed purchase from one store.
type Order struct {
	ID     string
	Number string

	BuyerID string
	StoreID string

	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal

	// PaymentMethod is an opaque reference to the chosen payment method.
	PaymentMethod string
	// PaymentRef is the provider confirmation reference, set by MarkPaid.
	PaymentRef string

	Status        OrderStatus
	PaymentStatus PaymentStatus

	Address Address

	TrackingCode string
	Carrier      string
	CancelReason string

	// Milestone timestamps, each stamped at most once, never regressed.
	ConfirmedAt *time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CanceledAt  *time.Time

	Items []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants checks the order's structural invariants and returns all
// violations found.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if o.StoreID == "" {
		errs = append(errs, ErrStoreRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	if o.Subtotal.IsNegative() || o.Shipping.IsNegative() || o.Discount.IsNegative() || o.Total.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	var itemsSum decimal.Decimal
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrAmountNegative)
		}
		itemsSum = itemsSum.Add(item.Subtotal)
	}

	// total = subtotal + shipping - discount, and subtotal = sum of line subtotals.
	if !o.Subtotal.Equal(itemsSum) || !o.Total.Equal(o.Subtotal.Add(o.Shipping).Sub(o.Discount)) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// Terminal reports whether the order accepts no further lifecycle transitions
// through the regular update path.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCanceled
}

// FormatOrderNumber renders the human-readable order number for a store-scoped
// sequence value, e.g. "Loja da Maria/2026/42".
func FormatOrderNumber(storeName string, year int, seq int64) string {
	return fmt.Sprintf("%s/%d/%d", storeName, year, seq)
}
