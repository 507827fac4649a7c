package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Every domain error wraps exactly one of these so the
// transport layer can map it to a distinguishable failure class.
var (
	// ErrNotFound marks lookups of entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed or incomplete input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks business-rule violations: insufficient stock, illegal
	// lifecycle transitions, duplicate payment confirmations.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrOrderNotFound is returned when an order id is unknown to the repository.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrProductNotFound aborts order creation when a requested product id is unknown.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrBuyerNotFound is returned when the buyer directory has no such user.
	ErrBuyerNotFound = fmt.Errorf("buyer %w", ErrNotFound)
	// ErrStoreNotFound is returned when the store directory has no such store.
	ErrStoreNotFound = fmt.Errorf("store %w", ErrNotFound)
)

var (
	// Missing buyer id on order creation.
	ErrBuyerRequired = fmt.Errorf("%w: comprador_id is required", ErrValidation)
	// Missing store id on order creation.
	ErrStoreRequired = fmt.Errorf("%w: loja_id is required", ErrValidation)
	// An order must carry at least one line item.
	ErrItemsRequired = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	// Missing product id on a line item.
	ErrItemProductRequired = fmt.Errorf("%w: item product_id is required", ErrValidation)
	// Non-positive line item quantity.
	ErrItemQtyInvalid = fmt.Errorf("%w: item quantity must be greater than zero", ErrValidation)
	// Negative monetary field (subtotal, shipping, discount or total).
	ErrAmountNegative = fmt.Errorf("%w: monetary fields must be non-negative", ErrValidation)
	// Order total does not equal subtotal + shipping - discount.
	ErrTotalMismatch = fmt.Errorf("%w: total must equal subtotal + shipping - discount", ErrValidation)
	// Cancellation requires a non-empty reason.
	ErrCancelReasonRequired = fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	// Shipping requires a tracking code and a carrier name.
	ErrTrackingRequired = fmt.Errorf("%w: tracking code and carrier are required", ErrValidation)
	// Payment confirmation requires a payment reference.
	ErrPaymentRefRequired = fmt.Errorf("%w: payment reference is required", ErrValidation)
)

var (
	// ErrOutboxPublish is returned when an outbox message cannot be published or marked.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired rejects blank idempotency keys or request hashes.
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key and request hash are required", ErrValidation)
	// ErrIdempotencyKeyNotFound is returned for lookups of unknown keys.
	ErrIdempotencyKeyNotFound = fmt.Errorf("idempotency key %w", ErrNotFound)
	// ErrIdempotencyKeyExists signals CreateProcessing lost the race to an earlier request.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyInProgress is returned while a request with the same key is still running.
	ErrIdempotencyInProgress = fmt.Errorf("%w: request with this idempotency key is still processing", ErrConflict)
	// ErrIdempotencyMismatch is returned when a key is reused with a different request body.
	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different request", ErrConflict)
)

// ConflictError is a business-rule violation with a human-readable reason.
// It matches ErrConflict under errors.Is.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NewConflict builds a ConflictError from a format string.
func NewConflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// InsufficientStockError names the product that could not be reserved and the
// quantity actually available at the time all inventory locks were held.
type InsufficientStockError struct {
	ProductID string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available quantity %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrConflict }

// IsNotFound reports whether err belongs to the not-found category.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err belongs to the validation category.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict reports whether err belongs to the business-conflict category.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
