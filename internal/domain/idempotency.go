package domain

import "time"

// IdempotencyStatus is the processing state of an idempotency key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — the first request with this key is still running.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — the create committed; OrderID holds the result.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — the create failed; a retry may run again.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord tracks one create request by its idempotency key.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	OrderID     string
	FailReason  string
	Status      IdempotencyStatus
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid reports whether the status is a supported value.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
