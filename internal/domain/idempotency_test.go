package domain_test

import (
	"testing"

	"github.com/lojalivre/orders/internal/domain"
)

func TestIdempotencyStatusValid(t *testing.T) {
	valid := []domain.IdempotencyStatus{
		domain.IdempotencyStatusProcessing,
		domain.IdempotencyStatusDone,
		domain.IdempotencyStatusFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("status %s should be valid", s)
		}
	}
	if domain.IdempotencyStatus("pending").Valid() {
		t.Error("unknown status should not be valid")
	}
}
