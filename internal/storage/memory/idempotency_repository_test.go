package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/lojalivre/orders/internal/domain"
)

func TestIdempotencyLifecycle(t *testing.T) {
	repo := NewIdempotencyRepository()

	rec, err := repo.CreateProcessing("key-1", "hash-1", time.Time{})
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if rec.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("status = %s", rec.Status)
	}

	// Second request with the same key loses the race.
	existing, err := repo.CreateProcessing("key-1", "hash-1", time.Time{})
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}
	if existing.Key != "key-1" {
		t.Fatalf("existing record not returned: %+v", existing)
	}

	if err := repo.MarkDone("key-1", "order-42"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	got, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.IdempotencyStatusDone || got.OrderID != "order-42" {
		t.Fatalf("record = %+v", got)
	}
}

func TestIdempotencyValidation(t *testing.T) {
	repo := NewIdempotencyRepository()

	if _, err := repo.CreateProcessing("", "hash", time.Time{}); !domain.IsValidation(err) {
		t.Fatalf("blank key must fail validation, got %v", err)
	}
	if _, err := repo.CreateProcessing("key", "", time.Time{}); !domain.IsValidation(err) {
		t.Fatalf("blank hash must fail validation, got %v", err)
	}
	if _, err := repo.Get("ghost"); !domain.IsNotFound(err) {
		t.Fatalf("unknown key must be not-found, got %v", err)
	}
}

func TestIdempotencyDeleteExpired(t *testing.T) {
	repo := NewIdempotencyRepository()

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := repo.CreateProcessing("old", "h", past); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateProcessing("fresh", "h", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := repo.DeleteExpired(time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := repo.Get("fresh"); err != nil {
		t.Fatal("fresh key must survive cleanup")
	}
}
