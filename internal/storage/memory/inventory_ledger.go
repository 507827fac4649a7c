package memory

import (
	"context"
	"sync"

	"github.com/lojalivre/orders/internal/domain"
)

// inventoryLedgerInMemory keeps product stock in a map. The tx handle is
// ignored: atomicity of the creation sequence is provided by the order
// repository, which drives check-then-write under its own mutex.
type inventoryLedgerInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.InventoryRecord
}

// NewInventoryLedger returns an in-memory ledger for local development and tests.
func NewInventoryLedger() *inventoryLedgerInMemory {
	return &inventoryLedgerInMemory{items: make(map[string]domain.InventoryRecord)}
}

// Seed registers or replaces an inventory record.
func (l *inventoryLedgerInMemory) Seed(rec domain.InventoryRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[rec.ProductID] = rec
}

// LockForUpdate returns the current record or ErrProductNotFound.
func (l *inventoryLedgerInMemory) LockForUpdate(_ context.Context, _ domain.Tx, productID string) (domain.InventoryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.items[productID]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrProductNotFound
	}
	return rec, nil
}

// SetQuantity overwrites the available quantity of a known product.
func (l *inventoryLedgerInMemory) SetQuantity(_ context.Context, _ domain.Tx, productID string, qty int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	rec.Available = qty
	l.items[productID] = rec
	return nil
}

// FindByID returns the current record without locking.
func (l *inventoryLedgerInMemory) FindByID(_ context.Context, productID string) (domain.InventoryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.items[productID]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrProductNotFound
	}
	return rec, nil
}

var _ domain.InventoryLedger = (*inventoryLedgerInMemory)(nil)
