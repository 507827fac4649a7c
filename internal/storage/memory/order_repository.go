package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lojalivre/orders/internal/domain"
)

// orderRepositoryInMemory implements the order store and the creation
// transaction coordinator on plain maps. A single mutex serializes every
// check-then-write sequence, standing in for the database row locks.
type orderRepositoryInMemory struct {
	mu       sync.Mutex
	items    map[string]domain.Order
	counters map[string]int64
	ledger   domain.InventoryLedger
	outbox   domain.OutboxRepository
}

// NewOrderRepository returns an in-memory repository for local development and
// tests. The ledger and outbox take part in the simulated creation transaction.
func NewOrderRepository(ledger domain.InventoryLedger, outbox domain.OutboxRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		counters: make(map[string]int64),
		ledger:   ledger,
		outbox:   outbox,
	}
}

// Create runs the whole reservation sequence under one mutex hold: every check
// happens before the first mutation, so a failed create leaves no trace.
func (r *orderRepositoryInMemory) Create(order domain.Order, storeName string, requests []domain.StockRequest) (domain.Order, error) {
	ctx := context.Background()
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, domain.NewConflict("order %s already exists", order.ID)
	}

	// Requested quantities are summed per product so duplicate lines cannot
	// each pass the check against the same locked snapshot.
	requested := make(map[string]int32, len(requests))
	productIDs := make([]string, 0, len(requests))
	for _, req := range requests {
		if _, seen := requested[req.ProductID]; !seen {
			productIDs = append(productIDs, req.ProductID)
		}
		requested[req.ProductID] += req.Qty
	}

	// Deterministic lock order, independent of the cart order.
	sort.Strings(productIDs)

	records := make(map[string]domain.InventoryRecord, len(productIDs))
	newQty := make(map[string]int32, len(productIDs))
	for _, productID := range productIDs {
		rec, err := r.ledger.LockForUpdate(ctx, nil, productID)
		if err != nil {
			return domain.Order{}, err
		}
		records[productID] = rec
	}

	// Stock sufficiency is evaluated only after all locks are held.
	for _, productID := range productIDs {
		rec := records[productID]
		remaining := rec.Available - requested[productID]
		if remaining < 0 {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: productID,
				Available: rec.Available,
				Requested: requested[productID],
			}
		}
		newQty[productID] = remaining
	}

	// Snapshot titles and prices, keeping the caller's original line order.
	items := make([]domain.OrderItem, 0, len(requests))
	subtotal := decimal.Zero
	for _, req := range requests {
		rec := records[req.ProductID]
		item := domain.OrderItem{
			ID:        uuid.NewString(),
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Title:     rec.Title,
			ImageURL:  rec.ImageURL,
			Price:     rec.Price,
			Qty:       req.Qty,
			Subtotal:  rec.Price.Mul(decimal.NewFromInt32(req.Qty)),
			CreatedAt: now,
		}
		subtotal = subtotal.Add(item.Subtotal)
		items = append(items, item)
	}

	order.Items = items
	order.Subtotal = subtotal
	order.Total = subtotal.Add(order.Shipping).Sub(order.Discount)
	if order.Total.IsNegative() {
		return domain.Order{}, domain.ErrAmountNegative
	}

	seq := r.counters[order.StoreID] + 1
	order.Number = domain.FormatOrderNumber(storeName, now.Year(), seq)
	order.Status = domain.OrderStatusPending
	order.PaymentStatus = domain.PaymentStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("order invariants violated: %v", errs)
	}

	// Point of no return: apply the reservation and persist.
	for productID, qty := range newQty {
		if err := r.ledger.SetQuantity(ctx, nil, productID, qty); err != nil {
			return domain.Order{}, err
		}
	}
	r.counters[order.StoreID] = seq
	r.items[order.ID] = order

	r.enqueueEvent(order, domain.EventOrderCreated)

	return order, nil
}

// Get returns the order or ErrOrderNotFound. Cancelled orders are returned too.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByBuyer returns the buyer's non-cancelled orders, newest first.
func (r *orderRepositoryInMemory) ListByBuyer(buyerID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.BuyerID == buyerID }, limit), nil
}

// ListByStore returns the store's non-cancelled orders, newest first.
func (r *orderRepositoryInMemory) ListByStore(storeID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.StoreID == storeID }, limit), nil
}

// List returns one page of non-cancelled orders plus the total count.
func (r *orderRepositoryInMemory) List(page domain.Page) ([]domain.Order, int, error) {
	all := r.list(func(domain.Order) bool { return true }, 0)
	total := len(all)

	if page.Offset >= len(all) {
		return []domain.Order{}, total, nil
	}
	all = all[page.Offset:]
	if page.Limit > 0 && len(all) > page.Limit {
		all = all[:page.Limit]
	}
	return all, total, nil
}

// ApplyTransition validates and applies tr on the current order state while
// holding the repository mutex, so two concurrent transitions cannot both pass
// a stale guard check.
func (r *orderRepositoryInMemory) ApplyTransition(id string, tr domain.Transition) (domain.Order, error) {
	if err := tr.Validate(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	if err := tr.Apply(&order, time.Now().UTC()); err != nil {
		return domain.Order{}, err
	}

	r.items[id] = order
	r.enqueueEvent(order, domain.OutboxEventForTransition(tr.Kind()))

	return order, nil
}

func (r *orderRepositoryInMemory) list(match func(domain.Order) bool, limit int) []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.Status == domain.OrderStatusCanceled {
			continue
		}
		if match(order) {
			result = append(result, order)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (r *orderRepositoryInMemory) enqueueEvent(order domain.Order, eventType string) {
	if r.outbox == nil {
		return
	}
	msg, err := domain.NewOrderOutboxMessage(order, eventType)
	if err != nil {
		return
	}
	_, _ = r.outbox.Enqueue(msg)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
