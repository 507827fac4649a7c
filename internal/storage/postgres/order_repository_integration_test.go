package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lojalivre/orders/internal/domain"
)

func TestOrderRepository_PostgresCreateReservesStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Tênis Runner", 10, "50")
	seedInventoryForIntegrationTest(t, store, "prod-2", "Meia Esportiva", 5, "25")

	created, err := repo.Create(sampleOrderInput("order-1", "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
		{ProductID: "prod-2", Qty: 2},
		{ProductID: "prod-1", Qty: 2},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if created.Status != domain.OrderStatusPending || created.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected initial statuses: %s/%s", created.Status, created.PaymentStatus)
	}
	if len(created.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(created.Items))
	}
	// Items keep the caller's line order, not the lock order.
	if created.Items[0].ProductID != "prod-2" || created.Items[1].ProductID != "prod-1" {
		t.Fatalf("unexpected item order: %+v", created.Items)
	}
	if created.Items[0].Title != "Meia Esportiva" {
		t.Fatalf("item title not snapshotted: %q", created.Items[0].Title)
	}
	if !created.Subtotal.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("unexpected subtotal: %s", created.Subtotal)
	}
	if !created.Total.Equal(decimal.RequireFromString("160")) {
		t.Fatalf("unexpected total: %s", created.Total)
	}
	if created.Number != fmt.Sprintf("Loja da Maria/%d/1", created.CreatedAt.Year()) {
		t.Fatalf("unexpected order number: %q", created.Number)
	}

	rec, err := ledger.FindByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("read inventory after create: %v", err)
	}
	if rec.Available != 8 {
		t.Fatalf("stock not decremented: available=%d", rec.Available)
	}

	outbox := NewOutboxRepository(store)
	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != domain.EventOrderCreated {
		t.Fatalf("expected one order.created outbox event, got %+v", pending)
	}
	if pending[0].AggregateID != created.ID {
		t.Fatalf("outbox aggregate mismatch: %s", pending[0].AggregateID)
	}
}

func TestOrderRepository_PostgresInsufficientStockIsAtomic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 10, "30")
	seedInventoryForIntegrationTest(t, store, "prod-2", "Camiseta", 1, "80")

	_, err := repo.Create(sampleOrderInput("order-fail", "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
		{ProductID: "prod-1", Qty: 3},
		{ProductID: "prod-2", Qty: 2},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.ProductID != "prod-2" || stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}
	if !domain.IsConflict(err) {
		t.Fatalf("insufficient stock must be a conflict, got %v", err)
	}

	// No partial effects: untouched stock, no order, no number consumed.
	rec, err := ledger.FindByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	if rec.Available != 10 {
		t.Fatalf("rollback left partial stock write: available=%d", rec.Available)
	}
	if _, err := repo.Get("order-fail"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("aborted order must not exist, got %v", err)
	}

	seedInventoryForIntegrationTest(t, store, "prod-2", "Camiseta", 5, "80")
	created, err := repo.Create(sampleOrderInput("order-ok", "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
		{ProductID: "prod-2", Qty: 1},
	})
	if err != nil {
		t.Fatalf("create after failure: %v", err)
	}
	if created.Number != fmt.Sprintf("Loja da Maria/%d/1", created.CreatedAt.Year()) {
		t.Fatalf("failed create consumed an order number: %q", created.Number)
	}
}

func TestOrderRepository_PostgresUnknownProductAborts(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 10, "30")

	_, err := repo.Create(sampleOrderInput("order-x", "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
		{ProductID: "prod-1", Qty: 1},
		{ProductID: "prod-ghost", Qty: 1},
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}

	rec, err := ledger.FindByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	if rec.Available != 10 {
		t.Fatalf("aborted create touched stock: available=%d", rec.Available)
	}
}

func TestOrderRepository_PostgresNumbersArePerStore(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 100, "30")

	for i := 1; i <= 3; i++ {
		created, err := repo.Create(
			sampleOrderInput(fmt.Sprintf("order-a-%d", i), "buyer-1", "store-a"),
			"Loja A",
			[]domain.StockRequest{{ProductID: "prod-1", Qty: 1}},
		)
		if err != nil {
			t.Fatalf("create store-a order %d: %v", i, err)
		}
		want := fmt.Sprintf("Loja A/%d/%d", created.CreatedAt.Year(), i)
		if created.Number != want {
			t.Fatalf("store-a number: got %q want %q", created.Number, want)
		}
	}

	created, err := repo.Create(
		sampleOrderInput("order-b-1", "buyer-1", "store-b"),
		"Loja B",
		[]domain.StockRequest{{ProductID: "prod-1", Qty: 1}},
	)
	if err != nil {
		t.Fatalf("create store-b order: %v", err)
	}
	want := fmt.Sprintf("Loja B/%d/1", created.CreatedAt.Year())
	if created.Number != want {
		t.Fatalf("store-b counter must be independent: got %q want %q", created.Number, want)
	}

	// Two stores may share a display name: numbers are unique per store id,
	// not globally, so the identical number string must not collide.
	created, err = repo.Create(
		sampleOrderInput("order-c-1", "buyer-1", "store-c"),
		"Loja A",
		[]domain.StockRequest{{ProductID: "prod-1", Qty: 1}},
	)
	if err != nil {
		t.Fatalf("create same-name store order: %v", err)
	}
	want = fmt.Sprintf("Loja A/%d/1", created.CreatedAt.Year())
	if created.Number != want {
		t.Fatalf("same-name store number: got %q want %q", created.Number, want)
	}
}

func TestOrderRepository_PostgresDuplicateLinesAreSummed(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 5, "30")

	_, err := repo.Create(
		sampleOrderInput("order-dup", "buyer-1", "store-1"),
		"Loja da Maria",
		[]domain.StockRequest{
			{ProductID: "prod-1", Qty: 3},
			{ProductID: "prod-1", Qty: 3},
		},
	)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 6 || stockErr.Available != 5 {
		t.Fatalf("duplicate lines must be summed: %+v", stockErr)
	}

	rec, err := ledger.FindByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	if rec.Available != 5 {
		t.Fatalf("failed create touched stock: available=%d", rec.Available)
	}
}

func TestOrderRepository_PostgresNoOversellUnderConcurrency(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	const initialStock = 5
	seedInventoryForIntegrationTest(t, store, "prod-hot", "Edição Limitada", initialStock, "199.90")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qty := int32(i%3 + 1)
			created, err := repo.Create(
				sampleOrderInput(fmt.Sprintf("order-c-%d", i), "buyer-1", "store-1"),
				"Loja da Maria",
				[]domain.StockRequest{{ProductID: "prod-hot", Qty: qty}},
			)
			if err != nil {
				if !domain.IsConflict(err) {
					t.Errorf("unexpected create error: %v", err)
				}
				return
			}
			mu.Lock()
			reserved += created.Items[0].Qty
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if reserved > initialStock {
		t.Fatalf("oversold: reserved %d of %d", reserved, initialStock)
	}

	rec, err := ledger.FindByID(context.Background(), "prod-hot")
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	if rec.Available != initialStock-reserved {
		t.Fatalf("final stock %d does not match reservations %d", rec.Available, reserved)
	}
}

func TestOrderRepository_PostgresApplyTransition(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 10, "30")

	created, err := repo.Create(sampleOrderInput("order-1", "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
		{ProductID: "prod-1", Qty: 1},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	paid, err := repo.ApplyTransition(created.ID, domain.MarkPaid{Reference: "pay-123"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.OrderStatusConfirmed || paid.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected state after payment: %s/%s", paid.Status, paid.PaymentStatus)
	}
	if paid.PaidAt == nil || paid.ConfirmedAt == nil {
		t.Fatalf("payment milestones not stamped: %+v", paid)
	}
	if len(paid.Items) != 1 || paid.Items[0].ProductID != "prod-1" {
		t.Fatalf("transition result must carry the items: %+v", paid.Items)
	}

	// A second payment confirmation is a conflict and must not change the row.
	if _, err := repo.ApplyTransition(created.ID, domain.MarkPaid{Reference: "pay-456"}); !domain.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate payment, got %v", err)
	}
	stored, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get after rejected transition: %v", err)
	}
	if stored.PaymentRef != "pay-123" {
		t.Fatalf("rejected transition mutated the order: ref=%q", stored.PaymentRef)
	}

	shipped, err := repo.ApplyTransition(created.ID, domain.Ship{TrackingCode: "BR123", Carrier: "Correios"})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped || shipped.TrackingCode != "BR123" {
		t.Fatalf("unexpected shipped state: %+v", shipped)
	}

	if _, err := repo.ApplyTransition("missing", domain.Confirm{}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}

	outbox := NewOutboxRepository(store)
	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending outbox: %v", err)
	}
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	want := []string{domain.EventOrderCreated, domain.EventOrderPaid, domain.EventOrderShipped}
	if len(types) != len(want) {
		t.Fatalf("unexpected outbox events: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("outbox event %d: got %s want %s", i, types[i], want[i])
		}
	}
}

func TestOrderRepository_PostgresListingsExcludeCancelled(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewInventoryLedger(store)
	repo := NewOrderRepository(store, ledger)

	seedInventoryForIntegrationTest(t, store, "prod-1", "Caneca", 10, "30")

	for _, id := range []string{"order-1", "order-2"} {
		if _, err := repo.Create(sampleOrderInput(id, "buyer-1", "store-1"), "Loja da Maria", []domain.StockRequest{
			{ProductID: "prod-1", Qty: 1},
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	if _, err := repo.ApplyTransition("order-1", domain.Cancel{Reason: "cliente desistiu"}); err != nil {
		t.Fatalf("cancel order-1: %v", err)
	}

	byBuyer, err := repo.ListByBuyer("buyer-1", 0)
	if err != nil {
		t.Fatalf("list by buyer: %v", err)
	}
	if len(byBuyer) != 1 || byBuyer[0].ID != "order-2" {
		t.Fatalf("cancelled order leaked into buyer listing: %+v", byBuyer)
	}

	byStore, err := repo.ListByStore("store-1", 0)
	if err != nil {
		t.Fatalf("list by store: %v", err)
	}
	if len(byStore) != 1 || byStore[0].ID != "order-2" {
		t.Fatalf("cancelled order leaked into store listing: %+v", byStore)
	}

	page, total, err := repo.List(domain.Page{Offset: 0, Limit: 10})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 1 || len(page) != 1 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(page))
	}

	// Get still returns the cancelled order with its reason.
	cancelled, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get cancelled order: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCanceled || cancelled.CancelReason != "cliente desistiu" {
		t.Fatalf("unexpected cancelled order: %+v", cancelled)
	}
}
