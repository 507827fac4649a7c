package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/lojalivre/orders/internal/domain"
)

type orderRepository struct {
	db     *sql.DB
	ledger domain.InventoryLedger
}

// NewOrderRepository creates the PostgreSQL implementation of OrderRepository.
// The ledger must be backed by the same Store so inventory locks and writes run
// inside the order transaction.
func NewOrderRepository(store *Store, ledger domain.InventoryLedger) domain.OrderRepository {
	return &orderRepository{db: store.DB(), ledger: ledger}
}

// Create commits the whole order-creation sequence in one transaction. Every
// inventory row is locked in ascending product-id order before any stock check
// runs, so two concurrent creations over the same products serialize instead
// of deadlocking, and the loser sees quantities the winner already committed.
func (r *orderRepository) Create(order domain.Order, storeName string, requests []domain.StockRequest) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

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
		var rec domain.InventoryRecord
		rec, err = r.ledger.LockForUpdate(ctx, tx, productID)
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
			err = &domain.InsufficientStockError{
				ProductID: productID,
				Available: rec.Available,
				Requested: requested[productID],
			}
			return domain.Order{}, err
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
		err = domain.ErrAmountNegative
		return domain.Order{}, err
	}

	var seq int64
	seq, err = r.nextStoreNumber(ctx, tx, order.StoreID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Number = domain.FormatOrderNumber(storeName, now.Year(), seq)
	order.Status = domain.OrderStatusPending
	order.PaymentStatus = domain.PaymentStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		err = fmt.Errorf("order invariants violated: %v", errs)
		return domain.Order{}, err
	}

	if err = r.insertOrderTx(ctx, tx, order); err != nil {
		return domain.Order{}, err
	}

	for productID, qty := range newQty {
		if err = r.ledger.SetQuantity(ctx, tx, productID, qty); err != nil {
			return domain.Order{}, err
		}
	}

	if err = enqueueOutboxTx(ctx, tx, order, domain.EventOrderCreated); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, r.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByBuyer(buyerID string, limit int) ([]domain.Order, error) {
	return r.listWhere(`buyer_id = $1`, buyerID, limit)
}

func (r *orderRepository) ListByStore(storeID string, limit int) ([]domain.Order, error) {
	return r.listWhere(`store_id = $1`, storeID, limit)
}

func (r *orderRepository) List(page domain.Page) ([]domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE status <> $1
	`, string(domain.OrderStatusCanceled)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = total
	}

	rows, err := r.db.QueryContext(ctx, selectOrderSQL+`
		WHERE status <> $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, string(domain.OrderStatusCanceled), page.Offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := r.collectOrders(ctx, rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ApplyTransition re-reads the order under FOR UPDATE so the transition guard
// always sees the current committed state, then persists the mutated order and
// its outbox event in the same transaction.
func (r *orderRepository) ApplyTransition(id string, tr domain.Transition) (domain.Order, error) {
	if err := tr.Validate(); err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var order domain.Order
	order, err = scanOrder(tx.QueryRowContext(ctx, selectOrderSQL+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrOrderNotFound
		} else {
			err = fmt.Errorf("select order for update: %w", err)
		}
		return domain.Order{}, err
	}

	if err = tr.Apply(&order, time.Now().UTC()); err != nil {
		return domain.Order{}, err
	}

	if err = r.updateOrderTx(ctx, tx, order); err != nil {
		return domain.Order{}, err
	}

	if err = enqueueOutboxTx(ctx, tx, order, domain.OutboxEventForTransition(tr.Kind())); err != nil {
		return domain.Order{}, err
	}

	// Items are read before the commit: a transition either commits and
	// returns the full order, or fails with the row untouched.
	var items []domain.OrderItem
	items, err = r.loadItems(ctx, tx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit transition: %w", err)
	}

	return order, nil
}

// nextStoreNumber allocates the next value of the store-scoped order counter.
// The counter row upsert serializes concurrent creations for the same store,
// so committed numbers are gap-free and strictly sequential.
func (r *orderRepository) nextStoreNumber(ctx context.Context, tx *sql.Tx, storeID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO store_order_counters (store_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (store_id) DO UPDATE
		SET last_number = store_order_counters.last_number + 1
		RETURNING last_number
	`, storeID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advance store order counter: %w", err)
	}
	return seq, nil
}

func (r *orderRepository) insertOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("marshal order address: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, number, buyer_id, store_id,
			subtotal, shipping, discount, total,
			payment_method, payment_ref, status, payment_status,
			address, tracking_code, carrier, cancel_reason,
			confirmed_at, paid_at, shipped_at, delivered_at, canceled_at,
			created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
		)
	`,
		order.ID, order.Number, order.BuyerID, order.StoreID,
		order.Subtotal, order.Shipping, order.Discount, order.Total,
		order.PaymentMethod, order.PaymentRef, string(order.Status), string(order.PaymentStatus),
		address, order.TrackingCode, order.Carrier, order.CancelReason,
		nullTime(order.ConfirmedAt), nullTime(order.PaidAt), nullTime(order.ShippedAt),
		nullTime(order.DeliveredAt), nullTime(order.CanceledAt),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflict("order number %s is already taken for store %s", order.Number, order.StoreID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, variant_id, title, price, image_url, qty, subtotal, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, order.ID, item.ProductID, item.VariantID, item.Title,
			item.Price, item.ImageURL, item.Qty, item.Subtotal, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) updateOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_ref = $1,
		    status = $2,
		    payment_status = $3,
		    tracking_code = $4,
		    carrier = $5,
		    cancel_reason = $6,
		    confirmed_at = $7,
		    paid_at = $8,
		    shipped_at = $9,
		    delivered_at = $10,
		    canceled_at = $11,
		    updated_at = $12
		WHERE id = $13
	`,
		order.PaymentRef, string(order.Status), string(order.PaymentStatus),
		order.TrackingCode, order.Carrier, order.CancelReason,
		nullTime(order.ConfirmedAt), nullTime(order.PaidAt), nullTime(order.ShippedAt),
		nullTime(order.DeliveredAt), nullTime(order.CanceledAt),
		order.UpdatedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

const selectOrderSQL = `
	SELECT id, number, buyer_id, store_id,
	       subtotal, shipping, discount, total,
	       payment_method, payment_ref, status, payment_status,
	       address, tracking_code, carrier, cancel_reason,
	       confirmed_at, paid_at, shipped_at, delivered_at, canceled_at,
	       created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
		address       []byte
		confirmedAt   sql.NullTime
		paidAt        sql.NullTime
		shippedAt     sql.NullTime
		deliveredAt   sql.NullTime
		canceledAt    sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.Number, &order.BuyerID, &order.StoreID,
		&order.Subtotal, &order.Shipping, &order.Discount, &order.Total,
		&order.PaymentMethod, &order.PaymentRef, &status, &paymentStatus,
		&address, &order.TrackingCode, &order.Carrier, &order.CancelReason,
		&confirmedAt, &paidAt, &shippedAt, &deliveredAt, &canceledAt,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if len(address) > 0 {
		if err := json.Unmarshal(address, &order.Address); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal order address: %w", err)
		}
	}
	order.ConfirmedAt = timePtr(confirmedAt)
	order.PaidAt = timePtr(paidAt)
	order.ShippedAt = timePtr(shippedAt)
	order.DeliveredAt = timePtr(deliveredAt)
	order.CanceledAt = timePtr(canceledAt)

	return order, nil
}

func (r *orderRepository) listWhere(cond string, arg any, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := selectOrderSQL + `
		WHERE ` + cond + ` AND status <> $2
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $3", arg, string(domain.OrderStatusCanceled), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, arg, string(domain.OrderStatusCanceled))
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *orderRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// itemQuerier lets loadItems run either on the pool or inside an open
// transaction.
type itemQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *orderRepository) loadItems(ctx context.Context, q itemQuerier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, variant_id, title, price, image_url, qty, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.VariantID, &item.Title,
			&item.Price, &item.ImageURL, &item.Qty, &item.Subtotal, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
