package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lojalivre/orders/internal/domain"
)

// opTimeout bounds every repository operation in this package.
const opTimeout = 5 * time.Second

type inventoryLedger struct {
	db *sql.DB
}

// NewInventoryLedger creates the PostgreSQL implementation of InventoryLedger.
func NewInventoryLedger(store *Store) domain.InventoryLedger {
	return &inventoryLedger{db: store.DB()}
}

// LockForUpdate takes the exclusive row lock that serializes concurrent order
// creations over the same product. tx must be the *sql.Tx of the enclosing
// order transaction.
func (l *inventoryLedger) LockForUpdate(ctx context.Context, tx domain.Tx, productID string) (domain.InventoryRecord, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	var rec domain.InventoryRecord
	err = sqlTx.QueryRowContext(ctx, `
		SELECT product_id, title, image_url, available, price
		FROM inventory
		WHERE product_id = $1
		FOR UPDATE
	`, productID).Scan(&rec.ProductID, &rec.Title, &rec.ImageURL, &rec.Available, &rec.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrProductNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("lock inventory row: %w", err)
	}

	return rec, nil
}

func (l *inventoryLedger) SetQuantity(ctx context.Context, tx domain.Tx, productID string, qty int32) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE inventory
		SET available = $1,
		    updated_at = NOW()
		WHERE product_id = $2
	`, qty, productID)
	if err != nil {
		return fmt.Errorf("update inventory quantity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (l *inventoryLedger) FindByID(ctx context.Context, productID string) (domain.InventoryRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec domain.InventoryRecord
	err := l.db.QueryRowContext(queryCtx, `
		SELECT product_id, title, image_url, available, price
		FROM inventory
		WHERE product_id = $1
	`, productID).Scan(&rec.ProductID, &rec.Title, &rec.ImageURL, &rec.Available, &rec.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrProductNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory record: %w", err)
	}

	return rec, nil
}

// Upsert inserts or replaces an inventory record. Used by fixtures and the
// product subsystem's sync path.
func (l *inventoryLedger) Upsert(ctx context.Context, rec domain.InventoryRecord) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := l.db.ExecContext(queryCtx, `
		INSERT INTO inventory (product_id, title, image_url, available, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (product_id) DO UPDATE
		SET title = EXCLUDED.title,
		    image_url = EXCLUDED.image_url,
		    available = EXCLUDED.available,
		    price = EXCLUDED.price,
		    updated_at = NOW()
	`, rec.ProductID, rec.Title, rec.ImageURL, rec.Available, rec.Price)
	if err != nil {
		return fmt.Errorf("upsert inventory record: %w", err)
	}

	return nil
}

func asSQLTx(tx domain.Tx) (*sql.Tx, error) {
	sqlTx, ok := tx.(*sql.Tx)
	if !ok || sqlTx == nil {
		return nil, fmt.Errorf("inventory ledger requires a *sql.Tx handle, got %T", tx)
	}
	return sqlTx, nil
}

var _ domain.InventoryLedger = (*inventoryLedger)(nil)
