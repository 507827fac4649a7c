package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// User is the directory view of a marketplace account.
type User struct {
	ID    string
	Name  string
	Email string
}

// Store is the directory view of a seller.
type Store struct {
	ID      string
	Name    string
	OwnerID string
}

// UserDirectory resolves buyer accounts. Key-based reads only.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (User, error)
}

// StoreDirectory resolves seller stores. Key-based reads only.
type StoreDirectory interface {
	FindByID(ctx context.Context, id string) (Store, error)
}

// InventoryRecord is the product subsystem's view of a sellable product. The
// order core reads Title, ImageURL and Price for line-item snapshots and
// mutates Available only inside the creation transaction.
type InventoryRecord struct {
	ProductID string
	Title     string
	ImageURL  string
	Available int32
	Price     decimal.Decimal
}

// Tx is an opaque storage transaction handle passed through the inventory
// ledger so lock and write run inside the enclosing order transaction.
type Tx interface{}

// InventoryLedger is the order core's transactional write access to product
// stock, owned by the product subsystem.
type InventoryLedger interface {
	// LockForUpdate takes an exclusive row lock on the product for the duration
	// of tx. Concurrent order creations against the same product serialize here.
	// Unknown products return ErrProductNotFound.
	LockForUpdate(ctx context.Context, tx Tx, productID string) (InventoryRecord, error)
	// SetQuantity writes the new available quantity inside the same transaction.
	SetQuantity(ctx context.Context, tx Tx, productID string, qty int32) error
	// FindByID is a plain read outside any transaction.
	FindByID(ctx context.Context, productID string) (InventoryRecord, error)
}

// Notification is a message for a marketplace user. Dispatch is
// fire-and-forget: failures are logged and never affect committed orders.
type Notification struct {
	UserID    string
	Title     string
	Message   string
	Kind      string
	Priority  string
	Link      string
	SendEmail bool
}

// NotificationDispatcher delivers notifications to buyers and sellers.
type NotificationDispatcher interface {
	Create(ctx context.Context, n Notification) error
}

// OutboxPublisher publishes events pulled from the transactional outbox.
// Implementations must be idempotent.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// OutboxRepository stores commit events for asynchronous publication.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository stores the per-order audit trail.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository tracks create requests by idempotency key so a retried
// create replays the already committed order instead of reserving stock twice.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key, orderID string) error
	MarkFailed(key, reason string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage is one event awaiting publication.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats describes the current outbox backlog.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
