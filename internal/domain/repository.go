package domain

// Page is an offset/limit window for paginated listings.
type Page struct {
	Offset int
	Limit  int
}

// StockRequest is one requested line of an order creation: which product and
// how many units to reserve.
type StockRequest struct {
	ProductID string
	VariantID string
	Qty       int32
}

// OrderRepository is the durable order store plus the order-creation
// transaction coordinator.
type OrderRepository interface {
	// Create commits a new order in one atomic transaction: it locks all
	// referenced inventory rows in ascending product-id order, verifies stock
	// sufficiency only after every lock is held, snapshots title/price/image
	// into line items, derives the store-scoped order number, inserts the order
	// with its items, writes the decremented quantities and enqueues the
	// order.created outbox event. Any failure rolls back with zero partial
	// effects. The returned order carries the assigned number, snapshots and
	// computed totals. storeName is the display name embedded in the number.
	Create(order Order, storeName string, requests []StockRequest) (Order, error)

	// Get returns the order with its items or ErrOrderNotFound. Cancelled
	// orders are returned; hiding them is a listing concern.
	Get(id string) (Order, error)

	// ListByBuyer returns the buyer's orders, newest first, excluding cancelled
	// ones. limit <= 0 means no limit.
	ListByBuyer(buyerID string, limit int) ([]Order, error)

	// ListByStore returns the store's orders, newest first, excluding cancelled
	// ones. limit <= 0 means no limit.
	ListByStore(storeID string, limit int) ([]Order, error)

	// List returns one page of non-cancelled orders, newest first, together
	// with the total count of non-cancelled orders.
	List(page Page) ([]Order, int, error)

	// ApplyTransition loads the order under an exclusive row lock, validates
	// the transition against the current state, persists the mutated order and
	// enqueues the matching outbox event, all in one transaction. Illegal
	// transitions return a conflict and leave the order untouched.
	ApplyTransition(id string, tr Transition) (Order, error)
}
