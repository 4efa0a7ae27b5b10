package orders

import "context"

// Store runs fn inside a single transaction. Any error returned by fn rolls
// back every write made through tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes the engine composes into one unit.
// Implementations must serialize concurrent transactions on the same product.
type Tx interface {
	// LockProduct returns ErrProductMissing when the product does not exist.
	LockProduct(ctx context.Context, productID string) (Product, error)
	FindStandingOrder(ctx context.Context, buyerID, productID string) (Order, bool, error)
	// CreateOrder returns ErrDuplicateOrder when (buyer, product) already has an order.
	CreateOrder(ctx context.Context, o Order) error
	// LockOrder locks the order's product first, then the order.
	// Returns ErrOrderMissing when the order does not exist.
	LockOrder(ctx context.Context, orderID string) (Order, Product, error)
	UpdateOrder(ctx context.Context, o Order) error
	SetProductAvailability(ctx context.Context, productID string, available bool) error
	InsertDetail(ctx context.Context, d OrderDetail) error
}
