package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of *pgxpool.Pool the repositories use.
type DBTX interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the Postgres-backed Store. Per-product serialization comes from
// row locks (FOR UPDATE) and the (buyer_id, product_id) unique constraint.
type Repo struct{ DB DBTX }

const uniqueViolation = "23505"

// money columns are read as text so that decimal parsing is exact.
const orderCols = `id, product_id, buyer_id, vendor_id, amount::text, status, created_at, updated_at`

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockProduct(ctx context.Context, productID string) (Product, error) {
	var (
		p     Product
		price string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, seller_id, title, price::text, is_available
		FROM products WHERE id = $1 FOR UPDATE`, productID,
	).Scan(&p.ID, &p.SellerID, &p.Title, &price, &p.IsAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductMissing
	}
	if err != nil {
		return Product{}, fmt.Errorf("lock product %s: %w", productID, err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %s price: %w", productID, err)
	}
	return p, nil
}

func (t *pgTx) FindStandingOrder(ctx context.Context, buyerID, productID string) (Order, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE buyer_id = $1 AND product_id = $2`, buyerID, productID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("find standing order: %w", err)
	}
	return o, true, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, product_id, buyer_id, vendor_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		o.ID, o.ProductID, o.BuyerID, o.VendorID, o.Amount.StringFixed(2), string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (Order, Product, error) {
	var productID string
	err := t.tx.QueryRow(ctx, `SELECT product_id FROM orders WHERE id = $1`, orderID).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, Product{}, ErrOrderMissing
	}
	if err != nil {
		return Order{}, Product{}, fmt.Errorf("order %s product: %w", orderID, err)
	}

	// product before order, same as CreateOffer, so lock order is global
	p, err := t.LockProduct(ctx, productID)
	if err != nil {
		return Order{}, Product{}, err
	}
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, Product{}, ErrOrderMissing
	}
	if err != nil {
		return Order{}, Product{}, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return o, p, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET amount = $2::numeric, status = $3, updated_at = $4
		WHERE id = $1`,
		o.ID, o.Amount.StringFixed(2), string(o.Status), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderMissing
	}
	return nil
}

func (t *pgTx) SetProductAvailability(ctx context.Context, productID string, available bool) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET is_available = $2, updated_at = NOW() WHERE id = $1`, productID, available)
	if err != nil {
		return fmt.Errorf("set availability %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return ErrProductMissing
	}
	return nil
}

func (t *pgTx) InsertDetail(ctx context.Context, d OrderDetail) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_details(id, order_id, full_name, email, phone_number, country, zipcode,
			town_or_city, street_address1, street_address2, county, stripe_pid, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.OrderID, d.FullName, d.Email, d.PhoneNumber, d.Country, d.Zipcode,
		d.TownOrCity, d.StreetAddress1, d.StreetAddress2, d.County, d.StripePID, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order detail: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		amount, status string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.BuyerID, &o.VendorID, &amount, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Order{}, fmt.Errorf("order %s amount: %w", o.ID, err)
	}
	o.Amount = amt
	o.Status = Status(status)
	return o, nil
}

// GetOrderView reads an order with its product and party previews.
func (r *Repo) GetOrderView(ctx context.Context, id string, withDetails bool) (OrderView, error) {
	var (
		v                  OrderView
		status, amt, price string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT o.id, o.status, o.amount::text, o.created_at, o.updated_at,
		       p.id, p.title, p.price::text, p.is_available,
		       v.id, v.display_name, b.id, b.display_name
		FROM orders o
		JOIN products p ON p.id = o.product_id
		JOIN parties v ON v.id = o.vendor_id
		JOIN parties b ON b.id = o.buyer_id
		WHERE o.id = $1`, id,
	).Scan(&v.ID, &status, &amt, &v.CreatedAt, &v.UpdatedAt,
		&v.Product.ID, &v.Product.Title, &price, &v.Product.IsAvailable,
		&v.Vendor.ID, &v.Vendor.DisplayName, &v.Buyer.ID, &v.Buyer.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderView{}, ErrOrderMissing
	}
	if err != nil {
		return OrderView{}, fmt.Errorf("get order view %s: %w", id, err)
	}
	v.Status = Status(status)
	if v.Amount, err = decimal.NewFromString(amt); err != nil {
		return OrderView{}, fmt.Errorf("order %s amount: %w", id, err)
	}
	if v.Product.Price, err = decimal.NewFromString(price); err != nil {
		return OrderView{}, fmt.Errorf("product %s price: %w", v.Product.ID, err)
	}

	if withDetails {
		if v.Details, err = r.ListDetails(ctx, id); err != nil {
			return OrderView{}, err
		}
	}
	return v, nil
}

func (r *Repo) ListDetails(ctx context.Context, orderID string) ([]OrderDetail, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, full_name, email, phone_number, country, zipcode, town_or_city,
		       street_address1, street_address2, county, stripe_pid, created_at, updated_at
		FROM order_details WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order details: %w", err)
	}
	defer rows.Close()

	var out []OrderDetail
	for rows.Next() {
		var d OrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.FullName, &d.Email, &d.PhoneNumber, &d.Country, &d.Zipcode,
			&d.TownOrCity, &d.StreetAddress1, &d.StreetAddress2, &d.County, &d.StripePID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListOrders returns the actor's orders in the asserted role, newest first.
func (r *Repo) ListOrders(ctx context.Context, actor Actor) ([]Order, error) {
	col := "buyer_id"
	if actor.Role == RoleVendor {
		col = "vendor_id"
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE `+col+` = $1 ORDER BY created_at DESC`, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
