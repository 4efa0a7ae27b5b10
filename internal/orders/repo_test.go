package orders_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-offers/internal/orders"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	productCols = []string{"id", "seller_id", "title", "price", "is_available"}
	orderCols   = []string{"id", "product_id", "buyer_id", "vendor_id", "amount", "status", "created_at", "updated_at"}
)

func q(s string) string { return regexp.QuoteMeta(s) }

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *orders.Repo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, &orders.Repo{DB: mock}
}

func expectLockProduct(mock pgxmock.PgxPoolIface, available bool) {
	mock.ExpectQuery(q("FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs(lampID).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(lampID, vendorID, "Lamp", "100.00", available))
}

func TestRepoCreateOfferCommits(t *testing.T) {
	mock, repo := newMockRepo(t)
	e := orders.NewEngine(repo, nil)

	mock.ExpectBegin()
	expectLockProduct(mock, true)
	mock.ExpectQuery(q("FROM orders WHERE buyer_id = $1 AND product_id = $2")).
		WithArgs(buyerID, lampID).
		WillReturnRows(pgxmock.NewRows(orderCols))
	mock.ExpectExec(q("INSERT INTO orders")).
		WithArgs(pgxmock.AnyArg(), lampID, buyerID, vendorID, "80.00", "OFFERED", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("UPDATE products SET is_available")).
		WithArgs(lampID, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	o, err := e.CreateOffer(context.Background(), buyerID, lampID, amt("80"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusOffered, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoCreateOfferMapsUniqueViolation(t *testing.T) {
	mock, repo := newMockRepo(t)
	e := orders.NewEngine(repo, nil)

	// a concurrent insert won the race between the pre-check and our insert
	mock.ExpectBegin()
	expectLockProduct(mock, true)
	mock.ExpectQuery(q("FROM orders WHERE buyer_id = $1 AND product_id = $2")).
		WithArgs(buyerID, lampID).
		WillReturnRows(pgxmock.NewRows(orderCols))
	mock.ExpectExec(q("INSERT INTO orders")).
		WithArgs(pgxmock.AnyArg(), lampID, buyerID, vendorID, "100.00", "PROCESSING", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_buyer_product_key"})
	mock.ExpectRollback()

	_, err := e.CreateOffer(context.Background(), buyerID, lampID, nil)
	assert.ErrorIs(t, err, orders.ErrDuplicateOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoCreateOfferRollsBackOnRejection(t *testing.T) {
	mock, repo := newMockRepo(t)
	e := orders.NewEngine(repo, nil)

	mock.ExpectBegin()
	expectLockProduct(mock, false)
	mock.ExpectQuery(q("FROM orders WHERE buyer_id = $1 AND product_id = $2")).
		WithArgs(buyerID, lampID).
		WillReturnRows(pgxmock.NewRows(orderCols))
	mock.ExpectRollback()

	_, err := e.CreateOffer(context.Background(), buyerID, lampID, amt("10"))
	assert.ErrorIs(t, err, orders.ErrProductUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoUpdateOfferLocksProductBeforeOrder(t *testing.T) {
	mock, repo := newMockRepo(t)
	e := orders.NewEngine(repo, nil)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT product_id FROM orders WHERE id = $1")).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow(lampID))
	expectLockProduct(mock, true)
	mock.ExpectQuery(q("FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow("o-1", lampID, buyerID, vendorID, "80.00", "OFFERED", created, created))
	mock.ExpectExec(q("UPDATE orders SET amount")).
		WithArgs("o-1", "80.00", "ACCEPTED", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("UPDATE products SET is_available")).
		WithArgs(lampID, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	o, err := e.UpdateOffer(context.Background(), vendorID, "o-1", orders.VendorAction{Status: orders.StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, o.Status)
	assert.True(t, o.Amount.Equal(d("80")))
	assert.True(t, o.UpdatedAt.After(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoUpdateOfferMissingOrder(t *testing.T) {
	mock, repo := newMockRepo(t)
	e := orders.NewEngine(repo, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT product_id FROM orders WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}))
	mock.ExpectRollback()

	_, err := e.UpdateOffer(context.Background(), vendorID, "nope", orders.VendorAction{Status: orders.StatusDenied})
	assert.ErrorIs(t, err, orders.ErrOrderMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoGetOrderViewWithDetails(t *testing.T) {
	mock, repo := newMockRepo(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("JOIN parties v ON v.id = o.vendor_id")).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "amount", "created_at", "updated_at",
			"pid", "title", "price", "is_available",
			"vid", "vname", "bid", "bname",
		}).AddRow("o-1", "ACCEPTED", "95.50", ts, ts,
			lampID, "Lamp", "100.00", false,
			vendorID, "Vera", buyerID, "Bo"))
	mock.ExpectQuery(q("FROM order_details WHERE order_id = $1")).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "order_id", "full_name", "email", "phone_number", "country", "zipcode", "town_or_city",
			"street_address1", "street_address2", "county", "stripe_pid", "created_at", "updated_at",
		}).AddRow("d-1", "o-1", "Bo Buyer", "bo@example.com", "", "ID", "10110", "Jakarta",
			"Jl. Sudirman 1", "", "", "pi_1", ts, ts))

	v, err := repo.GetOrderView(context.Background(), "o-1", true)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, v.Status)
	assert.True(t, v.Amount.Equal(d("95.5")))
	assert.True(t, v.Product.Price.Equal(d("100")))
	assert.False(t, v.Product.IsAvailable)
	assert.Equal(t, "Vera", v.Vendor.DisplayName)
	assert.Equal(t, "Bo", v.Buyer.DisplayName)
	require.Len(t, v.Details, 1)
	assert.Equal(t, "pi_1", v.Details[0].StripePID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoGetOrderViewMissing(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(q("JOIN parties v")).
		WithArgs("o-x").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.GetOrderView(context.Background(), "o-x", false)
	assert.ErrorIs(t, err, orders.ErrOrderMissing)
}

func TestHistoryRepoAppendIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &orders.HistoryRepo{DB: mock}

	e := orders.HistoryEntry{
		EventID: "e-1", OrderID: "o-1", EventType: orders.EventOfferCreated, ActorID: buyerID,
		Status: orders.StatusOffered, Amount: d("80"), Available: true, OccurredAt: time.Now().UTC(),
	}
	mock.ExpectExec(q("ON CONFLICT (event_id) DO NOTHING")).
		WithArgs("e-1", "o-1", "OfferCreated", buyerID, "OFFERED", "80.00", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("ON CONFLICT (event_id) DO NOTHING")).
		WithArgs("e-1", "o-1", "OfferCreated", buyerID, "OFFERED", "80.00", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	first, err := repo.AppendEvent(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.AppendEvent(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}
