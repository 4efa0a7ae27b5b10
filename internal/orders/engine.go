package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine validates offers and status transitions and keeps the product's
// availability flag consistent with the order that touched it last.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store: store,
		log:   logger.With(slog.String("component", "offer-engine")),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// CreateOffer opens a negotiation for buyerID on productID. A nil amount
// offers the listed price.
func (e *Engine) CreateOffer(ctx context.Context, buyerID, productID string, amount *decimal.Decimal) (Order, error) {
	if buyerID == "" || productID == "" {
		return Order{}, fmt.Errorf("%w: buyer and product are required", ErrInvalidInput)
	}
	if amount != nil {
		if err := checkAmount(*amount); err != nil {
			return Order{}, err
		}
	}

	var created Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Price.IsPositive() {
			return fmt.Errorf("%w: product has no valid price", ErrInvalidInput)
		}
		if p.SellerID == buyerID {
			return ErrOwnProduct
		}

		if _, exists, err := tx.FindStandingOrder(ctx, buyerID, productID); err != nil {
			return err
		} else if exists {
			return ErrDuplicateOrder
		}

		amt := p.Price
		if amount != nil {
			amt = *amount
		}
		if amt.GreaterThan(p.Price) {
			return fmt.Errorf("%w (%s)", ErrAmountExceedsPrice, p.Price.StringFixed(2))
		}
		if !p.IsAvailable {
			return ErrProductUnavailable
		}

		now := e.now()
		o := Order{
			ID:        e.newID(),
			ProductID: p.ID,
			BuyerID:   buyerID,
			VendorID:  p.SellerID,
			Amount:    amt,
			Status:    statusForAmount(amt, p.Price),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.SetProductAvailability(ctx, p.ID, o.Status.KeepsAvailable()); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	e.log.InfoContext(ctx, "offer created",
		slog.String("order_id", created.ID),
		slog.String("product_id", created.ProductID),
		slog.String("buyer_id", buyerID),
		slog.String("status", string(created.Status)),
		slog.Bool("available", created.Status.KeepsAvailable()),
	)
	return created, nil
}

// UpdateOffer applies a buyer or vendor action to an existing order and then
// reconciles the product's availability with the resulting status.
func (e *Engine) UpdateOffer(ctx context.Context, actorID, orderID string, action Action) (Order, error) {
	if actorID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: actor and order are required", ErrInvalidInput)
	}
	switch a := action.(type) {
	case VendorAction:
		if !a.Status.Valid() {
			return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, a.Status)
		}
	case BuyerAction:
		if a.Amount != nil {
			if err := checkAmount(*a.Amount); err != nil {
				return Order{}, err
			}
		}
	default:
		return Order{}, fmt.Errorf("%w: missing action", ErrInvalidInput)
	}

	var updated Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, p, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if participant(o, action.role()) != actorID {
			return ErrRoleMismatch
		}

		if o.Status.Terminal() {
			if va, ok := action.(VendorAction); ok && va.Status == o.Status {
				updated = o
				return nil
			}
			return ErrTerminalOrder
		}
		// Only the order holding the product may act on an unavailable one.
		if !p.IsAvailable && !o.Status.HoldsProduct() {
			return ErrProductUnavailable
		}

		next := o
		switch a := action.(type) {
		case VendorAction:
			next.Status = a.Status
		case BuyerAction:
			if a.Amount != nil {
				next.Amount = *a.Amount
			}
			if next.Amount.GreaterThan(p.Price) {
				return fmt.Errorf("%w (%s)", ErrAmountExceedsPrice, p.Price.StringFixed(2))
			}
			next.Status = statusForAmount(next.Amount, p.Price)
		}

		if next.Status != o.Status || !next.Amount.Equal(o.Amount) {
			next.UpdatedAt = e.now()
			if err := tx.UpdateOrder(ctx, next); err != nil {
				return err
			}
		}
		if err := tx.SetProductAvailability(ctx, p.ID, next.Status.KeepsAvailable()); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	e.log.InfoContext(ctx, "offer updated",
		slog.String("order_id", updated.ID),
		slog.String("product_id", updated.ProductID),
		slog.String("actor_id", actorID),
		slog.String("role", string(action.role())),
		slog.String("status", string(updated.Status)),
		slog.Bool("available", updated.Status.KeepsAvailable()),
	)
	return updated, nil
}

// AttachDetail stores a fulfillment/contact snapshot on the buyer's order.
// It never touches status or availability.
func (e *Engine) AttachDetail(ctx context.Context, buyerID, orderID string, d OrderDetail) (OrderDetail, error) {
	if strings.TrimSpace(d.FullName) == "" || strings.TrimSpace(d.Email) == "" {
		return OrderDetail{}, fmt.Errorf("%w: full_name and email are required", ErrInvalidInput)
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, _, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID {
			return ErrRoleMismatch
		}
		now := e.now()
		d.ID = e.newID()
		d.OrderID = o.ID
		d.CreatedAt = now
		d.UpdatedAt = now
		return tx.InsertDetail(ctx, d)
	})
	if err != nil {
		return OrderDetail{}, err
	}
	e.log.InfoContext(ctx, "order detail attached",
		slog.String("order_id", orderID),
		slog.String("detail_id", d.ID),
	)
	return d, nil
}

func participant(o Order, r Role) string {
	if r == RoleVendor {
		return o.VendorID
	}
	return o.BuyerID
}

// statusForAmount assumes amount <= price.
func statusForAmount(amount, price decimal.Decimal) Status {
	if amount.LessThan(price) {
		return StatusOffered
	}
	return StatusProcessing
}

func checkAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !a.Equal(a.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidInput)
	}
	return nil
}
