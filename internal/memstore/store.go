// Package memstore is an in-process implementation of the order store.
// Transactions are serialized by a single mutex and staged on copies, so a
// failed transaction leaves no partial writes behind.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/ariefcatur/go-realtime-offers/internal/orders"
)

type Store struct {
	mu       sync.Mutex
	parties  map[string]string
	products map[string]orders.Product
	orders   map[string]orders.Order
	details  map[string][]orders.OrderDetail
	history  []orders.HistoryEntry
}

func New() *Store {
	return &Store{
		parties:  map[string]string{},
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		details:  map[string][]orders.OrderDetail{},
	}
}

func (s *Store) AddParty(id, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[id] = displayName
}

func (s *Store) AddProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) Order(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		products: maps.Clone(s.products),
		orders:   maps.Clone(s.orders),
		details:  maps.Clone(s.details),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.products, s.orders, s.details = t.products, t.orders, t.details
	return nil
}

func (s *Store) GetOrderView(_ context.Context, id string, withDetails bool) (orders.OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return orders.OrderView{}, orders.ErrOrderMissing
	}
	p := s.products[o.ProductID]
	v := orders.OrderView{
		ID:        o.ID,
		Product:   orders.ProductPreview{ID: p.ID, Title: p.Title, Price: p.Price, IsAvailable: p.IsAvailable},
		Vendor:    orders.PartyPreview{ID: o.VendorID, DisplayName: s.parties[o.VendorID]},
		Buyer:     orders.PartyPreview{ID: o.BuyerID, DisplayName: s.parties[o.BuyerID]},
		Status:    o.Status,
		Amount:    o.Amount,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if withDetails {
		v.Details = slices.Clone(s.details[o.ID])
	}
	return v, nil
}

func (s *Store) ListOrders(_ context.Context, actor orders.Actor) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orders.Order
	for _, o := range s.orders {
		if (actor.Role == orders.RoleBuyer && o.BuyerID == actor.ID) ||
			(actor.Role == orders.RoleVendor && o.VendorID == actor.ID) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendEvent(_ context.Context, e orders.HistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.EventID == e.EventID {
			return false, nil
		}
	}
	s.history = append(s.history, e)
	return true, nil
}

func (s *Store) ListHistory(_ context.Context, orderID string) ([]orders.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.HistoryEntry
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

type tx struct {
	products map[string]orders.Product
	orders   map[string]orders.Order
	details  map[string][]orders.OrderDetail
}

func (t *tx) LockProduct(_ context.Context, productID string) (orders.Product, error) {
	p, ok := t.products[productID]
	if !ok {
		return orders.Product{}, orders.ErrProductMissing
	}
	return p, nil
}

func (t *tx) FindStandingOrder(_ context.Context, buyerID, productID string) (orders.Order, bool, error) {
	for _, o := range t.orders {
		if o.BuyerID == buyerID && o.ProductID == productID {
			return o, true, nil
		}
	}
	return orders.Order{}, false, nil
}

func (t *tx) CreateOrder(ctx context.Context, o orders.Order) error {
	if _, exists, _ := t.FindStandingOrder(ctx, o.BuyerID, o.ProductID); exists {
		return orders.ErrDuplicateOrder
	}
	t.orders[o.ID] = o
	return nil
}

func (t *tx) LockOrder(ctx context.Context, orderID string) (orders.Order, orders.Product, error) {
	o, ok := t.orders[orderID]
	if !ok {
		return orders.Order{}, orders.Product{}, orders.ErrOrderMissing
	}
	p, err := t.LockProduct(ctx, o.ProductID)
	if err != nil {
		return orders.Order{}, orders.Product{}, err
	}
	return o, p, nil
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.orders[o.ID]; !ok {
		return orders.ErrOrderMissing
	}
	t.orders[o.ID] = o
	return nil
}

func (t *tx) SetProductAvailability(_ context.Context, productID string, available bool) error {
	p, ok := t.products[productID]
	if !ok {
		return orders.ErrProductMissing
	}
	p.IsAvailable = available
	t.products[productID] = p
	return nil
}

func (t *tx) InsertDetail(_ context.Context, d orders.OrderDetail) error {
	t.details[d.OrderID] = append(slices.Clone(t.details[d.OrderID]), d)
	return nil
}
