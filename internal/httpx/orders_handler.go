package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-realtime-offers/internal/kafka"
	"github.com/ariefcatur/go-realtime-offers/internal/orders"
	"github.com/ariefcatur/go-realtime-offers/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type Reader interface {
	GetOrderView(ctx context.Context, id string, withDetails bool) (orders.OrderView, error)
	ListOrders(ctx context.Context, actor orders.Actor) ([]orders.Order, error)
}

type HistoryReader interface {
	ListHistory(ctx context.Context, orderID string) ([]orders.HistoryEntry, error)
}

type ViewCache interface {
	GetView(ctx context.Context, orderID string, full bool) (orders.OrderView, bool, error)
	Fence(ctx context.Context, orderID string) (redisx.ViewFence, error)
	SetView(ctx context.Context, v orders.OrderView, full bool, f redisx.ViewFence) (bool, error)
	InvalidateOrder(ctx context.Context, orderID string) error
	InvalidateProduct(ctx context.Context, productID string) error
	LookupIdempotent(ctx context.Context, buyerID, key string) (redisx.IdempotentEntry, bool, error)
	RememberIdempotent(ctx context.Context, buyerID, key string, e redisx.IdempotentEntry) error
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

type OrdersHandler struct {
	Engine   *orders.Engine
	Reader   Reader
	History  HistoryReader
	Cache    ViewCache
	Producer Publisher
	Service  string
	Log      *slog.Logger
}

type CreateOfferReq struct {
	ProductID string           `json:"product_id"`
	Amount    *decimal.Decimal `json:"amount"`
}

// fingerprint identifies the request an idempotency key was first used with.
func (req CreateOfferReq) fingerprint() string {
	amount := ""
	if req.Amount != nil {
		amount = req.Amount.StringFixed(2)
	}
	return req.ProductID + "|" + amount
}

var errIdempotencyReuse = fmt.Errorf("%w: idempotency key was used with a different request", orders.ErrConflict)

type UpdateOfferReq struct {
	Status *orders.Status   `json:"status"`
	Amount *decimal.Decimal `json:"amount"`
}

type CreateOfferResp struct {
	orders.Order
	Idempotent bool `json:"idempotent"`
}

const expandDetails = "order_detail"

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOffer)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}", h.updateOffer)
	r.Post("/orders/{id}/details", h.attachDetail)
	r.Get("/orders/{id}/history", h.getHistory)
}

func (h *OrdersHandler) createOffer(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, orders.RoleBuyer)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != orders.RoleBuyer {
		writeError(w, orders.ErrRoleMismatch)
		return
	}
	var req CreateOfferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.Cache != nil {
		if e, ok, _ := h.Cache.LookupIdempotent(ctx, actor.ID, idemKey); ok {
			if e.Request != req.fingerprint() {
				writeError(w, errIdempotencyReuse)
				return
			}
			if v, err := h.Reader.GetOrderView(ctx, e.OrderID, false); err == nil {
				writeJSON(w, http.StatusOK, CreateOfferResp{Order: v.Order(), Idempotent: true})
				return
			}
		}
	}

	o, err := h.Engine.CreateOffer(ctx, actor.ID, req.ProductID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Cache != nil {
		if idemKey != "" {
			_ = h.Cache.RememberIdempotent(ctx, actor.ID, idemKey, redisx.IdempotentEntry{
				OrderID: o.ID,
				Request: req.fingerprint(),
			})
		}
		// the product's availability may have flipped under sibling orders
		_ = h.Cache.InvalidateProduct(ctx, o.ProductID)
	}
	h.publish(r, orders.EventOfferCreated, actor.ID, o)

	writeJSON(w, http.StatusCreated, CreateOfferResp{Order: o})
}

func (h *OrdersHandler) updateOffer(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, "")
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateOfferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	var action orders.Action
	switch actor.Role {
	case orders.RoleVendor:
		if req.Amount != nil {
			writeMessage(w, http.StatusBadRequest, "amount cannot be set by the vendor")
			return
		}
		if req.Status == nil {
			writeMessage(w, http.StatusBadRequest, "status is required")
			return
		}
		action = orders.VendorAction{Status: *req.Status}
	case orders.RoleBuyer:
		if req.Status != nil {
			writeMessage(w, http.StatusBadRequest, "status cannot be set by the buyer")
			return
		}
		action = orders.BuyerAction{Amount: req.Amount}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.UpdateOffer(ctx, actor.ID, chi.URLParam(r, "id"), action)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.InvalidateProduct(ctx, o.ProductID)
		_ = h.Cache.InvalidateOrder(ctx, o.ID)
	}
	h.publish(r, orders.EventOfferUpdated, actor.ID, o)

	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, orders.RoleBuyer)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	full := r.URL.Query().Get("expand") == expandDetails

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.view(ctx, id, full)
	if err != nil {
		writeError(w, err)
		return
	}
	if !v.Participant(actor.ID) {
		writeError(w, orders.ErrRoleMismatch)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// view reads through the cache; Postgres stays the source of truth. The fence
// is taken before the read so a write committed meanwhile keeps the loaded
// view out of the cache.
func (h *OrdersHandler) view(ctx context.Context, id string, full bool) (orders.OrderView, error) {
	if h.Cache == nil {
		return h.Reader.GetOrderView(ctx, id, full)
	}
	if v, ok, err := h.Cache.GetView(ctx, id, full); err == nil && ok {
		return v, nil
	}
	fence, fenceErr := h.Cache.Fence(ctx, id)
	v, err := h.Reader.GetOrderView(ctx, id, full)
	if err != nil {
		return orders.OrderView{}, err
	}
	if fenceErr == nil {
		_, _ = h.Cache.SetView(ctx, v, full, fence)
	}
	return v, nil
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	if as := r.URL.Query().Get("as"); as != "" {
		r.Header.Set(HeaderActingAs, as)
	}
	actor, err := resolveActor(r, orders.RoleBuyer)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Reader.ListOrders(ctx, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) attachDetail(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, orders.RoleBuyer)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != orders.RoleBuyer {
		writeError(w, orders.ErrRoleMismatch)
		return
	}
	var d orders.OrderDetail
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err = h.Engine.AttachDetail(ctx, actor.ID, chi.URLParam(r, "id"), d)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.InvalidateOrder(ctx, d.OrderID)
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *OrdersHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, orders.RoleBuyer)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Reader.GetOrderView(ctx, id, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if !v.Participant(actor.ID) {
		writeError(w, orders.ErrRoleMismatch)
		return
	}
	entries, err := h.History.ListHistory(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []orders.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *OrdersHandler) publish(r *http.Request, eventType, actorID string, o orders.Order) {
	if h.Producer == nil {
		return
	}
	trace := r.Header.Get("X-Request-Id")
	if trace == "" {
		trace = middleware.GetReqID(r.Context())
	}
	ev, err := orders.NewOfferEnvelope(eventType, h.Service, trace, actorID, o)
	if err != nil {
		h.Log.Error("build offer event", slog.String("order_id", o.ID), slog.String("error", err.Error()))
		return
	}
	err = h.Producer.Publish(orders.TopicFor(eventType), orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(eventType, ev.EventVersion)...)
	if err != nil {
		// the order is committed; only the history trail misses this event
		h.Log.Warn("offer event dropped",
			slog.String("order_id", o.ID),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
