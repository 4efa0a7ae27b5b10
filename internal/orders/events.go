package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOfferCreated = "OfferCreated"
	EventOfferUpdated = "OfferUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OfferPayload is shared by OfferCreated and OfferUpdated.
type OfferPayload struct {
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	BuyerID          string          `json:"buyer_id"`
	VendorID         string          `json:"vendor_id"`
	ActorID          string          `json:"actor_id"`
	Status           Status          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	ProductAvailable bool            `json:"product_available"`
}

// NewOfferEnvelope builds a v1 envelope for a committed order state. The
// event occurs when the state was committed, not when it is published.
func NewOfferEnvelope(eventType, producer, traceID, actorID string, o Order) (Envelope, error) {
	payload, err := json.Marshal(OfferPayload{
		OrderID:          o.ID,
		ProductID:        o.ProductID,
		BuyerID:          o.BuyerID,
		VendorID:         o.VendorID,
		ActorID:          actorID,
		Status:           o.Status,
		Amount:           o.Amount,
		ProductAvailable: o.Status.KeepsAvailable(),
	})
	if err != nil {
		return Envelope{}, err
	}
	occurred := o.UpdatedAt.UTC()
	if o.UpdatedAt.IsZero() {
		occurred = time.Now().UTC()
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    occurred,
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload:       payload,
	}, nil
}

// HistoryEntry converts a decoded offer event into a history row.
func (p OfferPayload) HistoryEntry(env Envelope) HistoryEntry {
	return HistoryEntry{
		EventID:    env.EventID,
		OrderID:    p.OrderID,
		EventType:  env.EventType,
		ActorID:    p.ActorID,
		Status:     p.Status,
		Amount:     p.Amount,
		Available:  p.ProductAvailable,
		OccurredAt: env.OccurredAt,
	}
}
