package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
}

// Order is one negotiation thread between a buyer and a product.
type Order struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product"`
	BuyerID   string          `json:"buyer"`
	VendorID  string          `json:"vendor"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderDetail struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phone_number"`
	Country        string    `json:"country"`
	Zipcode        string    `json:"zipcode"`
	TownOrCity     string    `json:"town_or_city"`
	StreetAddress1 string    `json:"street_address1"`
	StreetAddress2 string    `json:"street_address2"`
	County         string    `json:"county"`
	StripePID      string    `json:"stripe_pid"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type PartyPreview struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type ProductPreview struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
}

// OrderView is the read projection of an order with nested previews.
// Details is only populated when requested.
type OrderView struct {
	ID        string          `json:"id"`
	Product   ProductPreview  `json:"product"`
	Vendor    PartyPreview    `json:"vendor"`
	Buyer     PartyPreview    `json:"buyer"`
	Status    Status          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Details   []OrderDetail   `json:"order_detail,omitempty"`
}

// HistoryEntry is one recorded offer event.
type HistoryEntry struct {
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id"`
	EventType  string          `json:"event_type"`
	ActorID    string          `json:"actor_id"`
	Status     Status          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Available  bool            `json:"product_available"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Order flattens the view back to the stored order fields.
func (v OrderView) Order() Order {
	return Order{
		ID:        v.ID,
		ProductID: v.Product.ID,
		BuyerID:   v.Buyer.ID,
		VendorID:  v.Vendor.ID,
		Amount:    v.Amount,
		Status:    v.Status,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// Participant reports whether actorID takes part in the order in any role.
func (v OrderView) Participant(actorID string) bool {
	return actorID != "" && (v.Buyer.ID == actorID || v.Vendor.ID == actorID)
}
