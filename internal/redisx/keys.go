package redisx

import "time"

const (
	// Create idempotency: idem:offer:create:{buyer_id}:{idempotency_key} -> hash{order_id, request}
	KeyIdemOfferCreate = "idem:offer:create:%s:%s"

	// Order read projection: order_view:{order_id} and order_view:{order_id}:full
	KeyOrderView     = "order_view:%s"
	KeyOrderViewFull = "order_view:%s:full"

	// Orders whose views embed a product preview: product_orders:{product_id} -> set of order_id
	KeyProductOrders = "product_orders:%s"

	// Invalidation counters checked before a view is stored.
	KeyOrderGen   = "view_gen:order:%s"
	KeyProductGen = "view_gen:product:%s"

	// Product an order was placed on: order_product:{order_id} -> product_id
	KeyOrderProduct = "order_product:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLViewCache    = 5 * time.Minute
	TTLViewGen      = time.Hour
	TTLOrderProduct = 24 * time.Hour
	TTLDedup        = 48 * time.Hour
)
