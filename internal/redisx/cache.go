package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-offers/internal/orders"
	"github.com/redis/go-redis/v9"
)

// Cache holds order read projections and create idempotency keys.
// Postgres stays the source of truth; every method is best effort for callers.
type Cache struct{ RDB *redis.Client }

func viewKey(orderID string, full bool) string {
	if full {
		return fmt.Sprintf(KeyOrderViewFull, orderID)
	}
	return fmt.Sprintf(KeyOrderView, orderID)
}

func (c *Cache) GetView(ctx context.Context, orderID string, full bool) (orders.OrderView, bool, error) {
	b, err := c.RDB.Get(ctx, viewKey(orderID, full)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.OrderView{}, false, nil
	}
	if err != nil {
		return orders.OrderView{}, false, err
	}
	var v orders.OrderView
	if err := json.Unmarshal(b, &v); err != nil {
		return orders.OrderView{}, false, err
	}
	return v, true, nil
}

// ViewFence captures the invalidation counters an order view depends on. It
// is read before the view is loaded from Postgres and checked when the view is
// stored, so a load that raced a write is never cached.
type ViewFence struct {
	OrderGen   string
	ProductID  string
	ProductGen string
}

func (c *Cache) Fence(ctx context.Context, orderID string) (ViewFence, error) {
	var f ViewFence
	var err error
	if f.OrderGen, err = c.genOf(ctx, fmt.Sprintf(KeyOrderGen, orderID)); err != nil {
		return ViewFence{}, err
	}
	pid, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderProduct, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		// product not learned yet: the next SetView only records it
		return f, nil
	}
	if err != nil {
		return ViewFence{}, err
	}
	f.ProductID = pid
	if f.ProductGen, err = c.genOf(ctx, fmt.Sprintf(KeyProductGen, pid)); err != nil {
		return ViewFence{}, err
	}
	return f, nil
}

func (c *Cache) genOf(ctx context.Context, key string) (string, error) {
	g, err := c.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return g, err
}

// KEYS: view, order gen, product gen, product index, order->product
// ARGV: payload, view ttl ms, fenced order gen, fenced product gen, order id, product id, mapping ttl ms
var setViewScript = redis.NewScript(`
redis.call('SET', KEYS[5], ARGV[6], 'PX', ARGV[7])
if ARGV[4] == '' then
  return 0
end
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[3] then
  return 0
end
if (redis.call('GET', KEYS[3]) or '0') ~= ARGV[4] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[4], ARGV[5])
redis.call('PEXPIRE', KEYS[4], ARGV[2])
return 1
`)

// SetView caches v and indexes it under its product so that an availability
// change can drop every view embedding the stale preview. Nothing is stored
// when either counter moved since f was taken; the result reports whether v
// was cached.
func (c *Cache) SetView(ctx context.Context, v orders.OrderView, full bool, f ViewFence) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	productGen := f.ProductGen
	if f.ProductID != v.Product.ID {
		productGen = ""
	}
	keys := []string{
		viewKey(v.ID, full),
		fmt.Sprintf(KeyOrderGen, v.ID),
		fmt.Sprintf(KeyProductGen, v.Product.ID),
		fmt.Sprintf(KeyProductOrders, v.Product.ID),
		fmt.Sprintf(KeyOrderProduct, v.ID),
	}
	n, err := setViewScript.Run(ctx, c.RDB, keys,
		string(b),
		TTLViewCache.Milliseconds(),
		f.OrderGen,
		productGen,
		v.ID,
		v.Product.ID,
		TTLOrderProduct.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateOrder drops both projections of an order and fails any load
// still in flight for it.
func (c *Cache) InvalidateOrder(ctx context.Context, orderID string) error {
	gen := fmt.Sprintf(KeyOrderGen, orderID)
	_, err := c.RDB.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		pipe.Expire(ctx, gen, TTLViewGen)
		pipe.Del(ctx, viewKey(orderID, false), viewKey(orderID, true))
		return nil
	})
	return err
}

// InvalidateProduct drops the views of every cached order on productID. The
// product counter moves first so no load that started earlier can re-add one.
func (c *Cache) InvalidateProduct(ctx context.Context, productID string) error {
	gen := fmt.Sprintf(KeyProductGen, productID)
	if _, err := c.RDB.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		pipe.Expire(ctx, gen, TTLViewGen)
		return nil
	}); err != nil {
		return err
	}
	idx := fmt.Sprintf(KeyProductOrders, productID)
	ids, err := c.RDB.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, 2*len(ids)+1)
	for _, id := range ids {
		keys = append(keys, viewKey(id, false), viewKey(id, true))
	}
	keys = append(keys, idx)
	return c.RDB.Del(ctx, keys...).Err()
}

// IdempotentEntry is what a create idempotency key resolves to. Request is a
// fingerprint of the body the key was first used with.
type IdempotentEntry struct {
	OrderID string
	Request string
}

func (c *Cache) LookupIdempotent(ctx context.Context, buyerID, key string) (IdempotentEntry, bool, error) {
	m, err := c.RDB.HGetAll(ctx, fmt.Sprintf(KeyIdemOfferCreate, buyerID, key)).Result()
	if err != nil {
		return IdempotentEntry{}, false, err
	}
	id, ok := m["order_id"]
	if !ok {
		return IdempotentEntry{}, false, nil
	}
	return IdempotentEntry{OrderID: id, Request: m["request"]}, true, nil
}

func (c *Cache) RememberIdempotent(ctx context.Context, buyerID, key string, e IdempotentEntry) error {
	k := fmt.Sprintf(KeyIdemOfferCreate, buyerID, key)
	_, err := c.RDB.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "order_id", e.OrderID, "request", e.Request)
		pipe.Expire(ctx, k, TTLIdempotency)
		return nil
	})
	return err
}
