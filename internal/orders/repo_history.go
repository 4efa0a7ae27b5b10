package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// HistoryRepo persists offer events consumed from Kafka.
type HistoryRepo struct{ DB DBTX }

// AppendEvent is idempotent on event_id; it reports whether a row was written.
func (r *HistoryRepo) AppendEvent(ctx context.Context, e HistoryEntry) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO order_events(event_id, order_id, event_type, actor_id, status, amount, product_available, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.EventType, e.ActorID, string(e.Status), e.Amount.StringFixed(2), e.Available, e.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("append order event %s: %w", e.EventID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *HistoryRepo) ListHistory(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT event_id, order_id, event_type, actor_id, status, amount::text, product_available, occurred_at
		FROM order_events WHERE order_id = $1 ORDER BY occurred_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			h              HistoryEntry
			status, amount string
		)
		if err := rows.Scan(&h.EventID, &h.OrderID, &h.EventType, &h.ActorID, &status, &amount, &h.Available, &h.OccurredAt); err != nil {
			return nil, err
		}
		h.Status = Status(status)
		if h.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("event %s amount: %w", h.EventID, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
