// Package history records offer events consumed from Kafka so that closed
// negotiations stay inspectable after the fact.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-realtime-offers/internal/kafka"
	"github.com/ariefcatur/go-realtime-offers/internal/orders"
	"github.com/ariefcatur/go-realtime-offers/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Recorder interface {
	AppendEvent(ctx context.Context, e orders.HistoryEntry) (bool, error)
}

type Service struct {
	Repo        Recorder
	Redis       *redis.Client
	ServiceName string
	Log         *slog.Logger
}

// HandleOfferEvent is installed as the consumer handler.
func (s *Service) HandleOfferEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and commit past it
		s.Log.Warn("undecodable offer event", slog.Int64("offset", m.Offset), slog.String("error", err.Error()))
		return nil
	}
	if env.EventType != orders.EventOfferCreated && env.EventType != orders.EventOfferUpdated {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OfferPayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad offer payload", slog.String("event_id", env.EventID), slog.String("error", err.Error()))
		return nil
	}

	// the insert is idempotent on event_id; Redis only short-circuits replays
	inserted, err := s.Repo.AppendEvent(ctx, p.HistoryEntry(env))
	if err != nil {
		return err
	}
	if _, err := redisx.MarkOnce(ctx, s.Redis, dkey); err != nil {
		s.Log.Warn("dedup mark failed", slog.String("event_id", env.EventID), slog.String("error", err.Error()))
	}

	s.Log.Debug("offer event recorded",
		slog.String("event_id", env.EventID),
		slog.String("order_id", p.OrderID),
		slog.String("status", string(p.Status)),
		slog.Bool("inserted", inserted),
	)
	return nil
}
