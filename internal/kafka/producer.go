package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("producer closed")
	ErrProducerFull   = errors.New("producer buffer full")
)

const maxBatch = 100

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and hands them to an async writer from a single
// goroutine. Topic is taken per message so one producer serves every offer topic.
type Producer struct {
	w       messageWriter
	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *slog.Logger
}

func NewProducer(brokers []string, buf int, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	w.Completion = func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			logger.Error("kafka write failed",
				slog.String("topic", m.Topic),
				slog.String("key", string(m.Key)),
				slog.String("error", err.Error()),
			)
		}
	}
	return newProducer(w, buf, logger)
}

func newProducer(w messageWriter, buf int, logger *slog.Logger) *Producer {
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     logger,
	}
}

// Start drains the inbox until Close is called, handing over everything
// already queued in one call.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			batch := []kafka.Message{m}
		drain:
			for len(batch) < maxBatch {
				select {
				case next, ok := <-p.inbox:
					if !ok {
						break drain
					}
					batch = append(batch, next)
				default:
					break drain
				}
			}

			wctx := ctx
			if ctx.Err() != nil {
				// shutting down: still flush what is buffered
				wctx = context.Background()
			}
			if err := p.w.WriteMessages(wctx, batch...); err != nil {
				p.log.Error("kafka write failed",
					slog.Int("messages", len(batch)),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("kafka writer close", slog.String("error", err.Error()))
		}
	}()
}

// Publish enqueues a message without blocking. A full buffer or a closed
// producer is reported to the caller and the message is not sent.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}:
		return nil
	default:
		return ErrProducerFull
	}
}

// Close stops intake; the writer goroutine flushes the rest and exits.
// It is safe to call more than once and concurrently with Publish.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

func (p *Producer) WaitClosed() { <-p.closeCh }
