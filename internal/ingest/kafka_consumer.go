package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/observability"
)

const maxBackoff = 30 * time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RequestConsumer applies the requests topic to a GeoStore.
type RequestConsumer struct {
	reader   messageReader
	store    geo.GeoStore
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func NewRequestConsumer(brokers []string, topic, group string, store geo.GeoStore, logger *slog.Logger) *RequestConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	return newRequestConsumer(r, store, logger)
}

func newRequestConsumer(r messageReader, store geo.GeoStore, logger *slog.Logger) *RequestConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestConsumer{reader: r, store: store, attempts: 3, delay: 200 * time.Millisecond, logger: logger}
}

// Run reads until ctx is done. Read errors back off exponentially; bad messages and
// store failures are logged and skipped so one request cannot stall the topic.
func (c *RequestConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		c.Handle(ctx, m.Value)
	}
}

// Handle decodes and applies one message and reports whether it was applied.
func (c *RequestConsumer) Handle(ctx context.Context, value []byte) bool {
	msg, err := DecodeRequest(value)
	if err != nil {
		observability.RequestsConsumed.WithLabelValues("invalid").Inc()
		c.logger.Warn("invalid ride request message", "error", err)
		return false
	}
	if err := applyWithRetry(ctx, c.store, msg, c.attempts, c.delay); err != nil {
		observability.RequestsConsumed.WithLabelValues("failed").Inc()
		c.logger.Error("ride request update failed", "request_id", msg.RequestID, "error", err)
		return false
	}
	observability.RequestsConsumed.WithLabelValues("applied").Inc()
	observability.RequestWrites.WithLabelValues("consumer", string(msg.Action)).Inc()
	return true
}

func (c *RequestConsumer) Close() error {
	return c.reader.Close()
}

// applyWithRetry writes msg to the store, doubling delay between failed attempts.
func applyWithRetry(ctx context.Context, store geo.GeoStore, msg RequestMessage, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		switch msg.Action {
		case ActionUpsert:
			err = store.Upsert(ctx, *msg.Candidate)
		case ActionRemove:
			err = store.Remove(ctx, msg.RequestID)
		default:
			return ErrInvalidMessage
		}
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
