package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/shared-ride/internal/models"
)

const writeTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
}

// EventPublisher writes opportunity lifecycle events keyed by opportunity id, so the
// events of one opportunity stay ordered within a partition.
type EventPublisher struct {
	writer messageWriter
}

func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	return &EventPublisher{writer: newWriter(brokers, topic)}
}

func (p *EventPublisher) Publish(ctx context.Context, ev models.OpportunityEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.OpportunityID),
		Value:   b,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	})
}

func (p *EventPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// RequestPublisher writes pending-request changes keyed by request id.
type RequestPublisher struct {
	writer messageWriter
}

func NewRequestPublisher(brokers []string, topic string) *RequestPublisher {
	return &RequestPublisher{writer: newWriter(brokers, topic)}
}

func (p *RequestPublisher) PublishUpsert(ctx context.Context, c models.RideCandidate) error {
	return p.write(ctx, RequestMessage{Action: ActionUpsert, RequestID: c.RequestID, Candidate: &c})
}

func (p *RequestPublisher) PublishRemove(ctx context.Context, requestID string) error {
	return p.write(ctx, RequestMessage{Action: ActionRemove, RequestID: requestID})
}

func (p *RequestPublisher) write(ctx context.Context, m RequestMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode request message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(m.RequestID), Value: b})
}

func (p *RequestPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
