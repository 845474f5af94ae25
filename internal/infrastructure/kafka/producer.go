package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/tree-shop/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

// Producer publishes cart activity keyed by cart id, so every event of one
// cart lands on the same partition in the order it was recorded.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

// Publish writes one event. Recorded cart events also carry their type and
// version as headers so consumers can filter without decoding the value.
func (p *Producer) Publish(ctx context.Context, cartID string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode cart event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(cartID),
		Value: value,
		Time:  time.Now(),
	}
	if e, ok := event.(store.Event); ok {
		msg.Headers = eventHeaders(e)
		msg.Time = e.Timestamp
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish cart event for %s: %w", cartID, err)
	}
	return nil
}

func eventHeaders(e store.Event) []kafka.Header {
	return []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		{Key: "version", Value: []byte(fmt.Sprint(e.Version))},
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
