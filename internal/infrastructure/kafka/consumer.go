package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CartEventHandler applies one cart activity message. key is the cart id.
type CartEventHandler func(ctx context.Context, key, value []byte) error

// Consumer reads the cart activity topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6, // cart events are small
		// A new group replays the topic so tallies include carts still open.
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, logger: logger}
}

// Consume hands messages to handler until ctx is cancelled. A message the
// handler rejects is logged and skipped; it is not retried.
func (c *Consumer) Consume(ctx context.Context, handler CartEventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("failed to read cart event", zap.Error(err))
			continue
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Warn("skipping cart event", append(messageFields(msg), zap.Error(err))...)
			continue
		}
		if ce := c.logger.Check(zap.DebugLevel, "applied cart event"); ce != nil {
			ce.Write(messageFields(msg)...)
		}
	}
}

// messageFields names the cart and event a message carries. The payload is
// only peeked at, so an undecodable one still logs its position.
func messageFields(msg kafka.Message) []zap.Field {
	fields := []zap.Field{
		zap.String("cart_id", string(msg.Key)),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}
	var header struct {
		EventType string `json:"event_type"`
		Version   int    `json:"version"`
	}
	if json.Unmarshal(msg.Value, &header) == nil && header.EventType != "" {
		fields = append(fields,
			zap.String("event_type", header.EventType),
			zap.Int("version", header.Version))
	}
	return fields
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
