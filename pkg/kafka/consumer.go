// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer hands out messages one at a time and commits them on request.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Message is a fetched Kafka message.
type Message = kafka.Message

// Consumer reads messages from a Kafka topic within a consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

// NewConsumer creates a Consumer for the given topic. New groups start from
// the earliest offset so a pass published before the consumer joined is
// still evaluated.
func NewConsumer(cfg config.KafkaConfig, topic string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	l := logger.WithComponent("kafka-consumer")
	return &Consumer{
		reader: r,
		logger: l.With().Str("topic", topic).Logger(),
	}
}

// Fetch blocks until the next message is available or ctx is done. The
// message is not committed.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("fetching kafka message: %w", err)
	}
	c.logger.Debug().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Int("value_size", len(msg.Value)).
		Msg("message received")
	return msg, nil
}

// Commit marks msg as processed for the consumer group.
func (c *Consumer) Commit(ctx context.Context, msg Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Err(err).
			Msg("failed to commit message")
		return fmt.Errorf("committing kafka message: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
