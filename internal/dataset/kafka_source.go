package dataset

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/rs/zerolog"
)

// Fetcher is the part of kafka.Consumer the Kafka source needs.
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// KafkaSource reads batches published to the decoded-batches topic. A
// message is committed once the caller asks for the batch after it, so a
// crash mid-batch replays that batch. Each pass ends at a final batch, or
// at the first message keyed with a different run when the final batch
// never arrived; that message opens the next pass. The same KafkaSource is
// reused with Reset for the next pass.
type KafkaSource struct {
	fetcher Fetcher
	pending *kafka.Message
	// carry is a message of the next run, fetched but not yet handed out.
	carry  *kafka.Message
	runKey string
	pass   passState
	logger zerolog.Logger
}

// NewKafkaSource wraps fetcher.
func NewKafkaSource(fetcher Fetcher) *KafkaSource {
	return &KafkaSource{
		fetcher: fetcher,
		logger:  logger.WithComponent("kafka-source"),
	}
}

// Reset starts a new pass.
func (s *KafkaSource) Reset() {
	s.pass = passState{}
	s.runKey = ""
}

func (s *KafkaSource) Next(ctx context.Context) (*Batch, error) {
	if err := s.commitPending(ctx); err != nil {
		return nil, err
	}
	if s.pass.done {
		return nil, ErrEndOfStream
	}
	for {
		msg, err := s.fetch(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if key := string(msg.Key); key != "" {
			if s.runKey != "" && key != s.runKey {
				s.logger.Warn().
					Str("run_key", s.runKey).
					Str("next_run_key", key).
					Int64("offset", msg.Offset).
					Msg("run ended without a final batch")
				s.carry = &msg
				s.pass.done = true
				return nil, ErrEndOfStream
			}
			s.runKey = key
		}
		b, err := kafka.DecodeJSON[Batch](msg.Value)
		if err != nil {
			s.logger.Error().
				Str("run_key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Err(err).
				Msg("skipping undecodable batch")
			if err := s.fetcher.Commit(ctx, msg); err != nil {
				return nil, err
			}
			continue
		}
		s.pending = &msg
		batch, err := s.pass.admit(&b)
		if err != nil {
			// The final marker carries no data; commit it right away.
			if cErr := s.commitPending(ctx); cErr != nil {
				return nil, cErr
			}
		}
		return batch, err
	}
}

func (s *KafkaSource) fetch(ctx context.Context) (kafka.Message, error) {
	if s.carry != nil {
		msg := *s.carry
		s.carry = nil
		return msg, nil
	}
	return s.fetcher.Fetch(ctx)
}

// Flush commits the last batch handed out, if any.
func (s *KafkaSource) Flush(ctx context.Context) error {
	return s.commitPending(ctx)
}

func (s *KafkaSource) commitPending(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	if err := s.fetcher.Commit(ctx, *s.pending); err != nil {
		return fmt.Errorf("committing batch at offset %d: %w", s.pending.Offset, err)
	}
	s.pending = nil
	return nil
}
