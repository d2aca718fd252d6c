package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/spf13/cobra"
)

func (a *app) publishCmd() *cobra.Command {
	var input, runID string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Send the batches of a JSON Lines file to the decoded-batches topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if input == "" {
				input = a.dataPath(a.cfg.Data.TestFile)
			}
			if input == "" {
				return fmt.Errorf("no input: pass --input or set data.testFile")
			}
			src, err := dataset.OpenFile(input)
			if err != nil {
				return err
			}
			defer src.Close()

			events, err := passEvents(ctx, src, runID)
			if err != nil {
				return err
			}

			topic := a.cfg.Kafka.Topics.DecodedBatches
			producer := kafka.NewProducer(a.cfg.Kafka, topic)
			defer producer.Close()
			if err := publishChunked(ctx, producer, events, a.cfg.Data.BatchSize); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d messages to %s (run %s)\n",
				len(events), topic, events[0].Key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON Lines batch file (default data.testFile)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id stamped on every batch (default kept from the file, else generated)")
	return cmd
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// publishChunked writes events in order, at most size per producer call.
func publishChunked(ctx context.Context, p batchPublisher, events []kafka.Event, size int) error {
	size = max(size, 1)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		if err := p.PublishBatch(ctx, events[start:end]); err != nil {
			return fmt.Errorf("publishing batches %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// passEvents reads one pass from src and turns it into Kafka events keyed
// by run id, ending with a final marker unless the last batch already is
// one. Batches without a run id get runID, or a generated one.
func passEvents(ctx context.Context, src dataset.Source, runID string) ([]kafka.Event, error) {
	fallback := runID
	if fallback == "" {
		fallback = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}

	var events []kafka.Event
	var last dataset.Batch
	for {
		b, err := src.Next(ctx)
		if errors.Is(err, dataset.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, err
		}
		if runID != "" || b.RunID == "" {
			b.RunID = fallback
		}
		events = append(events, kafka.Event{Key: b.RunID, Value: b})
		last = *b
	}

	if len(events) == 0 || !last.Final {
		if last.RunID == "" {
			last.RunID = fallback
		}
		marker := dataset.Batch{RunID: last.RunID, Epoch: last.Epoch, Index: last.Index + 1, Final: true}
		if len(events) == 0 {
			marker.Index = 0
		}
		events = append(events, kafka.Event{Key: marker.RunID, Value: marker})
	}
	return events, nil
}
