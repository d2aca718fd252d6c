package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/resilience"
	"github.com/rs/zerolog"
)

type namedWriter struct {
	name string
	w    Writer
}

// Sink fans a report out to several writers. Writers run one after another,
// each under the sink timeout; a failing writer does not stop the others.
type Sink struct {
	writers []namedWriter
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewSink creates an empty sink. m may be nil.
func NewSink(timeout time.Duration, m *metrics.Metrics) *Sink {
	return &Sink{
		timeout: timeout,
		metrics: m,
		logger:  logger.WithComponent("report-sink"),
	}
}

// Add registers w under name.
func (s *Sink) Add(name string, w Writer) *Sink {
	s.writers = append(s.writers, namedWriter{name: name, w: w})
	return s
}

// Save delivers rep to every writer and returns the joined failures.
func (s *Sink) Save(ctx context.Context, rep *evaluation.Report) error {
	var errs []error
	for _, nw := range s.writers {
		err := resilience.Bound(ctx, s.timeout, func(ctx context.Context) error {
			return nw.w.Save(ctx, rep)
		})
		status := "ok"
		if err != nil {
			status = "error"
			errs = append(errs, fmt.Errorf("%s: %w", nw.name, err))
			s.logger.Error().
				Str("sink", nw.name).
				Str("run_id", rep.RunID).
				Err(err).
				Msg("report delivery failed")
		}
		if s.metrics != nil {
			s.metrics.ReportsSavedTotal.WithLabelValues(nw.name, status).Inc()
		}
	}
	return errors.Join(errs...)
}
