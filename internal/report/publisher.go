package report

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/resilience"
	"github.com/rs/zerolog"
)

// EventPublisher is the part of kafka.Producer the publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher sends reports to the evaluation-reports topic, keyed by run id
// so that one run's epochs stay ordered. Writes are retried and guarded by
// a circuit breaker so a dead broker does not stall evaluation.
type Publisher struct {
	producer EventPublisher
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	logger   zerolog.Logger
}

// NewPublisher wraps producer. m may be nil.
func NewPublisher(producer EventPublisher, m *metrics.Metrics) *Publisher {
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 3}
	if m != nil {
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Publisher{
		producer: producer,
		breaker:  resilience.NewCircuitBreaker("report-publisher", cbCfg),
		logger:   logger.WithComponent("report-publisher"),
	}
}

// Save publishes rep.
func (p *Publisher) Save(ctx context.Context, rep *evaluation.Report) error {
	event := kafka.Event{Key: rep.RunID, Value: rep}
	err := resilience.Retry(ctx, "publish-report", p.retry, func() error {
		return p.breaker.Execute(func() error {
			return p.producer.Publish(ctx, event)
		})
	})
	if err != nil {
		return fmt.Errorf("publishing report %s: %w", rep.RunID, err)
	}
	p.logger.Info().Str("run_id", rep.RunID).Int("epoch", rep.Epoch).Msg("report published")
	return nil
}
