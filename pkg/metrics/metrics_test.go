package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
		return sum
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BatchesTotal.Inc()
	m.ExamplesSkippedTotal.WithLabelValues("empty_beam").Add(2)
	m.BLEUPrecision.WithLabelValues("1").Set(0.5)

	if got := gathered(t, reg, "evaluation_batches_total"); got != 1 {
		t.Errorf("expected 1 batch, got %v", got)
	}
	if got := gathered(t, reg, "evaluation_examples_skipped_total"); got != 2 {
		t.Errorf("expected 2 skipped, got %v", got)
	}
	if got := gathered(t, reg, "evaluation_bleu_precision"); got != 0.5 {
		t.Errorf("expected precision 0.5, got %v", got)
	}
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
