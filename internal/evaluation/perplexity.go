package evaluation

import "math"

// PerplexityMeter averages per-batch perplexity, exp(mean cross-entropy).
type PerplexityMeter struct {
	values []float64
}

// Observe records one batch loss.
func (m *PerplexityMeter) Observe(loss float64) {
	m.values = append(m.values, math.Exp(loss))
}

// Mean returns the mean perplexity and whether any loss was observed.
func (m *PerplexityMeter) Mean() (float64, bool) {
	if len(m.values) == 0 {
		return 0, false
	}
	return mean(m.values), true
}
