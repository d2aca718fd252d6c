package evaluation

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Report is the outcome of one evaluation pass.
type Report struct {
	RunID          string         `json:"run_id"`
	Epoch          int            `json:"epoch"`
	Profile        string         `json:"profile,omitempty"`
	Smoothing      string         `json:"smoothing"`
	BLEU           *Aggregate     `json:"bleu,omitempty"`
	Perplexity     *float64       `json:"perplexity,omitempty"`
	Batches        int            `json:"batches"`
	ExamplesScored int            `json:"examples_scored"`
	Skipped        map[string]int `json:"examples_skipped,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// SkippedTotal returns the number of skipped examples over all reasons.
func (r *Report) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Format writes the report in the evaluation script's text layout:
//
//	epoch 9 perplexity=57.3
//	epoch 9:
//	 -- bleu-1 prec=0.41, recall=0.52
//	...
func (r *Report) Format(w io.Writer) error {
	var b strings.Builder
	if r.Perplexity != nil {
		fmt.Fprintf(&b, "epoch %d perplexity=%s\n", r.Epoch, formatFloat(*r.Perplexity))
	}
	if r.BLEU != nil {
		fmt.Fprintf(&b, "epoch %d:\n", r.Epoch)
		for o := range r.BLEU.Precision {
			fmt.Fprintf(&b, " -- bleu-%d prec=%s, recall=%s\n",
				o+1, formatFloat(r.BLEU.Precision[o]), formatFloat(r.BLEU.Recall[o]))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// formatFloat renders v as the shortest round-tripping decimal, keeping a
// trailing ".0" on integral values and switching to exponent form outside
// [1e-4, 1e16).
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
