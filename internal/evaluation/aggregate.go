// Package evaluation turns decoded beams and their references into BLEU
// precision/recall aggregates and runs whole evaluation passes over a batch
// source.
//
// For one example every (candidate, reference) pair is scored at BLEU-1..4.
// Precision takes, per candidate, its best score over the references and
// averages over candidates; recall takes, per reference, its best score over
// the candidates and averages over references. Corpus figures are plain
// means of the per-example figures.
package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/bleu"
)

var (
	// ErrDegenerateExample is returned for an example with no candidates or
	// no references. Such examples contribute nothing to a corpus.
	ErrDegenerateExample = errors.New("degenerate example")
	// ErrNoExamples is returned when a corpus aggregate has no inputs.
	ErrNoExamples = errors.New("no examples to aggregate")
)

// Aggregate holds per-order BLEU precision and recall; index n-1 is BLEU-n.
type Aggregate struct {
	Precision [bleu.Orders]float64 `json:"precision"`
	Recall    [bleu.Orders]float64 `json:"recall"`
}

// PairScorer produces the five BLEU values of bleu.Bleus for one pair.
type PairScorer interface {
	ScorePair(ctx context.Context, reference, candidate []int) ([bleu.Orders + 1]float64, error)
}

// BLEUScorer scores pairs directly. A nil Smooth uses method 7.
type BLEUScorer struct {
	Smooth bleu.Smoother
}

func (s BLEUScorer) ScorePair(_ context.Context, reference, candidate []int) ([bleu.Orders + 1]float64, error) {
	smooth := s.Smooth
	if smooth == nil {
		smooth = bleu.Method7
	}
	return bleu.BleusWith(reference, candidate, smooth), nil
}

// AggregateExample scores beam against references with method 7 smoothing.
func AggregateExample(beam, references [][]int) (Aggregate, error) {
	return ScoreExample(context.Background(), BLEUScorer{}, beam, references)
}

// ScoreExample is AggregateExample with a caller-supplied pair scorer.
func ScoreExample(ctx context.Context, scorer PairScorer, beam, references [][]int) (Aggregate, error) {
	if reason := DegenerateReason(beam, references); reason != "" {
		return Aggregate{}, fmt.Errorf("%w: %s", ErrDegenerateExample, reason)
	}

	// scores[order][candidate][reference], dropping the repeated unigram.
	var scores [bleu.Orders][][]float64
	for o := range scores {
		scores[o] = make([][]float64, len(beam))
		for j := range beam {
			scores[o][j] = make([]float64, len(references))
		}
	}
	for j, cand := range beam {
		for i, ref := range references {
			v, err := scorer.ScorePair(ctx, ref, cand)
			if err != nil {
				return Aggregate{}, fmt.Errorf("scoring candidate %d against reference %d: %w", j, i, err)
			}
			for o := range scores {
				scores[o][j][i] = v[o+1]
			}
		}
	}

	var agg Aggregate
	for o, grid := range scores {
		agg.Precision[o] = meanOfRowMax(grid)
		agg.Recall[o] = meanOfColumnMax(grid)
	}
	return agg, nil
}

// DegenerateReason returns "empty_beam" or "no_references" for examples that
// cannot be scored, and "" otherwise.
func DegenerateReason(beam, references [][]int) string {
	switch {
	case len(beam) == 0:
		return "empty_beam"
	case len(references) == 0:
		return "no_references"
	}
	return ""
}

func meanOfRowMax(grid [][]float64) float64 {
	var sum float64
	for _, row := range grid {
		best := row[0]
		for _, v := range row[1:] {
			best = max(best, v)
		}
		sum += best
	}
	return sum / float64(len(grid))
}

func meanOfColumnMax(grid [][]float64) float64 {
	cols := len(grid[0])
	var sum float64
	for c := 0; c < cols; c++ {
		best := grid[0][c]
		for _, row := range grid[1:] {
			best = max(best, row[c])
		}
		sum += best
	}
	return sum / float64(cols)
}

// AggregateCorpus averages per-example aggregates order by order.
func AggregateCorpus(aggregates []Aggregate) (Aggregate, error) {
	var acc Accumulator
	for _, a := range aggregates {
		acc.Add(a)
	}
	return acc.Result()
}

// Accumulator collects per-example aggregates during one pass. It is owned
// by a single evaluation loop and is not safe for concurrent use.
type Accumulator struct {
	precision [bleu.Orders][]float64
	recall    [bleu.Orders][]float64
}

func (a *Accumulator) Add(agg Aggregate) {
	for o := 0; o < bleu.Orders; o++ {
		a.precision[o] = append(a.precision[o], agg.Precision[o])
		a.recall[o] = append(a.recall[o], agg.Recall[o])
	}
}

// Len returns the number of aggregates added.
func (a *Accumulator) Len() int {
	return len(a.precision[0])
}

// Result returns the per-order means, or ErrNoExamples when nothing was added.
func (a *Accumulator) Result() (Aggregate, error) {
	if a.Len() == 0 {
		return Aggregate{}, ErrNoExamples
	}
	var out Aggregate
	for o := 0; o < bleu.Orders; o++ {
		out.Precision[o] = mean(a.precision[o])
		out.Recall[o] = mean(a.recall[o])
	}
	return out, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
