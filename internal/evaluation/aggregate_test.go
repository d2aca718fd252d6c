package evaluation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/bleu"
)

const tol = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < tol }

// BLEU of candidate [1 2] against reference [1 2 3], orders 1..4.
var prefixScores = [bleu.Orders]float64{0.8087075462835112, 0.4857599025554807, 0.18294071835364234, 0.06798715639626371}

func TestAggregateExampleSinglePair(t *testing.T) {
	agg, err := AggregateExample([][]int{{1, 2}}, [][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("AggregateExample: %v", err)
	}
	for o := 0; o < bleu.Orders; o++ {
		if !approx(agg.Precision[o], prefixScores[o]) || !approx(agg.Recall[o], prefixScores[o]) {
			t.Errorf("BLEU-%d: expected %v for both, got prec=%v recall=%v",
				o+1, prefixScores[o], agg.Precision[o], agg.Recall[o])
		}
	}
}

func TestAggregateExampleTwoCandidates(t *testing.T) {
	agg, err := AggregateExample([][]int{{1, 2}, {4, 5}}, [][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("AggregateExample: %v", err)
	}
	if !approx(agg.Precision[0], 0.4043537731417556) {
		t.Errorf("expected BLEU-1 precision 0.4043537731417556, got %v", agg.Precision[0])
	}
	if !approx(agg.Recall[0], 0.8087075462835112) {
		t.Errorf("expected BLEU-1 recall 0.8087075462835112, got %v", agg.Recall[0])
	}
	for o := 0; o < bleu.Orders; o++ {
		if !approx(agg.Precision[o], prefixScores[o]/2) {
			t.Errorf("BLEU-%d: expected precision %v, got %v", o+1, prefixScores[o]/2, agg.Precision[o])
		}
	}
}

func TestAggregateExampleSelfMatch(t *testing.T) {
	agg, err := AggregateExample([][]int{{4, 8, 15, 16, 23}}, [][]int{{4, 8, 15, 16, 23}})
	if err != nil {
		t.Fatalf("AggregateExample: %v", err)
	}
	if !approx(agg.Precision[0], 1) || !approx(agg.Recall[0], 1) {
		t.Errorf("expected BLEU-1 of 1, got prec=%v recall=%v", agg.Precision[0], agg.Recall[0])
	}
}

func TestAggregateExampleOrderIndependent(t *testing.T) {
	beam := [][]int{{1, 2}, {3, 1, 2}, {9}}
	refs := [][]int{{1, 2, 3}, {2, 3, 1, 2}}
	want, err := AggregateExample(beam, refs)
	if err != nil {
		t.Fatal(err)
	}
	got, err := AggregateExample(
		[][]int{beam[2], beam[0], beam[1]},
		[][]int{refs[1], refs[0]},
	)
	if err != nil {
		t.Fatal(err)
	}
	for o := 0; o < bleu.Orders; o++ {
		if !approx(got.Precision[o], want.Precision[o]) || !approx(got.Recall[o], want.Recall[o]) {
			t.Errorf("BLEU-%d changed under permutation: %+v vs %+v", o+1, got, want)
		}
	}
}

func TestAggregateExampleBounds(t *testing.T) {
	agg, err := AggregateExample([][]int{{1, 2, 2}, {}, {7, 7}}, [][]int{{2, 2, 1}, {7}})
	if err != nil {
		t.Fatal(err)
	}
	for o := 0; o < bleu.Orders; o++ {
		for _, v := range []float64{agg.Precision[o], agg.Recall[o]} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Errorf("BLEU-%d value %v outside [0,1]", o+1, v)
			}
		}
	}
}

func TestAggregateExampleDegenerate(t *testing.T) {
	tests := []struct {
		name       string
		beam, refs [][]int
		reason     string
	}{
		{"empty beam", nil, [][]int{{1}}, "empty_beam"},
		{"no references", [][]int{{1}}, nil, "no_references"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AggregateExample(tt.beam, tt.refs)
			if !errors.Is(err, ErrDegenerateExample) {
				t.Fatalf("expected ErrDegenerateExample, got %v", err)
			}
			if got := DegenerateReason(tt.beam, tt.refs); got != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, got)
			}
		})
	}
}

type failingScorer struct{}

func (failingScorer) ScorePair(context.Context, []int, []int) ([bleu.Orders + 1]float64, error) {
	return [bleu.Orders + 1]float64{}, errors.New("boom")
}

func TestScoreExamplePropagatesScorerError(t *testing.T) {
	if _, err := ScoreExample(context.Background(), failingScorer{}, [][]int{{1}}, [][]int{{1}}); err == nil {
		t.Fatal("expected the scorer error")
	}
}

func TestAggregateCorpus(t *testing.T) {
	a := Aggregate{Precision: [4]float64{0.8, 0.8, 0.8, 0.8}, Recall: [4]float64{1, 1, 1, 1}}
	b := Aggregate{Precision: [4]float64{0.6, 0.6, 0.6, 0.6}, Recall: [4]float64{0, 0, 0, 0}}
	got, err := AggregateCorpus([]Aggregate{a, b})
	if err != nil {
		t.Fatalf("AggregateCorpus: %v", err)
	}
	for o := 0; o < bleu.Orders; o++ {
		if !approx(got.Precision[o], 0.7) {
			t.Errorf("BLEU-%d: expected precision 0.7, got %v", o+1, got.Precision[o])
		}
		if !approx(got.Recall[o], 0.5) {
			t.Errorf("BLEU-%d: expected recall 0.5, got %v", o+1, got.Recall[o])
		}
	}

	single, err := AggregateCorpus([]Aggregate{a})
	if err != nil {
		t.Fatal(err)
	}
	if single != a {
		t.Errorf("expected a single aggregate to be returned unchanged, got %+v", single)
	}
}

func TestAggregateCorpusEmpty(t *testing.T) {
	if _, err := AggregateCorpus(nil); !errors.Is(err, ErrNoExamples) {
		t.Fatalf("expected ErrNoExamples, got %v", err)
	}
}

func TestCorpusOrderIndependent(t *testing.T) {
	examples := []struct{ beam, refs [][]int }{
		{[][]int{{1, 2}}, [][]int{{1, 2, 3}}},
		{[][]int{{1, 2}, {8, 9}}, [][]int{{1, 2, 3}}},
		{[][]int{{4, 5, 6, 7}}, [][]int{{4, 5, 6, 7}, {9}}},
		{[][]int{{3}}, [][]int{{1, 2}, {2, 3, 4}}},
	}
	aggs := make([]Aggregate, len(examples))
	for i, ex := range examples {
		agg, err := AggregateExample(ex.beam, ex.refs)
		if err != nil {
			t.Fatalf("example %d: %v", i, err)
		}
		aggs[i] = agg
	}
	expected, err := AggregateCorpus(aggs)
	if err != nil {
		t.Fatal(err)
	}

	for _, order := range permutations(len(aggs)) {
		shuffled := make([]Aggregate, len(order))
		var acc Accumulator
		for i, j := range order {
			shuffled[i] = aggs[j]
			acc.Add(aggs[j])
		}
		corpus, err := AggregateCorpus(shuffled)
		if err != nil {
			t.Fatal(err)
		}
		accumulated, err := acc.Result()
		if err != nil {
			t.Fatal(err)
		}
		for o := 0; o < bleu.Orders; o++ {
			for _, got := range []Aggregate{corpus, accumulated} {
				if !approx(got.Precision[o], expected.Precision[o]) || !approx(got.Recall[o], expected.Recall[o]) {
					t.Errorf("order %v BLEU-%d: expected prec=%v recall=%v, got prec=%v recall=%v",
						order, o+1, expected.Precision[o], expected.Recall[o], got.Precision[o], got.Recall[o])
				}
			}
		}
	}
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := make([]int, 0, n)
			next = append(next, p[:i]...)
			next = append(next, n-1)
			next = append(next, p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestAccumulatorLen(t *testing.T) {
	var acc Accumulator
	if acc.Len() != 0 {
		t.Fatalf("expected empty accumulator, got %d", acc.Len())
	}
	acc.Add(Aggregate{})
	acc.Add(Aggregate{})
	if acc.Len() != 2 {
		t.Fatalf("expected 2, got %d", acc.Len())
	}
}

func TestPerplexityMeter(t *testing.T) {
	var m PerplexityMeter
	if _, ok := m.Mean(); ok {
		t.Fatal("expected no perplexity before any loss")
	}
	m.Observe(0)
	m.Observe(math.Log(3))
	got, ok := m.Mean()
	if !ok || !approx(got, 2) {
		t.Fatalf("expected mean perplexity 2, got %v (%v)", got, ok)
	}
}
