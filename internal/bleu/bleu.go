// Package bleu computes smoothed sentence-level BLEU between a single
// reference and a single candidate token sequence.
//
// Scores follow the Papineni et al. definition with the smoothing methods of
// Chen & Cherry (2014), numbered as in NLTK's SmoothingFunction. Sequences
// are compared as-is: callers truncate them at their valid length or end
// marker first.
package bleu

import "math"

// Orders is the number of n-gram orders a weight vector covers.
const Orders = 4

// Weights assigns a weight to each n-gram order, unigrams first.
type Weights [Orders]float64

var (
	Unigram  = Weights{1, 0, 0, 0}
	Bigram   = Weights{0, 1, 0, 0}
	Trigram  = Weights{0, 0, 1, 0}
	Fourgram = Weights{0, 0, 0, 1}

	// Uniform is the cumulative BLEU-4 weighting.
	Uniform = Weights{0.25, 0.25, 0.25, 0.25}
)

// WeightSet is the weight sequence evaluated by Bleus. The unigram vector
// appears twice; consumers drop index 0 and read BLEU-n at index n.
var WeightSet = [Orders + 1]Weights{Unigram, Unigram, Bigram, Trigram, Fourgram}

// BrevityPenalty penalises candidates shorter than the reference.
func BrevityPenalty(refLen, hypLen int) float64 {
	switch {
	case hypLen > refLen:
		return 1
	case hypLen == 0:
		return 0
	default:
		return math.Exp(1 - float64(refLen)/float64(hypLen))
	}
}

// ScorePair returns the smoothed BLEU score of candidate against reference
// under the given weights, clamped to [0, 1]. A candidate with no unigram in
// common with the reference (including an empty candidate) scores 0.
func ScorePair[T comparable](reference, candidate []T, weights Weights, smooth Smoother) float64 {
	return newPairStats(reference, candidate, smooth).score(weights)
}

// Bleus scores one pair under every vector of WeightSet with Method7
// smoothing.
func Bleus[T comparable](reference, candidate []T) [Orders + 1]float64 {
	return BleusWith(reference, candidate, Method7)
}

// BleusWith is Bleus with an explicit smoother.
func BleusWith[T comparable](reference, candidate []T, smooth Smoother) [Orders + 1]float64 {
	stats := newPairStats(reference, candidate, smooth)
	var out [Orders + 1]float64
	for i, w := range WeightSet {
		out[i] = stats.score(w)
	}
	return out
}

// pairStats holds the weight-independent part of a pair's BLEU computation.
type pairStats struct {
	noMatch  bool
	bp       float64
	smoothed []float64
}

func newPairStats[T comparable](reference, candidate []T, smooth Smoother) pairStats {
	if smooth == nil {
		smooth = Method0
	}
	p := make([]Fraction, Orders)
	for i := range p {
		p[i] = ModifiedPrecision(reference, candidate, i+1)
	}
	if p[0].Numerator == 0 {
		return pairStats{noMatch: true}
	}
	next := ModifiedPrecision(reference, candidate, Orders+1)
	return pairStats{
		bp:       BrevityPenalty(len(reference), len(candidate)),
		smoothed: smooth(p, len(candidate), next),
	}
}

func (s pairStats) score(weights Weights) float64 {
	if s.noMatch {
		return 0
	}
	var logSum float64
	for i, w := range weights {
		if w == 0 {
			continue
		}
		if s.smoothed[i] <= 0 {
			return 0
		}
		logSum += w * math.Log(s.smoothed[i])
	}
	return clamp(s.bp * math.Exp(logSum))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
