package bleu

// maxGram bounds the n-gram order this package counts. Order 5 is needed by
// the neighbour-averaging smoother on top of the four scored orders.
const maxGram = 5

// gram is an n-gram key. Only the first n positions are populated; every
// map holds grams of a single order so the zero padding never collides.
type gram[T comparable] [maxGram]T

func countNgrams[T comparable](seq []T, n int) (map[gram[T]]int, int) {
	if n <= 0 || n > maxGram || len(seq) < n {
		return nil, 0
	}
	counts := make(map[gram[T]]int, len(seq)-n+1)
	for i := 0; i+n <= len(seq); i++ {
		var g gram[T]
		copy(g[:n], seq[i:i+n])
		counts[g]++
	}
	return counts, len(seq) - n + 1
}

// Fraction is an unreduced n-gram precision. The numerator is the clipped
// match count, the denominator the candidate n-gram count (at least 1).
type Fraction struct {
	Numerator   int
	Denominator int
}

// Float returns the fraction's value.
func (f Fraction) Float() float64 {
	if f.Denominator == 0 {
		return 0
	}
	return float64(f.Numerator) / float64(f.Denominator)
}

// ModifiedPrecision returns the clipped n-gram precision of candidate against
// a single reference.
func ModifiedPrecision[T comparable](reference, candidate []T, n int) Fraction {
	candCounts, total := countNgrams(candidate, n)
	refCounts, _ := countNgrams(reference, n)

	matched := 0
	for g, c := range candCounts {
		matched += min(c, refCounts[g])
	}
	return Fraction{Numerator: matched, Denominator: max(1, total)}
}
