package bleu

import (
	"fmt"
	"math"
	"sort"
)

// Smoother turns raw per-order precisions into the values that enter the
// geometric mean. next is the order len(p)+1 precision and hypLen the
// candidate length.
type Smoother func(p []Fraction, hypLen int, next Fraction) []float64

const (
	// epsilon is the numerator used by Method1 for orders without matches.
	epsilon = 0.1
	// method4K is the K constant of Chen & Cherry's method 4.
	method4K = 5.0
	// floatMin stands in for a zero precision under Method0 so that orders
	// with zero weight still produce a finite log term.
	floatMin = 0x1p-1022
)

// Method0 applies no smoothing: a weighted order without matches drives the
// score to zero.
func Method0(p []Fraction, _ int, _ Fraction) []float64 {
	out := make([]float64, len(p))
	for i, f := range p {
		if f.Numerator == 0 {
			out[i] = floatMin
			continue
		}
		out[i] = f.Float()
	}
	return out
}

// Method1 adds epsilon to the numerator of orders without matches.
func Method1(p []Fraction, _ int, _ Fraction) []float64 {
	out := make([]float64, len(p))
	for i, f := range p {
		if f.Numerator == 0 {
			out[i] = epsilon / float64(f.Denominator)
			continue
		}
		out[i] = f.Float()
	}
	return out
}

// Method2 adds one to numerator and denominator of every order above
// unigrams.
func Method2(p []Fraction, _ int, _ Fraction) []float64 {
	out := make([]float64, len(p))
	for i, f := range p {
		if i == 0 {
			out[i] = f.Float()
			continue
		}
		out[i] = float64(f.Numerator+1) / float64(f.Denominator+1)
	}
	return out
}

// Method3 is the NIST geometric sequence smoothing: the k-th order without
// matches gets 1 / (2^k * denominator).
func Method3(p []Fraction, _ int, _ Fraction) []float64 {
	out := make([]float64, len(p))
	k := 1
	for i, f := range p {
		if f.Numerator == 0 {
			out[i] = 1 / (math.Pow(2, float64(k)) * float64(f.Denominator))
			k++
			continue
		}
		out[i] = f.Float()
	}
	return out
}

// Method4 scales the geometric sequence by the candidate length so that
// shorter candidates are smoothed less. Candidates of length 0 or 1 are left
// unsmoothed.
func Method4(p []Fraction, hypLen int, _ Fraction) []float64 {
	out := make([]float64, len(p))
	k := 1
	for i, f := range p {
		if f.Numerator == 0 && hypLen > 1 {
			numerator := 1 / (math.Pow(2, float64(k)) * method4K / math.Log(float64(hypLen)))
			out[i] = numerator / float64(f.Denominator)
			k++
			continue
		}
		out[i] = f.Float()
	}
	return out
}

// Method5 replaces each order by the average of itself, the smoothed
// previous order and the next order.
func Method5(p []Fraction, hypLen int, next Fraction) []float64 {
	values := make([]float64, len(p))
	for i, f := range p {
		values[i] = f.Float()
	}
	return averageNeighbours(values, next)
}

// Method7 applies Method4 followed by Method5.
func Method7(p []Fraction, hypLen int, next Fraction) []float64 {
	return averageNeighbours(Method4(p, hypLen, next), next)
}

func averageNeighbours(values []float64, next Fraction) []float64 {
	if len(values) == 0 {
		return values
	}
	plusOne := make([]float64, len(values)+1)
	copy(plusOne, values)
	plusOne[len(values)] = next.Float()

	out := make([]float64, len(values))
	prev := values[0] + 1
	for i, v := range values {
		out[i] = (prev + v + plusOne[i+1]) / 3
		prev = out[i]
	}
	return out
}

var smoothers = map[string]Smoother{
	"method0": Method0,
	"method1": Method1,
	"method2": Method2,
	"method3": Method3,
	"method4": Method4,
	"method5": Method5,
	"method7": Method7,
}

// SmootherByName resolves a smoothing method name such as "method7".
func SmootherByName(name string) (Smoother, error) {
	s, ok := smoothers[name]
	if !ok {
		return nil, fmt.Errorf("unknown smoothing method %q (available: %v)", name, SmootherNames())
	}
	return s, nil
}

// SmootherNames lists the supported smoothing method names.
func SmootherNames() []string {
	names := make([]string, 0, len(smoothers))
	for name := range smoothers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
