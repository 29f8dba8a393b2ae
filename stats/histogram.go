// Package stats implements the bimodal/multimodal peak finder used for auto-calibration of
// logic levels and for the symbol-rate estimator's span distribution.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Histogram is a normal-binned histogram over [Min, Min+BinWidth*len(Counts)).
type Histogram struct {
	Min      float64
	BinWidth float64
	Counts   []float64
}

// NewHistogram bins values into nBins equal-width bins spanning their observed range.
func NewHistogram(values []float64, nBins int) (Histogram, error) {
	if nBins < 1 {
		nBins = 1
	}
	if len(values) == 0 {
		return Histogram{}, errNoVariation
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted) // stat.Histogram requires sorted input
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return Histogram{}, errNoVariation
	}
	width := (hi - lo) / float64(nBins)
	dividers := make([]float64, nBins+1)
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	dividers[nBins] = hi + 1e-9 // stat.Histogram requires dividers[last] > max(x)
	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Histogram{Min: lo, BinWidth: width, Counts: counts}, nil
}

// NewKDEHistogram approximates a histogram using a Gaussian Kernel Density Estimate sampled
// at nPoints across [lo, hi], for callers that want smoother peaks than raw binning gives
// (e.g. the rate estimator).
func NewKDEHistogram(values []float64, bandwidth float64, lo, hi float64, nPoints int) Histogram {
	if nPoints < 2 {
		nPoints = 2
	}
	width := (hi - lo) / float64(nPoints-1)
	counts := make([]float64, nPoints)
	norm := 1.0 / (bandwidth * math.Sqrt(2*math.Pi))
	for i := 0; i < nPoints; i++ {
		x := lo + float64(i)*width
		sum := 0.0
		for _, v := range values {
			d := (x - v) / bandwidth
			sum += math.Exp(-0.5 * d * d)
		}
		counts[i] = sum * norm
	}
	return Histogram{Min: lo, BinWidth: width, Counts: counts}
}

// BinCenter returns the center value of bin i.
func (h Histogram) BinCenter(i int) float64 {
	return h.Min + h.BinWidth*(float64(i)+0.5)
}

var errNoVariation = noVariationError{}

type noVariationError struct{}

func (noVariationError) Error() string { return "no variation: constant-value input" }

// IsNoVariation reports whether err is the "constant-value input" failure from NewHistogram.
func IsNoVariation(err error) bool {
	_, ok := err.(noVariationError)
	return ok
}
