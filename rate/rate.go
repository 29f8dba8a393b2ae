// Package rate estimates the fundamental symbol rate of an edge stream using a KDE-based
// Harmonic Product Spectrum over inter-edge spans. The HPS multiplies the span spectrum
// with time-compressed copies of itself, isolating the fundamental bit period even when the
// edge data is dominated by multi-bit runs.
package rate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kevinpt/ripyl-go/internal/decodeerr"
	"github.com/kevinpt/ripyl-go/stats"
	"github.com/kevinpt/ripyl-go/stream"
)

const defaultGridPoints = 1000
const minSpansRequired = 4

// Options configures the estimator. Spectra is the number of harmonics multiplied together
// in the Harmonic Product Spectrum; UART/CAN auto-baud passes 2, USB's
// fallback path retries with 1.
type Options struct {
	Spectra int
}

// Estimate returns the integer symbol rate in Hz, or a decodeerr.AutoBaud error if too few
// edges are present or no confident fundamental can be found.
func Estimate(edges stream.EdgeStream, opts Options) (int, error) {
	spectra := opts.Spectra
	if spectra < 1 {
		spectra = 2
	}

	spans := interEdgeSpans(edges)
	if len(spans) < minSpansRequired {
		return 0, decodeerr.New(decodeerr.AutoBaud, "too few edges to estimate symbol rate")
	}
	spans = limitSpans(spans)
	if len(spans) < minSpansRequired {
		return 0, decodeerr.New(decodeerr.AutoBaud, "too few spans under the auto span limit")
	}

	maxSpan := floats.Max(spans)
	if maxSpan <= 0 {
		return 0, decodeerr.New(decodeerr.AutoBaud, "degenerate span distribution")
	}

	domain := 1.1 * maxSpan
	bandwidth := tightBandwidthFactor * stat.StdDev(spans, nil)
	if bandwidth <= 0 || math.IsNaN(bandwidth) {
		bandwidth = domain / 200
	}
	step := domain / float64(defaultGridPoints-1)

	h1Hist := stats.NewKDEHistogram(spans, bandwidth, 0, domain, defaultGridPoints)
	hps := make([]float64, defaultGridPoints)
	for i := 0; i < defaultGridPoints; i++ {
		x := float64(i) * step
		product := h1Hist.Counts[i]
		for k := 2; k <= spectra; k++ {
			product *= kdeDensity(spans, bandwidth, x*float64(k))
		}
		hps[i] = product
	}

	hpsHist := stats.Histogram{Min: 0, BinWidth: step, Counts: hps}

	h1Peaks := stats.FindPeaks(h1Hist, 1.0)
	hpsPeaks := stats.FindPeaks(hpsHist, 1.0)
	if len(h1Peaks) == 0 || len(hpsPeaks) == 0 {
		return 0, decodeerr.New(decodeerr.AutoBaud, "no fundamental peak found")
	}

	h1Max := maxCount(h1Hist, h1Peaks)
	hpsMax := maxCount(hpsHist, hpsPeaks)
	if hpsMax <= 0 || h1Max/hpsMax > 1000 {
		return 0, decodeerr.New(decodeerr.AutoBaud, "harmonic product spectrum too weak")
	}

	fundamental := hpsPeaks[0].Center

	// Harmonic sanity check: if H1 already peaks near fundamental/3 the detected peak is a
	// harmonic of that lower frequency, not the fundamental itself.
	for _, p := range h1Peaks {
		if relClose(p.Center, fundamental/3, 0.01) {
			return 0, decodeerr.New(decodeerr.AutoBaud, "detected peak is a harmonic, not the fundamental")
		}
	}

	if fundamental <= 0 {
		return 0, decodeerr.New(decodeerr.AutoBaud, "non-positive fundamental period")
	}
	return int(math.Round(1.0 / fundamental)), nil
}

// Bandwidth factors for the Gaussian KDEs, as fractions of the span standard deviation: a
// wide smear for the span-limit pre-pass and a tight one for the fundamental spectrum.
const (
	wideBandwidthFactor  = 0.8
	tightBandwidthFactor = 0.02
)

// interEdgeSpans returns the spans between successive edges, excluding the pair formed with
// the stream's first element: that element is the initial line state at start-of-capture,
// and its distance to the first real transition is idle time, not symbol timing.
func interEdgeSpans(edges stream.EdgeStream) []float64 {
	if len(edges) < 3 {
		return nil
	}
	spans := make([]float64, 0, len(edges)-2)
	for i := 2; i < len(edges); i++ {
		spans = append(spans, edges[i].Time-edges[i-1].Time)
	}
	return spans
}

// limitSpans drops excessively long spans (idle periods between frames) that would impair
// the HPS resolution: a wide-bandwidth KDE smears all the symbol-related peaks
// together, and the limit is set to twice the right edge of its first peak.
func limitSpans(spans []float64) []float64 {
	sd := stat.StdDev(spans, nil)
	if sd <= 0 || math.IsNaN(sd) {
		return spans
	}
	maxSpan := floats.Max(spans)
	domain := 1.1 * maxSpan
	wide := stats.NewKDEHistogram(spans, wideBandwidthFactor*sd, 0, domain, defaultGridPoints)
	peaks := stats.FindPeaks(wide, 1.0)
	if len(peaks) == 0 {
		return spans
	}
	limit := 2 * (wide.Min + float64(peaks[0].EndBin)*wide.BinWidth)
	kept := make([]float64, 0, len(spans))
	for _, s := range spans {
		if s < limit {
			kept = append(kept, s)
		}
	}
	return kept
}

func kdeDensity(values []float64, bandwidth, x float64) float64 {
	norm := 1.0 / (bandwidth * math.Sqrt(2*math.Pi))
	sum := 0.0
	for _, v := range values {
		d := (x - v) / bandwidth
		sum += math.Exp(-0.5 * d * d)
	}
	return sum * norm
}

func maxCount(h stats.Histogram, peaks []stats.Peak) float64 {
	best := 0.0
	for _, p := range peaks {
		for i := p.StartBin; i < p.EndBin; i++ {
			if h.Counts[i] > best {
				best = h.Counts[i]
			}
		}
	}
	return best
}

func relClose(a, b, eps float64) bool {
	if b == 0 {
		return a == 0
	}
	return math.Abs(a-b)/math.Abs(b) <= eps
}

// SnapToStandard returns the entry of table closest (by relative distance) to rate, used by
// callers that want to report a canonical baud such as 9600 or 115200.
func SnapToStandard(rate int, table []int) int {
	if len(table) == 0 {
		return rate
	}
	best := table[0]
	bestDist := math.Abs(float64(rate-best)) / float64(best)
	for _, r := range table[1:] {
		d := math.Abs(float64(rate-r)) / float64(r)
		if d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

// SortedSpans is exported for tests that want to assert on the raw inter-edge span
// distribution without re-deriving it.
func SortedSpans(edges stream.EdgeStream) []float64 {
	spans := interEdgeSpans(edges)
	sort.Float64s(spans)
	return spans
}
