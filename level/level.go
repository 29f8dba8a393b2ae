// Package level implements auto-calibration of logic levels from a raw sample stream,
// buffering a window around the first detected transition and handing it to stats for
// bimodal peak extraction. Two moving averages on different timescales separate real
// transitions from noise: a short one smooths the noise, a long one approximates the local
// median.
package level

import (
	"math"

	"github.com/kevinpt/ripyl-go/internal/decodeerr"
	"github.com/kevinpt/ripyl-go/stats"
)

// Levels is the calibrated (low, high) voltage pair.
type Levels struct {
	Low, High float64
}

const defaultMaxSamples = 20000

// Detect buffers samples (at most maxSamples, or all of them if fewer are available),
// short-circuiting once it has centered a detected transition in the buffer, then extracts
// the two voltage modes via stats.OuterPair. Returns decodeerr.AutoLevelErr if fewer than two
// peaks are found.
func Detect(samples []float64, maxSamples int, scale float64) (Levels, error) {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	if scale <= 0 {
		scale = 1.0
	}
	if len(samples) == 0 {
		return Levels{}, decodeerr.New(decodeerr.AutoLevel, "empty sample stream")
	}

	buf := samples
	if len(buf) > maxSamples {
		buf = buf[:maxSamples]
	}

	probeLen := len(buf) / 10
	if probeLen < 8 {
		probeLen = len(buf)
	}
	probe := buf[:probeLen]

	shortAvg := movingAverage(probe, max(1, probeLen/20))
	longAvg := movingAverage(probe, max(1, probeLen/4))

	noiseCeiling := 0.0
	for i := range shortAvg {
		d := math.Abs(shortAvg[i] - longAvg[i])
		if d > noiseCeiling {
			noiseCeiling = d
		}
	}
	edgeThreshold := noiseCeiling * 1.5 // delay-compensated margin above the noise floor

	edgeIdx := findFirstEdge(buf, edgeThreshold)
	if edgeIdx < 0 {
		// No obvious deviation: confirm via autocorrelation that the window isn't simply
		// a flat, edge-free capture before giving up on the whole buffer as the window.
		if !hasActivity(buf) {
			return Levels{}, decodeerr.New(decodeerr.AutoLevel, "no activity detected in sample window")
		}
		edgeIdx = len(buf) / 2
	}

	window := centerWindow(buf, edgeIdx)

	h, err := stats.NewHistogram(window, 100)
	if err != nil {
		return Levels{}, decodeerr.New(decodeerr.AutoLevel, err.Error())
	}
	low, high, err := stats.OuterPair(h, scale)
	if err != nil {
		return Levels{}, decodeerr.New(decodeerr.AutoLevel, err.Error())
	}
	return Levels{Low: low, High: high}, nil
}

func movingAverage(x []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i := range x {
		sum += x[i]
		if i >= window {
			sum -= x[i-window]
		}
		n := window
		if i < window {
			n = i + 1
		}
		out[i] = sum / float64(n)
	}
	return out
}

// findFirstEdge returns the index of the first sample whose short/long moving-average
// deviation exceeds threshold, or -1 if none does.
func findFirstEdge(buf []float64, threshold float64) int {
	if threshold <= 0 {
		return -1
	}
	window := max(1, len(buf)/40)
	shortAvg := movingAverage(buf, window)
	longAvg := movingAverage(buf, window*4)
	for i := range buf {
		if math.Abs(shortAvg[i]-longAvg[i]) > threshold {
			return i
		}
	}
	return -1
}

// hasActivity runs a coarse lag-1 autocorrelation to distinguish a flat/periodic-noise
// capture (no usable transitions) from one that simply has a weak edge.
func hasActivity(buf []float64) bool {
	if len(buf) < 2 {
		return false
	}
	mean := 0.0
	for _, v := range buf {
		mean += v
	}
	mean /= float64(len(buf))

	var num, den float64
	for i := 1; i < len(buf); i++ {
		a, b := buf[i]-mean, buf[i-1]-mean
		num += a * b
		den += a * a
	}
	if den == 0 {
		return false
	}
	corr := num / den
	return corr < 0.999 // a perfectly flat or perfectly smooth periodic signal correlates ~1
}

// centerWindow advances the buffer start until edgeIdx sits in the middle, so the returned
// slice has roughly equal "before" and "after" context around the detected transition.
func centerWindow(buf []float64, edgeIdx int) []float64 {
	half := len(buf) / 2
	start := edgeIdx - half/2
	if start < 0 {
		start = 0
	}
	end := start + half
	if end > len(buf) {
		end = len(buf)
		start = max(0, end-half)
	}
	if end-start < 16 {
		return buf
	}
	return buf[start:end]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
