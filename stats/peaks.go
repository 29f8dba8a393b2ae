package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Peak is a contiguous run of histogram bins at or above the significance threshold.
type Peak struct {
	StartBin, EndBin int // EndBin is exclusive
	Center           float64
}

// ErrLevelsIndeterminate is returned when fewer than two peaks can be found even after
// splitting the histogram in half.
var ErrLevelsIndeterminate = indeterminateError{}

type indeterminateError struct{}

func (indeterminateError) Error() string { return "levels indeterminate" }

// FindPeaks implements the two-pass statistical threshold algorithm.
// scale defaults effectively to 1.0; callers synthesizing noiseless data pass a lower
// value (e.g. 0.5) to recover peaks from a near-impulse histogram.
func FindPeaks(h Histogram, scale float64) []Peak {
	nonZero := make([]float64, 0, len(h.Counts))
	for _, c := range h.Counts {
		if c > 0 {
			nonZero = append(nonZero, c)
		}
	}
	if len(nonZero) == 0 {
		return nil
	}
	mu := stat.Mean(nonZero, nil)
	t1 := mu + 2*math.Sqrt(mu)

	below := make([]float64, 0, len(h.Counts))
	for _, c := range h.Counts {
		if c < t1 {
			below = append(below, c)
		}
	}
	sigma := 0.0
	if len(below) > 1 {
		sigma = stat.StdDev(below, nil)
	}
	t2 := mu + scale*2*sigma

	var peaks []Peak
	inPeak := false
	start := 0
	for i, c := range h.Counts {
		if c >= t2 {
			if !inPeak {
				inPeak = true
				start = i
			}
		} else if inPeak {
			inPeak = false
			peaks = append(peaks, makePeak(h, start, i))
		}
	}
	if inPeak {
		peaks = append(peaks, makePeak(h, start, len(h.Counts)))
	}

	return mergePeaks(h, peaks)
}

func makePeak(h Histogram, start, end int) Peak {
	// Weighted centroid over the peak's bins, not just the midpoint, so asymmetric peaks
	// (e.g. a logic level population with a skewed tail) still center correctly.
	sum, weight := 0.0, 0.0
	for i := start; i < end; i++ {
		c := h.Counts[i]
		sum += h.BinCenter(i) * c
		weight += c
	}
	center := h.BinCenter((start + end) / 2)
	if weight > 0 {
		center = sum / weight
	}
	return Peak{StartBin: start, EndBin: end, Center: center}
}

// mergePeaks merges peaks whose gap is below bins/100 and suppresses the smaller of two
// peaks whose gap is below bins/50.
func mergePeaks(h Histogram, peaks []Peak) []Peak {
	nBins := len(h.Counts)
	mergeGap := float64(nBins) / 100
	suppressGap := float64(nBins) / 50

	merged := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if len(merged) == 0 {
			merged = append(merged, p)
			continue
		}
		last := &merged[len(merged)-1]
		gap := float64(p.StartBin - last.EndBin)
		switch {
		case gap < mergeGap:
			last.EndBin = p.EndBin
			*last = makePeak(h, last.StartBin, last.EndBin)
		case gap < suppressGap:
			if peakMass(h, p) > peakMass(h, *last) {
				*last = p
			}
			// else: keep last, drop p (the smaller one is suppressed)
		default:
			merged = append(merged, p)
		}
	}
	return merged
}

func peakMass(h Histogram, p Peak) float64 {
	sum := 0.0
	for i := p.StartBin; i < p.EndBin; i++ {
		sum += h.Counts[i]
	}
	return sum
}

// OuterPair returns the leftmost and rightmost peak centers. If fewer than two peaks are
// present, the histogram is split in half and each half is searched independently; if that
// still fails, ErrLevelsIndeterminate is returned.
func OuterPair(h Histogram, scale float64) (low, high float64, err error) {
	peaks := FindPeaks(h, scale)
	if len(peaks) >= 2 {
		return peaks[0].Center, peaks[len(peaks)-1].Center, nil
	}

	mid := len(h.Counts) / 2
	if mid == 0 {
		return 0, 0, ErrLevelsIndeterminate
	}
	lowerHalf := Histogram{Min: h.Min, BinWidth: h.BinWidth, Counts: h.Counts[:mid]}
	upperHalf := Histogram{Min: h.Min + float64(mid)*h.BinWidth, BinWidth: h.BinWidth, Counts: h.Counts[mid:]}

	lowerPeaks := FindPeaks(lowerHalf, scale)
	upperPeaks := FindPeaks(upperHalf, scale)
	if len(lowerPeaks) == 0 || len(upperPeaks) == 0 {
		return 0, 0, ErrLevelsIndeterminate
	}
	return lowerPeaks[0].Center, upperPeaks[len(upperPeaks)-1].Center, nil
}
