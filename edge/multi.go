package edge

import (
	"sort"

	"github.com/kevinpt/ripyl-go/stream"
)

// MultiThresholds returns the 2*(N-1) ascending hysteresis thresholds for N logic states,
// evenly spacing transition bands between N evenly spaced stable-level centers.
func MultiThresholds(low, high float64, n int) []float64 {
	if n < 2 {
		n = 2
	}
	centers := make([]float64, n)
	step := (high - low) / float64(n-1)
	for i := range centers {
		centers[i] = low + float64(i)*step
	}
	band := step * 0.4 // leaves a clear transition gap between adjacent stable bands
	th := make([]float64, 0, 2*(n-1))
	for i := 0; i < n-1; i++ {
		mid := (centers[i] + centers[i+1]) / 2
		th = append(th, mid-band/2, mid+band/2)
	}
	return th
}

// LevelCoding returns the N symmetric-around-zero level codes for N logic states, e.g.
// {-1,0,1} for N=3 and {-1,0,1,2} for N=4.
func LevelCoding(n int) []int {
	start := -((n - 1) / 2)
	codes := make([]int, n)
	for i := range codes {
		codes[i] = start + i
	}
	return codes
}

// zoneOf returns which of the 2N-1 zones (N stable at even indices, N-1 transition at odd
// indices) value v falls into, given ascending thresholds.
func zoneOf(v float64, thresholds []float64) int {
	return sort.SearchFloat64s(thresholds, v)
}

// DetectMulti generalizes DetectBinary to N logic states: classify each sample into
// one of 2N-1 zones and emit an edge only when the zone changes from one stable zone to a
// different stable zone, treating intervening transition-zone samples as noise.
func DetectMulti(samples stream.SampleStream, thresholds []float64, levelCodes []int) stream.EdgeStream {
	if len(samples) == 0 {
		return nil
	}
	captureStart := samples[0].StartTime

	var out stream.EdgeStream
	haveStable := false
	lastStableZone := -1

	for _, chunk := range samples {
		for i, s := range chunk.Samples {
			t := chunk.StartTime + float64(i)*chunk.SamplePeriod
			zone := zoneOf(s, thresholds)
			if zone%2 != 0 {
				continue // transition zone: noise, ignore
			}
			stableIdx := zone / 2
			if !haveStable {
				haveStable = true
				lastStableZone = stableIdx
				out = append(out, stream.Edge{Time: captureStart, Level: levelCodes[stableIdx]})
				continue
			}
			if stableIdx != lastStableZone {
				lastStableZone = stableIdx
				out = append(out, stream.Edge{Time: t, Level: levelCodes[stableIdx]})
			}
		}
	}
	return out
}
