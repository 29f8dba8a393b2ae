// Package edge converts sample streams into edge streams using two-threshold hysteresis,
// for binary and multi-level signals, and provides the time-addressable walker cursors used
// by every protocol decoder.
package edge

import "github.com/kevinpt/ripyl-go/stream"

type binaryState int

const (
	stateStart binaryState = iota
	stateHigh
	stateLow
	stateTransition
)

// Thresholds derives the hysteresis band (hyst_bot, center, hyst_top) from calibrated logic
// levels and a hysteresis fraction of the (high-low) span.
func Thresholds(low, high, hystFraction float64) (hystBot, center, hystTop float64) {
	center = (low + high) / 2
	band := hystFraction * (high - low)
	return center - band/2, center, center + band/2
}

// DetectBinary runs a two-threshold hysteresis state machine over samples, emitting the
// initial state at the capture's start time and a strict edge each time the line crosses
// fully to the opposite stable state.
func DetectBinary(samples stream.SampleStream, hystBot, hystTop float64) stream.EdgeStream {
	if len(samples) == 0 {
		return nil
	}
	captureStart := samples[0].StartTime

	var out stream.EdgeStream
	st := stateStart
	prevStable := 0

	for _, chunk := range samples {
		for i, s := range chunk.Samples {
			t := chunk.StartTime + float64(i)*chunk.SamplePeriod
			switch st {
			case stateStart:
				switch {
				case s > hystTop:
					st = stateHigh
					out = append(out, stream.Edge{Time: captureStart, Level: 1})
				case s < hystBot:
					st = stateLow
					out = append(out, stream.Edge{Time: captureStart, Level: 0})
				}

			case stateHigh:
				switch {
				case s < hystBot:
					st = stateLow
					out = append(out, stream.Edge{Time: t, Level: 0})
				case !(s > hystTop):
					st = stateTransition
					prevStable = 1
				}

			case stateLow:
				switch {
				case s > hystTop:
					st = stateHigh
					out = append(out, stream.Edge{Time: t, Level: 1})
				case !(s < hystBot):
					st = stateTransition
					prevStable = 0
				}

			case stateTransition:
				switch {
				case s > hystTop:
					if prevStable != 1 {
						out = append(out, stream.Edge{Time: t, Level: 1})
					}
					st = stateHigh
				case s < hystBot:
					if prevStable != 0 {
						out = append(out, stream.Edge{Time: t, Level: 0})
					}
					st = stateLow
				}
			}
		}
	}
	return out
}

// RemoveTransitions merges adjacent edges whose time gap is below minStatePeriod, replacing
// a transient spurious state with a single edge at the midpoint. Used e.g. to erase SE0
// glitches on a USB differential pair before rate estimation.
func RemoveTransitions(edges stream.EdgeStream, minStatePeriod float64) stream.EdgeStream {
	if len(edges) < 2 {
		return edges
	}
	out := make(stream.EdgeStream, 0, len(edges))
	out = append(out, edges[0])
	for i := 1; i < len(edges); i++ {
		if i+1 < len(edges) && edges[i+1].Time-edges[i].Time < minStatePeriod {
			// The state starting at edges[i] is too short to be real. Collapse it and
			// the edge that ends it into one edge at the midpoint, carrying the level
			// the line settles to after the glitch.
			mid := (edges[i].Time + edges[i+1].Time) / 2
			out = append(out, stream.Edge{Time: mid, Level: edges[i+1].Level})
			i++
			continue
		}
		out = append(out, edges[i])
	}
	return RemoveExcessEdges(out)
}

// RemoveExcessEdges filters out consecutive edges carrying the same level, a side effect of
// multi-channel synthesis or merge operations that can yield a same-level "edge".
func RemoveExcessEdges(edges stream.EdgeStream) stream.EdgeStream {
	if len(edges) == 0 {
		return edges
	}
	out := make(stream.EdgeStream, 0, len(edges))
	out = append(out, edges[0])
	for i := 1; i < len(edges); i++ {
		if edges[i].Level != out[len(out)-1].Level {
			out = append(out, edges[i])
		}
	}
	return out
}
