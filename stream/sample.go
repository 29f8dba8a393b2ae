// Package stream defines the data model shared by every pipeline stage: sample chunks,
// edges, and the hierarchical decoded-record tree.
package stream

// SampleChunk is a contiguous, uniformly-spaced run of samples sharing one sample period.
// Chunks in a SampleStream do not overlap and are monotonic in time.
type SampleChunk struct {
	StartTime    float64
	SamplePeriod float64
	Samples      []float64
}

// EndTime is the time just past the last sample in the chunk.
func (c SampleChunk) EndTime() float64 {
	return c.StartTime + float64(len(c.Samples))*c.SamplePeriod
}

// SampleStream is a finite, forward-only sequence of chunks. It is intentionally just a
// slice: nothing in this module needs unbounded/lazy sample sources, and a slice keeps
// chunk-boundary round-tripping trivial to verify.
type SampleStream []SampleChunk

// TotalSamples returns the sample count across all chunks.
func (s SampleStream) TotalSamples() int {
	n := 0
	for _, c := range s {
		n += len(c.Samples)
	}
	return n
}

// Flatten concatenates every chunk's samples into one slice, losing chunk boundaries. Used
// only by tests and by stages that explicitly don't care about chunking (e.g. the
// level detector's initial probe window).
func (s SampleStream) Flatten() []float64 {
	out := make([]float64, 0, s.TotalSamples())
	for _, c := range s {
		out = append(out, c.Samples...)
	}
	return out
}

// Edge is a single (time, level) transition. For binary signals level is 0 or 1; for
// multi-level signals the level codes are symmetric around zero.
type Edge struct {
	Time  float64
	Level int
}

// EdgeStream is a finite, forward-only sequence of edges. The first element is always the
// initial state at start-of-capture; subsequent elements are strict level changes with
// strictly increasing times.
type EdgeStream []Edge
