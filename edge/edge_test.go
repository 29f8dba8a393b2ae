package edge

import (
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
)

func TestDetectBinaryEmitsInitialAndEdges(t *testing.T) {
	samples := stream.SampleStream{{
		StartTime:    0,
		SamplePeriod: 1,
		Samples:      []float64{0, 0, 0, 3.3, 3.3, 3.3, 0, 0, 0},
	}}
	hystBot, _, hystTop := Thresholds(0, 3.3, 0.4)
	edges := DetectBinary(samples, hystBot, hystTop)
	require.GreaterOrEqual(t, len(edges), 3)
	require.Equal(t, 0.0, edges[0].Time)
	require.Equal(t, 0, edges[0].Level)
	require.Equal(t, 1, edges[1].Level)
	require.Equal(t, 0, edges[2].Level)
}

func TestWalkerAdvanceToEdge(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 5, Level: 1}, {Time: 9, Level: 0}}
	w := NewWalker(edges)
	require.Equal(t, 0, w.CurState())
	dt := w.AdvanceToEdge()
	require.Equal(t, 5.0, dt)
	require.Equal(t, 1, w.CurState())
	dt = w.AdvanceToEdge()
	require.Equal(t, 4.0, dt)
	require.Equal(t, 0, w.CurState())
	require.True(t, w.AtEnd())
}

func TestWalkerSkipsSpuriousSameLevelEdges(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 3, Level: 0}, {Time: 7, Level: 1}}
	w := NewWalker(edges)
	dt := w.AdvanceToEdge()
	require.Equal(t, 7.0, dt)
	require.Equal(t, 1, w.CurState())
}

func TestMultiWalkerSynchronizesCursor(t *testing.T) {
	streams := map[string]stream.EdgeStream{
		"clk":  {{Time: 0, Level: 0}, {Time: 10, Level: 1}, {Time: 20, Level: 0}},
		"data": {{Time: 0, Level: 1}, {Time: 15, Level: 0}},
	}
	mw := NewMultiWalker(streams)
	dt := mw.AdvanceToEdge("")
	require.Equal(t, 10.0, dt)
	require.Equal(t, 1, mw.CurState("clk"))
	require.Equal(t, 1, mw.CurState("data")) // unchanged, hasn't reached its own edge yet

	dt = mw.AdvanceToEdge("")
	require.Equal(t, 5.0, dt)
	require.Equal(t, 0, mw.CurState("data"))
}

func TestLevelCodingCentersAroundZero(t *testing.T) {
	require.Equal(t, []int{-1, 0, 1}, LevelCoding(3))
	require.Equal(t, []int{-1, 0, 1, 2}, LevelCoding(4))
}

func TestMultiWalkerHandlesSimultaneousEdges(t *testing.T) {
	streams := map[string]stream.EdgeStream{
		"a": {{Time: 0, Level: 0}, {Time: 5, Level: 1}, {Time: 12, Level: 0}},
		"b": {{Time: 0, Level: 1}, {Time: 5, Level: 0}},
	}
	mw := NewMultiWalker(streams)
	dt := mw.AdvanceToEdge("")
	require.Equal(t, 5.0, dt)
	// Both channels transitioned at t=5; a single call must observe both new states.
	require.Equal(t, 1, mw.CurState("a"))
	require.Equal(t, 0, mw.CurState("b"))

	dt = mw.AdvanceToEdge("")
	require.Equal(t, 7.0, dt)
	require.Equal(t, 0, mw.CurState("a"))
}

func TestRemoveTransitionsCollapsesGlitch(t *testing.T) {
	// A 1us zero-level blip inside a long high state collapses to a single edge at the
	// blip's midpoint carrying the settled level; that level repeats the surrounding high
	// state, so the edge is dropped and the blip leaves no trace.
	edges := stream.EdgeStream{
		{Time: 0, Level: 0},
		{Time: 10e-6, Level: 1},
		{Time: 50e-6, Level: 0},
		{Time: 51e-6, Level: 1},
		{Time: 90e-6, Level: 0},
	}
	out := RemoveTransitions(edges, 2e-6)
	require.Equal(t, stream.EdgeStream{
		{Time: 0, Level: 0},
		{Time: 10e-6, Level: 1},
		{Time: 90e-6, Level: 0},
	}, out)
}

func TestRemoveExcessEdgesDropsSameLevelRepeats(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 1, Level: 0}, {Time: 2, Level: 1}}
	out := RemoveExcessEdges(edges)
	require.Len(t, out, 2)
}
