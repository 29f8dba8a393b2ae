package edge

import (
	"math"

	"github.com/kevinpt/ripyl-go/stream"
)

// Walker presents an edge stream as a time-addressable cursor. The edge stream is
// already fully materialized (stream.EdgeStream is a slice, see stream/sample.go), so
// "pulling one more edge" is simply advancing an index rather than invoking an iterator.
type Walker struct {
	edges      stream.EdgeStream
	idx        int
	cursorTime float64
	ended      bool
}

// NewWalker returns a Walker positioned at the first edge's time.
func NewWalker(edges stream.EdgeStream) *Walker {
	if len(edges) == 0 {
		return &Walker{ended: true}
	}
	return &Walker{edges: edges, cursorTime: edges[0].Time}
}

// CurState returns the level at the current cursor time.
func (w *Walker) CurState() int {
	if len(w.edges) == 0 {
		return 0
	}
	return w.edges[w.idx].Level
}

// AtEnd reports whether the upstream edge stream is exhausted.
func (w *Walker) AtEnd() bool { return w.ended }

// CursorTime returns the walker's current position.
func (w *Walker) CursorTime() float64 { return w.cursorTime }

// Advance moves the cursor forward by dt, promoting to later edges as the cursor passes
// their time.
func (w *Walker) Advance(dt float64) {
	w.cursorTime += dt
	for w.idx+1 < len(w.edges) && w.cursorTime > w.edges[w.idx+1].Time {
		w.idx++
	}
	if w.idx >= len(w.edges)-1 {
		w.ended = true
	}
}

// peekNextEdgeTime looks ahead to the next edge whose level differs from the current one,
// without mutating the walker's state.
func (w *Walker) peekNextEdgeTime() (float64, bool) {
	if w.ended || len(w.edges) == 0 {
		return 0, false
	}
	cur := w.edges[w.idx].Level
	for j := w.idx + 1; j < len(w.edges); j++ {
		if w.edges[j].Level != cur {
			return w.edges[j].Time, true
		}
	}
	return 0, false
}

// PeekPulse reports the duration the level currently held at the cursor will last before the
// next edge, without moving the cursor. Pulse-width-coded protocols (e.g. J1850 VPW) need to
// decide how to interpret a pulse before committing to advance past it.
func (w *Walker) PeekPulse() (dt float64, ok bool) {
	if w.ended || w.idx+1 >= len(w.edges) {
		return 0, false
	}
	return w.edges[w.idx+1].Time - w.cursorTime, true
}

// syncTo fast-forwards the cursor to t, promoting every edge at or before t. Unlike Advance,
// an edge lying exactly at t counts as having occurred, so sibling walkers in a MultiWalker
// agree on the line states after a simultaneous transition on two channels.
func (w *Walker) syncTo(t float64) {
	if t > w.cursorTime {
		w.cursorTime = t
	}
	for w.idx+1 < len(w.edges) && w.edges[w.idx+1].Time <= w.cursorTime {
		w.idx++
	}
	if w.idx >= len(w.edges)-1 {
		w.ended = true
	}
}

// AdvanceToEdge moves the cursor to the time of the next edge whose level differs from the
// current one, skipping any spurious same-level edges, and returns the time delta covered.
// If no such edge exists it marks the walker ended and returns 0.
func (w *Walker) AdvanceToEdge() float64 {
	t, ok := w.peekNextEdgeTime()
	if !ok {
		w.ended = true
		return 0
	}
	for w.idx+1 < len(w.edges) && w.edges[w.idx+1].Time <= t {
		w.idx++
	}
	dt := t - w.cursorTime
	w.cursorTime = t
	if w.idx >= len(w.edges)-1 {
		w.ended = true
	}
	return dt
}

// MultiWalker holds a named map of independent walkers sharing one time cursor.
type MultiWalker struct {
	walkers    map[string]*Walker
	cursorTime float64
}

// NewMultiWalker builds a MultiWalker over the given named edge streams, positioned at the
// earliest of their initial-state times.
func NewMultiWalker(streams map[string]stream.EdgeStream) *MultiWalker {
	mw := &MultiWalker{walkers: make(map[string]*Walker, len(streams))}
	start := math.Inf(1)
	for name, es := range streams {
		mw.walkers[name] = NewWalker(es)
		if len(es) > 0 && es[0].Time < start {
			start = es[0].Time
		}
	}
	if math.IsInf(start, 1) {
		start = 0
	}
	mw.cursorTime = start
	return mw
}

// CurState returns the current level on the named channel.
func (mw *MultiWalker) CurState(channel string) int {
	return mw.walkers[channel].CurState()
}

// CursorTime returns the shared cursor position.
func (mw *MultiWalker) CursorTime() float64 { return mw.cursorTime }

// AtEnd reports whether every channel's upstream edge stream is exhausted.
func (mw *MultiWalker) AtEnd() bool {
	for _, w := range mw.walkers {
		if !w.AtEnd() {
			return false
		}
	}
	return true
}

// Advance moves every channel's cursor forward by dt, keeping them synchronized.
func (mw *MultiWalker) Advance(dt float64) {
	mw.cursorTime += dt
	for _, w := range mw.walkers {
		w.Advance(dt)
	}
}

// AdvanceToEdge moves the shared cursor to the earliest next distinct-level edge across all
// still-live channels when channel is "", or to that specific channel's next edge otherwise;
// after advancing the chosen channel, every other channel is fast-forwarded to the same
// cursor time to stay synchronized, with edges landing exactly on the cursor counting
// as occurred so that simultaneous transitions on two channels (SPI CS+data, USB D+/D-)
// resolve in one call. Returns the time delta covered, or 0 if nothing advances.
func (mw *MultiWalker) AdvanceToEdge(channel string) float64 {
	total := 0.0
	for {
		var chosen *Walker
		if channel != "" {
			chosen = mw.walkers[channel]
		} else {
			bestTime := math.Inf(1)
			for _, w := range mw.walkers {
				if t, ok := w.peekNextEdgeTime(); ok && t < bestTime {
					bestTime = t
					chosen = w
				}
			}
		}
		if chosen == nil {
			return total
		}

		dt := chosen.AdvanceToEdge()
		if dt == 0 && chosen.AtEnd() {
			if channel != "" {
				return total
			}
			// This channel is exhausted (or consumed a final edge coinciding with the
			// cursor); re-pick among the remaining live channels.
			continue
		}
		mw.cursorTime += dt
		total += dt
		for _, other := range mw.walkers {
			if other != chosen {
				other.syncTo(mw.cursorTime)
			}
		}
		if dt > 0 || channel != "" {
			return total
		}
		// dt == 0: consumed an edge already sitting at the cursor; look again for a
		// strictly later one so callers can treat a 0 return as end-of-stream.
	}
}
