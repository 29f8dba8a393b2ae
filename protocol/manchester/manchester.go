// Package manchester decodes a Manchester-coded binary edge stream (Ethernet 10Base-T,
// Philips RC-5/6, and other protocols that reuse the same mid-bit-transition coding). Each
// bit value is a (first half, second half) level pair; the Falling option selects which bit
// a falling mid-bit transition encodes.
package manchester

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/stream"
)

// Options configures the Manchester convention. Falling selects which bit value a falling
// mid-bit transition encodes: the IEEE 802.3 convention uses Falling=0 and the G.E. Thomas
// convention uses Falling=1.
type Options struct {
	Falling int
}

func levelPairs(falling int) (zero, one [2]int) {
	if falling == 0 {
		return [2]int{1, 0}, [2]int{0, 1}
	}
	return [2]int{0, 1}, [2]int{1, 0}
}

// Decode samples each bit period's first and second half to recover the encoded bit
// sequence. The leading idle period before the pattern starts need not be bit-aligned: Decode
// locates the first mid-bit transition itself (the level held since the previous edge already
// matches the first bit's first half, per the Synth convention in synth.go) and phases the rest of
// its quarter/half/quarter sampling from there.
func Decode(edges stream.EdgeStream, bitPeriod float64, opts Options) []int {
	w := edge.NewWalker(edges)
	zero, one := levelPairs(opts.Falling)
	quarter := bitPeriod / 4
	half := bitPeriod / 2

	var bits []int
	if w.AtEnd() {
		return bits
	}

	classify := func(first, second int) {
		switch {
		case first == zero[0] && second == zero[1]:
			bits = append(bits, 0)
		case first == one[0] && second == one[1]:
			bits = append(bits, 1)
		}
	}

	firstHalf := w.CurState()
	if w.AdvanceToEdge() == 0 {
		return bits
	}
	classify(firstHalf, w.CurState())
	w.Advance(half) // now at the start of the next bit

	for !w.AtEnd() {
		w.Advance(quarter)
		first := w.CurState()
		w.Advance(half)
		second := w.CurState()
		classify(first, second)
		w.Advance(quarter)
	}
	return bits
}
