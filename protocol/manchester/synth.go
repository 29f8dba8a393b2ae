package manchester

import "github.com/kevinpt/ripyl-go/stream"

// Synth is the inverse of Decode: each bit emits its (zero, one) level pair across one bit
// period, starting at a bit boundary.
func Synth(bits []int, bitPeriod float64, opts Options, idleStart, idleEnd float64) stream.EdgeStream {
	zero, one := levelPairs(opts.Falling)

	t := 0.0
	startLevel := zero[0]
	if len(bits) > 0 && bits[0] == 1 {
		startLevel = one[0]
	}
	out := stream.EdgeStream{{Time: t, Level: startLevel}}
	t += idleStart

	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	half := bitPeriod / 2
	for _, b := range bits {
		pair := zero
		if b == 1 {
			pair = one
		}
		emit(pair[0])
		t += half
		emit(pair[1])
		t += half
	}
	t += idleEnd
	return out
}
