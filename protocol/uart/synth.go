package uart

import (
	"github.com/kevinpt/ripyl-go/internal/util"
	"github.com/kevinpt/ripyl-go/stream"
)

// Synth is the inverse of Decode: it turns a byte payload into the edge stream a
// transmitter would produce. idleStart/interFrame/idleEnd are in
// seconds.
func Synth(data []byte, opts Options, baud int, idleStart, interFrame, idleEnd float64) stream.EdgeStream {
	bitPeriod := 1.0 / float64(baud)
	t := 0.0
	out := stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	for fi, b := range data {
		if fi > 0 {
			t += interFrame
		}
		emit(0) // start bit
		t += bitPeriod

		parity := 0
		for i := 0; i < opts.Bits; i++ {
			bit := util.IfThenElse(opts.LSBFirst, int(b>>i)&1, int(b>>(opts.Bits-1-i))&1)
			parity ^= bit
			emit(bit)
			t += bitPeriod
		}

		if opts.Parity != ParityNone {
			p := parity
			if opts.Parity == ParityOdd {
				p = 1 - parity
			}
			emit(p)
			t += bitPeriod
		}

		emit(1) // stop bit(s), mark
		t += opts.StopBits * bitPeriod
	}
	t += idleEnd
	_ = t

	if opts.IdleLow {
		inverted := make(stream.EdgeStream, len(out))
		for i, e := range out {
			inverted[i] = stream.Edge{Time: e.Time, Level: 1 - e.Level}
		}
		return inverted
	}
	return out
}
