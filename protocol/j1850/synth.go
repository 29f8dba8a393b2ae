package j1850

import "github.com/kevinpt/ripyl-go/stream"

// bit pulse widths for VPW passive/active phases.
const (
	shortPulse = 64e-6
	longPulse  = 128e-6
	sofPulse   = 200e-6
	eofGap     = 280e-6
	ifsGap     = 100e-6
)

// Synth is the inverse of Decode: it builds the idle/SOF/bit/EOF edge stream for a sequence of
// frames. Each frame starts from an active (1) SOF pulse; bits alternate passive/active
// phase, encoding 0 as the phase's short pulse and 1 as its long pulse.
func Synth(frames []Frame, idleStart, frameInterval, idleEnd float64) stream.EdgeStream {
	t := 0.0
	out := stream.EdgeStream{{Time: t, Level: 0}}
	t += idleStart

	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	for fi, f := range frames {
		if fi > 0 {
			t += frameInterval
		}
		emit(1) // SOF
		t += sofPulse

		isPassive := true
		for _, b := range f.Bytes() {
			for i := 7; i >= 0; i-- {
				bit := int(b>>uint(i)) & 1
				long := bit == 1
				level := 0
				if !isPassive {
					level = 1
					long = bit == 0
				}
				emit(level)
				pw := shortPulse
				if long {
					pw = longPulse
				}
				t += pw
				isPassive = !isPassive
			}
		}
		emit(0) // forced low after the final bit (an even bit count would otherwise leave the line active)
		t += eofGap
		t += ifsGap
	}
	t += idleEnd
	emit(0)
	return out
}
