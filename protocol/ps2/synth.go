package ps2

import "github.com/kevinpt/ripyl-go/stream"

// rtsHold is how long a synthesized host holds the clock low to request transmission.
const rtsHold = 110e-6

// Synth is the inverse of Decode: it builds the clk/data edge streams for a sequence of
// frames at the given clock frequency. Device-to-host frames
// change data while the clock is high and are sampled on falling edges; host-to-device
// frames start with the host's long clock hold, are sampled on rising edges, and end with
// the device's ack pulse.
func Synth(frames []Frame, clockFreq float64, idleStart, wordInterval, idleEnd float64) (clk, data stream.EdgeStream) {
	t := 0.0
	clk = stream.EdgeStream{{Time: t, Level: 1}}
	data = stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	emitClk := func(level int) {
		if clk[len(clk)-1].Level != level {
			clk = append(clk, stream.Edge{Time: t, Level: level})
		}
	}
	emitData := func(level int) {
		if data[len(data)-1].Level != level {
			data = append(data, stream.Edge{Time: t, Level: level})
		}
	}

	half := 1.0 / (2.0 * clockFreq)

	for fi, f := range frames {
		if fi > 0 {
			t += wordInterval
		}
		// start, 8 data LSB-first, odd parity, stop
		p := 1
		bits := []int{0}
		for i := 0; i < 8; i++ {
			b := int(f.Data>>uint(i)) & 1
			p ^= b
			bits = append(bits, b)
		}
		bits = append(bits, p, 1)

		if f.Dir == DeviceToHost {
			for _, b := range bits {
				emitData(b)
				t += half
				emitClk(0)
				t += half
				emitClk(1)
			}
			continue
		}

		// Host request-to-send: clock held low, then the device clocks the host's bits.
		emitClk(0)
		t += rtsHold
		for _, b := range bits[:10] { // start, data, parity
			emitData(b)
			t += half
			emitClk(1)
			t += half
			emitClk(0)
		}
		// Stop bit is driven for three quarters of a cycle before the device acks.
		emitData(1)
		t += half
		emitClk(1)
		t += half / 2
		emitData(0)
		t += half / 2
		emitClk(0)
		t += half
		emitClk(1)
		emitData(1)
	}
	t += idleEnd
	return clk, data
}
