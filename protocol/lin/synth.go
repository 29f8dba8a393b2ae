package lin

import "github.com/kevinpt/ripyl-go/stream"

// Synth is the inverse of Decode: it builds a break, a one-bit delimiter, and the standard
// UART-framed sync/PID/data/checksum bytes for a single message.
func Synth(id byte, data []byte, baud int, enhanced bool, idleStart, idleEnd float64) stream.EdgeStream {
	bitPeriod := 1.0 / float64(baud)
	t := 0.0
	out := stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	emit(0)
	t += float64(minBreakBits+3) * bitPeriod
	emit(1)
	t += bitPeriod // break delimiter

	pid := Pid(id)
	cs := Checksum(pid, data, enhanced)
	payload := append([]byte{0x55, pid}, data...)
	payload = append(payload, cs)

	writeByte := func(b byte) {
		emit(0)
		t += bitPeriod
		for i := 0; i < 8; i++ {
			bit := int(b>>uint(i)) & 1
			emit(bit)
			t += bitPeriod
		}
		emit(1)
		t += bitPeriod
	}
	for _, b := range payload {
		writeByte(b)
	}
	t += idleEnd
	return out
}
