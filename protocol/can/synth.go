package can

import (
	"github.com/kevinpt/ripyl-go/internal/util"
	"github.com/kevinpt/ripyl-go/stream"
)

// Synth is the inverse of Decode: it builds the dominant/recessive edge stream for a sequence
// of frames, bit-stuffed from SOF through the CRC field inclusive. The ACK slot is always
// synthesized as driven low (acknowledged).
func Synth(frames []Frame, bitPeriod, idleStart, interFrame, idleEnd float64) stream.EdgeStream {
	t := 0.0
	out := stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	for fi, f := range frames {
		if fi > 0 {
			t += interFrame
		}
		stuffed := stuffBits(buildLogicalBits(f))
		for _, b := range stuffed {
			emit(b)
			t += bitPeriod
		}
		emit(1) // CRC delimiter
		t += bitPeriod
		emit(0) // ACK slot, driven low
		t += bitPeriod
		emit(1) // ACK delimiter
		t += bitPeriod
		for i := 0; i < 7; i++ {
			emit(1)
			t += bitPeriod
		}
	}
	t += idleEnd
	return out
}

func buildLogicalBits(f Frame) []int {
	bits := []int{0} // SOF, dominant
	rtrBit := 0
	if f.RTR {
		rtrBit = 1
	}

	if f.Extended {
		base := (f.ID >> 18) & 0x7FF
		ext := f.ID & 0x3FFFF
		bits = append(bits, bitsFromUint(base, 11)...)
		bits = append(bits, 1) // SRR, recessive
		bits = append(bits, 1) // IDE = 1
		bits = append(bits, bitsFromUint(ext, 18)...)
		bits = append(bits, rtrBit)
		bits = append(bits, 0) // r1
	} else {
		bits = append(bits, bitsFromUint(f.ID&0x7FF, 11)...)
		bits = append(bits, rtrBit)
		bits = append(bits, 0) // IDE = 0
	}
	bits = append(bits, 0) // r0

	dlc := util.Clamp(f.DLC, 0, 8)
	bits = append(bits, bitsFromUint(uint32(dlc), 4)...)
	for i := 0; i < dlc; i++ {
		var b byte
		if i < len(f.Data) {
			b = f.Data[i]
		}
		bits = append(bits, bitsFromUint(uint32(b), 8)...)
	}

	crc := crc15(bits)
	bits = append(bits, bitsFromUint(uint32(crc), 15)...)
	return bits
}

func bitsFromUint(v uint32, n int) []int {
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int((v >> uint(n-1-i)) & 1)
	}
	return out
}

// stuffBits inserts the mandatory opposite bit after every run of five identical bits, the
// inverse of bitReader's destuffing loop in can.go.
func stuffBits(bits []int) []int {
	out := make([]int, 0, len(bits)+len(bits)/4)
	runLen := 0
	last := -1
	for _, b := range bits {
		out = append(out, b)
		if b == last {
			runLen++
		} else {
			last = b
			runLen = 1
		}
		if runLen == 5 {
			stuff := 1 - b
			out = append(out, stuff)
			last = stuff
			runLen = 1
		}
	}
	return out
}
