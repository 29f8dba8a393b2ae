// Package lin decodes Local Interconnect Network frames: a break condition, the 0x55 sync
// byte, a parity-protected PID, a fixed-length data field, and a checksum.
//
// Once the break's extended dominant run and its one-bit delimiter are consumed, the
// remainder of the stream is indistinguishable from a standard 8-N-1 UART byte sequence, so
// the byte framing is delegated to the uart package.
package lin

import (
	"math"

	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/protocol/uart"
	"github.com/kevinpt/ripyl-go/stream"
)

// Status codes contiguous with stream.Error.
const (
	StatusPIDError      = stream.Error + 1
	StatusChecksumError = stream.Error + 2
)

// Frame is the decoded payload of a LIN message record.
type Frame struct {
	ID        byte
	Data      []byte
	Checksum  byte
	PIDParity byte
	Enhanced  bool
}

const minBreakBits = 10

// Decode finds each break condition (an extended dominant run of at least minBreakBits bit
// periods followed by a one-bit recessive delimiter) and decodes the sync/PID/data/checksum
// bytes that follow it as standard UART bytes.
func Decode(edges stream.EdgeStream, baud int, dataLen int, enhanced bool) ([]*stream.Segment, error) {
	bitPeriod := 1.0 / float64(baud)
	w := edge.NewWalker(edges)

	var frames []*stream.Segment
	for !w.AtEnd() {
		if w.CurState() != 0 {
			if w.AdvanceToEdge() == 0 {
				break
			}
			continue
		}
		breakStart := w.CursorTime()
		lowTime := w.AdvanceToEdge()
		if lowTime == 0 {
			break
		}
		lowBits := int(math.Round(lowTime / bitPeriod))
		if lowBits < minBreakBits {
			continue
		}

		// The cursor now sits on the break delimiter's rising edge. Cut the sub-stream from
		// half a bit later, safely inside the recessive delimiter, so the sync byte's
		// start-bit edge is the first transition the UART decoder sees.
		sub := subStreamFrom(edges, w.CursorTime()+bitPeriod/2)
		opts := uart.Options{Bits: 8, Parity: uart.ParityNone, StopBits: 1, LSBFirst: true, Baud: baud}
		raw, err := uart.Decode(sub, opts)
		if err != nil || len(raw) < dataLen+3 {
			frames = append(frames, &stream.Segment{StartTime: breakStart, EndTime: w.CursorTime(), KindTag: "lin_frame", StatusCode: StatusPIDError})
			continue
		}

		pidByte := raw[1].Data.(uart.Frame).Byte
		id := pidByte & 0x3F
		parity := pidByte >> 6
		data := make([]byte, dataLen)
		for i := 0; i < dataLen; i++ {
			data[i] = raw[2+i].Data.(uart.Frame).Byte
		}
		checksumByte := raw[2+dataLen].Data.(uart.Frame).Byte

		status := stream.Status(stream.Ok)
		switch {
		case parity != Pid(id)>>6:
			status = StatusPIDError
		case checksumByte != Checksum(pidByte, data, enhanced):
			status = StatusChecksumError
		}

		endTime := raw[2+dataLen].End()
		frames = append(frames, &stream.Segment{
			StartTime:  breakStart,
			EndTime:    endTime,
			KindTag:    "lin_frame",
			Data:       Frame{ID: id, Data: data, Checksum: checksumByte, PIDParity: parity, Enhanced: enhanced},
			StatusCode: status,
		})

		for !w.AtEnd() && w.CursorTime() < endTime {
			if w.AdvanceToEdge() == 0 {
				break
			}
		}
	}
	return frames, nil
}

func subStreamFrom(edges stream.EdgeStream, from float64) stream.EdgeStream {
	var out stream.EdgeStream
	for _, e := range edges {
		if e.Time >= from {
			out = append(out, e)
		}
	}
	if len(out) == 0 || out[0].Time > from {
		out = append(stream.EdgeStream{{Time: from, Level: 1}}, out...)
	}
	return out
}

var p0Mask = byte(0x17) // id bits 0,1,2,4
var p1Mask = byte(0x3A) // id bits 1,3,4,5

func parityXOR(v byte) byte {
	var x byte
	for v != 0 {
		x ^= v & 1
		v >>= 1
	}
	return x
}

// Pid builds a LIN PID byte (parity bits in the top two positions) from a 6-bit ID.
func Pid(id byte) byte {
	id &= 0x3F
	p0 := parityXOR(id & p0Mask)
	p1 := parityXOR(id&p1Mask) ^ 1
	return p1<<7 | p0<<6 | id
}

// Checksum computes the LIN checksum: an inverted 8-bit end-around-carry sum over data (the
// classic method) or over pid+data (the enhanced method).
func Checksum(pid byte, data []byte, enhanced bool) byte {
	bytesToSum := data
	if enhanced {
		bytesToSum = append([]byte{pid}, data...)
	}
	cs := 0
	for _, d := range bytesToSum {
		cs += int(d)
		if cs >= 256 {
			cs -= 255
		}
	}
	return byte(cs ^ 0xFF)
}
