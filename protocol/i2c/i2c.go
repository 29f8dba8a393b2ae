// Package i2c decodes I²C transfers from SCL/SDA edge streams: start/restart/stop
// conditions, a 7-bit address plus read/write bit, and acknowledged data bytes. An SCL
// rising edge samples each bit, and a 9th bit is always the ack.
//
// 10-bit addressing is not handled: it requires carrying an address byte across a restart
// with no way to validate it from the wire alone.
package i2c

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("i2c", nil)

// Status codes contiguous with stream.Error.
const (
	StatusAckError = stream.Error + 1
)

// Address is the decoded 7-bit address and direction bit of a transfer's header.
type Address struct {
	Addr byte
	RWn  int // 0 = write, 1 = read
}

// Byte is one decoded data byte plus its trailing ack bit (0 = acked).
type Byte struct {
	Data   byte
	AckBit int
}

const (
	sclChan = "scl"
	sdaChan = "sda"
)

type state int

const (
	stateIdle state = iota
	stateAddr
	stateData
)

// Decode walks scl/sda together and emits a flat, time-ordered record stream: Event records
// for start/restart/stop conditions, one Segment per address byte, and one Segment per data
// byte.
func Decode(scl, sda stream.EdgeStream) []stream.Record {
	mw := edge.NewMultiWalker(map[string]stream.EdgeStream{sclChan: scl, sdaChan: sda})

	var out []stream.Record
	st := stateIdle
	var bits []int
	bitStart := 0.0

	prevScl := mw.CurState(sclChan)
	prevSda := mw.CurState(sdaChan)

	for !mw.AtEnd() {
		dt := mw.AdvanceToEdge("")
		if dt == 0 {
			break
		}
		curScl := mw.CurState(sclChan)
		curSda := mw.CurState(sdaChan)
		sdaChanged := curSda != prevSda
		sclChanged := curScl != prevScl
		prevScl, prevSda = curScl, curSda

		// An SDA transition while SCL stays high is a start, restart, or stop condition,
		// never a data bit (the bus only moves SDA during the SCL-low half otherwise).
		if sdaChanged && curScl == 1 {
			switch {
			case curSda == 0:
				kind := "i2c_start"
				if st != stateIdle {
					kind = "i2c_restart"
				}
				out = append(out, &stream.Event{Time: mw.CursorTime(), KindTag: kind, StatusCode: stream.Ok})
				st = stateAddr
				bits = nil
			case curSda == 1 && st != stateIdle:
				out = append(out, &stream.Event{Time: mw.CursorTime(), KindTag: "i2c_stop", StatusCode: stream.Ok})
				st = stateIdle
			}
			continue
		}

		if st == stateIdle || !sclChanged || curScl != 1 {
			continue
		}
		// An SCL rising edge samples the current SDA bit.
		if len(bits) == 0 {
			bitStart = mw.CursorTime()
		}
		bits = append(bits, curSda)
		if len(bits) < 9 {
			continue
		}

		word := byte(0)
		for _, b := range bits[:8] {
			word = word<<1 | byte(b&1)
		}
		ack := bits[8]
		end := mw.CursorTime()

		if ack != 0 {
			logger.Warn("missing ack", "byte", word)
		}

		if st == stateAddr {
			out = append(out, &stream.Segment{
				StartTime: bitStart, EndTime: end, KindTag: "i2c_address",
				Data:       Address{Addr: word >> 1, RWn: int(word & 1)},
				StatusCode: ackStatus(ack),
			})
			st = stateData
		} else {
			out = append(out, &stream.Segment{
				StartTime: bitStart, EndTime: end, KindTag: "i2c_byte",
				Data:       Byte{Data: word, AckBit: ack},
				StatusCode: ackStatus(ack),
			})
		}
		bits = nil
	}
	return out
}

func ackStatus(ack int) stream.Status {
	if ack != 0 {
		return StatusAckError
	}
	return stream.Ok
}
