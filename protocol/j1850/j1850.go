// Package j1850 decodes the Variable Pulse Width (VPW) variant of SAE J1850 (GM/Chrysler):
// a pulse-width-coded header/target/source/data/CRC-8 frame framed by break and SOF pulses.
// The decoder measures the duration of the pulse the cursor currently sits on before
// deciding whether it is a SOF, a data bit, an end-of-data gap, or a break.
//
// The PWM variant and In-Frame Response are not implemented: PWM requires a differential
// Bus+/Bus- pair this module's single edge-stream decoders don't model (see DESIGN.md).
package j1850

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("j1850", nil)

// MsgType is the 4-bit J1850 message type field.
type MsgType byte

const (
	Function        MsgType = 0
	Broadcast       MsgType = 1
	FunctionQuery   MsgType = 2
	FunctionRead    MsgType = 3
	NodeToNodeIFR   MsgType = 4
	FunctionCmd     MsgType = 8
	FunctionRqst    MsgType = 9
	FunctionExtCmd  MsgType = 10
	FunctionExtRqst MsgType = 11
	NodeToNode      MsgType = 12
	Ack             MsgType = 14
)

// Status codes contiguous with stream.Error.
const (
	StatusCRCError = stream.Error + 1
)

// Frame is the decoded payload of a j1850_frame record. Target and Source are nil for the
// 1-byte header format (no physical addressing).
type Frame struct {
	Priority int
	MsgType  MsgType
	Target   *byte
	Source   *byte
	Data     []byte
}

// headerByte reconstructs the header byte: priority in the top 3 bits, the 1-byte-header
// flag (0x10) when Target/Source are absent, and MsgType in the low nibble.
func (f Frame) headerByte() byte {
	format := byte(0)
	if f.Target == nil || f.Source == nil {
		format = 0x10
	}
	return (byte(f.MsgType) & 0x0F) | format | ((byte(f.Priority) & 0x7) << 5)
}

// Bytes returns the on-wire header[, target, source][, data...][, CRC] sequence.
func (f Frame) Bytes() []byte {
	var out []byte
	if f.Target != nil && f.Source != nil {
		out = []byte{f.headerByte(), *f.Target, *f.Source}
	} else {
		out = []byte{f.headerByte()}
	}
	out = append(out, f.Data...)
	return append(out, CRC8(out))
}

// pulse-width thresholds for VPW, in seconds.
const (
	sofMin         = 163e-6
	sofMax         = 239e-6
	bitMin         = 34e-6
	bitLongCutoff  = 96e-6
	bitMax         = 163e-6
	breakThreshold = 280e-6
)

// Decode walks a single VPW edge stream and yields a flat, time-ordered record stream: a
// j1850_break Event wherever the line holds active (1) past the break threshold, and a
// j1850_frame Segment (with header/target/source/data/CRC subrecords) for every frame that
// passes bit-count and header-length validation.
func Decode(edges stream.EdgeStream) []stream.Record {
	w := edge.NewWalker(edges)
	var out []stream.Record

	for !w.AtEnd() {
		if w.AdvanceToEdge() == 0 {
			break
		}
		if w.CurState() != 1 {
			continue
		}
		frameStart := w.CursorTime()
		pw, ok := w.PeekPulse()
		if !ok {
			break
		}
		switch {
		case pw > breakThreshold:
			logger.Debug("break condition", "time", frameStart)
			out = append(out, &stream.Event{Time: frameStart, KindTag: "j1850_break", StatusCode: stream.Ok})
			w.AdvanceToEdge()
		case pw >= sofMin && pw <= sofMax:
			w.AdvanceToEdge() // past SOF, cursor now at start of first bit's pulse
			if seg, brk := decodeFrameBody(w, frameStart); brk != nil {
				out = append(out, brk)
			} else if seg != nil {
				out = append(out, seg)
			}
		}
	}
	return out
}

func decodeFrameBody(w *edge.Walker, frameStart float64) (*stream.Segment, *stream.Event) {
	bits, starts, lastPulse := collectBits(w)
	if lastPulse > breakThreshold && w.CurState() == 1 {
		return nil, &stream.Event{Time: w.CursorTime(), KindTag: "j1850_break", StatusCode: stream.Ok}
	}
	if len(bits)%8 != 0 || len(bits) < 16 {
		logger.Debug("discarding frame with invalid bit count", "bits", len(bits))
		return nil, nil
	}

	n := len(bits) / 8
	bytesArr := make([]byte, n)
	for i := 0; i < n; i++ {
		bytesArr[i] = bitsToByteMSB(bits[i*8 : i*8+8])
	}

	headerLen := 3
	if bytesArr[0]&0x10 != 0 {
		headerLen = 1
	}
	if headerLen == 3 && n < 4 {
		logger.Debug("discarding frame shorter than its 3-byte header implies", "bytes", n)
		return nil, nil
	}

	priority := int(bytesArr[0] >> 5)
	msgType := MsgType(bytesArr[0] & 0x0F)
	data := append([]byte{}, bytesArr[headerLen:n-1]...)
	if len(data) == 0 {
		data = nil
	}

	check := bytesArr[:n-1]
	recvCRC := bytesArr[n-1]
	calcCRC := CRC8(check)
	status := stream.Status(stream.Ok)
	if recvCRC != calcCRC {
		status = StatusCRCError
		logger.Warn("CRC mismatch", "want", calcCRC, "got", recvCRC)
	}

	frame := Frame{Priority: priority, MsgType: msgType, Data: data}

	byteStart := func(i int) float64 { return starts[i*8] }
	byteEnd := func(i int) float64 {
		if (i+1)*8 < len(starts) {
			return starts[(i+1)*8]
		}
		return w.CursorTime()
	}

	subrecords := []stream.Record{
		&stream.Segment{StartTime: byteStart(0), EndTime: byteEnd(0), KindTag: "header", Data: bytesArr[0], StatusCode: stream.Ok},
	}
	if headerLen == 3 {
		frame.Target = &bytesArr[1]
		frame.Source = &bytesArr[2]
		subrecords = append(subrecords,
			&stream.Segment{StartTime: byteStart(1), EndTime: byteEnd(1), KindTag: "target", Data: bytesArr[1], StatusCode: stream.Ok},
			&stream.Segment{StartTime: byteStart(2), EndTime: byteEnd(2), KindTag: "source", Data: bytesArr[2], StatusCode: stream.Ok},
		)
	}
	for i := headerLen; i < n-1; i++ {
		subrecords = append(subrecords, &stream.Segment{StartTime: byteStart(i), EndTime: byteEnd(i), KindTag: "data", Data: bytesArr[i], StatusCode: stream.Ok})
	}
	subrecords = append(subrecords, &stream.Segment{StartTime: byteStart(n - 1), EndTime: byteEnd(n - 1), KindTag: "CRC", Data: recvCRC, StatusCode: status})

	seg := &stream.Segment{
		StartTime:  frameStart,
		EndTime:    byteEnd(n - 1),
		KindTag:    "j1850_frame",
		Data:       frame,
		StatusCode: status,
		Subrecords: subrecords,
	}
	return seg, nil
}

// collectBits decodes VPW bits one pulse at a time until it finds a pulse too long to be a
// bit (end-of-data or break, returned unconsumed via lastPulse) or too short to be
// valid. isPassive tracks which half of the alternating passive/active cycle the cursor
// is in; it starts passive immediately after the SOF pulse falls.
func collectBits(w *edge.Walker) (bits []int, starts []float64, lastPulse float64) {
	isPassive := true
	for {
		pw, ok := w.PeekPulse()
		if !ok {
			return bits, starts, 0
		}
		if pw > bitMax || pw < bitMin {
			return bits, starts, pw
		}

		bit := 0
		long := pw > bitLongCutoff
		switch {
		case long && isPassive, !long && !isPassive:
			bit = 1
		}
		bits = append(bits, bit)
		starts = append(starts, w.CursorTime())
		isPassive = !isPassive
		w.AdvanceToEdge()
	}
}

func bitsToByteMSB(bits []int) byte {
	var v byte
	for _, b := range bits {
		v = v<<1 | byte(b&1)
	}
	return v
}

var crc8Table = func() [256]byte {
	const poly = 0x1D
	var tbl [256]byte
	for i := range tbl {
		sreg := byte(i)
		for j := 0; j < 8; j++ {
			if sreg&0x80 != 0 {
				sreg = (sreg << 1) ^ poly
			} else {
				sreg <<= 1
			}
		}
		tbl[i] = sreg
	}
	return tbl
}()

// CRC8 computes the J1850 CRC-8 (polynomial 0x1D, init 0xFF, invert out) byte-wise over data
// using a precomputed table.
func CRC8(data []byte) byte {
	sreg := byte(0xFF)
	for _, b := range data {
		idx := sreg ^ b
		sreg = crc8Table[idx]
	}
	return sreg ^ 0xFF
}
