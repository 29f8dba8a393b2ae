// Package can decodes Controller Area Network frames from a single differential-derived edge
// stream: SOF detection, standard/extended ID fields, bit destuffing, and CRC-15 validation.
//
// Bit stuffing applies from SOF through the CRC field only; the delimiters, ACK slot, and
// EOF are read raw. A stuffing violation terminates frame accumulation and the decoder
// resynchronizes on the next recessive-to-dominant transition.
package can

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/decodeerr"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/internal/util"
	"github.com/kevinpt/ripyl-go/rate"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("can", nil)

// Status codes contiguous with stream.Error.
const (
	StatusCRCError   = stream.Error + 1
	StatusStuffError = stream.Error + 2
	StatusFormError  = stream.Error + 3
)

// StandardRates are the bit rates auto-detection snaps to.
var StandardRates = []int{10000, 20000, 50000, 125000, 250000, 500000, 800000, 1000000}

// Frame is the decoded payload of a CAN frame record.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	DLC      int
	Data     []byte
	CRC      uint16
	Ack      bool
}

// BitTiming divides a bit into {sync(1), prop, phase1, phase2} time quanta, with phase2
// stretched to cover the information processing time. The sample point sits at the
// end of phase1.
type BitTiming struct {
	Prop   int // propagation segment quanta
	Phase1 int // phase buffer segment 1 quanta
	IPT    int // information processing time quanta
}

// DefaultBitTiming is a common 16-quanta configuration with a 75% sample point.
func DefaultBitTiming() BitTiming {
	return BitTiming{Prop: 7, Phase1: 4, IPT: 2}
}

// Phase2 returns the phase buffer segment 2 length: max(phase1, IPT) quanta.
func (bt BitTiming) Phase2() int {
	if bt.IPT > bt.Phase1 {
		return bt.IPT
	}
	return bt.Phase1
}

// Quanta returns the total time quanta per bit.
func (bt BitTiming) Quanta() int {
	return 1 + bt.Prop + bt.Phase1 + bt.Phase2()
}

// SamplePoint returns the sample position as a fraction of the bit period: after the
// sync, prop, and phase1 segments.
func (bt BitTiming) SamplePoint() float64 {
	return float64(1+bt.Prop+bt.Phase1) / float64(bt.Quanta())
}

// ResyncJump returns the resynchronization jump width in quanta, bounded to min(4, phase1).
func (bt BitTiming) ResyncJump() int {
	if bt.Phase1 < 4 {
		return bt.Phase1
	}
	return 4
}

// Options configures a CAN decode. Baud of 0 triggers auto-rate detection; a nil Timing uses
// DefaultBitTiming.
type Options struct {
	Baud   int
	Timing *BitTiming
}

const autoRateProbeEdges = 50

// Decode walks a recessive-idle (1) edge stream and emits one Segment per recognized
// frame. A bit-stuffing violation or CRC mismatch is attached as record status rather than
// aborting the decode; the walker resynchronizes on the next idle-to-dominant transition.
func Decode(edges stream.EdgeStream, opts Options) ([]*stream.Segment, error) {
	baud := opts.Baud
	if baud == 0 {
		probe := edges
		if len(probe) > autoRateProbeEdges {
			probe = probe[:autoRateProbeEdges]
		}
		r, err := rate.Estimate(probe, rate.Options{Spectra: 2})
		if err != nil {
			logger.Warn("auto-rate estimation failed", "err", err)
			return nil, err
		}
		baud = rate.SnapToStandard(r, StandardRates)
		logger.Debug("auto-rate estimated", "baud", baud)
	}
	if baud <= 0 {
		return nil, decodeerr.New(decodeerr.AutoBaud, "non-positive bit rate")
	}
	bitPeriod := 1.0 / float64(baud)
	timing := DefaultBitTiming()
	if opts.Timing != nil {
		timing = *opts.Timing
	}
	w := edge.NewWalker(edges)

	var frames []*stream.Segment
	for !w.AtEnd() {
		if w.CurState() != 0 {
			if w.AdvanceToEdge() == 0 {
				break
			}
			continue
		}
		if seg, ok := decodeFrame(w, bitPeriod, timing.SamplePoint()); ok {
			frames = append(frames, seg)
		}
		// Resynchronize on the next recessive state so a frame cut short by an error
		// doesn't anchor the next decode mid-burst.
		for !w.AtEnd() && w.CurState() == 0 {
			if w.AdvanceToEdge() == 0 {
				break
			}
		}
	}
	return frames, nil
}

// bitReader pulls destuffed bits one at a time, tracking runs of identical bits and flagging a
// violation when a run of five is not followed by the mandatory opposite stuff bit.
type bitReader struct {
	w         *edge.Walker
	bitPeriod float64
	last      int
	runLen    int
	violated  bool
}

func (r *bitReader) next() (int, bool) {
	for {
		r.w.Advance(r.bitPeriod)
		if r.w.AtEnd() {
			return 0, false
		}
		raw := r.w.CurState()
		if r.runLen == 5 {
			if raw == r.last {
				r.violated = true
				return 0, false
			}
			r.last = raw
			r.runLen = 1
			continue
		}
		if raw == r.last {
			r.runLen++
		} else {
			r.last = raw
			r.runLen = 1
		}
		return raw, true
	}
}

func readBits(br *bitReader, n int) ([]int, bool) {
	bits := make([]int, n)
	for i := range bits {
		b, ok := br.next()
		if !ok {
			return nil, false
		}
		bits[i] = b
	}
	return bits, true
}

func decodeFrame(w *edge.Walker, bitPeriod, samplePoint float64) (*stream.Segment, bool) {
	sofTime := w.CursorTime()
	// Offset the cursor so every subsequent one-bit advance lands on the sample point
	// inside each bit cell rather than on a cell boundary.
	w.Advance(samplePoint * bitPeriod)
	br := &bitReader{w: w, last: 0, runLen: 1, bitPeriod: bitPeriod}

	idBits, ok := readBits(br, 11)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	srrOrRTR, ok := readBits(br, 1)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	ideBit, ok := readBits(br, 1)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	extended := ideBit[0] == 1

	crcBitsInput := append([]int{0}, idBits...)
	crcBitsInput = append(crcBitsInput, srrOrRTR...)
	crcBitsInput = append(crcBitsInput, ideBit...)

	var extIDBits, rtrBits, r1Bits []int
	id := bitsToUint32(idBits)
	if extended {
		extIDBits, ok = readBits(br, 18)
		if !ok {
			return earlyEnd(br, sofTime, w.CursorTime()), true
		}
		rtrBits, ok = readBits(br, 1)
		if !ok {
			return earlyEnd(br, sofTime, w.CursorTime()), true
		}
		r1Bits, ok = readBits(br, 1)
		if !ok {
			return earlyEnd(br, sofTime, w.CursorTime()), true
		}
		id = (id << 18) | bitsToUint32(extIDBits)
		crcBitsInput = append(crcBitsInput, extIDBits...)
		crcBitsInput = append(crcBitsInput, rtrBits...)
		crcBitsInput = append(crcBitsInput, r1Bits...)
	} else {
		rtrBits = srrOrRTR
	}

	r0Bits, ok := readBits(br, 1)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	crcBitsInput = append(crcBitsInput, r0Bits...)

	dlcBits, ok := readBits(br, 4)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	crcBitsInput = append(crcBitsInput, dlcBits...)
	dlc := util.Clamp(int(bitsToUint32(dlcBits)), 0, 8)

	var dataBits []int
	for i := 0; i < dlc; i++ {
		b, ok := readBits(br, 8)
		if !ok {
			return earlyEnd(br, sofTime, w.CursorTime()), true
		}
		dataBits = append(dataBits, b...)
	}
	crcBitsInput = append(crcBitsInput, dataBits...)

	crcBits, ok := readBits(br, 15)
	if !ok {
		return earlyEnd(br, sofTime, w.CursorTime()), true
	}
	crcRecv := uint16(bitsToUint32(crcBits))
	crcCalc := crc15(crcBitsInput)

	// delimiter, ack slot, ack delimiter, and EOF are not stuffed: read raw bits directly.
	w.Advance(bitPeriod) // CRC delimiter, expected recessive
	w.Advance(bitPeriod)
	ackSlot := w.CurState()
	w.Advance(bitPeriod) // ACK delimiter
	for i := 0; i < 7; i++ {
		w.Advance(bitPeriod)
	}
	endTime := w.CursorTime()

	status := stream.Status(stream.Ok)
	switch {
	case br.violated:
		status = StatusStuffError
		logger.Warn("bit stuffing violation", "id", id)
	case crcCalc != crcRecv:
		status = StatusCRCError
		logger.Warn("CRC mismatch", "id", id, "want", crcCalc, "got", crcRecv)
	}

	frame := Frame{
		ID:       id,
		Extended: extended,
		RTR:      rtrBits[0] == 1,
		DLC:      dlc,
		Data:     bitsToBytes(dataBits),
		CRC:      crcRecv,
		Ack:      ackSlot == 0,
	}

	return &stream.Segment{
		StartTime:  sofTime,
		EndTime:    endTime,
		KindTag:    "can_frame",
		Data:       frame,
		StatusCode: status,
	}, true
}

// earlyEnd builds the record for a frame that terminated before its expected field boundary:
// a stuff violation if the reader saw one (the start of error/overload frame recovery), a
// form error otherwise.
func earlyEnd(br *bitReader, start, end float64) *stream.Segment {
	status := stream.Status(StatusFormError)
	if br.violated {
		status = StatusStuffError
		logger.Warn("bit stuffing violation terminated frame", "start", start)
	} else {
		logger.Warn("form error: frame ended before expected field boundary", "start", start)
	}
	return &stream.Segment{StartTime: start, EndTime: end, KindTag: "can_frame", StatusCode: status}
}

// crc15 computes the CAN CRC-15 (polynomial 0x4599, init 0, no reflection, no final
// inversion) over the SOF..data logical bit sequence.
func crc15(bits []int) uint16 {
	const poly = uint16(0x4599)
	crc := uint16(0)
	for _, b := range bits {
		top := (crc >> 14) & 1
		crc = (crc << 1) & 0x7FFF
		if top^uint16(b&1) == 1 {
			crc ^= poly
		}
	}
	return crc & 0x7FFF
}

func bitsToUint32(bits []int) uint32 {
	var v uint32
	for _, b := range bits {
		v = v<<1 | uint32(b&1)
	}
	return v
}

func bitsToBytes(bits []int) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var v byte
		for j := 0; j < 8; j++ {
			v = v<<1 | byte(bits[i*8+j]&1)
		}
		out[i] = v
	}
	return out
}
