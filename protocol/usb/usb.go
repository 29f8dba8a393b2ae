// Package usb decodes USB packets from a single-ended D+/D- edge pair: line-state
// derivation, sync detection, NRZI decoding, bit unstuffing, and per-PID field/CRC checks.
//
// High-speed is decoded on the same single-ended J/K/SE0 model as Low/Full rather than
// modeling the HSIC strobe-line scheme; see DESIGN.md for that narrowing.
package usb

import (
	"math"

	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/bitbuf"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/rate"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("usb", nil)

// Speed selects the bus clock period used to interpret dp/dm.
type Speed int

const (
	Low Speed = iota
	Full
	High
)

// ClockPeriod returns the bit period for a bus speed.
func ClockPeriod(s Speed) float64 {
	switch s {
	case Low:
		return 1.0 / 1.5e6
	case High:
		return 1.0 / 480e6
	default:
		return 1.0 / 12e6
	}
}

// BitRate returns the bus speed's bit rate in Hz.
func BitRate(s Speed) float64 {
	return 1.0 / ClockPeriod(s)
}

// Symbol is a single-ended line state.
type Symbol int

const (
	SymJ Symbol = iota
	SymK
	SymSE0
	SymSE1
)

// PID nibble values. PidEXT is the extended-token PID from the Link Power
// Management ECN; an EXT packet is a pair of sub-packets combined into one record.
const (
	PidEXT    = 0x0
	PidOUT    = 0x1
	PidIN     = 0x9
	PidSOF    = 0x5
	PidSETUP  = 0xD
	PidDATA0  = 0x3
	PidDATA1  = 0xB
	PidDATA2  = 0x7
	PidMDATA  = 0xF
	PidACK    = 0x2
	PidNAK    = 0xA
	PidSTALL  = 0xE
	PidNYET   = 0x6
	PidPREERR = 0xC
	PidSPLIT  = 0x8
	PidPING   = 0x4
)

// Status codes contiguous with stream.Error.
const (
	StatusPIDError   = stream.Error + 1
	StatusStuffError = stream.Error + 2
	StatusCRCError   = stream.Error + 3
	StatusShortError = stream.Error + 4
)

// Kind classifies a decoded packet by its PID group.
type Kind int

const (
	KindToken Kind = iota
	KindSOF
	KindData
	KindHandshake
	KindSpecial
	KindEXT
)

// Packet is the decoded payload of a usb_packet record. For EXT packets the SubPID,
// Variable, and SubCRC5 fields carry the second sub-packet's contents.
type Packet struct {
	PID      byte
	Kind     Kind
	Addr     byte
	Endp     byte
	Frame    uint16
	Data     []byte
	CRC5     byte
	CRC16    uint16
	SubPID   byte
	Variable uint16
	SubCRC5  byte
}

var syncSymbols = []Symbol{SymK, SymJ, SymK, SymJ, SymK, SymJ, SymK, SymK}

const (
	dpChan = "dp"
	dmChan = "dm"
)

const speedProbeEdges = 50

// DetectSpeed estimates the bus speed from the first ~50 edges of one data line, running the
// symbol-rate estimator with two harmonic spectra and retrying with one before giving up, then
// snapping to the nearest of the three reference rates by log-distance.
// Differential captures should have their SE0 blips removed with edge.RemoveTransitions
// before calling.
func DetectSpeed(edges stream.EdgeStream) (Speed, error) {
	probe := edges
	if len(probe) > speedProbeEdges {
		probe = probe[:speedProbeEdges]
	}
	r, err := rate.Estimate(probe, rate.Options{Spectra: 2})
	if err != nil {
		r, err = rate.Estimate(probe, rate.Options{Spectra: 1})
		if err != nil {
			logger.Warn("speed detection failed", "err", err)
			return Full, err
		}
	}

	logRate := math.Log10(float64(r))
	best := Full
	bestDist := math.Inf(1)
	for _, s := range []Speed{Low, Full, High} {
		d := math.Abs(logRate - math.Log10(BitRate(s)))
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	logger.Debug("speed detected", "rate", r, "speed", best)
	return best, nil
}

// symbolAt derives the current single-ended line state; Low-speed flips the J/K polarity
// relative to Full/High.
func symbolAt(mw *edge.MultiWalker, speed Speed) Symbol {
	dp := mw.CurState(dpChan)
	dm := mw.CurState(dmChan)
	switch {
	case dp == 1 && dm == 1:
		return SymSE1
	case dp == 0 && dm == 0:
		return SymSE0
	}
	high := dp == 1 && dm == 0
	if speed == Low {
		if high {
			return SymK
		}
		return SymJ
	}
	if high {
		return SymJ
	}
	return SymK
}

// extHalf holds the first sub-packet of an EXT pair while the decoder waits for the
// second.
type extHalf struct {
	startTime float64
	endTime   float64
	addr      byte
	endp      byte
	crc5      byte
	status    stream.Status
}

func (h *extHalf) record(status stream.Status) *stream.Segment {
	if h.status > status {
		status = h.status
	}
	return &stream.Segment{
		StartTime:  h.startTime,
		EndTime:    h.endTime,
		KindTag:    "usb_ext_packet",
		Data:       Packet{PID: PidEXT, Kind: KindEXT, Addr: h.addr, Endp: h.endp, CRC5: h.crc5},
		StatusCode: status,
	}
}

// Decode scans dp/dm for each packet's SOP, verifying the 8-symbol sync at mid-symbol
// positions, then decodes the NRZI body that follows. An EXT token and the
// sub-packet that follows it across the interpacket gap are combined into a single record.
func Decode(dp, dm stream.EdgeStream, speed Speed) []*stream.Segment {
	bitPeriod := ClockPeriod(speed)
	mw := edge.NewMultiWalker(map[string]stream.EdgeStream{dpChan: dp, dmChan: dm})

	var packets []*stream.Segment
	var pending *extHalf

	for !mw.AtEnd() {
		if mw.AdvanceToEdge("") == 0 {
			break
		}
		sopStart := mw.CursorTime()
		mw.Advance(bitPeriod / 2)
		if !matchSync(mw, speed, bitPeriod) {
			continue
		}
		body, ok := readPacketBody(mw, bitPeriod, speed, sopStart)
		if !ok {
			break
		}
		if pending != nil {
			packets = append(packets, combineEXT(pending, body))
			pending = nil
			continue
		}
		if first, isExt := extFirstHalf(body); isExt {
			pending = first
			continue
		}
		packets = append(packets, dispatch(body))
	}
	if pending != nil {
		// The stream ended before the second EXT sub-packet arrived.
		packets = append(packets, pending.record(StatusShortError))
	}
	return packets
}

// matchSync verifies the sync field symbol by symbol, sampling at mid-symbol and advancing
// one bit period per step. On entry the cursor sits at the middle of the first candidate
// symbol; on a match it leaves the cursor at the middle of the first body symbol.
func matchSync(mw *edge.MultiWalker, speed Speed, bitPeriod float64) bool {
	for _, want := range syncSymbols {
		if mw.AtEnd() || symbolAt(mw, speed) != want {
			return false
		}
		mw.Advance(bitPeriod)
	}
	return true
}

// packetBody is a packet's destuffed payload bits plus its timing and framing verdicts,
// before PID dispatch.
type packetBody struct {
	startTime float64
	endTime   float64
	pid       byte
	pidOK     bool
	stuffOK   bool
	short     bool
	rest      []byte
}

// readPacketBody collects symbols at mid-symbol cadence until the SE0 EOP, NRZI-decodes them
// (same-as-previous is a 1, toggle is a 0, with the sync's final K as the seed), and removes
// the stuffing. Returns false if the stream ends mid-packet.
func readPacketBody(mw *edge.MultiWalker, bitPeriod float64, speed Speed, startTime float64) (packetBody, bool) {
	prevSym := syncSymbols[len(syncSymbols)-1]
	var raw []int
	for {
		if mw.AtEnd() {
			return packetBody{}, false
		}
		sym := symbolAt(mw, speed)
		if sym == SymSE0 {
			break
		}
		bit := 0
		if sym == prevSym {
			bit = 1
		}
		raw = append(raw, bit)
		prevSym = sym
		mw.Advance(bitPeriod)
	}
	mw.Advance(2 * bitPeriod) // across the two-bit SE0 EOP to the restored idle cell
	endTime := mw.CursorTime() - bitPeriod/2

	buf := bitbuf.New()
	stuffOK := unstuffInto(buf, raw)
	bits := buf.Bits()

	body := packetBody{startTime: startTime, endTime: endTime, stuffOK: stuffOK}
	if len(bits) < 8 {
		body.short = true
		return body, true
	}
	pidByte := bitsToByteLSB(bits[:8])
	body.pid = pidByte & 0x0F
	body.pidOK = pidByte>>4 == (^body.pid)&0xF
	body.rest = bits[8:]
	return body, true
}

// extFirstHalf recognizes a well-formed EXT token: the token-format first half of an
// extended packet pair.
func extFirstHalf(body packetBody) (*extHalf, bool) {
	if body.short || !body.stuffOK || !body.pidOK || body.pid != PidEXT || len(body.rest) < 16 {
		return nil, false
	}
	tok := classifyToken(body.pid, body.rest)
	status := stream.Status(stream.Ok)
	if tok.crc5Mismatch {
		status = StatusCRCError
	}
	return &extHalf{
		startTime: body.startTime,
		endTime:   body.endTime,
		addr:      tok.Addr,
		endp:      tok.Endp,
		crc5:      tok.CRC5,
		status:    status,
	}, true
}

// combineEXT merges the held EXT first half with the sub-packet that follows it into one
// record carrying (addr, endp, sub_pid, variable, both CRC5s).
func combineEXT(first *extHalf, second packetBody) *stream.Segment {
	status := first.status
	raise := func(s stream.Status) {
		if s > status {
			status = s
		}
	}
	pkt := Packet{PID: PidEXT, Kind: KindEXT, Addr: first.addr, Endp: first.endp, CRC5: first.crc5}
	switch {
	case second.short || len(second.rest) < 16:
		raise(StatusShortError)
	case !second.stuffOK:
		raise(StatusStuffError)
	case !second.pidOK:
		raise(StatusPIDError)
	default:
		variableBits := second.rest[:11]
		crcBits := second.rest[11:16]
		pkt.SubPID = second.pid
		pkt.Variable = bitsToUint16LSB(variableBits)
		pkt.SubCRC5 = bitsToByteLSB(crcBits)
		if crc5(variableBits) != pkt.SubCRC5 {
			raise(StatusCRCError)
		}
	}
	return &stream.Segment{
		StartTime:  first.startTime,
		EndTime:    second.endTime,
		KindTag:    "usb_ext_packet",
		Data:       pkt,
		StatusCode: status,
	}
}

// dispatch turns a non-EXT packet body into its stream record.
func dispatch(body packetBody) *stream.Segment {
	if body.short {
		return &stream.Segment{StartTime: body.startTime, EndTime: body.endTime, KindTag: "usb_packet", StatusCode: StatusShortError}
	}

	pkt := classify(body.pid, body.rest)
	pkt.PID = body.pid

	status := stream.Status(stream.Ok)
	switch {
	case !body.stuffOK:
		status = StatusStuffError
	case !body.pidOK:
		status = StatusPIDError
	case pkt.Kind == KindToken || pkt.Kind == KindSOF:
		if pkt.crc5Mismatch {
			status = StatusCRCError
		}
	case pkt.Kind == KindData:
		if pkt.crc16Mismatch {
			status = StatusCRCError
		}
	}
	if status != stream.Ok {
		logger.Warn("packet error", "pid", body.pid, "status", status)
	}

	return &stream.Segment{
		StartTime:  body.startTime,
		EndTime:    body.endTime,
		KindTag:    "usb_packet",
		Data:       pkt.Packet,
		StatusCode: status,
	}
}

// classifyResult carries CRC-mismatch flags alongside the public Packet, since Packet itself
// only reports the check value, not the verdict.
type classifyResult struct {
	Packet
	crc5Mismatch  bool
	crc16Mismatch bool
}

func classify(pid byte, rest []byte) classifyResult {
	switch {
	case pid == PidOUT || pid == PidIN || pid == PidSETUP || pid == PidPING:
		return classifyToken(pid, rest)
	case pid == PidSOF:
		return classifySOF(pid, rest)
	case pid == PidDATA0 || pid == PidDATA1 || pid == PidDATA2 || pid == PidMDATA:
		return classifyData(pid, rest)
	case pid == PidACK || pid == PidNAK || pid == PidSTALL || pid == PidNYET:
		return classifyResult{Packet: Packet{Kind: KindHandshake}}
	default:
		return classifyResult{Packet: Packet{Kind: KindSpecial, Data: bitbuf.Bytes(rest, true)}}
	}
}

func classifyToken(pid byte, rest []byte) classifyResult {
	if len(rest) < 16 {
		return classifyResult{Packet: Packet{Kind: KindToken}, crc5Mismatch: true}
	}
	addrBits, endpBits, crcBits := rest[:7], rest[7:11], rest[11:16]
	recv := bitsToByteLSB(crcBits)
	calc := crc5(append(append([]byte{}, addrBits...), endpBits...))
	return classifyResult{
		Packet: Packet{
			Kind: KindToken,
			Addr: bitsToByteLSB(addrBits),
			Endp: bitsToByteLSB(endpBits),
			CRC5: recv,
		},
		crc5Mismatch: recv != calc,
	}
}

func classifySOF(pid byte, rest []byte) classifyResult {
	if len(rest) < 16 {
		return classifyResult{Packet: Packet{Kind: KindSOF}, crc5Mismatch: true}
	}
	frameBits, crcBits := rest[:11], rest[11:16]
	recv := bitsToByteLSB(crcBits)
	calc := crc5(frameBits)
	return classifyResult{
		Packet: Packet{
			Kind:  KindSOF,
			Frame: bitsToUint16LSB(frameBits),
			CRC5:  recv,
		},
		crc5Mismatch: recv != calc,
	}
}

func classifyData(pid byte, rest []byte) classifyResult {
	if len(rest) < 16 {
		return classifyResult{Packet: Packet{Kind: KindData}, crc16Mismatch: true}
	}
	n := (len(rest) - 16) / 8
	dataBits, crcBits := rest[:n*8], rest[n*8:n*8+16]
	data := bitbuf.Bytes(dataBits, true)
	recv := bitsToUint16LSB(crcBits)
	calc := crc16(data)
	return classifyResult{
		Packet: Packet{
			Kind:  KindData,
			Data:  data,
			CRC16: recv,
		},
		crc16Mismatch: recv != calc,
	}
}

// unstuffInto reads raw NRZI-decoded bits, stripping the mandatory 0 after every run of six
// consecutive 1 bits, and records each removed position via bitbuf so field offsets can be
// corrected with Buffer.FieldShift.
func unstuffInto(buf *bitbuf.Buffer, raw []int) bool {
	runLen := 0
	for _, b := range raw {
		if runLen == 6 {
			if b != 0 {
				return false
			}
			buf.MarkStuffed()
			runLen = 0
			continue
		}
		buf.PushBit(b)
		if b == 1 {
			runLen++
		} else {
			runLen = 0
		}
	}
	return true
}

func bitsToByteLSB(bits []byte) byte {
	var v byte
	for i, b := range bits {
		v |= b << uint(i)
	}
	return v
}

func bitsToUint16LSB(bits []byte) uint16 {
	var v uint16
	for i, b := range bits {
		v |= uint16(b) << uint(i)
	}
	return v
}

// crc5 computes USB's CRC-5 (polynomial 0x05, init 0x1F, invert out) MSB-first over the
// supplied bits.
func crc5(bits []byte) byte {
	reg := byte(0x1F)
	for _, b := range bits {
		top := (reg >> 4) & 1
		reg = (reg << 1) & 0x1F
		if top^(b&1) == 1 {
			reg ^= 0x05
		}
	}
	return (^reg) & 0x1F
}

// crc16 computes USB's CRC-16 (polynomial 0x8005, init 0xFFFF, reflected, invert out)
// byte-wise over the payload.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
