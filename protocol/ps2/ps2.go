// Package ps2 decodes the PS/2 and AT keyboard protocol from clock/data edge streams: the
// device clocks every frame, but the two transfer directions sample data on opposite clock
// edges and only host-to-device frames carry a trailing device ack.
//
// The state machine advances the shared cursor from clock edge to clock edge, recognizes a
// frame start from the data line's start bit, and classifies the direction by which clock
// edge carries it: a falling edge for device-to-host, or a rising edge following the host's
// long request-to-send clock hold for host-to-device.
package ps2

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("ps2", nil)

// Status codes contiguous with stream.Error.
const (
	StatusFramingError = stream.Error + 1
	StatusParityError  = stream.Error + 2
	StatusAckError     = stream.Error + 3
	StatusTimingError  = stream.Error + 4
)

// Dir identifies which end of the link transmitted a frame.
type Dir int

const (
	DeviceToHost Dir = iota
	HostToDevice
)

// Frame is the decoded payload of a ps2_frame record.
type Frame struct {
	Data byte
	Dir  Dir
}

const (
	clkChan  = "clk"
	dataChan = "data"
)

// The slowest permitted PS/2 clock is 10 kHz; edge spacing beyond half that period (plus 5%
// tolerance) inside a frame is a timing violation, and a gap past resyncGap aborts the frame.
const (
	minClockPeriod = 1.05 / 10e3
	resyncGap      = 100e-6
)

// Decode walks clk/data and yields a flat record stream: one Segment per frame (with start,
// data, parity, stop, and for host-to-device frames ack subrecords) plus a resync Event
// wherever a frame is abandoned mid-flight.
func Decode(clk, data stream.EdgeStream) []stream.Record {
	mw := edge.NewMultiWalker(map[string]stream.EdgeStream{clkChan: clk, dataChan: data})

	var out []stream.Record
	findStart := true
	var dir Dir
	var bits []int
	bitsWanted := 0
	gettingAck := false
	timingError := false
	startTime := 0.0

	for {
		ts := mw.AdvanceToEdge(clkChan)
		if ts == 0 {
			break
		}
		clkVal := mw.CurState(clkChan)
		dVal := mw.CurState(dataChan)

		if !findStart && ts > resyncGap {
			logger.Warn("clock stalled mid-frame, resynchronizing", "time", mw.CursorTime())
			out = append(out, &stream.Event{Time: mw.CursorTime(), KindTag: "ps2_resync", StatusCode: StatusFramingError})
			findStart = true
			bits = nil
		}

		if findStart {
			if dVal != 0 {
				continue
			}
			switch {
			case clkVal == 0:
				dir = DeviceToHost
			case clkVal == 1 && ts > resyncGap:
				// The long clock hold preceding this rising edge is the host's
				// request-to-send.
				dir = HostToDevice
			default:
				continue
			}
			findStart = false
			bits = nil
			bitsWanted = 10
			gettingAck = false
			timingError = false
			startTime = mw.CursorTime()
			continue
		}

		if ts > minClockPeriod/2 {
			timingError = true
		}

		captured := false
		switch {
		case dir == DeviceToHost && clkVal == 0:
			bits = append(bits, dVal)
			captured = len(bits) == bitsWanted
		case dir == HostToDevice && clkVal == 1 && !gettingAck:
			bits = append(bits, dVal)
			if len(bits) == bitsWanted {
				gettingAck = true
			}
		case dir == HostToDevice && clkVal == 0 && gettingAck:
			bits = append(bits, dVal)
			captured = true
		}
		if !captured {
			continue
		}

		out = append(out, buildFrame(dir, bits, startTime, mw.CursorTime(), timingError))
		findStart = true
		bits = nil
	}
	return out
}

// buildFrame validates the captured bits and assembles the frame record. For both directions
// bits[0:8] are the LSB-first data bits, bits[8] is the odd parity bit, and bits[9] the stop
// bit; host-to-device frames carry the device ack in bits[10].
func buildFrame(dir Dir, bits []int, startTime, endTime float64, timingError bool) *stream.Segment {
	nBits := 10.0
	if dir == HostToDevice {
		nBits = 10.5
	}
	bitPeriod := (endTime - startTime) / nBits
	startTime -= bitPeriod / 2
	endTime += bitPeriod / 2

	var value byte
	p := 1
	for i, b := range bits[:8] {
		value |= byte(b) << uint(i)
		p ^= b
	}

	status := stream.Status(stream.Ok)
	switch {
	case bits[9] != 1:
		status = StatusFramingError
	case timingError:
		status = StatusTimingError
	}
	parityStatus := stream.Status(stream.Ok)
	if bits[8] != p {
		parityStatus = StatusParityError
		logger.Warn("parity mismatch", "byte", value)
	}

	dataTime := startTime + bitPeriod
	parityTime := endTime - 2*bitPeriod
	stopTime := endTime - bitPeriod
	stopEnd := endTime
	if dir == HostToDevice {
		// The trailing ack pulse compresses the parity/stop offsets relative to the end.
		parityTime = endTime - 2.5*bitPeriod
		stopTime = endTime - 1.5*bitPeriod
		stopEnd = endTime - 0.75*bitPeriod
	}
	subs := []stream.Record{
		&stream.Segment{StartTime: startTime, EndTime: dataTime, KindTag: "start_bit", StatusCode: stream.Ok},
		&stream.Segment{StartTime: dataTime, EndTime: parityTime, KindTag: "data_bits", Data: value, StatusCode: stream.Ok},
		&stream.Segment{StartTime: parityTime, EndTime: stopTime, KindTag: "parity", StatusCode: parityStatus},
		&stream.Segment{StartTime: stopTime, EndTime: stopEnd, KindTag: "stop_bit", StatusCode: stream.Ok},
	}
	if dir == HostToDevice {
		ackStatus := stream.Status(stream.Ok)
		if bits[10] != 0 {
			ackStatus = StatusAckError
		}
		subs = append(subs, &stream.Segment{StartTime: stopEnd, EndTime: endTime, KindTag: "ack_bit", StatusCode: ackStatus})
	}

	return &stream.Segment{
		StartTime:  startTime,
		EndTime:    endTime,
		KindTag:    "ps2_frame",
		Data:       Frame{Data: value, Dir: dir},
		StatusCode: status,
		Subrecords: subs,
	}
}
