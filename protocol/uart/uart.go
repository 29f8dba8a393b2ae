// Package uart decodes asynchronous serial frames from an edge stream, with optional
// auto-baud detection.
//
// Each frame is anchored on a mark-to-space transition, sampled at mid-bit positions, and
// validated against the configured parity and stop-bit settings.
package uart

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/decodeerr"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/level"
	"github.com/kevinpt/ripyl-go/rate"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("uart", nil)

// Parity selects the UART parity scheme.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// Protocol-specific status codes, contiguous with stream.Error.
const (
	StatusFraming     = stream.Error + 1
	StatusParityError = stream.Error + 2
	StatusBreak       = stream.Error + 3
)

// Options configures a UART decode. Baud of 0 triggers auto-baud.
type Options struct {
	Bits      int // 5..9
	Parity    Parity
	StopBits  float64 // >= 0.5
	LSBFirst  bool
	IdleLow   bool // polarity: true if the idle line state is low instead of high
	Baud      int
	BaudTable []int // optional snap-to-standard table
}

// DefaultOptions returns the common 8-N-1, LSB-first, idle-high configuration.
func DefaultOptions() Options {
	return Options{Bits: 8, Parity: ParityNone, StopBits: 1, LSBFirst: true}
}

// Frame is the decoded payload of a UART frame record.
type Frame struct {
	Byte  byte
	Break bool
}

const autoBaudProbeEdges = 50

// hysteresis fraction of the (high-low) span used when decoding from raw samples.
const sampleHysteresis = 0.4

// DecodeSamples decodes UART frames directly from a raw sample stream: the logic levels are
// auto-calibrated with level.Detect, the samples converted to edges with two-threshold
// hysteresis, and the result handed to Decode. An indeterminate level pair surfaces
// as a decodeerr.AutoLevel error.
func DecodeSamples(samples stream.SampleStream, opts Options) ([]*stream.Segment, error) {
	lv, err := level.Detect(samples.Flatten(), 0, 1.0)
	if err != nil {
		logger.Warn("auto-level failed", "err", err)
		return nil, err
	}
	logger.Debug("auto-level calibrated", "low", lv.Low, "high", lv.High)
	hystBot, _, hystTop := edge.Thresholds(lv.Low, lv.High, sampleHysteresis)
	return Decode(edge.DetectBinary(samples, hystBot, hystTop), opts)
}

// Decode walks edges and produces one Segment per UART frame. Non-fatal per-frame
// problems (framing, parity, break) are attached as record status; only auto-baud failure is
// returned as a Go error.
func Decode(edges stream.EdgeStream, opts Options) ([]*stream.Segment, error) {
	if opts.Bits == 0 {
		opts = DefaultOptions()
	}

	work := edges
	if opts.IdleLow {
		work = invert(edges)
	}

	baud := opts.Baud
	if baud == 0 {
		probe := work
		if len(probe) > autoBaudProbeEdges {
			probe = probe[:autoBaudProbeEdges]
		}
		r, err := rate.Estimate(probe, rate.Options{Spectra: 2})
		if err != nil {
			logger.Warn("auto-baud estimation failed", "err", err)
			return nil, err
		}
		baud = r
		if len(opts.BaudTable) > 0 {
			baud = rate.SnapToStandard(baud, opts.BaudTable)
		}
		logger.Debug("auto-baud estimated", "baud", baud)
	}
	if baud <= 0 {
		return nil, decodeerr.New(decodeerr.AutoBaud, "non-positive baud rate")
	}

	bitPeriod := 1.0 / float64(baud)
	w := edge.NewWalker(work)

	var frames []*stream.Segment
	for !w.AtEnd() {
		// A frame begins only on a genuine mark-to-space transition; an initial space
		// state (a capture cut mid-frame, or a filter warm-up artifact) is skipped.
		if w.CurState() != 1 {
			if w.AdvanceToEdge() == 0 {
				break
			}
			continue
		}
		if w.AdvanceToEdge() == 0 {
			break
		}
		if w.CurState() != 0 {
			continue
		}
		frames = append(frames, decodeFrame(w, bitPeriod, opts))
	}
	return frames, nil
}

func decodeFrame(w *edge.Walker, bitPeriod float64, opts Options) *stream.Segment {
	startTime := w.CursorTime()
	subs := []stream.Record{&stream.Event{Time: startTime, KindTag: "start_bit", StatusCode: stream.Ok}}

	w.Advance(1.5 * bitPeriod)

	acc := 0
	parity := 0
	dataStart := w.CursorTime() - 0.5*bitPeriod
	for i := 0; i < opts.Bits; i++ {
		bit := w.CurState()
		if opts.LSBFirst {
			acc |= bit << i
		} else {
			acc = (acc << 1) | bit
		}
		parity ^= bit
		w.Advance(bitPeriod)
	}
	dataEnd := w.CursorTime() - 0.5*bitPeriod
	subs = append(subs, &stream.Segment{StartTime: dataStart, EndTime: dataEnd, KindTag: "data_bits", Data: byte(acc), StatusCode: stream.Ok})

	status := stream.Status(stream.Ok)
	if opts.Parity != ParityNone {
		pBit := w.CurState()
		expected := parity
		if opts.Parity == ParityOdd {
			expected = 1 - parity
		}
		pStatus := stream.Status(stream.Ok)
		if pBit != expected {
			pStatus = StatusParityError
		}
		subs = append(subs, &stream.Event{Time: w.CursorTime(), KindTag: "parity_bit", Data: pBit, StatusCode: pStatus})
		w.Advance(bitPeriod)
	}

	stopLevel := w.CurState()
	stopStart := w.CursorTime()
	isBreak := false
	if stopLevel != 1 {
		status = StatusFraming
		if acc == 0 {
			status = StatusBreak
			isBreak = true
		}
		logger.Warn("framing problem", "status", status, "byte", acc)
	}
	// The cursor sits at the middle of the first stop bit; advancing the remaining
	// (StopBits - 0.5) periods leaves it on the stop region's trailing boundary, so a
	// back-to-back frame's start edge is the very next transition.
	w.Advance((opts.StopBits - 0.5) * bitPeriod)
	endTime := w.CursorTime()
	subs = append(subs, &stream.Event{Time: stopStart, KindTag: "stop_bit", StatusCode: statusOrOk(stopLevel != 1)})

	return &stream.Segment{
		StartTime:  startTime,
		EndTime:    endTime,
		KindTag:    "uart_frame",
		Data:       Frame{Byte: byte(acc), Break: isBreak},
		StatusCode: status,
		Subrecords: subs,
	}
}

func statusOrOk(bad bool) stream.Status {
	if bad {
		return StatusFraming
	}
	return stream.Ok
}

func invert(edges stream.EdgeStream) stream.EdgeStream {
	out := make(stream.EdgeStream, len(edges))
	for i, e := range edges {
		out[i] = stream.Edge{Time: e.Time, Level: 1 - e.Level}
	}
	return out
}
