// Package spi decodes synchronous Serial Peripheral Interface transfers from a clock line, a
// data line, and an optional chip-select line. The multi-channel cursor is driven off the
// clock, sampling the slower lines at each active edge; word boundaries come from the
// chip-select line when present and from clock-gap detection otherwise.
package spi

import (
	"github.com/kevinpt/ripyl-go/edge"
	"github.com/kevinpt/ripyl-go/internal/logx"
	"github.com/kevinpt/ripyl-go/internal/util"
	"github.com/kevinpt/ripyl-go/stream"
)

var logger = logx.New("spi", nil)

// Options configures an SPI decode.
type Options struct {
	CPOL     int // 0 or 1: clock idle level
	CPHA     int // 0 or 1: sample on first (0) or second (1) clock edge of each bit
	LSBFirst bool
}

// Word is the decoded payload of one SPI word record.
type Word struct {
	Bits  int
	Value uint64
}

const clkChan = "clk"
const dataChan = "data_io"
const csChan = "cs"

// Decode drives clk, dataIO, and the optional cs (nil if unused) through a synchronized
// multi-channel walker, emitting one Segment per word and one Event per chip-select
// transition. The running bit-period estimate starts from the first two active
// edges; a gap of more than 1.5x that estimate ends the current word.
func Decode(clk, dataIO, cs stream.EdgeStream, opts Options) []stream.Record {
	channels := map[string]stream.EdgeStream{clkChan: clk, dataChan: dataIO}
	hasCS := cs != nil
	if hasCS {
		channels[csChan] = cs
	}
	mw := edge.NewMultiWalker(channels)

	activeRising := (opts.CPOL ^ opts.CPHA) == 0

	var records []stream.Record
	var bits []int
	wordStart := mw.CursorTime()
	haveLastActive := false
	lastActiveTime := 0.0
	bitPeriod := 0.0

	prevClk := mw.CurState(clkChan)
	prevCS := 0
	if hasCS {
		prevCS = mw.CurState(csChan)
	}

	flush := func(end float64) {
		if len(bits) == 0 {
			return
		}
		word := Word{Bits: len(bits), Value: packBits(bits, opts.LSBFirst)}
		logger.Debug("word decoded", "bits", word.Bits, "value", word.Value)
		records = append(records, &stream.Segment{
			StartTime:  wordStart,
			EndTime:    end,
			KindTag:    "spi_word",
			Data:       word,
			StatusCode: stream.Ok,
		})
		bits = nil
	}

	for !mw.AtEnd() {
		dt := mw.AdvanceToEdge("")
		if dt == 0 {
			break
		}

		if hasCS {
			curCS := mw.CurState(csChan)
			if curCS != prevCS {
				// An active clock edge landing on the deassert still belongs to the ending
				// word: sample it before the word is flushed.
				curClk := mw.CurState(clkChan)
				if curCS == 1 && curClk != prevClk && (curClk > prevClk) == activeRising {
					bits = append(bits, mw.CurState(dataChan))
					prevClk = curClk
				}
				flush(mw.CursorTime())
				records = append(records, &stream.Event{
					Time:       mw.CursorTime(),
					KindTag:    "spi_cs",
					Data:       curCS,
					StatusCode: stream.Ok,
				})
				wordStart = mw.CursorTime()
				haveLastActive = false
				prevCS = curCS
			}
		}

		curClk := mw.CurState(clkChan)
		if curClk == prevClk {
			continue
		}
		rising := curClk > prevClk
		prevClk = curClk
		if rising != activeRising {
			continue
		}

		if haveLastActive {
			elapsed := mw.CursorTime() - lastActiveTime
			if bitPeriod > 0 && elapsed > 1.5*bitPeriod {
				flush(lastActiveTime)
				wordStart = mw.CursorTime()
			} else if bitPeriod == 0 {
				bitPeriod = elapsed
			} else {
				bitPeriod = 0.8*bitPeriod + 0.2*elapsed
			}
		}

		if len(bits) == 0 {
			wordStart = mw.CursorTime()
		}
		bits = append(bits, mw.CurState(dataChan))
		lastActiveTime = mw.CursorTime()
		haveLastActive = true
	}
	flush(mw.CursorTime())
	return records
}

func packBits(bits []int, lsbFirst bool) uint64 {
	var v uint64
	if lsbFirst {
		for i, b := range bits {
			v |= uint64(b) << uint(i)
		}
	} else {
		for _, b := range bits {
			v = (v << 1) | uint64(b)
		}
	}
	return v
}

func bitsFromValue(value uint64, n int, lsbFirst bool) []int {
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = util.IfThenElse(lsbFirst, int(value>>uint(i))&1, int(value>>uint(n-1-i))&1)
	}
	return out
}
