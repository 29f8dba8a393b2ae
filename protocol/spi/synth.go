package spi

import "github.com/kevinpt/ripyl-go/stream"

// Synth is the inverse of Decode: it produces the clk, data_io, and cs edge streams a
// transmitter would drive for the given words. cs is asserted
// (driven low) for the duration of each word and deasserted between words.
func Synth(words []Word, opts Options, bitPeriod, idleStart, interWord, idleEnd float64) (clk, data, cs stream.EdgeStream) {
	t := 0.0
	clk = stream.EdgeStream{{Time: t, Level: opts.CPOL}}
	data = stream.EdgeStream{{Time: t, Level: 0}}
	cs = stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	emit := func(s *stream.EdgeStream, level int) {
		if (*s)[len(*s)-1].Level != level {
			*s = append(*s, stream.Edge{Time: t, Level: level})
		}
	}

	half := bitPeriod / 2
	idleLevel := opts.CPOL
	activeLevel := 1 - opts.CPOL

	for wi, w := range words {
		if wi > 0 {
			t += interWord
		}
		emit(&cs, 0)
		for _, b := range bitsFromValue(w.Value, w.Bits, opts.LSBFirst) {
			if opts.CPHA == 0 {
				emit(&data, b)
				t += half
				emit(&clk, activeLevel)
				t += half
				emit(&clk, idleLevel)
			} else {
				t += half
				emit(&clk, activeLevel)
				emit(&data, b)
				t += half
				emit(&clk, idleLevel)
			}
		}
		emit(&cs, 1)
	}
	t += idleEnd
	return clk, data, cs
}
