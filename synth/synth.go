// Package synth is the inverse path: turning protocol-level edge streams into sample
// streams with realistic band-limiting, noise, and dropout, used to generate sampled test
// inputs (protocol/uart's tests use it).
package synth

import (
	"math"
	"math/rand"

	"github.com/kevinpt/ripyl-go/stream"
)

// EdgesToSampleStream produces (time, level) samples at a fixed sample period,
// piecewise-constant between edges.
func EdgesToSampleStream(edges stream.EdgeStream, samplePeriod float64, endTime float64) stream.SampleStream {
	if len(edges) == 0 || samplePeriod <= 0 {
		return nil
	}
	start := edges[0].Time
	n := int(math.Ceil((endTime - start) / samplePeriod))
	if n <= 0 {
		return nil
	}
	samples := make([]float64, n)
	edgeIdx := 0
	level := float64(edges[0].Level)
	for i := 0; i < n; i++ {
		t := start + float64(i)*samplePeriod
		for edgeIdx+1 < len(edges) && edges[edgeIdx+1].Time <= t {
			edgeIdx++
			level = float64(edges[edgeIdx].Level)
		}
		samples[i] = level
	}
	return stream.SampleStream{{StartTime: start, SamplePeriod: samplePeriod, Samples: samples}}
}

// ToVoltage rescales a 0/1 (or symmetric multi-level) sample stream to (low, high) voltages,
// mapping minLevel to low and maxLevel to high linearly.
func ToVoltage(samples stream.SampleStream, minLevel, maxLevel, low, high float64) stream.SampleStream {
	span := maxLevel - minLevel
	out := make(stream.SampleStream, len(samples))
	for ci, chunk := range samples {
		s := make([]float64, len(chunk.Samples))
		for i, v := range chunk.Samples {
			frac := 0.0
			if span != 0 {
				frac = (v - minLevel) / span
			}
			s[i] = low + frac*(high-low)
		}
		out[ci] = stream.SampleChunk{StartTime: chunk.StartTime, SamplePeriod: chunk.SamplePeriod, Samples: s}
	}
	return out
}

// AddNoise adds i.i.d. Gaussian noise whose standard deviation is derived from a target
// SNR in dB relative to the signal's own RMS amplitude.
func AddNoise(samples stream.SampleStream, snrDB float64, rng *rand.Rand) stream.SampleStream {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	signalRMS := rmsOf(samples)
	noiseSD := signalRMS / math.Pow(10, snrDB/20)

	out := make(stream.SampleStream, len(samples))
	for ci, chunk := range samples {
		s := make([]float64, len(chunk.Samples))
		for i, v := range chunk.Samples {
			s[i] = v + rng.NormFloat64()*noiseSD
		}
		out[ci] = stream.SampleChunk{StartTime: chunk.StartTime, SamplePeriod: chunk.SamplePeriod, Samples: s}
	}
	return out
}

func rmsOf(samples stream.SampleStream) float64 {
	sum, n := 0.0, 0
	for _, chunk := range samples {
		for _, v := range chunk.Samples {
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Amplify applies an affine gain+offset transform: out = in*gain + offset.
func Amplify(samples stream.SampleStream, gain, offset float64) stream.SampleStream {
	out := make(stream.SampleStream, len(samples))
	for ci, chunk := range samples {
		s := make([]float64, len(chunk.Samples))
		for i, v := range chunk.Samples {
			s[i] = v*gain + offset
		}
		out[ci] = stream.SampleChunk{StartTime: chunk.StartTime, SamplePeriod: chunk.SamplePeriod, Samples: s}
	}
	return out
}

// Dropout forces every sample within [startTime, startTime+duration) to replacement, modeling
// a lost-signal window.
func Dropout(samples stream.SampleStream, startTime, duration, replacement float64) stream.SampleStream {
	endTime := startTime + duration
	out := make(stream.SampleStream, len(samples))
	for ci, chunk := range samples {
		s := make([]float64, len(chunk.Samples))
		copy(s, chunk.Samples)
		for i := range s {
			t := chunk.StartTime + float64(i)*chunk.SamplePeriod
			if t >= startTime && t < endTime {
				s[i] = replacement
			}
		}
		out[ci] = stream.SampleChunk{StartTime: chunk.StartTime, SamplePeriod: chunk.SamplePeriod, Samples: s}
	}
	return out
}
