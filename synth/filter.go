package synth

import (
	"math"

	"github.com/kevinpt/ripyl-go/stream"
)

// FilterWaveform applies a windowed-sinc low-pass FIR filter to band-limit sharp edges into
// realistic rise/fall transitions. riseTime is the target 10%-90% rise time in
// seconds; edge bandwidth is 0.35/riseTime, the transition band is 4x that, and the filter's
// stopband ripple follows rippleDB via a Kaiser window. The filter runs causally, so the
// group delay of (N-1)/(2*sampleRate) is subtracted from emitted chunk start times to keep
// filtered edges aligned with the unfiltered input.
//
// The Kaiser window is computed inline: gonum's dsp/window package carries the fixed-shape
// windows but not Kaiser, whose beta parameterization is what lets the ripple argument
// drive the design.
func FilterWaveform(samples stream.SampleStream, sampleRate, riseTime, rippleDB float64) stream.SampleStream {
	if len(samples) == 0 || riseTime <= 0 || sampleRate <= 0 {
		return samples
	}
	edgeBW := 0.35 / riseTime
	transitionBW := 4 * edgeBW
	taps := designKaiserLowPass(sampleRate, edgeBW, transitionBW, rippleDB)

	delay := float64(len(taps)-1) / (2 * sampleRate)

	out := make(stream.SampleStream, len(samples))
	for ci, chunk := range samples {
		filtered := convolveCausal(chunk.Samples, taps)
		out[ci] = stream.SampleChunk{
			StartTime:    chunk.StartTime - delay,
			SamplePeriod: chunk.SamplePeriod,
			Samples:      filtered,
		}
	}
	return out
}

// designKaiserLowPass builds a Kaiser-windowed-sinc low-pass FIR, with an odd tap count
// (Type I linear phase) sized from the ripple spec via the standard Kaiser formula.
func designKaiserLowPass(sampleRate, cutoff, transitionBW, rippleDB float64) []float64 {
	beta := kaiserBeta(rippleDB)

	deltaOmega := 2 * math.Pi * transitionBW / sampleRate
	n := int(math.Ceil((rippleDB-8)/(2.285*deltaOmega))) + 1
	if n < 5 {
		n = 5
	}
	if n%2 == 0 {
		n++
	}

	fcNorm := cutoff / sampleRate
	m := float64(n-1) / 2
	taps := make([]float64, n)
	i0Beta := besselI0(beta)
	for i := 0; i < n; i++ {
		x := float64(i) - m
		r := x / m
		win := besselI0(beta*math.Sqrt(1-r*r)) / i0Beta
		taps[i] = 2 * fcNorm * sinc(2*fcNorm*x) * win
	}

	sum := 0.0
	for _, t := range taps {
		sum += t
	}
	if sum != 0 {
		for i := range taps {
			taps[i] /= sum
		}
	}
	return taps
}

// kaiserBeta follows the standard empirical formula relating stopband attenuation (dB) to
// the Kaiser window shape parameter.
func kaiserBeta(attenuationDB float64) float64 {
	switch {
	case attenuationDB > 50:
		return 0.1102 * (attenuationDB - 8.7)
	case attenuationDB >= 21:
		return 0.5842*math.Pow(attenuationDB-21, 0.4) + 0.07886*(attenuationDB-21)
	default:
		return 0
	}
}

// besselI0 evaluates the zeroth-order modified Bessel function by its power series, which
// converges quickly for the beta range kaiserBeta produces.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 50; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-12 {
			break
		}
	}
	return sum
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// convolveCausal convolves x with taps as a causal filter (zero-padded history), returning a
// result the same length as x, which keeps chunk sample counts stable for downstream
// re-chunking. The caller compensates for the introduced group delay by shifting times.
func convolveCausal(x, taps []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		sum := 0.0
		for k, t := range taps {
			j := i - k
			if j >= 0 {
				sum += x[j] * t
			}
		}
		out[i] = sum
	}
	return out
}
