package level

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func squareWave(n int, period int, low, high, noiseSD float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		phase := (i / (period / 2)) % 2
		v := low
		if phase == 1 {
			v = high
		}
		out[i] = v + rng.NormFloat64()*noiseSD
	}
	return out
}

func TestDetectRecoversKnownLevels(t *testing.T) {
	samples := squareWave(8000, 80, 0.0, 3.3, 0.05, 7)
	got, err := Detect(samples, 0, 1.0)
	require.NoError(t, err)
	require.InDelta(t, 0.0, got.Low, 0.33)
	require.InDelta(t, 3.3, got.High, 0.33)
}

func TestDetectFailsOnFlatInput(t *testing.T) {
	samples := make([]float64, 2000)
	for i := range samples {
		samples[i] = 1.0
	}
	_, err := Detect(samples, 0, 1.0)
	require.Error(t, err)
}
