package synth

import (
	"math/rand"
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
)

func TestEdgesToSampleStreamIsPiecewiseConstant(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 2, Level: 1}, {Time: 4, Level: 0}}
	samples := EdgesToSampleStream(edges, 1.0, 6)
	require.Len(t, samples, 1)
	got := samples[0].Samples
	require.Equal(t, []float64{0, 0, 1, 1, 0, 0}, got)
}

func TestFilterWaveformPreservesLength(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 0.01, Level: 1}, {Time: 0.02, Level: 0}}
	samples := EdgesToSampleStream(edges, 1.0/44100, 0.03)
	filtered := FilterWaveform(samples, 44100, 1e-4, 60)
	require.Len(t, filtered[0].Samples, len(samples[0].Samples))
}

func TestAddNoiseChangesValuesButKeepsShape(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 1, Level: 1}}
	samples := EdgesToSampleStream(edges, 0.1, 2)
	rng := rand.New(rand.NewSource(3))
	noisy := AddNoise(samples, 20, rng)
	require.Len(t, noisy[0].Samples, len(samples[0].Samples))
	differs := false
	for i := range noisy[0].Samples {
		if noisy[0].Samples[i] != samples[0].Samples[i] {
			differs = true
		}
	}
	require.True(t, differs)
}

func TestDropoutForcesReplacement(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 1}}
	samples := EdgesToSampleStream(edges, 1, 10)
	dropped := Dropout(samples, 2, 3, -1)
	require.Equal(t, -1.0, dropped[0].Samples[2])
	require.Equal(t, -1.0, dropped[0].Samples[4])
	require.Equal(t, 1.0, dropped[0].Samples[5])
}
