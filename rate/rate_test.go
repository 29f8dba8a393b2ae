package rate

import (
	"math/rand"
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
)

// periodicEdges synthesizes an edge stream whose spans are small integer multiples of
// period (mimicking bit-level data, which always transitions on whole-bit boundaries).
func periodicEdges(period float64, nEdges int, seed int64) stream.EdgeStream {
	rng := rand.New(rand.NewSource(seed))
	edges := make(stream.EdgeStream, 0, nEdges)
	t := 0.0
	level := 0
	edges = append(edges, stream.Edge{Time: t, Level: level})
	for i := 0; i < nEdges; i++ {
		mult := 1 + rng.Intn(3)
		t += float64(mult) * period
		level = 1 - level
		edges = append(edges, stream.Edge{Time: t, Level: level})
	}
	return edges
}

func TestEstimateRecoversKnownPeriod(t *testing.T) {
	period := 1.0 / 9600.0
	edges := periodicEdges(period, 200, 42)

	got, err := Estimate(edges, Options{Spectra: 2})
	require.NoError(t, err)
	require.InEpsilon(t, 9600.0, float64(got), 0.02)
}

func TestEstimateFailsWithTooFewEdges(t *testing.T) {
	edges := stream.EdgeStream{{Time: 0, Level: 0}, {Time: 1, Level: 1}}
	_, err := Estimate(edges, Options{Spectra: 2})
	require.Error(t, err)
}

func TestSnapToStandard(t *testing.T) {
	table := []int{9600, 19200, 38400, 57600, 115200}
	require.Equal(t, 57600, SnapToStandard(57550, table))
	require.Equal(t, 115200, SnapToStandard(114000, table))
}
