package lin

import (
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPidParityKnownValues(t *testing.T) {
	// ID 0x00 -> only the top parity bit is set (p1=1, p0=0 per the classic LIN table).
	pid := Pid(0x00)
	require.Equal(t, byte(0x00|(1<<7)), pid)
}

func TestClassicRoundTrip(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	edges := Synth(0x10, data, 19200, false, 5e-3, 5e-3)
	frames, err := Decode(edges, 19200, len(data), false)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0].Data.(Frame)
	require.Equal(t, byte(0x10), f.ID)
	require.Equal(t, data, f.Data)
	require.Equal(t, stream.Ok, frames[0].StatusCode)
}

func TestEnhancedChecksumRoundTrip(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	edges := Synth(0x21, data, 19200, true, 5e-3, 5e-3)
	frames, err := Decode(edges, 19200, len(data), true)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, stream.Ok, frames[0].StatusCode)
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		id := byte(rapid.IntRange(0, 0x3F).Draw(rt, "id"))
		enhanced := rapid.Bool().Draw(rt, "enhanced")
		baud := rapid.SampledFrom([]int{9600, 19200}).Draw(rt, "baud")
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 0xFF).Draw(rt, "b"))
		}

		edges := Synth(id, data, baud, enhanced, 5e-3, 5e-3)
		frames, err := Decode(edges, baud, len(data), enhanced)
		require.NoError(rt, err)
		require.Len(rt, frames, 1)

		f := frames[0].Data.(Frame)
		require.Equal(rt, id, f.ID)
		require.Equal(rt, data, f.Data)
		require.Equal(rt, stream.Ok, frames[0].StatusCode)
	})
}
