package can

import (
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStandardFrameScenario(t *testing.T) {
	f := Frame{ID: 0x123, DLC: 2, Data: []byte{0xDE, 0xAD}, Ack: true}
	edges := Synth([]Frame{f}, 2e-6, 5e-6, 10e-6, 5e-6)
	frames, err := Decode(edges, Options{Baud: 500000})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0].Data.(Frame)
	require.Equal(t, uint32(0x123), got.ID)
	require.False(t, got.Extended)
	require.Equal(t, 2, got.DLC)
	require.Equal(t, []byte{0xDE, 0xAD}, got.Data)
	require.Equal(t, stream.Ok, frames[0].StatusCode)
	require.True(t, got.Ack)
}

func TestExtendedFrameRoundTrip(t *testing.T) {
	f := Frame{ID: 0x1ABCDE, Extended: true, DLC: 4, Data: []byte{1, 2, 3, 4}}
	edges := Synth([]Frame{f}, 2e-6, 5e-6, 10e-6, 5e-6)
	frames, err := Decode(edges, Options{Baud: 500000})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0].Data.(Frame)
	require.True(t, got.Extended)
	require.Equal(t, f.ID, got.ID)
	require.Equal(t, f.Data, got.Data)
	require.Equal(t, stream.Ok, frames[0].StatusCode)
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		extended := rapid.Bool().Draw(rt, "extended")
		dlc := rapid.IntRange(0, 8).Draw(rt, "dlc")
		data := make([]byte, dlc)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 255).Draw(rt, "byte"))
		}
		var id uint32
		if extended {
			id = uint32(rapid.IntRange(0, 0x1FFFFFFF).Draw(rt, "id"))
		} else {
			id = uint32(rapid.IntRange(0, 0x7FF).Draw(rt, "id"))
		}
		f := Frame{ID: id, Extended: extended, DLC: dlc, Data: data}
		edges := Synth([]Frame{f}, 2e-6, 5e-6, 10e-6, 5e-6)
		frames, err := Decode(edges, Options{Baud: 500000})
		require.NoError(rt, err)
		require.Len(rt, frames, 1)
		got := frames[0].Data.(Frame)
		require.Equal(rt, f.ID, got.ID)
		require.Equal(rt, f.Extended, got.Extended)
		require.Equal(rt, f.Data, got.Data)
		require.Equal(rt, stream.Ok, frames[0].StatusCode)
	})
}

func TestBitTimingSegments(t *testing.T) {
	bt := DefaultBitTiming()
	require.Equal(t, 16, bt.Quanta())
	require.InDelta(t, 0.75, bt.SamplePoint(), 1e-9)
	require.Equal(t, 4, bt.ResyncJump())

	tight := BitTiming{Prop: 2, Phase1: 2, IPT: 3}
	require.Equal(t, 3, tight.Phase2()) // stretched to cover the processing time
	require.Equal(t, 2, tight.ResyncJump())
}

func TestDecodeWithCustomSamplePoint(t *testing.T) {
	f := Frame{ID: 0x2A1, DLC: 3, Data: []byte{9, 8, 7}}
	edges := Synth([]Frame{f}, 2e-6, 5e-6, 10e-6, 5e-6)
	bt := BitTiming{Prop: 3, Phase1: 2, IPT: 2}
	frames, err := Decode(edges, Options{Baud: 500000, Timing: &bt})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, f.Data, frames[0].Data.(Frame).Data)
	require.Equal(t, stream.Ok, frames[0].StatusCode)
}

func TestCRCMismatchFlaggedAsError(t *testing.T) {
	f := Frame{ID: 0x55, DLC: 1, Data: []byte{0x42}}
	edges := Synth([]Frame{f}, 2e-6, 5e-6, 10e-6, 5e-6)
	// Flip one data bit's worth of level deep inside the frame to corrupt the CRC while
	// leaving the stuffing structure intact often enough to still parse as a frame.
	for i := range edges {
		if i == len(edges)/2 {
			edges[i].Level = 1 - edges[i].Level
		}
	}
	frames, err := Decode(edges, Options{Baud: 500000})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.NotEqual(t, stream.Ok, frames[0].StatusCode)
}
