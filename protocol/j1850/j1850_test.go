package j1850

import (
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPhysicallyAddressedFrameScenario(t *testing.T) {
	target := byte(0x6a)
	source := byte(0xf1)
	f := Frame{Priority: 3, MsgType: FunctionCmd, Target: &target, Source: &source, Data: []byte{0x01, 0x00}}

	require.Equal(t, byte(0x68), f.headerByte())

	edges := Synth([]Frame{f}, 100e-6, 1e-3, 100e-6)
	recs := Decode(edges)
	require.Len(t, recs, 1)

	seg, ok := recs[0].(*stream.Segment)
	require.True(t, ok)
	require.Equal(t, "j1850_frame", seg.Kind())
	require.Equal(t, stream.Ok, seg.StatusCode)

	got := seg.Data.(Frame)
	require.Equal(t, 3, got.Priority)
	require.Equal(t, FunctionCmd, got.MsgType)
	require.NotNil(t, got.Target)
	require.NotNil(t, got.Source)
	require.Equal(t, target, *got.Target)
	require.Equal(t, source, *got.Source)
	require.Equal(t, []byte{0x01, 0x00}, got.Data)

	require.Equal(t, "header", seg.Subrecords[0].Kind())
	require.Equal(t, "target", seg.Subrecords[1].Kind())
	require.Equal(t, "source", seg.Subrecords[2].Kind())
	require.Equal(t, "CRC", seg.Subrecords[len(seg.Subrecords)-1].Kind())
}

func TestFunctionalFrameScenario(t *testing.T) {
	f := Frame{Priority: 6, MsgType: Broadcast, Data: []byte{0x20, 0x01, 0x02, 0x03}}
	require.Equal(t, byte(0x10|(6<<5)|1), f.headerByte())

	edges := Synth([]Frame{f}, 50e-6, 1e-3, 50e-6)
	recs := Decode(edges)
	require.Len(t, recs, 1)

	seg := recs[0].(*stream.Segment)
	got := seg.Data.(Frame)
	require.Nil(t, got.Target)
	require.Nil(t, got.Source)
	require.Equal(t, f.Data, got.Data)
	require.Equal(t, stream.Ok, seg.StatusCode)
}

// rawEncode replicates Synth's bit-pulse encoding for an arbitrary byte sequence, bypassing
// Frame.Bytes' self-computed CRC so tests can bake in a deliberately wrong trailing byte.
func rawEncode(data []byte, idleStart, idleEnd float64) stream.EdgeStream {
	t := 0.0
	out := stream.EdgeStream{{Time: t, Level: 0}}
	t += idleStart
	emit := func(level int) {
		if out[len(out)-1].Level != level {
			out = append(out, stream.Edge{Time: t, Level: level})
		}
	}

	emit(1)
	t += sofPulse
	isPassive := true
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bit := int(b>>uint(i)) & 1
			long := bit == 1
			level := 0
			if !isPassive {
				level = 1
				long = bit == 0
			}
			emit(level)
			pw := shortPulse
			if long {
				pw = longPulse
			}
			t += pw
			isPassive = !isPassive
		}
	}
	emit(0)
	t += idleEnd
	emit(0)
	return out
}

func TestCRCMismatchStatus(t *testing.T) {
	target := byte(0x01)
	source := byte(0x02)
	f := Frame{Priority: 1, MsgType: FunctionRqst, Target: &target, Source: &source, Data: []byte{0xAA}}
	check := f.Bytes()[:len(f.Bytes())-1]
	badCRC := CRC8(check) ^ 0xFF
	raw := rawEncode(append(append([]byte{}, check...), badCRC), 50e-6, 50e-6)

	recs := Decode(raw)
	require.NotEmpty(t, recs)
	seg, ok := recs[0].(*stream.Segment)
	require.True(t, ok)
	require.Equal(t, StatusCRCError, seg.NestedStatus())
}

func TestBreakCondition(t *testing.T) {
	edges := stream.EdgeStream{
		{Time: 0, Level: 0},
		{Time: 10e-6, Level: 1},
		{Time: 10e-6 + 400e-6, Level: 0},
	}
	recs := Decode(edges)
	require.Len(t, recs, 1)
	ev, ok := recs[0].(*stream.Event)
	require.True(t, ok)
	require.Equal(t, "j1850_break", ev.Kind())
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		priority := rapid.IntRange(0, 7).Draw(rt, "priority")
		msgType := rapid.SampledFrom([]MsgType{Function, Broadcast, FunctionCmd, FunctionRqst, NodeToNode, Ack}).Draw(rt, "msgType")
		addressed := rapid.Bool().Draw(rt, "addressed")
		n := rapid.IntRange(0, 7).Draw(rt, "n")
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 255).Draw(rt, "byte"))
		}

		f := Frame{Priority: priority, MsgType: msgType, Data: data}
		if addressed {
			target := byte(rapid.IntRange(0, 255).Draw(rt, "target"))
			source := byte(rapid.IntRange(0, 255).Draw(rt, "source"))
			f.Target = &target
			f.Source = &source
		}

		edges := Synth([]Frame{f}, 50e-6, 1e-3, 50e-6)
		recs := Decode(edges)
		require.Len(rt, recs, 1)

		seg, ok := recs[0].(*stream.Segment)
		require.True(rt, ok)
		require.Equal(rt, stream.Ok, seg.StatusCode)

		got := seg.Data.(Frame)
		require.Equal(rt, f.Priority, got.Priority)
		require.Equal(rt, f.MsgType, got.MsgType)
		if addressed {
			require.Equal(rt, *f.Target, *got.Target)
			require.Equal(rt, *f.Source, *got.Source)
		} else {
			require.Nil(rt, got.Target)
			require.Nil(rt, got.Source)
		}
		if len(data) == 0 {
			require.Empty(rt, got.Data)
		} else {
			require.Equal(rt, f.Data, got.Data)
		}
		require.NoError(rt, stream.ValidateTree(seg))
	})
}
