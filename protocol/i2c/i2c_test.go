package i2c

import (
	"testing"

	"github.com/kevinpt/ripyl-go/stream"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWriteTransferScenario(t *testing.T) {
	scl, sda := Synth(0x42, 0, []byte{0x01, 0x02, 0x03}, 10e-6, 5e-6, 5e-6)
	recs := Decode(scl, sda)

	require.Equal(t, "i2c_start", recs[0].Kind())

	addrSeg, ok := recs[1].(*stream.Segment)
	require.True(t, ok)
	require.Equal(t, "i2c_address", addrSeg.Kind())
	addr := addrSeg.Data.(Address)
	require.Equal(t, byte(0x42), addr.Addr)
	require.Equal(t, 0, addr.RWn)

	wantBytes := []byte{0x01, 0x02, 0x03}
	for i, b := range wantBytes {
		seg := recs[2+i].(*stream.Segment)
		require.Equal(t, "i2c_byte", seg.Kind())
		bd := seg.Data.(Byte)
		require.Equal(t, b, bd.Data)
		require.Equal(t, 0, bd.AckBit)
		require.Equal(t, stream.Ok, seg.StatusCode)
	}

	last := recs[len(recs)-1]
	require.Equal(t, "i2c_stop", last.Kind())
}

func TestSingleTransferStartsAndStops(t *testing.T) {
	scl1, sda1 := Synth(0x10, 0, []byte{0xAA}, 10e-6, 2e-6, 0)
	// A single synthesized transfer decodes to a record stream that opens with a start
	// condition and closes with a stop condition.
	recs1 := Decode(scl1, sda1)
	require.Equal(t, "i2c_start", recs1[0].Kind())
	require.Equal(t, "i2c_stop", recs1[len(recs1)-1].Kind())
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		addr := byte(rapid.IntRange(0, 0x7F).Draw(rt, "addr"))
		rwn := rapid.IntRange(0, 1).Draw(rt, "rwn")
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 0xFF).Draw(rt, "b"))
		}

		scl, sda := Synth(addr, rwn, data, 10e-6, 5e-6, 5e-6)
		recs := Decode(scl, sda)
		require.Equal(rt, "i2c_start", recs[0].Kind())

		addrSeg := recs[1].(*stream.Segment)
		ad := addrSeg.Data.(Address)
		require.Equal(rt, addr, ad.Addr)
		require.Equal(rt, rwn, ad.RWn)
		require.Equal(rt, stream.Ok, addrSeg.StatusCode)

		for i, b := range data {
			seg := recs[2+i].(*stream.Segment)
			bd := seg.Data.(Byte)
			require.Equal(rt, b, bd.Data)
			require.Equal(rt, 0, bd.AckBit)
		}
		require.Equal(rt, "i2c_stop", recs[len(recs)-1].Kind())
	})
}
