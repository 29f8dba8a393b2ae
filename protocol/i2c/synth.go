package i2c

import "github.com/kevinpt/ripyl-go/stream"

// Synth is the inverse of Decode: it produces the scl/sda edge streams for a single
// start..stop transfer addressing addr with the given direction bit, acknowledging every
// byte. For a read transfer, data holds the bytes the slave
// would return; ack bits are always synthesized as acknowledged (0).
func Synth(addr byte, rwn int, data []byte, bitPeriod, idleStart, idleEnd float64) (scl, sda stream.EdgeStream) {
	t := 0.0
	scl = stream.EdgeStream{{Time: t, Level: 1}}
	sda = stream.EdgeStream{{Time: t, Level: 1}}
	t += idleStart

	half := bitPeriod / 2
	emitScl := func(level int) {
		if scl[len(scl)-1].Level != level {
			scl = append(scl, stream.Edge{Time: t, Level: level})
		}
	}
	emitSda := func(level int) {
		if sda[len(sda)-1].Level != level {
			sda = append(sda, stream.Edge{Time: t, Level: level})
		}
	}

	// start condition
	emitSda(0)
	t += half
	emitScl(0)

	writeByte := func(word byte) {
		for i := 7; i >= 0; i-- {
			bit := int(word>>uint(i)) & 1
			t += half
			emitSda(bit)
			t += half
			emitScl(1)
			t += half
			emitScl(0)
		}
		// ack, driven low by the receiver
		t += half
		emitSda(0)
		t += half
		emitScl(1)
		t += half
		emitScl(0)
	}

	writeByte(addr<<1 | byte(rwn&1))
	for _, b := range data {
		writeByte(b)
	}

	// stop condition
	t += half
	emitSda(0)
	t += half
	emitScl(1)
	t += half
	emitSda(1)
	t += idleEnd

	return scl, sda
}
