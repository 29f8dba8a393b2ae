package usb

import "github.com/kevinpt/ripyl-go/stream"

// extGapBits is the interpacket gap synthesized between the two halves of an EXT packet:
// four bit times at Low/Full speed, forty at High speed (the bus minimums are two and
// thirty-two).
func extGapBits(speed Speed) float64 {
	if speed == High {
		return 40
	}
	return 4
}

// Synth is the inverse of Decode: it builds the dp/dm edge streams for a sequence of packets,
// each preceded by the 8-symbol sync field and followed by a two-bit-period SE0 EOP. An EXT
// packet synthesizes as two sub-packets separated by the interpacket gap.
func Synth(packets []Packet, speed Speed, idleStart, interPacket, idleEnd float64) (dp, dm stream.EdgeStream) {
	bitPeriod := ClockPeriod(speed)
	t := 0.0
	idleDP, idleDM := symbolLevels(SymJ, speed)
	dp = stream.EdgeStream{{Time: t, Level: idleDP}}
	dm = stream.EdgeStream{{Time: t, Level: idleDM}}
	t += idleStart

	emit := func(sym Symbol) {
		ldp, ldm := symbolLevels(sym, speed)
		if dp[len(dp)-1].Level != ldp {
			dp = append(dp, stream.Edge{Time: t, Level: ldp})
		}
		if dm[len(dm)-1].Level != ldm {
			dm = append(dm, stream.Edge{Time: t, Level: ldm})
		}
	}

	emitPacket := func(logical []byte) {
		for _, s := range syncSymbols {
			emit(s)
			t += bitPeriod
		}
		stuffed := stuffBits(logical)
		prevSym := syncSymbols[len(syncSymbols)-1]
		for _, b := range stuffed {
			sym := prevSym
			if b == 0 {
				sym = toggle(prevSym)
			}
			emit(sym)
			t += bitPeriod
			prevSym = sym
		}
		emit(SymSE0)
		t += 2 * bitPeriod
		emit(SymJ)
	}

	for pi, pkt := range packets {
		if pi > 0 {
			t += interPacket
		}
		if pkt.Kind == KindEXT {
			emitPacket(tokenPacketBits(pidByteOf(PidEXT), pkt.Addr, pkt.Endp))
			t += extGapBits(speed) * bitPeriod
			emitPacket(extSecondHalfBits(pkt.SubPID, pkt.Variable))
			continue
		}
		emitPacket(buildPacketBits(pkt))
	}
	t += idleEnd
	return dp, dm
}

func symbolLevels(sym Symbol, speed Speed) (int, int) {
	switch sym {
	case SymSE0:
		return 0, 0
	case SymSE1:
		return 1, 1
	}
	high := sym == SymJ
	if speed == Low {
		high = !high
	}
	if high {
		return 1, 0
	}
	return 0, 1
}

func toggle(sym Symbol) Symbol {
	if sym == SymJ {
		return SymK
	}
	return SymJ
}

func pidByteOf(pid byte) byte {
	return pid | (^pid&0xF)<<4
}

// tokenPacketBits lays out a token-format body: PID byte, 7-bit address, 4-bit endpoint,
// CRC-5, all LSB-first.
func tokenPacketBits(pidByte, addr, endp byte) []byte {
	bits := bitsFromByteLSB(pidByte, 8)
	addrBits := bitsFromByteLSB(addr, 7)
	endpBits := bitsFromByteLSB(endp, 4)
	crc := crc5(append(append([]byte{}, addrBits...), endpBits...))
	bits = append(bits, addrBits...)
	bits = append(bits, endpBits...)
	return append(bits, bitsFromByteLSB(crc, 5)...)
}

// extSecondHalfBits lays out the second EXT sub-packet: the sub-PID byte, an 11-bit variable
// field, and a CRC-5 over the variable bits.
func extSecondHalfBits(subPID byte, variable uint16) []byte {
	bits := bitsFromByteLSB(pidByteOf(subPID), 8)
	variableBits := bitsFromUint16LSB(variable, 11)
	crc := crc5(variableBits)
	bits = append(bits, variableBits...)
	return append(bits, bitsFromByteLSB(crc, 5)...)
}

func buildPacketBits(pkt Packet) []byte {
	switch pkt.Kind {
	case KindToken:
		return tokenPacketBits(pidByteOf(pkt.PID), pkt.Addr, pkt.Endp)
	case KindSOF:
		bits := bitsFromByteLSB(pidByteOf(pkt.PID), 8)
		frameBits := bitsFromUint16LSB(pkt.Frame, 11)
		crc := crc5(frameBits)
		bits = append(bits, frameBits...)
		return append(bits, bitsFromByteLSB(crc, 5)...)
	case KindData:
		bits := bitsFromByteLSB(pidByteOf(pkt.PID), 8)
		for _, b := range pkt.Data {
			bits = append(bits, bitsFromByteLSB(b, 8)...)
		}
		crc := crc16(pkt.Data)
		return append(bits, bitsFromUint16LSB(crc, 16)...)
	case KindHandshake:
		return bitsFromByteLSB(pidByteOf(pkt.PID), 8)
	default:
		bits := bitsFromByteLSB(pidByteOf(pkt.PID), 8)
		for _, b := range pkt.Data {
			bits = append(bits, bitsFromByteLSB(b, 8)...)
		}
		return bits
	}
}

// stuffBits inserts a mandatory 0 after every run of six consecutive 1 bits, the inverse of
// unstuffInto in usb.go.
func stuffBits(bits []byte) []byte {
	out := make([]byte, 0, len(bits)+len(bits)/6+1)
	runLen := 0
	for _, b := range bits {
		out = append(out, b)
		if b == 1 {
			runLen++
			if runLen == 6 {
				out = append(out, 0)
				runLen = 0
			}
		} else {
			runLen = 0
		}
	}
	return out
}

func bitsFromByteLSB(v byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = (v >> uint(i)) & 1
	}
	return out
}

func bitsFromUint16LSB(v uint16, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(v>>uint(i)) & 1
	}
	return out
}
