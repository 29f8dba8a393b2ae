// Package bitbuf accumulates destuffed bits for the bit-oriented decoders, tracking which
// positions in the raw stream were removed as stuffing so per-field bit offsets can be
// reported against the original transmission.
package bitbuf

import "sort"

// Buffer accumulates destuffed bits (0/1, one per byte for simplicity) plus a record of
// which logical positions in the pre-destuff bitstream were removed as stuffing violations.
type Buffer struct {
	bits    []byte
	stuffed []int // positions (in the *original* bit-numbered stream) of removed stuff bits
	raw     int   // count of raw bits consumed, stuffed or not
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// PushBit appends one destuffed bit (0 or 1) and advances the raw bit counter.
func (b *Buffer) PushBit(bit int) {
	b.bits = append(b.bits, byte(bit&1))
	b.raw++
}

// MarkStuffed records that the bit at the current raw position was removed as a stuffing
// violation rather than appended to the destuffed stream.
func (b *Buffer) MarkStuffed() {
	b.stuffed = append(b.stuffed, b.raw)
	b.raw++
}

// Bits returns the accumulated destuffed bits, MSB-first in push order.
func (b *Buffer) Bits() []byte {
	return b.bits
}

// Len returns the number of destuffed bits accumulated.
func (b *Buffer) Len() int {
	return len(b.bits)
}

// Bytes packs the destuffed bits into bytes, either MSB-first or LSB-first per byte, padding
// a trailing partial byte with zero bits.
func Bytes(bits []byte, lsbFirst bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		byteIdx := i / 8
		bitIdx := i % 8
		if bit == 0 {
			continue
		}
		if lsbFirst {
			out[byteIdx] |= 1 << bitIdx
		} else {
			out[byteIdx] |= 1 << (7 - bitIdx)
		}
	}
	return out
}

// FieldShift returns how many stuffed bits lie at-or-before logicalEnd in the original
// bitstream, i.e. how far a field's reported end index must shift to land on the correct
// destuffed-bit boundary. A stuffed bit lying exactly at the field's end is included in the
// shift. This is a plain left-bisect: sort.Search finds the first stuffed position strictly
// greater than logicalEnd, and everything before that index is "at or before".
func (b *Buffer) FieldShift(logicalEnd int) int {
	idx := sort.Search(len(b.stuffed), func(i int) bool {
		return b.stuffed[i] > logicalEnd
	})
	return idx
}

// HexDump renders bits packed MSB-first as a space-separated hex string, for debug logging.
func HexDump(bits []byte) string {
	packed := Bytes(bits, false)
	out := make([]byte, 0, len(packed)*3)
	const hexDigits = "0123456789abcdef"
	for i, bb := range packed {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigits[bb>>4], hexDigits[bb&0xf])
	}
	return string(out)
}
