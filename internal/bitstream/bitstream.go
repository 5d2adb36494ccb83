// Package bitstream turns byte buffers into bit sequences and back.
//
// Every producer is an iter.Seq over an immutable input, so a sequence can
// be ranged over any number of times and always yields the same bits.
package bitstream

import (
	"bytes"
	"iter"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Bits yields the bits of data, most significant bit first per byte.
func Bits(data []byte) iter.Seq[bool] {
	return func(yield func(bool) bool) {
		for _, b := range data {
			for j := 7; j >= 0; j-- {
				if !yield(b&(1<<j) != 0) {
					return
				}
			}
		}
	}
}

// Terminator yields the end-of-payload marker: TERMINATOR_BITS one-bits.
func Terminator() iter.Seq[bool] {
	return func(yield func(bool) bool) {
		for range spec.TERMINATOR_BITS {
			if !yield(true) {
				return
			}
		}
	}
}

// Framed yields Bits(data) followed by the terminator.
func Framed(data []byte) iter.Seq[bool] {
	return func(yield func(bool) bool) {
		for bit := range Bits(data) {
			if !yield(bit) {
				return
			}
		}
		for bit := range Terminator() {
			if !yield(bit) {
				return
			}
		}
	}
}

// FramedLen is the number of bits Framed yields for n payload bytes.
func FramedLen(n int) int {
	return n*spec.BITS_PER_BYTE + spec.TERMINATOR_BITS
}

// LSBs yields the least significant bit of every byte in pix.
func LSBs(pix []byte) iter.Seq[bool] {
	return func(yield func(bool) bool) {
		for _, b := range pix {
			if !yield(b&1 == 1) {
				return
			}
		}
	}
}

// Pack assembles bits into bytes, most significant bit first. A trailing
// group shorter than 8 bits is dropped.
func Pack(bits iter.Seq[bool]) []byte {
	var out []byte
	var acc byte
	n := 0
	for bit := range bits {
		acc <<= 1
		if bit {
			acc |= 1
		}
		n++
		if n == spec.BITS_PER_BYTE {
			out = append(out, acc)
			acc, n = 0, 0
		}
	}
	return out
}

// Unframe reads bits until the last TERMINATOR_BITS of them are all ones
// and returns the payload in front of the marker. ok is false when bits run
// out first; the returned bytes are then whatever whole bytes were read.
//
// A payload whose final byte ends in one-bits merges into the marker run,
// so the run is detected early. The payload length is therefore rounded up
// to the next whole byte, borrowing those one-bits back from the marker.
func Unframe(bits iter.Seq[bool]) (payload []byte, ok bool) {
	var out []byte
	var acc byte
	n, run := 0, 0
	for bit := range bits {
		acc <<= 1
		if bit {
			acc |= 1
			run++
		} else {
			run = 0
		}
		n++
		if n == spec.BITS_PER_BYTE {
			out = append(out, acc)
			acc, n = 0, 0
		}
		if run == spec.TERMINATOR_BITS {
			total := len(out)*spec.BITS_PER_BYTE + n
			payloadBits := total - spec.TERMINATOR_BITS
			size := (payloadBits + spec.BITS_PER_BYTE - 1) / spec.BITS_PER_BYTE
			return out[:size:size], true
		}
	}
	return out, false
}

// Recoverable reports whether Unframe(Framed(data)) gives back data. It is
// false when the payload itself contains a run of one-bits long enough to
// be mistaken for the terminator.
func Recoverable(data []byte) bool {
	got, ok := Unframe(Framed(data))
	return ok && bytes.Equal(got, data)
}
