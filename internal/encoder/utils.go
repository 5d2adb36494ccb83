package encoder

import (
	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// MaxPayload is the largest blob, in bytes, that fits img.
func MaxPayload(img *carrier.Image) int {
	n := (img.Capacity() - spec.TERMINATOR_BITS) / spec.BITS_PER_BYTE
	return max(n, 0)
}

// Utilization is the share of img's capacity a blob of n bytes occupies, in
// percent.
func Utilization(img *carrier.Image, n int) float64 {
	if img.Capacity() == 0 {
		return 0
	}
	return float64(RequiredBits(n)) * 100 / float64(img.Capacity())
}

// MinimumCarrier returns the smallest height, at the given width, of a
// carrier that can hold a blob of n bytes.
func MinimumCarrier(width, n int) (height int) {
	if width <= 0 {
		return 0
	}
	pixels := (RequiredBits(n) + spec.CHANNELS - 1) / spec.CHANNELS
	return (pixels + width - 1) / width
}
