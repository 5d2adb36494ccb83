package encoder

import (
	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/bitstream"
	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// EmbedBit modifies the LSB of a color value to store a bit
func EmbedBit(colorValue uint8, bit bool) uint8 {
	if bit {
		return colorValue | 1
	}
	return colorValue & 0xFE
}

// RequiredBits is the carrier capacity a blob of n bytes needs, terminator
// included.
func RequiredBits(n int) int {
	return bitstream.FramedLen(n)
}

// Embed writes blob followed by the terminator into the LSBs of a copy of
// img, one bit per channel byte in row-major order. img is not modified and
// channel bytes past the terminator keep their original values.
func Embed(img *carrier.Image, blob []byte) (*carrier.Image, error) {
	capacity := img.Capacity()
	required := RequiredBits(len(blob))
	if required > capacity {
		return nil, errors.Wrapf(spec.ErrCapacityExceeded,
			"need %d bits, carrier %dx%d holds %d (max %d payload bytes)",
			required, img.Width, img.Height, capacity, MaxPayload(img))
	}

	out := img.Clone()
	i := 0
	for bit := range bitstream.Framed(blob) {
		out.Pix[i] = EmbedBit(out.Pix[i], bit)
		i++
	}
	return out, nil
}
