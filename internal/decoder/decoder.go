package decoder

import (
	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/bitstream"
	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Extract reads channel LSBs in row-major order until the terminator and
// returns the bytes in front of it. A carrier without a terminator yields
// spec.ErrMissingTerminator rather than the garbage that was scanned.
func Extract(img *carrier.Image) ([]byte, error) {
	blob, ok := bitstream.Unframe(bitstream.LSBs(img.Pix))
	if !ok {
		return nil, errors.Wrapf(spec.ErrMissingTerminator, "scanned all %d bits of a %dx%d carrier",
			img.Capacity(), img.Width, img.Height)
	}
	return blob, nil
}
