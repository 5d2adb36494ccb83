package scrypto

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Pad appends PKCS#7 padding. A full block is added when data is already
// aligned, so the result is never empty.
func Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

// Unpad strips PKCS#7 padding, rejecting anything malformed.
func Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.Wrap(spec.ErrDecryption, "padded data is not block aligned")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.WithStack(spec.ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.WithStack(spec.ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
