package encoder

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

func patterned(w, h int) *carrier.Image {
	img := carrier.New(w, h)
	for i := range img.Pix {
		img.Pix[i] = byte(i*73 + 11)
	}
	return img
}

func TestEmbedBit(t *testing.T) {
	assert.Equal(t, uint8(0x01), EmbedBit(0x00, true))
	assert.Equal(t, uint8(0x00), EmbedBit(0x01, false))
	assert.Equal(t, uint8(0xFF), EmbedBit(0xFF, true))
	assert.Equal(t, uint8(0xFE), EmbedBit(0xFF, false))
}

func TestEncryptFormat(t *testing.T) {
	key := make([]byte, spec.KEY_SIZE)
	iv := bytes.Repeat([]byte{0x42}, spec.IV_SIZE)

	blob, err := encrypt(bytes.NewReader(iv), "hi", key)
	require.NoError(t, err)
	require.Len(t, blob, spec.IV_SIZE+spec.BLOCK_SIZE)
	require.Equal(t, iv, blob[:spec.IV_SIZE])

	// Independently decrypt with the standard library.
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	plain := make([]byte, spec.BLOCK_SIZE)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, blob[spec.IV_SIZE:])
	require.Equal(t, scrypto.Pad([]byte("hi"), spec.BLOCK_SIZE), plain)
}

func TestEncryptBlockAligned(t *testing.T) {
	key := bytes.Repeat([]byte{7}, spec.KEY_SIZE)
	for _, msg := range []string{"", "a", "exactly sixteen!", "héllo wörld, a bit longer than one block"} {
		blob, err := Encrypt(msg, key)
		require.NoError(t, err)
		ct := len(blob) - spec.IV_SIZE
		require.Zero(t, ct%spec.BLOCK_SIZE, msg)
		require.Equal(t, len(scrypto.Pad([]byte(msg), spec.BLOCK_SIZE)), ct, msg)
	}
}

func TestEncryptFreshIV(t *testing.T) {
	key := make([]byte, spec.KEY_SIZE)
	a, err := Encrypt("same message", key)
	require.NoError(t, err)
	b, err := Encrypt("same message", key)
	require.NoError(t, err)
	require.NotEqual(t, a[:spec.IV_SIZE], b[:spec.IV_SIZE])
	require.NotEqual(t, a, b)
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33, 64} {
		_, err := Encrypt("hi", make([]byte, n))
		require.True(t, errors.Is(err, spec.ErrInvalidKeyLength), "key of %d bytes", n)
	}
}

func TestEncryptEntropyFailure(t *testing.T) {
	_, err := encrypt(bytes.NewReader(nil), "hi", make([]byte, spec.KEY_SIZE))
	require.Error(t, err)
	require.Equal(t, spec.Kind(""), spec.KindOf(err))
}

func TestEmbedCapacityBoundary(t *testing.T) {
	// 4x4x3 = 48 bits = 4 bytes + terminator.
	img := patterned(4, 4)
	_, err := Embed(img, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = Embed(img, []byte{1, 2, 3, 4, 5})
	require.True(t, errors.Is(err, spec.ErrCapacityExceeded))

	// 13x1x3 = 39 bits; 3 bytes need 40.
	_, err = Embed(patterned(13, 1), []byte{1, 2, 3})
	require.Equal(t, spec.KindCapacityExceeded, spec.KindOf(err))

	// Not even room for the terminator.
	_, err = Embed(patterned(5, 1), nil)
	require.Equal(t, spec.KindCapacityExceeded, spec.KindOf(err))
}

func TestEmbedDoesNotMutateInput(t *testing.T) {
	img := patterned(8, 8)
	before := img.Clone()

	out, err := Embed(img, []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, before, img)
	require.NotSame(t, img, out)
	require.Equal(t, img.Width, out.Width)
	require.Equal(t, img.Height, out.Height)
}

func TestEmbedOnlyTouchesLSBsOfUsedBytes(t *testing.T) {
	img := patterned(10, 10)
	blob := []byte("only the first bytes change")
	out, err := Embed(img, blob)
	require.NoError(t, err)

	used := RequiredBits(len(blob))
	for i := range img.Pix {
		if i < used {
			require.Equal(t, img.Pix[i]&0xFE, out.Pix[i]&0xFE, "high bits changed at %d", i)
		} else {
			require.Equal(t, img.Pix[i], out.Pix[i], "byte %d past the terminator changed", i)
		}
	}
	for i := used - spec.TERMINATOR_BITS; i < used; i++ {
		require.Equal(t, byte(1), out.Pix[i]&1)
	}
}

func TestEmbedDeterministic(t *testing.T) {
	img := patterned(6, 6)
	a, err := Embed(img, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	b, err := Embed(img, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	require.Equal(t, a.Pix, b.Pix)
}

func TestCapacityHelpers(t *testing.T) {
	img := carrier.New(64, 64)
	require.Equal(t, 1534, MaxPayload(img))
	require.Equal(t, 0, MaxPayload(carrier.New(1, 1)))
	require.InDelta(t, 272*100.0/12288.0, Utilization(img, 32), 1e-9)
	require.Zero(t, Utilization(carrier.New(0, 0), 32))

	h := MinimumCarrier(64, 32)
	require.Equal(t, 2, h)
	_, err := Embed(carrier.New(64, h), make([]byte, 32))
	require.NoError(t, err)
	require.Zero(t, MinimumCarrier(0, 32))
}
