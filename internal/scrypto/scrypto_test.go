package scrypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, a, spec.KEY_SIZE)

	b, err := GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGenerateKeyShortEntropy(t *testing.T) {
	_, err := generateKey(bytes.NewReader(make([]byte, 8)))
	require.Error(t, err)
}

func TestEncodeParseKey(t *testing.T) {
	key, err := generateKey(bytes.NewReader(bytes.Repeat([]byte{0xAB}, 32)))
	require.NoError(t, err)

	encoded := EncodeKey(key)
	require.Len(t, encoded, 64)
	require.Equal(t, strings.Repeat("ab", 32), encoded)

	parsed, err := ParseKey(encoded)
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	parsed, err = ParseKey(strings.ToUpper(encoded) + "\n")
	require.NoError(t, err)
	require.Equal(t, key, parsed)
}

func TestParseKeyRawText(t *testing.T) {
	raw := "0123456789abcdefghijklmnopqrstuv"
	key, err := ParseKey(raw)
	require.NoError(t, err)
	require.Equal(t, []byte(raw), key)

	padded := " 123456789abcdefghijklmnopqrstu "
	key, err = ParseKey(padded)
	require.NoError(t, err)
	require.Equal(t, []byte(padded), key)

	_, err = ParseKey(raw + "\n")
	require.True(t, errors.Is(err, spec.ErrInvalidKeyLength))

	// 64 characters that are not hex are not 32 raw bytes either.
	_, err = ParseKey(strings.Repeat("z", 64))
	require.True(t, errors.Is(err, spec.ErrInvalidKeyLength))
}

func TestParseKeyWrongLength(t *testing.T) {
	for _, in := range []string{"", "short", strings.Repeat("a", 33), strings.Repeat("f", 62)} {
		_, err := ParseKey(in)
		assert.Equal(t, spec.KindInvalidKeyLength, spec.KindOf(err), "input %q", in)
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte(spec.DEFAULT_SALT)
	a := DeriveKey([]byte("correct horse"), salt, 1000)
	b := DeriveKey([]byte("correct horse"), salt, 1000)
	c := DeriveKey([]byte("correct horse"), []byte("other"), 1000)

	require.Len(t, a, spec.KEY_SIZE)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NoError(t, CheckKey(a))
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint(make([]byte, 32))
	require.Len(t, fp, 8)
	require.Equal(t, fp, Fingerprint(make([]byte, 32)))
}

func TestPad(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 16},
		{2, 16},
		{15, 16},
		{16, 32},
		{17, 32},
	}
	for _, tt := range tests {
		data := bytes.Repeat([]byte{'x'}, tt.in)
		padded := Pad(data, spec.BLOCK_SIZE)
		require.Len(t, padded, tt.want)
		require.Equal(t, byte(tt.want-tt.in), padded[len(padded)-1])

		back, err := Unpad(padded, spec.BLOCK_SIZE)
		require.NoError(t, err)
		require.Equal(t, data, back)
	}
}

func TestPadDoesNotAlias(t *testing.T) {
	data := make([]byte, 4, 64)
	_ = Pad(data, spec.BLOCK_SIZE)
	require.Equal(t, make([]byte, 4), data[:4])
	require.Equal(t, byte(0), data[:5][4])
}

func TestUnpadRejectsMalformed(t *testing.T) {
	good := Pad([]byte("hi"), spec.BLOCK_SIZE)

	zero := append([]byte{}, good...)
	zero[15] = 0

	tooBig := append([]byte{}, good...)
	tooBig[15] = 17

	inconsistent := append([]byte{}, good...)
	inconsistent[3] = 0x01

	for name, data := range map[string][]byte{
		"empty":        {},
		"misaligned":   good[:15],
		"zero":         zero,
		"too big":      tooBig,
		"inconsistent": inconsistent,
	} {
		_, err := Unpad(data, spec.BLOCK_SIZE)
		assert.True(t, errors.Is(err, spec.ErrDecryption), name)
	}
}
