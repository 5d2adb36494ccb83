package decoder

import (
	"crypto/aes"
	"crypto/cipher"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Decrypt reverses encoder.Encrypt. The first IV_SIZE bytes of blob are the
// IV, the rest is CBC ciphertext. Any structural, padding or text decoding
// failure is reported as spec.ErrDecryption and no text is returned.
func Decrypt(blob []byte, key []byte) (string, error) {
	if err := scrypto.CheckKey(key); err != nil {
		return "", err
	}
	if len(blob) < spec.IV_SIZE {
		return "", errors.Wrapf(spec.ErrDecryption, "blob is %d bytes, shorter than the IV", len(blob))
	}

	iv, ciphertext := blob[:spec.IV_SIZE], blob[spec.IV_SIZE:]
	if len(ciphertext) == 0 || len(ciphertext)%spec.BLOCK_SIZE != 0 {
		return "", errors.Wrapf(spec.ErrDecryption, "ciphertext length %d is not a positive multiple of %d",
			len(ciphertext), spec.BLOCK_SIZE)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "cipher creation failed")
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plain, err := scrypto.Unpad(padded, spec.BLOCK_SIZE)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errors.WithStack(spec.ErrDecryption)
	}
	return string(plain), nil
}
