package encoder

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Encrypt performs AES-256-CBC encryption of the message's UTF-8 bytes with
// PKCS#7 padding and a fresh random IV. The result is IV || ciphertext.
func Encrypt(plaintext string, key []byte) ([]byte, error) {
	return encrypt(rand.Reader, plaintext, key)
}

func encrypt(random io.Reader, plaintext string, key []byte) ([]byte, error) {
	if err := scrypto.CheckKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "cipher creation failed")
	}

	padded := scrypto.Pad([]byte(plaintext), spec.BLOCK_SIZE)
	blob := make([]byte, spec.IV_SIZE+len(padded))

	iv := blob[:spec.IV_SIZE]
	if _, err := io.ReadFull(random, iv); err != nil {
		return nil, errors.Wrap(err, "IV generation failed")
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob[spec.IV_SIZE:], padded)
	return blob, nil
}
