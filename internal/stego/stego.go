// Package stego exposes the operations a front end drives: key generation,
// encryption, hiding a blob in an image file and getting it back.
package stego

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/bitstream"
	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/decoder"
	"github.com/faanross/simulacra_lsb/internal/encoder"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

// sealAttempts bounds how many IVs Encrypt tries before giving up. A run of
// sixteen one-bits turns up roughly once per 2^17 ciphertext bits, so a
// message of tens of KiB often needs several IVs and one much past 64 KiB
// rarely gets a clean one at all.
const sealAttempts = 64

// ErrUnframeable is returned when no IV yields a ciphertext free of
// terminator-like bit runs.
var ErrUnframeable = spec.ErrUnframeable

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	return scrypto.GenerateKey()
}

// Encrypt encrypts text under key. A ciphertext that contains a run of
// sixteen one-bits would be cut short on extraction, so a new IV is drawn
// until the blob survives framing. The wire format is unchanged.
func Encrypt(text string, key []byte) ([]byte, error) {
	for range sealAttempts {
		blob, err := encoder.Encrypt(text, key)
		if err != nil {
			return nil, err
		}
		if bitstream.Recoverable(blob) {
			return blob, nil
		}
	}
	return nil, errors.WithStack(ErrUnframeable)
}

// Decrypt recovers the text from a blob produced by Encrypt.
func Decrypt(blob []byte, key []byte) (string, error) {
	return decoder.Decrypt(blob, key)
}

// EmbedFile hides blob in the image at imagePath and writes the result to
// outputPath, which must name a lossless format. Nothing is written when
// any step fails.
func EmbedFile(imagePath string, blob []byte, outputPath string) (string, error) {
	if _, err := carrier.FormatFromPath(outputPath); err != nil {
		return "", err
	}

	img, err := carrier.Load(imagePath)
	if err != nil {
		return "", err
	}

	stego, err := encoder.Embed(img, blob)
	if err != nil {
		return "", err
	}

	if err := carrier.Save(outputPath, stego); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExtractFile returns the blob hidden in the image at imagePath.
func ExtractFile(imagePath string) ([]byte, error) {
	img, err := carrier.Load(imagePath)
	if err != nil {
		return nil, err
	}
	return decoder.Extract(img)
}

// ExtractBytes returns the blob hidden in an encoded image held in memory,
// such as one fetched over DNS.
func ExtractBytes(data []byte) ([]byte, error) {
	img, _, err := carrier.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return decoder.Extract(img)
}

// Attempt is the outcome of trying one key against a carrier.
type Attempt struct {
	Index   int
	Message string
	Err     error
}

// TryKeys extracts the blob from img once and attempts decryption with each
// key in turn, stopping at the first success. The returned attempts are in
// the order tried.
func TryKeys(img *carrier.Image, keys [][]byte) ([]Attempt, error) {
	blob, err := decoder.Extract(img)
	if err != nil {
		return nil, err
	}

	attempts := make([]Attempt, 0, len(keys))
	for i, key := range keys {
		msg, err := decoder.Decrypt(blob, key)
		attempts = append(attempts, Attempt{Index: i, Message: msg, Err: err})
		if err == nil {
			break
		}
	}
	return attempts, nil
}
