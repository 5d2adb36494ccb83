package scrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

// GenerateKey returns KEY_SIZE bytes from the system CSPRNG.
func GenerateKey() ([]byte, error) {
	return generateKey(rand.Reader)
}

func generateKey(random io.Reader) ([]byte, error) {
	key := make([]byte, spec.KEY_SIZE)
	if _, err := io.ReadFull(random, key); err != nil {
		return nil, errors.Wrap(err, "key generation failed")
	}
	return key, nil
}

// EncodeKey formats a key for display: 64 lowercase hex characters.
func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// ParseKey accepts a key as 64 hex characters or as exactly 32 raw bytes
// of text, the two forms users paste into the key field. Surrounding
// whitespace is ignored for hex only; every byte of a raw key counts.
func ParseKey(input string) ([]byte, error) {
	if trimmed := strings.TrimSpace(input); len(trimmed) == 2*spec.KEY_SIZE {
		if key, err := hex.DecodeString(trimmed); err == nil {
			return key, nil
		}
	}
	if err := CheckKey([]byte(input)); err != nil {
		return nil, errors.Wrapf(err, "got %d bytes; paste 64 hex characters or 32 raw characters", len(input))
	}
	return []byte(input), nil
}

// CheckKey enforces the cipher layer's key contract.
func CheckKey(key []byte) error {
	if len(key) != spec.KEY_SIZE {
		return errors.WithStack(spec.ErrInvalidKeyLength)
	}
	return nil
}

// DeriveKey generates an encryption key from a passphrase using PBKDF2
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = spec.PBKDF2_ITERS
	}
	return pbkdf2.Key(passphrase, salt, iterations, spec.KEY_SIZE, sha256.New)
}

// Fingerprint is a short, non-secret identifier for a key.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return fmt.Sprintf("%X", sum[:4])
}

// ReadSecret prompts on stderr and reads a line from the terminal without
// echoing it.
func ReadSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, errors.Wrap(err, "secret read failed")
	}
	return secret, nil
}
