package stego

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

var (
	ErrNoImage      = errors.New("no carrier image selected")
	ErrNoKey        = errors.New("no key set")
	ErrEmptyMessage = errors.New("message is empty")
)

// Session carries the state a front end accumulates between the select,
// hide and reveal actions.
type Session struct {
	ImagePath string
	Key       []byte
	OutputDir string // empty means the working directory
	Prefix    string
}

// NewSession creates a session writing stego images to outputDir with the
// given file name prefix.
func NewSession(outputDir, prefix string) *Session {
	if prefix == "" {
		prefix = spec.DEFAULT_PREFIX
	}
	return &Session{OutputDir: outputDir, Prefix: prefix}
}

// SelectImage records the carrier to hide messages in.
func (s *Session) SelectImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "select image")
	}
	if info.IsDir() {
		return errors.Errorf("select image: %s is a directory", path)
	}
	if _, err := carrier.FormatFromPath(path); err != nil {
		return err
	}
	s.ImagePath = path
	return nil
}

// SetKey parses a pasted key, hex or raw.
func (s *Session) SetKey(input string) error {
	key, err := scrypto.ParseKey(input)
	if err != nil {
		return err
	}
	s.Key = key
	return nil
}

// NewKey generates a key, stores it in the session and returns its hex form.
func (s *Session) NewKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	s.Key = key
	return scrypto.EncodeKey(key), nil
}

// OutputPath is where Hide writes the stego image.
func (s *Session) OutputPath() string {
	return DefaultOutputPath(s.ImagePath, s.OutputDir, s.Prefix)
}

// Hide encrypts message with the session key and embeds it in the selected
// image, returning the path written.
func (s *Session) Hide(message string) (string, error) {
	if s.ImagePath == "" {
		return "", errors.WithStack(ErrNoImage)
	}
	if message == "" {
		return "", errors.WithStack(ErrEmptyMessage)
	}
	if s.Key == nil {
		return "", errors.WithStack(ErrNoKey)
	}

	blob, err := Encrypt(message, s.Key)
	if err != nil {
		return "", err
	}
	return EmbedFile(s.ImagePath, blob, s.OutputPath())
}

// Reveal extracts and decrypts the message hidden in the image at path.
func (s *Session) Reveal(path string) (string, error) {
	if s.Key == nil {
		return "", errors.WithStack(ErrNoKey)
	}
	blob, err := ExtractFile(path)
	if err != nil {
		return "", err
	}
	return Decrypt(blob, s.Key)
}

// DefaultOutputPath names the stego image prefix+basename of the carrier,
// in dir when set or in the working directory otherwise.
func DefaultOutputPath(imagePath, dir, prefix string) string {
	return filepath.Join(dir, prefix+filepath.Base(imagePath))
}
