package spec

import "github.com/pkg/errors"

// Kind is a stable category callers branch on instead of matching
// error strings.
type Kind string

const (
	KindInvalidKeyLength  Kind = "InvalidKeyLength"
	KindCapacityExceeded  Kind = "CapacityExceeded"
	KindDecryption        Kind = "DecryptionError"
	KindMissingTerminator Kind = "MissingTerminator"
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindUnframeable       Kind = "Unframeable"
)

// Error is a categorised failure. The sentinels below are the only
// instances; context is attached with errors.Wrap so that errors.Is
// keeps matching.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

var (
	// ErrInvalidKeyLength is returned when a key is not exactly KEY_SIZE bytes.
	ErrInvalidKeyLength = &Error{Kind: KindInvalidKeyLength, Message: "key must be exactly 32 bytes"}

	// ErrCapacityExceeded is returned when payload plus terminator do not
	// fit the carrier's channel bytes.
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded, Message: "payload exceeds carrier capacity"}

	// ErrDecryption covers a short blob, bad padding and invalid UTF-8.
	// Wrong key and corrupted data are indistinguishable.
	ErrDecryption = &Error{Kind: KindDecryption, Message: "decryption failed: wrong key or corrupted data"}

	// ErrMissingTerminator is returned when extraction exhausts the
	// carrier without seeing the terminator.
	ErrMissingTerminator = &Error{Kind: KindMissingTerminator, Message: "no hidden payload terminator found"}

	// ErrUnsupportedFormat is returned for carrier formats that are not
	// lossless raster images.
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat, Message: "unsupported carrier format"}

	// ErrUnframeable is returned when every IV tried leaves a run of
	// sixteen one-bits in the ciphertext. Long messages hit it first.
	ErrUnframeable = &Error{Kind: KindUnframeable, Message: "ciphertext keeps colliding with the terminator"}
)

// KindOf returns the Kind of err, or "" if err is not categorised.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
