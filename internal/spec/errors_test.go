package spec

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	err := errors.Wrapf(ErrCapacityExceeded, "need %d bits", 272)
	require.True(t, errors.Is(err, ErrCapacityExceeded))
	require.Equal(t, KindCapacityExceeded, KindOf(err))
	require.Contains(t, err.Error(), "need 272 bits")

	err = fmt.Errorf("embed: %w", errors.WithStack(ErrDecryption))
	require.Equal(t, KindDecryption, KindOf(err))
	require.False(t, errors.Is(err, ErrMissingTerminator))
}

func TestKindOfUncategorised(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestKindsAreDistinct(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, err := range []*Error{
		ErrInvalidKeyLength,
		ErrCapacityExceeded,
		ErrDecryption,
		ErrMissingTerminator,
		ErrUnsupportedFormat,
		ErrUnframeable,
	} {
		require.False(t, seen[err.Kind], "duplicate kind %s", err.Kind)
		seen[err.Kind] = true
	}
}
