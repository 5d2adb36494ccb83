package carrier

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

func noisy(w, h int) *Image {
	img := New(w, h)
	for i := range img.Pix {
		img.Pix[i] = byte(i*31 + i/7)
	}
	return img
}

func TestNewCapacity(t *testing.T) {
	img := New(4, 4)
	require.Equal(t, 48, img.Capacity())
	require.Len(t, img.Pix, 48)
	require.Equal(t, 15, img.Offset(1, 1))
}

func TestCloneIsIndependent(t *testing.T) {
	img := noisy(3, 2)
	clone := img.Clone()
	require.Equal(t, img, clone)

	clone.Pix[0] ^= 0xFF
	require.NotEqual(t, img.Pix[0], clone.Pix[0])
}

func TestFromImageDropsAlphaUnpremultiplied(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	img := FromImage(src)
	require.Equal(t, []byte{10, 20, 30, 200, 100, 50}, img.Pix)
}

func TestFromImageGenericPathAndOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 7, 6))
	src.SetRGBA(5, 5, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	src.SetRGBA(6, 5, color.RGBA{R: 4, G: 5, B: 6, A: 255})

	img := FromImage(src)
	require.Equal(t, 2, img.Width)
	require.Equal(t, 1, img.Height)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, img.Pix)
}

func TestToNRGBAIsOpaque(t *testing.T) {
	img := noisy(3, 3)
	out := img.ToNRGBA()
	require.True(t, out.Opaque())
	require.Equal(t, img, FromImage(out))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := noisy(17, 9)

	for _, name := range []string{"c.png", "c.bmp", "c.tiff", "c.TIF"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, img))

			got, err := Load(path)
			require.NoError(t, err)
			require.Equal(t, img.Width, got.Width)
			require.Equal(t, img.Height, got.Height)
			require.True(t, bytes.Equal(img.Pix, got.Pix), "pixel data changed")
		})
	}
}

func TestSaveRejectsLossyFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.jpg", "out.JPEG", "out.gif", "out.txt", "noext"} {
		path := filepath.Join(dir, name)
		err := Save(path, noisy(2, 2))
		require.Error(t, err)
		require.True(t, errors.Is(err, spec.ErrUnsupportedFormat), name)

		_, statErr := os.Stat(path)
		require.True(t, os.IsNotExist(statErr), "%s should not exist", name)
	}
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.png")
	require.Error(t, Save(path, noisy(2, 2)))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("definitely not an image")))
	require.Equal(t, spec.KindUnsupportedFormat, spec.KindOf(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}
