package carrier

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Format names a lossless container a carrier can be written as.
type Format string

const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// FormatFromPath infers the output format from the file extension. Lossy
// and unknown extensions are rejected, since recompression destroys LSBs.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".jpg", ".jpeg", ".gif", ".webp":
		return "", errors.Wrapf(spec.ErrUnsupportedFormat, "%q is lossy", ext)
	default:
		return "", errors.Wrapf(spec.ErrUnsupportedFormat, "extension %q: use .png, .bmp or .tiff", ext)
	}
}

// Decode reads a PNG, BMP or TIFF image into a carrier.
func Decode(r io.Reader) (*Image, string, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", errors.Wrap(spec.ErrUnsupportedFormat, "unrecognised image data")
		}
		return nil, "", errors.Wrap(err, "decode image")
	}
	switch format {
	case "png", "bmp", "tiff":
	default:
		return nil, "", errors.Wrapf(spec.ErrUnsupportedFormat, "%s is not a lossless carrier", format)
	}
	return FromImage(src), format, nil
}

// Load opens and decodes a carrier image file.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open carrier")
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return img, nil
}

// Encode writes the carrier to w in the given format.
func Encode(w io.Writer, format Format, img *Image) error {
	out := img.ToNRGBA()
	switch format {
	case FormatPNG:
		return png.Encode(w, out)
	case FormatBMP:
		return bmp.Encode(w, out)
	case FormatTIFF:
		return tiff.Encode(w, out, &tiff.Options{Compression: tiff.Deflate})
	default:
		return errors.Wrapf(spec.ErrUnsupportedFormat, "format %q", format)
	}
}

// Save encodes the carrier by the extension of path and replaces the file
// atomically: on any error no file is left behind at path.
func Save(path string, img *Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, format, img); err != nil {
		return errors.Wrap(err, fmt.Sprintf("encode %s", format))
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
