// Package carrier holds the 3-channel raster that hidden payloads live in,
// and converts it to and from lossless image files.
package carrier

import (
	"image"
	"image/color"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

// Image is a row-major grid of pixels with exactly three 8-bit channels
// (R, G, B). Pix holds Width*Height*CHANNELS bytes.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// New creates an all-black carrier.
func New(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*spec.CHANNELS),
	}
}

// Capacity is the number of bits the carrier can hold, one per channel byte.
func (img *Image) Capacity() int {
	return len(img.Pix)
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	return &Image{Width: img.Width, Height: img.Height, Pix: pix}
}

// Offset returns the index of the first channel byte of pixel (x, y).
func (img *Image) Offset(x, y int) int {
	return (y*img.Width + x) * spec.CHANNELS
}

// FromImage flattens any decoded image into a carrier. Alpha is dropped and
// channels are taken un-premultiplied, matching an RGB conversion.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	img := New(bounds.Dx(), bounds.Dy())

	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < img.Height; y++ {
			row := nrgba.Pix[nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < img.Width; x++ {
				i := img.Offset(x, y)
				copy(img.Pix[i:i+spec.CHANNELS], row[x*4:x*4+spec.CHANNELS])
			}
		}
		return img
	}

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := img.Offset(x, y)
			img.Pix[i] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
		}
	}
	return img
}

// ToNRGBA renders the carrier as an opaque image for encoding.
func (img *Image) ToNRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for p := 0; p < img.Width*img.Height; p++ {
		copy(dst.Pix[p*4:p*4+spec.CHANNELS], img.Pix[p*spec.CHANNELS:(p+1)*spec.CHANNELS])
		dst.Pix[p*4+3] = 0xFF
	}
	return dst
}
