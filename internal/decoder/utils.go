package decoder

import (
	"math"

	"github.com/faanross/simulacra_lsb/internal/bitstream"
	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

const (
	sampleSize   = 10000 // pixels inspected for the LSB distribution
	channelBlock = 100   // side of the top-left block averaged per channel
)

// Report summarises the LSB plane of a carrier.
type Report struct {
	Width, Height int
	Zeros, Ones   int     // LSB counts over the sampled pixels
	ZeroRatio     float64 // percent of sampled LSBs that are 0
	AvgR          int
	AvgG          int
	AvgB          int
	Entropy       float64 // Shannon entropy of packed LSB bytes, max 8
}

// LooksEncrypted reports an LSB distribution close to 50/50, typical of
// ciphertext rather than natural images.
func (r Report) LooksEncrypted() bool {
	return r.ZeroRatio > 45 && r.ZeroRatio < 55
}

// UniformChannels reports channel averages that are unusually close.
func (r Report) UniformChannels() bool {
	d := abs(r.AvgR-r.AvgG) + abs(r.AvgG-r.AvgB) + abs(r.AvgB-r.AvgR)
	return d < 30
}

// Analyze performs security analysis on the image
func Analyze(img *carrier.Image) Report {
	r := Report{Width: img.Width, Height: img.Height}

	sampled := min(img.Width*img.Height, sampleSize) * spec.CHANNELS
	for bit := range bitstream.LSBs(img.Pix[:sampled]) {
		if bit {
			r.Ones++
		} else {
			r.Zeros++
		}
	}
	if total := r.Zeros + r.Ones; total > 0 {
		r.ZeroRatio = float64(r.Zeros) / float64(total) * 100
	}

	var sum [spec.CHANNELS]int
	bw, bh := min(channelBlock, img.Width), min(channelBlock, img.Height)
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			i := img.Offset(x, y)
			for c := range spec.CHANNELS {
				sum[c] += int(img.Pix[i+c])
			}
		}
	}
	if n := bw * bh; n > 0 {
		r.AvgR, r.AvgG, r.AvgB = sum[0]/n, sum[1]/n, sum[2]/n
	}

	r.Entropy = entropy(bitstream.Pack(bitstream.LSBs(img.Pix)))
	return r
}

func entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var frequency [256]int
	for _, b := range data {
		frequency[b]++
	}
	e := 0.0
	total := float64(len(data))
	for _, count := range frequency {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		e -= p * math.Log2(p)
	}
	return e
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
