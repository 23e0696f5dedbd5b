// Package metrics scores a denoised image against its noisy reference.
package metrics

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"github.com/petermazzocco/go-denoise-project/internal/denoise"
)

const (
	dataRange = 255.0
	channels  = 3

	// WindowSize is the side of the uniform SSIM window.
	WindowSize = 7
	k1         = 0.01
	k2         = 0.03
)

var (
	ErrShapeMismatch = errors.New("images must have identical dimensions")
	ErrImageTooSmall = fmt.Errorf("images must be at least %dx%d for SSIM", WindowSize, WindowSize)
)

type Scores struct {
	PSNR float64
	SSIM float64
}

// Compare computes PSNR and SSIM of candidate against reference. Both images
// are read as 3-channel color and must have the same dimensions.
func Compare(reference, candidate image.Image) (Scores, error) {
	ref := denoise.ToColor(reference)
	cand := denoise.ToColor(candidate)
	if ref.Bounds() != cand.Bounds() {
		return Scores{}, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, ref.Bounds().Size(), cand.Bounds().Size())
	}

	ssim, err := SSIM(ref, cand)
	if err != nil {
		return Scores{}, err
	}
	return Scores{PSNR: PSNR(ref, cand), SSIM: ssim}, nil
}

// ResizeTo scales img to the given size. The image is returned unchanged when
// it already has that size.
func ResizeTo(img image.Image, size image.Point) image.Image {
	if img.Bounds().Size() == size {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// PSNR returns the peak signal-to-noise ratio in dB. Identical images give +Inf.
// Both images must already share bounds.
func PSNR(reference, candidate *image.NRGBA) float64 {
	b := reference.Bounds()
	var sum float64
	n := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			ri := reference.PixOffset(b.Min.X+x, b.Min.Y+y)
			ci := candidate.PixOffset(b.Min.X+x, b.Min.Y+y)
			for c := 0; c < channels; c++ {
				d := float64(reference.Pix[ri+c]) - float64(candidate.Pix[ci+c])
				sum += d * d
			}
			n += channels
		}
	}
	if n == 0 {
		return math.NaN()
	}
	mse := sum / float64(n)
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(dataRange*dataRange/mse)
}

// SSIM returns the mean structural similarity over the three color channels.
// Windows are uniform WindowSize squares using sample (N-1) statistics, and
// only windows lying fully inside the image contribute.
func SSIM(reference, candidate *image.NRGBA) (float64, error) {
	b := reference.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < WindowSize || h < WindowSize {
		return 0, ErrImageTooSmall
	}

	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)
	pad := WindowSize / 2

	xs := make([]float64, WindowSize*WindowSize)
	ys := make([]float64, WindowSize*WindowSize)

	var total float64
	for c := 0; c < channels; c++ {
		var channelSum float64
		count := 0
		for cy := pad; cy < h-pad; cy++ {
			for cx := pad; cx < w-pad; cx++ {
				k := 0
				for dy := -pad; dy <= pad; dy++ {
					for dx := -pad; dx <= pad; dx++ {
						px, py := b.Min.X+cx+dx, b.Min.Y+cy+dy
						xs[k] = float64(reference.Pix[reference.PixOffset(px, py)+c])
						ys[k] = float64(candidate.Pix[candidate.PixOffset(px, py)+c])
						k++
					}
				}
				ux := stat.Mean(xs, nil)
				uy := stat.Mean(ys, nil)
				vx := stat.Covariance(xs, xs, nil)
				vy := stat.Covariance(ys, ys, nil)
				vxy := stat.Covariance(xs, ys, nil)

				num := (2*ux*uy + c1) * (2*vxy + c2)
				den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
				channelSum += num / den
				count++
			}
		}
		total += channelSum / float64(count)
	}
	return total / channels, nil
}
