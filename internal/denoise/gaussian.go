// Package denoise holds the placeholder denoiser: a fixed 5x5 Gaussian blur.
package denoise

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	// Decoders for the upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// KernelSize is the side of the square smoothing kernel.
const KernelSize = 5

// With a zero sigma the small-kernel case uses the binomial taps, which is what
// the sigma derivation from the kernel size settles on for a 5-tap kernel.
var taps = [KernelSize]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// DefaultMaxPixels bounds width times height of images accepted for decoding.
const DefaultMaxPixels = 40_000_000

var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// CheckDimensions reads only the image header from r and rejects images whose
// width times height exceeds maxPixels. Compressed uploads can be small on
// the wire while decoding to gigabytes, so this runs before any decode.
func CheckDimensions(r io.Reader, maxPixels int) (image.Config, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, fmt.Errorf("invalid %s dimensions %dx%d", format, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return image.Config{}, fmt.Errorf("%w: %s image is %dx%d, limit is %d pixels",
			ErrTooManyPixels, format, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, nil
}

// Load decodes the image at path into 3-channel color. Alpha is discarded and
// grayscale sources are expanded so every loaded image has three channels.
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ToColor(img), nil
}

// ToColor copies img into an opaque NRGBA buffer whose origin is (0, 0).
func ToColor(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := out.PixOffset(x, y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

// File loads the image at path and returns its blurred version.
func File(path string) (*image.NRGBA, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Gaussian5x5(img), nil
}

// Gaussian5x5 smooths img with the fixed separable kernel. Borders are
// reflected without repeating the edge pixel (dcb|abcd|cba) and results are
// rounded half to even. The output is always opaque.
func Gaussian5x5(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	const channels = 3
	r := KernelSize / 2

	// Horizontal pass into a float buffer.
	tmp := make([]float64, w*h*channels)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				var sum float64
				for k := -r; k <= r; k++ {
					xx := reflect101(x+k, w)
					sum += taps[k+r] * float64(row[xx*4+c])
				}
				tmp[(y*w+x)*channels+c] = sum
			}
		}
	}

	// Vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			for c := 0; c < channels; c++ {
				var sum float64
				for k := -r; k <= r; k++ {
					yy := reflect101(y+k, h)
					sum += taps[k+r] * tmp[(yy*w+x)*channels+c]
				}
				out.Pix[i+c] = saturate(sum)
			}
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

// reflect101 maps an out-of-range index back into [0, n).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*(n-1) - i
		}
	}
	return i
}

func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
