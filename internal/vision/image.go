package vision

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ToGray converts any image to 8-bit grayscale with its origin at (0, 0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Crop copies the part of gray covered by r. The region is clipped to the image
// bounds; an empty intersection yields nil.
func Crop(gray *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(gray.Bounds())
	if r.Empty() {
		return nil
	}
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), gray, r.Min, draw.Src)
	return dst
}

// Resize scales gray to width x height.
func Resize(gray *image.Gray, width, height int) *image.Gray {
	b := gray.Bounds()
	if b.Dx() == width && b.Dy() == height && b.Min == (image.Point{}) {
		return gray
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), gray, b, draw.Src, nil)
	return dst
}

// EqualizeHist spreads the intensity histogram over the full 0-255 range.
func EqualizeHist(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if total == 0 {
		return dst
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[gray.PixOffset(b.Min.X, y):gray.PixOffset(b.Max.X, y)]
		for _, v := range row {
			hist[v]++
		}
	}

	// cdf of the first occupied bin maps to 0.
	cdfMin := 0
	for _, h := range hist {
		if h > 0 {
			cdfMin = h
			break
		}
	}

	var lut [256]uint8
	if total == cdfMin {
		// Single intensity: nothing to spread.
		for i := range lut {
			lut[i] = uint8(i)
		}
	} else {
		cdf := 0
		scale := 255.0 / float64(total-cdfMin)
		for i, h := range hist {
			cdf += h
			v := float64(cdf-cdfMin) * scale
			if v < 0 {
				v = 0
			}
			lut[i] = uint8(v + 0.5)
		}
	}

	for y := range b.Dy() {
		src := gray.Pix[gray.PixOffset(b.Min.X, b.Min.Y+y):gray.PixOffset(b.Max.X, b.Min.Y+y)]
		out := dst.Pix[dst.PixOffset(0, y):dst.PixOffset(b.Dx(), y)]
		for x, v := range src {
			out[x] = lut[v]
		}
	}
	return dst
}

// NormalizeSample turns a face crop into the fixed-size equalized training input.
func NormalizeSample(gray *image.Gray, size int) *image.Gray {
	return EqualizeHist(Resize(gray, size, size))
}

// SampleNormalizer is implemented by backends that prepare face crops with their own
// image pipeline.
type SampleNormalizer interface {
	NormalizeSample(gray *image.Gray, size int) *image.Gray
}

// Normalize prepares a face crop for b. Training and prediction must both go
// through it so the two sides see identical inputs.
func Normalize(b Backend, gray *image.Gray, size int) *image.Gray {
	if n, ok := b.(SampleNormalizer); ok {
		return n.NormalizeSample(gray, size)
	}
	return NormalizeSample(gray, size)
}

// LoadGray decodes an image file (jpeg, png, bmp) as grayscale.
func LoadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToGray(img), nil
}

// SaveJPEG writes gray as a JPEG file.
func SaveJPEG(path string, gray *image.Gray) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	if err := jpeg.Encode(f, gray, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing image file: %w", err)
	}
	return nil
}
