// Package pigo adapts the pure-Go pigo cascade detector to vision.Detector.
package pigo

import (
	"errors"
	"fmt"
	"image"
	"os"

	pigocore "github.com/esimov/pigo/core"
)

// Detection defaults. MinSize matches the 100x100 minimum face of the Haar setup.
const (
	DefaultMinSize      = 100
	DefaultMaxSize      = 1000
	DefaultShiftFactor  = 0.1
	DefaultScaleFactor  = 1.1
	DefaultIoUThreshold = 0.2
	DefaultMinQuality   = 5.0
)

// Options tunes the cascade scan.
type Options struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

// DefaultOptions returns the detection defaults.
func DefaultOptions() Options {
	return Options{
		MinSize:      DefaultMinSize,
		MaxSize:      DefaultMaxSize,
		ShiftFactor:  DefaultShiftFactor,
		ScaleFactor:  DefaultScaleFactor,
		IoUThreshold: DefaultIoUThreshold,
		MinQuality:   DefaultMinQuality,
	}
}

// Detector finds faces with a pigo "facefinder" cascade.
type Detector struct {
	classifier *pigocore.Pigo
	opts       Options
}

// Load reads a cascade file from disk.
func Load(path string, opts Options) (*Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pigo cascade (download cascade/facefinder from github.com/esimov/pigo): %w", err)
	}
	return New(data, opts)
}

// New unpacks a cascade from memory.
func New(cascade []byte, opts Options) (*Detector, error) {
	// Unpack indexes the header directly; reject obviously truncated input.
	if len(cascade) < 16 {
		return nil, errors.New("pigo cascade is truncated")
	}
	classifier, err := pigocore.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpacking pigo cascade: %w", err)
	}
	return &Detector{classifier: classifier, opts: opts}, nil
}

// Detect returns the face regions above the quality threshold.
func (d *Detector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	b := gray.Bounds()
	cols, rows := b.Dx(), b.Dy()
	pixels := gray.Pix
	if b.Min != (image.Point{}) || gray.Stride != cols {
		pixels = make([]uint8, 0, cols*rows)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			pixels = append(pixels, gray.Pix[gray.PixOffset(b.Min.X, y):gray.PixOffset(b.Max.X, y)]...)
		}
	}

	params := pigocore.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigocore.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	return regions(dets, d.opts.MinQuality, b), nil
}

// regions converts centre/scale detections into rectangles inside bounds.
func regions(dets []pigocore.Detection, minQuality float32, bounds image.Rectangle) []image.Rectangle {
	var out []image.Rectangle
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		half := det.Scale / 2
		r := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half).
			Add(bounds.Min).
			Intersect(bounds)
		if r.Empty() {
			continue
		}
		out = append(out, r)
	}
	return out
}
