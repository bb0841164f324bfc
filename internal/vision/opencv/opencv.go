//go:build gocv

// Package opencv provides a webcam frame source, a Haar cascade detector and an LBPH
// recognizer backend, all backed by OpenCV through gocv. It is compiled only with the
// gocv build tag.
package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Available reports whether the binary was built with OpenCV support.
const Available = true

// probeDevices is how many device indices are tried when none is pinned.
const probeDevices = 3

// Camera opens a local video device.
type Camera struct {
	// Device pins a device index. Negative probes indices 0..2 and takes the first
	// that opens.
	Device int
}

func (c Camera) Open(ctx context.Context) (vision.FrameSource, error) {
	candidates := []int{c.Device}
	if c.Device < 0 {
		candidates = candidates[:0]
		for i := range probeDevices {
			candidates = append(candidates, i)
		}
	}

	for _, idx := range candidates {
		vc, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			slog.Debug("camera probe failed", "device", idx, "error", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}
		slog.Info("camera opened", "device", idx)
		return &source{vc: vc, mat: gocv.NewMat()}, nil
	}
	return nil, fmt.Errorf("no camera among %v: %w", candidates, apperr.ErrDevice)
}

type source struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (s *source) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, apperr.ErrTransientFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", apperr.ErrTransientFrame)
	}
	return img, nil
}

func (s *source) Close() error {
	s.mat.Close()
	return s.vc.Close()
}

// Haar detection parameters.
const (
	haarScaleFactor  = 1.1
	haarMinNeighbors = 5
	haarMinSize      = 100
)

// HaarDetector runs an OpenCV Haar cascade.
type HaarDetector struct {
	classifier gocv.CascadeClassifier
}

// LoadHaar loads a cascade XML such as haarcascade_frontalface_default.xml.
func LoadHaar(path string) (*HaarDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade classifier %s", path)
	}
	return &HaarDetector{classifier: classifier}, nil
}

func (d *HaarDetector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(vision.ToGray(gray))
	if err != nil {
		return nil, fmt.Errorf("converting frame to mat: %w", err)
	}
	defer mat.Close()

	rects := d.classifier.DetectMultiScaleWithParams(mat, haarScaleFactor, haarMinNeighbors, 0,
		image.Pt(haarMinSize, haarMinSize), image.Pt(0, 0))
	return rects, nil
}

// Close releases the classifier.
func (d *HaarDetector) Close() error {
	return d.classifier.Close()
}
