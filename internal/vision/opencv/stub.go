//go:build !gocv

// Package opencv provides a webcam frame source, a Haar cascade detector and an LBPH
// recognizer backend, all backed by OpenCV through gocv. Without the gocv build tag
// every constructor reports the capability as unavailable.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Available reports whether the binary was built with OpenCV support.
const Available = false

var errNotBuilt = errors.New("built without OpenCV support (rebuild with -tags gocv)")

// Camera opens a local video device.
type Camera struct {
	Device int
}

func (c Camera) Open(ctx context.Context) (vision.FrameSource, error) {
	return nil, fmt.Errorf("camera device %d: %w: %w", c.Device, errNotBuilt, apperr.ErrDevice)
}

// HaarDetector runs an OpenCV Haar cascade.
type HaarDetector struct{}

// LoadHaar always fails without OpenCV.
func LoadHaar(path string) (*HaarDetector, error) {
	return nil, errNotBuilt
}

func (d *HaarDetector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	return nil, errNotBuilt
}

// Close is a no-op.
func (d *HaarDetector) Close() error { return nil }

// NewLBPHBackend always fails without OpenCV.
func NewLBPHBackend() (vision.Backend, error) {
	return nil, errNotBuilt
}
