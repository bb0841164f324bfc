// Package vision defines the contracts between the attendance pipeline and its
// external capabilities (camera, face detector, recognizer) plus the grayscale image
// operations shared by enrollment, training and recognition.
package vision

import (
	"context"
	"image"
	"io"
)

// FrameSource yields frames from an opened camera. Read reports a dropped frame as
// apperr.ErrTransientFrame; callers skip the iteration and read again.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Camera opens a FrameSource. Open fails with apperr.ErrDevice when no device is usable.
type Camera interface {
	Open(ctx context.Context) (FrameSource, error)
}

// Detector finds candidate face regions in a grayscale frame.
type Detector interface {
	Detect(gray *image.Gray) ([]image.Rectangle, error)
}

// Prediction is the recognizer's answer for one face region.
// Lower Distance means higher confidence.
type Prediction struct {
	Label    int
	Distance float64
}

// Recognizer predicts the label of a grayscale face region.
type Recognizer interface {
	Predict(face *image.Gray) (Prediction, error)
}

// Sample is one labelled training image.
type Sample struct {
	Label int
	Image *image.Gray
}

// Model is a trained recognizer that can be serialized.
type Model interface {
	Recognizer
	Encode(w io.Writer) error
}

// Backend trains models and decodes persisted ones.
type Backend interface {
	Train(samples []Sample) (Model, error)
	Decode(r io.Reader) (Recognizer, error)
}
