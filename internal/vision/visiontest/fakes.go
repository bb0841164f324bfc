// Package visiontest provides in-memory cameras, detectors and recognizers for tests.
package visiontest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Frame returns a w x h grayscale frame with a simple gradient.
func Frame(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

// Camera hands out a Source. Setting Err makes Open fail.
type Camera struct {
	Err    error
	Frames []image.Image // replayed in order, looping; empty means a 320x240 frame

	mu     sync.Mutex
	opened int
	last   *Source
}

func (c *Camera) Open(ctx context.Context) (vision.FrameSource, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	frames := c.Frames
	if len(frames) == 0 {
		frames = []image.Image{Frame(320, 240)}
	}
	c.last = &Source{frames: frames}
	return c.last, nil
}

// Opened reports how many times Open succeeded.
func (c *Camera) Opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Last returns the most recently opened source.
func (c *Camera) Last() *Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Source loops over its frames.
type Source struct {
	frames []image.Image
	reads  atomic.Int64
	closed atomic.Bool
}

func (s *Source) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("source closed: %w", apperr.ErrDevice)
	}
	n := s.reads.Add(1) - 1
	f := s.frames[int(n)%len(s.frames)]
	if f == nil {
		return nil, apperr.ErrTransientFrame
	}
	return f, nil
}

func (s *Source) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool { return s.closed.Load() }

// Reads reports how many frames were requested.
func (s *Source) Reads() int { return int(s.reads.Load()) }

// Detector returns the same regions for every frame.
type Detector struct {
	Regions []image.Rectangle
	Err     error
}

func (d Detector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Regions, nil
}

// OneFace detects a single 100x100 region at the top-left of the frame.
func OneFace() Detector {
	return Detector{Regions: []image.Rectangle{image.Rect(10, 10, 110, 110)}}
}

// Recognizer answers every Predict with the same prediction.
type Recognizer struct {
	Prediction vision.Prediction
	Err        error
	calls      atomic.Int64
}

func (r *Recognizer) Predict(face *image.Gray) (vision.Prediction, error) {
	r.calls.Add(1)
	if r.Err != nil {
		return vision.Prediction{}, r.Err
	}
	return r.Prediction, nil
}

// Calls reports how many predictions were made.
func (r *Recognizer) Calls() int { return int(r.calls.Load()) }

// Backend trains a model that counts samples per label and decodes to Recognizer.
type Backend struct {
	TrainErr  error
	Decoded   *Recognizer
	Trained   atomic.Int64
	lastCount atomic.Int64
}

func (b *Backend) Train(samples []vision.Sample) (vision.Model, error) {
	if b.TrainErr != nil {
		return nil, b.TrainErr
	}
	b.Trained.Add(1)
	b.lastCount.Store(int64(len(samples)))
	return &model{samples: len(samples)}, nil
}

func (b *Backend) Decode(r io.Reader) (vision.Recognizer, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	if b.Decoded != nil {
		return b.Decoded, nil
	}
	return &Recognizer{}, nil
}

// LastSampleCount reports the sample count of the latest Train call.
func (b *Backend) LastSampleCount() int { return int(b.lastCount.Load()) }

type model struct {
	samples int
}

func (m *model) Predict(face *image.Gray) (vision.Prediction, error) {
	return vision.Prediction{}, nil
}

func (m *model) Encode(w io.Writer) error {
	_, err := fmt.Fprintf(w, "samples: %d\n", m.samples)
	return err
}
