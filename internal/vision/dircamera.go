package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// DirCamera replays the image files of a directory as a looping frame sequence.
// It stands in for a webcam on kiosks without one and in end-to-end runs.
type DirCamera struct {
	Dir string
}

// Open lists the frames. A missing or empty directory is a device error.
func (c DirCamera) Open(ctx context.Context) (FrameSource, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("frame directory %s: %w", c.Dir, apperr.ErrDevice)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsSampleFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(c.Dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frame directory %s has no images: %w", c.Dir, apperr.ErrDevice)
	}
	slices.Sort(files)

	return &dirSource{files: files}, nil
}

type dirSource struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

func (s *dirSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("frame source closed: %w", apperr.ErrDevice)
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrTransientFrame)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrTransientFrame)
	}
	return img, nil
}

func (s *dirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsSampleFile reports whether name has an accepted image extension.
func IsSampleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(constants.SampleExtensions, ext)
}
