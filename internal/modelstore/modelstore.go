// Package modelstore persists the trained recognizer at a single well-known path.
// Writes go through a temp file that atomically replaces the previous model, so a
// reader always sees a complete file.
package modelstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Store reads and writes the model file.
type Store struct {
	Path    string
	Backend vision.Backend
}

// New returns a store for the model at path.
func New(path string, backend vision.Backend) *Store {
	return &Store{Path: path, Backend: backend}
}

// Exists reports whether a trained model is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path)
	return err == nil && info.Mode().IsRegular()
}

// Save atomically replaces the model file.
func (s *Store) Save(m vision.Model) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w: %w", err, apperr.ErrStorage)
	}

	t, err := renameio.TempFile(filepath.Dir(s.Path), s.Path)
	if err != nil {
		return fmt.Errorf("creating temp model file: %w: %w", err, apperr.ErrStorage)
	}
	defer t.Cleanup()

	if err := m.Encode(t); err != nil {
		return fmt.Errorf("writing model: %w: %w", err, apperr.ErrStorage)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing model file: %w: %w", err, apperr.ErrStorage)
	}
	return nil
}

// Load decodes the persisted model. A missing file is ErrModelMissing.
func (s *Store) Load() (vision.Recognizer, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no trained model at %s: %w", s.Path, apperr.ErrModelMissing)
		}
		return nil, fmt.Errorf("opening model: %w: %w", err, apperr.ErrStorage)
	}
	defer f.Close()

	rec, err := s.Backend.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w: %w", s.Path, err, apperr.ErrStorage)
	}
	return rec, nil
}
