// Package facestore manages the on-disk face sample buckets. Each enrolled person owns
// one directory named "<id>_<name>" holding sequentially numbered grayscale JPEGs.
package facestore

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Bucket is one person's sample directory.
type Bucket struct {
	ID   int
	Name string
	Dir  string
}

// Store is the face storage root.
type Store struct {
	Root string
}

// New returns a store rooted at root. The directory is created lazily.
func New(root string) *Store {
	return &Store{Root: root}
}

// BucketName formats the directory name for a person.
func BucketName(id int, name string) string {
	return strconv.Itoa(id) + "_" + name
}

// ParseBucketName splits a directory name on its first underscore into a positive id
// and a non-empty name.
func ParseBucketName(s string) (int, string, error) {
	idPart, name, ok := strings.Cut(s, "_")
	if !ok {
		return 0, "", fmt.Errorf("bucket %q: missing '_' separator", s)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("bucket %q: id %q is not a positive integer", s, idPart)
	}
	if name == "" {
		return 0, "", fmt.Errorf("bucket %q: empty name", s)
	}
	return id, name, nil
}

// Exists reports whether the storage root is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Root)
	return err == nil && info.IsDir()
}

// CreateBucket makes the person's directory. It is idempotent.
func (s *Store) CreateBucket(id int, name string) (Bucket, error) {
	b := Bucket{ID: id, Name: name, Dir: filepath.Join(s.Root, BucketName(id, name))}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return Bucket{}, fmt.Errorf("creating bucket %s: %w: %w", b.Dir, err, apperr.ErrStorage)
	}
	return b, nil
}

// ListBuckets returns the well-formed buckets sorted by directory name, plus the
// names of directories that did not parse. A missing root is ErrNoData.
func (s *Store) ListBuckets() ([]Bucket, []string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("face storage %s: %w", s.Root, apperr.ErrNoData)
		}
		return nil, nil, fmt.Errorf("reading face storage %s: %w: %w", s.Root, err, apperr.ErrStorage)
	}

	var buckets []Bucket
	var skipped []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, name, err := ParseBucketName(e.Name())
		if err != nil {
			skipped = append(skipped, e.Name())
			continue
		}
		buckets = append(buckets, Bucket{ID: id, Name: name, Dir: filepath.Join(s.Root, e.Name())})
	}
	return buckets, skipped, nil
}

// CountSamples totals the sample files in all well-formed buckets. A missing root
// counts as zero.
func (s *Store) CountSamples() (int, error) {
	buckets, _, err := s.ListBuckets()
	if errors.Is(err, apperr.ErrNoData) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range buckets {
		files, err := b.Samples()
		if err != nil {
			return 0, err
		}
		total += len(files)
	}
	return total, nil
}

// Samples lists the bucket's image files in numeric order; non-numeric names sort
// after numbered ones.
func (b Bucket) Samples() ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading bucket %s: %w: %w", b.Dir, err, apperr.ErrStorage)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !vision.IsSampleFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	slices.SortFunc(files, func(a, c string) int {
		na, aok := sampleIndex(a)
		nc, cok := sampleIndex(c)
		switch {
		case aok && cok && na != nc:
			return na - nc
		case aok != cok:
			if aok {
				return -1
			}
			return 1
		}
		return strings.Compare(a, c)
	})

	for i, f := range files {
		files[i] = filepath.Join(b.Dir, f)
	}
	return files, nil
}

// NextIndex returns one past the highest numbered sample, starting at 1.
func (b Bucket) NextIndex() (int, error) {
	files, err := b.Samples()
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, f := range files {
		if n, ok := sampleIndex(filepath.Base(f)); ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// WriteSample stores img as <n>.jpg.
func (b Bucket) WriteSample(n int, img *image.Gray) (string, error) {
	path := filepath.Join(b.Dir, strconv.Itoa(n)+".jpg")
	if err := vision.SaveJPEG(path, img); err != nil {
		return "", fmt.Errorf("writing sample %s: %w: %w", path, err, apperr.ErrStorage)
	}
	return path, nil
}

func sampleIndex(file string) (int, bool) {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	n, err := strconv.Atoi(stem)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
