//go:build gocv

package opencv

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// OpenCV writes recognizer state as a FileStorage YAML document.
var fileStorageMagic = []byte("%YAML")

// LBPHBackend trains OpenCV's LBPH face recognizer. Models are stored in OpenCV's
// own format, so a model trained by the pure-Go backend cannot be loaded here.
type LBPHBackend struct{}

// NewLBPHBackend returns the OpenCV recognizer backend.
func NewLBPHBackend() (vision.Backend, error) {
	return LBPHBackend{}, nil
}

func newRecognizer() *contrib.LBPHFaceRecognizer {
	fr := contrib.NewLBPHFaceRecognizer()
	// Grid stays at OpenCV's 8x8 default.
	fr.SetRadius(constants.LBPHRadius)
	fr.SetNeighbors(constants.LBPHNeighbors)
	fr.SetThreshold(float32(constants.LBPHThreshold))
	return fr
}

// NormalizeSample resizes and equalizes with OpenCV so training and prediction use
// the same pipeline as the recognizer itself.
func (LBPHBackend) NormalizeSample(gray *image.Gray, size int) *image.Gray {
	src, err := gocv.ImageGrayToMatGray(vision.ToGray(gray))
	if err != nil {
		return vision.NormalizeSample(gray, size)
	}
	defer src.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	equalized := gocv.NewMat()
	defer equalized.Close()
	gocv.EqualizeHist(resized, &equalized)

	img, err := equalized.ToImage()
	if err != nil {
		return vision.NormalizeSample(gray, size)
	}
	return vision.ToGray(img)
}

func (LBPHBackend) Train(samples []vision.Sample) (vision.Model, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("opencv lbph: no samples: %w", apperr.ErrEmptyDataset)
	}

	mats := make([]gocv.Mat, 0, len(samples))
	labels := make([]int, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for i, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s.Image)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		mats = append(mats, m)
		labels = append(labels, s.Label)
	}

	fr := newRecognizer()
	fr.Train(mats, labels)
	return &lbphModel{fr: fr}, nil
}

func (LBPHBackend) Decode(r io.Reader) (vision.Recognizer, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(fileStorageMagic))
	if !bytes.Equal(head, fileStorageMagic) {
		return nil, fmt.Errorf("not an OpenCV recognizer file (retrain with RECOGNIZER=opencv)")
	}

	path, err := spool(br)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	fr := newRecognizer()
	fr.LoadFile(path)
	return &lbphModel{fr: fr}, nil
}

type lbphModel struct {
	mu sync.Mutex
	fr *contrib.LBPHFaceRecognizer
}

// Predict reports a face beyond the recognizer threshold as label -1 at infinite
// distance.
func (m *lbphModel) Predict(face *image.Gray) (vision.Prediction, error) {
	mat, err := gocv.ImageGrayToMatGray(face)
	if err != nil {
		return vision.Prediction{}, fmt.Errorf("converting face to mat: %w", err)
	}
	defer mat.Close()

	m.mu.Lock()
	resp := m.fr.PredictExtendedResponse(mat)
	m.mu.Unlock()

	if resp.Label < 0 {
		return vision.Prediction{Label: -1, Distance: math.Inf(1)}, nil
	}
	return vision.Prediction{Label: int(resp.Label), Distance: float64(resp.Confidence)}, nil
}

// Encode saves through a temporary file because OpenCV only writes to paths.
func (m *lbphModel) Encode(w io.Writer) error {
	f, err := os.CreateTemp("", "lbph-*.yml")
	if err != nil {
		return fmt.Errorf("creating temp model: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	m.mu.Lock()
	m.fr.SaveFile(path)
	m.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading temp model: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func spool(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "lbph-*.yml")
	if err != nil {
		return "", fmt.Errorf("creating temp model: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("copying model: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
