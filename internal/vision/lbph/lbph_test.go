package lbph

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

func horizontal(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 7) % 256)})
		}
	}
	return img
}

func checker(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := uint8(30)
			if (x/4+y/4)%2 == 0 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func trainingSet() []vision.Sample {
	return []vision.Sample{
		{Label: 1, Image: horizontal(64)},
		{Label: 2, Image: checker(64)},
	}
}

func TestChiSquare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{0.5, 0.5}, []float32{0.5, 0.5}, 0},
		{"disjoint", []float32{1, 0}, []float32{0, 1}, 4},
		{"empty bins skipped", []float32{0, 1}, []float32{0, 1}, 0},
		{"partial", []float32{0.5, 0.5}, []float32{1, 0}, 2 * (0.25/1.5 + 0.25/0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChiSquare(tt.a, tt.b)
			if diff := got - tt.expected; diff > 1e-5 || diff < -1e-5 {
				t.Errorf("ChiSquare() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHistogram_Normalized(t *testing.T) {
	p := DefaultParams()
	hist, err := p.Histogram(checker(64))
	if err != nil {
		t.Fatalf("Histogram failed: %v", err)
	}
	if len(hist) != 8*8*256 {
		t.Fatalf("expected %d bins, got %d", 8*8*256, len(hist))
	}
	// Each cell sums to one.
	for cell := range 64 {
		var sum float32
		for _, v := range hist[cell*256 : (cell+1)*256] {
			sum += v
		}
		if sum < 0.999 || sum > 1.001 {
			t.Fatalf("cell %d sums to %v", cell, sum)
		}
	}
}

func TestHistogram_TooSmall(t *testing.T) {
	if _, err := DefaultParams().Histogram(checker(6)); err == nil {
		t.Error("expected error for image smaller than the grid")
	}
}

func TestTrain_Empty(t *testing.T) {
	_, err := NewBackend().Train(nil)
	if !errors.Is(err, apperr.ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestTrain_InvalidParams(t *testing.T) {
	b := &Backend{Params: Params{Radius: 0, Neighbors: 8, GridX: 8, GridY: 8}}
	if _, err := b.Train(trainingSet()); err == nil {
		t.Error("expected error for zero radius")
	}
}

func TestPredict_NearestLabel(t *testing.T) {
	model, err := NewBackend().Train(trainingSet())
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	pred, err := model.Predict(checker(64))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Label != 2 {
		t.Errorf("expected label 2, got %d", pred.Label)
	}
	if pred.Distance > 1e-4 {
		t.Errorf("expected ~0 distance for a training image, got %v", pred.Distance)
	}

	pred, err = model.Predict(horizontal(64))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Label != 1 {
		t.Errorf("expected label 1, got %d", pred.Label)
	}
}

func TestPredict_IndexedMatchesLinear(t *testing.T) {
	var samples []vision.Sample
	for i := range 10 {
		samples = append(samples, vision.Sample{Label: 1, Image: horizontal(48 + i)})
		samples = append(samples, vision.Sample{Label: 2, Image: checker(48 + i)})
	}

	linear := &Backend{Params: DefaultParams()}
	linear.Params.IndexMinSamples = 0
	indexed := &Backend{Params: DefaultParams()}
	indexed.Params.IndexMinSamples = 1

	lm, err := linear.Train(samples)
	if err != nil {
		t.Fatal(err)
	}
	im, err := indexed.Train(samples)
	if err != nil {
		t.Fatal(err)
	}
	if !im.(*Model).Indexed() {
		t.Fatal("expected indexed model")
	}
	if lm.(*Model).Indexed() {
		t.Fatal("expected linear model")
	}

	for _, face := range []*image.Gray{checker(50), horizontal(55)} {
		lp, _ := lm.Predict(face)
		ip, _ := im.Predict(face)
		if lp.Label != ip.Label {
			t.Errorf("indexed label %d differs from linear label %d", ip.Label, lp.Label)
		}
	}
}

func TestEncodeDecode_PreservesPredictions(t *testing.T) {
	backend := NewBackend()
	model, err := backend.Train(trainingSet())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "format: lbph") {
		t.Errorf("unexpected document head: %.40q", buf.String())
	}

	loaded, err := backend.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for _, face := range []*image.Gray{checker(64), horizontal(64)} {
		want, _ := model.Predict(face)
		got, err := loaded.Predict(face)
		if err != nil {
			t.Fatalf("Predict on decoded model failed: %v", err)
		}
		if got != want {
			t.Errorf("decoded prediction %+v, want %+v", got, want)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "::::"},
		{"wrong format", "format: eigen\nversion: 1\n"},
		{"wrong version", "format: lbph\nversion: 9\nradius: 1\nneighbors: 8\ngrid_x: 8\ngrid_y: 8\n"},
		{"label mismatch", "format: lbph\nversion: 1\nradius: 1\nneighbors: 8\ngrid_x: 8\ngrid_y: 8\nlabels: [1]\nhistograms: []\n"},
		{"short histogram", "format: lbph\nversion: 1\nradius: 1\nneighbors: 8\ngrid_x: 8\ngrid_y: 8\nlabels: [1]\nhistograms: [AAAA]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBackend().Decode(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}
