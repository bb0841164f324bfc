// Package lbph implements a Local Binary Pattern Histogram face recognizer.
//
// Each training face is reduced to a spatial histogram: circular LBP codes are
// computed per pixel, the code image is split into a GridX x GridY grid, and the
// per-cell code histograms are concatenated. Prediction returns the label of the
// nearest training histogram under the chi-square distance, so a lower distance
// means a closer match.
package lbph

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// HNSW parameters for the optional nearest-neighbour index.
const (
	indexMaxNeighbors  = 16
	indexEfSearch      = 64
	indexCandidateSize = 5
)

// Params controls feature extraction and indexing.
type Params struct {
	Radius    int
	Neighbors int
	GridX     int
	GridY     int
	// IndexMinSamples switches Predict from a linear scan to an HNSW search once
	// the model holds at least this many samples. Zero disables the index.
	IndexMinSamples int
}

// DefaultParams mirrors the classic OpenCV LBPH defaults.
func DefaultParams() Params {
	return Params{
		Radius:          constants.LBPHRadius,
		Neighbors:       constants.LBPHNeighbors,
		GridX:           constants.LBPHGridX,
		GridY:           constants.LBPHGridY,
		IndexMinSamples: constants.LBPHIndexMinSamples,
	}
}

func (p Params) validate() error {
	if p.Radius < 1 {
		return fmt.Errorf("lbph radius must be >= 1, got %d", p.Radius)
	}
	if p.Neighbors < 1 || p.Neighbors > 16 {
		return fmt.Errorf("lbph neighbors must be in 1..16, got %d", p.Neighbors)
	}
	if p.GridX < 1 || p.GridY < 1 {
		return fmt.Errorf("lbph grid must be positive, got %dx%d", p.GridX, p.GridY)
	}
	return nil
}

func (p Params) bins() int { return 1 << p.Neighbors }

func (p Params) histogramLen() int { return p.GridX * p.GridY * p.bins() }

// Backend trains and decodes LBPH models.
type Backend struct {
	Params Params
}

// NewBackend returns a backend with the default parameters.
func NewBackend() *Backend {
	return &Backend{Params: DefaultParams()}
}

// Train builds a model from labelled grayscale samples.
func (b *Backend) Train(samples []vision.Sample) (vision.Model, error) {
	if err := b.Params.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("lbph: no samples: %w", apperr.ErrEmptyDataset)
	}

	m := &Model{
		params: b.Params,
		labels: make([]int, 0, len(samples)),
		hists:  make([][]float32, 0, len(samples)),
	}
	for i, s := range samples {
		hist, err := m.params.Histogram(s.Image)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		m.labels = append(m.labels, s.Label)
		m.hists = append(m.hists, hist)
	}
	m.buildIndex()
	return m, nil
}

// Model is a trained LBPH recognizer.
type Model struct {
	params Params
	labels []int
	hists  [][]float32

	mu    sync.Mutex // guards graph searches
	graph *hnsw.Graph[int]
}

// Samples returns the number of training histograms.
func (m *Model) Samples() int { return len(m.labels) }

// Indexed reports whether Predict uses the HNSW index.
func (m *Model) Indexed() bool { return m.graph != nil }

func (m *Model) buildIndex() {
	m.graph = nil
	if m.params.IndexMinSamples <= 0 || len(m.hists) < m.params.IndexMinSamples {
		return
	}
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.EfSearch = indexEfSearch
	g.Distance = ChiSquare
	for i, h := range m.hists {
		g.Add(hnsw.MakeNode(i, h))
	}
	m.graph = g
}

// Predict returns the label of the nearest training sample and its distance.
func (m *Model) Predict(face *image.Gray) (vision.Prediction, error) {
	if len(m.hists) == 0 {
		return vision.Prediction{}, errors.New("lbph: model has no samples")
	}
	query, err := m.params.Histogram(face)
	if err != nil {
		return vision.Prediction{}, err
	}

	best, bestDist := -1, math.Inf(1)
	consider := func(i int) {
		d := float64(ChiSquare(query, m.hists[i]))
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if m.graph != nil {
		m.mu.Lock()
		nodes := m.graph.Search(query, indexCandidateSize)
		m.mu.Unlock()
		// Rescore the approximate candidates exactly.
		for _, n := range nodes {
			consider(n.Key)
		}
	}
	if best < 0 {
		for i := range m.hists {
			consider(i)
		}
	}

	return vision.Prediction{Label: m.labels[best], Distance: bestDist}, nil
}

// ChiSquare is the alternative chi-square histogram distance,
// 2 * sum((a-b)^2 / (a+b)) over bins where a+b > 0.
func ChiSquare(a, b []float32) float32 {
	var sum float64
	for i := range a {
		s := float64(a[i]) + float64(b[i])
		if s <= 0 {
			continue
		}
		d := float64(a[i]) - float64(b[i])
		sum += d * d / s
	}
	return float32(2 * sum)
}

// Histogram computes the spatial LBP histogram of a grayscale face.
func (p Params) Histogram(face *image.Gray) ([]float32, error) {
	if face == nil {
		return nil, errors.New("lbph: nil image")
	}
	codes, w, h := p.codes(face)
	if w < p.GridX || h < p.GridY {
		return nil, fmt.Errorf("lbph: image %v too small for %dx%d grid with radius %d",
			face.Bounds().Size(), p.GridX, p.GridY, p.Radius)
	}

	bins := p.bins()
	hist := make([]float32, p.histogramLen())
	cellW, cellH := w/p.GridX, h/p.GridY
	for gy := range p.GridY {
		for gx := range p.GridX {
			cell := hist[(gy*p.GridX+gx)*bins : (gy*p.GridX+gx+1)*bins]
			for y := gy * cellH; y < (gy+1)*cellH; y++ {
				row := codes[y*w:]
				for x := gx * cellW; x < (gx+1)*cellW; x++ {
					cell[row[x]]++
				}
			}
			n := float32(cellW * cellH)
			for i := range cell {
				cell[i] /= n
			}
		}
	}
	return hist, nil
}

// codes computes circular LBP codes with bilinear sampling. The result covers the
// image shrunk by Radius on every side.
func (p Params) codes(face *image.Gray) ([]uint16, int, int) {
	b := face.Bounds()
	r := p.Radius
	w, h := b.Dx()-2*r, b.Dy()-2*r
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	at := func(x, y int) float64 {
		return float64(face.Pix[face.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	codes := make([]uint16, w*h)
	const eps = 1e-9
	for n := range p.Neighbors {
		angle := 2 * math.Pi * float64(n) / float64(p.Neighbors)
		sx := float64(r) * math.Cos(angle)
		sy := -float64(r) * math.Sin(angle)
		fx, fy := int(math.Floor(sx)), int(math.Floor(sy))
		cx, cy := int(math.Ceil(sx)), int(math.Ceil(sy))
		tx, ty := sx-float64(fx), sy-float64(fy)
		w1 := (1 - tx) * (1 - ty)
		w2 := tx * (1 - ty)
		w3 := (1 - tx) * ty
		w4 := tx * ty
		bit := uint16(1) << n

		for y := r; y < r+h; y++ {
			for x := r; x < r+w; x++ {
				t := w1*at(x+fx, y+fy) + w2*at(x+cx, y+fy) + w3*at(x+fx, y+cy) + w4*at(x+cx, y+cy)
				c := at(x, y)
				if t > c || math.Abs(t-c) < eps {
					codes[(y-r)*w+(x-r)] |= bit
				}
			}
		}
	}
	return codes, w, h
}
