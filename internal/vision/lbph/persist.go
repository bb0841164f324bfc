package lbph

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/vision"
)

const (
	modelFormat  = "lbph"
	modelVersion = 1
)

// modelFile is the on-disk YAML document. Histograms are stored as base64
// little-endian float32 arrays.
type modelFile struct {
	Format     string   `yaml:"format"`
	Version    int      `yaml:"version"`
	Radius     int      `yaml:"radius"`
	Neighbors  int      `yaml:"neighbors"`
	GridX      int      `yaml:"grid_x"`
	GridY      int      `yaml:"grid_y"`
	Labels     []int    `yaml:"labels"`
	Histograms []string `yaml:"histograms"`
}

// Encode writes the model as YAML.
func (m *Model) Encode(w io.Writer) error {
	doc := modelFile{
		Format:     modelFormat,
		Version:    modelVersion,
		Radius:     m.params.Radius,
		Neighbors:  m.params.Neighbors,
		GridX:      m.params.GridX,
		GridY:      m.params.GridY,
		Labels:     m.labels,
		Histograms: make([]string, len(m.hists)),
	}
	buf := make([]byte, 4*m.params.histogramLen())
	for i, h := range m.hists {
		for j, v := range h {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		doc.Histograms[i] = base64.StdEncoding.EncodeToString(buf)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding lbph model: %w", err)
	}
	return enc.Close()
}

// Decode reads a model written by Encode. The index threshold comes from the
// backend, not the file.
func (b *Backend) Decode(r io.Reader) (vision.Recognizer, error) {
	return b.DecodeModel(r)
}

// DecodeModel is Decode returning the concrete model.
func (b *Backend) DecodeModel(r io.Reader) (*Model, error) {
	var doc modelFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding lbph model: %w", err)
	}
	if doc.Format != modelFormat {
		return nil, fmt.Errorf("unexpected model format %q", doc.Format)
	}
	if doc.Version != modelVersion {
		return nil, fmt.Errorf("unsupported lbph model version %d", doc.Version)
	}

	params := Params{
		Radius:          doc.Radius,
		Neighbors:       doc.Neighbors,
		GridX:           doc.GridX,
		GridY:           doc.GridY,
		IndexMinSamples: b.Params.IndexMinSamples,
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(doc.Labels) != len(doc.Histograms) {
		return nil, fmt.Errorf("lbph model has %d labels but %d histograms", len(doc.Labels), len(doc.Histograms))
	}

	m := &Model{
		params: params,
		labels: doc.Labels,
		hists:  make([][]float32, len(doc.Histograms)),
	}
	size := params.histogramLen()
	for i, enc := range doc.Histograms {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("histogram %d: %w", i, err)
		}
		if len(raw) != 4*size {
			return nil, fmt.Errorf("histogram %d has %d bytes, expected %d", i, len(raw), 4*size)
		}
		h := make([]float32, size)
		for j := range h {
			h[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:]))
		}
		m.hists[i] = h
	}
	m.buildIndex()
	return m, nil
}
