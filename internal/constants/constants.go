// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Enrollment constants
const (
	// DefaultEnrollQuota is the number of face samples captured per person
	DefaultEnrollQuota = 20

	// DefaultEnrollInterval is the minimum gap between two accepted samples
	DefaultEnrollInterval = 300 * time.Millisecond

	// SampleSize is the width and height of every stored face sample
	SampleSize = 200
)

// Recognition constants
const (
	// DefaultDistanceThreshold is the recognizer distance below which a face is identified.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 80.0

	// UnknownName is returned for ids that have no enrollment bucket
	UnknownName = "Unknown"
)

// LBPH recognizer parameters. These are fixed, not user configurable.
const (
	LBPHRadius    = 1
	LBPHNeighbors = 8
	LBPHGridX     = 8
	LBPHGridY     = 8
	LBPHThreshold = 80.0

	// LBPHIndexMinSamples is the model size from which prediction goes through the
	// HNSW index instead of a linear scan
	LBPHIndexMinSamples = 512
)

// Loop pacing constants
const (
	// DefaultFrameDelay is the pause between two processed frames
	DefaultFrameDelay = 30 * time.Millisecond

	// DefaultPollInterval is how often the presentation drains the event channel
	DefaultPollInterval = 100 * time.Millisecond
)
