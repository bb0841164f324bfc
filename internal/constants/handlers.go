// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the initial capacity of the event queue
	EventChannelBuffer = 100
)

// Presentation constants
const (
	// TodayViewLimit is the number of records shown in the today view (most recent first)
	TodayViewLimit = 20
)

// Image file extensions accepted as face samples
var SampleExtensions = []string{".jpg", ".jpeg", ".png"}
