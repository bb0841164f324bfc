// Package events carries typed notifications from background sessions to the
// presentation layer.
package events

import "time"

// Type discriminates the event variants.
type Type string

// Event types emitted by the enrollment, training and recognition sessions.
const (
	TypeProgress           Type = "progress"
	TypeCompleted          Type = "completed"
	TypeWarning            Type = "warning"
	TypeError              Type = "error"
	TypeAttendanceDetected Type = "attendance_detected"
	TypeTrainingSucceeded  Type = "training_succeeded"
	TypeTrainingFailed     Type = "training_failed"
)

// Source names the session kind that produced an event.
type Source string

// Event sources.
const (
	SourceEnrollment  Source = "enrollment"
	SourceRecognition Source = "recognition"
	SourceTraining    Source = "training"
)

// Event is an immutable value published on a Channel. Only the fields relevant to
// its Type are set.
type Event struct {
	Type      Type      `json:"type"`
	Source    Source    `json:"source"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`

	Progress   *Progress        `json:"progress,omitempty"`
	Attendance *Attendance      `json:"attendance,omitempty"`
	Training   *TrainingSummary `json:"training,omitempty"`
}

// Progress reports enrollment sample count against the quota.
type Progress struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// Attendance is a first sighting of a person on the current date.
type Attendance struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	ConfidencePct float64 `json:"confidence_pct"`
	Date          string  `json:"date,omitempty"`
	Time          string  `json:"time,omitempty"`
}

// TrainingSummary describes a successful training run.
type TrainingSummary struct {
	Samples   int            `json:"samples"`
	Persons   int            `json:"persons"`
	PerPerson map[string]int `json:"per_person,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Emitter builds events stamped with a source and session id.
type Emitter struct {
	Source    Source
	SessionID string
	Now       func() time.Time
}

func (e Emitter) base(t Type, msg string) Event {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Event{Type: t, Source: e.Source, SessionID: e.SessionID, Message: msg, At: now()}
}

// Progress builds a Progress event.
func (e Emitter) Progress(count, total int) Event {
	ev := e.base(TypeProgress, "")
	ev.Progress = &Progress{Count: count, Total: total}
	return ev
}

// Completed builds a Completed event.
func (e Emitter) Completed(msg string) Event { return e.base(TypeCompleted, msg) }

// Warning builds a Warning event.
func (e Emitter) Warning(msg string) Event { return e.base(TypeWarning, msg) }

// Error builds an Error event.
func (e Emitter) Error(msg string) Event { return e.base(TypeError, msg) }

// AttendanceDetected builds an AttendanceDetected event.
func (e Emitter) AttendanceDetected(a Attendance) Event {
	ev := e.base(TypeAttendanceDetected, "")
	ev.Attendance = &a
	return ev
}

// TrainingSucceeded builds a TrainingSucceeded event.
func (e Emitter) TrainingSucceeded(msg string, s TrainingSummary) Event {
	ev := e.base(TypeTrainingSucceeded, msg)
	ev.Training = &s
	return ev
}

// TrainingFailed builds a TrainingFailed event.
func (e Emitter) TrainingFailed(msg string) Event { return e.base(TypeTrainingFailed, msg) }
