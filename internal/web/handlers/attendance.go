package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

// Pipeline is the command surface the handlers drive.
type Pipeline interface {
	StartEnrollment(ctx context.Context, id int, name string) (string, error)
	CancelEnrollment()
	StartRecognition(ctx context.Context) (string, error)
	StopRecognition()
	Train() (string, error)
	ClearToday() (int, error)
	TodaysRecords() ([]ledger.Record, error)
	People() []identity.Person
	Status() (attendance.Status, error)
	Drain() []events.Event
}

// AttendanceHandler serves the attendance pipeline over HTTP.
type AttendanceHandler struct {
	pipeline     Pipeline
	pollInterval time.Duration
}

// NewAttendanceHandler creates a handler. pollInterval paces the event stream.
func NewAttendanceHandler(p Pipeline, pollInterval time.Duration) *AttendanceHandler {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}
	return &AttendanceHandler{pipeline: p, pollInterval: pollInterval}
}

// EnrollRequest is the body of POST /enrollment.
type EnrollRequest struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SessionResponse acknowledges a started background session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// StartEnrollment handles POST /api/v1/enrollment.
func (h *AttendanceHandler) StartEnrollment(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	// The capture loop outlives the request.
	id, err := h.pipeline.StartEnrollment(context.WithoutCancel(r.Context()), req.ID, req.Name)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, SessionResponse{SessionID: id})
}

// CancelEnrollment handles DELETE /api/v1/enrollment.
func (h *AttendanceHandler) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	h.pipeline.CancelEnrollment()
	w.WriteHeader(http.StatusNoContent)
}

// StartRecognition handles POST /api/v1/recognition.
func (h *AttendanceHandler) StartRecognition(w http.ResponseWriter, r *http.Request) {
	id, err := h.pipeline.StartRecognition(context.WithoutCancel(r.Context()))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, SessionResponse{SessionID: id})
}

// StopRecognition handles DELETE /api/v1/recognition.
func (h *AttendanceHandler) StopRecognition(w http.ResponseWriter, r *http.Request) {
	h.pipeline.StopRecognition()
	w.WriteHeader(http.StatusNoContent)
}

// Train handles POST /api/v1/training.
func (h *AttendanceHandler) Train(w http.ResponseWriter, r *http.Request) {
	id, err := h.pipeline.Train()
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, SessionResponse{SessionID: id})
}

// TodayResponse lists today's records, most recent first.
type TodayResponse struct {
	Total   int             `json:"total"`
	Records []ledger.Record `json:"records"`
}

// Today handles GET /api/v1/attendance/today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	records, err := h.pipeline.TodaysRecords()
	if err != nil {
		respondAppError(w, err)
		return
	}
	recent := attendance.RecentFirst(records, constants.TodayViewLimit)
	if recent == nil {
		recent = []ledger.Record{}
	}
	respondJSON(w, http.StatusOK, TodayResponse{Total: len(records), Records: recent})
}

// ClearToday handles DELETE /api/v1/attendance/today.
func (h *AttendanceHandler) ClearToday(w http.ResponseWriter, r *http.Request) {
	n, err := h.pipeline.ClearToday()
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// Stats handles GET /api/v1/stats.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.pipeline.Status()
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// People handles GET /api/v1/people.
func (h *AttendanceHandler) People(w http.ResponseWriter, r *http.Request) {
	people := h.pipeline.People()
	if people == nil {
		people = []identity.Person{}
	}
	respondJSON(w, http.StatusOK, people)
}
