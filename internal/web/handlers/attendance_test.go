package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	mu        sync.Mutex
	enrollErr error
	enrolled  []EnrollRequest
	cancelled int
	records   []ledger.Record
	people    []identity.Person
	channel   *events.Channel
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{channel: events.NewChannel()}
}

func (p *fakePipeline) StartEnrollment(ctx context.Context, id int, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enrollErr != nil {
		return "", p.enrollErr
	}
	p.enrolled = append(p.enrolled, EnrollRequest{ID: id, Name: name})
	return "enroll-1", nil
}

func (p *fakePipeline) CancelEnrollment() {
	p.mu.Lock()
	p.cancelled++
	p.mu.Unlock()
}

func (p *fakePipeline) StartRecognition(ctx context.Context) (string, error) {
	return "", fmt.Errorf("no model: %w", apperr.ErrModelMissing)
}

func (p *fakePipeline) StopRecognition() {}

func (p *fakePipeline) Train() (string, error) {
	return "", fmt.Errorf("training: %w", apperr.ErrBusy)
}

func (p *fakePipeline) ClearToday() (int, error) {
	n := len(p.records)
	p.records = nil
	return n, nil
}

func (p *fakePipeline) TodaysRecords() ([]ledger.Record, error) { return p.records, nil }

func (p *fakePipeline) People() []identity.Person { return p.people }

func (p *fakePipeline) Status() (attendance.Status, error) {
	return attendance.Status{People: len(p.people), Samples: 60, Today: len(p.records)}, nil
}

func (p *fakePipeline) Drain() []events.Event { return p.channel.Drain() }

func TestStartEnrollment(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		enrollErr  error
		statusCode int
	}{
		{"accepted", `{"id":7,"name":"Ana"}`, nil, http.StatusAccepted},
		{"bad json", `{"id":`, nil, http.StatusBadRequest},
		{"validation", `{"id":0,"name":"Ana"}`, fmt.Errorf("person id: %w", apperr.ErrValidation), http.StatusBadRequest},
		{"camera busy", `{"id":7,"name":"Ana"}`, fmt.Errorf("camera: %w", apperr.ErrBusy), http.StatusConflict},
		{"no camera", `{"id":7,"name":"Ana"}`, fmt.Errorf("open: %w", apperr.ErrDevice), http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakePipeline()
			p.enrollErr = tc.enrollErr
			h := NewAttendanceHandler(p, time.Millisecond)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/enrollment", strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()
			h.StartEnrollment(recorder, req)

			if recorder.Code != tc.statusCode {
				t.Fatalf("expected status %d, got %d: %s", tc.statusCode, recorder.Code, recorder.Body.String())
			}
			if tc.statusCode == http.StatusAccepted {
				var resp SessionResponse
				if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp.SessionID != "enroll-1" {
					t.Errorf("unexpected session id %q", resp.SessionID)
				}
				if len(p.enrolled) != 1 || p.enrolled[0].ID != 7 || p.enrolled[0].Name != "Ana" {
					t.Errorf("unexpected enroll call %+v", p.enrolled)
				}
			}
		})
	}
}

func TestCancelEnrollment(t *testing.T) {
	p := newFakePipeline()
	h := NewAttendanceHandler(p, time.Millisecond)

	recorder := httptest.NewRecorder()
	h.CancelEnrollment(recorder, httptest.NewRequest(http.MethodDelete, "/api/v1/enrollment", nil))

	if recorder.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", recorder.Code)
	}
	if p.cancelled != 1 {
		t.Errorf("expected one cancel, got %d", p.cancelled)
	}
}

func TestStartRecognition_ModelMissing(t *testing.T) {
	h := NewAttendanceHandler(newFakePipeline(), time.Millisecond)
	recorder := httptest.NewRecorder()
	h.StartRecognition(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/recognition", nil))

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", recorder.Code)
	}
}

func TestTrain_Busy(t *testing.T) {
	h := NewAttendanceHandler(newFakePipeline(), time.Millisecond)
	recorder := httptest.NewRecorder()
	h.Train(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/training", nil))

	if recorder.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", recorder.Code)
	}
}

func TestToday_MostRecentFirst(t *testing.T) {
	p := newFakePipeline()
	for i := 1; i <= 25; i++ {
		p.records = append(p.records, ledger.Record{ID: i, Name: fmt.Sprintf("P%d", i), Date: "2024-03-04"})
	}
	h := NewAttendanceHandler(p, time.Millisecond)

	recorder := httptest.NewRecorder()
	h.Today(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/today", nil))

	var resp TodayResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 25 {
		t.Errorf("expected total 25, got %d", resp.Total)
	}
	if len(resp.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(resp.Records))
	}
	if resp.Records[0].ID != 25 || resp.Records[19].ID != 6 {
		t.Errorf("expected most recent first, got first=%d last=%d", resp.Records[0].ID, resp.Records[19].ID)
	}
}

func TestToday_Empty(t *testing.T) {
	h := NewAttendanceHandler(newFakePipeline(), time.Millisecond)
	recorder := httptest.NewRecorder()
	h.Today(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/today", nil))

	if !strings.Contains(recorder.Body.String(), `"records":[]`) {
		t.Errorf("expected empty records array, got %s", recorder.Body.String())
	}
}

func TestClearToday(t *testing.T) {
	p := newFakePipeline()
	p.records = []ledger.Record{{ID: 1}, {ID: 2}}
	h := NewAttendanceHandler(p, time.Millisecond)

	recorder := httptest.NewRecorder()
	h.ClearToday(recorder, httptest.NewRequest(http.MethodDelete, "/api/v1/attendance/today", nil))

	var resp map[string]int
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["removed"] != 2 {
		t.Errorf("expected 2 removed, got %v", resp)
	}
}

func TestStatsAndPeople(t *testing.T) {
	p := newFakePipeline()
	p.people = []identity.Person{{ID: 7, Name: "Ana"}}
	h := NewAttendanceHandler(p, time.Millisecond)

	recorder := httptest.NewRecorder()
	h.Stats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var st attendance.Status
	if err := json.Unmarshal(recorder.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.People != 1 || st.Samples != 60 {
		t.Errorf("unexpected stats %+v", st)
	}

	recorder = httptest.NewRecorder()
	h.People(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/people", nil))
	var people []identity.Person
	if err := json.Unmarshal(recorder.Body.Bytes(), &people); err != nil {
		t.Fatal(err)
	}
	if len(people) != 1 || people[0].Name != "Ana" {
		t.Errorf("unexpected people %+v", people)
	}
}

func TestEvents_DrainsInOrder(t *testing.T) {
	p := newFakePipeline()
	emit := events.Emitter{Source: events.SourceEnrollment, SessionID: "s1"}
	p.channel.Publish(emit.Progress(1, 3))
	p.channel.Publish(emit.Progress(2, 3))
	h := NewAttendanceHandler(p, time.Millisecond)

	recorder := httptest.NewRecorder()
	h.Events(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	var evs []events.Event
	if err := json.Unmarshal(recorder.Body.Bytes(), &evs); err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Progress.Count != 1 || evs[1].Progress.Count != 2 {
		t.Errorf("unexpected events %+v", evs)
	}

	recorder = httptest.NewRecorder()
	h.Events(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if strings.TrimSpace(recorder.Body.String()) != "[]" {
		t.Errorf("expected empty array after drain, got %s", recorder.Body.String())
	}
}

func TestStreamEvents(t *testing.T) {
	p := newFakePipeline()
	h := NewAttendanceHandler(p, 5*time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(h.StreamEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	emit := events.Emitter{Source: events.SourceRecognition, SessionID: "r1"}
	p.channel.Publish(emit.AttendanceDetected(events.Attendance{ID: 7, Name: "Ana", ConfidencePct: 60}))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "event: attendance_detected\n" {
		t.Errorf("unexpected event line %q", line)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(data, "data: ") || !strings.Contains(data, `"name":"Ana"`) {
		t.Errorf("unexpected data line %q", data)
	}
}
