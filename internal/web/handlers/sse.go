package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/events"
)

// Events handles GET /api/v1/events. It drains every pending event in FIFO order.
// The channel has a single consumer: events returned here are not seen by a stream.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	evs := h.pipeline.Drain()
	if evs == nil {
		evs = []events.Event{}
	}
	respondJSON(w, http.StatusOK, evs)
}

// StreamEvents handles GET /api/v1/events/stream. It drains the channel every poll
// interval and forwards each event as an SSE message named after its type.
func (h *AttendanceHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			for _, ev := range h.pipeline.Drain() {
				sendSSEEvent(w, flusher, string(ev.Type), ev)
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
