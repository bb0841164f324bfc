package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		method      string
		allowOrigin string
		statusCode  int
		reachedNext bool
	}{
		{"localhost any port", "http://localhost:5173", http.MethodGet, "http://localhost:5173", http.StatusTeapot, true},
		{"whitelisted", "https://kiosk.local", http.MethodGet, "https://kiosk.local", http.StatusTeapot, true},
		{"foreign origin", "https://evil.example", http.MethodGet, "", http.StatusTeapot, true},
		{"localhost lookalike", "http://localhost.evil.example", http.MethodGet, "", http.StatusTeapot, true},
		{"no origin", "", http.MethodGet, "", http.StatusTeapot, true},
		{"preflight", "https://kiosk.local", http.MethodOptions, "https://kiosk.local", http.StatusOK, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusTeapot)
			})
			handler := CORS([]string{"https://kiosk.local"})(next)

			req := httptest.NewRequest(tc.method, "/api/v1/stats", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != tc.allowOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tc.allowOrigin)
			}
			if recorder.Code != tc.statusCode {
				t.Errorf("status = %d, want %d", recorder.Code, tc.statusCode)
			}
			if reached != tc.reachedNext {
				t.Errorf("next reached = %v, want %v", reached, tc.reachedNext)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if recorder.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}
