package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", fmt.Errorf("name: %w", ErrValidation), http.StatusBadRequest},
		{"busy", fmt.Errorf("enrollment: %w", ErrBusy), http.StatusConflict},
		{"model missing", ErrModelMissing, http.StatusUnprocessableEntity},
		{"no data", ErrNoData, http.StatusUnprocessableEntity},
		{"empty dataset", ErrEmptyDataset, http.StatusUnprocessableEntity},
		{"device", fmt.Errorf("open camera 0: %w", ErrDevice), http.StatusServiceUnavailable},
		{"storage", fmt.Errorf("write ledger: %w", ErrStorage), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}
