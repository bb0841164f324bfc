// Package apperr defines the error kinds shared by the attendance pipeline.
// Callers wrap them with fmt.Errorf("...: %w", apperr.ErrX) and test with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation is bad user input (id not numeric, empty name).
	ErrValidation = errors.New("validation error")
	// ErrDevice is a frame source that is unavailable or fails to open.
	ErrDevice = errors.New("camera unavailable")
	// ErrModelMissing means recognition was started before any training.
	ErrModelMissing = errors.New("no trained model, train the model first")
	// ErrNoData means the face storage root does not exist.
	ErrNoData = errors.New("face storage not found")
	// ErrEmptyDataset means there is nothing to train on.
	ErrEmptyDataset = errors.New("no valid face samples")
	// ErrStorage is a durable read or write failure.
	ErrStorage = errors.New("storage error")
	// ErrTransientFrame is a single dropped frame. It is never surfaced.
	ErrTransientFrame = errors.New("frame not delivered")
	// ErrBusy means the camera or the trainer is already in use.
	ErrBusy = errors.New("already running")
)

// HTTPStatus maps an error to the status code the web adapter responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrModelMissing), errors.Is(err, ErrNoData), errors.Is(err, ErrEmptyDataset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDevice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
