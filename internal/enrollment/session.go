// Package enrollment captures face samples of one person from the camera into that
// person's storage bucket.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/facestore"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// State of an enrollment session.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Config tunes the capture loop.
type Config struct {
	Quota      int
	Interval   time.Duration
	SampleSize int
	FrameDelay time.Duration
}

// DefaultConfig returns the stock capture settings.
func DefaultConfig() Config {
	return Config{
		Quota:      constants.DefaultEnrollQuota,
		Interval:   constants.DefaultEnrollInterval,
		SampleSize: constants.SampleSize,
		FrameDelay: constants.DefaultFrameDelay,
	}
}

// Request is a validated start command.
type Request struct {
	PersonID int    `validate:"gt=0"`
	Name     string `validate:"required,max=100"`
}

// Deps are the collaborators of a session.
type Deps struct {
	Camera   vision.Camera
	Detector vision.Detector
	Store    *facestore.Store
	Registry *identity.Registry
	Events   events.Publisher
	Now      func() time.Time
}

// Status is a snapshot of the session.
type Status struct {
	State     State  `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	PersonID  int    `json:"person_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Count     int    `json:"count"`
	Quota     int    `json:"quota"`
}

// Session runs at most one capture loop at a time.
type Session struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle session.
func New(cfg Config, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		status:   Status{State: StateIdle, Quota: cfg.Quota},
	}
}

// Start validates the request, opens the camera, creates the bucket and starts the
// capture loop in the background. It returns the new session id.
func (s *Session) Start(ctx context.Context, personID int, name string) (string, error) {
	normalized, err := identity.NormalizeName(name)
	if err != nil {
		return "", fmt.Errorf("name: %w: %w", err, apperr.ErrValidation)
	}
	req := Request{PersonID: personID, Name: normalized}
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%s: %w", describe(err), apperr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State == StateCapturing {
		return "", fmt.Errorf("enrollment of %s: %w", s.status.Name, apperr.ErrBusy)
	}

	src, err := s.deps.Camera.Open(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrDevice) {
			err = fmt.Errorf("%w: %w", err, apperr.ErrDevice)
		}
		return "", err
	}
	bucket, err := s.deps.Store.CreateBucket(req.PersonID, req.Name)
	if err != nil {
		src.Close()
		return "", err
	}
	next, err := bucket.NextIndex()
	if err != nil {
		src.Close()
		return "", err
	}

	id := uuid.NewString()
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.status = Status{
		State:     StateCapturing,
		SessionID: id,
		PersonID:  req.PersonID,
		Name:      req.Name,
		Quota:     s.cfg.Quota,
	}

	emit := events.Emitter{Source: events.SourceEnrollment, SessionID: id}
	logger := slog.With("session", id, "person_id", req.PersonID, "name", req.Name)
	logger.Info("enrollment started", "bucket", bucket.Dir, "first_index", next, "quota", s.cfg.Quota)

	go s.run(loopCtx, src, bucket, next, emit, logger, done)
	return id, nil
}

// Cancel stops the capture loop and waits for it to release the camera.
// It is a no-op when nothing is running.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current loop, if any, has exited.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether a capture loop is active.
func (s *Session) Running() bool {
	return s.Status().State == StateCapturing
}

func (s *Session) run(ctx context.Context, src vision.FrameSource, bucket facestore.Bucket, next int,
	emit events.Emitter, logger *slog.Logger, done chan struct{}) {
	defer close(done)

	count, state, err := s.capture(ctx, src, bucket, next, emit)
	if cerr := src.Close(); cerr != nil {
		logger.Warn("closing frame source", "error", cerr)
	}

	switch state {
	case StateCompleted:
		s.deps.Events.Publish(emit.Completed(fmt.Sprintf("Captured %d samples of %s (id %d)", count, bucket.Name, bucket.ID)))
		logger.Info("enrollment completed", "samples", count)
	case StateFailed:
		s.deps.Events.Publish(emit.Error(fmt.Sprintf("Enrollment failed: %v", err)))
		logger.Error("enrollment failed", "samples", count, "error", err)
	case StateCancelled:
		if count == 0 {
			s.deps.Events.Publish(emit.Warning(fmt.Sprintf("No samples captured for %s", bucket.Name)))
		}
		logger.Info("enrollment cancelled", "samples", count)
	}

	if count > 0 {
		if err := s.deps.Registry.Rebuild(); err != nil {
			logger.Warn("rebuilding registry", "error", err)
		}
	}

	s.mu.Lock()
	s.status.State = state
	s.status.Count = count
	s.cancel = nil
	s.mu.Unlock()
}

// capture runs the loop until the quota is reached, ctx is cancelled or something
// fails. Cancellation is only observed between frames.
func (s *Session) capture(ctx context.Context, src vision.FrameSource, bucket facestore.Bucket, next int,
	emit events.Emitter) (int, State, error) {
	count := 0
	var last time.Time

	for count < s.cfg.Quota {
		if ctx.Err() != nil {
			return count, StateCancelled, nil
		}

		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return count, StateCancelled, nil
			}
			if errors.Is(err, apperr.ErrTransientFrame) {
				vision.Pace(ctx, s.cfg.FrameDelay)
				continue
			}
			return count, StateFailed, fmt.Errorf("reading frame: %w", err)
		}

		gray := vision.ToGray(frame)
		regions, err := s.deps.Detector.Detect(gray)
		if err != nil {
			return count, StateFailed, fmt.Errorf("detecting faces: %w", err)
		}

		for _, r := range regions {
			if count >= s.cfg.Quota {
				break
			}
			now := s.deps.Now()
			if !last.IsZero() && now.Sub(last) < s.cfg.Interval {
				continue
			}
			crop := vision.Crop(gray, r)
			if crop == nil {
				continue
			}
			sample := vision.Resize(crop, s.cfg.SampleSize, s.cfg.SampleSize)
			if _, err := bucket.WriteSample(next, sample); err != nil {
				return count, StateFailed, err
			}
			next++
			count++
			last = now

			s.mu.Lock()
			s.status.Count = count
			s.mu.Unlock()
			s.deps.Events.Publish(emit.Progress(count, s.cfg.Quota))
		}

		if count < s.cfg.Quota {
			vision.Pace(ctx, s.cfg.FrameDelay)
		}
	}
	return count, StateCompleted, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "PersonID":
		return "person id must be a positive integer"
	case "Name":
		if fe.Tag() == "max" {
			return "name is too long"
		}
		return "name is required"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
