// Package recognition runs the live identify-and-record loop: every detected face is
// matched against the trained model and the first confident sighting of a person on
// a given day is written to the attendance ledger.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/modelstore"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// State of a recognition session.
type State string

const (
	StateIdle        State = "idle"
	StateRecognizing State = "recognizing"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

// Config tunes the loop.
type Config struct {
	// Threshold is the exclusive upper bound on distance for a positive match.
	Threshold  float64
	SampleSize int
	FrameDelay time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Threshold:  constants.DefaultDistanceThreshold,
		SampleSize: constants.SampleSize,
		FrameDelay: constants.DefaultFrameDelay,
	}
}

// Deps are the collaborators of a session.
type Deps struct {
	Camera   vision.Camera
	Detector vision.Detector
	Models   *modelstore.Store
	Registry *identity.Registry
	Ledger   *ledger.Ledger
	Events   events.Publisher
}

// Stats counts what the loop has seen so far.
type Stats struct {
	Frames     int `json:"frames"`
	Faces      int `json:"faces"`
	Identified int `json:"identified"`
	Unknown    int `json:"unknown"`
	Recorded   int `json:"recorded"`
}

// Status is a snapshot of the session.
type Status struct {
	State     State  `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Stats
}

// Identified reports whether a prediction counts as a match. The comparison is strict:
// a distance equal to the threshold is unknown.
func Identified(p vision.Prediction, threshold float64) bool {
	return p.Distance < threshold
}

// Confidence converts a distance into the stored percentage. It is not clamped.
func Confidence(distance float64) float64 {
	return 100 - distance
}

// Session runs at most one recognition loop at a time.
type Session struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle session.
func New(cfg Config, deps Deps) *Session {
	return &Session{cfg: cfg, deps: deps, status: Status{State: StateIdle}}
}

// Start loads the model, seeds today's dedup set, opens the camera and starts the
// loop in the background.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State == StateRecognizing {
		return "", fmt.Errorf("recognition: %w", apperr.ErrBusy)
	}

	rec, err := s.deps.Models.Load()
	if err != nil {
		return "", err
	}
	if err := s.deps.Ledger.SeedToday(); err != nil {
		return "", err
	}
	src, err := s.deps.Camera.Open(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrDevice) {
			err = fmt.Errorf("%w: %w", err, apperr.ErrDevice)
		}
		return "", err
	}

	id := uuid.NewString()
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.status = Status{State: StateRecognizing, SessionID: id}

	emit := events.Emitter{Source: events.SourceRecognition, SessionID: id}
	logger := slog.With("session", id)
	logger.Info("recognition started", "threshold", s.cfg.Threshold, "people", s.deps.Registry.Count())

	go s.run(loopCtx, src, rec, emit, logger, done)
	return id, nil
}

// Stop ends the loop after the in-flight frame and waits for the camera to be
// released. It is a no-op when nothing is running.
func (s *Session) Stop() {
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

// Running reports whether the loop is active.
func (s *Session) Running() bool {
	return s.Status().State == StateRecognizing
}

func (s *Session) run(ctx context.Context, src vision.FrameSource, rec vision.Recognizer,
	emit events.Emitter, logger *slog.Logger, done chan struct{}) {
	defer close(done)

	err := s.loop(ctx, src, rec, emit, logger)
	if cerr := src.Close(); cerr != nil {
		logger.Warn("closing frame source", "error", cerr)
	}

	state := StateStopped
	if err != nil {
		state = StateFailed
		logger.Error("recognition failed", "error", err)
		s.deps.Events.Publish(emit.Error(fmt.Sprintf("Recognition failed: %v", err)))
	}

	s.mu.Lock()
	s.status.State = state
	s.cancel = nil
	stats := s.status.Stats
	s.mu.Unlock()
	logger.Info("recognition ended", "state", state, "frames", stats.Frames, "recorded", stats.Recorded)
}

// loop processes frames in capture order until ctx is cancelled or an unexpected
// error occurs. Cancellation is only observed between frames.
func (s *Session) loop(ctx context.Context, src vision.FrameSource, rec vision.Recognizer,
	emit events.Emitter, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, apperr.ErrTransientFrame) {
				vision.Pace(ctx, s.cfg.FrameDelay)
				continue
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		gray := vision.ToGray(frame)
		regions, err := s.deps.Detector.Detect(gray)
		if err != nil {
			return fmt.Errorf("detecting faces: %w", err)
		}
		s.count(func(st *Stats) {
			st.Frames++
			st.Faces += len(regions)
		})

		for _, r := range regions {
			if err := s.handleRegion(gray, r, rec, emit, logger); err != nil {
				return err
			}
		}

		vision.Pace(ctx, s.cfg.FrameDelay)
	}
}

func (s *Session) handleRegion(gray *image.Gray, r image.Rectangle, rec vision.Recognizer,
	emit events.Emitter, logger *slog.Logger) error {
	crop := vision.Crop(gray, r)
	if crop == nil {
		return nil
	}
	pred, err := rec.Predict(vision.Normalize(s.deps.Models.Backend, crop, s.cfg.SampleSize))
	if err != nil {
		logger.Warn("prediction failed, treating face as unknown", "region", r, "error", err)
		s.count(func(st *Stats) { st.Unknown++ })
		return nil
	}
	if !Identified(pred, s.cfg.Threshold) {
		s.count(func(st *Stats) { st.Unknown++ })
		return nil
	}
	s.count(func(st *Stats) { st.Identified++ })

	present, err := s.deps.Ledger.Has(pred.Label)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	name := s.deps.Registry.Resolve(pred.Label)
	pct := Confidence(pred.Distance)
	if pct < 0 || pct > 100 {
		logger.Warn("confidence outside 0-100", "id", pred.Label, "distance", pred.Distance, "confidence", pct)
	}

	record, written, err := s.deps.Ledger.RecordIfAbsent(pred.Label, name, pct)
	if err != nil {
		return err
	}
	if !written {
		return nil
	}
	s.count(func(st *Stats) { st.Recorded++ })
	logger.Info("attendance recorded", "id", record.ID, "name", record.Name, "confidence", record.Confidence)
	s.deps.Events.Publish(emit.AttendanceDetected(events.Attendance{
		ID:            record.ID,
		Name:          record.Name,
		ConfidencePct: pct,
		Date:          record.Date,
		Time:          record.Time,
	}))
	return nil
}

func (s *Session) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.status.Stats)
	s.mu.Unlock()
}
