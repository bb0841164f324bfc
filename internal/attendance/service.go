// Package attendance wires the registry, ledger and sessions together and exposes the
// command surface used by the presentation layers (CLI and HTTP).
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/facestore"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/modelstore"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/training"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// rolloverCron fires at local midnight.
const rolloverCron = "0 0 * * *"

// Options configures a Service.
type Options struct {
	FacesDir    string
	ModelPath   string
	LedgerPath  string
	Enrollment  enrollment.Config
	Recognition recognition.Config
	SampleSize  int

	Camera   vision.Camera
	Detector vision.Detector
	Backend  vision.Backend

	// Clock overrides time.Now for the ledger.
	Clock func() time.Time
}

// Service owns every collaborator of the pipeline. Enrollment and recognition share
// the camera and never run at the same time.
type Service struct {
	events   *events.Channel
	store    *facestore.Store
	models   *modelstore.Store
	registry *identity.Registry
	ledger   *ledger.Ledger

	enrollment  *enrollment.Session
	recognition *recognition.Session
	training    *training.Job

	camera    sync.Mutex // serializes the camera session checks
	scheduler *gocron.Scheduler
}

// New builds the service, loads the registry and seeds today's attendance set.
func New(opts Options) (*Service, error) {
	var ledgerOpts []ledger.Option
	if opts.Clock != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(opts.Clock))
	}

	s := &Service{
		events: events.NewChannel(),
		store:  facestore.New(opts.FacesDir),
		ledger: ledger.New(opts.LedgerPath, ledgerOpts...),
	}
	s.models = modelstore.New(opts.ModelPath, opts.Backend)
	s.registry = identity.NewRegistry(s.store)

	s.enrollment = enrollment.New(opts.Enrollment, enrollment.Deps{
		Camera:   opts.Camera,
		Detector: opts.Detector,
		Store:    s.store,
		Registry: s.registry,
		Events:   s.events,
	})
	s.recognition = recognition.New(opts.Recognition, recognition.Deps{
		Camera:   opts.Camera,
		Detector: opts.Detector,
		Models:   s.models,
		Registry: s.registry,
		Ledger:   s.ledger,
		Events:   s.events,
	})
	s.training = training.New(training.Deps{
		Store:      s.store,
		Backend:    opts.Backend,
		Models:     s.models,
		Registry:   s.registry,
		Events:     s.events,
		SampleSize: opts.SampleSize,
	})

	if err := s.registry.Rebuild(); err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	if err := s.ledger.SeedToday(); err != nil {
		return nil, fmt.Errorf("seeding attendance: %w", err)
	}
	return s, nil
}

// Events returns the channel sessions publish on.
func (s *Service) Events() *events.Channel { return s.events }

// Drain returns all pending events in FIFO order.
func (s *Service) Drain() []events.Event { return s.events.Drain() }

// StartEnrollment begins capturing samples for a person.
func (s *Service) StartEnrollment(ctx context.Context, id int, name string) (string, error) {
	s.camera.Lock()
	defer s.camera.Unlock()
	if s.recognition.Running() {
		return "", fmt.Errorf("camera in use by recognition: %w", apperr.ErrBusy)
	}
	for _, other := range s.registry.FindByName(name) {
		if other != id {
			slog.Warn("name already enrolled under another id", "name", name, "id", id, "existing_id", other)
		}
	}
	return s.enrollment.Start(ctx, id, name)
}

// CancelEnrollment stops a running enrollment and waits for the camera to be freed.
func (s *Service) CancelEnrollment() {
	s.enrollment.Cancel()
}

// WaitEnrollment blocks until the current enrollment loop, if any, has exited.
func (s *Service) WaitEnrollment() { s.enrollment.Wait() }

// StartRecognition begins the identify-and-record loop.
func (s *Service) StartRecognition(ctx context.Context) (string, error) {
	s.camera.Lock()
	defer s.camera.Unlock()
	if s.enrollment.Running() {
		return "", fmt.Errorf("camera in use by enrollment: %w", apperr.ErrBusy)
	}
	return s.recognition.Start(ctx)
}

// StopRecognition stops the loop and waits for the camera to be freed.
func (s *Service) StopRecognition() {
	s.recognition.Stop()
}

// WaitRecognition blocks until the current recognition loop, if any, has exited.
func (s *Service) WaitRecognition() { s.recognition.Wait() }

// Train starts a background training run.
func (s *Service) Train() (string, error) {
	return s.training.Start()
}

// TrainSync trains in the caller's goroutine.
func (s *Service) TrainSync(ctx context.Context, progress training.ProgressFunc) (*training.Result, error) {
	return s.training.Run(ctx, progress)
}

// ClearToday deletes today's attendance records.
func (s *Service) ClearToday() (int, error) {
	n, err := s.ledger.ClearToday()
	if err != nil {
		return 0, err
	}
	slog.Info("cleared today's attendance", "date", s.ledger.Today(), "removed", n)
	return n, nil
}

// RegistryCount returns the number of enrolled people.
func (s *Service) RegistryCount() int { return s.registry.Count() }

// People lists enrolled people.
func (s *Service) People() []identity.Person { return s.registry.People() }

// TotalSampleCount totals stored face samples.
func (s *Service) TotalSampleCount() (int, error) { return s.store.CountSamples() }

// TodaysRecords returns today's records in file order.
func (s *Service) TodaysRecords() ([]ledger.Record, error) { return s.ledger.TodaysRecords() }

// Ledger exposes the attendance ledger for read-only queries.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// RecentFirst reverses records and keeps at most limit of them (limit <= 0 keeps all).
func RecentFirst(records []ledger.Record, limit int) []ledger.Record {
	out := slices.Clone(records)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TrainingStatus describes the trainer.
type TrainingStatus struct {
	Running    bool             `json:"running"`
	ModelReady bool             `json:"model_ready"`
	Last       *training.Result `json:"last,omitempty"`
}

// Status is a snapshot of the whole pipeline.
type Status struct {
	People      int                `json:"people"`
	Samples     int                `json:"samples"`
	Today       int                `json:"today"`
	Enrollment  enrollment.Status  `json:"enrollment"`
	Recognition recognition.Status `json:"recognition"`
	Training    TrainingStatus     `json:"training"`
}

// Status collects counters and session states.
func (s *Service) Status() (Status, error) {
	samples, err := s.store.CountSamples()
	if err != nil {
		return Status{}, err
	}
	today, err := s.ledger.TodaysRecords()
	if err != nil {
		return Status{}, err
	}
	return Status{
		People:      s.registry.Count(),
		Samples:     samples,
		Today:       len(today),
		Enrollment:  s.enrollment.Status(),
		Recognition: s.recognition.Status(),
		Training: TrainingStatus{
			Running:    s.training.Running(),
			ModelReady: s.models.Exists(),
			Last:       s.training.Last(),
		},
	}, nil
}

// Rollover reseeds today's attendance set if the date has changed.
func (s *Service) Rollover() {
	rolled, err := s.ledger.Rollover()
	if err != nil {
		slog.Error("attendance rollover failed", "error", err)
		return
	}
	if rolled {
		slog.Info("attendance rolled over to a new day", "date", s.ledger.Today())
	}
}

// StartScheduler runs Rollover every local midnight until Close.
func (s *Service) StartScheduler() error {
	scheduler := gocron.NewScheduler(time.Local)
	scheduler.SingletonModeAll()
	if _, err := scheduler.Cron(rolloverCron).Do(s.Rollover); err != nil {
		return fmt.Errorf("scheduling midnight rollover: %w", err)
	}
	scheduler.StartAsync()
	s.scheduler = scheduler
	return nil
}

// Close stops the camera sessions, waits for training and stops the scheduler.
func (s *Service) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.enrollment.Cancel()
	s.recognition.Stop()
	s.training.Wait()
}
