// Package training fits the recognizer over every stored face sample and replaces the
// persisted model.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/facestore"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/modelstore"
	"github.com/kozaktomas/face-attendance/internal/vision"
)

// Deps are the collaborators of a Job.
type Deps struct {
	Store      *facestore.Store
	Backend    vision.Backend
	Models     *modelstore.Store
	Registry   *identity.Registry
	Events     events.Publisher
	SampleSize int
}

// ProgressFunc is told how many sample files have been processed so far.
type ProgressFunc func(loaded, total int)

// Job trains the model. At most one training runs at a time.
type Job struct {
	deps Deps

	running atomic.Bool
	mu      sync.Mutex
	done    chan struct{}
	last    *Result
}

// Result describes a finished training run.
type Result struct {
	SessionID string         `json:"session_id"`
	Samples   int            `json:"samples"`
	Persons   int            `json:"persons"`
	PerPerson map[string]int `json:"per_person"`
	Skipped   []string       `json:"skipped,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// New returns an idle job.
func New(deps Deps) *Job {
	return &Job{deps: deps}
}

// Start launches training in the background and returns its session id. A second
// call while one is in flight fails with ErrBusy.
func (j *Job) Start() (string, error) {
	if !j.running.CompareAndSwap(false, true) {
		return "", fmt.Errorf("training: %w", apperr.ErrBusy)
	}
	id := uuid.NewString()
	done := make(chan struct{})
	j.mu.Lock()
	j.done = done
	j.mu.Unlock()

	go func() {
		defer close(done)
		defer j.running.Store(false)
		_, _ = j.execute(context.Background(), id, nil)
	}()
	return id, nil
}

// Run trains synchronously, reporting per-file progress when progress is non-nil.
func (j *Job) Run(ctx context.Context, progress ProgressFunc) (*Result, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("training: %w", apperr.ErrBusy)
	}
	defer j.running.Store(false)
	return j.execute(ctx, uuid.NewString(), progress)
}

// Running reports whether a training is in flight.
func (j *Job) Running() bool { return j.running.Load() }

// Wait blocks until the background training started last has finished.
func (j *Job) Wait() {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Last returns the most recent successful result, if any.
func (j *Job) Last() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

func (j *Job) execute(ctx context.Context, id string, progress ProgressFunc) (*Result, error) {
	emit := events.Emitter{Source: events.SourceTraining, SessionID: id}
	logger := slog.With("session", id)
	logger.Info("training started", "root", j.deps.Store.Root)

	res, err := j.train(ctx, logger, progress)
	if err != nil {
		logger.Error("training failed", "error", err)
		j.deps.Events.Publish(emit.TrainingFailed(fmt.Sprintf("Training failed: %v", err)))
		return nil, err
	}
	res.SessionID = id

	if err := j.deps.Registry.Rebuild(); err != nil {
		logger.Warn("rebuilding registry", "error", err)
	}

	j.mu.Lock()
	j.last = res
	j.mu.Unlock()

	logger.Info("training finished", "samples", res.Samples, "persons", res.Persons, "duration", res.Duration)
	j.deps.Events.Publish(emit.TrainingSucceeded(
		fmt.Sprintf("Model trained with %d samples from %d people", res.Samples, res.Persons),
		events.TrainingSummary{
			Samples:   res.Samples,
			Persons:   res.Persons,
			PerPerson: res.PerPerson,
			Duration:  res.Duration,
		}))
	return res, nil
}

func (j *Job) train(ctx context.Context, logger *slog.Logger, progress ProgressFunc) (*Result, error) {
	start := time.Now()

	buckets, skipped, err := j.deps.Store.ListBuckets()
	if err != nil {
		return nil, err
	}
	for _, name := range skipped {
		logger.Warn("skipping malformed bucket", "bucket", name)
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("no person buckets in %s: %w", j.deps.Store.Root, apperr.ErrEmptyDataset)
	}

	files := make([][]string, len(buckets))
	total := 0
	for i, b := range buckets {
		files[i], err = b.Samples()
		if err != nil {
			return nil, err
		}
		total += len(files[i])
	}

	res := &Result{PerPerson: map[string]int{}, Skipped: skipped}
	var samples []vision.Sample
	persons := map[int]struct{}{}
	loaded := 0
	for i, b := range buckets {
		for _, path := range files[i] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			loaded++
			gray, err := vision.LoadGray(path)
			if err != nil {
				logger.Warn("skipping unreadable sample", "file", filepath.Join(filepath.Base(b.Dir), filepath.Base(path)), "error", err)
			} else {
				samples = append(samples, vision.Sample{
					Label: b.ID,
					Image: vision.Normalize(j.deps.Backend, gray, j.deps.SampleSize),
				})
				res.PerPerson[facestore.BucketName(b.ID, b.Name)]++
				persons[b.ID] = struct{}{}
			}
			if progress != nil {
				progress(loaded, total)
			}
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no loadable samples in %s: %w", j.deps.Store.Root, apperr.ErrEmptyDataset)
	}

	model, err := j.deps.Backend.Train(samples)
	if err != nil {
		if errors.Is(err, apperr.ErrEmptyDataset) {
			return nil, err
		}
		return nil, fmt.Errorf("fitting recognizer: %w", err)
	}
	if err := j.deps.Models.Save(model); err != nil {
		return nil, err
	}

	res.Samples = len(samples)
	res.Persons = len(persons)
	res.Duration = time.Since(start)
	return res, nil
}
