package cmd

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/vision"
	"github.com/kozaktomas/face-attendance/internal/vision/lbph"
	"github.com/kozaktomas/face-attendance/internal/vision/opencv"
	"github.com/kozaktomas/face-attendance/internal/vision/pigo"
)

// captureHelp is appended to the help of every command that opens the camera.
const captureHelp = `

Face detection needs the pigo cascade file, which is not shipped with this
repository. Download it from
https://github.com/esimov/pigo/raw/master/cascade/facefinder
to cascade/facefinder or point PIGO_CASCADE at it. DETECTOR=haar uses an OpenCV
Haar cascade (HAAR_CASCADE) and, like webcam capture and RECOGNIZER=opencv,
needs a build with -tags gocv. CAMERA=dir:<path> replays image files instead.`

// newCamera builds the frame source named by the CAMERA setting.
func newCamera(cfg *config.Config) (vision.Camera, error) {
	spec, err := config.ParseCamera(cfg.Capture.Camera)
	if err != nil {
		return nil, err
	}
	if spec.Kind == config.CameraDirectory {
		return vision.DirCamera{Dir: spec.Dir}, nil
	}
	if !opencv.Available {
		return nil, fmt.Errorf("camera device %d needs a build with -tags gocv (or use CAMERA=dir:<path>)", spec.Device)
	}
	return opencv.Camera{Device: spec.Device}, nil
}

// newBackend returns the recognizer backend named by the RECOGNIZER setting.
func newBackend(cfg *config.Config) (vision.Backend, error) {
	switch cfg.Recognition.Backend {
	case "lbph", "":
		return lbph.NewBackend(), nil
	case "opencv":
		return opencv.NewLBPHBackend()
	default:
		return nil, fmt.Errorf("unknown recognizer %q (want lbph or opencv)", cfg.Recognition.Backend)
	}
}

// newDetector loads the face detector named by the DETECTOR setting. The returned
// cleanup releases native resources.
func newDetector(cfg *config.Config) (vision.Detector, func(), error) {
	switch cfg.Capture.Detector {
	case "pigo", "":
		d, err := pigo.Load(cfg.Capture.PigoCascade, pigo.DefaultOptions())
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	case "haar":
		d, err := opencv.LoadHaar(cfg.Capture.HaarCascade)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector %q (want pigo or haar)", cfg.Capture.Detector)
	}
}

// newService wires the pipeline from configuration. Commands that never touch the
// camera pass withCapture=false and skip loading the detector.
func newService(cfg *config.Config, withCapture bool) (*attendance.Service, func(), error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("recognizer: %w", err)
	}
	opts := attendance.Options{
		FacesDir:   cfg.Storage.ResolvedFacesDir(),
		ModelPath:  cfg.Storage.ResolvedModelPath(),
		LedgerPath: cfg.Storage.ResolvedLedgerPath(),
		Enrollment: enrollment.Config{
			Quota:      cfg.Enrollment.Quota,
			Interval:   cfg.Enrollment.Interval,
			SampleSize: cfg.Enrollment.SampleSize,
			FrameDelay: cfg.Capture.FrameDelay,
		},
		Recognition: recognition.Config{
			Threshold:  cfg.Recognition.Threshold,
			SampleSize: cfg.Enrollment.SampleSize,
			FrameDelay: cfg.Capture.FrameDelay,
		},
		SampleSize: cfg.Enrollment.SampleSize,
		Backend:    backend,
	}

	cleanup := func() {}
	if withCapture {
		camera, err := newCamera(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("camera: %w", err)
		}
		detector, release, err := newDetector(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("detector: %w", err)
		}
		opts.Camera = camera
		opts.Detector = detector
		cleanup = release
	}

	svc, err := attendance.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, func() {
		svc.Close()
		cleanup()
	}, nil
}

// followEvents polls the channel until done is closed, handing every event to
// handle in FIFO order. Events queued before done closed are still delivered. A
// non-positive poll falls back to the default interval.
func followEvents(ch *events.Channel, done <-chan struct{}, poll time.Duration, handle func(events.Event)) {
	if poll <= 0 {
		poll = constants.DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			for _, ev := range ch.Drain() {
				handle(ev)
			}
			return
		case <-ticker.C:
			for _, ev := range ch.Drain() {
				handle(ev)
			}
		}
	}
}
