package attendance

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/vision"
	"github.com/kozaktomas/face-attendance/internal/vision/visiontest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc        *Service
	dir        string
	camera     *visiontest.Camera
	recognizer *visiontest.Recognizer
	detector   *switchDetector
	clock      *testClock
}

// switchDetector lets a test change detection results between sessions.
type switchDetector struct {
	mu  sync.Mutex
	det visiontest.Detector
}

func (d *switchDetector) Set(det visiontest.Detector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det = det
}

func (d *switchDetector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	d.mu.Lock()
	det := d.det
	d.mu.Unlock()
	return det.Detect(gray)
}

func newFixture(t *testing.T, quota int) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		camera:     &visiontest.Camera{},
		recognizer: &visiontest.Recognizer{},
		detector:   &switchDetector{det: visiontest.OneFace()},
		clock:      &testClock{now: time.Date(2024, time.March, 4, 9, 30, 0, 0, time.Local)},
	}
	svc, err := New(Options{
		FacesDir:    filepath.Join(dir, "faces"),
		ModelPath:   filepath.Join(dir, "recognizer", "trainer.yml"),
		LedgerPath:  filepath.Join(dir, "registros", "presenca.csv"),
		Enrollment:  enrollment.Config{Quota: quota, SampleSize: 200},
		Recognition: recognition.Config{Threshold: 80, SampleSize: 64},
		SampleSize:  64,
		Camera:      f.camera,
		Detector:    f.detector,
		Backend:     &visiontest.Backend{Decoded: f.recognizer},
		Clock:       f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func ofType(evs []events.Event, typ events.Type) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScenario_EnrollTrainRecognize(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	// Enroll Ana with quota 3.
	if _, err := f.svc.StartEnrollment(ctx, 7, "Ana"); err != nil {
		t.Fatalf("StartEnrollment failed: %v", err)
	}
	f.svc.enrollment.Wait()

	evs := f.svc.Drain()
	if got := len(ofType(evs, events.TypeCompleted)); got != 1 {
		t.Fatalf("expected Completed once, got %d", got)
	}
	entries, err := os.ReadDir(filepath.Join(f.dir, "faces", "7_Ana"))
	if err != nil || len(entries) != 3 {
		t.Fatalf("expected 3 images in 7_Ana, got %d (%v)", len(entries), err)
	}
	if f.svc.RegistryCount() != 1 {
		t.Errorf("expected 1 person, got %d", f.svc.RegistryCount())
	}
	if n, _ := f.svc.TotalSampleCount(); n != 3 {
		t.Errorf("expected 3 samples, got %d", n)
	}

	// Train.
	if _, err := f.svc.Train(); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	f.svc.training.Wait()
	trained := ofType(f.svc.Drain(), events.TypeTrainingSucceeded)
	if len(trained) != 1 || trained[0].Training.Samples != 3 || trained[0].Training.Persons != 1 {
		t.Fatalf("expected TrainingSucceeded 3/1, got %+v", trained)
	}

	// Recognize Ana at distance 40.
	f.recognizer.Prediction = vision.Prediction{Label: 7, Distance: 40}
	if _, err := f.svc.StartRecognition(ctx); err != nil {
		t.Fatalf("StartRecognition failed: %v", err)
	}
	waitFor(t, "attendance", func() bool { return f.svc.Events().Len() > 0 })
	// Let later frames see Ana again.
	waitFor(t, "more frames", func() bool { return f.svc.recognition.Status().Identified >= 5 })
	f.svc.StopRecognition()

	detected := ofType(f.svc.Drain(), events.TypeAttendanceDetected)
	if len(detected) != 1 {
		t.Fatalf("expected exactly one AttendanceDetected, got %d", len(detected))
	}
	a := detected[0].Attendance
	if a.ID != 7 || a.Name != "Ana" || a.ConfidencePct != 60 {
		t.Errorf("unexpected attendance %+v", a)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, "registros", "presenca.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "ID,Nome,Data,Hora,Confianca\n7,Ana,2024-03-04,09:30:00,60.0%\n"
	if string(data) != want {
		t.Errorf("ledger:\n%s\nwant:\n%s", data, want)
	}

	records, _ := f.svc.TodaysRecords()
	if len(records) != 1 {
		t.Errorf("expected 1 record today, got %d", len(records))
	}
}

func TestCameraMutualExclusion(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.detector.Set(visiontest.Detector{}) // enrollment never finishes on its own

	if _, err := f.svc.StartEnrollment(ctx, 7, "Ana"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.StartRecognition(ctx); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("expected ErrBusy while enrolling, got %v", err)
	}
	f.svc.CancelEnrollment()

	writeModel(t, f)
	if _, err := f.svc.StartRecognition(ctx); err != nil {
		t.Fatalf("StartRecognition after cancel failed: %v", err)
	}
	if _, err := f.svc.StartEnrollment(ctx, 8, "Bruno"); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("expected ErrBusy while recognizing, got %v", err)
	}
	f.svc.StopRecognition()
}

func writeModel(t *testing.T, f *fixture) {
	t.Helper()
	path := filepath.Join(f.dir, "recognizer", "trainer.yml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("samples: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidationIsSynchronous(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.svc.StartEnrollment(context.Background(), 0, "Ana"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if f.camera.Opened() != 0 {
		t.Error("camera must not be opened")
	}
	if evs := f.svc.Drain(); len(evs) != 0 {
		t.Errorf("expected no events, got %+v", evs)
	}
}

func TestRecognitionWithoutModel(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.svc.StartRecognition(context.Background()); !errors.Is(err, apperr.ErrModelMissing) {
		t.Errorf("expected ErrModelMissing, got %v", err)
	}
}

func TestTrainWithoutData(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.svc.TrainSync(context.Background(), nil); !errors.Is(err, apperr.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	failed := ofType(f.svc.Drain(), events.TypeTrainingFailed)
	if len(failed) != 1 {
		t.Errorf("expected one TrainingFailed event, got %d", len(failed))
	}
}

func TestClearTodayAndRollover(t *testing.T) {
	f := newFixture(t, 3)
	l := f.svc.Ledger()

	f.clock.Set(time.Date(2024, time.March, 3, 17, 0, 0, 0, time.Local))
	if _, _, err := l.RecordIfAbsent(1, "Yesterday", 70); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.Local))
	f.svc.Rollover()
	for id := 2; id <= 3; id++ {
		if _, _, err := l.RecordIfAbsent(id, "Today", 70); err != nil {
			t.Fatal(err)
		}
	}

	st, err := f.svc.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Today != 2 {
		t.Errorf("expected 2 records today, got %d", st.Today)
	}

	n, err := f.svc.ClearToday()
	if err != nil || n != 2 {
		t.Fatalf("expected 2 cleared, got %d, %v", n, err)
	}
	remaining, _ := l.RecordsForDate("2024-03-03")
	if len(remaining) != 1 {
		t.Errorf("expected yesterday untouched, got %d records", len(remaining))
	}
	if has, _ := l.Has(2); has {
		t.Error("expected dedup set cleared")
	}
}

func TestRecentFirst(t *testing.T) {
	var records []ledger.Record
	for i := 1; i <= 5; i++ {
		records = append(records, ledger.Record{ID: i})
	}

	got := RecentFirst(records, 3)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = string(rune('0' + r.ID))
	}
	if strings.Join(ids, ",") != "5,4,3" {
		t.Errorf("expected 5,4,3 got %v", ids)
	}
	if records[0].ID != 1 {
		t.Error("input must not be modified")
	}
	if len(RecentFirst(records, 0)) != 5 {
		t.Error("limit 0 keeps all")
	}
}

func TestStartScheduler(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.svc.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler failed: %v", err)
	}
}
