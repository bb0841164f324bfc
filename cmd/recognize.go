package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/events"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize faces and record attendance",
	Long: `Recognize faces from the configured camera and record the first sighting of
each person today in the attendance file. Runs until Ctrl+C or --duration.

Examples:
  face-attendance recognize
  face-attendance recognize --duration 8h` + captureHelp,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	svc, cleanup, err := newService(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID, err := svc.StartRecognition(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Recognizing %d enrolled people, press Ctrl+C to stop\n", svc.RegistryCount())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := mustGetDuration(cmd, "duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	go func() {
		<-ctx.Done()
		svc.StopRecognition()
	}()

	done := make(chan struct{})
	go func() {
		svc.WaitRecognition()
		close(done)
	}()

	var failed error
	recorded := 0
	followEvents(svc.Events(), done, cfg.Web.PollInterval, func(ev events.Event) {
		if ev.SessionID != sessionID {
			return
		}
		switch ev.Type {
		case events.TypeAttendanceDetected:
			a := ev.Attendance
			recorded++
			fmt.Printf("%s  %-4d %-30s %.1f%%\n", a.Time, a.ID, a.Name, a.ConfidencePct)
		case events.TypeWarning:
			fmt.Printf("Warning: %s\n", ev.Message)
		case events.TypeError:
			failed = errors.New(ev.Message)
		}
	})

	if failed != nil {
		return failed
	}
	fmt.Printf("Stopped at %s, %d new attendance records\n", time.Now().Format(time.TimeOnly), recorded)
	return nil
}
