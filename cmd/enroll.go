package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/events"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Capture face samples for a person",
	Long: `Capture face samples for a person from the configured camera.

Samples are stored under faces/<id>_<name>/ and numbered after any existing
ones, so enrolling the same person again adds to their set. Press Ctrl+C to
stop early; samples captured so far are kept.

Examples:
  face-attendance enroll --id 7 --name Ana
  face-attendance enroll --id 7 --name Ana --quota 40` + captureHelp,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("id", 0, "Person id (positive integer)")
	enrollCmd.Flags().String("name", "", "Person name")
	enrollCmd.Flags().Int("quota", 0, "Samples to capture (overrides ENROLL_QUOTA)")
	_ = enrollCmd.MarkFlagRequired("id")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if quota := mustGetInt(cmd, "quota"); quota > 0 {
		cfg.Enrollment.Quota = quota
	}

	svc, cleanup, err := newService(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	id, name := mustGetInt(cmd, "id"), mustGetString(cmd, "name")
	sessionID, err := svc.StartEnrollment(context.Background(), id, name)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			fmt.Println("\nStopping capture...")
			svc.CancelEnrollment()
		}
	}()

	done := make(chan struct{})
	go func() {
		svc.WaitEnrollment()
		close(done)
	}()

	bar := progressbar.NewOptions(cfg.Enrollment.Quota,
		progressbar.OptionSetDescription(fmt.Sprintf("Capturing %s", name)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var failed error
	followEvents(svc.Events(), done, cfg.Web.PollInterval, func(ev events.Event) {
		if ev.SessionID != sessionID {
			return
		}
		switch ev.Type {
		case events.TypeProgress:
			_ = bar.Set(ev.Progress.Count)
		case events.TypeCompleted:
			_ = bar.Finish()
			fmt.Printf("\n%s\n", ev.Message)
		case events.TypeWarning:
			fmt.Printf("\nWarning: %s\n", ev.Message)
		case events.TypeError:
			failed = errors.New(ev.Message)
		}
	})
	fmt.Println()

	if failed != nil {
		return failed
	}
	fmt.Printf("%d people enrolled. Run \"train\" to update the model.\n", svc.RegistryCount())
	return nil
}
