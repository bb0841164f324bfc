package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the face recognizer on all enrolled samples",
	Long: `Train the face recognizer on every sample under the faces directory and
replace the model file. The previous model is kept if training fails.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	svc, cleanup, err := newService(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	result, err := svc.TrainSync(ctx, func(loaded, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Loading samples"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(loaded)
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Printf("Trained on %d samples of %d people in %s\n", result.Samples, result.Persons, result.Duration.Round(time.Millisecond))
	for _, key := range slices.Sorted(maps.Keys(result.PerPerson)) {
		fmt.Printf("  %-30s %d\n", key, result.PerPerson[key])
	}
	for _, name := range result.Skipped {
		fmt.Printf("  skipped: %s\n", name)
	}
	return nil
}
