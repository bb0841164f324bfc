package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete today's attendance records",
	Long: `Delete today's attendance records. Records of other days are left untouched
and everyone can be recorded again today.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("yes", false, "Confirm deletion")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") {
		return errors.New("refusing to clear today's attendance without --yes")
	}

	cfg := config.Load()
	svc, cleanup, err := newService(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.ClearToday()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d records for %s\n", n, svc.Ledger().Today())
	return nil
}
