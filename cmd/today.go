package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's attendance",
	Long: `Show today's attendance records, most recent first.

Examples:
  face-attendance today
  face-attendance today --limit 0 --json`,
	RunE: runToday,
}

func init() {
	rootCmd.AddCommand(todayCmd)

	todayCmd.Flags().Bool("json", false, "Output as JSON")
	todayCmd.Flags().Int("limit", 20, "Maximum records to show (0 shows all)")
}

func runToday(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	svc, cleanup, err := newService(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := svc.TodaysRecords()
	if err != nil {
		return err
	}
	recent := attendance.RecentFirst(records, mustGetInt(cmd, "limit"))

	if mustGetBool(cmd, "json") {
		if recent == nil {
			recent = []ledger.Record{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recent)
	}

	fmt.Printf("Attendance for %s: %d people\n", svc.Ledger().Today(), len(records))
	if len(recent) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Printf("%-8s %-6s %-30s %s\n", "TIME", "ID", "NAME", "CONFIDENCE")
	for _, r := range recent {
		fmt.Printf("%-8s %-6d %-30s %s\n", r.Time, r.ID, r.Name, r.Confidence)
	}
	return nil
}
