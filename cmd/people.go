package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List enrolled people",
	RunE:  runPeople,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
}

func runPeople(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	svc, cleanup, err := newService(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	samples, err := svc.TotalSampleCount()
	if err != nil {
		return err
	}
	people := svc.People()
	fmt.Printf("%d people enrolled, %d samples\n", len(people), samples)
	for _, p := range people {
		fmt.Printf("  %-6d %s\n", p.ID, p.Name)
	}
	return nil
}
