package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/wire"
)

// HoursCmd returns the hours command
func HoursCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Show when overrides happen",
		Long: `Histogram of episode opens by hour of day. A cluster around schedule
switchpoints usually points at the firmware, not the household.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := wire.ForensicsService().Summary(context.Background(), days)
			if err != nil {
				return fmt.Errorf("failed to build summary: %w", err)
			}

			counts := make(map[int]int)
			maxCount := 0
			for _, hc := range summary.TimeDistribution {
				counts[hc.Hour] = hc.Count
				if hc.Count > maxCount {
					maxCount = hc.Count
				}
			}
			if maxCount == 0 {
				fmt.Println("No episodes recorded in the window.")
				return nil
			}

			fmt.Printf("Episode opens by hour (UTC), last %d days\n\n", summary.Days)
			for h := 0; h < 24; h++ {
				bar := strings.Repeat("█", counts[h]*40/maxCount)
				fmt.Printf("%02d:00 %-40s %d\n", h, bar, counts[h])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "window size in days")
	return cmd
}
