package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/wire"
)

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show override statistics",
		Long: `Aggregate recorded episodes: per-zone frequency, cause distribution and
zones flagged for recurring fault patterns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := wire.ForensicsService().Summary(context.Background(), days)
			if err != nil {
				return fmt.Errorf("failed to build summary: %w", err)
			}

			fmt.Printf("Override statistics, last %d days\n", summary.Days)
			fmt.Printf("Total: %d episodes, %d suspicious\n\n", summary.TotalOverrides, summary.TotalSuspicious)

			if len(summary.ZoneFrequency) > 0 {
				fmt.Println("By zone:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "  ZONE\tEPISODES\tSUSPICIOUS")
				for _, zf := range summary.ZoneFrequency {
					fmt.Fprintf(w, "  %s\t%d\t%d\n", zf.ZoneName, zf.Episodes, zf.Suspicious)
				}
				w.Flush()
				fmt.Println()
			}

			if len(summary.CauseCounts) > 0 {
				fmt.Println("By cause:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "  CAUSE\tCOUNT")
				for _, cc := range summary.CauseCounts {
					fmt.Fprintf(w, "  %s\t%d\n", cc.Cause, cc.Count)
				}
				w.Flush()
				fmt.Println()
			}

			for _, flag := range summary.PatternFlags {
				color.New(color.FgRed).Printf("⚠ %s: %s (%d episodes)\n",
					flag.ZoneName, flag.Reason, flag.Count)
			}
			if summary.Incomplete {
				color.New(color.FgYellow).Println(
					"\nNote: the requested window reaches past retention; counts are a lower bound.")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "window size in days")
	return cmd
}
