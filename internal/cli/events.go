package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
	"github.com/example/hearthwatch/internal/wire"
)

// EventsCmd returns the events command
func EventsCmd() *cobra.Command {
	var (
		zone       string
		cause      string
		days       int
		suspicious bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List override episodes",
		Long: `List recorded override episodes, newest first.

Examples:
  hearthwatch events --days 7
  hearthwatch events --zone living_room --suspicious
  hearthwatch events --cause firmware_35c --days 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.ForensicsService().Events(context.Background(), primary.EventsRequest{
				ZoneID:         zone,
				Cause:          cause,
				Days:           days,
				SuspiciousOnly: suspicious,
				Limit:          limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if len(resp.Episodes) == 0 {
				fmt.Println("No episodes recorded for the given filters.")
			} else {
				printEpisodeTable(resp.Episodes)
			}
			if resp.Incomplete {
				color.New(color.FgYellow).Printf(
					"\nNote: the requested window reaches past retention; older episodes may have been purged.\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "filter by zone id")
	cmd.Flags().StringVar(&cause, "cause", "", "filter by classification")
	cmd.Flags().IntVar(&days, "days", 30, "window size in days")
	cmd.Flags().BoolVar(&suspicious, "suspicious", false, "only suspicious episodes")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum episodes to list")
	return cmd
}

func printEpisodeTable(episodes []*secondary.EpisodeRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tZONE\tTRIGGER\tDURATION\tCAUSE\tCONF\tFLAGS")
	for _, ep := range episodes {
		duration := "open"
		if ep.EndTime != nil {
			duration = ep.EndTime.Sub(ep.StartTime).Round(time.Minute).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f°C\t%s\t%s\t%s\t%s\n",
			ep.StartTime.Local().Format("2006-01-02 15:04"),
			ep.ZoneName,
			ep.TriggerTemp,
			duration,
			causeLabel(ep),
			ep.Confidence,
			episodeFlags(ep))
	}
	w.Flush()
}

func causeLabel(ep *secondary.EpisodeRecord) string {
	if ep.Suspicious {
		return color.New(color.FgRed).Sprint(ep.Classification)
	}
	return ep.Classification
}

func episodeFlags(ep *secondary.EpisodeRecord) string {
	flags := ""
	if ep.Degenerate {
		flags += "degenerate "
	}
	if ep.Ambiguous {
		flags += "ambiguous "
	}
	if flags == "" {
		return "-"
	}
	return flags
}
