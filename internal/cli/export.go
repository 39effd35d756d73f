package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
	"github.com/example/hearthwatch/internal/wire"
)

// ExportCmd returns the export command
func ExportCmd() *cobra.Command {
	var (
		days   int
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export episodes for external analysis",
		Long: `Write recorded episodes to stdout as JSON or CSV.

Examples:
  hearthwatch export --days 90 > episodes.json
  hearthwatch export --format csv --days 90 > episodes.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.ForensicsService().Events(context.Background(), primary.EventsRequest{
				Days: days,
			})
			if err != nil {
				return fmt.Errorf("failed to load episodes: %w", err)
			}

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp.Episodes)
			case "csv":
				return writeEpisodeCSV(os.Stdout, resp.Episodes)
			default:
				return fmt.Errorf("unknown format %q (json or csv)", format)
			}
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "window size in days")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	return cmd
}

func writeEpisodeCSV(f *os.File, episodes []*secondary.EpisodeRecord) error {
	w := csv.NewWriter(f)
	header := []string{"id", "zone_id", "zone_name", "start_time", "end_time",
		"trigger_temp", "end_temp", "status", "degenerate", "classification",
		"confidence", "ambiguous", "suspicious", "sample_count"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, ep := range episodes {
		endTime, endTemp := "", ""
		if ep.EndTime != nil {
			endTime = ep.EndTime.UTC().Format("2006-01-02T15:04:05Z")
		}
		if ep.EndTemp != nil {
			endTemp = strconv.FormatFloat(*ep.EndTemp, 'f', 1, 64)
		}
		row := []string{
			ep.ID, ep.ZoneID, ep.ZoneName,
			ep.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
			endTime,
			strconv.FormatFloat(ep.TriggerTemp, 'f', 1, 64),
			endTemp,
			ep.Status,
			strconv.FormatBool(ep.Degenerate),
			ep.Classification,
			ep.Confidence,
			strconv.FormatBool(ep.Ambiguous),
			strconv.FormatBool(ep.Suspicious),
			strconv.Itoa(ep.SampleCount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
