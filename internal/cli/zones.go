package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/ports/primary"
)

// ZonesCmd returns the zones command
func ZonesCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Show live zone state",
		Long: `Show the current state of every zone as seen by a running monitor.
Talks to the monitor's dashboard API, so it works from any machine that
can reach it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			zones, err := fetchZones(addr)
			if err != nil {
				return err
			}
			if len(zones) == 0 {
				fmt.Println("No zones seen yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ZONE\tCURRENT\tTARGET\tMODE\tLAST SEEN\tOVERRIDE")
			for _, z := range zones {
				override := "-"
				if z.OverrideSince != nil {
					override = color.New(color.FgRed).Sprintf("since %s",
						z.OverrideSince.Local().Format("15:04"))
				}
				current := fmt.Sprintf("%.1f°C", z.CurrentTemp)
				if !z.Available {
					current = color.New(color.FgYellow).Sprint("unavailable")
				}
				fmt.Fprintf(w, "%s\t%s\t%.1f°C\t%s\t%s\t%s\n",
					z.ZoneName, current, z.TargetTemp, z.Mode,
					z.LastSeen.Local().Format("15:04:05"), override)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "monitor API address")
	return cmd
}

func fetchZones(addr string) ([]primary.ZoneStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/api/zones")
	if err != nil {
		return nil, fmt.Errorf("failed to reach the monitor at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monitor returned %d", resp.StatusCode)
	}
	var zones []primary.ZoneStatus
	if err := json.NewDecoder(resp.Body).Decode(&zones); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return zones, nil
}
