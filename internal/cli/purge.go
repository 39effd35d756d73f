package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/wire"
)

// PurgeCmd returns the purge command
func PurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete data past the retention horizon",
		Long: `Delete snapshots and closed episodes older than the configured retention.
Open episodes are never deleted. The monitor also runs this daily; the
command exists for manual maintenance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := wire.ForensicsService().PurgeExpired(context.Background())
			if err != nil {
				return fmt.Errorf("failed to purge: %w", err)
			}
			fmt.Printf("✓ Purged %d snapshots and %d episodes older than %d days\n",
				stats.Snapshots, stats.Episodes, wire.Config().Monitor.RetentionDays)
			return nil
		},
	}
}
