package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/cli"
	"github.com/example/hearthwatch/internal/version"
	"github.com/example/hearthwatch/internal/wire"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "hearthwatch",
		Short:   "hearthwatch - heating override monitor",
		Version: version.String(),
		Long: `hearthwatch watches a multi-zone heating controller for setpoint
overrides, separates real user interventions from firmware misbehavior,
and keeps a forensic history of every episode.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wire.Init(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "hearthwatch.yaml", "path to the config file")

	rootCmd.AddCommand(cli.MonitorCmd())
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.ZonesCmd())
	rootCmd.AddCommand(cli.EventsCmd())
	rootCmd.AddCommand(cli.StatsCmd())
	rootCmd.AddCommand(cli.HoursCmd())
	rootCmd.AddCommand(cli.ExportCmd())
	rootCmd.AddCommand(cli.PurgeCmd())
	rootCmd.AddCommand(cli.DoctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
