package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/hearthwatch/internal/wire"
)

// DoctorCmd returns the doctor command
func DoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the monitor's environment",
		Long:  `Verify configuration, database access, broker reachability and alerting setup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config()
			ok := color.New(color.FgGreen).Sprint("✓")
			warn := color.New(color.FgYellow).Sprint("!")
			fail := color.New(color.FgRed).Sprint("✗")

			// wire.Init already loaded config and opened the database, or
			// the process would have exited.
			fmt.Printf("%s config loaded\n", ok)
			fmt.Printf("%s database open at %s\n", ok, cfg.Database.Path)

			provider, err := wire.ZoneProvider()
			if err != nil {
				fmt.Printf("%s broker %s unreachable: %v\n", fail, cfg.Broker.URL, err)
			} else {
				fmt.Printf("%s broker reachable at %s\n", ok, cfg.Broker.URL)
				provider.Close()
			}

			if cfg.Telegram.Token == "" {
				fmt.Printf("%s telegram not configured; alerts go to the log only\n", warn)
			} else {
				fmt.Printf("%s telegram alerts configured (chat %s)\n", ok, cfg.Telegram.ChatID)
			}

			fmt.Printf("%s poll interval %s, staleness limit %s, retention %d days\n",
				ok, cfg.PollInterval(), cfg.MaxStaleness(), cfg.Monitor.RetentionDays)
			return nil
		},
	}
}
