package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/api"
	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
	"github.com/example/hearthwatch/internal/wire"
)

// scheduleRefreshInterval is how often the cached zone schedules are
// re-read from the gateway. Schedules change rarely.
const scheduleRefreshInterval = time.Hour

// purgeInterval is how often the retention purge runs while monitoring.
const purgeInterval = 24 * time.Hour

// failureAlertThreshold is how many consecutive poll failures trigger a
// system notification.
const failureAlertThreshold = 5

// MonitorCmd returns the monitor command
func MonitorCmd() *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the override monitor",
		Long: `Run the polling loop: read zone state from the broker, track override
episodes, classify them, persist forensics and send alerts. Also serves
the dashboard API unless --api=false.

Runs until interrupted. Open episodes survive a restart; they are resumed
from the database on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx, withAPI)
		},
	}

	cmd.Flags().BoolVar(&withAPI, "api", true, "serve the dashboard API alongside the monitor")
	return cmd
}

func runMonitor(ctx context.Context, withAPI bool) error {
	cfg := wire.Config()
	logger := wire.Logger()
	monitor := wire.MonitorService()
	forensics := wire.ForensicsService()

	if err := monitor.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	provider, err := wire.ZoneProvider()
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer provider.Close()

	if schedules, err := provider.Schedules(ctx); err == nil {
		monitor.SetSchedules(schedules)
	} else {
		logger.Warn("failed to load schedules", zap.Error(err))
	}

	var httpServer *http.Server
	if withAPI {
		server := api.NewServer(monitor, forensics, logger)
		httpServer = &http.Server{Addr: cfg.Web.ListenAddr, Handler: server.Router()}
		go func() {
			logger.Info("dashboard api listening", zap.String("addr", cfg.Web.ListenAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api server failed", zap.Error(err))
			}
		}()
	}

	if err := wire.Notifier().NotifySystem(ctx, "hearthwatch monitor started"); err != nil {
		logger.Warn("startup notification failed", zap.Error(err))
	}

	pollTicker := time.NewTicker(cfg.PollInterval())
	defer pollTicker.Stop()
	scheduleTicker := time.NewTicker(scheduleRefreshInterval)
	defer scheduleTicker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	logger.Info("monitor running",
		zap.Duration("poll_interval", cfg.PollInterval()),
		zap.Duration("max_staleness", cfg.MaxStaleness()))

	// first poll immediately rather than one interval in
	tick(ctx, monitor, provider, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("api shutdown failed", zap.Error(err))
				}
			}
			return nil

		case <-pollTicker.C:
			tick(ctx, monitor, provider, logger)

		case <-scheduleTicker.C:
			if schedules, err := provider.Schedules(ctx); err == nil {
				monitor.SetSchedules(schedules)
			} else {
				logger.Warn("schedule refresh failed", zap.Error(err))
			}

		case <-purgeTicker.C:
			stats, err := forensics.PurgeExpired(ctx)
			if err != nil {
				logger.Error("retention purge failed", zap.Error(err))
				continue
			}
			logger.Info("retention purge complete",
				zap.Int64("snapshots", stats.Snapshots),
				zap.Int64("episodes", stats.Episodes))
		}
	}
}

func tick(ctx context.Context, monitor primary.MonitorService, provider secondary.ZoneProvider, logger *zap.Logger) {
	batch, err := provider.Poll(ctx)
	if err != nil {
		monitor.RecordPollError()
		logger.Error("poll failed", zap.Error(err))
		if monitor.Health().ConsecutiveErrors == failureAlertThreshold {
			if nerr := wire.Notifier().NotifySystem(ctx,
				fmt.Sprintf("polling has failed %d times in a row: %v", failureAlertThreshold, err)); nerr != nil {
				logger.Warn("failure notification failed", zap.Error(nerr))
			}
		}
		return
	}

	report, err := monitor.Tick(ctx, batch)
	if err != nil {
		logger.Error("tick failed", zap.Error(err))
		return
	}
	if report.Opened > 0 || report.Closed > 0 || report.Skipped > 0 {
		logger.Info("tick",
			zap.Int("opened", report.Opened),
			zap.Int("closed", report.Closed),
			zap.Int("degenerate", report.Degenerate),
			zap.Int("skipped", report.Skipped))
	}
}
