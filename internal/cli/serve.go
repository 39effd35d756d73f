package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/api"
	"github.com/example/hearthwatch/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API without polling",
		Long: `Serve the dashboard API over the existing forensic database, without
connecting to the broker. Useful for reviewing history on a machine that
is not the monitor host. Live zone state is empty in this mode.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := wire.Config()
			logger := wire.Logger()
			server := api.NewServer(wire.MonitorService(), wire.ForensicsService(), logger)
			httpServer := &http.Server{Addr: cfg.Web.ListenAddr, Handler: server.Router()}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("api shutdown failed", zap.Error(err))
				}
			}()

			logger.Info("dashboard api listening", zap.String("addr", cfg.Web.ListenAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
