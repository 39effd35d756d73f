// Package wire provides dependency injection for the monitor. Services are
// singletons built lazily from the loaded configuration; the CLI commands
// only ever see the primary ports.
package wire

import (
	"context"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"

	mqttadapter "github.com/example/hearthwatch/internal/adapters/mqtt"
	"github.com/example/hearthwatch/internal/adapters/sqlite"
	"github.com/example/hearthwatch/internal/adapters/telegram"
	"github.com/example/hearthwatch/internal/app"
	"github.com/example/hearthwatch/internal/config"
	"github.com/example/hearthwatch/internal/core/classify"
	"github.com/example/hearthwatch/internal/db"
	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

var (
	cfg              *config.Config
	logger           *zap.Logger
	store            secondary.ForensicStore
	notifier         secondary.Notifier
	monitorService   primary.MonitorService
	forensicsService primary.ForensicsService
	once             sync.Once
)

// Init loads the configuration once and must be called before any service
// accessor. Later calls with a different path are ignored.
func Init(configPath string) {
	once.Do(func() { initServices(configPath) })
}

// Config returns the loaded configuration.
func Config() *config.Config {
	mustInit()
	return cfg
}

// Logger returns the shared structured logger.
func Logger() *zap.Logger {
	mustInit()
	return logger
}

// MonitorService returns the singleton MonitorService instance.
func MonitorService() primary.MonitorService {
	mustInit()
	return monitorService
}

// ForensicsService returns the singleton ForensicsService instance.
func ForensicsService() primary.ForensicsService {
	mustInit()
	return forensicsService
}

// Notifier returns the singleton Notifier instance.
func Notifier() secondary.Notifier {
	mustInit()
	return notifier
}

// ZoneProvider connects to the broker and returns a fresh provider. The
// connection is owned by the caller; only the long-running monitor command
// needs one.
func ZoneProvider() (secondary.ZoneProvider, error) {
	mustInit()
	return mqttadapter.NewProvider(cfg.Broker.URL, cfg.Broker.TopicPrefix, logger)
}

func mustInit() {
	if cfg == nil {
		log.Fatal("wire.Init must be called before using services")
	}
}

func initServices(configPath string) {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	store = sqlite.NewForensicStore(database, cfg.Monitor.RetentionDays)
	notifier = buildNotifier()

	monitorService = app.NewMonitorService(store, notifier, logger,
		cfg.MaxStaleness(), detectionParams(cfg.Detection))
	forensicsService = app.NewForensicsService(store, cfg.Monitor.RetentionDays)
}

// buildNotifier returns the Telegram notifier when a token is configured,
// otherwise a logging stub.
func buildNotifier() secondary.Notifier {
	if cfg.Telegram.Token == "" {
		return &logNotifier{logger: logger}
	}
	return telegram.NewNotifier(telegram.Config{
		Token:             cfg.Telegram.Token,
		ChatID:            cfg.Telegram.ChatID,
		Cooldown:          cfg.TelegramCooldown(),
		QuietHoursEnabled: cfg.Telegram.QuietHoursEnabled,
		QuietStart:        cfg.Telegram.QuietStart,
		QuietEnd:          cfg.Telegram.QuietEnd,
	}, logger)
}

func detectionParams(d config.DetectionConfig) classify.Params {
	return classify.Params{
		HighSuspectTemp:    d.HighSuspectTemp,
		LowSuspectTemp:     d.LowSuspectTemp,
		TempTolerance:      d.TempTolerance,
		ThresholdWarning:   d.ThresholdWarning,
		LeadWindowMin:      time.Duration(d.LeadWindowMinMinutes) * time.Minute,
		LeadWindowMax:      time.Duration(d.LeadWindowMaxMinutes) * time.Minute,
		OptimumStartWindow: time.Duration(d.OptimumStartWindowMinutes) * time.Minute,
	}
}

// logNotifier is the Notifier used when Telegram is not configured.
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) NotifyOverride(_ context.Context, a secondary.Alert) error {
	n.logger.Info("override alert",
		zap.String("zone", a.ZoneID),
		zap.String("cause", a.Cause),
		zap.Float64("trigger", a.TriggerTemp))
	return nil
}

func (n *logNotifier) NotifyCleared(_ context.Context, c secondary.Clearance) error {
	n.logger.Info("override cleared",
		zap.String("zone", c.ZoneID),
		zap.Duration("duration", c.Duration))
	return nil
}

func (n *logNotifier) NotifySystem(_ context.Context, message string) error {
	n.logger.Info("system message", zap.String("message", message))
	return nil
}
