package secondary

import (
	"context"
	"time"
)

// Alert is the payload produced for a newly-classified episode. The core
// produces it; delivery, retry and rate limiting belong to the notifier
// implementation.
type Alert struct {
	ZoneID      string
	ZoneName    string
	Cause       string
	Confidence  string
	TriggerTemp float64
	CurrentTemp float64
	StartTime   time.Time
	Suspicious  bool
	Notes       string
}

// Clearance reports an override returning to schedule.
type Clearance struct {
	ZoneID   string
	ZoneName string
	EndTime  time.Time
	EndTemp  float64
	Duration time.Duration
}

// Notifier is the outbound alert channel. Implementations own cooldown and
// quiet-hours policy; the pipeline calls it for every event.
type Notifier interface {
	NotifyOverride(ctx context.Context, a Alert) error
	NotifyCleared(ctx context.Context, c Clearance) error

	// NotifySystem sends an operational message (startup, shutdown,
	// repeated poll failures).
	NotifySystem(ctx context.Context, message string) error
}
