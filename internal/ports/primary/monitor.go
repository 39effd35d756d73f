// Package primary defines the primary ports (driving interfaces) of the
// monitor: the tick pipeline and the forensic query surface consumed by the
// CLI and the dashboard API.
package primary

import (
	"context"
	"time"

	"github.com/example/hearthwatch/internal/core/schedule"
	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// ZoneStatus is a zone's most recent reading plus tracking state, for the
// dashboard's current-state view.
type ZoneStatus struct {
	ZoneID          string     `json:"zone_id"`
	ZoneName        string     `json:"zone_name"`
	CurrentTemp     float64    `json:"current_temp"`
	TargetTemp      float64    `json:"target_temp"`
	Mode            string     `json:"mode"`
	ScheduledTarget float64    `json:"scheduled_target"`
	Available       bool       `json:"available"`
	LastSeen        time.Time  `json:"last_seen"`
	OverrideSince   *time.Time `json:"override_since,omitempty"`
}

// HealthStatus summarizes the poll loop's condition.
type HealthStatus struct {
	LastPoll          time.Time `json:"last_poll"`
	PollCount         int64     `json:"poll_count"`
	ErrorCount        int64     `json:"error_count"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	OpenEpisodes      int       `json:"open_episodes"`
	ZoneCount         int       `json:"zone_count"`
}

// TickReport summarizes what one tick did.
type TickReport struct {
	Opened     int
	Closed     int
	Degenerate int
	Skipped    int // snapshots rejected for data-quality reasons
}

// MonitorService is the tick pipeline. A single periodic driver calls Tick;
// the read methods may be called concurrently from the API.
type MonitorService interface {
	// Restore reloads open episodes from the store so tracking resumes
	// across restarts without fabricating closes.
	Restore(ctx context.Context) error

	// Tick processes one batch of snapshots: staleness sweep, episode
	// transitions, classification, persistence, notification.
	Tick(ctx context.Context, batch *secondary.Batch) (*TickReport, error)

	// SetSchedules replaces the cached zone schedules used for
	// classification context.
	SetSchedules(schedules map[string]schedule.Schedule)

	// CurrentZones returns the latest known state of every zone.
	CurrentZones() []ZoneStatus

	// Health returns poll-loop health counters.
	Health() HealthStatus

	// RecordPollError counts an upstream poll failure.
	RecordPollError()
}

// EventsRequest filters the episode list.
type EventsRequest struct {
	ZoneID         string
	Cause          string
	Days           int
	SuspiciousOnly bool
	Limit          int
}

// EventsResponse is the filtered episode list, newest first, with an
// explicit incompleteness indicator for windows reaching past retention.
type EventsResponse struct {
	Episodes   []*secondary.EpisodeRecord `json:"episodes"`
	Incomplete bool                       `json:"incomplete"`
}

// HistoryResponse is a zone's snapshot trail, ascending, with the same
// incompleteness indicator the episode queries carry: a window reaching past
// the retention horizon cannot be answered completely.
type HistoryResponse struct {
	Snapshots  []snapshot.Snapshot `json:"snapshots"`
	Incomplete bool                `json:"incomplete"`
}

// ZoneFlag marks a zone whose episode pattern suggests a systemic fault.
type ZoneFlag struct {
	ZoneID   string `json:"zone_id"`
	ZoneName string `json:"zone_name"`
	Reason   string `json:"reason"`
	Count    int    `json:"count"`
}

// DiagnosticsSummary aggregates stored episodes for forensic review.
type DiagnosticsSummary struct {
	Days             int                       `json:"days"`
	ZoneFrequency    []secondary.ZoneFrequency `json:"zone_frequency"`
	TimeDistribution []secondary.HourCount     `json:"time_distribution"`
	CauseCounts      []secondary.CauseCount    `json:"cause_distribution"`
	TotalOverrides   int                       `json:"total_overrides"`
	TotalSuspicious  int                       `json:"total_suspicious"`
	PatternFlags     []ZoneFlag                `json:"pattern_flags"`
	Incomplete       bool                      `json:"incomplete"`
}

// ForensicsService is the read-only query surface over the forensic store.
type ForensicsService interface {
	Events(ctx context.Context, req EventsRequest) (*EventsResponse, error)
	Summary(ctx context.Context, days int) (*DiagnosticsSummary, error)
	History(ctx context.Context, zoneID string, hours int) (*HistoryResponse, error)

	// PurgeExpired removes data older than the retention horizon. It is a
	// maintenance operation, never part of the hot path.
	PurgeExpired(ctx context.Context) (secondary.PurgeStats, error)
}
