// Package secondary defines the secondary ports (driven adapters) for the
// monitor: the forensic store, the upstream zone provider, and the outbound
// notifier. The application drives external systems only through these
// interfaces.
package secondary

import (
	"context"
	"errors"
	"time"

	"github.com/example/hearthwatch/internal/core/snapshot"
)

// ErrDuplicateSnapshot is returned when a snapshot is appended for an
// existing (zone_id, timestamp) key with a payload that differs from the
// stored one. An identical payload is a tolerated poll retry and succeeds
// as a no-op.
var ErrDuplicateSnapshot = errors.New("snapshot key exists with different payload")

// ErrEpisodeClosed is returned when a write targets an episode that has
// already been persisted closed. Closure is terminal; this error implies a
// lifecycle bug upstream and must never be swallowed.
var ErrEpisodeClosed = errors.New("episode already closed in store")

// EpisodeRecord is an episode as stored. The tracker owns the lifecycle;
// the store only persists the states it is handed.
type EpisodeRecord struct {
	ID             string
	ZoneID         string
	ZoneName       string
	StartTime      time.Time
	EndTime        *time.Time
	TriggerTemp    float64
	EndTemp        *float64
	Status         string // "open" | "closed"
	Degenerate     bool
	GapBeforeOpen  bool
	Classification string
	Confidence     string
	Ambiguous      bool
	Suspicious     bool
	Notes          string
	SampleCount    int
}

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// EpisodeFilters narrows an episode query.
type EpisodeFilters struct {
	ZoneID         string
	Cause          string
	Days           int // window size; 0 means the default 30 days
	SuspiciousOnly bool
	Limit          int
}

// EpisodeQueryResult carries query results plus an explicit incompleteness
// indicator: when the requested window reaches past the retention horizon,
// purged rows cannot be distinguished from absent ones.
type EpisodeQueryResult struct {
	Episodes   []*EpisodeRecord
	Incomplete bool
}

// ZoneFrequency is one zone's episode counts over a window.
type ZoneFrequency struct {
	ZoneID     string
	ZoneName   string
	Episodes   int
	Suspicious int
}

// HourCount is one hour-of-day bucket of episode opens.
type HourCount struct {
	Hour  int
	Count int
}

// CauseCount is one classification's episode count over a window.
type CauseCount struct {
	Cause string
	Count int
}

// PurgeStats reports what a retention purge removed.
type PurgeStats struct {
	Snapshots int64
	Episodes  int64
}

// ForensicStore is the append-only persistence contract for snapshots and
// episodes. Writes come from the single tracking pipeline; reads may arrive
// concurrently from dashboard and statistics paths and must not block on
// in-flight appends.
type ForensicStore interface {
	// AppendSnapshot persists a snapshot. Idempotent on identical
	// duplicates; differing payload for an existing key fails with
	// ErrDuplicateSnapshot.
	AppendSnapshot(ctx context.Context, s snapshot.Snapshot) error

	// UpsertEpisode inserts or updates an episode record. Once a closed
	// record is written, any further write for the id fails with
	// ErrEpisodeClosed.
	UpsertEpisode(ctx context.Context, rec *EpisodeRecord) error

	// OpenEpisodes returns every episode persisted open, for restart
	// recovery.
	OpenEpisodes(ctx context.Context) ([]*EpisodeRecord, error)

	// QueryEpisodes returns episodes matching the filters, start_time
	// descending.
	QueryEpisodes(ctx context.Context, f EpisodeFilters) (*EpisodeQueryResult, error)

	// ZoneHistory returns the zone's snapshots since the given instant,
	// ascending by timestamp.
	ZoneHistory(ctx context.Context, zoneID string, since time.Time) ([]snapshot.Snapshot, error)

	// ZoneFrequency aggregates closed-episode counts per zone since the
	// given instant.
	ZoneFrequency(ctx context.Context, since time.Time) ([]ZoneFrequency, error)

	// HourHistogram buckets episode opens by hour of day since the given
	// instant.
	HourHistogram(ctx context.Context, since time.Time) ([]HourCount, error)

	// CauseDistribution aggregates episode counts per classification since
	// the given instant.
	CauseDistribution(ctx context.Context, since time.Time) ([]CauseCount, error)

	// Purge removes snapshots and closed episodes older than the cutoff.
	// Open episodes are never purged.
	Purge(ctx context.Context, olderThan time.Time) (PurgeStats, error)
}
