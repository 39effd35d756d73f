package secondary

import (
	"context"
	"time"

	"github.com/example/hearthwatch/internal/core/schedule"
	"github.com/example/hearthwatch/internal/core/snapshot"
)

// Batch is one tick's worth of zone snapshots. The provider guarantees at
// most one snapshot per zone per batch, with per-zone timestamps that only
// move forward between batches.
type Batch struct {
	Timestamp time.Time
	Snapshots []snapshot.Snapshot
}

// ZoneProvider is the upstream controller collaborator: it supplies the
// current reading of every zone and, separately, the zones' configured
// schedules for forensic context.
type ZoneProvider interface {
	// Poll returns the latest known state of all zones.
	Poll(ctx context.Context) (*Batch, error)

	// Schedules returns the zones' configured weekly schedules, keyed by
	// zone id. Zones without a known schedule are absent from the map.
	Schedules(ctx context.Context) (map[string]schedule.Schedule, error)

	// Close releases the upstream connection.
	Close() error
}
