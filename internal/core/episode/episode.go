// Package episode turns a zone's snapshot sequence into bounded override
// episodes. Each zone runs an independent two-state machine (Normal and
// OverrideOpen); cross-zone correlation belongs to the statistics layer.
package episode

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrOutOfOrder is returned when a snapshot's timestamp does not advance a
// zone's clock. The snapshot carries no usable information and the zone's
// state is left unchanged.
var ErrOutOfOrder = errors.New("snapshot out of order")

// ErrClosed is returned when a mutation is attempted on a closed episode.
var ErrClosed = errors.New("episode already closed")

// Episode is a contiguous span during which a zone's reported mode was
// override. TriggerTemp records the first observed override target, which
// is the diagnostic value; later target changes only bump SampleCount.
type Episode struct {
	ID          string
	ZoneID      string
	ZoneName    string
	StartTime   time.Time
	EndTime     *time.Time
	TriggerTemp float64
	EndTemp     *float64
	Degenerate  bool

	// GapBeforeOpen marks an open preceded by a polling gap longer than
	// the staleness limit. Part of the episode's evidence, so it survives
	// reclassification at close and restarts.
	GapBeforeOpen bool

	SampleCount int
}

// Open reports whether the episode has not been closed yet.
func (e *Episode) Open() bool {
	return e.EndTime == nil
}

// Duration returns the episode length, or the time since open for an open
// episode measured against now.
func (e *Episode) Duration(now time.Time) time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return now.Sub(e.StartTime)
}

func (e *Episode) close(at time.Time, endTemp *float64, degenerate bool) error {
	if !e.Open() {
		return ErrClosed
	}
	end := at
	e.EndTime = &end
	e.EndTemp = endTemp
	e.Degenerate = degenerate
	return nil
}

func newEpisode(zoneID, zoneName string, at time.Time, triggerTemp float64) *Episode {
	return &Episode{
		ID:          uuid.NewString(),
		ZoneID:      zoneID,
		ZoneName:    zoneName,
		StartTime:   at,
		TriggerTemp: triggerTemp,
		SampleCount: 1,
	}
}
