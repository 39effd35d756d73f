package episode

import (
	"time"

	"github.com/example/hearthwatch/internal/core/snapshot"
)

// Transition describes what a snapshot (or a staleness sweep) did to a
// zone's state. At most one of Opened/Closed is set per observation; Updated
// is set when an already-open episode absorbed another override sample.
type Transition struct {
	Opened  *Episode
	Updated *Episode
	Closed  *Episode
}

type zoneState struct {
	lastSeen time.Time
	open     *Episode
}

// Tracker owns episode lifecycle for all zones. It is mutated only by the
// single poll driver; a zone absent from a batch is treated as "no new
// information", never as a mode change.
type Tracker struct {
	maxStaleness time.Duration
	zones        map[string]*zoneState
}

// NewTracker creates a tracker. maxStaleness bounds how long an open
// episode may go unobserved before it is closed degenerately.
func NewTracker(maxStaleness time.Duration) *Tracker {
	return &Tracker{
		maxStaleness: maxStaleness,
		zones:        make(map[string]*zoneState),
	}
}

// Resume seeds the tracker with episodes that were persisted open at the
// last shutdown, so a restart continues tracking instead of fabricating a
// close. The episode's last known activity is taken as its start time; the
// next sweep applies staleness from there.
func (t *Tracker) Resume(open []*Episode) {
	for _, ep := range open {
		if ep == nil || !ep.Open() {
			continue
		}
		t.zones[ep.ZoneID] = &zoneState{
			lastSeen: ep.StartTime,
			open:     ep,
		}
	}
}

// Observe applies one snapshot to its zone's state machine and returns the
// resulting transition. A snapshot whose timestamp does not advance the
// zone's clock returns ErrOutOfOrder and changes nothing.
func (t *Tracker) Observe(snap snapshot.Snapshot) (Transition, error) {
	zs, ok := t.zones[snap.ZoneID]
	if !ok {
		zs = &zoneState{}
		t.zones[snap.ZoneID] = zs
	}

	if !zs.lastSeen.IsZero() && !snap.Timestamp.After(zs.lastSeen) {
		return Transition{}, ErrOutOfOrder
	}

	gap := !zs.lastSeen.IsZero() && snap.Timestamp.Sub(zs.lastSeen) > t.maxStaleness
	zs.lastSeen = snap.Timestamp

	switch {
	case zs.open == nil && snap.IsOverride():
		ep := newEpisode(snap.ZoneID, snap.ZoneName, snap.Timestamp, snap.TargetTemp)
		// A gap right before the open is classification evidence; it
		// belongs to the episode, not just to this transition.
		ep.GapBeforeOpen = gap
		zs.open = ep
		return Transition{Opened: ep}, nil

	case zs.open != nil && snap.IsOverride():
		zs.open.SampleCount++
		return Transition{Updated: zs.open}, nil

	case zs.open != nil && !snap.IsOverride():
		ep := zs.open
		endTemp := snap.TargetTemp
		if err := ep.close(snap.Timestamp, &endTemp, false); err != nil {
			return Transition{}, err
		}
		zs.open = nil
		return Transition{Closed: ep}, nil
	}

	return Transition{}, nil
}

// Sweep closes every episode whose zone has gone unpolled for longer than
// the staleness limit, evaluated against now at the start of a tick. Such
// closes are degenerate: the transition out of override was never observed,
// so the end temperature is unknown and confidence downstream is capped.
func (t *Tracker) Sweep(now time.Time) []*Episode {
	var closed []*Episode
	for _, zs := range t.zones {
		if zs.open == nil {
			continue
		}
		if now.Sub(zs.lastSeen) <= t.maxStaleness {
			continue
		}
		ep := zs.open
		// End the episode at the staleness deadline, not at now, so the
		// recorded bound is deterministic across late sweeps.
		if err := ep.close(zs.lastSeen.Add(t.maxStaleness), nil, true); err != nil {
			continue
		}
		zs.open = nil
		closed = append(closed, ep)
	}
	return closed
}

// OpenEpisode returns the zone's open episode, or nil.
func (t *Tracker) OpenEpisode(zoneID string) *Episode {
	if zs, ok := t.zones[zoneID]; ok {
		return zs.open
	}
	return nil
}

// OpenCount returns the number of zones currently in an open episode.
func (t *Tracker) OpenCount() int {
	n := 0
	for _, zs := range t.zones {
		if zs.open != nil {
			n++
		}
	}
	return n
}

// LastSeen returns the timestamp of the zone's most recent snapshot.
func (t *Tracker) LastSeen(zoneID string) (time.Time, bool) {
	zs, ok := t.zones[zoneID]
	if !ok || zs.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return zs.lastSeen, true
}
