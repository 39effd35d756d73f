// Package snapshot defines the immutable per-zone poll reading that feeds
// the override tracking pipeline.
package snapshot

import (
	"math"
	"strings"
	"time"
)

// Mode is the controller-reported setpoint mode for a zone.
type Mode string

const (
	ModeScheduled Mode = "scheduled"
	ModeOverride  Mode = "override"
	ModeOff       Mode = "off"
	ModeUnknown   Mode = "unknown"
)

// ParseMode maps controller-reported mode strings onto the closed Mode set.
// Evohome-style controllers report "FollowSchedule", "TemporaryOverride" and
// "PermanentOverride"; both override variants collapse to ModeOverride.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled", "followschedule", "schedule", "auto":
		return ModeScheduled
	case "override", "temporaryoverride", "permanentoverride", "manual":
		return ModeOverride
	case "off", "heatingoff":
		return ModeOff
	default:
		return ModeUnknown
	}
}

// Snapshot is one poll's reading of one zone. Exactly one snapshot exists
// per (ZoneID, Timestamp) pair and it is never mutated once stored.
type Snapshot struct {
	ZoneID          string    `json:"zone_id"`
	ZoneName        string    `json:"zone_name"`
	Timestamp       time.Time `json:"timestamp"`
	CurrentTemp     float64   `json:"current_temp"`
	TargetTemp      float64   `json:"target_temp"`
	Mode            Mode      `json:"mode"`
	ScheduledTarget float64   `json:"scheduled_target"`
	Available       bool      `json:"available"`
}

// IsOverride reports whether the zone is in an override mode.
func (s Snapshot) IsOverride() bool {
	return s.Mode == ModeOverride
}

// SamePayload reports whether two snapshots for the same key carry the same
// reading. Temperatures compare at one-decimal precision, which is the
// resolution the controller reports.
func (s Snapshot) SamePayload(o Snapshot) bool {
	return s.ZoneID == o.ZoneID &&
		s.Timestamp.Equal(o.Timestamp) &&
		s.Mode == o.Mode &&
		s.Available == o.Available &&
		TempsEqual(s.CurrentTemp, o.CurrentTemp) &&
		TempsEqual(s.TargetTemp, o.TargetTemp) &&
		TempsEqual(s.ScheduledTarget, o.ScheduledTarget)
}

// TempsEqual compares two temperatures at one-decimal precision.
func TempsEqual(a, b float64) bool {
	return math.Round(a*10) == math.Round(b*10)
}

// TempsWithin reports whether a is within tol of b.
func TempsWithin(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol+1e-9
}
