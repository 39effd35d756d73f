// Package schedule models a zone's weekly switchpoint schedule and answers
// the "what should this zone be doing right now" questions the classifier
// depends on. The schedule is queried independently of the controller's
// reported target, so a lying controller cannot hide an override.
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Switchpoint is one scheduled setpoint change: at Minute minutes after
// midnight on Day, the zone's expected target becomes Setpoint.
type Switchpoint struct {
	Day      time.Weekday
	Minute   int
	Setpoint float64
}

// MinuteOf parses an "HH:MM" time-of-day into minutes after midnight.
func MinuteOf(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// Schedule is a zone's weekly plan. The zero value means "no schedule
// known"; callers must treat query results as unavailable in that case.
type Schedule struct {
	switchpoints []Switchpoint
}

// New builds a Schedule from switchpoints, sorted into week order.
func New(points []Switchpoint) Schedule {
	sorted := make([]Switchpoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].Minute < sorted[j].Minute
	})
	return Schedule{switchpoints: sorted}
}

// IsZero reports whether the schedule has no switchpoints.
func (s Schedule) IsZero() bool {
	return len(s.switchpoints) == 0
}

// weekMinute converts an instant to minutes since Sunday 00:00 local time.
func weekMinute(at time.Time) int {
	return int(at.Weekday())*24*60 + at.Hour()*60 + at.Minute()
}

func (sp Switchpoint) weekMinute() int {
	return int(sp.Day)*24*60 + sp.Minute
}

const minutesPerWeek = 7 * 24 * 60

// TargetAt returns the setpoint the schedule expects at the given instant.
// The active switchpoint is the most recent one at or before the instant,
// wrapping to the previous week when the instant precedes the first
// switchpoint of the week.
func (s Schedule) TargetAt(at time.Time) (float64, bool) {
	if s.IsZero() {
		return 0, false
	}
	now := weekMinute(at)
	best := -1
	var target float64
	for _, sp := range s.switchpoints {
		if sp.weekMinute() <= now && sp.weekMinute() > best {
			best = sp.weekMinute()
			target = sp.Setpoint
		}
	}
	if best < 0 {
		// Before the week's first switchpoint: the last one still applies.
		last := s.switchpoints[0]
		for _, sp := range s.switchpoints {
			if sp.weekMinute() > last.weekMinute() {
				last = sp
			}
		}
		return last.Setpoint, true
	}
	return target, true
}

// NextChange returns the first switchpoint strictly after the given instant
// whose setpoint differs from the target in force at that instant, along
// with its setpoint. It wraps across the week boundary.
func (s Schedule) NextChange(at time.Time) (time.Time, float64, bool) {
	if s.IsZero() {
		return time.Time{}, 0, false
	}
	current, _ := s.TargetAt(at)
	now := weekMinute(at)

	bestDelta := -1
	var bestTarget float64
	for _, sp := range s.switchpoints {
		if sp.Setpoint == current {
			continue
		}
		delta := sp.weekMinute() - now
		if delta <= 0 {
			delta += minutesPerWeek
		}
		if bestDelta < 0 || delta < bestDelta {
			bestDelta = delta
			bestTarget = sp.Setpoint
		}
	}
	if bestDelta < 0 {
		return time.Time{}, 0, false
	}
	changeAt := at.Truncate(time.Minute).Add(time.Duration(bestDelta) * time.Minute)
	return changeAt, bestTarget, true
}

// MinutesToIncrease returns the minutes until the next switchpoint that
// raises the expected target, if one occurs within the horizon. This is the
// window an optimum-start run would be active in.
func (s Schedule) MinutesToIncrease(at time.Time, horizon time.Duration) (int, bool) {
	if s.IsZero() {
		return 0, false
	}
	current, _ := s.TargetAt(at)
	now := weekMinute(at)

	bestDelta := -1
	prev := current
	// Walk the week in time order from "now", tracking the in-force target
	// so an increase relative to the preceding period is detected even when
	// it is not an increase relative to the current one.
	type step struct {
		delta    int
		setpoint float64
	}
	var steps []step
	for _, sp := range s.switchpoints {
		delta := sp.weekMinute() - now
		if delta <= 0 {
			delta += minutesPerWeek
		}
		steps = append(steps, step{delta, sp.Setpoint})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].delta < steps[j].delta })
	for _, st := range steps {
		if st.setpoint > prev {
			bestDelta = st.delta
			break
		}
		prev = st.setpoint
	}
	if bestDelta < 0 || time.Duration(bestDelta)*time.Minute > horizon {
		return 0, false
	}
	return bestDelta, true
}

// Setpoints returns the distinct setpoints the schedule ever targets.
func (s Schedule) Setpoints() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, sp := range s.switchpoints {
		if !seen[sp.Setpoint] {
			seen[sp.Setpoint] = true
			out = append(out, sp.Setpoint)
		}
	}
	sort.Float64s(out)
	return out
}
