// Package classify assigns a cause and confidence to an override episode.
//
// Classification is a pure function of the episode and its schedule context.
// The rules are evaluated in a fixed order and the first match wins: the
// signals are not mutually exclusive, so the order itself encodes which
// explanation is preferred when several fit. Adding a rule is an
// order-sensitive edit to the list in Classify.
package classify

import (
	"fmt"
	"time"

	"github.com/example/hearthwatch/internal/core/episode"
	"github.com/example/hearthwatch/internal/core/snapshot"
)

// Cause labels the likely origin of an override episode.
type Cause string

const (
	CauseFirmware35C    Cause = "firmware_35c"    // optimum-start 35°C firmware bug
	CauseFirmware5C     Cause = "firmware_5c"     // spurious drop to frost setpoint
	CausePreSchedDrop   Cause = "pre_sched_drop"  // override just before a scheduled decrease
	CauseThresholdStuck Cause = "threshold_stuck" // override stuck across a schedule boundary
	CauseCommsLoss      Cause = "comms_loss"      // RF/polling gap, not a real intervention
	CauseUserManual     Cause = "user_manual"     // legitimate user override
)

// Suspicious reports whether the cause indicates something other than a
// legitimate user intervention.
func (c Cause) Suspicious() bool {
	return c != CauseUserManual && c != ""
}

// Confidence is the ordinal certainty of a classification.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Params are the tunable thresholds behind the rules. The defaults are
// field-observed heuristics, not derived values; treat them as approximate.
type Params struct {
	HighSuspectTemp    float64       // firmware_35c trigger value
	LowSuspectTemp     float64       // firmware_5c trigger value
	TempTolerance      float64       // tolerance around the suspect values
	ThresholdWarning   float64       // schedule-proximity tolerance
	LeadWindowMin      time.Duration // pre_sched_drop lead window lower bound
	LeadWindowMax      time.Duration // pre_sched_drop lead window upper bound
	OptimumStartWindow time.Duration // how far ahead an optimum-start run looks
}

// DefaultParams returns the field-observed defaults.
func DefaultParams() Params {
	return Params{
		HighSuspectTemp:    35.0,
		LowSuspectTemp:     5.0,
		TempTolerance:      0.2,
		ThresholdWarning:   0.5,
		LeadWindowMin:      8 * time.Minute,
		LeadWindowMax:      15 * time.Minute,
		OptimumStartWindow: 3 * time.Hour,
	}
}

// Context is the schedule-derived evidence available when classifying. It
// is assembled by the caller from the zone's schedule at the episode's open
// and evaluation instants; the classifier itself never consults a clock.
type Context struct {
	HasSchedule   bool
	TargetAtOpen  float64 // expected target when the episode opened
	TargetAtEval  float64 // expected target at close (or current eval for open episodes)
	HasNextChange bool
	NextChangeAt  time.Time // first switchpoint after open
	NextTarget    float64

	// MinutesToIncrease is the distance from episode open to the next
	// scheduled increase, when one falls within the optimum-start window.
	MinutesToIncrease    int
	HasUpcomingIncrease  bool
	ScheduleTargets      []float64 // distinct setpoints the schedule ever uses
	GapBeforeOpen        bool      // polling gap immediately preceding the open
}

// Result is a frozen classification judgment.
type Result struct {
	Cause      Cause
	Confidence Confidence
	Ambiguous  bool   // fallback matched without positive evidence of legitimacy
	Notes      string // human-readable diagnostic for the forensic record
}

// Classify maps a (possibly still open) episode and its schedule context to
// a cause and confidence. Deterministic: identical inputs always yield the
// identical result. Degenerate episodes never exceed low confidence.
func Classify(ep *episode.Episode, ctx Context, p Params) Result {
	res := classify(ep, ctx, p)
	if ep.Degenerate && res.Confidence != ConfidenceLow {
		res.Confidence = ConfidenceLow
	}
	return res
}

func classify(ep *episode.Episode, ctx Context, p Params) Result {
	trigger := ep.TriggerTemp

	// Rule 1: the optimum-start 35°C firmware bug.
	if snapshot.TempsWithin(trigger, p.HighSuspectTemp, p.TempTolerance) && ctx.HasUpcomingIncrease {
		conf := ConfidenceMedium
		if ctx.MinutesToIncrease < 15 {
			conf = ConfidenceHigh
		}
		return Result{
			Cause:      CauseFirmware35C,
			Confidence: conf,
			Notes: fmt.Sprintf("trigger %.1f°C matches the %.1f°C bug value, %d min before a scheduled increase",
				trigger, p.HighSuspectTemp, ctx.MinutesToIncrease),
		}
	}

	// Rule 2: spurious drop to the frost setpoint with no scheduled drop
	// to that level.
	if snapshot.TempsWithin(trigger, p.LowSuspectTemp, p.TempTolerance) &&
		!(ctx.HasSchedule && snapshot.TempsWithin(ctx.TargetAtOpen, p.LowSuspectTemp, p.TempTolerance)) {
		conf := ConfidenceMedium
		if ctx.HasSchedule && !scheduleEverTargets(ctx.ScheduleTargets, p.LowSuspectTemp, p.TempTolerance) {
			conf = ConfidenceHigh
		}
		return Result{
			Cause:      CauseFirmware5C,
			Confidence: conf,
			Notes:      fmt.Sprintf("trigger %.1f°C matches the %.1f°C bug value with no scheduled drop to that level", trigger, p.LowSuspectTemp),
		}
	}

	// Rule 3: override opening just ahead of a scheduled decrease, at the
	// pre-drop target rather than a suspicious constant.
	if ctx.HasNextChange && ctx.NextTarget < ctx.TargetAtOpen {
		lead := ctx.NextChangeAt.Sub(ep.StartTime)
		if lead >= p.LeadWindowMin && lead <= p.LeadWindowMax &&
			snapshot.TempsWithin(trigger, ctx.TargetAtOpen, p.ThresholdWarning) {
			return Result{
				Cause:      CausePreSchedDrop,
				Confidence: ConfidenceMedium,
				Notes: fmt.Sprintf("opened %d min before a scheduled drop to %.1f°C at the pre-drop target",
					int(lead.Minutes()), ctx.NextTarget),
			}
		}
	}

	// Rule 4: episode persisted across a schedule boundary that should
	// have cleared it.
	if ctx.HasSchedule && !snapshot.TempsEqual(ctx.TargetAtEval, ctx.TargetAtOpen) &&
		snapshot.TempsWithin(trigger, ctx.TargetAtEval, p.ThresholdWarning) {
		return Result{
			Cause:      CauseThresholdStuck,
			Confidence: ConfidenceMedium,
			Notes: fmt.Sprintf("override held across a schedule boundary (%.1f°C → %.1f°C) within %.1f°C of the new target",
				ctx.TargetAtOpen, ctx.TargetAtEval, p.ThresholdWarning),
		}
	}

	// Rule 5: the episode's bounds were shaped by lost communication.
	if ep.Degenerate || ctx.GapBeforeOpen {
		return Result{
			Cause:      CauseCommsLoss,
			Confidence: ConfidenceLow,
			Notes:      "episode bounded by a polling gap rather than an observed transition",
		}
	}

	// Rule 6: user_manual fallback. The absence of every red flag is itself
	// a positive signal of legitimacy; a trigger in the suspicious set or a
	// boundary-aligned open means nothing matched cleanly and the result is
	// an ambiguous fallback at low confidence.
	suspiciousTrigger := snapshot.TempsWithin(trigger, p.HighSuspectTemp, p.TempTolerance) ||
		snapshot.TempsWithin(trigger, p.LowSuspectTemp, p.TempTolerance)
	boundaryAligned := false
	if ctx.HasNextChange {
		lead := ctx.NextChangeAt.Sub(ep.StartTime)
		boundaryAligned = lead >= 0 && lead <= p.LeadWindowMax
	}

	if !suspiciousTrigger && !boundaryAligned {
		return Result{
			Cause:      CauseUserManual,
			Confidence: ConfidenceHigh,
			Notes:      fmt.Sprintf("trigger %.1f°C shows no known failure pattern", trigger),
		}
	}

	return Result{
		Cause:      CauseUserManual,
		Confidence: ConfidenceLow,
		Ambiguous:  true,
		Notes:      "no rule matched cleanly; defaulting to user_manual",
	}
}

func scheduleEverTargets(targets []float64, temp, tol float64) bool {
	for _, t := range targets {
		if snapshot.TempsWithin(t, temp, tol) {
			return true
		}
	}
	return false
}
