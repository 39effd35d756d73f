package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/core/classify"
	"github.com/example/hearthwatch/internal/core/schedule"
	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

func newTestMonitor(store *mockForensicStore, notifier *mockNotifier) *MonitorServiceImpl {
	return NewMonitorService(store, notifier, zap.NewNop(), 15*time.Minute, classify.DefaultParams())
}

func zoneSnap(ts time.Time, mode snapshot.Mode, target float64) snapshot.Snapshot {
	return snapshot.Snapshot{
		ZoneID:          "lr",
		ZoneName:        "Living Room",
		Timestamp:       ts,
		CurrentTemp:     19.0,
		TargetTemp:      target,
		Mode:            mode,
		ScheduledTarget: 21.0,
		Available:       true,
	}
}

func batchOf(ts time.Time, snaps ...snapshot.Snapshot) *secondary.Batch {
	return &secondary.Batch{Timestamp: ts, Snapshots: snaps}
}

func TestTickOpensAndClosesEpisode(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	svc := newTestMonitor(store, notifier)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	report, err := svc.Tick(ctx, batchOf(base, zoneSnap(base, snapshot.ModeScheduled, 21.0)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Opened != 0 || report.Closed != 0 {
		t.Errorf("scheduled snapshot opened/closed something: %+v", report)
	}

	// override appears
	t1 := base.Add(5 * time.Minute)
	report, err = svc.Tick(ctx, batchOf(t1, zoneSnap(t1, snapshot.ModeOverride, 25.0)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Opened != 1 {
		t.Fatalf("opened = %d, want 1", report.Opened)
	}
	if len(notifier.overrides) != 1 {
		t.Fatalf("override alerts = %d, want 1", len(notifier.overrides))
	}
	alert := notifier.overrides[0]
	if alert.ZoneID != "lr" || alert.TriggerTemp != 25.0 {
		t.Errorf("alert = %+v", alert)
	}
	if alert.Cause != string(classify.CauseUserManual) {
		t.Errorf("25.0 with no schedule context should classify user_manual, got %s", alert.Cause)
	}

	// a persisted open record exists
	open, _ := store.OpenEpisodes(ctx)
	if len(open) != 1 {
		t.Fatalf("persisted open episodes = %d, want 1", len(open))
	}

	// back to schedule
	t2 := base.Add(10 * time.Minute)
	report, err = svc.Tick(ctx, batchOf(t2, zoneSnap(t2, snapshot.ModeScheduled, 21.0)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Closed != 1 {
		t.Fatalf("closed = %d, want 1", report.Closed)
	}
	if len(notifier.cleared) != 1 {
		t.Fatalf("clearances = %d, want 1", len(notifier.cleared))
	}
	if notifier.cleared[0].Duration != 5*time.Minute {
		t.Errorf("duration = %v, want 5m", notifier.cleared[0].Duration)
	}

	open, _ = store.OpenEpisodes(ctx)
	if len(open) != 0 {
		t.Error("episode should be persisted closed")
	}
}

func TestTickSweepClosesStaleEpisode(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	svc := newTestMonitor(store, notifier)
	ctx := context.Background()
	// recent base so the Days-windowed query below sees the episode
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	if _, err := svc.Tick(ctx, batchOf(base, zoneSnap(base, snapshot.ModeOverride, 25.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// next batch arrives 20 minutes later with no reading for the zone
	late := base.Add(20 * time.Minute)
	report, err := svc.Tick(ctx, batchOf(late))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Degenerate != 1 || report.Closed != 1 {
		t.Fatalf("report = %+v, want one degenerate close", report)
	}

	// no clearance alert for a degenerate close, only the open alert
	if len(notifier.cleared) != 0 {
		t.Error("degenerate close must not produce a clearance notification")
	}

	res, _ := store.QueryEpisodes(ctx, secondary.EpisodeFilters{Days: 1})
	if len(res.Episodes) != 1 {
		t.Fatalf("stored episodes = %d, want 1", len(res.Episodes))
	}
	rec := res.Episodes[0]
	if !rec.Degenerate || rec.Status != secondary.StatusClosed {
		t.Errorf("record = %+v, want closed degenerate", rec)
	}
	if rec.Confidence != string(classify.ConfidenceLow) {
		t.Errorf("degenerate confidence = %s, want low", rec.Confidence)
	}
	wantEnd := base.Add(15 * time.Minute)
	if rec.EndTime == nil || !rec.EndTime.Equal(wantEnd) {
		t.Errorf("end time = %v, want staleness deadline %v", rec.EndTime, wantEnd)
	}
}

func TestGapOpenKeepsCommsLossWhenClosed(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	svc := newTestMonitor(store, notifier)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	if _, err := svc.Tick(ctx, batchOf(base, zoneSnap(base, snapshot.ModeScheduled, 21.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// the next reading arrives in override after a 20-minute polling gap
	t1 := base.Add(20 * time.Minute)
	if _, err := svc.Tick(ctx, batchOf(t1, zoneSnap(t1, snapshot.ModeOverride, 25.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(notifier.overrides) != 1 {
		t.Fatalf("alerts = %d, want 1", len(notifier.overrides))
	}
	if got := notifier.overrides[0].Cause; got != string(classify.CauseCommsLoss) {
		t.Fatalf("alert cause = %s, want comms_loss for a gap-bounded open", got)
	}

	// the transition out is observed shortly after
	t2 := base.Add(25 * time.Minute)
	if _, err := svc.Tick(ctx, batchOf(t2, zoneSnap(t2, snapshot.ModeScheduled, 21.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}

	res, _ := store.QueryEpisodes(ctx, secondary.EpisodeFilters{Days: 1})
	if len(res.Episodes) != 1 {
		t.Fatalf("stored episodes = %d, want 1", len(res.Episodes))
	}
	rec := res.Episodes[0]
	if rec.Status != secondary.StatusClosed {
		t.Fatalf("status = %s, want closed", rec.Status)
	}
	// the frozen record must match what was alerted: the gap evidence may
	// not be dropped when the episode is reclassified at close
	if rec.Classification != string(classify.CauseCommsLoss) {
		t.Errorf("classification = %s, want comms_loss", rec.Classification)
	}
	if rec.Confidence != string(classify.ConfidenceLow) {
		t.Errorf("confidence = %s, want low", rec.Confidence)
	}
	if !rec.Suspicious {
		t.Error("comms_loss record must stay marked suspicious")
	}
	if !rec.GapBeforeOpen {
		t.Error("gap flag should be persisted on the record")
	}
}

func TestTickClassifiesFirmware35C(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	svc := newTestMonitor(store, notifier)
	ctx := context.Background()

	// Monday 06:30 increase to 21.0; the override opens 06:20 at 35.0
	svc.SetSchedules(map[string]schedule.Schedule{
		"lr": schedule.New([]schedule.Switchpoint{
			{Day: time.Monday, Minute: 6*60 + 30, Setpoint: 21.0},
			{Day: time.Monday, Minute: 22 * 60, Setpoint: 16.0},
		}),
	})

	open := time.Date(2026, 1, 5, 6, 20, 0, 0, time.UTC)
	if _, err := svc.Tick(ctx, batchOf(open, zoneSnap(open, snapshot.ModeOverride, 35.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(notifier.overrides) != 1 {
		t.Fatalf("alerts = %d, want 1", len(notifier.overrides))
	}
	alert := notifier.overrides[0]
	if alert.Cause != string(classify.CauseFirmware35C) {
		t.Errorf("cause = %s, want firmware_35c", alert.Cause)
	}
	if alert.Confidence != string(classify.ConfidenceHigh) {
		t.Errorf("confidence = %s, want high for a 10-minute lead", alert.Confidence)
	}
	if !alert.Suspicious {
		t.Error("firmware_35c alert must be marked suspicious")
	}
}

func TestTickSkipsUnavailableAndOutOfOrder(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	svc := newTestMonitor(store, notifier)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	unavailable := zoneSnap(base, snapshot.ModeOverride, 25.0)
	unavailable.Available = false
	report, err := svc.Tick(ctx, batchOf(base, unavailable))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Skipped != 1 || report.Opened != 0 {
		t.Errorf("unavailable snapshot: report = %+v, want skipped only", report)
	}

	// the unavailable reading is still persisted for forensics
	history, _ := store.ZoneHistory(ctx, "lr", base.Add(-time.Hour))
	if len(history) != 1 {
		t.Error("unavailable snapshot should still be appended")
	}

	// advance, then replay an older timestamp
	t1 := base.Add(5 * time.Minute)
	if _, err := svc.Tick(ctx, batchOf(t1, zoneSnap(t1, snapshot.ModeScheduled, 21.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}
	report, err = svc.Tick(ctx, batchOf(t1, zoneSnap(base.Add(time.Minute), snapshot.ModeOverride, 25.0)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Skipped != 1 || report.Opened != 0 {
		t.Errorf("out-of-order snapshot: report = %+v, want skipped only", report)
	}
}

func TestRestoreResumesOpenEpisode(t *testing.T) {
	store := newMockForensicStore()
	notifier := newMockNotifier()
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	// an episode persisted open by a previous run
	if err := store.UpsertEpisode(ctx, &secondary.EpisodeRecord{
		ID: "ep-1", ZoneID: "lr", ZoneName: "Living Room",
		StartTime: start, TriggerTemp: 25.0,
		Status: secondary.StatusOpen, SampleCount: 2,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newTestMonitor(store, notifier)
	if err := svc.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if svc.Health().OpenEpisodes != 1 {
		t.Fatal("restore should leave one open episode tracked")
	}

	// the override clears: the resumed episode closes without a new open
	t1 := start.Add(5 * time.Minute)
	report, err := svc.Tick(ctx, batchOf(t1, zoneSnap(t1, snapshot.ModeScheduled, 21.0)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Closed != 1 || report.Opened != 0 {
		t.Fatalf("report = %+v, want one close", report)
	}
	if len(notifier.overrides) != 0 {
		t.Error("restore must not re-alert for an already-open episode")
	}
	res, _ := store.QueryEpisodes(ctx, secondary.EpisodeFilters{Days: 1})
	if len(res.Episodes) != 1 || res.Episodes[0].ID != "ep-1" {
		t.Fatalf("episodes = %+v, want the resumed ep-1 closed", res.Episodes)
	}
	if res.Episodes[0].Status != secondary.StatusClosed {
		t.Error("resumed episode should be persisted closed")
	}
}

func TestHealthCounters(t *testing.T) {
	store := newMockForensicStore()
	svc := newTestMonitor(store, newMockNotifier())
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	svc.RecordPollError()
	svc.RecordPollError()
	h := svc.Health()
	if h.ErrorCount != 2 || h.ConsecutiveErrors != 2 {
		t.Errorf("health = %+v, want 2 errors, 2 consecutive", h)
	}

	if _, err := svc.Tick(ctx, batchOf(base, zoneSnap(base, snapshot.ModeScheduled, 21.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}
	h = svc.Health()
	if h.ConsecutiveErrors != 0 {
		t.Error("a successful tick should reset consecutive errors")
	}
	if h.ErrorCount != 2 {
		t.Error("total error count should survive a successful tick")
	}
	if h.PollCount != 1 || h.ZoneCount != 1 || !h.LastPoll.Equal(base) {
		t.Errorf("health = %+v", h)
	}
}

func TestCurrentZonesReflectsOverride(t *testing.T) {
	store := newMockForensicStore()
	svc := newTestMonitor(store, newMockNotifier())
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Tick(ctx, batchOf(base, zoneSnap(base, snapshot.ModeOverride, 25.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}

	zones := svc.CurrentZones()
	if len(zones) != 1 {
		t.Fatalf("zones = %d, want 1", len(zones))
	}
	z := zones[0]
	if z.OverrideSince == nil || !z.OverrideSince.Equal(base) {
		t.Errorf("override since = %v, want %v", z.OverrideSince, base)
	}

	t1 := base.Add(5 * time.Minute)
	if _, err := svc.Tick(ctx, batchOf(t1, zoneSnap(t1, snapshot.ModeScheduled, 21.0))); err != nil {
		t.Fatalf("tick: %v", err)
	}
	zones = svc.CurrentZones()
	if zones[0].OverrideSince != nil {
		t.Error("override since should clear when the episode closes")
	}
}
