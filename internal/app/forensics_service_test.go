package app

import (
	"context"
	"testing"
	"time"

	"github.com/example/hearthwatch/internal/core/classify"
	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

func seedEpisode(t *testing.T, store *mockForensicStore, id, zone string, start time.Time, cause string, suspicious bool) {
	t.Helper()
	end := start.Add(20 * time.Minute)
	if err := store.UpsertEpisode(context.Background(), &secondary.EpisodeRecord{
		ID: id, ZoneID: zone, ZoneName: zone,
		StartTime: start, EndTime: &end, TriggerTemp: 21.0,
		Status:         secondary.StatusClosed,
		Classification: cause, Confidence: "medium",
		Suspicious: suspicious, SampleCount: 4,
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestEventsFiltersAndIncomplete(t *testing.T) {
	store := newMockForensicStore()
	svc := NewForensicsService(store, 90)
	ctx := context.Background()
	now := time.Now()

	seedEpisode(t, store, "ep-1", "lr", now.Add(-2*time.Hour), string(classify.CauseFirmware35C), true)
	seedEpisode(t, store, "ep-2", "kitchen", now.Add(-time.Hour), string(classify.CauseUserManual), false)

	resp, err := svc.Events(ctx, primary.EventsRequest{Days: 7, SuspiciousOnly: true})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(resp.Episodes) != 1 || resp.Episodes[0].ID != "ep-1" {
		t.Fatalf("suspicious events = %+v, want just ep-1", resp.Episodes)
	}
	if resp.Incomplete {
		t.Error("7-day window within retention should be complete")
	}

	resp, err = svc.Events(ctx, primary.EventsRequest{Days: 365})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !resp.Incomplete {
		t.Error("365-day window past 90-day retention must be flagged incomplete")
	}
}

func TestSummaryAggregatesAndFlags(t *testing.T) {
	store := newMockForensicStore()
	svc := NewForensicsService(store, 90)
	ctx := context.Background()
	now := time.Now()

	// lr: three stuck episodes, enough to flag the zone
	for i, id := range []string{"ep-1", "ep-2", "ep-3"} {
		seedEpisode(t, store, id, "lr", now.Add(-time.Duration(i+1)*24*time.Hour),
			string(classify.CauseThresholdStuck), true)
	}
	seedEpisode(t, store, "ep-4", "kitchen", now.Add(-time.Hour), string(classify.CauseUserManual), false)

	summary, err := svc.Summary(ctx, 30)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalOverrides != 4 {
		t.Errorf("total overrides = %d, want 4", summary.TotalOverrides)
	}
	if summary.TotalSuspicious != 3 {
		t.Errorf("total suspicious = %d, want 3", summary.TotalSuspicious)
	}
	if len(summary.ZoneFrequency) != 2 || summary.ZoneFrequency[0].ZoneID != "lr" {
		t.Errorf("zone frequency = %+v, want lr first", summary.ZoneFrequency)
	}
	if len(summary.CauseCounts) != 2 {
		t.Errorf("cause counts = %+v", summary.CauseCounts)
	}
	if summary.Incomplete {
		t.Error("30-day summary within retention should be complete")
	}

	if len(summary.PatternFlags) != 1 {
		t.Fatalf("pattern flags = %+v, want exactly lr flagged", summary.PatternFlags)
	}
	flag := summary.PatternFlags[0]
	if flag.ZoneID != "lr" || flag.Count != 3 {
		t.Errorf("flag = %+v, want lr with count 3", flag)
	}
}

func TestSummaryBelowFlagThreshold(t *testing.T) {
	store := newMockForensicStore()
	svc := NewForensicsService(store, 90)
	now := time.Now()

	seedEpisode(t, store, "ep-1", "lr", now.Add(-24*time.Hour), string(classify.CauseThresholdStuck), true)
	seedEpisode(t, store, "ep-2", "lr", now.Add(-48*time.Hour), string(classify.CauseThresholdStuck), true)

	summary, err := svc.Summary(context.Background(), 30)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.PatternFlags) != 0 {
		t.Errorf("two stuck episodes must not flag the zone, got %+v", summary.PatternFlags)
	}
}

func TestHistoryDefaultsWindow(t *testing.T) {
	store := newMockForensicStore()
	svc := NewForensicsService(store, 90)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	recent := snapshot.Snapshot{
		ZoneID: "lr", ZoneName: "Living Room",
		Timestamp: now.Add(-time.Hour), CurrentTemp: 19.0, TargetTemp: 21.0,
		Mode: snapshot.ModeScheduled, Available: true,
	}
	old := recent
	old.Timestamp = now.Add(-48 * time.Hour)
	for _, s := range []snapshot.Snapshot{recent, old} {
		if err := store.AppendSnapshot(ctx, s); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp, err := svc.History(ctx, "lr", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(resp.Snapshots) != 1 || !resp.Snapshots[0].Timestamp.Equal(recent.Timestamp) {
		t.Errorf("default 24h history = %+v, want only the recent snapshot", resp.Snapshots)
	}
	if resp.Incomplete {
		t.Error("24h window within retention should be complete")
	}

	// a window reaching past the 90-day retention horizon is flagged
	resp, err = svc.History(ctx, "lr", 24*120)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !resp.Incomplete {
		t.Error("120-day window past retention must be flagged incomplete")
	}
}

func TestPurgeExpiredUsesRetention(t *testing.T) {
	store := newMockForensicStore()
	svc := NewForensicsService(store, 90)
	now := time.Now()

	seedEpisode(t, store, "ep-old", "lr", now.AddDate(0, 0, -120), string(classify.CauseUserManual), false)
	seedEpisode(t, store, "ep-new", "lr", now.Add(-time.Hour), string(classify.CauseUserManual), false)

	stats, err := svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if stats.Episodes != 1 {
		t.Errorf("purged episodes = %d, want 1", stats.Episodes)
	}
	if len(store.purged) != 1 {
		t.Fatal("purge cutoff not recorded")
	}
	wantCutoff := now.AddDate(0, 0, -90)
	if diff := store.purged[0].Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", store.purged[0], wantCutoff)
	}
}
