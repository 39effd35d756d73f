package app

import (
	"context"
	"sort"
	"time"

	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// Ensure mockForensicStore implements the interface
var _ secondary.ForensicStore = (*mockForensicStore)(nil)

// mockForensicStore implements secondary.ForensicStore in memory for
// service tests, enforcing the same duplicate and closed-episode contracts
// as the real store.
type mockForensicStore struct {
	retentionDays int
	snapshots     map[string]snapshot.Snapshot // zone_id|ts -> snapshot
	episodes      map[string]*secondary.EpisodeRecord
	appendErr     error
	upsertErr     error
	queryErr      error
	purged        []time.Time
}

func newMockForensicStore() *mockForensicStore {
	return &mockForensicStore{
		retentionDays: 90,
		snapshots:     make(map[string]snapshot.Snapshot),
		episodes:      make(map[string]*secondary.EpisodeRecord),
	}
}

func snapKey(s snapshot.Snapshot) string {
	return s.ZoneID + "|" + s.Timestamp.UTC().Format(time.RFC3339)
}

func (m *mockForensicStore) AppendSnapshot(ctx context.Context, s snapshot.Snapshot) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	if existing, ok := m.snapshots[snapKey(s)]; ok {
		if existing.SamePayload(s) {
			return nil
		}
		return secondary.ErrDuplicateSnapshot
	}
	m.snapshots[snapKey(s)] = s
	return nil
}

func (m *mockForensicStore) UpsertEpisode(ctx context.Context, rec *secondary.EpisodeRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if existing, ok := m.episodes[rec.ID]; ok && existing.Status == secondary.StatusClosed {
		return secondary.ErrEpisodeClosed
	}
	clone := *rec
	m.episodes[rec.ID] = &clone
	return nil
}

func (m *mockForensicStore) OpenEpisodes(ctx context.Context) ([]*secondary.EpisodeRecord, error) {
	var out []*secondary.EpisodeRecord
	for _, rec := range m.episodes {
		if rec.Status == secondary.StatusOpen {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockForensicStore) QueryEpisodes(ctx context.Context, f secondary.EpisodeFilters) (*secondary.EpisodeQueryResult, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	days := f.Days
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	var out []*secondary.EpisodeRecord
	for _, rec := range m.episodes {
		if rec.StartTime.Before(cutoff) {
			continue
		}
		if f.ZoneID != "" && rec.ZoneID != f.ZoneID {
			continue
		}
		if f.Cause != "" && rec.Classification != f.Cause {
			continue
		}
		if f.SuspiciousOnly && !rec.Suspicious {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return &secondary.EpisodeQueryResult{
		Episodes:   out,
		Incomplete: days > m.retentionDays,
	}, nil
}

func (m *mockForensicStore) ZoneHistory(ctx context.Context, zoneID string, since time.Time) ([]snapshot.Snapshot, error) {
	var out []snapshot.Snapshot
	for _, s := range m.snapshots {
		if s.ZoneID == zoneID && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *mockForensicStore) ZoneFrequency(ctx context.Context, since time.Time) ([]secondary.ZoneFrequency, error) {
	byZone := make(map[string]*secondary.ZoneFrequency)
	for _, rec := range m.episodes {
		if rec.Status != secondary.StatusClosed || rec.StartTime.Before(since) {
			continue
		}
		zf, ok := byZone[rec.ZoneID]
		if !ok {
			zf = &secondary.ZoneFrequency{ZoneID: rec.ZoneID, ZoneName: rec.ZoneName}
			byZone[rec.ZoneID] = zf
		}
		zf.Episodes++
		if rec.Suspicious {
			zf.Suspicious++
		}
	}
	var out []secondary.ZoneFrequency
	for _, zf := range byZone {
		out = append(out, *zf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Episodes > out[j].Episodes })
	return out, nil
}

func (m *mockForensicStore) HourHistogram(ctx context.Context, since time.Time) ([]secondary.HourCount, error) {
	counts := make(map[int]int)
	for _, rec := range m.episodes {
		if !rec.StartTime.Before(since) {
			counts[rec.StartTime.UTC().Hour()]++
		}
	}
	var out []secondary.HourCount
	for h, c := range counts {
		out = append(out, secondary.HourCount{Hour: h, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

func (m *mockForensicStore) CauseDistribution(ctx context.Context, since time.Time) ([]secondary.CauseCount, error) {
	counts := make(map[string]int)
	for _, rec := range m.episodes {
		if !rec.StartTime.Before(since) && rec.Classification != "" {
			counts[rec.Classification]++
		}
	}
	var out []secondary.CauseCount
	for cause, c := range counts {
		out = append(out, secondary.CauseCount{Cause: cause, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (m *mockForensicStore) Purge(ctx context.Context, olderThan time.Time) (secondary.PurgeStats, error) {
	m.purged = append(m.purged, olderThan)
	var stats secondary.PurgeStats
	for key, s := range m.snapshots {
		if s.Timestamp.Before(olderThan) {
			delete(m.snapshots, key)
			stats.Snapshots++
		}
	}
	for id, rec := range m.episodes {
		if rec.Status == secondary.StatusClosed && rec.StartTime.Before(olderThan) {
			delete(m.episodes, id)
			stats.Episodes++
		}
	}
	return stats, nil
}

// Ensure mockNotifier implements the interface
var _ secondary.Notifier = (*mockNotifier)(nil)

// mockNotifier records every notification for assertion.
type mockNotifier struct {
	overrides []secondary.Alert
	cleared   []secondary.Clearance
	system    []string
	notifyErr error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{}
}

func (m *mockNotifier) NotifyOverride(ctx context.Context, a secondary.Alert) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.overrides = append(m.overrides, a)
	return nil
}

func (m *mockNotifier) NotifyCleared(ctx context.Context, c secondary.Clearance) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.cleared = append(m.cleared, c)
	return nil
}

func (m *mockNotifier) NotifySystem(ctx context.Context, message string) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.system = append(m.system, message)
	return nil
}
