package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/hearthwatch/internal/core/classify"
	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// Ensure ForensicsServiceImpl implements the interface
var _ primary.ForensicsService = (*ForensicsServiceImpl)(nil)

// stuckFlagThreshold is how many threshold_stuck episodes a zone needs in
// the summary window before it is flagged as a likely valve or RF fault
// rather than coincidence.
const stuckFlagThreshold = 3

// ForensicsServiceImpl is the read-only query surface over the forensic
// store, plus the retention purge.
type ForensicsServiceImpl struct {
	store         secondary.ForensicStore
	retentionDays int
}

// NewForensicsService creates a forensics service with injected dependencies.
func NewForensicsService(store secondary.ForensicStore, retentionDays int) *ForensicsServiceImpl {
	return &ForensicsServiceImpl{
		store:         store,
		retentionDays: retentionDays,
	}
}

// Events returns episodes matching the request, newest first.
func (s *ForensicsServiceImpl) Events(ctx context.Context, req primary.EventsRequest) (*primary.EventsResponse, error) {
	result, err := s.store.QueryEpisodes(ctx, secondary.EpisodeFilters{
		ZoneID:         req.ZoneID,
		Cause:          req.Cause,
		Days:           req.Days,
		SuspiciousOnly: req.SuspiciousOnly,
		Limit:          req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	return &primary.EventsResponse{
		Episodes:   result.Episodes,
		Incomplete: result.Incomplete,
	}, nil
}

// Summary aggregates stored episodes over the last days days.
func (s *ForensicsServiceImpl) Summary(ctx context.Context, days int) (*primary.DiagnosticsSummary, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	freq, err := s.store.ZoneFrequency(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate zone frequency: %w", err)
	}
	hours, err := s.store.HourHistogram(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hour histogram: %w", err)
	}
	causes, err := s.store.CauseDistribution(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cause distribution: %w", err)
	}

	summary := &primary.DiagnosticsSummary{
		Days:             days,
		ZoneFrequency:    freq,
		TimeDistribution: hours,
		CauseCounts:      causes,
		Incomplete:       days > s.retentionDays,
	}
	for _, zf := range freq {
		summary.TotalOverrides += zf.Episodes
		summary.TotalSuspicious += zf.Suspicious
	}

	flags, err := s.patternFlags(ctx, since, freq)
	if err != nil {
		return nil, err
	}
	summary.PatternFlags = flags
	return summary, nil
}

// patternFlags marks zones whose recurring threshold_stuck episodes point
// at a hardware fault.
func (s *ForensicsServiceImpl) patternFlags(ctx context.Context, since time.Time, freq []secondary.ZoneFrequency) ([]primary.ZoneFlag, error) {
	days := int(time.Since(since).Hours()/24) + 1
	result, err := s.store.QueryEpisodes(ctx, secondary.EpisodeFilters{
		Cause: string(classify.CauseThresholdStuck),
		Days:  days,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck episodes: %w", err)
	}

	counts := make(map[string]int)
	names := make(map[string]string)
	for _, ep := range result.Episodes {
		counts[ep.ZoneID]++
		names[ep.ZoneID] = ep.ZoneName
	}

	var flags []primary.ZoneFlag
	for _, zf := range freq {
		if n := counts[zf.ZoneID]; n >= stuckFlagThreshold {
			flags = append(flags, primary.ZoneFlag{
				ZoneID:   zf.ZoneID,
				ZoneName: names[zf.ZoneID],
				Reason:   "recurring threshold_stuck episodes, possible valve or RF fault",
				Count:    n,
			})
		}
	}
	return flags, nil
}

// History returns the zone's snapshots over the last hours hours, ascending.
// A window wider than the retention horizon is answered from what survives
// and flagged incomplete.
func (s *ForensicsServiceImpl) History(ctx context.Context, zoneID string, hours int) (*primary.HistoryResponse, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	snaps, err := s.store.ZoneHistory(ctx, zoneID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone history: %w", err)
	}
	return &primary.HistoryResponse{
		Snapshots:  snaps,
		Incomplete: hours > s.retentionDays*24,
	}, nil
}

// PurgeExpired removes data older than the retention horizon.
func (s *ForensicsServiceImpl) PurgeExpired(ctx context.Context) (secondary.PurgeStats, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	stats, err := s.store.Purge(ctx, cutoff)
	if err != nil {
		return secondary.PurgeStats{}, fmt.Errorf("failed to purge expired data: %w", err)
	}
	return stats, nil
}
