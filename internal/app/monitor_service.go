// Package app implements the primary ports: the tick pipeline that turns
// zone snapshots into tracked, classified, persisted episodes, and the
// forensic query service behind the CLI and dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/core/classify"
	"github.com/example/hearthwatch/internal/core/episode"
	"github.com/example/hearthwatch/internal/core/schedule"
	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/primary"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// Ensure MonitorServiceImpl implements the interface
var _ primary.MonitorService = (*MonitorServiceImpl)(nil)

// MonitorServiceImpl is the tick pipeline. Tick is called by a single
// periodic driver; the read methods are safe for concurrent use from the
// API handlers.
type MonitorServiceImpl struct {
	store    secondary.ForensicStore
	notifier secondary.Notifier
	logger   *zap.Logger
	params   classify.Params

	mu        sync.RWMutex
	tracker   *episode.Tracker
	schedules map[string]schedule.Schedule
	zones     map[string]primary.ZoneStatus

	lastPoll          time.Time
	pollCount         int64
	errorCount        int64
	consecutiveErrors int
}

// NewMonitorService creates a monitor service with injected dependencies.
func NewMonitorService(store secondary.ForensicStore, notifier secondary.Notifier, logger *zap.Logger, maxStaleness time.Duration, params classify.Params) *MonitorServiceImpl {
	return &MonitorServiceImpl{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		params:    params,
		tracker:   episode.NewTracker(maxStaleness),
		schedules: make(map[string]schedule.Schedule),
		zones:     make(map[string]primary.ZoneStatus),
	}
}

// Restore reloads open episodes from the store so a restart resumes
// tracking instead of fabricating closes.
func (s *MonitorServiceImpl) Restore(ctx context.Context) error {
	records, err := s.store.OpenEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open episodes: %w", err)
	}

	open := make([]*episode.Episode, 0, len(records))
	for _, rec := range records {
		open = append(open, recordToEpisode(rec))
	}

	s.mu.Lock()
	s.tracker.Resume(open)
	s.mu.Unlock()

	if len(open) > 0 {
		s.logger.Info("resumed open episodes", zap.Int("count", len(open)))
	}
	return nil
}

// SetSchedules replaces the cached zone schedules used for classification.
func (s *MonitorServiceImpl) SetSchedules(schedules map[string]schedule.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = schedules
}

// Tick processes one batch: staleness sweep first, then per-zone snapshot
// handling. A failure on one zone never blocks the others; persistence
// errors are logged and counted, not propagated, so a flaky disk cannot
// stall tracking.
func (s *MonitorServiceImpl) Tick(ctx context.Context, batch *secondary.Batch) (*primary.TickReport, error) {
	if batch == nil {
		return nil, errors.New("nil batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := &primary.TickReport{}

	for _, ep := range s.tracker.Sweep(batch.Timestamp) {
		report.Closed++
		report.Degenerate++
		s.persistEpisode(ctx, ep, secondary.StatusClosed)
		s.logger.Warn("episode closed by staleness sweep",
			zap.String("zone", ep.ZoneID),
			zap.Time("end", *ep.EndTime))
	}

	for _, snap := range batch.Snapshots {
		if err := s.appendSnapshot(ctx, snap); err != nil {
			s.logger.Error("failed to persist snapshot",
				zap.String("zone", snap.ZoneID), zap.Error(err))
		}

		if !snap.Available || snap.Mode == snapshot.ModeUnknown {
			report.Skipped++
			s.updateZoneStatus(snap)
			continue
		}

		tr, err := s.tracker.Observe(snap)
		if err != nil {
			if errors.Is(err, episode.ErrOutOfOrder) {
				// stale reading: keep the newer zone status
				report.Skipped++
				s.logger.Warn("snapshot out of order",
					zap.String("zone", snap.ZoneID),
					zap.Time("timestamp", snap.Timestamp))
				continue
			}
			s.logger.Error("tracking failed",
				zap.String("zone", snap.ZoneID), zap.Error(err))
			continue
		}
		s.updateZoneStatus(snap)

		switch {
		case tr.Opened != nil:
			report.Opened++
			s.handleOpened(ctx, tr.Opened, snap)
		case tr.Updated != nil:
			s.persistEpisode(ctx, tr.Updated, secondary.StatusOpen)
		case tr.Closed != nil:
			report.Closed++
			s.handleClosed(ctx, tr.Closed, snap)
		}
	}

	s.lastPoll = batch.Timestamp
	s.pollCount++
	s.consecutiveErrors = 0
	return report, nil
}

func (s *MonitorServiceImpl) handleOpened(ctx context.Context, ep *episode.Episode, snap snapshot.Snapshot) {
	res := s.classifyLocked(ep)
	s.persistClassified(ctx, ep, secondary.StatusOpen, res)

	s.logger.Info("override episode opened",
		zap.String("zone", ep.ZoneID),
		zap.Float64("trigger", ep.TriggerTemp),
		zap.String("cause", string(res.Cause)),
		zap.String("confidence", string(res.Confidence)))

	alert := secondary.Alert{
		ZoneID:      ep.ZoneID,
		ZoneName:    ep.ZoneName,
		Cause:       string(res.Cause),
		Confidence:  string(res.Confidence),
		TriggerTemp: ep.TriggerTemp,
		CurrentTemp: snap.CurrentTemp,
		StartTime:   ep.StartTime,
		Suspicious:  res.Cause.Suspicious(),
		Notes:       res.Notes,
	}
	if err := s.notifier.NotifyOverride(ctx, alert); err != nil {
		s.logger.Error("override notification failed",
			zap.String("zone", ep.ZoneID), zap.Error(err))
	}
}

func (s *MonitorServiceImpl) handleClosed(ctx context.Context, ep *episode.Episode, snap snapshot.Snapshot) {
	s.persistEpisode(ctx, ep, secondary.StatusClosed)

	s.logger.Info("override episode closed",
		zap.String("zone", ep.ZoneID),
		zap.Duration("duration", ep.Duration(snap.Timestamp)))

	endTemp := 0.0
	if ep.EndTemp != nil {
		endTemp = *ep.EndTemp
	}
	clearance := secondary.Clearance{
		ZoneID:   ep.ZoneID,
		ZoneName: ep.ZoneName,
		EndTime:  *ep.EndTime,
		EndTemp:  endTemp,
		Duration: ep.Duration(snap.Timestamp),
	}
	if err := s.notifier.NotifyCleared(ctx, clearance); err != nil {
		s.logger.Error("clearance notification failed",
			zap.String("zone", ep.ZoneID), zap.Error(err))
	}
}

// appendSnapshot tolerates identical-duplicate retries silently.
func (s *MonitorServiceImpl) appendSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	err := s.store.AppendSnapshot(ctx, snap)
	if errors.Is(err, secondary.ErrDuplicateSnapshot) {
		s.logger.Warn("conflicting duplicate snapshot rejected",
			zap.String("zone", snap.ZoneID),
			zap.Time("timestamp", snap.Timestamp))
		return nil
	}
	return err
}

// persistEpisode classifies the episode in its current state and writes it.
// The classification stored with a closed episode is the frozen final one.
func (s *MonitorServiceImpl) persistEpisode(ctx context.Context, ep *episode.Episode, status string) {
	s.persistClassified(ctx, ep, status, s.classifyLocked(ep))
}

func (s *MonitorServiceImpl) persistClassified(ctx context.Context, ep *episode.Episode, status string, res classify.Result) {
	rec := episodeToRecord(ep, status, res)
	if err := s.store.UpsertEpisode(ctx, rec); err != nil {
		s.logger.Error("failed to persist episode",
			zap.String("episode", ep.ID),
			zap.String("zone", ep.ZoneID),
			zap.Error(err))
	}
}

// classifyLocked builds the schedule context for the episode's zone and
// runs the classifier. Caller holds s.mu.
func (s *MonitorServiceImpl) classifyLocked(ep *episode.Episode) classify.Result {
	ctx := classify.Context{GapBeforeOpen: ep.GapBeforeOpen}

	sched, ok := s.schedules[ep.ZoneID]
	if ok && !sched.IsZero() {
		ctx.HasSchedule = true
		ctx.TargetAtOpen, _ = sched.TargetAt(ep.StartTime)

		evalAt := ep.StartTime
		if ep.EndTime != nil {
			evalAt = *ep.EndTime
		} else if last, seen := s.tracker.LastSeen(ep.ZoneID); seen {
			evalAt = last
		}
		ctx.TargetAtEval, _ = sched.TargetAt(evalAt)

		if at, target, found := sched.NextChange(ep.StartTime); found {
			ctx.HasNextChange = true
			ctx.NextChangeAt = at
			ctx.NextTarget = target
		}
		if mins, found := sched.MinutesToIncrease(ep.StartTime, s.params.OptimumStartWindow); found {
			ctx.HasUpcomingIncrease = true
			ctx.MinutesToIncrease = mins
		}
		ctx.ScheduleTargets = sched.Setpoints()
	}

	return classify.Classify(ep, ctx, s.params)
}

func (s *MonitorServiceImpl) updateZoneStatus(snap snapshot.Snapshot) {
	status := primary.ZoneStatus{
		ZoneID:          snap.ZoneID,
		ZoneName:        snap.ZoneName,
		CurrentTemp:     snap.CurrentTemp,
		TargetTemp:      snap.TargetTemp,
		Mode:            string(snap.Mode),
		ScheduledTarget: snap.ScheduledTarget,
		Available:       snap.Available,
		LastSeen:        snap.Timestamp,
	}
	if ep := s.tracker.OpenEpisode(snap.ZoneID); ep != nil {
		start := ep.StartTime
		status.OverrideSince = &start
	}
	s.zones[snap.ZoneID] = status
}

// CurrentZones returns the latest known state of every zone. Order is not
// guaranteed; callers sort for display.
func (s *MonitorServiceImpl) CurrentZones() []primary.ZoneStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]primary.ZoneStatus, 0, len(s.zones))
	for id, status := range s.zones {
		if ep := s.tracker.OpenEpisode(id); ep != nil {
			start := ep.StartTime
			status.OverrideSince = &start
		} else {
			status.OverrideSince = nil
		}
		out = append(out, status)
	}
	return out
}

// Health returns poll-loop health counters.
func (s *MonitorServiceImpl) Health() primary.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return primary.HealthStatus{
		LastPoll:          s.lastPoll,
		PollCount:         s.pollCount,
		ErrorCount:        s.errorCount,
		ConsecutiveErrors: s.consecutiveErrors,
		OpenEpisodes:      s.tracker.OpenCount(),
		ZoneCount:         len(s.zones),
	}
}

// RecordPollError counts an upstream poll failure.
func (s *MonitorServiceImpl) RecordPollError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	s.consecutiveErrors++
}

func recordToEpisode(rec *secondary.EpisodeRecord) *episode.Episode {
	return &episode.Episode{
		ID:            rec.ID,
		ZoneID:        rec.ZoneID,
		ZoneName:      rec.ZoneName,
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		TriggerTemp:   rec.TriggerTemp,
		EndTemp:       rec.EndTemp,
		Degenerate:    rec.Degenerate,
		GapBeforeOpen: rec.GapBeforeOpen,
		SampleCount:   rec.SampleCount,
	}
}

func episodeToRecord(ep *episode.Episode, status string, res classify.Result) *secondary.EpisodeRecord {
	return &secondary.EpisodeRecord{
		ID:             ep.ID,
		ZoneID:         ep.ZoneID,
		ZoneName:       ep.ZoneName,
		StartTime:      ep.StartTime,
		EndTime:        ep.EndTime,
		TriggerTemp:    ep.TriggerTemp,
		EndTemp:        ep.EndTemp,
		Status:         status,
		Degenerate:     ep.Degenerate,
		GapBeforeOpen:  ep.GapBeforeOpen,
		Classification: string(res.Cause),
		Confidence:     string(res.Confidence),
		Ambiguous:      res.Ambiguous,
		Suspicious:     res.Cause.Suspicious(),
		Notes:          res.Notes,
		SampleCount:    ep.SampleCount,
	}
}
