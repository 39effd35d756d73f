// Package sqlite implements the forensic store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// ForensicStore implements secondary.ForensicStore. Timestamps are stored
// as RFC3339 UTC strings at second precision, which sort lexicographically.
type ForensicStore struct {
	db            *sql.DB
	retentionDays int
}

// NewForensicStore creates a store. retentionDays is the purge horizon and
// bounds which query windows can be answered completely.
func NewForensicStore(db *sql.DB, retentionDays int) *ForensicStore {
	return &ForensicStore{db: db, retentionDays: retentionDays}
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// AppendSnapshot persists one snapshot. A retry carrying the identical
// payload is a silent no-op; a differing payload for the same key fails
// with ErrDuplicateSnapshot. Single-writer by contract, so the read-then-
// insert is not racy.
func (s *ForensicStore) AppendSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	existing, err := s.getSnapshot(ctx, snap.ZoneID, snap.Timestamp)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for existing snapshot: %w", err)
	}
	if err == nil {
		if existing.SamePayload(normalize(snap)) {
			return nil
		}
		return fmt.Errorf("snapshot %s@%s: %w", snap.ZoneID, formatTime(snap.Timestamp), secondary.ErrDuplicateSnapshot)
	}

	var current sql.NullFloat64
	if snap.Available {
		current = sql.NullFloat64{Float64: snap.CurrentTemp, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (zone_id, timestamp, zone_name, current_temp, target_temp, mode, scheduled_target, available)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ZoneID, formatTime(snap.Timestamp), snap.ZoneName, current,
		snap.TargetTemp, string(snap.Mode), snap.ScheduledTarget, boolInt(snap.Available),
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// normalize mirrors the precision loss a snapshot undergoes on write, so a
// retried append compares equal to its stored form.
func normalize(snap snapshot.Snapshot) snapshot.Snapshot {
	snap.Timestamp = snap.Timestamp.UTC().Truncate(time.Second)
	if !snap.Available {
		snap.CurrentTemp = 0
	}
	return snap
}

func (s *ForensicStore) getSnapshot(ctx context.Context, zoneID string, ts time.Time) (snapshot.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT zone_id, timestamp, zone_name, current_temp, target_temp, mode, scheduled_target, available
		 FROM snapshots WHERE zone_id = ? AND timestamp = ?`,
		zoneID, formatTime(ts),
	)
	return scanSnapshot(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (snapshot.Snapshot, error) {
	var (
		snap      snapshot.Snapshot
		ts        string
		current   sql.NullFloat64
		mode      string
		available int
	)
	err := row.Scan(&snap.ZoneID, &ts, &snap.ZoneName, &current, &snap.TargetTemp, &mode, &snap.ScheduledTarget, &available)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap.Timestamp, err = parseTime(ts)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("failed to parse stored timestamp: %w", err)
	}
	if current.Valid {
		snap.CurrentTemp = current.Float64
	}
	snap.Mode = snapshot.Mode(mode)
	snap.Available = available != 0
	return snap, nil
}

// UpsertEpisode inserts or updates an episode record. A record persisted
// closed is frozen; any later write for the id fails with ErrEpisodeClosed.
func (s *ForensicStore) UpsertEpisode(ctx context.Context, rec *secondary.EpisodeRecord) error {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM episodes WHERE id = ?", rec.ID).Scan(&status)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check episode status: %w", err)
	}
	if err == nil && status == secondary.StatusClosed {
		return fmt.Errorf("episode %s: %w", rec.ID, secondary.ErrEpisodeClosed)
	}

	var endTime sql.NullString
	if rec.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*rec.EndTime), Valid: true}
	}
	var endTemp sql.NullFloat64
	if rec.EndTemp != nil {
		endTemp = sql.NullFloat64{Float64: *rec.EndTemp, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, zone_id, zone_name, start_time, end_time, trigger_temp, end_temp,
			status, degenerate, gap_before_open, classification, confidence, ambiguous, suspicious, notes, sample_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			end_temp = excluded.end_temp,
			status = excluded.status,
			degenerate = excluded.degenerate,
			gap_before_open = excluded.gap_before_open,
			classification = excluded.classification,
			confidence = excluded.confidence,
			ambiguous = excluded.ambiguous,
			suspicious = excluded.suspicious,
			notes = excluded.notes,
			sample_count = excluded.sample_count,
			updated_at = CURRENT_TIMESTAMP`,
		rec.ID, rec.ZoneID, rec.ZoneName, formatTime(rec.StartTime), endTime,
		rec.TriggerTemp, endTemp, rec.Status, boolInt(rec.Degenerate),
		boolInt(rec.GapBeforeOpen), rec.Classification, rec.Confidence, boolInt(rec.Ambiguous),
		boolInt(rec.Suspicious), rec.Notes, rec.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert episode: %w", err)
	}
	return nil
}

const episodeColumns = `id, zone_id, zone_name, start_time, end_time, trigger_temp, end_temp,
	status, degenerate, gap_before_open, classification, confidence, ambiguous, suspicious, notes, sample_count`

func scanEpisode(row rowScanner) (*secondary.EpisodeRecord, error) {
	var (
		rec        secondary.EpisodeRecord
		start      string
		end        sql.NullString
		endTemp    sql.NullFloat64
		degenerate int
		gapOpen    int
		ambiguous  int
		suspicious int
	)
	err := row.Scan(&rec.ID, &rec.ZoneID, &rec.ZoneName, &start, &end, &rec.TriggerTemp, &endTemp,
		&rec.Status, &degenerate, &gapOpen, &rec.Classification, &rec.Confidence, &ambiguous, &suspicious,
		&rec.Notes, &rec.SampleCount)
	if err != nil {
		return nil, err
	}
	rec.StartTime, err = parseTime(start)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end time: %w", err)
		}
		rec.EndTime = &t
	}
	if endTemp.Valid {
		v := endTemp.Float64
		rec.EndTemp = &v
	}
	rec.Degenerate = degenerate != 0
	rec.GapBeforeOpen = gapOpen != 0
	rec.Ambiguous = ambiguous != 0
	rec.Suspicious = suspicious != 0
	return &rec, nil
}

// OpenEpisodes returns every episode persisted open, oldest first.
func (s *ForensicStore) OpenEpisodes(ctx context.Context) ([]*secondary.EpisodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+episodeColumns+" FROM episodes WHERE status = ? ORDER BY start_time ASC",
		secondary.StatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open episodes: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// QueryEpisodes returns filtered episodes, newest first.
func (s *ForensicStore) QueryEpisodes(ctx context.Context, f secondary.EpisodeFilters) (*secondary.EpisodeQueryResult, error) {
	days := f.Days
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	query := "SELECT " + episodeColumns + " FROM episodes WHERE start_time > ?"
	args := []any{formatTime(cutoff)}

	if f.ZoneID != "" {
		query += " AND zone_id = ?"
		args = append(args, f.ZoneID)
	}
	if f.Cause != "" {
		query += " AND classification = ?"
		args = append(args, f.Cause)
	}
	if f.SuspiciousOnly {
		query += " AND suspicious = 1"
	}
	query += " ORDER BY start_time DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	episodes, err := collectEpisodes(rows)
	if err != nil {
		return nil, err
	}
	return &secondary.EpisodeQueryResult{
		Episodes:   episodes,
		Incomplete: days > s.retentionDays,
	}, nil
}

func collectEpisodes(rows *sql.Rows) ([]*secondary.EpisodeRecord, error) {
	var out []*secondary.EpisodeRecord
	for rows.Next() {
		rec, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ZoneHistory returns the zone's snapshots since the given instant,
// ascending.
func (s *ForensicStore) ZoneHistory(ctx context.Context, zoneID string, since time.Time) ([]snapshot.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zone_id, timestamp, zone_name, current_temp, target_temp, mode, scheduled_target, available
		 FROM snapshots WHERE zone_id = ? AND timestamp > ? ORDER BY timestamp ASC`,
		zoneID, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone history: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ZoneFrequency aggregates closed-episode counts per zone.
func (s *ForensicStore) ZoneFrequency(ctx context.Context, since time.Time) ([]secondary.ZoneFrequency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zone_id, zone_name, COUNT(*),
			SUM(CASE WHEN suspicious = 1 THEN 1 ELSE 0 END)
		 FROM episodes
		 WHERE start_time > ? AND status = ?
		 GROUP BY zone_id, zone_name
		 ORDER BY COUNT(*) DESC`,
		formatTime(since), secondary.StatusClosed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone frequency: %w", err)
	}
	defer rows.Close()

	var out []secondary.ZoneFrequency
	for rows.Next() {
		var zf secondary.ZoneFrequency
		if err := rows.Scan(&zf.ZoneID, &zf.ZoneName, &zf.Episodes, &zf.Suspicious); err != nil {
			return nil, fmt.Errorf("failed to scan zone frequency: %w", err)
		}
		out = append(out, zf)
	}
	return out, rows.Err()
}

// HourHistogram buckets episode opens by UTC hour of day.
func (s *ForensicStore) HourHistogram(ctx context.Context, since time.Time) ([]secondary.HourCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CAST(strftime('%H', start_time) AS INTEGER) AS hour, COUNT(*)
		 FROM episodes WHERE start_time > ?
		 GROUP BY hour ORDER BY hour`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query hour histogram: %w", err)
	}
	defer rows.Close()

	var out []secondary.HourCount
	for rows.Next() {
		var hc secondary.HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hour bucket: %w", err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// CauseDistribution aggregates episode counts per classification.
func (s *ForensicStore) CauseDistribution(ctx context.Context, since time.Time) ([]secondary.CauseCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT classification, COUNT(*)
		 FROM episodes WHERE start_time > ? AND classification != ''
		 GROUP BY classification ORDER BY COUNT(*) DESC`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cause distribution: %w", err)
	}
	defer rows.Close()

	var out []secondary.CauseCount
	for rows.Next() {
		var cc secondary.CauseCount
		if err := rows.Scan(&cc.Cause, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan cause count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// Purge removes snapshots and closed episodes older than the cutoff. Open
// episodes survive regardless of age.
func (s *ForensicStore) Purge(ctx context.Context, olderThan time.Time) (secondary.PurgeStats, error) {
	var stats secondary.PurgeStats
	cutoff := formatTime(olderThan)

	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE timestamp < ?", cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to purge snapshots: %w", err)
	}
	stats.Snapshots, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM episodes WHERE start_time < ? AND status = ?",
		cutoff, secondary.StatusClosed,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to purge episodes: %w", err)
	}
	stats.Episodes, _ = res.RowsAffected()

	return stats, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
