package db

// GetSchemaSQL returns the authoritative schema. Tests load their in-memory
// databases from this function so the test schema can never drift from the
// production one.
func GetSchemaSQL() string {
	return `
-- Every poll's reading of every zone, keyed so a retried poll cannot
-- duplicate a row. Immutable once written.
CREATE TABLE IF NOT EXISTS snapshots (
	zone_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	zone_name TEXT NOT NULL DEFAULT '',
	current_temp REAL,
	target_temp REAL NOT NULL,
	mode TEXT NOT NULL,
	scheduled_target REAL NOT NULL DEFAULT 0,
	available INTEGER NOT NULL DEFAULT 1,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (zone_id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_zone_time
	ON snapshots(zone_id, timestamp);

-- Override episodes. A closed row is frozen: the store rejects any further
-- write for its id.
CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	zone_id TEXT NOT NULL,
	zone_name TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL,
	end_time TEXT,
	trigger_temp REAL NOT NULL,
	end_temp REAL,
	status TEXT NOT NULL DEFAULT 'open',
	degenerate INTEGER NOT NULL DEFAULT 0,
	gap_before_open INTEGER NOT NULL DEFAULT 0,
	classification TEXT NOT NULL DEFAULT '',
	confidence TEXT NOT NULL DEFAULT '',
	ambiguous INTEGER NOT NULL DEFAULT 0,
	suspicious INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	sample_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_episodes_zone_start
	ON episodes(zone_id, start_time);

CREATE INDEX IF NOT EXISTS idx_episodes_class_start
	ON episodes(classification, start_time);

CREATE INDEX IF NOT EXISTS idx_episodes_status
	ON episodes(status);
`
}
