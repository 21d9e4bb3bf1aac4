// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS households (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (household_id) REFERENCES households(id)
);

CREATE INDEX IF NOT EXISTS idx_users_household_id ON users(household_id);

CREATE TABLE IF NOT EXISTS calendar_sources (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT 'google',
	external_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT,
	enabled INTEGER NOT NULL DEFAULT 0,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	sync_token TEXT,
	last_synced_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (household_id) REFERENCES households(id)
);

CREATE INDEX IF NOT EXISTS idx_calendar_sources_household_id ON calendar_sources(household_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_calendar_sources_external
	ON calendar_sources(household_id, provider, external_id);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	calendar_source_id TEXT NOT NULL,
	external_id TEXT,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	starts_at DATETIME NOT NULL,
	ends_at DATETIME NOT NULL,
	all_day INTEGER NOT NULL DEFAULT 0,
	recurrence_rule TEXT,
	raw_payload TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (calendar_source_id) REFERENCES calendar_sources(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_external
	ON events(calendar_source_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events(starts_at);

CREATE TABLE IF NOT EXISTS webhook_channels (
	id TEXT PRIMARY KEY,
	calendar_source_id TEXT NOT NULL,
	channel_id TEXT NOT NULL UNIQUE,
	resource_id TEXT NOT NULL,
	expiration DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (calendar_source_id) REFERENCES calendar_sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_webhook_channels_source ON webhook_channels(calendar_source_id);
CREATE INDEX IF NOT EXISTS idx_webhook_channels_expiration ON webhook_channels(expiration);

CREATE TABLE IF NOT EXISTS chores (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (household_id) REFERENCES households(id)
);

CREATE INDEX IF NOT EXISTS idx_chores_household_id ON chores(household_id);

CREATE TABLE IF NOT EXISTS chore_assignments (
	id TEXT PRIMARY KEY,
	chore_id TEXT NOT NULL,
	assigned_to TEXT,
	due_date DATE NOT NULL,
	recurrence_rule TEXT,
	completed_at DATETIME,
	completed_by TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (chore_id) REFERENCES chores(id) ON DELETE CASCADE,
	FOREIGN KEY (assigned_to) REFERENCES users(id),
	FOREIGN KEY (completed_by) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_chore_assignments_chore_id ON chore_assignments(chore_id);
CREATE INDEX IF NOT EXISTS idx_chore_assignments_due_date ON chore_assignments(due_date);
`

// InitSchema creates all tables and indexes if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
