package database

import (
	"context"
	"fmt"
)

// schema is the fleet persistence schema applied on startup.
//
// Device runtime fields (state, agent_version, last_seen_at,
// active_snapshot_id) are written by the status reconciler and may be
// updated concurrently by multiple platform instances; last write wins.
const schema = `
CREATE TABLE IF NOT EXISTS teams (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	team_id            TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
	name               TEXT NOT NULL,
	target_snapshot_id TEXT,
	settings_hash      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS devices (
	id                 TEXT PRIMARY KEY,
	team_id            TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
	name               TEXT NOT NULL,
	project_id         TEXT REFERENCES projects(id) ON DELETE SET NULL,
	target_snapshot_id TEXT,
	active_snapshot_id TEXT,
	settings_hash      TEXT NOT NULL DEFAULT '',
	mode               TEXT NOT NULL DEFAULT 'autonomous',
	licensed           INTEGER NOT NULL DEFAULT 1,
	state              TEXT NOT NULL DEFAULT 'unknown',
	agent_version      TEXT NOT NULL DEFAULT '',
	last_seen_at       TIMESTAMP,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS command_audit (
	id         TEXT PRIMARY KEY,
	team_id    TEXT NOT NULL,
	target     TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	command    TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	details    TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_devices_team ON devices(team_id);
CREATE INDEX IF NOT EXISTS idx_devices_project ON devices(project_id);
CREATE INDEX IF NOT EXISTS idx_projects_team ON projects(team_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots(project_id);
CREATE INDEX IF NOT EXISTS idx_command_audit_team ON command_audit(team_id, created_at);
`

// Bootstrap applies the fleet schema.
// All statements are idempotent; safe to run on every startup.
func (db *DB) Bootstrap(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
