package history

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS snapshots (
  run_id TEXT PRIMARY KEY,
  group_name TEXT NOT NULL,
  schema_version INTEGER NOT NULL,
  ts_utc TEXT NOT NULL,
  module_count INTEGER NOT NULL,
  visited_count INTEGER NOT NULL,
  unresolved_count INTEGER NOT NULL,
  diagnostic_count INTEGER NOT NULL DEFAULT 0,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_group_ts ON snapshots(group_name, ts_utc);

CREATE TABLE IF NOT EXISTS snapshot_items (
  run_id TEXT NOT NULL REFERENCES snapshots(run_id) ON DELETE CASCADE,
  kind TEXT NOT NULL CHECK (kind IN ('package', 'requirement')),
  name TEXT NOT NULL,
  PRIMARY KEY (run_id, kind, name)
);
`,
	},
}

// EnsureSchema brings db up to SchemaVersion, applying each pending
// migration in its own transaction.
func EnsureSchema(db *sql.DB) error {
	const bootstrap = `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
)`
	if _, err := db.Exec(bootstrap); err != nil {
		return fmt.Errorf("bootstrap history schema: %w", err)
	}

	var applied int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&applied); err != nil {
		return fmt.Errorf("read history schema version: %w", err)
	}
	if applied > SchemaVersion {
		return fmt.Errorf("history database is at schema %d, this build understands up to %d", applied, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version > applied {
			if err := m.apply(db); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m migration) apply(db *sql.DB) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("history migration %d: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.Exec(m.sql); err != nil {
		return fmt.Errorf("history migration %d: %w", m.version, err)
	}
	if _, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("history migration %d: record version: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("history migration %d: commit: %w", m.version, err)
	}
	return nil
}
