package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	defaultBusyTimeout = 2 * time.Second
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

func Open(path string) (*Store, error) {
	return OpenWithTimeout(path, defaultBusyTimeout)
}

// OpenWithTimeout opens the store at path, waiting up to busy for locks
// held by other connections.
func OpenWithTimeout(path string, busy time.Duration) (*Store, error) {
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath, busy.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot stores snapshot and returns it with its run id and timestamp
// filled in.
func (s *Store) SaveSnapshot(snapshot Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.Group = strings.TrimSpace(snapshot.Group)
	if snapshot.Group == "" {
		return snapshot, fmt.Errorf("snapshot group must not be empty")
	}
	if snapshot.RunID == "" {
		snapshot.RunID = uuid.NewString()
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = s.now().UTC()
	}
	if snapshot.SchemaVersion == 0 {
		snapshot.SchemaVersion = SchemaVersion
	}
	if snapshot.SchemaVersion != SchemaVersion {
		return snapshot, fmt.Errorf("unsupported snapshot schema version %d", snapshot.SchemaVersion)
	}
	snapshot.Packages = sortedUnique(snapshot.Packages)
	snapshot.Requirements = sortedUnique(snapshot.Requirements)

	err := s.withRetry("save snapshot", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
INSERT INTO snapshots (
  run_id, group_name, schema_version, ts_utc, module_count, visited_count, unresolved_count, diagnostic_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshot.RunID,
			snapshot.Group,
			snapshot.SchemaVersion,
			snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
			snapshot.ModuleCount,
			snapshot.VisitedCount,
			snapshot.UnresolvedCount,
			snapshot.DiagnosticCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := insertItems(tx, snapshot.RunID, "package", snapshot.Packages); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := insertItems(tx, snapshot.RunID, "requirement", snapshot.Requirements); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	return snapshot, err
}

func insertItems(tx *sql.Tx, runID, kind string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO snapshot_items(run_id, kind, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, name := range names {
		if _, err := stmt.Exec(runID, kind, name); err != nil {
			return fmt.Errorf("insert %s %q: %w", kind, name, err)
		}
	}
	return nil
}

// LoadSnapshots returns the snapshots of group taken at or after since,
// oldest first.
func (s *Store) LoadSnapshots(group string, since time.Time) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT run_id, group_name, schema_version, ts_utc, module_count, visited_count, unresolved_count, diagnostic_count
FROM snapshots
WHERE group_name = ?`
	args := []any{strings.TrimSpace(group)}
	if !since.IsZero() {
		query += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY ts_utc ASC, run_id ASC"

	var snapshots []Snapshot
	err := s.withRetry("load snapshots", func() error {
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		snapshots = snapshots[:0]
		for rows.Next() {
			var (
				tsRaw    string
				snapshot Snapshot
			)
			if err := rows.Scan(
				&snapshot.RunID,
				&snapshot.Group,
				&snapshot.SchemaVersion,
				&tsRaw,
				&snapshot.ModuleCount,
				&snapshot.VisitedCount,
				&snapshot.UnresolvedCount,
				&snapshot.DiagnosticCount,
			); err != nil {
				return fmt.Errorf("scan snapshot row: %w", err)
			}
			ts, err := time.Parse(time.RFC3339Nano, tsRaw)
			if err != nil {
				return fmt.Errorf("parse snapshot timestamp %q: %w", tsRaw, err)
			}
			snapshot.Timestamp = ts.UTC()
			snapshots = append(snapshots, snapshot)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// items are read after the snapshot cursor is closed; the pool has one connection
	for i := range snapshots {
		if err := s.loadItems(&snapshots[i]); err != nil {
			return nil, err
		}
	}
	return snapshots, nil
}

func (s *Store) loadItems(snapshot *Snapshot) error {
	return s.withRetry("load snapshot items", func() error {
		rows, err := s.db.Query(`SELECT kind, name FROM snapshot_items WHERE run_id = ? ORDER BY kind, name`, snapshot.RunID)
		if err != nil {
			return err
		}
		defer rows.Close()

		snapshot.Packages, snapshot.Requirements = []string{}, []string{}
		for rows.Next() {
			var kind, name string
			if err := rows.Scan(&kind, &name); err != nil {
				return fmt.Errorf("scan snapshot item: %w", err)
			}
			switch kind {
			case "package":
				snapshot.Packages = append(snapshot.Packages, name)
			case "requirement":
				snapshot.Requirements = append(snapshot.Requirements, name)
			}
		}
		return rows.Err()
	})
}

// Latest returns the newest snapshot of group.
func (s *Store) Latest(group string) (Snapshot, bool, error) {
	snapshots, err := s.LoadSnapshots(group, time.Time{})
	if err != nil || len(snapshots) == 0 {
		return Snapshot{}, false, err
	}
	return snapshots[len(snapshots)-1], true, nil
}

// Groups lists every group with at least one snapshot.
func (s *Store) Groups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []string
	err := s.withRetry("list groups", func() error {
		rows, err := s.db.Query(`SELECT DISTINCT group_name FROM snapshots ORDER BY group_name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		groups = groups[:0]
		for rows.Next() {
			var g string
			if err := rows.Scan(&g); err != nil {
				return err
			}
			groups = append(groups, g)
		}
		return rows.Err()
	})
	return groups, err
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}

func sortedUnique(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	uniq := out[:0]
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			uniq = append(uniq, v)
		}
	}
	return uniq
}
