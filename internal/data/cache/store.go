package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"pydeps/internal/engine/parser"
)

const driverName = "sqlite"

// FormatVersion is stored with every entry; bumping it invalidates entries
// written by older extractors.
const FormatVersion = 1

// Store is a sqlite-backed parse cache keyed by file path and content hash.
type Store struct {
	db         *sql.DB
	lookupStmt *sql.Stmt

	hits   atomic.Int64
	misses atomic.Int64
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("parse cache path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("parse cache path %q is a directory, expected file", cleanPath)
	}
	if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create parse cache directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open parse cache %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping parse cache %q: %w", cleanPath, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(`SELECT blob FROM parsed_files WHERE file_path = ? AND content_hash = ? AND format_version = ?`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare lookup stmt: %w", err)
	}
	return &Store{db: db, lookupStmt: stmt}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS parsed_files (
  file_path      TEXT    PRIMARY KEY,
  content_hash   TEXT    NOT NULL,
  format_version INTEGER NOT NULL,
  blob           BLOB    NOT NULL,
  updated_at     INTEGER NOT NULL DEFAULT (unixepoch())
);
`)
	if err != nil {
		return fmt.Errorf("ensure parse cache schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.lookupStmt != nil {
		_ = s.lookupStmt.Close()
	}
	return s.db.Close()
}

// Lookup returns the cached parse of path when its content hash still
// matches.
func (s *Store) Lookup(path, hash string) (*parser.File, bool, error) {
	var blob []byte
	err := s.lookupStmt.QueryRow(path, hash, FormatVersion).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %q: %w", path, err)
	}
	var file parser.File
	if err := json.Unmarshal(blob, &file); err != nil {
		// unreadable entries count as misses and get overwritten
		s.misses.Add(1)
		return nil, false, nil
	}
	s.hits.Add(1)
	return &file, true, nil
}

func (s *Store) Upsert(file *parser.File) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	if err := upsertFile(tx, file); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertFile(tx *sql.Tx, file *parser.File) error {
	blob, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode %q: %w", file.Path, err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO parsed_files (file_path, content_hash, format_version, blob) VALUES (?, ?, ?, ?)`,
		file.Path, file.Hash, FormatVersion, blob)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", file.Path, err)
	}
	return nil
}

// PruneToPaths drops entries for files no longer discovered.
func (s *Store) PruneToPaths(paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS current_paths (file_path TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create current paths: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM current_paths`); err != nil {
		return fmt.Errorf("reset current paths: %w", err)
	}
	for _, p := range paths {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO current_paths (file_path) VALUES (?)`, p); err != nil {
			return fmt.Errorf("insert current path: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM parsed_files WHERE file_path NOT IN (SELECT file_path FROM current_paths)`); err != nil {
		return fmt.Errorf("prune parse cache: %w", err)
	}
	return tx.Commit()
}

// Len counts cached entries.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM parsed_files`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Stats returns lookup hits and misses since Open.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
