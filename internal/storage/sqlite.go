// Package storage provides SQLite-based persistence for the definition
// library and run history.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/pixelbox/internal/game"
)

// ErrNotFound is returned when a named definition does not exist.
var ErrNotFound = errors.New("storage: not found")

const timeLayout = "2006-01-02 15:04:05"

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// DefinitionEntry is a library listing row.
type DefinitionEntry struct {
	Name      string
	Engine    string
	Size      int // Bytes of init plus update code
	UpdatedAt time.Time
}

// RunRecord is one finished run.
type RunRecord struct {
	ID        int64
	Source    string // Library name, sample id or file path
	Engine    string
	Frames    int
	Error     string // Empty if the run was stopped normally
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns how long the run lasted.
func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RunStats aggregates the run history of one source.
type RunStats struct {
	Source      string
	Runs        int
	Failures    int
	TotalFrames int
	MaxFrames   int
	LastPlayed  time.Time
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS definitions (
			name TEXT PRIMARY KEY,
			engine TEXT NOT NULL DEFAULT '',
			init_code TEXT NOT NULL,
			update_code TEXT NOT NULL,
			display_mode TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			engine TEXT NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveDefinition stores def under name, replacing any previous version.
func (s *Store) SaveDefinition(name string, def game.Definition) error {
	if name == "" {
		return errors.New("storage: definition name is empty")
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO definitions (name, engine, init_code, update_code, display_mode, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			engine = excluded.engine,
			init_code = excluded.init_code,
			update_code = excluded.update_code,
			display_mode = excluded.display_mode,
			timestamp = excluded.timestamp,
			updated_at = CURRENT_TIMESTAMP`,
		name, def.Engine, def.InitCode, def.UpdateCode, def.DisplayMode, def.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save definition: %w", err)
	}
	return nil
}

// Definition loads the definition stored under name.
func (s *Store) Definition(name string) (game.Definition, error) {
	var def game.Definition
	err := s.db.QueryRow(
		`SELECT engine, init_code, update_code, display_mode, timestamp
		 FROM definitions WHERE name = ?`,
		name,
	).Scan(&def.Engine, &def.InitCode, &def.UpdateCode, &def.DisplayMode, &def.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Definition{}, fmt.Errorf("%w: definition %q", ErrNotFound, name)
	}
	if err != nil {
		return game.Definition{}, fmt.Errorf("storage: cannot load definition: %w", err)
	}
	return def, nil
}

// ListDefinitions returns all stored definitions, ordered by name.
func (s *Store) ListDefinitions() ([]DefinitionEntry, error) {
	rows, err := s.db.Query(
		`SELECT name, engine, LENGTH(init_code) + LENGTH(update_code), updated_at
		 FROM definitions
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot list definitions: %w", err)
	}
	defer rows.Close()

	var entries []DefinitionEntry
	for rows.Next() {
		var e DefinitionEntry
		var updatedAt any
		if err := rows.Scan(&e.Name, &e.Engine, &e.Size, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return entries, nil
}

// DeleteDefinition removes the definition stored under name.
func (s *Store) DeleteDefinition(name string) error {
	result, err := s.db.Exec("DELETE FROM definitions WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("storage: cannot delete definition: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: cannot get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: definition %q", ErrNotFound, name)
	}
	return nil
}

// RecordRun appends a run to the history.
// Returns the ID of the inserted record.
func (s *Store) RecordRun(r RunRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (source, engine, frames, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Source, r.Engine, r.Frames, r.Error,
		r.StartedAt.UTC().Format(timeLayout), r.EndedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot record run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}
	return id, nil
}

// RecentRuns returns the most recent runs, newest first. An empty source
// returns runs of every source.
func (s *Store) RecentRuns(source string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT id, source, engine, frames, error, started_at, ended_at
		 FROM runs
		 WHERE ? = '' OR source = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		source, source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var startedAt, endedAt any
		if err := rows.Scan(&r.ID, &r.Source, &r.Engine, &r.Frames, &r.Error, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.EndedAt = parseTime(endedAt)
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return runs, nil
}

// Stats aggregates the run history of source.
func (s *Store) Stats(source string) (*RunStats, error) {
	stats := &RunStats{Source: source}

	var lastPlayed any
	err := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(frames), 0),
			COALESCE(MAX(frames), 0),
			MAX(started_at)
		 FROM runs WHERE source = ?`,
		source,
	).Scan(&stats.Runs, &stats.Failures, &stats.TotalFrames, &stats.MaxFrames, &lastPlayed)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get run stats: %w", err)
	}
	stats.LastPlayed = parseTime(lastPlayed)

	return stats, nil
}

// parseTime handles the datetime forms the driver returns.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(timeLayout, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
