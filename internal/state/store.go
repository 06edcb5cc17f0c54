// Package state persists pipeline state between runs: per-source markers,
// seen item keys, recorded feature statuses, and run reports. Backed by
// SQLite so dedup and marker lookups stay cheap as history grows.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/boshu2/featwatch/internal/types"
)

// ErrNoRuns is returned when no run has been recorded yet.
var ErrNoRuns = errors.New("no runs recorded")

// Store handles SQLite state storage.
type Store struct {
	db *sql.DB
}

// MarkerInfo describes the stored marker for one source.
type MarkerInfo struct {
	Source    string
	Kind      types.SourceKind
	Marker    string
	UpdatedAt time.Time
}

// Open opens (creating if necessary) the state database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close() //nolint:errcheck // best-effort cleanup on migrate failure
		return nil, err
	}

	return s, nil
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS markers (
			source TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			marker TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS seen_items (
			key TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			link TEXT,
			first_seen DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feature_status (
			capability TEXT NOT NULL,
			tbl TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (capability, tbl)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			report TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}
	return nil
}

// Marker returns the stored marker for a source, or "" when none exists.
func (s *Store) Marker(source string) (string, error) {
	var marker string
	err := s.db.QueryRow(`SELECT marker FROM markers WHERE source = ?`, source).Scan(&marker)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query marker for %s: %w", source, err)
	}
	return marker, nil
}

// SetMarker advances the marker for a source. Markers only move forward in
// the pipeline: callers persist them after items are safely recorded, which
// is what makes re-runs with the same marker idempotent.
func (s *Store) SetMarker(source string, kind types.SourceKind, marker string) error {
	_, err := s.db.Exec(`
		INSERT INTO markers (source, kind, marker, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET marker = excluded.marker, updated_at = excluded.updated_at`,
		source, string(kind), marker, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set marker for %s: %w", source, err)
	}
	return nil
}

// Markers lists all stored markers.
func (s *Store) Markers() ([]MarkerInfo, error) {
	rows, err := s.db.Query(`SELECT source, kind, marker, updated_at FROM markers ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only iteration

	var infos []MarkerInfo
	for rows.Next() {
		var mi MarkerInfo
		var kind string
		if err := rows.Scan(&mi.Source, &kind, &mi.Marker, &mi.UpdatedAt); err != nil {
			return nil, err
		}
		mi.Kind = types.SourceKind(kind)
		infos = append(infos, mi)
	}
	return infos, rows.Err()
}

// Seen reports whether an item key has been recorded before.
func (s *Store) Seen(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM seen_items WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen item: %w", err)
	}
	return true, nil
}

// MarkSeen records an item key. Recording the same key twice is a no-op.
func (s *Store) MarkSeen(item types.Item) error {
	_, err := s.db.Exec(`
		INSERT INTO seen_items (key, source, link, first_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		item.Key(), item.Source, item.Link, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark item seen: %w", err)
	}
	return nil
}

// FilterNew returns only the items whose keys have not been seen. It never
// records anything: callers mark items seen with MarkSeen once the work
// they feed is safely persisted, so a failed or dry run leaves the items
// eligible for the next run.
func (s *Store) FilterNew(items []types.Item) ([]types.Item, error) {
	var fresh []types.Item
	for _, it := range items {
		seen, err := s.Seen(it.Key())
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}
		fresh = append(fresh, it)
	}
	return fresh, nil
}

// RecordedStatus returns the last recorded status for a capability in a
// table, and whether one exists.
func (s *Store) RecordedStatus(capability string, table types.Table) (types.Status, bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM feature_status WHERE capability = ? AND tbl = ?`,
		capability, string(table)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StatusUnknown, false, nil
	}
	if err != nil {
		return types.StatusUnknown, false, fmt.Errorf("query feature status: %w", err)
	}
	return types.ParseStatus(status), true, nil
}

// RecordStatus stores the status for a capability in a table after an
// issue is created or a matrix apply lands. The pipeline checks proposed
// statuses against this record on later runs to flag downgrades.
func (s *Store) RecordStatus(capability string, table types.Table, status types.Status) error {
	_, err := s.db.Exec(`
		INSERT INTO feature_status (capability, tbl, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(capability, tbl) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		capability, string(table), string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record feature status: %w", err)
	}
	return nil
}

// SaveRun persists a run report.
func (s *Store) SaveRun(report *types.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	var finished any
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, started_at, finished_at, report) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET finished_at = excluded.finished_at, report = excluded.report`,
		report.RunID, report.StartedAt, finished, string(data))
	if err != nil {
		return fmt.Errorf("save run report: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run report.
func (s *Store) LastRun() (*types.RunReport, error) {
	var data string
	err := s.db.QueryRow(`SELECT report FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}

	var report types.RunReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("unmarshal run report: %w", err)
	}
	return &report, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
