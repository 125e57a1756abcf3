// Package storage persists created radars in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/radarhq/radar/internal/radar"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database holding created radars.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "radar.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies any embedded SQL migrations that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const radarColumns = `id, topic, description, cadence, schedule_description, intent, status, created_at, next_check_at, last_checked_at`

// SaveRadar inserts a created radar.
func (s *Store) SaveRadar(r radar.Radar) error {
	status := r.Status
	if status == "" {
		status = radar.StatusActive
	}
	var lastChecked any
	if r.LastCheckedAt != nil {
		lastChecked = r.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO radars (`+radarColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Topic, r.Description, r.Cadence, r.ScheduleDescription, r.Intent,
		status, r.CreatedAt.UTC().Format(time.RFC3339), r.NextCheckAt.UTC().Format(time.RFC3339), lastChecked,
	)
	return err
}

// GetRadar returns one radar by id.
func (s *Store) GetRadar(id string) (radar.Radar, error) {
	row := s.db.QueryRow(`SELECT `+radarColumns+` FROM radars WHERE id = ?`, id)
	r, err := scanRadar(row)
	if err == sql.ErrNoRows {
		return radar.Radar{}, ErrNotFound
	}
	return r, err
}

// ListRadars returns radars newest-first.
func (s *Store) ListRadars(limit int) ([]radar.Radar, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+radarColumns+` FROM radars ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []radar.Radar
	for rows.Next() {
		r, err := scanRadar(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteRadar removes a radar by id.
func (s *Store) DeleteRadar(id string) error {
	res, err := s.db.Exec(`DELETE FROM radars WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DueRadars returns active radars whose next check time has passed,
// oldest due first.
func (s *Store) DueRadars(now time.Time, limit int) ([]radar.Radar, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT `+radarColumns+` FROM radars
		WHERE status = ? AND next_check_at <= ?
		ORDER BY next_check_at ASC LIMIT ?`,
		radar.StatusActive, now.UTC().Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []radar.Radar
	for rows.Next() {
		r, err := scanRadar(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// MarkChecked records a completed check and schedules the next one.
func (s *Store) MarkChecked(id string, checkedAt, nextCheckAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE radars SET last_checked_at = ?, next_check_at = ? WHERE id = ?`,
		checkedAt.UTC().Format(time.RFC3339), nextCheckAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRadarStatus pauses or resumes a radar.
func (s *Store) SetRadarStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE radars SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRadar(sc scanner) (radar.Radar, error) {
	var r radar.Radar
	var createdAt, nextCheckAt string
	var lastChecked sql.NullString
	err := sc.Scan(
		&r.ID, &r.Topic, &r.Description, &r.Cadence, &r.ScheduleDescription, &r.Intent,
		&r.Status, &createdAt, &nextCheckAt, &lastChecked,
	)
	if err != nil {
		return radar.Radar{}, err
	}

	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return radar.Radar{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.NextCheckAt, err = time.Parse(time.RFC3339, nextCheckAt); err != nil {
		return radar.Radar{}, fmt.Errorf("parsing next_check_at: %w", err)
	}
	if lastChecked.Valid {
		t, err := time.Parse(time.RFC3339, lastChecked.String)
		if err != nil {
			return radar.Radar{}, fmt.Errorf("parsing last_checked_at: %w", err)
		}
		r.LastCheckedAt = &t
	}
	return r, nil
}
