package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sadopc/stackvault/internal/clock"
)

const currentVersion = 2

// timeLayout is how timestamps are stored: UTC with a fixed-width
// nanosecond fraction, so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, clock: clock.Real{}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

// SetClock replaces the clock used for created/updated stamps and for
// entries appended without a timestamp.
func (s *Store) SetClock(c clock.Clock) {
	s.clock = c
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if version < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS tools (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		category           TEXT NOT NULL DEFAULT '',
		vendor             TEXT NOT NULL DEFAULT '',
		price              REAL NOT NULL DEFAULT 0,
		purchase_date      TEXT NOT NULL,
		refund_window_days INTEGER NOT NULL DEFAULT 0,
		last_used          TEXT,
		times_used         INTEGER NOT NULL DEFAULT 0,
		usage_goal         INTEGER,
		usage_goal_period  TEXT CHECK (usage_goal_period IN ('weekly', 'monthly')),
		archived           INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		updated_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(name);

	CREATE TABLE IF NOT EXISTS usage_entries (
		id        TEXT PRIMARY KEY,
		tool_id   TEXT NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
		timestamp TEXT NOT NULL,
		duration  INTEGER,
		source    TEXT NOT NULL CHECK (source IN ('manual', 'timer', 'extension', 'daily-prompt'))
	);

	CREATE INDEX IF NOT EXISTS idx_usage_tool      ON usage_entries(tool_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_entries(timestamp);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// migrateV2 widens second-precision timestamps to timeLayout.
func (s *Store) migrateV2() error {
	cols := [][2]string{
		{"tools", "purchase_date"},
		{"tools", "last_used"},
		{"tools", "created_at"},
		{"tools", "updated_at"},
		{"usage_entries", "timestamp"},
	}
	for _, c := range cols {
		q := fmt.Sprintf(
			`UPDATE %[1]s SET %[2]s = substr(%[2]s, 1, 19) || '.000000000Z'
			 WHERE length(%[2]s) = 20 AND %[2]s LIKE '%%Z'`, c[0], c[1])
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("widen %s.%s: %w", c[0], c[1], err)
		}
	}
	return nil
}
