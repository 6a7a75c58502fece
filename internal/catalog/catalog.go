// Package catalog is the persistent store of jobs and config overrides.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/armtc/transcoder/internal/logger"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	source_path TEXT NOT NULL,
	output_path TEXT,
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	arm_job_id TEXT,
	error TEXT,
	error_kind TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT,
	video_type TEXT NOT NULL DEFAULT 'unknown',
	total_tracks INTEGER NOT NULL DEFAULT 0,
	main_feature_file TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS config_overrides (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// jobColumns lists every column the current code expects on the jobs
// table, with the DDL fragment used to add it if missing. New fields are
// appended here; existing rows keep their defaults. Columns are never
// dropped, per the additive-migration rule.
var jobColumns = []struct {
	name string
	ddl  string
}{
	{"title", "TEXT NOT NULL DEFAULT ''"},
	{"source_path", "TEXT NOT NULL DEFAULT ''"},
	{"output_path", "TEXT"},
	{"status", "TEXT NOT NULL DEFAULT 'pending'"},
	{"progress", "REAL NOT NULL DEFAULT 0"},
	{"arm_job_id", "TEXT"},
	{"error", "TEXT"},
	{"error_kind", "TEXT"},
	{"retry_count", "INTEGER NOT NULL DEFAULT 0"},
	{"created_at", "TEXT NOT NULL DEFAULT ''"},
	{"started_at", "TEXT"},
	{"completed_at", "TEXT"},
	{"video_type", "TEXT NOT NULL DEFAULT 'unknown'"},
	{"total_tracks", "INTEGER NOT NULL DEFAULT 0"},
	{"main_feature_file", "TEXT NOT NULL DEFAULT ''"},
}

// Catalog is the SQLite-backed store of jobs and config overrides. It
// guarantees single-writer serialization over the job table via mu: the
// Worker Loop is the only writer for most transitions, so a coarse mutex
// around the connection is sufficient (spec §4.1).
type Catalog struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens the catalog database at path, running schema
// creation and additive migrations.
func Open(path string) (*Catalog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if _, err := db.Exec(jobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}

	if err := migrateColumns(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}

	return &Catalog{db: db, path: path}, nil
}

// migrateColumns additively adds any column present in jobColumns but
// absent from the live table, discovered via name-check rather than a
// version counter (spec §4.1: "additively add new columns to existing
// tables by name-check, never drop").
func migrateColumns(db *sql.DB) error {
	existing := make(map[string]bool)
	rows, err := db.Query(`PRAGMA table_info(jobs)`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, col := range jobColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE jobs ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
		logger.Info("catalog: added column", "column", col.name)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// ResetInFlight demotes every PROCESSING job to PENDING. Called once at
// startup, before the HTTP surface begins serving (spec §4.9 step 1, §5
// ordering guarantee, §8 scenario 4).
func (c *Catalog) ResetInFlight() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(`
		UPDATE jobs SET status = ?, progress = 0, started_at = NULL
		WHERE status = ?
	`, string(StatusPending), string(StatusProcessing))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
