package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/metrics"
)

const (
	// Default timeout for single-row operations
	defaultTimeout = 5 * time.Second
	// Timeout for batch writes and full scans of the table
	batchTimeout = 30 * time.Second
)

// Database is the SQLite-backed catalog.Store.
type Database struct {
	catalog.Notifier

	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

var _ catalog.Store = (*Database)(nil)

// New opens (creating if needed) the catalog database at dbPath. The parent
// directory must exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		mount_id TEXT,
		relative_path TEXT,
		filename TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_ref TEXT,
		favorite INTEGER NOT NULL DEFAULT 0,
		title_override TEXT,
		thumbnail TEXT,
		duration_sec REAL,
		added_at INTEGER NOT NULL,
		last_played_at INTEGER,
		play_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_entries_added ON entries(added_at, id);
	CREATE INDEX IF NOT EXISTS idx_entries_mount_added ON entries(mount_id, added_at, id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_mount_path ON entries(mount_id, relative_path);
	CREATE INDEX IF NOT EXISTS idx_entries_favorite ON entries(favorite) WHERE favorite = 1;

	CREATE TABLE IF NOT EXISTS entry_tags (
		entry_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (entry_id, tag),
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_entry_tags_tag ON entry_tags(tag);

	CREATE TABLE IF NOT EXISTS mounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		root TEXT,
		base_url TEXT,
		include_subdirs INTEGER NOT NULL DEFAULT 1,
		extensions TEXT NOT NULL DEFAULT '[]',
		ignore_globs TEXT NOT NULL DEFAULT '[]',
		added_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations adds columns introduced after the first schema.
func (d *Database) runMigrations(ctx context.Context) error {
	return d.ensureColumn(ctx, "mounts", "color", "TEXT NOT NULL DEFAULT ''")
}

func (d *Database) ensureColumn(ctx context.Context, table, column, definition string) error {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for %s.%s column: %w", table, column, err)
	}
	if exists {
		return nil
	}

	logging.Info("Migrating database: adding %s column to %s table", column, table)
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s column: %w", table, column, err)
	}
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// withTx runs fn inside a transaction under the write lock.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// translateError maps driver constraint failures to catalog errors.
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", catalog.ErrConflict, err)
	}
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}

// diagnoseDatabasePermissions checks that the database directory is writable
// and logs the state of the main, WAL and SHM files.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only (mode %v); writes will fail", path, info.Mode())
		}
	}

	return nil
}
