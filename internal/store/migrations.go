package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with activity spans",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add committed character counts to spans",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
	{
		Version:     3,
		Description: "Add end time index for retention",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

// Migration SQL statements

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS activity_spans (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    start_ns        INTEGER NOT NULL,
    end_ns          INTEGER NOT NULL,
    key_events      INTEGER NOT NULL DEFAULT 0,
    mouse_events    INTEGER NOT NULL DEFAULT 0,
    CHECK (end_ns >= start_ns)
);

CREATE INDEX IF NOT EXISTS idx_spans_start ON activity_spans(start_ns);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_spans_start;
DROP TABLE IF EXISTS activity_spans;
`

const migrationV2Up = `
ALTER TABLE activity_spans ADD COLUMN chars INTEGER NOT NULL DEFAULT 0;
`

const migrationV2Down = `
ALTER TABLE activity_spans DROP COLUMN chars;
`

const migrationV3Up = `
CREATE INDEX IF NOT EXISTS idx_spans_end ON activity_spans(end_ns);
`

const migrationV3Down = `
DROP INDEX IF EXISTS idx_spans_end;
`

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT
)`

// MigrateDB brings the schema up to the latest version. Each migration and
// its bookkeeping row commit together.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	from, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Up); err != nil {
				return fmt.Errorf("migrate to v%d (%s): %w", m.Version, m.Description, err)
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)`,
				m.Version, time.Now().UnixNano(), m.Description)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// inTx runs fn in a transaction and commits if it returns nil.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func findMigration(version int) (Migration, bool) {
	for _, m := range migrations {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}

// RollbackMigration undoes the newest applied migration.
func RollbackMigration(db *sql.DB) error {
	v, err := currentVersion(db)
	if err != nil {
		return err
	}
	if v == 0 {
		return fmt.Errorf("schema is already at version 0")
	}

	m, ok := findMigration(v)
	if !ok {
		return fmt.Errorf("schema version %d is newer than this build", v)
	}

	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Down); err != nil {
			return fmt.Errorf("roll back v%d: %w", v, err)
		}
		_, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, v)
		return err
	})
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: migrations[len(migrations)-1].Version,
	}

	rows, err := db.Query(`SELECT version, applied_at, description FROM schema_migrations ORDER BY version`)
	if err != nil {
		// Not migrated at all yet.
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			am AppliedMigration
			ns int64
		)
		if err := rows.Scan(&am.Version, &ns, &am.Description); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		am.AppliedAt = time.Unix(0, ns)
		status.Applied = append(status.Applied, am)
		status.CurrentVersion = max(status.CurrentVersion, am.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if m.Version > status.CurrentVersion {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// ValidateSchema reports a missing table.
func ValidateSchema(db *sql.DB) error {
	for _, table := range []string{"activity_spans", "schema_migrations"} {
		var n int
		q := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
		if err := db.QueryRow(q, table).Scan(&n); err != nil {
			return fmt.Errorf("look up table %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
	}
	return nil
}

// Status returns the migration status of the open store.
func (s *Store) Status() (*MigrationStatus, error) {
	return GetMigrationStatus(s.db)
}
