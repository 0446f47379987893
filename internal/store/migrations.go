package store

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Migration is one step of the cache schema.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Glyph width cache keyed by asset name",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Negative cache for missing glyph assets",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS glyph_widths (
    asset           TEXT PRIMARY KEY,
    width           REAL NOT NULL,
    mod_time_ns     INTEGER NOT NULL,
    size            INTEGER NOT NULL,
    resolved_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_glyph_widths_resolved ON glyph_widths(resolved_at);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_glyph_widths_resolved;
DROP TABLE IF EXISTS glyph_widths;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS glyph_misses (
    asset           TEXT PRIMARY KEY,
    checked_at      INTEGER NOT NULL
);
`

const migrationV2Down = `
DROP TABLE IF EXISTS glyph_misses;
`

// MigrateDB brings db up to the latest schema. Each migration runs in its
// own transaction together with its schema_migrations row.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
				m.Version, time.Now().UnixNano(), m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// RollbackMigration undoes the newest applied migration.
func RollbackMigration(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return errors.New("no migrations to roll back")
	}
	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == current })
	if i < 0 {
		return fmt.Errorf("migration %d not found", current)
	}
	m := migrations[i]

	err = inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Down); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("roll back migration %d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh file.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func inTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
