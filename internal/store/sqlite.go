package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotCached is returned by lookups that find no row.
var ErrNotCached = errors.New("store: not cached")

// Store is the SQLite glyph width cache.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutWidth records the measured width of an asset, replacing any previous
// entry and clearing a recorded miss.
func (s *Store) PutWidth(e WidthEntry) error {
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now()
	}

	return inTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO glyph_widths (asset, width, mod_time_ns, size, resolved_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(asset) DO UPDATE SET
				width = excluded.width,
				mod_time_ns = excluded.mod_time_ns,
				size = excluded.size,
				resolved_at = excluded.resolved_at`,
			e.Asset, e.Width, e.ModTimeNs, e.Size, e.ResolvedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("put width %s: %w", e.Asset, err)
		}
		if _, err := tx.Exec("DELETE FROM glyph_misses WHERE asset = ?", e.Asset); err != nil {
			return fmt.Errorf("clear miss %s: %w", e.Asset, err)
		}
		return nil
	})
}

// GetWidth returns the cached entry for asset, or ErrNotCached.
func (s *Store) GetWidth(asset string) (*WidthEntry, error) {
	var e WidthEntry
	var resolvedNs int64
	err := s.db.QueryRow(`
		SELECT asset, width, mod_time_ns, size, resolved_at
		FROM glyph_widths WHERE asset = ?`, asset,
	).Scan(&e.Asset, &e.Width, &e.ModTimeNs, &e.Size, &resolvedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("get width %s: %w", asset, err)
	}
	e.ResolvedAt = time.Unix(0, resolvedNs)
	return &e, nil
}

// RecordMiss remembers that asset does not exist.
func (s *Store) RecordMiss(asset string) error {
	_, err := s.db.Exec(`
		INSERT INTO glyph_misses (asset, checked_at) VALUES (?, ?)
		ON CONFLICT(asset) DO UPDATE SET checked_at = excluded.checked_at`,
		asset, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record miss %s: %w", asset, err)
	}
	return nil
}

// IsMiss reports whether asset was recorded as missing.
func (s *Store) IsMiss(asset string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM glyph_misses WHERE asset = ?", asset).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check miss %s: %w", asset, err)
	}
	return n > 0, nil
}

// Invalidate drops every cached fact about asset.
func (s *Store) Invalidate(asset string) error {
	return inTx(s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"glyph_widths", "glyph_misses"} {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE asset = ?", asset); err != nil {
				return fmt.Errorf("invalidate %s in %s: %w", asset, table, err)
			}
		}
		return nil
	})
}

// Purge empties the cache.
func (s *Store) Purge() error {
	if _, err := s.db.Exec("DELETE FROM glyph_widths; DELETE FROM glyph_misses;"); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

// GetStats returns row counts.
func (s *Store) GetStats() (*Stats, error) {
	var st Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM glyph_widths").Scan(&st.Widths); err != nil {
		return nil, fmt.Errorf("count widths: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM glyph_misses").Scan(&st.Misses); err != nil {
		return nil, fmt.Errorf("count misses: %w", err)
	}
	return &st, nil
}
