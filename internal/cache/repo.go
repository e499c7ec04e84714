package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Get returns the cached value for path when its checksum still matches.
// Lookup failures are logged and reported as a miss.
func (db *DB) Get(path, checksum string) (any, bool) {
	var stored, raw string
	err := db.conn.QueryRow(`SELECT checksum, value FROM parsed WHERE path = ?`, path).Scan(&stored, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		db.logger.Warn("cache: get failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false
	}
	if stored != checksum {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		db.logger.Warn("cache: corrupt entry", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false
	}
	return v, true
}

// Put stores value for path at checksum, replacing any previous entry.
func (db *DB) Put(path, checksum string, value any) {
	if err := db.put(path, checksum, value); err != nil {
		db.logger.Warn("cache: put failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (db *DB) put(path, checksum string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO parsed (path, checksum, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, path, checksum, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache: upsert: %w", err)
	}
	return nil
}

// Delete removes the entry for path.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM parsed WHERE path = ?`, path); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// AllPaths returns the set of cached paths.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM parsed`)
	if err != nil {
		return nil, fmt.Errorf("cache: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// Prune deletes every entry whose path is not in keep and returns the number
// removed.
func (db *DB) Prune(keep map[string]struct{}) (int, error) {
	all, err := db.AllPaths()
	if err != nil {
		return 0, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	n := 0
	for p := range all {
		if _, ok := keep[p]; ok {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM parsed WHERE path = ?`, p); err != nil {
			return 0, fmt.Errorf("cache: prune: %w", err)
		}
		n++
	}
	return n, tx.Commit()
}
