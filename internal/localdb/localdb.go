// Package localdb provides the embedded key-value persistence layer
// backing workspace state.
//
// Each workspace owns one SQLite database file under the data directory,
// storing items, contents, and locations as JSON blobs keyed by record
// id. The database runs in embedded mode with WAL for concurrent reads.
//
// A small shared flags database holds per-workspace local flags
// (last-sync-activity and last-window-focus timestamps) that outlive a
// workspace database but are cleared together with it on teardown.
package localdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrItemNotFound is returned when a key has no stored value.
var ErrItemNotFound = errors.New("item not found")

// DB wraps one workspace database connection.
type DB struct {
	conn *sql.DB
	path string
}

// open creates a connection at the specified path with the pragmas the
// engine relies on.
func open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	// WAL mode for concurrent reads while the daemon writes.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS items (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// LoadItem returns the stored value for key, or ErrItemNotFound.
func (db *DB) LoadItem(key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRow("SELECT value FROM items WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %q: %w", key, err)
	}
	return value, nil
}

// SaveItem stores value under key, replacing any previous value.
func (db *DB) SaveItem(key string, value []byte) error {
	_, err := db.conn.Exec(`
INSERT INTO items (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save item %q: %w", key, err)
	}
	return nil
}

// DeleteItem removes the value stored under key. Idempotent.
func (db *DB) DeleteItem(key string) error {
	if _, err := db.conn.Exec("DELETE FROM items WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete item %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys with the given prefix, sorted.
func (db *DB) Keys(prefix string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT key FROM items WHERE key LIKE ? ESCAPE '\\' ORDER BY key",
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
