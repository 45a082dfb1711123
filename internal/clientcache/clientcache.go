// Package clientcache is an ephemeral, TTL-scoped response cache for
// upstream provider adapters, backed by a throwaway sqlite file rather than
// the durable Postgres trade store. Its job is to absorb bursts of
// duplicate quote/chain/fundamentals lookups within a scan window, not to
// persist anything across restarts.
package clientcache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache wraps a sqlite connection used purely as a key/value TTL store.
type Cache struct {
	conn *sql.DB
}

// Open creates (or reopens) the cache database at path, in WAL mode,
// using the same connection-pool sizing conventions as the rest of this project.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create clientcache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open clientcache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping clientcache: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)

	c := &Cache{conn: conn}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.conn.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			cache_key   TEXT PRIMARY KEY,
			value       BLOB NOT NULL,
			expires_at  INTEGER NOT NULL
		)
	`)
	return err
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt int64
	err := c.conn.QueryRow(`SELECT value, expires_at FROM entries WHERE cache_key = ?`, key).
		Scan(&value, &expiresAt)
	if err != nil {
		return nil, false
	}
	if time.Now().Unix() > expiresAt {
		_, _ = c.conn.Exec(`DELETE FROM entries WHERE cache_key = ?`, key)
		return nil, false
	}
	return value, true
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := c.conn.Exec(`
		INSERT INTO entries (cache_key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	return err
}

// Purge deletes every expired row; callers run this periodically (e.g. from
// the scheduler) to bound the cache file's growth.
func (c *Cache) Purge() (int64, error) {
	res, err := c.conn.Exec(`DELETE FROM entries WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
