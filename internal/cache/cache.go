// Package cache keeps fetched calendar and meeting pages in SQLite so repeat
// runs can revalidate them with conditional GETs instead of downloading again.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// Page is a cached HTTP response body with its validators
type Page struct {
	URL          string
	ETag         string
	LastModified string
	ContentType  string
	Body         []byte
	FetchedAt    time.Time
}

// Validated reports whether the page carries a validator usable for a conditional GET
func (p Page) Validated() bool {
	return p.ETag != "" || p.LastModified != ""
}

// Cache is a SQLite-backed page store
type Cache struct {
	db *sql.DB
}

// DefaultPath returns the page cache location under the user's XDG cache directory
func DefaultPath() (string, error) {
	path, err := xdg.CacheFile(filepath.Join("fomc-docs", "pages.db"))
	if err != nil {
		return "", fmt.Errorf("resolving cache path: %w", err)
	}
	return path, nil
}

// Open opens (creating if needed) the cache database at dbPath
func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`
		PRAGMA journal_mode = WAL;
		CREATE TABLE IF NOT EXISTS pages (
			url           TEXT PRIMARY KEY,
			etag          TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			content_type  TEXT NOT NULL DEFAULT '',
			body          BLOB NOT NULL,
			fetched_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached page for url. The boolean is false when nothing is cached.
func (c *Cache) Get(ctx context.Context, url string) (Page, bool, error) {
	var p Page
	err := c.db.QueryRowContext(ctx, `
		SELECT url, etag, last_modified, content_type, body, fetched_at
		FROM pages WHERE url = ?`, url,
	).Scan(&p.URL, &p.ETag, &p.LastModified, &p.ContentType, &p.Body, &p.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("reading cached page %s: %w", url, err)
	}
	return p, true, nil
}

// Put stores or replaces the cached page for p.URL
func (c *Cache) Put(ctx context.Context, p Page) error {
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pages (url, etag, last_modified, content_type, body, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			content_type = excluded.content_type,
			body = excluded.body,
			fetched_at = excluded.fetched_at`,
		p.URL, p.ETag, p.LastModified, p.ContentType, p.Body, p.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("caching page %s: %w", p.URL, err)
	}
	return nil
}

// Len returns the number of cached pages
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cached pages: %w", err)
	}
	return n, nil
}
