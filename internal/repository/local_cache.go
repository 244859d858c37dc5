package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"storefront-builder-service/internal/models"
)

const storesKey = "stores"

// LocalStore persists the whole store collection as one document. Callers
// read, merge and write the full collection.
type LocalStore interface {
	Load(ctx context.Context) ([]models.CachedStore, error)
	Save(ctx context.Context, entries []models.CachedStore) error
}

// LocalCache implements LocalStore on a sqlite key/value table
type LocalCache struct {
	db *sqlx.DB
}

var _ LocalStore = (*LocalCache)(nil)

// OpenLocalCache opens the sqlite database at dsn and ensures its schema
func OpenLocalCache(dsn string) (*LocalCache, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	return NewLocalCache(db)
}

// NewLocalCache wraps an open database and ensures its schema
func NewLocalCache(db *sqlx.DB) (*LocalCache, error) {
	schema := `
CREATE TABLE IF NOT EXISTS local_cache(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create local cache schema: %w", err)
	}
	return &LocalCache{db: db}, nil
}

// Load returns every cached store. An empty cache yields an empty slice.
func (c *LocalCache) Load(ctx context.Context) ([]models.CachedStore, error) {
	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM local_cache WHERE key = ?`, storesKey)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.CachedStore{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local cache: %w", err)
	}

	var entries []models.CachedStore
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode local cache: %w", err)
	}
	return entries, nil
}

// Save replaces the cached collection
func (c *LocalCache) Save(ctx context.Context, entries []models.CachedStore) error {
	if entries == nil {
		entries = []models.CachedStore{}
	}
	value, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode local cache: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO local_cache(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		storesKey, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write local cache: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (c *LocalCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database
func (c *LocalCache) Close() error {
	return c.db.Close()
}
