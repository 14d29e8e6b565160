// Package clientdata provides persistent caching for external API client responses.
// Entries are msgpack blobs keyed by call signature, each with an expiration timestamp.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/dart-ebitda/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores upstream responses in SQLite. The database is opened and
// migrated once, on first use.
type Cache struct {
	handle     func() (*sql.DB, error)
	opened     atomic.Bool
	owned      *database.DB
	defaultTTL time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL sets the lifetime used when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache returns a cache backed by the SQLite database described by cfg.
// Nothing is opened until the first operation.
func NewCache(cfg database.Config, log zerolog.Logger, opts ...Option) *Cache {
	c := newCache(log, opts...)
	c.handle = sync.OnceValues(func() (*sql.DB, error) {
		db, err := database.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		c.owned = db
		c.opened.Store(true)
		c.log.Debug().Str("path", db.Path()).Msg("Cache database ready")
		return db.Conn(), nil
	})
	return c
}

// NewCacheFromDB wraps an already migrated connection. The caller owns db.
func NewCacheFromDB(db *sql.DB, log zerolog.Logger, opts ...Option) *Cache {
	c := newCache(log, opts...)
	c.handle = func() (*sql.DB, error) { return db, nil }
	return c
}

func newCache(log zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		defaultTTL: DefaultTTL,
		now:        time.Now,
		log:        log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the live entry for sig into dst.
// It reports false, without error, when the entry is missing or expired.
// Expired entries are removed on the way out.
func (c *Cache) Get(ctx context.Context, sig Signature, dst any) (bool, error) {
	key, db, err := c.prepare(sig)
	if err != nil {
		return false, err
	}

	var value []byte
	var expiresAt int64
	err = db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt <= c.now().UnixMilli() {
		if _, err := db.ExecContext(ctx, "DELETE FROM cache WHERE key = ? AND expires_at = ?", key, expiresAt); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to purge expired cache entry")
		}
		return false, nil
	}

	if err := msgpack.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return true, nil
}

// Set stores value under sig, replacing any previous entry.
// A ttl <= 0 uses the cache's default lifetime.
func (c *Cache) Set(ctx context.Context, sig Signature, value any, ttl time.Duration) error {
	key, db, err := c.prepare(sig)
	if err != nil {
		return err
	}

	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	createdAt := c.now().UnixMilli()
	expiresAt := createdAt + max(ttl.Milliseconds(), 1)

	_, err = db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)",
		key, encoded, createdAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for sig, if any.
func (c *Cache) Delete(ctx context.Context, sig Signature) error {
	key, db, err := c.prepare(sig)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	db, err := c.handle()
	if err != nil {
		return 0, fmt.Errorf("cache unavailable: %w", err)
	}

	result, err := db.ExecContext(ctx, "DELETE FROM cache WHERE expires_at <= ?", c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Close releases the database if the cache opened it.
func (c *Cache) Close() error {
	if !c.opened.Load() {
		return nil
	}
	return c.owned.Close()
}

// Conn returns the underlying connection, opening the database if needed.
func (c *Cache) Conn() (*sql.DB, error) {
	return c.handle()
}

// Stats reports the size of the cache database. It returns nil stats when
// the database has not been opened yet or is owned by the caller.
func (c *Cache) Stats(ctx context.Context) (*database.Stats, error) {
	if !c.opened.Load() {
		return nil, nil
	}
	return c.owned.GetStats(ctx)
}

func (c *Cache) prepare(sig Signature) (string, *sql.DB, error) {
	key, err := sig.Key()
	if err != nil {
		return "", nil, err
	}
	db, err := c.handle()
	if err != nil {
		return "", nil, fmt.Errorf("cache unavailable: %w", err)
	}
	return key, db, nil
}
