// Package cache is the optional best-effort client-side cache: the last
// normalized envelope per function, persisted to Postgres via pgx. Every
// failure is returned to the caller; consumers treat them as non-fatal.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "cache:cache"

// Entry is one cached call outcome.
type Entry struct {
	Function string
	Envelope map[string]interface{}
	Result   interface{}
	Success  *bool
	Message  string
	Updated  time.Time
}

// Cache stores the last envelope per function name.
type Cache struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the cache table exists.
func Open(ctx context.Context, databaseURL string) (*Cache, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to cache database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	c := &Cache{pool: pool}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info(fmt.Sprintf("%s - Cache database ready", logPrefix))
	return c, nil
}

// NewWithPool wraps an existing pool (for tests sharing a connection).
func NewWithPool(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool}
}

// Close releases the connection pool.
func (c *Cache) Close() {
	c.pool.Close()
}

// ensureSchema creates the cache table if missing.
func (c *Cache) ensureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS callable_results (
		   function_name TEXT PRIMARY KEY,
		   envelope      JSONB NOT NULL DEFAULT '{}',
		   result        JSONB,
		   success       BOOLEAN,
		   message       TEXT NOT NULL DEFAULT '',
		   updated       TIMESTAMPTZ NOT NULL
		 )`)
	if err != nil {
		return fmt.Errorf("%s - failed to ensure schema: %w", logPrefix, err)
	}
	return nil
}

// Put upserts the latest outcome for a function.
func (c *Cache) Put(ctx context.Context, entry *Entry) error {
	slog.Debug(fmt.Sprintf("%s - Put function=%s", logPrefix, entry.Function))

	envelopeJSON, err := json.Marshal(entry.Envelope)
	if err != nil {
		return fmt.Errorf("%s - failed to encode envelope: %w", logPrefix, err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("%s - failed to encode result: %w", logPrefix, err)
	}

	now := time.Now().UTC()
	_, err = c.pool.Exec(ctx,
		`INSERT INTO callable_results (function_name, envelope, result, success, message, updated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (function_name) DO UPDATE SET
		   envelope = EXCLUDED.envelope,
		   result   = EXCLUDED.result,
		   success  = EXCLUDED.success,
		   message  = EXCLUDED.message,
		   updated  = EXCLUDED.updated`,
		entry.Function, envelopeJSON, resultJSON, entry.Success, entry.Message, now)
	if err != nil {
		return fmt.Errorf("%s - failed to upsert entry: %w", logPrefix, err)
	}
	return nil
}

// Get returns the cached outcome for a function, or nil when absent.
func (c *Cache) Get(ctx context.Context, function string) (*Entry, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT function_name, envelope, result, success, message, updated
		 FROM callable_results
		 WHERE function_name = $1`, function)

	var entry Entry
	var envelopeJSON, resultJSON []byte
	err := row.Scan(&entry.Function, &envelopeJSON, &resultJSON, &entry.Success, &entry.Message, &entry.Updated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read entry: %w", logPrefix, err)
	}

	if len(envelopeJSON) > 0 {
		if err := json.Unmarshal(envelopeJSON, &entry.Envelope); err != nil {
			return nil, fmt.Errorf("%s - corrupt envelope for %s: %w", logPrefix, function, err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
			return nil, fmt.Errorf("%s - corrupt result for %s: %w", logPrefix, function, err)
		}
	}
	return &entry, nil
}

// Purge removes entries older than the given age and reports how many went.
func (c *Cache) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM callable_results WHERE updated < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - failed to purge: %w", logPrefix, err)
	}
	return tag.RowsAffected(), nil
}
