package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CacheEntry is one cached server row for offline reads.
type CacheEntry struct {
	Key      string          `json:"key"`
	Data     json.RawMessage `json:"data"`
	CachedAt int64           `json:"cached_at,omitempty"` // epoch milliseconds, set by the store
}

// BulkReplace atomically replaces every cached row of a collection.
// Passing no entries empties the collection.
func (s *Store) BulkReplace(ctx context.Context, collection string, entries []CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bulk replace: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM offline_cache WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("bulk replace: clear %q: %w", collection, err)
	}

	now := time.Now().UnixMilli()
	for _, e := range entries {
		if !json.Valid(e.Data) {
			return fmt.Errorf("bulk replace: entry %q: invalid JSON", e.Key)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO offline_cache (collection, key, data, cached_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, key) DO UPDATE
			SET data = excluded.data, cached_at = excluded.cached_at
		`, collection, e.Key, string(e.Data), now)
		if err != nil {
			return fmt.Errorf("bulk replace: insert %q: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bulk replace: commit: %w", err)
	}
	return nil
}

// ListCache returns a collection's cached rows ordered by key.
func (s *Store) ListCache(ctx context.Context, collection string) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, data, cached_at
		FROM offline_cache
		WHERE collection = ?
		ORDER BY key ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	entries := []CacheEntry{}
	for rows.Next() {
		var e CacheEntry
		var data string
		if err := rows.Scan(&e.Key, &data, &e.CachedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.Data = json.RawMessage(data)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache: %w", err)
	}

	return entries, nil
}
