// Package querycache stores resolved query results in the shared KV
// service for a short TTL, so repeated queries skip the rate limiter,
// the embedding service, and the vector store entirely.
package querycache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"

	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/kv"
)

const (
	keyPrefix = "cache:"

	// DefaultTTL keeps entries minutes-scale. Canonical data and index
	// freshness drift, so cached answers must not outlive them.
	DefaultTTL = 5 * time.Minute
)

// Normalize maps a raw query to its canonical cache form: lower-cased,
// inner whitespace collapsed, trimmed. Semantically identical queries
// normalize to the same string and therefore share one cache slot.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Cache reads and writes cached query results.
type Cache struct {
	kv      kv.Store
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New builds a cache over the shared KV store.
func New(kvs kv.Store) *Cache {
	return &Cache{
		kv:      kvs,
		logger:  slog.Default().With("component", "querycache"),
		nowFunc: time.Now,
	}
}

// Get returns the cached result for query, reporting whether one was
// found. An entry that no longer decodes reads as a miss, never as an
// error; the query path re-resolves and overwrites it.
func (c *Cache) Get(ctx context.Context, query string) (*core.CachedResult, bool, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, false, core.ErrEmptyQuery
	}

	bs, err := c.kv.Get(ctx, keyFor(normalized))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	result, _, err := core.CachedResultMUS.Unmarshal(bs)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", "query", normalized, "err", err)
		return nil, false, nil
	}
	return &result, true, nil
}

// Set stores the matches for query under its normalized form. A ttl of
// zero or less uses DefaultTTL.
func (c *Cache) Set(ctx context.Context, query string, matches []core.SearchMatch, ttl time.Duration) error {
	normalized := Normalize(query)
	if normalized == "" {
		return core.ErrEmptyQuery
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	result := core.CachedResult{
		Query:     normalized,
		Matches:   matches,
		CreatedAt: c.nowFunc().UTC().Truncate(time.Microsecond),
	}
	bs := make([]byte, core.CachedResultMUS.Size(result))
	core.CachedResultMUS.Marshal(result, bs)

	if err := c.kv.Set(ctx, keyFor(normalized), bs, ttl); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// keyFor hashes the normalized query so arbitrary-length text maps to a
// fixed-size key.
func keyFor(normalized string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(normalized))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
