// Package ratelimit admits or denies callers against two overlapping
// fixed windows whose counters live in the shared key-value service.
// Window keys are derived from wall-clock time, so concurrent limiter
// instances converge on the same counters without coordination. Counts
// are approximate under concurrency; the quota protects a soft inference
// budget, not a safety invariant.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mus-format/mus-go/varint"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/semsearch/kv"
)

const (
	keyPrefix = "ratelimit:"

	// incrementTimeout bounds the detached counter writes so a stuck
	// store cannot pile up workers.
	incrementTimeout = 5 * time.Second
)

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the caller may proceed.
	Allowed bool

	// RetryAfterSeconds is the number of seconds until the denying
	// window rolls over. Only set when Allowed is false.
	RetryAfterSeconds int

	// Remaining is the tighter of the two per-window allowances after
	// this call, or -1 when the caller's identity is unresolvable and
	// no counters are tracked.
	Remaining int
}

// Limiter evaluates a short and a long window per call. Counter
// increments happen off the admission path: the decision is returned
// without waiting for them, so a crash may lose a write. That slightly
// over-admits near a boundary, which the soft quota tolerates.
type Limiter struct {
	kv      kv.Store
	cfg     *Config
	pool    *ants.Pool
	pending sync.WaitGroup
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewLimiter builds a limiter over the shared KV store. A nil cfg uses
// DefaultConfig.
func NewLimiter(kvs kv.Store, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create increment pool: %w", err)
	}

	return &Limiter{
		kv:      kvs,
		cfg:     cfg,
		pool:    pool,
		logger:  slog.Default().With("component", "ratelimit"),
		nowFunc: time.Now,
	}, nil
}

// Admit decides whether the identified caller may proceed. Callers with
// no resolvable identity are always admitted; blocking legitimate
// local traffic is worse than the abuse window this opens, see the
// package doc. A failing counter store also admits, with a warning:
// the limiter guards a budget, it must not take the query path down.
func (l *Limiter) Admit(ctx context.Context, identity string) (Decision, error) {
	if strings.TrimSpace(identity) == "" {
		l.logger.Debug("admitting caller with unresolvable identity")
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	now := l.nowFunc()
	shortKey := l.windowKey(identity, l.cfg.ShortWindow, now)
	longKey := l.windowKey(identity, l.cfg.LongWindow, now)

	shortCount, err := l.readCount(ctx, shortKey)
	if err != nil {
		l.logger.Warn("counter read failed, admitting", "key", shortKey, "err", err)
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	longCount, err := l.readCount(ctx, longKey)
	if err != nil {
		l.logger.Warn("counter read failed, admitting", "key", longKey, "err", err)
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	shortLimit := uint64(l.cfg.ShortQuota + l.cfg.Burst)
	if shortCount >= shortLimit {
		return Decision{RetryAfterSeconds: retryAfter(now, l.cfg.ShortWindow)}, nil
	}
	if longCount >= uint64(l.cfg.LongQuota) {
		return Decision{RetryAfterSeconds: retryAfter(now, l.cfg.LongWindow)}, nil
	}

	l.dispatchIncrement(shortKey, l.cfg.ShortWindow)
	l.dispatchIncrement(longKey, l.cfg.LongWindow)

	remaining := int(shortLimit - shortCount - 1)
	if longRemaining := l.cfg.LongQuota - int(longCount) - 1; longRemaining < remaining {
		remaining = longRemaining
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Reset deletes the caller's counters for both current windows,
// re-admitting it immediately. Identities without counters reset to a
// no-op.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return nil
	}

	now := l.nowFunc()
	if err := l.kv.Delete(ctx, l.windowKey(identity, l.cfg.ShortWindow, now)); err != nil {
		return fmt.Errorf("failed to reset short-window counter: %w", err)
	}
	if err := l.kv.Delete(ctx, l.windowKey(identity, l.cfg.LongWindow, now)); err != nil {
		return fmt.Errorf("failed to reset long-window counter: %w", err)
	}
	return nil
}

// Close drains in-flight counter writes and releases the worker pool.
func (l *Limiter) Close() error {
	l.pending.Wait()
	l.pool.Release()
	return nil
}

// dispatchIncrement queues a counter write without awaiting it. The
// task re-reads the counter so a stale in-flight value cannot roll the
// count backwards.
func (l *Limiter) dispatchIncrement(key string, window time.Duration) {
	l.pending.Add(1)
	err := l.pool.Submit(func() {
		defer l.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), incrementTimeout)
		defer cancel()

		count, err := l.readCount(ctx, key)
		if err != nil {
			l.logger.Warn("counter increment read failed", "key", key, "err", err)
			return
		}
		bs := make([]byte, varint.Uint64.Size(count+1))
		varint.Uint64.Marshal(count+1, bs)
		// TTL spans two windows so a counter created late in a window
		// outlives the boundary overlap.
		if err := l.kv.Set(ctx, key, bs, 2*window); err != nil {
			l.logger.Warn("counter increment write failed", "key", key, "err", err)
		}
	})
	if err != nil {
		l.pending.Done()
		l.logger.Warn("counter increment dropped", "key", key, "err", err)
	}
}

func (l *Limiter) readCount(ctx context.Context, key string) (uint64, error) {
	bs, err := l.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, _, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		l.logger.Warn("discarding undecodable counter", "key", key, "err", err)
		return 0, nil
	}
	return count, nil
}

// windowKey is deterministic from wall-clock time: every limiter
// instance computes the same key for the same identity and instant.
func (l *Limiter) windowKey(identity string, window time.Duration, now time.Time) string {
	index := now.UnixMilli() / window.Milliseconds()
	return fmt.Sprintf("%s%s:%d:%d", keyPrefix, identity, int64(window/time.Second), index)
}

func retryAfter(now time.Time, window time.Duration) int {
	windowSecs := int64(window / time.Second)
	return int(windowSecs - now.Unix()%windowSecs)
}
