package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/kv"
)

const lockKeyPrefix = "index:lock:"

// indexLock is the advisory TTL lock guarding one indexing run per kind.
// It is not a strict mutual-exclusion primitive: a run that outlives the
// TTL can overlap its successor, a trade accepted for crash resilience
// (a dead holder never blocks past expiry).
type indexLock struct {
	kv      kv.Store
	ttl     time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

func newIndexLock(kvs kv.Store, ttl time.Duration) *indexLock {
	return &indexLock{
		kv:      kvs,
		ttl:     ttl,
		logger:  slog.Default().With("component", "index-lock"),
		nowFunc: time.Now,
	}
}

func lockKey(kind core.Kind) string {
	return lockKeyPrefix + string(kind)
}

// acquire attempts an atomic set-if-absent of the holder token. False
// with a nil error means another live run holds the lock.
func (l *indexLock) acquire(ctx context.Context, kind core.Kind) (bool, error) {
	token := fmt.Sprintf("%d-%08x", l.nowFunc().UnixMilli(), rand.Uint32())
	acquired, err := l.kv.SetIfAbsent(ctx, lockKey(kind), []byte(token), l.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if acquired {
		l.logger.Debug("acquired index lock", "kind", kind, "token", token)
	}
	return acquired, nil
}

// release deletes the lock entry. The holder token is not verified:
// after a TTL expiry this can delete a successor's lock, the same
// narrow race the TTL itself accepts.
func (l *indexLock) release(ctx context.Context, kind core.Kind) error {
	if err := l.kv.Delete(ctx, lockKey(kind)); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	return nil
}
