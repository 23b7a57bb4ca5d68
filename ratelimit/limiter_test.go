package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvbadger "github.com/poiesic/semsearch/kv/badger"
)

// testBase sits mid-window: 30s into its minute, 1830s into its hour.
var testBase = time.Date(2025, 6, 15, 10, 30, 30, 0, time.UTC)

func newTestLimiter(t *testing.T, opts ...ConfigOption) (*Limiter, *kvbadger.Store) {
	t.Helper()
	kvs, err := kvbadger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { kvs.Close() })

	l, err := NewLimiter(kvs, NewConfig(opts...))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	l.nowFunc = func() time.Time { return testBase }
	return l, kvs
}

// admit runs one admission and waits for its counter writes to land, so
// successive calls observe each other.
func admit(t *testing.T, l *Limiter, identity string) Decision {
	t.Helper()
	d, err := l.Admit(context.Background(), identity)
	require.NoError(t, err)
	l.pending.Wait()
	return d
}

func TestAdmitShortQuotaBoundary(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 3), WithBurst(1))

	for i := 0; i < 4; i++ {
		d := admit(t, l, "10.0.0.1")
		assert.True(t, d.Allowed, "call %d should be admitted", i+1)
	}

	d := admit(t, l, "10.0.0.1")
	assert.False(t, d.Allowed)
	assert.LessOrEqual(t, d.RetryAfterSeconds, 60)
	assert.Equal(t, 30, d.RetryAfterSeconds)
}

func TestAdmitRemainingCountsDown(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 4), WithBurst(1))

	assert.Equal(t, 4, admit(t, l, "10.0.0.1").Remaining)
	assert.Equal(t, 3, admit(t, l, "10.0.0.1").Remaining)
	assert.Equal(t, 2, admit(t, l, "10.0.0.1").Remaining)
}

func TestAdmitLongQuotaBoundary(t *testing.T) {
	l, _ := newTestLimiter(t,
		WithShortWindow(time.Minute, 100),
		WithBurst(0),
		WithLongWindow(time.Hour, 2))

	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
	assert.True(t, admit(t, l, "10.0.0.1").Allowed)

	d := admit(t, l, "10.0.0.1")
	assert.False(t, d.Allowed)
	assert.LessOrEqual(t, d.RetryAfterSeconds, 3600)
	assert.Equal(t, 1770, d.RetryAfterSeconds)
}

func TestAdmitIdentityIsolation(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 1), WithBurst(0))

	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
	assert.False(t, admit(t, l, "10.0.0.1").Allowed)

	assert.True(t, admit(t, l, "10.0.0.2").Allowed)
}

func TestAdmitUnresolvableIdentityFailOpen(t *testing.T) {
	l, kvs := newTestLimiter(t, WithShortWindow(time.Minute, 1), WithBurst(0))

	for _, identity := range []string{"", "   "} {
		d := admit(t, l, identity)
		assert.True(t, d.Allowed)
		assert.Equal(t, -1, d.Remaining)
	}

	// Unresolvable callers leave no counters behind.
	written := 0
	err := kvs.Scan(context.Background(), keyPrefix, func(string, []byte) error {
		written++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

func TestAdmitStoreFailureFailsOpen(t *testing.T) {
	l, kvs := newTestLimiter(t, WithShortWindow(time.Minute, 1), WithBurst(0))
	require.NoError(t, kvs.Close())

	d, err := l.Admit(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.Remaining)
}

func TestAdmitWindowRollover(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 1), WithBurst(0))
	now := testBase
	l.nowFunc = func() time.Time { return now }

	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
	assert.False(t, admit(t, l, "10.0.0.1").Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
}

func TestAdmitWritesBothWindowCounters(t *testing.T) {
	l, kvs := newTestLimiter(t)

	admit(t, l, "10.0.0.1")

	keys := make([]string, 0, 2)
	err := kvs.Scan(context.Background(), keyPrefix+"10.0.0.1:", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 1), WithBurst(0))
	ctx := context.Background()

	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
	assert.False(t, admit(t, l, "10.0.0.1").Allowed)

	require.NoError(t, l.Reset(ctx, "10.0.0.1"))

	assert.True(t, admit(t, l, "10.0.0.1").Allowed)
}

func TestResetUnresolvableIdentityNoop(t *testing.T) {
	l, _ := newTestLimiter(t)

	assert.NoError(t, l.Reset(context.Background(), ""))
}

func TestRetryAfterBounds(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		window time.Duration
		want   int
	}{
		{"mid window", time.Unix(1030, 0), time.Minute, 50},
		{"window start", time.Unix(1020, 0), time.Minute, 60},
		{"last second", time.Unix(1019, 0), time.Minute, 1},
		{"hour window", time.Unix(1830, 0), time.Hour, 1770},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retryAfter(tt.now, tt.window)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, 0)
			assert.LessOrEqual(t, got, int(tt.window/time.Second))
		})
	}
}

func TestAdmitConcurrentSameIdentity(t *testing.T) {
	l, _ := newTestLimiter(t, WithShortWindow(time.Minute, 50), WithBurst(0))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Admit(context.Background(), "10.0.0.1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	l.pending.Wait()

	// Concurrent increments may collapse, never multiply.
	count, err := l.readCount(context.Background(),
		l.windowKey("10.0.0.1", l.cfg.ShortWindow, testBase))
	require.NoError(t, err)
	assert.Greater(t, count, uint64(0))
	assert.LessOrEqual(t, count, uint64(16))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"sub-second short window", func(c *Config) { c.ShortWindow = 100 * time.Millisecond }, true},
		{"long not longer than short", func(c *Config) { c.LongWindow = c.ShortWindow }, true},
		{"zero short quota", func(c *Config) { c.ShortQuota = 0 }, true},
		{"negative burst", func(c *Config) { c.Burst = -1 }, true},
		{"zero long quota", func(c *Config) { c.LongQuota = 0 }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
