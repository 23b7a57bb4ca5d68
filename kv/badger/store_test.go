package badger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semsearch/kv"
)

func TestOpenStore_InMemory(t *testing.T) {
	store, err := OpenStore("", true)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	assert.False(t, store.IsClosed())
}

func TestOpenStore_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := OpenStore(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	assert.False(t, store.IsClosed())
}

func TestStoreClose(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)

	assert.False(t, store.IsClosed())

	err = store.Close()
	require.NoError(t, err)

	assert.True(t, store.IsClosed())

	_, err = store.Get(context.Background(), "any")
	assert.ErrorIs(t, err, kv.ErrStoreClosed)
}

func TestSetGet(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.Set(ctx, "cache:abc", []byte("payload"), 0)
	require.NoError(t, err)

	value, err := store.Get(ctx, "cache:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

func TestGet_Missing(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "no:such:key")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestSet_TTLExpiry(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.Set(ctx, "expiring", []byte("soon gone"), 1*time.Second)
	require.NoError(t, err)

	_, err = store.Get(ctx, "expiring")
	require.NoError(t, err)

	// Badger tracks expiry at second granularity, so wait past the
	// boundary with margin.
	time.Sleep(2100 * time.Millisecond)

	_, err = store.Get(ctx, "expiring")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestSetIfAbsent(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	acquired, err := store.SetIfAbsent(ctx, "index:lock:skill", []byte("holder-1"), 0)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.SetIfAbsent(ctx, "index:lock:skill", []byte("holder-2"), 0)
	require.NoError(t, err)
	assert.False(t, acquired)

	// First writer's value survives
	value, err := store.Get(ctx, "index:lock:skill")
	require.NoError(t, err)
	assert.Equal(t, []byte("holder-1"), value)
}

func TestSetIfAbsent_Concurrent(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	const contenders = 8

	var wg sync.WaitGroup
	wins := make([]bool, contenders)
	errs := make([]error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i], errs[i] = store.SetIfAbsent(ctx, "contended", []byte{byte(i)}, 0)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < contenders; i++ {
		require.NoError(t, errs[i])
		if wins[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSetIfAbsent_AfterExpiry(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	acquired, err := store.SetIfAbsent(ctx, "lease", []byte("a"), 1*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(2100 * time.Millisecond)

	acquired, err = store.SetIfAbsent(ctx, "lease", []byte("b"), 0)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestDelete(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "doomed", []byte("x"), 0))
	require.NoError(t, store.Delete(ctx, "doomed"))

	_, err = store.Get(ctx, "doomed")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	// Deleting an absent key is not an error
	assert.NoError(t, store.Delete(ctx, "doomed"))
}

func TestScan_PrefixIsolation(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	entries := map[string]string{
		"vector:skill-1":      "a",
		"vector:skill-2":      "b",
		"vector:technology-1": "c",
		"cache:deadbeef":      "d",
	}
	for k, v := range entries {
		require.NoError(t, store.Set(ctx, k, []byte(v), 0))
	}

	seen := make(map[string]string)
	err = store.Scan(ctx, "vector:skill-", func(key string, value []byte) error {
		seen[key] = string(value)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 2)
	assert.Equal(t, "a", seen["vector:skill-1"])
	assert.Equal(t, "b", seen["vector:skill-2"])
}

func TestScan_CallbackError(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "p:1", []byte("x"), 0))
	require.NoError(t, store.Set(ctx, "p:2", []byte("y"), 0))

	boom := errors.New("boom")
	visited := 0
	err = store.Scan(ctx, "p:", func(string, []byte) error {
		visited++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, visited)
}

func TestScan_CancelledContext(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "p:1", []byte("x"), 0))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err = store.Scan(cancelled, "p:", func(string, []byte) error {
		t.Fatal("callback should not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
