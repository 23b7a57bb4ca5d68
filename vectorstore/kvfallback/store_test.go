package kvfallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvbadger "github.com/poiesic/semsearch/kv/badger"
	"github.com/poiesic/semsearch/vectorstore"
)

func newTestStore(t *testing.T, dim int) (*Store, *kvbadger.Store) {
	t.Helper()
	kvs, err := kvbadger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { kvs.Close() })
	return New(kvs, dim), kvs
}

func TestUpsertAndQueryRanking(t *testing.T) {
	store, _ := newTestStore(t, 4)
	ctx := context.Background()

	err := store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]string{"name": "Distributed Systems"}},
		{Id: "skill-2", Embedding: []float32{0.9, 0.1, 0, 0}},
		{Id: "technology-1", Embedding: []float32{0, 0, 1, 0}},
	})
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1, 0, 0, 0}, 2)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "skill-1", matches[0].Id)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	assert.Equal(t, "Distributed Systems", matches[0].Metadata["name"])
	assert.Equal(t, "skill-2", matches[1].Id)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestUpsertIdempotent(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	records := []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
		{Id: "skill-2", Embedding: []float32{0, 1}},
	}
	require.NoError(t, store.Upsert(ctx, records))
	require.NoError(t, store.Upsert(ctx, records))

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.ApproxCount)
}

func TestUpsertOverwrites(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{0, 1}},
	}))

	matches, err := store.Query(ctx, []float32{0, 1}, 1)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
}

func TestUpsertNormalizes(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{0, 3}},
	}))

	matches, err := store.Query(ctx, []float32{0, 1}, 1)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t, 4)

	err := store.Upsert(context.Background(), []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	var backendErr *vectorstore.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "kv-fallback", backendErr.Backend)
	assert.Equal(t, "upsert", backendErr.Op)
}

func TestUpsertMissingId(t *testing.T) {
	store, _ := newTestStore(t, 2)

	err := store.Upsert(context.Background(), []vectorstore.Record{
		{Embedding: []float32{1, 0}},
	})

	assert.Error(t, err)
}

func TestQueryDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t, 4)

	_, err := store.Query(context.Background(), []float32{1, 0}, 5)

	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestQueryEmptyStore(t *testing.T) {
	store, _ := newTestStore(t, 2)

	matches, err := store.Query(context.Background(), []float32{1, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQueryZeroTopK(t *testing.T) {
	store, _ := newTestStore(t, 2)

	matches, err := store.Query(context.Background(), []float32{1, 0}, 0)

	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestQueryTieOrderDeterministic(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-2", Embedding: []float32{1, 0}},
		{Id: "skill-1", Embedding: []float32{1, 0}},
	}))

	matches, err := store.Query(ctx, []float32{1, 0}, 5)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "skill-1", matches[0].Id)
	assert.Equal(t, "skill-2", matches[1].Id)
}

func TestQueryIgnoresOtherNamespaces(t *testing.T) {
	store, kvs := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, kvs.Set(ctx, "cache:abc", []byte("payload"), 0))
	require.NoError(t, kvs.Set(ctx, "index:lock:skill", []byte("token"), 0))

	matches, err := store.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.ApproxCount)
}

func TestQuerySkipsCorruptEntries(t *testing.T) {
	store, kvs := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, kvs.Set(ctx, "vector:corrupt", []byte{0xff, 0xff}, 0))

	matches, err := store.Query(ctx, []float32{1, 0}, 10)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "skill-1", matches[0].Id)
}

func TestQuerySkipsWrongDimensionEntries(t *testing.T) {
	store, kvs := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{
		{Id: "skill-1", Embedding: []float32{1, 0}},
	}))
	// A structurally valid entry from an older deployment with a
	// different dimension must not poison queries.
	stale := marshalStoredVector(storedVector{Embedding: []float32{1, 0, 0, 0}})
	require.NoError(t, kvs.Set(ctx, "vector:skill-9", stale, 0))

	matches, err := store.Query(ctx, []float32{1, 0}, 10)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "skill-1", matches[0].Id)
}

func TestInfo(t *testing.T) {
	store, _ := newTestStore(t, 768)

	info, err := store.Info(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "kv-fallback", info.Backend)
	assert.Equal(t, 768, info.Dimension)
	assert.Equal(t, int64(0), info.ApproxCount)
}

func TestIsHealthy(t *testing.T) {
	store, kvs := newTestStore(t, 2)
	ctx := context.Background()

	assert.True(t, store.IsHealthy(ctx))

	require.NoError(t, kvs.Close())
	assert.False(t, store.IsHealthy(ctx))
}

func TestCodecRoundTrip(t *testing.T) {
	in := storedVector{
		Embedding: []float32{0.25, -0.5, 0.75},
		Metadata:  map[string]string{"kind": "skill", "name": "Machine Learning"},
	}

	out, err := unmarshalStoredVector(marshalStoredVector(in))

	require.NoError(t, err)
	assert.Equal(t, in.Embedding, out.Embedding)
	assert.Equal(t, in.Metadata, out.Metadata)
}
