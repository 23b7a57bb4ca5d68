// Package kvfallback implements the vector store contract on top of the
// shared key-value service. Each record is one namespaced entry and
// queries scan the full namespace computing cosine similarity, which is
// O(n) per query and acceptable only for small fallback corpora.
package kvfallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/semsearch/kv"
	"github.com/poiesic/semsearch/vectorstore"
)

const (
	backendName = "kv-fallback"
	keyPrefix   = "vector:"
)

// Store holds vectors as KV entries under the vector: namespace.
// Embeddings are normalized to unit length at upsert, so the dot
// product at query time is cosine similarity.
type Store struct {
	kv     kv.Store
	dim    int
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// New builds a fallback store over kvs. All embeddings written to and
// queried against the store must have the given dimension.
func New(kvs kv.Store, dimension int) *Store {
	return &Store{
		kv:     kvs,
		dim:    dimension,
		logger: slog.Default().With("component", "vector-fallback"),
	}
}

// Query scores the query embedding against every stored vector and
// returns the topK by descending similarity. Ties break on record id so
// result order is deterministic. Entries that fail to decode are
// skipped and counted rather than failing the query; the fallback path
// exists to stay up when the rest of the system is not.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, s.wrap("query", fmt.Errorf("%w: got %d, want %d",
			vectorstore.ErrDimensionMismatch, len(embedding), s.dim))
	}

	query := vectorstore.NormalizeVector(embedding)

	var matches []vectorstore.Match
	var skipped int
	err := s.kv.Scan(ctx, keyPrefix, func(key string, value []byte) error {
		sv, err := unmarshalStoredVector(value)
		if err != nil || len(sv.Embedding) != s.dim {
			skipped++
			return nil
		}
		matches = append(matches, vectorstore.Match{
			Id:       strings.TrimPrefix(key, keyPrefix),
			Score:    vectorstore.DotProduct(query, sv.Embedding),
			Metadata: sv.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, s.wrap("query", err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped unreadable fallback vectors", "count", skipped)
	}

	slices.SortFunc(matches, func(a, b vectorstore.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Id, b.Id)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Upsert writes each record under its namespaced key, overwriting any
// previous entry with the same id. Embeddings are normalized before
// storage.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	for _, rec := range records {
		if rec.Id == "" {
			return s.wrap("upsert", fmt.Errorf("record id is required"))
		}
		if len(rec.Embedding) != s.dim {
			return s.wrap("upsert", fmt.Errorf("%w: record %s has %d, want %d",
				vectorstore.ErrDimensionMismatch, rec.Id, len(rec.Embedding), s.dim))
		}
		value := marshalStoredVector(storedVector{
			Embedding: vectorstore.NormalizeVector(rec.Embedding),
			Metadata:  rec.Metadata,
		})
		if err := s.kv.Set(ctx, keyPrefix+rec.Id, value, 0); err != nil {
			return s.wrap("upsert", err)
		}
	}
	return nil
}

// Info counts the stored vectors. The count is exact, not approximate,
// since the corpus is scanned anyway.
func (s *Store) Info(ctx context.Context) (vectorstore.Info, error) {
	var count int64
	err := s.kv.Scan(ctx, keyPrefix, func(string, []byte) error {
		count++
		return nil
	})
	if err != nil {
		return vectorstore.Info{}, s.wrap("stats", err)
	}
	return vectorstore.Info{
		Backend:     backendName,
		Dimension:   s.dim,
		ApproxCount: count,
	}, nil
}

// IsHealthy probes the underlying KV store with a cheap read. A missing
// probe key still proves the store answers.
func (s *Store) IsHealthy(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, keyPrefix+"healthcheck")
	return err == nil || errors.Is(err, kv.ErrKeyNotFound)
}

func (s *Store) wrap(op string, err error) error {
	return &vectorstore.BackendError{Backend: backendName, Op: op, Err: err}
}
