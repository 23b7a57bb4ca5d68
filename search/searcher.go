package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/poiesic/semsearch/ai"
	"github.com/poiesic/semsearch/catalog"
	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/querycache"
	"github.com/poiesic/semsearch/ratelimit"
	"github.com/poiesic/semsearch/vectorstore"
)

const (
	// cacheWriteTimeout bounds a detached cache write. The caller is
	// never waiting on it.
	cacheWriteTimeout = 5 * time.Second

	// defaultCacheWorkers sizes the pool draining detached cache writes.
	defaultCacheWorkers = 2
)

// Request is one inbound search call.
type Request struct {
	// Query is the free-text query. Must be non-blank.
	Query string

	// TopK is the maximum number of matches to return. Values outside
	// [1, core.MaxTopK] are clamped.
	TopK int

	// Identity is the caller's rate-limit identity, usually a client
	// address. Blank identities are admitted without quota tracking.
	Identity string
}

// Response is a ranked, resolved result set.
type Response struct {
	// Matches is ordered best-first. Scores are backend-native; compare
	// them only between matches with the same Source.
	Matches []core.SearchMatch

	// Cached is true when the response was served from the query cache
	// without consuming quota.
	Cached bool
}

// Searcher composes the full query path over the semantic index: cache
// lookup, admission, embedding, vector search, canonical resolution,
// and the detached cache write-back.
type Searcher struct {
	cache    *querycache.Cache
	limiter  *ratelimit.Limiter
	embedder ai.Embedder
	vectors  vectorstore.Store
	source   catalog.Source
	workers  int
	cacheTTL time.Duration
	flight   singleflight.Group
	pool     *ants.Pool
	pending  sync.WaitGroup
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCacheWorkers sets the size of the pool draining detached cache
// writes.
// Default is 2.
func WithCacheWorkers(workers int) Option {
	return func(s *Searcher) error {
		if workers <= 0 {
			return ErrInvalidCacheWorkers
		}
		s.workers = workers
		return nil
	}
}

// WithCacheTTL sets how long written-back results live.
// Default is querycache.DefaultTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		s.cacheTTL = ttl
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	cache *querycache.Cache,
	limiter *ratelimit.Limiter,
	embedder ai.Embedder,
	vectors vectorstore.Store,
	source catalog.Source,
	opts ...Option,
) (*Searcher, error) {
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if limiter == nil {
		return nil, ErrLimiterRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if source == nil {
		return nil, ErrCatalogRequired
	}

	s := &Searcher{
		cache:    cache,
		limiter:  limiter,
		embedder: embedder,
		vectors:  vectors,
		source:   source,
		workers:  defaultCacheWorkers,
		logger:   slog.Default().With("component", "searcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache writer pool: %w", err)
	}
	s.pool = pool

	return s, nil
}

// Search answers one query. A cache hit returns immediately without
// consuming quota; on a miss the caller passes rate-limit admission
// before any embedding work happens, and concurrent identical queries
// collapse into one embed-and-search flight.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor answers one query with stage callbacks.
// The monitor receives callbacks at each stage of the query path.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if err := core.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	topK := core.ClampTopK(req.TopK)
	normalized := querycache.Normalize(req.Query)

	monitor.Start(normalized)

	cached, hit, err := s.cache.Get(ctx, req.Query)
	if err != nil {
		s.logger.Warn("cache lookup failed", "err", err)
	}
	if hit {
		// The slot is keyed by query text alone, so a hit answers any
		// TopK; longer cached sets are truncated.
		matches := cached.Matches
		if len(matches) > topK {
			matches = matches[:topK]
		}
		monitor.CacheHit(len(matches))
		resp := &Response{Matches: matches, Cached: true}
		monitor.Finish(resp)
		return resp, nil
	}
	monitor.CacheMiss()

	decision, err := s.limiter.Admit(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		monitor.AdmissionDenied(decision.RetryAfterSeconds)
		return nil, &core.AdmissionError{
			Identity:          req.Identity,
			RetryAfterSeconds: decision.RetryAfterSeconds,
		}
	}

	// Admission is per caller; only the downstream work is shared.
	key := normalized + "|" + strconv.Itoa(topK)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.resolve(ctx, normalized, topK, monitor)
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{Matches: v.([]core.SearchMatch)}
	monitor.Finish(resp)
	return resp, nil
}

// Close drains pending cache writes and releases the worker pool.
func (s *Searcher) Close() error {
	s.pending.Wait()
	s.pool.Release()
	return nil
}

// resolve executes the expensive half of a query: embed, search the
// failover store, hydrate matches from the catalog, and hand the result
// to the cache writer pool.
func (s *Searcher) resolve(ctx context.Context, normalized string, topK int, monitor SearchMonitor) ([]core.SearchMatch, error) {
	embedding, err := s.embedder.EmbedText(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	monitor.AfterEmbedding(len(embedding))

	hits, err := s.vectors.Query(ctx, vectorstore.NormalizeVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	monitor.AfterVectorQuery(hits)

	matches, err := s.resolveMatches(ctx, hits, monitor)
	if err != nil {
		return nil, err
	}

	s.dispatchCacheWrite(normalized, matches)
	return matches, nil
}

// resolveMatches maps vector ids back to canonical records, preserving
// the store's ranking. Matches whose id does not parse or whose record
// is gone from the catalog are dropped, not errors: the index may lag
// the canonical store between passes.
func (s *Searcher) resolveMatches(ctx context.Context, hits []vectorstore.Match, monitor SearchMonitor) ([]core.SearchMatch, error) {
	idsByKind := make(map[core.Kind][]core.ID)
	resolvable := make(map[string]bool, len(hits))
	for _, hit := range hits {
		kind, id, err := catalog.ParseVectorID(hit.Id)
		if err != nil {
			s.logger.Warn("dropping match with unresolvable vector id", "vector_id", hit.Id, "err", err)
			monitor.DroppedMatch(hit.Id)
			continue
		}
		resolvable[hit.Id] = true
		idsByKind[kind] = append(idsByKind[kind], id)
	}

	records := make(map[string]catalog.Record)
	for kind, ids := range idsByKind {
		recs, err := s.source.ByIDs(ctx, kind, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve canonical records: %w", err)
		}
		for _, rec := range recs {
			records[rec.VectorID()] = rec
		}
	}

	matches := make([]core.SearchMatch, 0, len(hits))
	for _, hit := range hits {
		rec, ok := records[hit.Id]
		if !ok {
			if resolvable[hit.Id] {
				s.logger.Warn("dropping match without canonical record", "vector_id", hit.Id)
				monitor.DroppedMatch(hit.Id)
			}
			continue
		}
		matches = append(matches, core.SearchMatch{
			RecordId: rec.Id,
			Kind:     rec.Kind,
			Name:     rec.Name,
			Category: rec.Category,
			Summary:  rec.Summary,
			Score:    hit.Score,
			Source:   string(hit.Source),
		})
	}
	return matches, nil
}

// dispatchCacheWrite hands a freshly resolved result to the worker
// pool. Completion is not awaited and failure is swallowed; a lost
// write only means a later query recomputes the same answer.
func (s *Searcher) dispatchCacheWrite(normalized string, matches []core.SearchMatch) {
	s.pending.Add(1)
	err := s.pool.Submit(func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		if err := s.cache.Set(ctx, normalized, matches, s.cacheTTL); err != nil {
			s.logger.Warn("cache write failed", "query", normalized, "err", err)
		}
	})
	if err != nil {
		s.pending.Done()
		s.logger.Warn("cache write dropped", "query", normalized, "err", err)
	}
}
