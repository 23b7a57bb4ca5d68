// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package semsearch

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/semsearch/ai"
	"github.com/poiesic/semsearch/ai/openai"
	"github.com/poiesic/semsearch/catalog"
	catsqlite "github.com/poiesic/semsearch/catalog/sqlite"
	"github.com/poiesic/semsearch/config"
	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/indexer"
	"github.com/poiesic/semsearch/kv"
	kvbadger "github.com/poiesic/semsearch/kv/badger"
	"github.com/poiesic/semsearch/querycache"
	"github.com/poiesic/semsearch/ratelimit"
	"github.com/poiesic/semsearch/search"
	"github.com/poiesic/semsearch/vectorstore"
	"github.com/poiesic/semsearch/vectorstore/kvfallback"
	"github.com/poiesic/semsearch/vectorstore/remote"
)

// Engine wires the stores, the rate limiter, the indexer and the
// searcher into one handle. It is the single entry point for the HTTP
// layer, the MCP tools and the CLI.
type Engine struct {
	cfg      *config.Config
	kvs      *kvbadger.Store
	source   *catsqlite.Store
	embedder ai.Embedder
	vectors  *vectorstore.Failover
	limiter  *ratelimit.Limiter
	cache    *querycache.Cache
	indexer  *indexer.Indexer
	searcher *search.Searcher
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger   *slog.Logger
	embedder ai.Embedder
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmbedder replaces the OpenAI-compatible embedder built from the
// configuration. Used by tests and by deployments with a custom
// embedding client.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		if embedder != nil {
			o.embedder = embedder
		}
	}
}

func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	// Apply options
	options := &engineOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger.With("component", "engine")

	// Open the shared key-value store
	kvs, err := kvbadger.OpenStore(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		return nil, err
	}

	// Open the canonical record catalog
	source, err := catsqlite.Open(cfg.Catalog.Path)
	if err != nil {
		kvs.Close()
		return nil, err
	}

	// Create the embedder unless one was injected
	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(ai.NewConfig(
			ai.WithHost(cfg.Embedding.Host),
			ai.WithEmbeddingModel(cfg.Embedding.Model),
			ai.WithDimension(cfg.Embedding.Dimension),
		))
		if err != nil {
			source.Close()
			kvs.Close()
			return nil, err
		}
	}

	// Connect the managed vector index when configured; queries fall
	// back to the key-value store when it is absent or down
	var primary vectorstore.Store
	if cfg.VectorIndex.Endpoint != "" {
		var remoteOpts []remote.Option
		if cfg.VectorIndex.TimeoutSeconds > 0 {
			remoteOpts = append(remoteOpts, remote.WithTimeout(time.Duration(cfg.VectorIndex.TimeoutSeconds)*time.Second))
		}
		client, err := remote.NewClient(cfg.VectorIndex.Endpoint, cfg.VectorIndex.Index, remoteOpts...)
		if err != nil {
			source.Close()
			kvs.Close()
			return nil, err
		}
		primary = client
	}
	vectors := vectorstore.NewFailover(primary, kvfallback.New(kvs, cfg.Embedding.Dimension))

	// Create the admission limiter
	limiter, err := ratelimit.NewLimiter(kvs, &ratelimit.Config{
		ShortWindow: time.Duration(cfg.RateLimit.ShortWindowSeconds) * time.Second,
		ShortQuota:  cfg.RateLimit.ShortQuota,
		Burst:       cfg.RateLimit.Burst,
		LongWindow:  time.Duration(cfg.RateLimit.LongWindowSeconds) * time.Second,
		LongQuota:   cfg.RateLimit.LongQuota,
		Workers:     cfg.RateLimit.Workers,
	})
	if err != nil {
		source.Close()
		kvs.Close()
		return nil, err
	}

	cache := querycache.New(kvs)

	// Create the indexing pipeline
	ix, err := indexer.NewIndexer(kvs, source, embedder, vectors, &indexer.Config{
		LockTTL:             time.Duration(cfg.Indexing.LockTTLSeconds) * time.Second,
		DefaultBatchSize:    cfg.Indexing.DefaultBatchSize,
		MaxBatchSize:        cfg.Indexing.MaxBatchSize,
		MaxRetries:          cfg.Indexing.MaxRetries,
		RetryDelay:          time.Duration(cfg.Indexing.RetryDelayMillis) * time.Millisecond,
		EmbedCallsPerSecond: cfg.Indexing.EmbedCallsPerSecond,
		EmbedBurst:          cfg.Indexing.EmbedBurst,
	})
	if err != nil {
		limiter.Close()
		source.Close()
		kvs.Close()
		return nil, err
	}

	// Create the search orchestrator
	searchOpts := []search.Option{search.WithLogger(options.logger)}
	if cfg.Cache.TTLSeconds > 0 {
		searchOpts = append(searchOpts, search.WithCacheTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second))
	}
	if cfg.Cache.WriteWorkers > 0 {
		searchOpts = append(searchOpts, search.WithCacheWorkers(cfg.Cache.WriteWorkers))
	}
	searcher, err := search.NewSearcher(cache, limiter, embedder, vectors, source, searchOpts...)
	if err != nil {
		limiter.Close()
		source.Close()
		kvs.Close()
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		kvs:      kvs,
		source:   source,
		embedder: embedder,
		vectors:  vectors,
		limiter:  limiter,
		cache:    cache,
		indexer:  ix,
		searcher: searcher,
		logger:   logger,
	}, nil
}

func (e *Engine) Close() error {
	// Drain the searcher's detached cache writes first
	if err := e.searcher.Close(); err != nil {
		e.logger.Error("error closing searcher", "err", err)
	}

	// Drain the limiter's counter increments
	if err := e.limiter.Close(); err != nil {
		e.logger.Error("error closing rate limiter", "err", err)
	}

	// Close the stores
	if err := e.source.Close(); err != nil {
		e.logger.Error("error closing catalog", "err", err)
		return err
	}
	if err := e.kvs.Close(); err != nil {
		e.logger.Error("error closing key-value store", "err", err)
		return err
	}
	return nil
}

// Search runs a federated semantic search for the request.
func (e *Engine) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return e.searcher.Search(ctx, req)
}

// CheckRateLimit answers whether the identity may issue a request now.
// The decision consumes quota when allowed.
func (e *Engine) CheckRateLimit(ctx context.Context, identity string) (ratelimit.Decision, error) {
	return e.limiter.Admit(ctx, identity)
}

// ResetRateLimit clears the admission counters for the identity.
func (e *Engine) ResetRateLimit(ctx context.Context, identity string) error {
	return e.limiter.Reset(ctx, identity)
}

// TriggerIndexResume starts or resumes an indexing pass for the kind.
func (e *Engine) TriggerIndexResume(ctx context.Context, kind core.Kind, batchSize int) (indexer.Result, error) {
	return e.indexer.Resume(ctx, kind, batchSize)
}

// IndexProgress reports the current checkpoint for the kind, or nil
// when no pass has run.
func (e *Engine) IndexProgress(ctx context.Context, kind core.Kind) (*core.Checkpoint, error) {
	return e.indexer.Progress(ctx, kind)
}

// StopIndexing pauses the active indexing pass for the kind.
func (e *Engine) StopIndexing(ctx context.Context, kind core.Kind) error {
	return e.indexer.Stop(ctx, kind)
}

// Healthy reports whether the engine can serve queries.
func (e *Engine) Healthy(ctx context.Context) bool {
	return !e.kvs.IsClosed() && e.vectors.IsHealthy(ctx)
}

// Seed loads the built-in record corpus into an empty catalog. It
// returns the number of records inserted, zero when the catalog
// already holds records.
func (e *Engine) Seed(ctx context.Context) (int, error) {
	for _, kind := range core.AllKinds() {
		n, err := e.source.Count(ctx, kind)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, nil
		}
	}

	inserted, err := e.source.Insert(ctx, catalog.SeedCorpus()...)
	if err != nil {
		return 0, err
	}
	e.logger.Info("seeded catalog", "records", len(inserted))
	return len(inserted), nil
}

func (e *Engine) KV() kv.Store {
	return e.kvs
}

func (e *Engine) Catalog() catalog.Source {
	return e.source
}

func (e *Engine) Searcher() *search.Searcher {
	return e.searcher
}

func (e *Engine) Indexer() *indexer.Indexer {
	return e.indexer
}
