// Package indexer drives the incremental embedding pipeline: it walks
// the canonical catalog in bounded batches, embeds each record's text
// representation, and upserts the vectors through the failover store.
// Progress is persisted as a per-kind checkpoint in the shared KV
// service and each run executes under an advisory TTL lock, so the
// process is resumable, singleton per kind, and safe to retrigger.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/poiesic/semsearch/ai"
	"github.com/poiesic/semsearch/catalog"
	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/kv"
	"github.com/poiesic/semsearch/vectorstore"
)

// metadataSchemaVersion tags every vector's metadata so a future shape
// change can tell old entries from new ones.
const metadataSchemaVersion = "1"

// Config holds configuration for the indexing pipeline.
type Config struct {
	// LockTTL bounds how long a crashed run blocks the next one. It is
	// not cross-validated against batch runtime; a batch that outlives
	// it opens the overlap window described on indexLock.
	LockTTL time.Duration

	// DefaultBatchSize is used when a caller passes no batch size.
	DefaultBatchSize int

	// MaxBatchSize caps caller-supplied batch sizes so a single
	// invocation completes within an execution deadline.
	MaxBatchSize int

	// MaxRetries is the maximum number of attempts per embedding call.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// EmbedCallsPerSecond throttles embedding API calls to protect the
	// inference budget. Zero or negative disables the throttle.
	EmbedCallsPerSecond float64

	// EmbedBurst is the throttle's burst allowance. Must be at least 1
	// when the throttle is enabled.
	EmbedBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LockTTL:             time.Minute,
		DefaultBatchSize:    50,
		MaxBatchSize:        200,
		MaxRetries:          3,
		RetryDelay:          1 * time.Second,
		EmbedCallsPerSecond: 2,
		EmbedBurst:          1,
	}
}

// Validate checks that the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.LockTTL < time.Second {
		return errors.New("indexer config: LockTTL must be at least one second")
	}
	if c.DefaultBatchSize <= 0 {
		return errors.New("indexer config: DefaultBatchSize must be positive")
	}
	if c.MaxBatchSize < c.DefaultBatchSize {
		return errors.New("indexer config: MaxBatchSize must be at least DefaultBatchSize")
	}
	if c.MaxRetries <= 0 {
		return errors.New("indexer config: MaxRetries must be positive")
	}
	if c.EmbedCallsPerSecond > 0 && c.EmbedBurst < 1 {
		return errors.New("indexer config: EmbedBurst must be at least 1 when the throttle is enabled")
	}
	return nil
}

// Result reports the outcome of one Resume call.
type Result struct {
	// Triggered is true when this call ran a batch.
	Triggered bool

	// Locked is true when another run held the lock and this call did
	// nothing. A locked result is transient, not an error.
	Locked bool

	// Checkpoint is the state persisted by this call. Zero when Locked.
	Checkpoint core.Checkpoint
}

// Indexer executes resumable indexing runs.
type Indexer struct {
	kv       kv.Store
	source   catalog.Source
	embedder ai.Embedder
	vectors  vectorstore.Store
	cfg      *Config
	lock     *indexLock
	throttle *rate.Limiter
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewIndexer builds an indexing pipeline. A nil cfg uses DefaultConfig.
func NewIndexer(kvs kv.Store, source catalog.Source, embedder ai.Embedder, vectors vectorstore.Store, cfg *Config) (*Indexer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := 0
	if cfg.EmbedCallsPerSecond > 0 {
		limit = rate.Limit(cfg.EmbedCallsPerSecond)
		burst = cfg.EmbedBurst
	}

	return &Indexer{
		kv:       kvs,
		source:   source,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
		lock:     newIndexLock(kvs, cfg.LockTTL),
		throttle: rate.NewLimiter(limit, burst),
		logger:   slog.Default().With("component", "indexer"),
		nowFunc:  time.Now,
	}, nil
}

// Resume runs one batch of indexing for kind. It acquires the per-kind
// lock (returning Locked with no side effects on conflict), loads or
// initializes the checkpoint, processes up to batchSize records from
// NextOffset, and persists the advanced checkpoint. A missing or corrupt
// checkpoint starts a new version at offset zero; a completed one starts
// the next version as a refresh pass. The batch is atomic from the
// checkpoint's perspective: a mid-batch failure leaves the offset
// untouched and the run retryable, and upserts are idempotent by id so
// a retried batch does not duplicate data.
func (ix *Indexer) Resume(ctx context.Context, kind core.Kind, batchSize int) (Result, error) {
	if err := core.ValidateKind(kind); err != nil {
		return Result{}, err
	}
	batchSize = ix.clampBatchSize(batchSize)

	acquired, err := ix.lock.acquire(ctx, kind)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		ix.logger.Info("indexing run already active", "kind", kind)
		return Result{Locked: true}, nil
	}
	defer ix.releaseLock(kind)

	cp, err := ix.prepareCheckpoint(ctx, kind)
	if err != nil {
		return Result{}, err
	}

	batch, err := ix.source.Page(ctx, kind, cp.NextOffset, int64(batchSize))
	if err != nil {
		ix.markFailed(cp)
		return Result{}, fmt.Errorf("failed to fetch canonical records: %w", err)
	}

	if len(batch) == 0 {
		cp.Status = core.CheckpointCompleted
		cp.UpdatedAt = ix.now()
		if err := saveCheckpoint(ctx, ix.kv, cp); err != nil {
			return Result{}, err
		}
		ix.logger.Info("indexing pass complete", "kind", kind, "version", cp.Version, "processed", cp.Processed)
		return Result{Triggered: true, Checkpoint: cp}, nil
	}

	records, err := ix.embedBatch(ctx, batch)
	if err != nil {
		ix.markFailed(cp)
		return Result{}, err
	}

	if err := ix.vectors.Upsert(ctx, records); err != nil {
		ix.markFailed(cp)
		return Result{}, fmt.Errorf("failed to upsert batch: %w", err)
	}

	cp.NextOffset += int64(len(batch))
	cp.Processed += int64(len(batch))
	if cp.NextOffset >= cp.Total {
		cp.Status = core.CheckpointCompleted
	}
	cp.UpdatedAt = ix.now()
	if err := saveCheckpoint(ctx, ix.kv, cp); err != nil {
		// The upserts landed; a retry re-covers this batch idempotently.
		return Result{}, err
	}

	ix.logger.Info("indexed batch",
		"kind", kind,
		"version", cp.Version,
		"batch", len(batch),
		"next_offset", cp.NextOffset,
		"total", cp.Total,
		"status", cp.Status.String())
	return Result{Triggered: true, Checkpoint: cp}, nil
}

// Stop marks the kind's run as paused so progress reads distinguish an
// operator stop from a transient failure. The checkpoint is retained
// and a later Resume continues from it. Stopping a kind that has no
// checkpoint, a corrupt one, or a completed pass is a no-op.
func (ix *Indexer) Stop(ctx context.Context, kind core.Kind) error {
	if err := core.ValidateKind(kind); err != nil {
		return err
	}

	cp, err := loadCheckpoint(ctx, ix.kv, kind)
	if errors.Is(err, core.ErrCheckpointCorrupt) {
		ix.logger.Warn("not pausing corrupt checkpoint", "kind", kind, "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	if cp == nil || cp.Status == core.CheckpointCompleted {
		return nil
	}

	cp.Status = core.CheckpointPaused
	cp.UpdatedAt = ix.now()
	return saveCheckpoint(ctx, ix.kv, *cp)
}

// Progress reads the kind's checkpoint without touching the lock, so it
// is safe to call concurrently with an active run. It returns nil when
// no checkpoint exists yet.
func (ix *Indexer) Progress(ctx context.Context, kind core.Kind) (*core.Checkpoint, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	return loadCheckpoint(ctx, ix.kv, kind)
}

// prepareCheckpoint loads the current checkpoint and derives the state
// this run continues from. Total is re-counted on every resume so a
// grown corpus extends the current pass.
func (ix *Indexer) prepareCheckpoint(ctx context.Context, kind core.Kind) (core.Checkpoint, error) {
	cp, err := loadCheckpoint(ctx, ix.kv, kind)
	if errors.Is(err, core.ErrCheckpointCorrupt) {
		ix.logger.Warn("corrupt checkpoint, starting new version", "kind", kind, "err", err)
		cp = nil
	} else if err != nil {
		return core.Checkpoint{}, err
	}

	total, err := ix.source.Count(ctx, kind)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to count canonical records: %w", err)
	}

	switch {
	case cp == nil:
		return core.Checkpoint{
			Kind:    kind,
			Version: 1,
			Total:   total,
			Status:  core.CheckpointInProgress,
		}, nil
	case cp.Status == core.CheckpointCompleted:
		return core.Checkpoint{
			Kind:    kind,
			Version: cp.Version + 1,
			Total:   total,
			Status:  core.CheckpointInProgress,
		}, nil
	default:
		cp.Total = total
		cp.Status = core.CheckpointInProgress
		return *cp, nil
	}
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []catalog.Record) ([]vectorstore.Record, error) {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.EmbeddingText()
	}

	if err := ix.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding throttle: %w", err)
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = ix.embedder.EmbedTexts(ctx, texts)
		return err
	}, ix.cfg.MaxRetries, ix.cfg.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", ix.cfg.MaxRetries, err)
	}
	if len(embeddings) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
	}

	records := make([]vectorstore.Record, len(batch))
	for i, rec := range batch {
		records[i] = vectorstore.Record{
			Id:        rec.VectorID(),
			Embedding: vectorstore.NormalizeVector(embeddings[i]),
			Metadata: map[string]string{
				"id":       strconv.FormatInt(int64(rec.Id), 10),
				"kind":     string(rec.Kind),
				"name":     rec.Name,
				"category": rec.Category,
				"schema":   metadataSchemaVersion,
			},
		}
	}
	return records, nil
}

// markFailed best-effort persists the failed status with the progress
// fields untouched, so the abandoned batch stays visible and retryable.
func (ix *Indexer) markFailed(cp core.Checkpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cp.Status = core.CheckpointFailed
	cp.UpdatedAt = ix.now()
	if err := saveCheckpoint(ctx, ix.kv, cp); err != nil {
		ix.logger.Warn("failed to persist failed status", "kind", cp.Kind, "err", err)
	}
}

// releaseLock runs on its own context: the caller's may already be
// cancelled, and an unreleased lock blocks the kind until TTL expiry.
func (ix *Indexer) releaseLock(kind core.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ix.lock.release(ctx, kind); err != nil {
		ix.logger.Warn("failed to release index lock, waiting on TTL expiry", "kind", kind, "err", err)
	}
}

func (ix *Indexer) clampBatchSize(batchSize int) int {
	if batchSize <= 0 {
		return ix.cfg.DefaultBatchSize
	}
	if batchSize > ix.cfg.MaxBatchSize {
		return ix.cfg.MaxBatchSize
	}
	return batchSize
}

func (ix *Indexer) now() time.Time {
	return ix.nowFunc().UTC().Truncate(time.Microsecond)
}
