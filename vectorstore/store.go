package vectorstore

import "context"

// Source identifies which backend produced a match. Score scales are
// backend-native; callers must not compare scores across sources.
type Source string

const (
	// SourcePrimary marks matches served by the primary index service.
	SourcePrimary Source = "primary"
	// SourceFallback marks matches served by the KV fallback store.
	SourceFallback Source = "fallback"
)

// Record is one entry in a vector store: an opaque id derived from the
// item type and canonical id, its embedding, and resolution metadata.
// Records are immutable once written except via re-upsert with the same
// id, which overwrites idempotently.
type Record struct {
	Id        string
	Embedding []float32
	Metadata  map[string]string
}

// Match is one ranked query hit.
type Match struct {
	Id       string
	Score    float32
	Metadata map[string]string
	Source   Source
}

// Info describes a backend's identity and shape.
type Info struct {
	Backend     string
	Dimension   int
	ApproxCount int64
}

// Store is the contract implemented identically by every vector backend.
// The failover composite also satisfies it, so consumers never depend on
// a concrete backend identity.
type Store interface {
	// Query returns up to topK matches ranked by descending score.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)

	// Upsert writes records by id. Re-upserting an id overwrites it.
	Upsert(ctx context.Context, records []Record) error

	// Info reports the backend type, vector dimension, and approximate
	// record count.
	Info(ctx context.Context) (Info, error)

	// IsHealthy reports whether the backend is currently usable. It is
	// advisory: a healthy report does not guarantee the next call
	// succeeds.
	IsHealthy(ctx context.Context) bool
}
