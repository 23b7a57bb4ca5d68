package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/semsearch/core"
)

// Record is the authoritative structured entity behind every vector: a
// skill or technology row from the relational store. Facet fields only
// apply to one kind and are zero-valued for the other.
type Record struct {
	Id       core.ID
	Kind     core.Kind
	Name     string
	Category string
	Summary  string

	// Skill facets
	Level string
	Years int

	// Technology facets
	Homepage string
}

// EmbeddingText returns the deterministic textual representation the
// indexer embeds. Both the indexing pipeline and tests rely on this
// being stable for a given record.
func (r *Record) EmbeddingText() string {
	return fmt.Sprintf("%s - %s. %s", r.Name, r.Category, r.Summary)
}

// VectorID returns the vector-store id for this record.
func (r *Record) VectorID() string {
	return fmt.Sprintf("%s-%d", r.Kind, r.Id)
}

// ParseVectorID splits a vector-store id back into its kind and record
// id. It is the inverse of VectorID.
func ParseVectorID(vectorID string) (core.Kind, core.ID, error) {
	idx := strings.LastIndexByte(vectorID, '-')
	if idx <= 0 || idx == len(vectorID)-1 {
		return "", 0, fmt.Errorf("malformed vector id %q", vectorID)
	}
	kind, err := core.ParseKind(vectorID[:idx])
	if err != nil {
		return "", 0, fmt.Errorf("malformed vector id %q: %w", vectorID, err)
	}
	id, err := strconv.ParseInt(vectorID[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed vector id %q: %w", vectorID, err)
	}
	return kind, core.ID(id), nil
}

// Source provides read access to canonical records.
// Implementations must be thread-safe and support concurrent access.
type Source interface {
	// Page retrieves a bounded batch of records of one kind, ordered by
	// ascending id so pagination is deterministic across calls.
	Page(ctx context.Context, kind core.Kind, offset, limit int64) ([]Record, error)

	// Count returns the total number of records of one kind.
	Count(ctx context.Context, kind core.Kind) (int64, error)

	// ByIDs retrieves the records of one kind with the given ids.
	// Missing ids are skipped silently; results are ordered by ascending
	// id, not by the input order.
	ByIDs(ctx context.Context, kind core.Kind, ids []core.ID) ([]Record, error)

	// Close closes the source and releases resources.
	Close() error
}
