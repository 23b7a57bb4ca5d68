package core

import (
	"time"
)

// ID is a canonical record identifier assigned by the relational store.
type ID int64

// Kind labels the item types the engine indexes and searches. Each kind
// scopes its own checkpoint, index lock, and vector namespace.
type Kind string

const (
	// KindSkill covers rows from the skills table.
	KindSkill Kind = "skill"
	// KindTechnology covers rows from the technologies table.
	KindTechnology Kind = "technology"
)

// AllKinds returns every indexable kind in deterministic order.
func AllKinds() []Kind {
	return []Kind{KindSkill, KindTechnology}
}

// CheckpointStatus describes where an indexing pass stands.
type CheckpointStatus int

const (
	// CheckpointInProgress means a pass has started and has batches left.
	CheckpointInProgress CheckpointStatus = iota + 1
	// CheckpointPaused means a caller stopped the pass explicitly.
	CheckpointPaused
	// CheckpointCompleted means the pass covered every canonical record.
	CheckpointCompleted
	// CheckpointFailed means the last batch was abandoned mid-flight.
	CheckpointFailed
)

// String returns the wire name used in progress reports.
func (s CheckpointStatus) String() string {
	switch s {
	case CheckpointInProgress:
		return "in_progress"
	case CheckpointPaused:
		return "paused"
	case CheckpointCompleted:
		return "completed"
	case CheckpointFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resumable reports whether a pass in this status may be resumed.
func (s CheckpointStatus) Resumable() bool {
	return s == CheckpointInProgress || s == CheckpointPaused || s == CheckpointFailed
}

// Checkpoint records the resumable progress of an indexing pass over one
// kind. Version is a monotonic epoch for the current full pass; NextOffset
// only advances forward within a version, and a new version resets both
// NextOffset and Processed to zero.
type Checkpoint struct {
	Kind       Kind
	Version    uint64
	NextOffset int64
	Processed  int64
	Total      int64
	Status     CheckpointStatus
	UpdatedAt  time.Time // When the checkpoint was last persisted
}

// SearchMatch is one resolved search hit: the canonical record fields a
// caller renders, plus the similarity score and backend provenance.
// Score scales are backend-native and must not be compared across sources.
type SearchMatch struct {
	RecordId ID
	Kind     Kind
	Name     string
	Category string
	Summary  string
	Score    float32
	Source   string // "primary" or "fallback"
}

// CachedResult is the payload stored in the query result cache.
type CachedResult struct {
	Query     string
	Matches   []SearchMatch
	CreatedAt time.Time
}
