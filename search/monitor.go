package search

import (
	"github.com/poiesic/semsearch/vectorstore"
)

// SearchMonitor provides hooks to observe the query path.
// Implement this interface to track intermediate stages and results during
// a search. Stages that run inside a shared flight fire only for the
// caller that executes the flight.
type SearchMonitor interface {
	Start(normalizedQuery string)
	CacheHit(matches int)
	CacheMiss()
	AdmissionDenied(retryAfterSeconds int)
	AfterEmbedding(dimension int)
	AfterVectorQuery(hits []vectorstore.Match)
	DroppedMatch(vectorID string)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                     {}
func (n *noopMonitor) CacheHit(_ int)                     {}
func (n *noopMonitor) CacheMiss()                         {}
func (n *noopMonitor) AdmissionDenied(_ int)              {}
func (n *noopMonitor) AfterEmbedding(_ int)               {}
func (n *noopMonitor) AfterVectorQuery(_ []vectorstore.Match) {}
func (n *noopMonitor) DroppedMatch(_ string)              {}
func (n *noopMonitor) Finish(_ *Response)                 {}
