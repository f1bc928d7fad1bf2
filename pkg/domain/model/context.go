package model

import "github.com/secmon-lab/mnemosyne/pkg/domain/types"

// RetrievedContext is the merged result of one retrieval query. It is built per
// query and handed read-only to the advisory generation step; it is never persisted.
type RetrievedContext struct {
	Query    string
	Memories []*MemoryNode // most relevant first
	Cases    []*ScoredCase // similarity descending
	Rules    []*ScoredRule // weighted score descending

	// DomainRequirements is attached verbatim when supplied. It is a hard
	// constraint for generation and does not take part in scoring.
	DomainRequirements string

	// Degraded lists the sources that timed out and were treated as empty
	Degraded []types.OwnerType

	Rationale string
}

// IsEmpty reports whether no source contributed anything
func (c *RetrievedContext) IsEmpty() bool {
	return len(c.Memories) == 0 && len(c.Cases) == 0 && len(c.Rules) == 0
}

// IsDegraded reports whether the given source timed out
func (c *RetrievedContext) IsDegraded(source types.OwnerType) bool {
	for _, s := range c.Degraded {
		if s == source {
			return true
		}
	}
	return false
}
