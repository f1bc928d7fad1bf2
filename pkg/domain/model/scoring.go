package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Default scoring constants. The three weights are equal thirds; the recency
// half-life is one hour, which suits a single advisory conversation.
const (
	DefaultRecencyWeight    = 1.0 / 3.0
	DefaultImportanceWeight = 1.0 / 3.0
	DefaultRelevanceWeight  = 1.0 / 3.0
	DefaultHalfLife         = time.Hour
)

// ScoringConfig holds the blend used to rank memory nodes:
//
//	score = RecencyWeight*decay(now-last_accessed) + ImportanceWeight*importance + RelevanceWeight*cosine
type ScoringConfig struct {
	RecencyWeight    float64
	ImportanceWeight float64
	RelevanceWeight  float64
	HalfLife         time.Duration
}

// DefaultScoringConfig returns the documented defaults
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		RecencyWeight:    DefaultRecencyWeight,
		ImportanceWeight: DefaultImportanceWeight,
		RelevanceWeight:  DefaultRelevanceWeight,
		HalfLife:         DefaultHalfLife,
	}
}

// Validate rejects negative weights, an all-zero blend and a non-positive half-life
func (c ScoringConfig) Validate() error {
	if c.RecencyWeight < 0 || c.ImportanceWeight < 0 || c.RelevanceWeight < 0 {
		return goerr.New("scoring weights must not be negative",
			goerr.V("recency", c.RecencyWeight),
			goerr.V("importance", c.ImportanceWeight),
			goerr.V("relevance", c.RelevanceWeight),
		)
	}
	if c.RecencyWeight+c.ImportanceWeight+c.RelevanceWeight == 0 {
		return goerr.New("at least one scoring weight must be positive")
	}
	if c.HalfLife <= 0 {
		return goerr.New("half-life must be positive", goerr.V("half_life", c.HalfLife))
	}
	return nil
}

// Score computes the blended retrieval score of node for the given query embedding at now
func (c ScoringConfig) Score(node *MemoryNode, query []float32, now time.Time) float64 {
	recency := RecencyDecay(now.Sub(node.LastAccessedAt), c.HalfLife)
	relevance := CosineSimilarity(query, node.Embedding)
	return c.RecencyWeight*recency + c.ImportanceWeight*node.Importance + c.RelevanceWeight*relevance
}
