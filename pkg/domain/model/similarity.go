package model

import (
	"math"
	"sort"
	"time"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero-magnitude vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}

// RecencyDecay returns 0.5^(elapsed/halfLife), so a node accessed exactly one
// half-life ago scores 0.5. Negative elapsed time counts as zero.
func RecencyDecay(elapsed, halfLife time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * float64(elapsed) / float64(halfLife))
}

// RankResults sorts results by similarity descending; equal similarities put the
// most recently created record first, then fall back to ID for a total order.
func RankResults(results []*SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
}
