package interfaces

import "context"

// ImportanceRater assigns an importance score in [0,1] to a piece of content.
// Implementations never fail: oracle errors degrade to a fallback score.
type ImportanceRater interface {
	Rate(ctx context.Context, content string) float64
}
