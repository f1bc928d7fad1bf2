package rating

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
)

// Static rates every piece of content the same. It is used when no reasoning
// oracle is configured.
type Static struct {
	value float64
}

var _ interfaces.ImportanceRater = &Static{}

func NewStatic(value float64) *Static {
	return &Static{value: clampUnit(value)}
}

func (s *Static) Rate(ctx context.Context, content string) float64 {
	return s.value
}
