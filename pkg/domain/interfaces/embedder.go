package interfaces

import "context"

// Embedder converts text into a fixed-dimension embedding vector.
// Failures are reported as model.ErrEmbeddingUnavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
