package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// Gollem embeds text through a gollem LLM client
type Gollem struct {
	llmClient gollem.LLMClient
	dimension int
}

var _ interfaces.Embedder = &Gollem{}

// NewGollem creates an embedder on top of llmClient producing dimension-length vectors
func NewGollem(llmClient gollem.LLMClient, dimension int) (*Gollem, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}

	return &Gollem{
		llmClient: llmClient,
		dimension: dimension,
	}, nil
}

func (g *Gollem) Dimension() int {
	return g.dimension
}

func (g *Gollem) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gollem) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings, err := g.llmClient.GenerateEmbedding(ctx, g.dimension, texts)
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "failed to generate embedding",
			goerr.V("count", len(texts)), goerr.V("error", err.Error()))
	}

	return toFloat32(embeddings, len(texts), g.dimension)
}

// toFloat32 converts provider output and checks its shape
func toFloat32(embeddings [][]float64, count, dimension int) ([][]float32, error) {
	if len(embeddings) != count {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding count does not match input",
			goerr.V(model.ExpectedKey, count), goerr.V(model.ActualKey, len(embeddings)))
	}

	result := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		if err := model.CheckDimension(v, dimension); err != nil {
			return nil, goerr.Wrap(err, "embedding provider returned wrong dimension", goerr.V("index", i))
		}
		result[i] = v
	}
	return result, nil
}
