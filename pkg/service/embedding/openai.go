package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// OpenAI embeds text with the OpenAI embeddings API or any compatible endpoint
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ interfaces.Embedder = &OpenAI{}

type OpenAIOption func(*openai.ClientConfig)

// WithBaseURL points the client at an OpenAI-compatible endpoint
func WithBaseURL(baseURL string) OpenAIOption {
	return func(cfg *openai.ClientConfig) {
		cfg.BaseURL = baseURL
	}
}

// NewOpenAI creates an OpenAI embedder. The dimension is sent with every
// request, so modelName must support shortened embeddings.
func NewOpenAI(apiKey, modelName string, dimension int, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, goerr.New("OpenAI API key is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(cfg),
		model:     modelName,
		dimension: dimension,
	}, nil
}

func (o *OpenAI) Dimension() int {
	return o.dimension
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	rsp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "failed to create OpenAI embeddings",
			goerr.V("model", o.model), goerr.V("error", err.Error()))
	}

	if len(rsp.Data) != len(texts) {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding count does not match input",
			goerr.V(model.ExpectedKey, len(texts)), goerr.V(model.ActualKey, len(rsp.Data)))
	}

	result := make([][]float32, len(texts))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding index out of range", goerr.V("index", d.Index))
		}
		if err := model.CheckDimension(d.Embedding, o.dimension); err != nil {
			return nil, goerr.Wrap(err, "embedding provider returned wrong dimension", goerr.V("index", d.Index))
		}
		result[d.Index] = d.Embedding
	}
	return result, nil
}
