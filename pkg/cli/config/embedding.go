package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/service/embedding"
	"github.com/urfave/cli/v3"
)

// Embedding providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Embedding holds CLI flags for the embedding provider
type Embedding struct {
	provider      string
	openAIKey     string
	openAIModel   string
	openAIBaseURL string
	cacheSize     int
}

// Flags returns CLI flags for embedding configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai)",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("MNEMOSYNE_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key (required when using openai provider)",
			Sources:     cli.EnvVars("MNEMOSYNE_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &e.openAIKey,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI embedding model",
			Sources:     cli.EnvVars("MNEMOSYNE_OPENAI_EMBEDDING_MODEL"),
			Destination: &e.openAIModel,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "OpenAI compatible API base URL",
			Sources:     cli.EnvVars("MNEMOSYNE_OPENAI_BASE_URL"),
			Destination: &e.openAIBaseURL,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of embeddings kept in memory (0 disables the cache)",
			Value:       1024,
			Sources:     cli.EnvVars("MNEMOSYNE_EMBEDDING_CACHE_SIZE"),
			Destination: &e.cacheSize,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.String("openai_model", e.openAIModel),
		slog.Int("cache_size", e.cacheSize),
	}
}

// Configure builds the embedder. llmClient is required for the gemini
// provider. The returned func releases the cache.
func (e *Embedding) Configure(ctx context.Context, llmClient gollem.LLMClient, dimension int) (interfaces.Embedder, func(), error) {
	var base interfaces.Embedder

	switch e.provider {
	case ProviderGemini:
		if llmClient == nil {
			return nil, nil, goerr.Wrap(ErrMissingFlag, "gemini-project is required when using gemini embedding provider")
		}
		emb, err := embedding.NewGollem(llmClient, dimension)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create gemini embedder")
		}
		base = emb

	case ProviderOpenAI:
		if e.openAIKey == "" {
			return nil, nil, goerr.Wrap(ErrMissingFlag, "openai-api-key is required when using openai embedding provider")
		}
		var opts []embedding.OpenAIOption
		if e.openAIBaseURL != "" {
			opts = append(opts, embedding.WithBaseURL(e.openAIBaseURL))
		}
		emb, err := embedding.NewOpenAI(e.openAIKey, e.openAIModel, dimension, opts...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create openai embedder")
		}
		base = emb

	default:
		return nil, nil, goerr.Wrap(ErrInvalidConfig, "invalid embedding provider", goerr.V("provider", e.provider))
	}

	if e.cacheSize <= 0 {
		return base, func() {}, nil
	}

	cached, err := embedding.NewCached(base, int64(e.cacheSize))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create embedding cache")
	}
	return cached, cached.Close, nil
}
