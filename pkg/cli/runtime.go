package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/service/rating"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// runtimeConfig gathers the flag-backed configuration shared by every command
// that touches the vector store
type runtimeConfig struct {
	configPath string
	store      config.VectorStore
	gemini     config.Gemini
	embedding  config.Embedding
}

func (r *runtimeConfig) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a TOML file with scoring and retrieval settings",
			Sources:     cli.EnvVars("MNEMOSYNE_CONFIG"),
			Destination: &r.configPath,
		},
	}
	flags = append(flags, r.store.Flags()...)
	flags = append(flags, r.gemini.Flags()...)
	flags = append(flags, r.embedding.Flags()...)
	return flags
}

// runtime holds the components built from runtimeConfig for one command
type runtime struct {
	app      *config.AppConfig
	store    interfaces.VectorStore
	useCases *usecase.UseCases
	closers  []func()
}

// Close releases everything in reverse order of creation
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (r *runtimeConfig) build(ctx context.Context) (*runtime, error) {
	logger := logging.From(ctx)

	app, err := config.LoadAppConfig(r.configPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load config")
	}

	rt := &runtime{app: app}
	success := false
	defer func() {
		if !success {
			rt.Close()
		}
	}()

	store, err := r.store.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize vector store")
	}
	rt.store = store
	rt.closers = append(rt.closers, func() {
		safe.Close(ctx, store, "vector store")
	})

	llmClient, err := r.gemini.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize Gemini client")
	}

	embedder, closeEmbedder, err := r.embedding.Configure(ctx, llmClient, r.store.Dimension())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize embedder")
	}
	rt.closers = append(rt.closers, closeEmbedder)

	var rater interfaces.ImportanceRater
	if llmClient != nil {
		llmRater, err := rating.New(llmClient, app.RatingOptions()...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize importance rater")
		}
		rater = llmRater
	} else {
		logger.Warn("Gemini is not configured, every memory gets the fallback importance",
			"importance", app.Rating.Fallback)
		rater = rating.NewStatic(app.Rating.Fallback)
	}

	uc, err := usecase.New(store, embedder, rater, app.UseCaseOptions()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize use cases")
	}
	rt.useCases = uc

	logger.Debug("Runtime ready",
		slog.Any("store", slog.GroupValue(r.store.LogAttrs()...)),
		slog.Any("gemini", slog.GroupValue(r.gemini.LogAttrs()...)),
		slog.Any("embedding", slog.GroupValue(r.embedding.LogAttrs()...)),
	)

	success = true
	return rt, nil
}
