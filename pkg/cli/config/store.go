package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/repository/chromem"
	"github.com/secmon-lab/mnemosyne/pkg/repository/firestore"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
	"github.com/secmon-lab/mnemosyne/pkg/repository/postgres"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Vector store backends
const (
	BackendMemory    = "memory"
	BackendChromem   = "chromem"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// VectorStore holds CLI flags for the vector store backend
type VectorStore struct {
	backend   string
	dimension int

	chromemPath string

	projectID        string
	databaseID       string
	collectionPrefix string

	postgresDSN   string
	postgresTable string
	postgresTrace bool
}

// Flags returns CLI flags for vector store configuration
func (s *VectorStore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store-backend",
			Usage:       "Vector store backend (memory, chromem, firestore, postgres)",
			Value:       BackendChromem,
			Sources:     cli.EnvVars("MNEMOSYNE_STORE_BACKEND"),
			Destination: &s.backend,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding dimension shared by the store and the embedder",
			Value:       model.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("MNEMOSYNE_EMBEDDING_DIMENSION"),
			Destination: &s.dimension,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory of the embedded chromem database",
			Value:       ".mnemosyne",
			Sources:     cli.EnvVars("MNEMOSYNE_CHROMEM_PATH"),
			Destination: &s.chromemPath,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("MNEMOSYNE_FIRESTORE_PROJECT_ID"),
			Destination: &s.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("MNEMOSYNE_FIRESTORE_DATABASE_ID"),
			Destination: &s.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of the Firestore collections",
			Sources:     cli.EnvVars("MNEMOSYNE_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &s.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL DSN (required when using postgres backend)",
			Sources:     cli.EnvVars("MNEMOSYNE_POSTGRES_DSN"),
			Destination: &s.postgresDSN,
		},
		&cli.StringFlag{
			Name:        "postgres-table",
			Usage:       "PostgreSQL table holding the vectors",
			Value:       "mnemosyne_vectors",
			Sources:     cli.EnvVars("MNEMOSYNE_POSTGRES_TABLE"),
			Destination: &s.postgresTable,
		},
		&cli.BoolFlag{
			Name:        "postgres-trace",
			Usage:       "Emit OpenTelemetry spans for SQL queries",
			Sources:     cli.EnvVars("MNEMOSYNE_POSTGRES_TRACE"),
			Destination: &s.postgresTrace,
		},
	}
}

// LogAttrs returns log attributes for the vector store configuration.
// The postgres DSN is left out since it may carry a password.
func (s *VectorStore) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("backend", s.backend),
		slog.Int("dimension", s.dimension),
	}
	switch s.backend {
	case BackendChromem:
		attrs = append(attrs, slog.String("path", s.chromemPath))
	case BackendFirestore:
		attrs = append(attrs,
			slog.String("project_id", s.projectID),
			slog.String("database_id", s.databaseID),
			slog.String("collection_prefix", s.collectionPrefix),
		)
	case BackendPostgres:
		attrs = append(attrs,
			slog.String("table", s.postgresTable),
			slog.Bool("trace", s.postgresTrace),
		)
	}
	return attrs
}

func (s *VectorStore) Backend() string {
	return s.backend
}

func (s *VectorStore) Dimension() int {
	return s.dimension
}

func (s *VectorStore) ProjectID() string {
	return s.projectID
}

func (s *VectorStore) DatabaseID() string {
	return s.databaseID
}

func (s *VectorStore) CollectionPrefix() string {
	return s.collectionPrefix
}

// Validate checks that the selected backend has what it needs
func (s *VectorStore) Validate() error {
	if s.dimension <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "embedding dimension must be positive", goerr.V("dimension", s.dimension))
	}

	switch s.backend {
	case BackendMemory, BackendChromem:
	case BackendFirestore:
		if s.projectID == "" {
			return goerr.Wrap(ErrMissingFlag, "firestore-project-id is required when using firestore backend")
		}
	case BackendPostgres:
		if s.postgresDSN == "" {
			return goerr.Wrap(ErrMissingFlag, "postgres-dsn is required when using postgres backend")
		}
	default:
		return goerr.Wrap(ErrInvalidConfig, "invalid store backend", goerr.V("backend", s.backend))
	}
	return nil
}

// Configure opens the configured vector store. The caller closes it.
func (s *VectorStore) Configure(ctx context.Context) (interfaces.VectorStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	dim := s.Dimension()

	switch s.backend {
	case BackendMemory:
		logger.Info("Using in-memory vector store (nothing survives the process)")
		return memory.New(dim), nil

	case BackendChromem:
		store, err := chromem.New(s.chromemPath, dim)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize chromem vector store")
		}
		logger.Info("Using chromem vector store", "path", s.chromemPath)
		return store, nil

	case BackendFirestore:
		store, err := firestore.New(ctx, s.projectID, s.databaseID, dim,
			firestore.WithCollectionPrefix(s.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore vector store")
		}
		logger.Info("Using Firestore vector store",
			"project_id", s.projectID,
			"database_id", s.databaseID,
		)
		return store, nil

	case BackendPostgres:
		store, err := s.configurePostgres(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Using PostgreSQL vector store", "table", s.postgresTable, "trace", s.postgresTrace)
		return store, nil
	}

	return nil, goerr.Wrap(ErrInvalidConfig, "invalid store backend", goerr.V("backend", s.backend))
}

// ConfigurePostgres opens the postgres backend directly, for schema migration
func (s *VectorStore) ConfigurePostgres(ctx context.Context) (*postgres.Postgres, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.backend != BackendPostgres {
		return nil, goerr.Wrap(ErrInvalidConfig, "store backend is not postgres", goerr.V("backend", s.backend))
	}
	return s.configurePostgres(ctx)
}

func (s *VectorStore) configurePostgres(ctx context.Context) (*postgres.Postgres, error) {
	store, err := postgres.New(ctx, s.postgresDSN, s.Dimension(),
		postgres.WithTable(s.postgresTable),
		postgres.WithTracing(s.postgresTrace),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize postgres vector store")
	}
	return store, nil
}
