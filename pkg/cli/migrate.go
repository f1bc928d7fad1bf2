package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/firestore"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var storeCfg config.VectorStore
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, storeCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Create Firestore vector indexes or the PostgreSQL schema",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.From(ctx)
			logger.Info("Migrate configuration",
				"backend", storeCfg.Backend(),
				"dimension", storeCfg.Dimension(),
				"dryRun", dryRun)

			switch storeCfg.Backend() {
			case config.BackendFirestore:
				if err := storeCfg.Validate(); err != nil {
					return err
				}
				return migrateFirestore(ctx, &storeCfg, dryRun)
			case config.BackendPostgres:
				return migratePostgres(ctx, &storeCfg, dryRun)
			default:
				logger.Info("Backend needs no migration", "backend", storeCfg.Backend())
				return nil
			}
		},
	}
}

func migrateFirestore(ctx context.Context, storeCfg *config.VectorStore, dryRun bool) error {
	logger := logging.From(ctx)
	indexConfig := getIndexConfig(storeCfg.CollectionPrefix(), storeCfg.Dimension())

	client, err := fireconf.NewClient(ctx, storeCfg.ProjectID(), storeCfg.DatabaseID())
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
		plan, err := client.GetMigrationPlan(ctx, indexConfig)
		if err != nil {
			return goerr.Wrap(err, "failed to create migration plan")
		}

		if len(plan.Steps) == 0 {
			logger.Info("No changes required")
			return nil
		}

		for _, step := range plan.Steps {
			logger.Info("Migration step",
				"collection", step.Collection,
				"operation", step.Operation,
				"description", step.Description,
				"destructive", step.Destructive)
		}
		return nil
	}

	logger.Info("Applying migrations")
	if err := client.Migrate(ctx, indexConfig); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	logger.Info("Migrations applied successfully")
	return nil
}

func migratePostgres(ctx context.Context, storeCfg *config.VectorStore, dryRun bool) error {
	logger := logging.From(ctx)
	if dryRun {
		logger.Info("Dry run mode - the postgres schema is created with IF NOT EXISTS, nothing to preview")
		return nil
	}

	store, err := storeCfg.ConfigurePostgres(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close postgres store", "error", err.Error())
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return goerr.Wrap(err, "failed to migrate postgres schema")
	}
	logger.Info("Postgres schema is up to date")
	return nil
}

// metadataFilterKeys lists the metadata key each owner type is searched by
var metadataFilterKeys = map[types.OwnerType]string{
	types.OwnerTypeMemory: model.MetaSessionID,
	types.OwnerTypeCase:   model.MetaTaskType,
	types.OwnerTypeRule:   model.MetaDomain,
}

// getIndexConfig returns the Firestore index configuration. Every owner
// collection gets a plain vector index for unfiltered search and a composite
// one for search prefiltered by its metadata key.
func getIndexConfig(prefix string, dimension int) *fireconf.Config {
	cfg := &fireconf.Config{}
	for _, ownerType := range types.AllOwnerTypes() {
		vector := fireconf.IndexField{
			Path: "Vector",
			Vector: &fireconf.VectorConfig{
				Dimension: dimension,
			},
		}

		cfg.Collections = append(cfg.Collections, fireconf.Collection{
			Name: firestore.CollectionName(prefix, ownerType),
			Indexes: []fireconf.Index{
				{
					Fields: []fireconf.IndexField{vector},
				},
				{
					Fields: []fireconf.IndexField{
						{Path: "Metadata." + metadataFilterKeys[ownerType], Order: fireconf.OrderAscending},
						vector,
					},
				},
			},
		})
	}
	return cfg
}
