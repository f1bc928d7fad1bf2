package cli

import (
	"context"
	"log/slog"

	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	var closers []func()

	// released after the final error has been handled
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	flags := loggerCfg.Flags()
	flags = append(flags, sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    "mnemosyne",
		Usage:   "Memory, case and rule retrieval for LLM customer service agents",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			closeLogger, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, closeLogger)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return ctx, err
			}
			closers = append(closers, flush)

			logger := logging.Default()
			logger.Debug("Starting mnemosyne",
				"logger", loggerCfg,
				slog.Any("sentry", slog.GroupValue(sentryCfg.LogAttrs()...)),
			)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			cmdMemory(),
			cmdCase(),
			cmdRule(),
			cmdRetrieve(),
			cmdMigrate(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		return errutil.Handle(ctx, err, "failed to run app")
	}

	return nil
}
