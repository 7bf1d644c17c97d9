// Command migrate applies or reverts the Postgres schema used by the booking store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/secrets"
)

func main() {
	direction := flag.String("direction", "up", "up applies pending migrations, down reverts -steps migrations")
	steps := flag.Int("steps", 1, "number of migrations to revert when -direction=down")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, *direction, *steps); err != nil {
		logger.Error("migration failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, direction string, steps int) error {
	env, err := config.EnvironmentValues()
	if err != nil {
		return err
	}
	fetcherOpts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(env["BOUTIQUE_ENVIRONMENT"]),
		secrets.WithFallbackFile(".secrets.local"),
	}
	if project := env["BOUTIQUE_SECRETS_PROJECT_ID"]; project != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithProject(project))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Postgres.DSN"),
	)
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.StoreBackendPostgres {
		return fmt.Errorf("store backend is %q; nothing to migrate", cfg.Store.Backend)
	}

	db, err := ppostgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		version, err := ppostgres.Migrate(db.DB)
		if err != nil {
			return err
		}
		logger.Info("schema up to date", zap.Uint("version", version))
	case "down":
		if err := ppostgres.Rollback(db.DB, steps); err != nil {
			return err
		}
		logger.Info("migrations reverted", zap.Int("steps", steps))
	default:
		return errors.New("direction must be up or down")
	}
	return nil
}
