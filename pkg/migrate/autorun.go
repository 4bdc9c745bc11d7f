package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

// MaybeRunDev brings the schema up on boot, but only in dev and only when the
// auto-migrate flag is set. Deployed environments migrate via cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "auto-running goose migrations")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
