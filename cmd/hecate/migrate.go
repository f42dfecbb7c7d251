package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/giall/hecate/internal/config"
	"github.com/giall/hecate/store/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply pending migrations to the PostgreSQL account store named by HECATE_STORE_POSTGRES_DSN.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
	}
	if cfg.Store.Backend != config.StorePostgres {
		return oops.Code("CONFIG_INVALID").Errorf("migrate requires HECATE_STORE_BACKEND=%s, got %q", config.StorePostgres, cfg.Store.Backend)
	}

	cmd.Println("Running migrations...")
	if err := postgres.Migrate(cmd.Context(), cfg.Store.PostgresDSN); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
