package cmd

import (
	"context"
	"log"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	migrations "github.com/frahmantamala/pagepay/db"
	"github.com/frahmantamala/pagepay/pkg/logger"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run the embedded sql migrations against the configured postgres database",
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := setup()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.LoggerWrapper()

	if cfg.Database.Driver == "sqlite" {
		// initDB migrates sqlite through gorm
		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("sqlite migration: %v", err)
		}
		lg.Info("sqlite schema is up to date", "source", cfg.Database.Source)
		return db.Close()
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		log.Fatalf("goose: failed to open DB: %v\n", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose: %v", err)
	}

	if migrateRollback {
		if err := goose.DownContext(ctx, db, migrations.MigrationsDir); err != nil {
			log.Fatalf("goose down: %v", err)
		}
		lg.Info("rolled back latest migration")
		return nil
	}

	if err := goose.UpContext(ctx, db, migrations.MigrationsDir); err != nil {
		log.Fatalf("goose up: %v", err)
	}
	lg.Info("migrations applied")
	return nil
}
