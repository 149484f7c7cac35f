package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"trivia-stats-service/internal/config"
	pgmigrations "trivia-stats-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database schema migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

// NewBackfillCmd runs the record-level round-field backfill for given chats.
func NewBackfillCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill <chat-id>...",
		Short: "Backfill round fields on chats that predate round tracking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), *configPath, args)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return runMigrationsWithConfig(ctx, cfg)
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	log.Printf("migrations applied")
	return nil
}

func runBackfill(ctx context.Context, configPath string, chatIDs []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, chatID := range chatIDs {
		migrated, err := store.MigrateRoundFields(ctx, chatID)
		if err != nil {
			return fmt.Errorf("backfill chat %s: %w", chatID, err)
		}
		log.Printf("chat %s: backfilled %d record(s)", chatID, migrated)
	}
	return nil
}
