package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/internal/infrastructure/database/postgres"
	"github.com/devilmonastery/arachnid/migrations"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply all pending migrations. With --force, mark the schema as being at the
given version without running anything, to recover from a dirty migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabaseOnly(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := setupLogging(cmd, flags, cfg.Logging)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			db, err := postgres.ConnectWithRetry(ctx, cfg.Database.Postgres.ConnectionString(), 3, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if cmd.Flags().Changed("force") {
				if err := db.ForceMigrationVersion(migrations.FS, force); err != nil {
					return err
				}
				log.Info("forced migration version")
				fmt.Fprintf(cmd.OutOrStdout(), "schema version forced to %d\n", force)
				return nil
			}

			if err := db.RunMigrations(migrations.FS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().IntVar(&force, "force", 0, "force the schema version without running migrations")

	return cmd
}
