package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/arachnid/bot/internal/bot"
	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
)

func newSweepCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a reconciliation sweep once",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "discord",
		Short: "Revoke the role from Discord members without a link",
		Long: `Revoke the target role from every guild member that holds it without an
association, and delete associations whose member no longer holds the role.
The Telegram sweep needs a live update stream and only runs inside "run".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := setupLogging(cmd, flags, cfg.Logging)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			report, err := bot.SweepDiscord(ctx, cfg, logger.WithComponent(log, "sweep"))
			if err != nil {
				return fmt.Errorf("discord sweep failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d role holders, revoked %d, removed %d associations\n",
				report.Scanned, report.Revoked, report.Removed)
			return nil
		},
	})

	return cmd
}
