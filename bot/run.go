package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/arachnid/bot/internal/bot"
	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/internal/pkg/idgen"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
)

const version = "0.1.0"

func newRunCommand(flags *globalFlags) *cobra.Command {
	var nodeID int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bridge",
		Long: `Connect to Telegram and Discord, serve link requests sent to the bot in private
messages and run the periodic sweeps until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := setupLogging(cmd, flags, cfg.Logging)
			if err != nil {
				return err
			}
			log = logger.WithComponent(log, "bot")

			if err := idgen.Initialize(nodeID); err != nil {
				return fmt.Errorf("failed to initialize ID generator: %w", err)
			}

			log.Info("starting arachnid bot",
				slog.String("version", version),
				slog.Int64("target_chat_id", cfg.Telegram.ChatID()),
				slog.String("guild_id", cfg.Discord.GuildID))

			ctx, stop := commandContext(cmd)
			defer stop()

			b, err := bot.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}

			if err := b.Run(ctx); err != nil {
				return fmt.Errorf("bot stopped with error: %w", err)
			}

			log.Info("bot stopped")
			return nil
		},
	}

	cmd.Flags().Int64Var(&nodeID, "node-id", 1, "snowflake node id used for Telegram message random ids")

	return cmd
}

// commandContext returns a context cancelled on interrupt
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
