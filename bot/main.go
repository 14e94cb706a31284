package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath    string
	logLevel      string
	logFormat     string
	logFile       string
	alsoLogStderr bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "arachnid-bot",
		Short: "Grant a Discord role to verified members of a Telegram chat",
		Long: `arachnid-bot links Telegram users of a private chat to Discord accounts.
Members message the bot their Discord username and receive the configured role;
background sweeps take the role away when they leave the chat.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to configuration file (searches default locations if empty)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, text); overrides logging.format")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "log file path; overrides logging.file")
	cmd.PersistentFlags().BoolVar(&flags.alsoLogStderr, "alsologtostderr", false, "log to stderr as well as the log file")

	cmd.AddCommand(newRunCommand(flags))
	cmd.AddCommand(newSweepCommand(flags))
	cmd.AddCommand(newLinksCommand(flags))
	cmd.AddCommand(newMigrateCommand(flags))

	return cmd
}

// setupLogging applies the logging section, letting explicitly set flags win
func setupLogging(cmd *cobra.Command, flags *globalFlags, cfg config.LoggingConfig) (*slog.Logger, error) {
	if cmd.Flags().Changed("log-level") {
		cfg.Level = flags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Format = flags.logFormat
	}
	if cmd.Flags().Changed("log-file") {
		cfg.File = flags.logFile
	}

	log, closer, err := logger.SetupLogger(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		AlsoStderr: flags.alsoLogStderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	cobra.OnFinalize(func() { closer.Close() })

	slog.SetDefault(log)
	return log, nil
}
