package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/infrastructure/database/postgres"
)

func newLinksCommand(flags *globalFlags) *cobra.Command {
	var theme string

	cmd := &cobra.Command{
		Use:   "links",
		Short: "List stored Telegram to Discord associations",
		Args:  cobra.NoArgs,
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

			associations, err := postgres.NewAssociationRepository(db.DB).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list associations: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(linksTable(associations), theme))
			return nil
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "auto", "glamour style used when writing to a terminal")

	return cmd
}

// linksTable formats associations as a markdown table
func linksTable(associations []*entities.Association) string {
	if len(associations) == 0 {
		return "No associations.\n"
	}

	var b strings.Builder
	b.WriteString("| Telegram | Telegram ID | Discord | Discord ID | Linked |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, a := range associations {
		fmt.Fprintf(&b, "| %s | %d | %s | %d | %s |\n",
			escapeCell(a.TelegramName), a.TelegramID,
			escapeCell(a.DiscordName), a.DiscordID,
			a.LinkedAt.UTC().Format(time.DateTime))
	}
	fmt.Fprintf(&b, "\n%d associations\n", len(associations))
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// renderMarkdown styles markdown with glamour on a terminal and returns it as is otherwise
func renderMarkdown(markdown, theme string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return markdown
	}
	rendered, err := glamour.Render(markdown, theme)
	if err != nil {
		return markdown
	}
	return rendered
}
