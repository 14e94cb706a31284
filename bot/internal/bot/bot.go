package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/devilmonastery/arachnid/bot/internal/config"
	"github.com/devilmonastery/arachnid/bot/internal/discord"
	botmetrics "github.com/devilmonastery/arachnid/bot/internal/metrics"
	"github.com/devilmonastery/arachnid/bot/internal/telegram"
	"github.com/devilmonastery/arachnid/internal/domain/repositories"
	"github.com/devilmonastery/arachnid/internal/domain/services"
	"github.com/devilmonastery/arachnid/internal/infrastructure/database/postgres"
	"github.com/devilmonastery/arachnid/internal/pkg/logger"
	"github.com/devilmonastery/arachnid/migrations"
)

const dbConnectRetries = 10

// Bot bridges the target Telegram chat and the Discord role
type Bot struct {
	config    *config.Config
	log       *slog.Logger
	db        *postgres.Connection
	session   *discordgo.Session
	directory *discord.Directory
	telegram  *telegram.Client
	store     repositories.AssociationRepository
	cache     *services.RosterCache
	locks     *services.LinkLocks
	ready     atomic.Bool
}

// New connects to the database, applies migrations and prepares both platform clients
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	db, err := postgres.ConnectWithRetry(ctx, cfg.Database.Postgres.ConnectionString(), dbConnectRetries, log)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run PostgreSQL migrations: %w", err)
	}

	session, err := newDiscordSession(cfg.Discord.Token)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bot{
		config:    cfg,
		log:       log,
		db:        db,
		session:   session,
		directory: discord.NewDirectory(session, cfg.Discord.GuildID, cfg.Discord.RoleID, logger.WithComponent(log, "discord")),
		telegram: telegram.NewClient(telegram.Config{
			AppID:       cfg.Telegram.AppID,
			AppHash:     cfg.Telegram.AppHash,
			BotToken:    cfg.Telegram.BotToken,
			SessionFile: cfg.Telegram.SessionFile,
		}, logger.WithComponent(log, "telegram")),
		store: postgres.NewAssociationRepository(db.DB),
		cache: services.NewRosterCache(),
		locks: services.NewLinkLocks(),
	}, nil
}

// newDiscordSession creates a REST-only session; the bot never opens the gateway
func newDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Client.Transport = botmetrics.NewDiscordMetricsTransport(session.Client.Transport)
	return session, nil
}

// Run serves until ctx is done, then drains in-flight link requests before
// disconnecting from Telegram
func (b *Bot) Run(ctx context.Context) error {
	defer b.db.Close()

	target, err := b.directory.Target(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve discord target: %w", err)
	}
	b.log.Info("discord target resolved",
		slog.String("guild", target.GuildName),
		slog.String("role", target.RoleName))

	messages, err := services.NewMessages(b.config.Messages)
	if err != nil {
		return err
	}

	chatID := b.config.Telegram.ChatID()
	resolver := services.NewLinkResolver(b.telegram, b.directory, b.store, b.cache, b.locks, messages,
		chatID, target, logger.WithComponent(b.log, "resolver"))
	pipeline := services.NewPipeline(b.cache, resolver, b.config.Pipeline.MaxConcurrent,
		logger.WithComponent(b.log, "pipeline"))
	reconciler := services.NewReconciler(b.telegram, b.directory, b.store, b.cache, b.locks,
		chatID, logger.WithComponent(b.log, "reconciler"))

	return lifecycle{
		connect: func(ctx context.Context) error {
			return b.telegram.Run(ctx, func(context.Context) error {
				b.log.Info("telegram connected, consuming updates")
				return nil
			})
		},
		serve: func(ctx context.Context, g *errgroup.Group) {
			g.Go(func() error {
				return pipeline.Run(ctx, b.telegram.Events())
			})

			g.Go(func() error {
				chat, err := pipeline.WaitForChat(ctx, chatID, b.config.Pipeline.RegistrationPoll)
				if err != nil {
					return err
				}
				b.ready.Store(true)
				b.log.Info("target chat registered",
					slog.Int64("chat_id", chat.ID),
					slog.String("title", chat.Title),
					slog.String("kind", chat.Kind.String()))

				b.startSweeps(ctx, g, reconciler)
				return nil
			})

			if b.config.Admin.Port > 0 {
				g.Go(func() error {
					return serveAdmin(ctx, b.config.Admin.Port, newAdminRouter(&b.ready, b.log), b.log)
				})
			}
		},
		drain: pipeline.Drain,
		grace: b.config.Pipeline.ShutdownGrace,
		log:   b.log,
	}.run(ctx)
}

// SweepDiscord runs one Discord sweep without connecting to Telegram
func SweepDiscord(ctx context.Context, cfg *config.Config, log *slog.Logger) (*services.SweepReport, error) {
	db, err := postgres.ConnectWithRetry(ctx, cfg.Database.Postgres.ConnectionString(), 3, log)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.RunMigrations(migrations.FS); err != nil {
		return nil, fmt.Errorf("failed to run PostgreSQL migrations: %w", err)
	}

	session, err := newDiscordSession(cfg.Discord.Token)
	if err != nil {
		return nil, err
	}

	directory := discord.NewDirectory(session, cfg.Discord.GuildID, cfg.Discord.RoleID, logger.WithComponent(log, "discord"))
	reconciler := services.NewReconciler(nil, directory, postgres.NewAssociationRepository(db.DB),
		services.NewRosterCache(), services.NewLinkLocks(), cfg.Telegram.ChatID(), logger.WithComponent(log, "reconciler"))

	start := time.Now()
	report, err := reconciler.SweepDiscord(ctx)
	if err != nil {
		return report, err
	}
	logger.WithDuration(log, time.Since(start)).Info("one-shot discord sweep finished")
	return report, nil
}
