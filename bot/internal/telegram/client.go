package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/devilmonastery/arachnid/internal/domain/entities"
	"github.com/devilmonastery/arachnid/internal/domain/services"
	"github.com/devilmonastery/arachnid/internal/pkg/idgen"
	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// Config holds the MTProto credentials of the bot
type Config struct {
	AppID       int
	AppHash     string
	BotToken    string
	SessionFile string
}

// Client is the Telegram side of the bridge. It turns MTProto updates into
// pipeline events and implements services.TelegramDirectory.
type Client struct {
	client   *telegram.Client
	api      *tg.Client
	botToken string
	events   chan services.Event
	log      *slog.Logger

	// floodWait sleeps through a FLOOD_WAIT error and reports whether to retry
	floodWait func(ctx context.Context, err error) (bool, error)
}

// NewClient creates a client; nothing connects until Run
func NewClient(cfg Config, log *slog.Logger) *Client {
	c := &Client{
		botToken:  cfg.BotToken,
		events:    make(chan services.Event, 64),
		log:       log,
		floodWait: waitFlood,
	}

	opts := telegram.Options{
		UpdateHandler: telegram.UpdateHandlerFunc(c.handleUpdates),
	}
	if cfg.SessionFile != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionFile}
	}

	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, opts)
	c.api = c.client.API()
	return c
}

// Events returns the stream of inbound events consumed by the pipeline
func (c *Client) Events() <-chan services.Event {
	return c.events
}

// Run connects, signs in as the bot and calls ready. It returns when ctx is
// done or the connection fails.
func (c *Client) Run(ctx context.Context, ready func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to check telegram auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := c.client.Auth().Bot(ctx, c.botToken); err != nil {
				return fmt.Errorf("failed to sign in telegram bot: %w", err)
			}
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to get telegram bot user: %w", err)
		}
		if !self.Bot {
			return errors.New("telegram session is not a bot account")
		}
		c.log.Info("telegram bot signed in",
			slog.Int64("telegram_id", self.ID),
			slog.String("username", self.Username))

		if err := ready(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		return ctx.Err()
	})
}

func waitFlood(ctx context.Context, err error) (bool, error) {
	return tgerr.FloodWait(ctx, err)
}

func (c *Client) handleUpdates(ctx context.Context, u tg.UpdatesClass) error {
	ev, kind := convertUpdates(u)
	metrics.TelegramEvents.WithLabelValues(kind).Inc()

	if len(ev.Chats) == 0 && len(ev.Users) == 0 && len(ev.Messages) == 0 {
		return nil
	}

	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage sends a private text message
func (c *Client) SendMessage(ctx context.Context, user entities.TelegramUser, text string) error {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
		Message:  text,
		RandomID: idgen.RandomID(),
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", user.ID, err)
	}
	return nil
}
