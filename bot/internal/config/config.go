package config

import (
	"errors"
	"fmt"
	"time"

	shared "github.com/devilmonastery/arachnid/internal/config"
	"github.com/devilmonastery/arachnid/internal/domain/services"
)

// botAPIChannelOffset is added to channel ids in the Bot API "-100..." form
const botAPIChannelOffset = 1_000_000_000_000

// Config holds the bot configuration
type Config struct {
	Telegram TelegramConfig            `yaml:"telegram"`
	Discord  DiscordConfig             `yaml:"discord"`
	Database shared.DatabaseConfig     `yaml:"database"`
	Sweeps   SweepsConfig              `yaml:"sweeps"`
	Pipeline PipelineConfig            `yaml:"pipeline"`
	Admin    AdminConfig               `yaml:"admin"`
	Logging  LoggingConfig             `yaml:"logging"`
	Messages services.MessageTemplates `yaml:"messages"`
}

// TelegramConfig holds the MTProto application and bot credentials
type TelegramConfig struct {
	AppID       int    `yaml:"app_id"`
	AppHash     string `yaml:"app_hash"`
	BotToken    string `yaml:"bot_token"`
	SessionFile string `yaml:"session_file"`
	// TargetChatID accepts the raw MTProto id or the Bot API form (-123 or -100123)
	TargetChatID int64 `yaml:"target_chat_id"`
}

// ChatID returns the raw MTProto id of the target chat
func (t TelegramConfig) ChatID() int64 {
	id := t.TargetChatID
	switch {
	case id <= -botAPIChannelOffset:
		return -id - botAPIChannelOffset
	case id < 0:
		return -id
	default:
		return id
	}
}

// DiscordConfig holds the Discord bot token and the guild/role being granted
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	RoleID  string `yaml:"role_id"`
}

// SweepsConfig holds reconciliation intervals. Zero disables a sweep.
type SweepsConfig struct {
	TelegramInterval time.Duration `yaml:"telegram_interval"`
	DiscordInterval  time.Duration `yaml:"discord_interval"`
}

// PipelineConfig tunes inbound message handling
type PipelineConfig struct {
	MaxConcurrent    int           `yaml:"max_concurrent"`
	RegistrationPoll time.Duration `yaml:"registration_poll"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
}

// AdminConfig holds the health and metrics server settings. Port 0 disables it.
type AdminConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a config with every optional setting filled in
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{SessionFile: "arachnid.session"},
		Database: shared.DefaultDatabaseConfig(),
		Sweeps: SweepsConfig{
			TelegramInterval: time.Hour,
			DiscordInterval:  time.Hour,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:    services.DefaultMaxConcurrentHandlers,
			RegistrationPoll: services.DefaultRegistrationPoll,
			ShutdownGrace:    30 * time.Second,
		},
		Admin: AdminConfig{Port: 6060},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration from a YAML file. An empty path searches
// the default locations.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := shared.LoadYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseOnly reads the configuration but only validates the database
// section, for commands that never talk to Telegram or Discord
func LoadDatabaseOnly(path string) (*Config, error) {
	cfg := Default()
	if _, err := shared.LoadYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields for running the bot
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.AppID == 0 {
		errs = append(errs, errors.New("telegram.app_id is required"))
	}
	if c.Telegram.AppHash == "" {
		errs = append(errs, errors.New("telegram.app_hash is required"))
	}
	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	if c.Telegram.TargetChatID == 0 {
		errs = append(errs, errors.New("telegram.target_chat_id is required"))
	}
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if c.Discord.RoleID == "" {
		errs = append(errs, errors.New("discord.role_id is required"))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Sweeps.TelegramInterval < 0 || c.Sweeps.DiscordInterval < 0 {
		errs = append(errs, errors.New("sweep intervals must not be negative"))
	}
	if c.Pipeline.MaxConcurrent < 0 {
		errs = append(errs, errors.New("pipeline.max_concurrent must not be negative"))
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		errs = append(errs, errors.New("admin.port must be between 0 and 65535"))
	}
	if _, err := services.NewMessages(c.Messages); err != nil {
		errs = append(errs, fmt.Errorf("messages: %w", err))
	}

	return errors.Join(errs...)
}
