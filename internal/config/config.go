package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/rs/zerolog/log"
)

type ConversationBackend string

const (
	BackendMemory ConversationBackend = "memory"
	BackendRedis  ConversationBackend = "redis"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`

	// Remote directory and CRUD service
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`

	// HTTP surface; an empty WebhookURL switches to long polling
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":5000"`
	WebhookURL  string `env:"WEBHOOK_URL"`
	WebhookPath string `env:"WEBHOOK_PATH" envDefault:"/webhook"`
	// WebhookSecret is sent by Telegram in X-Telegram-Bot-Api-Secret-Token.
	// When empty one is derived from the bot token.
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Role selection; an empty passcode disables that role
	AdminPasscode     string `env:"ADMIN_PASSCODE"`
	ModeratorPasscode string `env:"MODERATOR_PASSCODE"`

	// Conversations
	ConversationBackend ConversationBackend `env:"CONVERSATION_BACKEND" envDefault:"memory"`
	ConversationTTL     time.Duration       `env:"CONVERSATION_TTL" envDefault:"30m"`
	SweepSchedule       string              `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	RedisAddr           string              `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string              `env:"REDIS_PASSWORD"`
	RedisDB             int                 `env:"REDIS_DB" envDefault:"0"`

	// Journal and reports
	EventLogPath   string `env:"EVENT_LOG_PATH" envDefault:"logs/events.jsonl"`
	AdminChatID    int64  `env:"ADMIN_CHAT_ID"`
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	// only HTML output is escaped
	switch cfg.MessageParseMode {
	case "", "HTML":
	default:
		return nil, fmt.Errorf("MESSAGE_PARSE_MODE %q is not supported, use HTML or leave it empty", cfg.MessageParseMode)
	}
	return cfg, nil
}

// WebhookSecretToken returns WEBHOOK_SECRET, or a stable value derived from
// the bot token. Telegram accepts [A-Za-z0-9_-], up to 256 characters.
func (c *Config) WebhookSecretToken() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	sum := sha256.Sum256([]byte("webhook:" + c.TelegramBotToken))
	return hex.EncodeToString(sum[:16])
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}
	return cfg
}
