package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth (Discord)
	DiscordClientID     string        `env:"DISCORD_CLIENT_ID,required,notEmpty"`
	DiscordClientSecret string        `env:"DISCORD_CLIENT_SECRET,required,notEmpty"`
	DiscordRedirectURL  string        `env:"DISCORD_REDIRECT_URL,required,notEmpty"`
	DiscordAPIBaseURL   string        `env:"DISCORD_API_BASE_URL" envDefault:"https://discord.com/api"`
	DiscordCDNBaseURL   string        `env:"DISCORD_CDN_BASE_URL" envDefault:"https://cdn.discordapp.com"`
	AllowedGuildIDs     []string      `env:"ALLOWED_GUILD_IDS,required,notEmpty" envSeparator:","`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// Board
	PostsFile             string `env:"POSTS_FILE" envDefault:"bbs.json"`
	BoardMaxMessageLength int    `env:"BOARD_MAX_MESSAGE_LENGTH" envDefault:"2000"`

	// Session
	SessionSecret          string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Database（設定時のみサーバーサイドセッションストアを使用する）
	DatabaseURL string `env:"DATABASE_URL"`

	// Rate Limit
	RateLimitPosts int `env:"RATE_LIMIT_POSTS" envDefault:"10"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Logging
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Tracing
	TracesExporter string `env:"OTEL_TRACES_EXPORTER" envDefault:"none"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("required environment variables are not set: %w", err)
	}

	cfg.AllowedGuildIDs = normalizeList(cfg.AllowedGuildIDs)
	if len(cfg.AllowedGuildIDs) == 0 {
		return nil, fmt.Errorf("ALLOWED_GUILD_IDS must contain at least one guild ID")
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.DiscordAPIBaseURL = strings.TrimRight(cfg.DiscordAPIBaseURL, "/")
	cfg.DiscordCDNBaseURL = strings.TrimRight(cfg.DiscordCDNBaseURL, "/")

	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 86400
	}

	return cfg, nil
}

// UsesDatabase はサーバーサイドセッションストア（PostgreSQL）を使用するかを返す。
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// normalizeList は前後の空白を除去し、空要素を取り除く。
func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
