package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath           = "STORYLINE_CONFIG"
	envTelegramBotToken     = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom    = "TELEGRAM_ALLOW_FROM"
	envDiscordBotToken      = "DISCORD_BOT_TOKEN"
	envMessengerAccessToken = "MESSENGER_ACCESS_TOKEN"
	envMessengerVerifyToken = "MESSENGER_VERIFY_TOKEN"
	envRedisAddr            = "REDIS_ADDR"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Store    StoreConfig    `json:"store"`
	Fallback FallbackConfig `json:"fallback,omitempty"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Discord   DiscordConfig   `json:"discord"`
	Messenger MessengerConfig `json:"messenger"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// DiscordConfig configures Discord channel integration.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// MessengerConfig configures the Messenger webhook channel.
type MessengerConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"access_token"`
	VerifyToken string `json:"verify_token"`
	APIBase     string `json:"api_base,omitempty"`
	Listen      string `json:"listen,omitempty"`
	WebhookPath string `json:"webhook_path,omitempty"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	// Driver is one of "memory", "redis", or "sqlite".
	Driver string       `json:"driver"`
	Redis  RedisConfig  `json:"redis,omitempty"`
	SQLite SQLiteConfig `json:"sqlite,omitempty"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr       string `json:"addr"`
	Password   string `json:"password,omitempty"`
	DB         int    `json:"db,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

// SQLiteConfig configures the sqlite session store.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// FallbackConfig configures the responder used for unhandled messages.
type FallbackConfig struct {
	// Provider is "", "static", or "openai".
	Provider string               `json:"provider,omitempty"`
	Reply    string               `json:"reply,omitempty"`
	OpenAI   OpenAIFallbackConfig `json:"openai,omitempty"`
}

// OpenAIFallbackConfig configures the OpenAI-backed fallback responder.
// The API key is read from OPENAI_API_KEY by the client library.
type OpenAIFallbackConfig struct {
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if token := strings.TrimSpace(os.Getenv(envDiscordBotToken)); token != "" {
		cfg.Channels.Discord.Token = token
	}

	if token := strings.TrimSpace(os.Getenv(envMessengerAccessToken)); token != "" {
		cfg.Channels.Messenger.AccessToken = token
	}

	if token := strings.TrimSpace(os.Getenv(envMessengerVerifyToken)); token != "" {
		cfg.Channels.Messenger.VerifyToken = token
	}

	if addr := strings.TrimSpace(os.Getenv(envRedisAddr)); addr != "" {
		cfg.Store.Redis.Addr = addr
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is STORYLINE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
