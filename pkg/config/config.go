package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envConfigPath        = "PLANETBOT_CONFIG"
	envDiscordBotToken   = "DISCORD_BOT_TOKEN"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envPlanetID          = "PLANETBOT_PLANET_ID"
	envSupabaseURL       = "SUPABASE_URL"
	envSupabaseAPIKey    = "SUPABASE_API_KEY"
)

const (
	defaultPrefix             = "!"
	defaultSendTimeoutSeconds = 10
	defaultURLTemplate        = "https://play.skinetics.tech/tests/planets/{id}"
	defaultRegistryTable      = "planetsss"
	defaultRegistryTimeout    = 10
	defaultWatcherSchedule    = "*/5 * * * *"
	defaultWatcherStatePath   = "planetbot.db"
	defaultGatewayHost        = "0.0.0.0"
	defaultGatewayPort        = 18790
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot      BotConfig      `json:"bot"`
	Planets  PlanetsConfig  `json:"planets"`
	Channels ChannelsConfig `json:"channels"`
	Watcher  WatcherConfig  `json:"watcher"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// BotConfig holds command handling settings.
type BotConfig struct {
	// Prefix documents the trigger style. Matching is exact on the full trigger.
	Prefix             string `json:"prefix"`
	SendTimeoutSeconds int    `json:"send_timeout_seconds"`
}

type PlanetsConfig struct {
	URLTemplate       string         `json:"url_template"`
	StaticID          string         `json:"static_id"`
	AnnounceChannelID string         `json:"announce_channel_id"`
	Registry          RegistryConfig `json:"registry"`
}

// RegistryConfig points at the Supabase table planets are registered in.
type RegistryConfig struct {
	URL                   string `json:"url"`
	APIKey                string `json:"api_key"`
	Table                 string `json:"table"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// WatcherConfig controls scheduled announcements of newly registered planets.
type WatcherConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule"`
	Channel   string `json:"channel"`
	ChannelID string `json:"channel_id"`
	StatePath string `json:"state_path"`
}

// GatewayConfig configures the status server bind address.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SendTimeout returns the bound on a single outbound send.
func (b BotConfig) SendTimeout() time.Duration {
	return time.Duration(b.SendTimeoutSeconds) * time.Second
}

// RequestTimeout returns the planet registry HTTP timeout.
func (r RegistryConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// LoadConfig loads .env, resolves config.json, unmarshals it, and applies
// environment overrides. Without a config file, defaults and environment apply.
//
// .env is read first so it may set PLANETBOT_CONFIG.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// loadDotEnv reads .env from the working directory. Existing variables win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envDiscordBotToken)); token != "" {
		cfg.Channels.Discord.Token = token
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
	if id := strings.TrimSpace(os.Getenv(envPlanetID)); id != "" {
		cfg.Planets.StaticID = id
	}
	if url := strings.TrimSpace(os.Getenv(envSupabaseURL)); url != "" {
		cfg.Planets.Registry.URL = url
	}
	if key := strings.TrimSpace(os.Getenv(envSupabaseAPIKey)); key != "" {
		cfg.Planets.Registry.APIKey = key
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Bot.Prefix) == "" {
		cfg.Bot.Prefix = defaultPrefix
	}
	if cfg.Bot.SendTimeoutSeconds <= 0 {
		cfg.Bot.SendTimeoutSeconds = defaultSendTimeoutSeconds
	}
	if strings.TrimSpace(cfg.Planets.URLTemplate) == "" {
		cfg.Planets.URLTemplate = defaultURLTemplate
	}
	if strings.TrimSpace(cfg.Planets.Registry.Table) == "" {
		cfg.Planets.Registry.Table = defaultRegistryTable
	}
	if cfg.Planets.Registry.RequestTimeoutSeconds <= 0 {
		cfg.Planets.Registry.RequestTimeoutSeconds = defaultRegistryTimeout
	}
	if strings.TrimSpace(cfg.Watcher.Schedule) == "" {
		cfg.Watcher.Schedule = defaultWatcherSchedule
	}
	if strings.TrimSpace(cfg.Watcher.StatePath) == "" {
		cfg.Watcher.StatePath = defaultWatcherStatePath
	}
	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = defaultGatewayHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = defaultGatewayPort
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
// PLANETBOT_CONFIG must name a file when set. Otherwise cwd-local paths are
// tried and "" means none exists.
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

	return "", nil
}
