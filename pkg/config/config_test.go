package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetConfigEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "bot": {"prefix": "!", "send_timeout_seconds": 3},
	  "planets": {"static_id": "42", "announce_channel_id": "900"},
	  "channels": {"discord": {"enabled": true, "token": "file-token", "allow_from": ["1"]}},
	  "watcher": {"enabled": true, "schedule": "0 * * * *", "channel": "discord", "channel_id": "900"},
	  "gateway": {"host": "127.0.0.1", "port": 18800},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if got := cfg.Bot.SendTimeout(); got != 3*time.Second {
		t.Fatalf("bot.send_timeout = %v, want 3s", got)
	}
	if cfg.Planets.StaticID != "42" {
		t.Fatalf("planets.static_id = %q, want %q", cfg.Planets.StaticID, "42")
	}
	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Token != "file-token" {
		t.Fatalf("channels.discord = %+v", cfg.Channels.Discord)
	}
	if cfg.Watcher.Schedule != "0 * * * *" {
		t.Fatalf("watcher.schedule = %q", cfg.Watcher.Schedule)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Gateway.Port != 18800 {
		t.Fatalf("gateway.port = %d, want 18800", cfg.Gateway.Port)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Bot.Prefix != "!" {
		t.Fatalf("bot.prefix = %q, want %q", cfg.Bot.Prefix, "!")
	}
	if got := cfg.Bot.SendTimeout(); got != 10*time.Second {
		t.Fatalf("send timeout = %v, want 10s", got)
	}
	if cfg.Planets.URLTemplate != "https://play.skinetics.tech/tests/planets/{id}" {
		t.Fatalf("planets.url_template = %q", cfg.Planets.URLTemplate)
	}
	if cfg.Planets.Registry.Table != "planetsss" {
		t.Fatalf("planets.registry.table = %q", cfg.Planets.Registry.Table)
	}
	if cfg.Watcher.Schedule != "*/5 * * * *" {
		t.Fatalf("watcher.schedule = %q", cfg.Watcher.Schedule)
	}
	if cfg.Gateway.Host != "0.0.0.0" || cfg.Gateway.Port != 18790 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
}

func TestLoadConfigCwdFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetConfigEnv(t)

	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config.json"), []byte(`{"planets": {"static_id": "7"}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Planets.StaticID != "7" {
		t.Fatalf("planets.static_id = %q, want %q", cfg.Planets.StaticID, "7")
	}
}

func TestLoadConfigRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetConfigEnv(t)

	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"bot":`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetConfigEnv(t)

	t.Setenv(envDiscordBotToken, " discord-secret ")
	t.Setenv(envTelegramBotToken, "telegram-secret")
	t.Setenv(envTelegramAllowFrom, "1, 2,,3 ")
	t.Setenv(envPlanetID, "99")
	t.Setenv(envSupabaseURL, "https://example.supabase.co")
	t.Setenv(envSupabaseAPIKey, "anon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Discord.Token != "discord-secret" {
		t.Fatalf("discord token = %q", cfg.Channels.Discord.Token)
	}
	if cfg.Channels.Telegram.Token != "telegram-secret" {
		t.Fatalf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Fatalf("telegram allow_from = %#v", got)
	}
	if cfg.Planets.StaticID != "99" {
		t.Fatalf("planets.static_id = %q", cfg.Planets.StaticID)
	}
	if cfg.Planets.Registry.URL != "https://example.supabase.co" || cfg.Planets.Registry.APIKey != "anon" {
		t.Fatalf("planets.registry = %+v", cfg.Planets.Registry)
	}
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetConfigEnv(t)

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DISCORD_BOT_TOKEN=from-dotenv\nPLANETBOT_PLANET_ID=5\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Discord.Token != "from-dotenv" {
		t.Fatalf("discord token = %q, want %q", cfg.Channels.Discord.Token, "from-dotenv")
	}
	if cfg.Planets.StaticID != "5" {
		t.Fatalf("planets.static_id = %q, want %q", cfg.Planets.StaticID, "5")
	}
}

func TestDotEnvSelectsConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetConfigEnv(t)

	configDir := filepath.Join(dir, "deploy")
	if err := os.Mkdir(configDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	configPath := filepath.Join(configDir, "planetbot.json")
	if err := os.WriteFile(configPath, []byte(`{"planets":{"static_id":"from-dotenv-file"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PLANETBOT_CONFIG="+configPath+"\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Planets.StaticID != "from-dotenv-file" {
		t.Fatalf("planets.static_id = %q, want the file named by .env", cfg.Planets.StaticID)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("parseCSV = %#v", got)
	}
}

// unsetConfigEnv clears variables the loader reads. godotenv sets variables
// with os.Setenv, so each one is registered with t.Setenv first to be restored.
func unsetConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envConfigPath, envDiscordBotToken, envTelegramBotToken, envTelegramAllowFrom,
		envPlanetID, envSupabaseURL, envSupabaseAPIKey,
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
