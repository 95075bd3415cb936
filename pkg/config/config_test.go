package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "channels": {
	    "telegram": {"enabled": true, "token": "file-token"},
	    "messenger": {"enabled": true, "verify_token": "hub-secret", "webhook_path": "/webhook"}
	  },
	  "store": {"driver": "redis", "redis": {"addr": "127.0.0.1:6379", "ttl_minutes": 30}},
	  "fallback": {"provider": "static", "reply": "Sorry, I did not get that."},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("STORYLINE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Store.Driver != "redis" {
		t.Fatalf("store.driver = %q, want %q", cfg.Store.Driver, "redis")
	}
	if cfg.Store.Redis.TTLMinutes != 30 {
		t.Fatalf("store.redis.ttl_minutes = %d, want 30", cfg.Store.Redis.TTLMinutes)
	}
	if cfg.Fallback.Provider != "static" {
		t.Fatalf("fallback.provider = %q, want %q", cfg.Fallback.Provider, "static")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("STORYLINE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "channels": {"telegram": {"enabled": true, "token": "file-token"}},
	  "store": {"driver": "redis", "redis": {"addr": "file-addr:6379"}},
	  "gateway": {"host": "127.0.0.1", "port": 18790}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("STORYLINE_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_ALLOW_FROM", " alice, bob ,, ")
	t.Setenv("REDIS_ADDR", "env-addr:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("telegram token = %q, want env override", cfg.Channels.Telegram.Token)
	}
	if len(cfg.Channels.Telegram.AllowFrom) != 2 || cfg.Channels.Telegram.AllowFrom[0] != "alice" || cfg.Channels.Telegram.AllowFrom[1] != "bob" {
		t.Fatalf("allow_from = %v, want [alice bob]", cfg.Channels.Telegram.AllowFrom)
	}
	if cfg.Store.Redis.Addr != "env-addr:6379" {
		t.Fatalf("redis addr = %q, want env override", cfg.Store.Redis.Addr)
	}
}
