package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "123:abc"
  admin_chat_id: 42
exchange:
  http_proxy: "http://127.0.0.1:7890"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.AdminChatID != 42 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Exchange.HTTPProxy != "http://127.0.0.1:7890" {
		t.Errorf("proxy = %q", cfg.Exchange.HTTPProxy)
	}
	if cfg.Monitor.CheckIntervalSeconds != 5 {
		t.Errorf("check interval default = %d", cfg.Monitor.CheckIntervalSeconds)
	}
	if cfg.Monitor.DefaultCooldownSeconds != 300 {
		t.Errorf("cooldown default = %d", cfg.Monitor.DefaultCooldownSeconds)
	}
	if cfg.Exchange.PriceCacheTTLSeconds != 30 {
		t.Errorf("cache ttl default = %d", cfg.Exchange.PriceCacheTTLSeconds)
	}
	if len(cfg.Exchange.Sources) != 3 || cfg.Exchange.Sources[0] != "binance" {
		t.Errorf("sources default = %v", cfg.Exchange.Sources)
	}
	if !cfg.Log.Console {
		t.Error("console logging should default to on")
	}
	if cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 5 {
		t.Errorf("log rotation defaults = %d/%d", cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Path == "" {
		t.Error("defaults should apply without a config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "from-file"
monitor:
  check_interval_seconds: 10
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("CHECK_INTERVAL", "3")
	t.Setenv("PRICE_CACHE_TTL", "60")
	t.Setenv("ADMIN_CHAT_ID", "777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Monitor.CheckIntervalSeconds != 3 {
		t.Errorf("check interval = %d", cfg.Monitor.CheckIntervalSeconds)
	}
	if cfg.Exchange.PriceCacheTTLSeconds != 60 {
		t.Errorf("cache ttl = %d", cfg.Exchange.PriceCacheTTLSeconds)
	}
	if cfg.Telegram.AdminChatID != 777 {
		t.Errorf("admin chat id = %d", cfg.Telegram.AdminChatID)
	}
}

func TestLoad_ConsoleCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
log:
  console: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Console {
		t.Error("console: false should stick")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		cfg.Telegram.BotToken = "123:abc"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Telegram.BotToken = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing bot token accepted")
	}

	cfg = base()
	cfg.Exchange.Sources = []string{"binance", "kraken"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown source accepted")
	}

	cfg = base()
	cfg.Web.ListenAddr = ":8080"
	if err := cfg.Validate(); err == nil {
		t.Error("web without admin token accepted")
	}

	cfg = base()
	cfg.Monitor.CheckIntervalSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative check interval accepted")
	}
}
