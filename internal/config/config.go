package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		AdminChatID int64  `yaml:"admin_chat_id"`
	} `yaml:"telegram"`
	Monitor struct {
		CheckIntervalSeconds   int `yaml:"check_interval_seconds"`
		DefaultCooldownSeconds int `yaml:"default_cooldown_seconds"`
	} `yaml:"monitor"`
	Exchange struct {
		PriceCacheTTLSeconds int      `yaml:"price_cache_ttl_seconds"`
		HTTPTimeoutSeconds   int      `yaml:"http_timeout_seconds"`
		HTTPProxy            string   `yaml:"http_proxy"`
		CryptoCompareAPIKey  string   `yaml:"cryptocompare_api_key"`
		Sources              []string `yaml:"sources"`
	} `yaml:"exchange"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Web struct {
		ListenAddr string `yaml:"listen_addr"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"web"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		Console    bool   `yaml:"console"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Console logging stays on unless the file explicitly disables it.
	cfg.Log.Console = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminChatID = id
		}
	}
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.CheckIntervalSeconds = n
		}
	}
	if v := os.Getenv("DEFAULT_COOLDOWN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.DefaultCooldownSeconds = n
		}
	}
	if v := os.Getenv("PRICE_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exchange.PriceCacheTTLSeconds = n
		}
	}
	if v := os.Getenv("HTTP_PROXY_URL"); v != "" {
		cfg.Exchange.HTTPProxy = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		cfg.Exchange.CryptoCompareAPIKey = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("WEB_LISTEN_ADDR"); v != "" {
		cfg.Web.ListenAddr = v
	}
	if v := os.Getenv("WEB_ADMIN_TOKEN"); v != "" {
		cfg.Web.AdminToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Monitor.CheckIntervalSeconds == 0 {
		cfg.Monitor.CheckIntervalSeconds = 5
	}
	if cfg.Monitor.DefaultCooldownSeconds == 0 {
		cfg.Monitor.DefaultCooldownSeconds = 300
	}
	if cfg.Exchange.PriceCacheTTLSeconds == 0 {
		cfg.Exchange.PriceCacheTTLSeconds = 30
	}
	if cfg.Exchange.HTTPTimeoutSeconds == 0 {
		cfg.Exchange.HTTPTimeoutSeconds = 30
	}
	if len(cfg.Exchange.Sources) == 0 {
		cfg.Exchange.Sources = []string{"binance", "coingecko", "cryptocompare"}
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/cryptosentinel.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "data/logs/cryptosentinel.log"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Monitor.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.check_interval_seconds must be positive")
	}
	if c.Monitor.DefaultCooldownSeconds < 0 {
		return fmt.Errorf("monitor.default_cooldown_seconds must not be negative")
	}
	if c.Exchange.PriceCacheTTLSeconds <= 0 {
		return fmt.Errorf("exchange.price_cache_ttl_seconds must be positive")
	}
	for _, name := range c.Exchange.Sources {
		switch name {
		case "binance", "coingecko", "cryptocompare":
		default:
			return fmt.Errorf("exchange.sources: unknown source %q", name)
		}
	}
	if c.Web.ListenAddr != "" && c.Web.AdminToken == "" {
		return fmt.Errorf("web.admin_token is required when web.listen_addr is set")
	}
	return nil
}
