package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"

	"CryptoSentinel/internal/bot"
	"CryptoSentinel/internal/config"
	"CryptoSentinel/internal/exchange"
	"CryptoSentinel/internal/logging"
	"CryptoSentinel/internal/monitor"
	"CryptoSentinel/internal/notifier"
	"CryptoSentinel/internal/reporter"
	"CryptoSentinel/internal/store"
	"CryptoSentinel/internal/web"
)

func main() {
	cfgPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config validation:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	log := logging.For("main")
	log.Info().Str("config", cfgPath).Msg("CryptoSentinel starting")

	st, err := store.NewStore(cfg.Database.Path, logging.For("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening store failed")
	}
	defer st.Close()

	sources, err := buildSources(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("building price sources failed")
	}
	manager, err := exchange.NewManager(sources,
		time.Duration(cfg.Exchange.PriceCacheTTLSeconds)*time.Second,
		logging.For("exchange"))
	if err != nil {
		log.Fatal().Err(err).Msg("building failover manager failed")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	log.Info().Str("bot", api.Self.UserName).Msg("telegram authorized")
	tg := notifier.NewTelegram(api, logging.For("notifier"))

	engine := monitor.New(st, manager, monitor.Config{
		CheckInterval:   time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second,
		DefaultCooldown: time.Duration(cfg.Monitor.DefaultCooldownSeconds) * time.Second,
	}, logging.For("monitor"))
	engine.SetNotifier(tg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports := reporter.New(ctx, manager, st, tg, logging.For("reporter"))
	if err := reports.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting reporter failed")
	}

	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("starting monitor failed")
	}

	var admin *web.Server
	if cfg.Web.ListenAddr != "" {
		admin = web.NewServer(web.Config{
			ListenAddr: cfg.Web.ListenAddr,
			AdminToken: cfg.Web.AdminToken,
		}, st, manager, engine, logging.For("web"))
		admin.Start()
	}

	handler := bot.NewHandler(api, st, manager, reports, logging.For("bot"))
	go handler.Start(ctx)

	if cfg.Telegram.AdminChatID != 0 {
		if err := tg.Send(cfg.Telegram.AdminChatID, "🚀 价格监控机器人已启动"); err != nil {
			log.Warn().Err(err).Msg("startup notice failed")
		}
	}

	log.Info().Msg("CryptoSentinel is running")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	if admin != nil {
		admin.Shutdown()
	}
	engine.Stop()
	reports.Stop()
	log.Info().Msg("CryptoSentinel stopped")
}

// buildSources instantiates the configured providers in priority order.
// One HTTP client is shared so the proxy and timeout apply everywhere.
func buildSources(cfg *config.Config) ([]exchange.Source, error) {
	client := exchange.NewHTTPClient(
		time.Duration(cfg.Exchange.HTTPTimeoutSeconds)*time.Second,
		cfg.Exchange.HTTPProxy)

	var sources []exchange.Source
	for _, name := range cfg.Exchange.Sources {
		switch name {
		case "binance":
			sources = append(sources, exchange.NewBinanceSource(client))
		case "coingecko":
			sources = append(sources, exchange.NewCoinGeckoSource(client))
		case "cryptocompare":
			sources = append(sources, exchange.NewCryptoCompareSource(client, cfg.Exchange.CryptoCompareAPIKey))
		default:
			return nil, fmt.Errorf("unknown price source %q", name)
		}
	}
	return sources, nil
}
