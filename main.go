package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"futures-autotrader/config"
	"futures-autotrader/internal/account"
	"futures-autotrader/internal/api"
	"futures-autotrader/internal/autotrade"
	"futures-autotrader/internal/ensemble"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/execution"
	"futures-autotrader/internal/history"
	"futures-autotrader/internal/monitor"
	"futures-autotrader/internal/notification"
	"futures-autotrader/internal/sizing"
	"futures-autotrader/internal/trades"
)

func main() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.json"
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("Starting futures autotrader")

	// Credentials source: Vault when enabled, process-level keys as the
	// fallback for accounts without inline credentials
	var credSource account.CredentialsSource
	if cfg.VaultConfig.Enabled {
		source, err := account.NewVaultSource(
			cfg.VaultConfig.Address, cfg.VaultConfig.Token,
			cfg.VaultConfig.MountPath, cfg.VaultConfig.SecretPath,
			cfg.VaultConfig.CACert, cfg.VaultConfig.TLSEnabled, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Vault")
		}
		credSource = source
	} else if cfg.ExchangeConfig.APIKey != "" {
		credSource = account.NewStaticSource(
			cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.SecretKey, cfg.ExchangeConfig.TestNet)
	}

	accounts, err := account.NewFileStore(cfg.AccountsFile, credSource, account.SettingsDefaults{
		RiskPct:             cfg.RiskConfig.DefaultRiskPct,
		Leverage:            cfg.RiskConfig.DefaultLeverage,
		ThresholdPct:        cfg.MonitorConfig.DefaultThresholdPct,
		PnLIntervalMs:       cfg.MonitorConfig.DefaultIntervalMs,
		EnsembleThreshold:   cfg.EnsembleConfig.DefaultThreshold,
		UseTechnicalConfirm: cfg.EnsembleConfig.UseTechnicalConfirm,
		UseModelEnsemble:    cfg.EnsembleConfig.UseModelEnsemble,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load accounts")
	}

	// Shared market data path: one public connector behind the cache, one
	// signed connector per account through the provider
	factory := &exchange.Factory{Timeout: time.Duration(cfg.ExchangeConfig.RequestTimeoutSec) * time.Second}
	provider := exchange.NewProvider(factory)
	publicConn := factory.ConnectorFor("", "", cfg.ExchangeConfig.TestNet)
	cache := exchange.NewMarketDataCache(publicConn, logger)

	var stream *exchange.MarkPriceStream
	if cfg.ExchangeConfig.StreamEnabled {
		stream = exchange.NewMarkPriceStream(cache, cfg.ExchangeConfig.TestNet, logger)
		stream.Start()
	}

	ctx := context.Background()

	redisAddr := ""
	if cfg.RedisConfig.Enabled {
		redisAddr = cfg.RedisConfig.Addr
	}
	store, err := trades.NewRedisStore(redisAddr, cfg.RedisConfig.Password, cfg.RedisConfig.DB, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	registry := trades.NewRegistry(logger)
	if err := store.Restore(ctx, registry); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore trades from Redis")
	}

	pgURL := ""
	if cfg.PostgresConfig.Enabled {
		pgURL = cfg.PostgresConfig.URL
	}
	recorder, err := history.NewRecorder(ctx, pgURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}

	var notifier notification.Notifier = notification.NewLogNotifier(logger)
	if cfg.NotificationConfig.Telegram.Enabled {
		notifier = notification.NewTelegramNotifier(cfg.NotificationConfig.Telegram.BotToken, accounts, logger)
	}

	sizer := sizing.NewSizer(cfg.RiskConfig.SizingMode, cfg.RiskConfig.SafetyFactor, cfg.RiskConfig.MinRewardRisk, logger)
	ens := ensemble.New(nil, logger)
	executor := execution.NewExecutor(registry, store, notifier, logger)
	predictor := ensemble.NewHeuristicClosePredictor(logger)

	mon := monitor.New(accounts, registry, provider, cache, executor, predictor, notifier, recorder, store, monitor.Config{
		DefaultInterval: time.Duration(cfg.MonitorConfig.DefaultIntervalMs) * time.Millisecond,
		MinTradeAge:     time.Duration(cfg.MonitorConfig.MinTradeAgeSec) * time.Second,
	}, logger)
	mon.Start()

	var trader *autotrade.Service
	if cfg.AutoTradeConfig.Enabled {
		passInterval, err := time.ParseDuration(cfg.AutoTradeConfig.PassInterval)
		if err != nil {
			logger.Fatal().Err(err).Str("pass_interval", cfg.AutoTradeConfig.PassInterval).Msg("Invalid auto-trade pass interval")
		}
		trader = autotrade.New(accounts, registry, provider, cache, sizer, ens, executor, notifier,
			autotrade.Config{
				Timeframe:           cfg.AutoTradeConfig.Timeframe,
				PassInterval:        passInterval,
				MarginType:          cfg.ExchangeConfig.DefaultMarginType,
				VolatilityThreshold: cfg.EnsembleConfig.VolatilityThreshold,
			}, logger)
		trader.Start()
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(accounts, registry, provider, cache, executor, cfg.AuthConfig.JWTSecret, logger)
		server.Start(cfg.ServerConfig.Host, cfg.ServerConfig.Port)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down")

	if trader != nil {
		trader.Stop()
	}
	mon.Stop()
	if stream != nil {
		stream.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
	}

	store.SnapshotAll(ctx, registry)
	store.Close()
	recorder.Close()
	cache.LogStats()
	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
