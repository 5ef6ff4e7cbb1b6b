package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AccountsFile       string             `json:"accounts_file"`
	ExchangeConfig     ExchangeConfig     `json:"exchange"`
	RiskConfig         RiskConfig         `json:"risk"`
	EnsembleConfig     EnsembleConfig     `json:"ensemble"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	AutoTradeConfig    AutoTradeConfig    `json:"autotrade"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	RedisConfig        RedisConfig        `json:"redis"`
	PostgresConfig     PostgresConfig     `json:"postgres"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// ExchangeConfig holds Binance USD-M futures connection settings
type ExchangeConfig struct {
	APIKey            string `json:"api_key"`
	SecretKey         string `json:"secret_key"`
	TestNet           bool   `json:"testnet"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	DefaultMarginType string `json:"default_margin_type"` // CROSSED or ISOLATED
	StreamEnabled     bool   `json:"stream_enabled"`      // mark price websocket feed
}

// RiskConfig holds position sizing configuration
type RiskConfig struct {
	SizingMode      string  `json:"sizing_mode"` // "risk" or "notional"
	SafetyFactor    float64 `json:"safety_factor"`
	MinRewardRisk   float64 `json:"min_reward_risk"`
	DefaultRiskPct  float64 `json:"default_risk_pct"`
	DefaultLeverage int     `json:"default_leverage"`
}

// EnsembleConfig toggles the confirmation tiers
type EnsembleConfig struct {
	UseTechnicalConfirm bool    `json:"use_technical_confirm"`
	UseModelEnsemble    bool    `json:"use_model_ensemble"`
	VolatilityThreshold float64 `json:"volatility_threshold"` // ATR/lastClose reject level
	DefaultThreshold    float64 `json:"default_threshold"`    // model probability gate
}

// MonitorConfig holds live P&L monitor settings
type MonitorConfig struct {
	DefaultIntervalMs   int     `json:"default_interval_ms"`
	DefaultThresholdPct float64 `json:"default_threshold_pct"`
	MinTradeAgeSec      int     `json:"min_trade_age_sec"` // ML auto-close dwell time
}

// AutoTradeConfig holds the scheduled trading pass settings
type AutoTradeConfig struct {
	Enabled      bool   `json:"enabled"`
	PassInterval string `json:"pass_interval"` // e.g. "1m"
	Timeframe    string `json:"timeframe"`     // kline timeframe for signals
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type PostgresConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Load reads configuration from a JSON file (if present) and applies
// environment variable overrides on top.
func Load(filename string) (*Config, error) {
	cfg := defaultConfig()

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			fileCfg, err := loadFromFile(filename)
			if err != nil {
				return nil, err
			}
			cfg = fileCfg
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		AccountsFile: "accounts.json",
		ExchangeConfig: ExchangeConfig{
			TestNet:           false,
			RequestTimeoutSec: 30,
			DefaultMarginType: "CROSSED",
			StreamEnabled:     true,
		},
		RiskConfig: RiskConfig{
			SizingMode:      "notional",
			SafetyFactor:    0.1,
			MinRewardRisk:   1.5,
			DefaultRiskPct:  1.0,
			DefaultLeverage: 10,
		},
		EnsembleConfig: EnsembleConfig{
			UseTechnicalConfirm: true,
			UseModelEnsemble:    true,
			VolatilityThreshold: 0.02,
			DefaultThreshold:    0.6,
		},
		MonitorConfig: MonitorConfig{
			DefaultIntervalMs:   30000,
			DefaultThresholdPct: 5.0,
			MinTradeAgeSec:      60,
		},
		AutoTradeConfig: AutoTradeConfig{
			Enabled:      true,
			PassInterval: "1m",
			Timeframe:    "1h",
		},
		ServerConfig: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 24 * time.Hour,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "autotrader/api-keys",
		},
		RedisConfig: RedisConfig{
			Addr: "localhost:6379",
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.AccountsFile = getEnvOrDefault("ACCOUNTS_FILE", cfg.AccountsFile)

	cfg.ExchangeConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.ExchangeConfig.APIKey)
	cfg.ExchangeConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.ExchangeConfig.SecretKey)
	cfg.ExchangeConfig.TestNet = getEnvOrDefault("BINANCE_TESTNET", boolStr(cfg.ExchangeConfig.TestNet)) == "true"
	cfg.ExchangeConfig.RequestTimeoutSec = getEnvIntOrDefault("BINANCE_REQUEST_TIMEOUT_SEC", cfg.ExchangeConfig.RequestTimeoutSec)
	cfg.ExchangeConfig.DefaultMarginType = getEnvOrDefault("BINANCE_DEFAULT_MARGIN_TYPE", cfg.ExchangeConfig.DefaultMarginType)
	cfg.ExchangeConfig.StreamEnabled = getEnvOrDefault("BINANCE_STREAM_ENABLED", boolStr(cfg.ExchangeConfig.StreamEnabled)) == "true"

	cfg.RiskConfig.SizingMode = getEnvOrDefault("RISK_SIZING_MODE", cfg.RiskConfig.SizingMode)
	cfg.RiskConfig.SafetyFactor = getEnvFloatOrDefault("RISK_SAFETY_FACTOR", cfg.RiskConfig.SafetyFactor)
	cfg.RiskConfig.MinRewardRisk = getEnvFloatOrDefault("RISK_MIN_REWARD_RISK", cfg.RiskConfig.MinRewardRisk)
	cfg.RiskConfig.DefaultRiskPct = getEnvFloatOrDefault("RISK_DEFAULT_RISK_PCT", cfg.RiskConfig.DefaultRiskPct)
	cfg.RiskConfig.DefaultLeverage = getEnvIntOrDefault("RISK_DEFAULT_LEVERAGE", cfg.RiskConfig.DefaultLeverage)

	cfg.EnsembleConfig.VolatilityThreshold = getEnvFloatOrDefault("ENSEMBLE_VOLATILITY_THRESHOLD", cfg.EnsembleConfig.VolatilityThreshold)
	cfg.EnsembleConfig.DefaultThreshold = getEnvFloatOrDefault("ENSEMBLE_DEFAULT_THRESHOLD", cfg.EnsembleConfig.DefaultThreshold)

	cfg.MonitorConfig.DefaultIntervalMs = getEnvIntOrDefault("MONITOR_DEFAULT_INTERVAL_MS", cfg.MonitorConfig.DefaultIntervalMs)
	cfg.MonitorConfig.DefaultThresholdPct = getEnvFloatOrDefault("MONITOR_DEFAULT_THRESHOLD_PCT", cfg.MonitorConfig.DefaultThresholdPct)
	cfg.MonitorConfig.MinTradeAgeSec = getEnvIntOrDefault("MONITOR_MIN_TRADE_AGE_SEC", cfg.MonitorConfig.MinTradeAgeSec)

	cfg.AutoTradeConfig.Enabled = getEnvOrDefault("AUTOTRADE_ENABLED", boolStr(cfg.AutoTradeConfig.Enabled)) == "true"
	cfg.AutoTradeConfig.PassInterval = getEnvOrDefault("AUTOTRADE_PASS_INTERVAL", cfg.AutoTradeConfig.PassInterval)
	cfg.AutoTradeConfig.Timeframe = getEnvOrDefault("AUTOTRADE_TIMEFRAME", cfg.AutoTradeConfig.Timeframe)

	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	if cfg.NotificationConfig.Telegram.BotToken != "" {
		cfg.NotificationConfig.Enabled = true
		cfg.NotificationConfig.Telegram.Enabled = true
	}

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.PostgresConfig.Enabled = getEnvOrDefault("POSTGRES_ENABLED", boolStr(cfg.PostgresConfig.Enabled)) == "true"
	cfg.PostgresConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.PostgresConfig.URL)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolStr(cfg.LoggingConfig.Pretty)) == "true"
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.RiskConfig.SizingMode != "risk" && c.RiskConfig.SizingMode != "notional" {
		return fmt.Errorf("invalid sizing_mode %q: must be \"risk\" or \"notional\"", c.RiskConfig.SizingMode)
	}
	if c.RiskConfig.SafetyFactor <= 0 || c.RiskConfig.SafetyFactor > 1 {
		return fmt.Errorf("safety_factor must be in (0, 1], got %v", c.RiskConfig.SafetyFactor)
	}
	if c.RiskConfig.DefaultRiskPct <= 0 || c.RiskConfig.DefaultRiskPct > 100 {
		return fmt.Errorf("default_risk_pct must be in (0, 100], got %v", c.RiskConfig.DefaultRiskPct)
	}
	if c.RiskConfig.DefaultLeverage < 1 {
		return fmt.Errorf("default_leverage must be >= 1, got %d", c.RiskConfig.DefaultLeverage)
	}
	if c.ExchangeConfig.DefaultMarginType != "CROSSED" && c.ExchangeConfig.DefaultMarginType != "ISOLATED" {
		return fmt.Errorf("invalid default_margin_type %q: must be \"CROSSED\" or \"ISOLATED\"", c.ExchangeConfig.DefaultMarginType)
	}
	if c.MonitorConfig.DefaultIntervalMs <= 0 {
		return fmt.Errorf("default_interval_ms must be positive, got %d", c.MonitorConfig.DefaultIntervalMs)
	}
	if _, err := time.ParseDuration(c.AutoTradeConfig.PassInterval); err != nil {
		return fmt.Errorf("invalid autotrade pass_interval %q: %w", c.AutoTradeConfig.PassInterval, err)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
