package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RiskConfig.SizingMode != "notional" {
		t.Errorf("expected default sizing mode notional, got %q", cfg.RiskConfig.SizingMode)
	}
	if cfg.RiskConfig.SafetyFactor != 0.1 {
		t.Errorf("expected safety factor 0.1, got %v", cfg.RiskConfig.SafetyFactor)
	}
	if cfg.MonitorConfig.DefaultIntervalMs != 30000 {
		t.Errorf("expected default interval 30000ms, got %d", cfg.MonitorConfig.DefaultIntervalMs)
	}
	if cfg.MonitorConfig.MinTradeAgeSec != 60 {
		t.Errorf("expected dwell time 60s, got %d", cfg.MonitorConfig.MinTradeAgeSec)
	}
	if cfg.EnsembleConfig.VolatilityThreshold != 0.02 {
		t.Errorf("expected volatility threshold 0.02, got %v", cfg.EnsembleConfig.VolatilityThreshold)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"accounts_file": "prod-accounts.json",
		"risk": {"sizing_mode": "risk", "safety_factor": 0.2, "min_reward_risk": 2, "default_risk_pct": 2, "default_leverage": 5},
		"monitor": {"default_interval_ms": 15000, "default_threshold_pct": 3, "min_trade_age_sec": 120},
		"logging": {"level": "debug"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AccountsFile != "prod-accounts.json" {
		t.Errorf("accounts file not read, got %q", cfg.AccountsFile)
	}
	if cfg.RiskConfig.SizingMode != "risk" || cfg.RiskConfig.SafetyFactor != 0.2 {
		t.Errorf("risk config not read: %+v", cfg.RiskConfig)
	}
	if cfg.MonitorConfig.DefaultIntervalMs != 15000 {
		t.Errorf("monitor config not read: %+v", cfg.MonitorConfig)
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("logging config not read: %+v", cfg.LoggingConfig)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RISK_SIZING_MODE", "risk")
	t.Setenv("MONITOR_DEFAULT_INTERVAL_MS", "5000")
	t.Setenv("BINANCE_TESTNET", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RiskConfig.SizingMode != "risk" {
		t.Errorf("env override not applied, got %q", cfg.RiskConfig.SizingMode)
	}
	if cfg.MonitorConfig.DefaultIntervalMs != 5000 {
		t.Errorf("env override not applied, got %d", cfg.MonitorConfig.DefaultIntervalMs)
	}
	if !cfg.ExchangeConfig.TestNet {
		t.Error("testnet env override not applied")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.RiskConfig.SizingMode = "martingale" },
		func(c *Config) { c.RiskConfig.SafetyFactor = 0 },
		func(c *Config) { c.RiskConfig.SafetyFactor = 1.5 },
		func(c *Config) { c.RiskConfig.DefaultRiskPct = 0 },
		func(c *Config) { c.RiskConfig.DefaultRiskPct = 150 },
		func(c *Config) { c.RiskConfig.DefaultLeverage = 0 },
		func(c *Config) { c.MonitorConfig.DefaultIntervalMs = 0 },
		func(c *Config) { c.ExchangeConfig.DefaultMarginType = "HEDGED" },
	}

	for i, mutate := range cases {
		cfg := defaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected a validation error", i)
		}
	}
}
