// Package account provides read-only access to per-account credentials and
// trading settings. The engine only reads accounts; nothing here writes
// configuration back.
package account

import "errors"

var ErrAccountNotFound = errors.New("account not found")

// Credentials are the exchange API keys for one account. They are set once
// at load time and never mutated by the engine; credential rotation happens
// by reloading the store.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"testnet"`
	FromVault bool   `json:"-"`
}

// Valid reports whether both keys are present
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// Settings are the per-account trading knobs the engine reads each pass.
// The ensemble toggles are pointers so an account that omits them inherits
// the deployment defaults instead of a hard false.
type Settings struct {
	AutoTrading         bool     `json:"auto_trading"`
	Symbols             []string `json:"symbols"`
	RiskPct             float64  `json:"risk_pct"`
	Leverage            int      `json:"leverage"`
	ThresholdPct        float64  `json:"threshold_pct"`   // P&L alert threshold
	PnLIntervalMs       int      `json:"pnl_interval_ms"` // monitor polling interval
	UseMLIntervention   bool     `json:"use_ml_intervention"`
	MLThreshold         float64  `json:"ml_threshold"`
	UseTechnicalConfirm *bool    `json:"use_technical_confirm,omitempty"`
	UseModelEnsemble    *bool    `json:"use_model_ensemble,omitempty"`
	EnsembleThreshold   float64  `json:"ensemble_threshold"`
	TelegramChatID      int64    `json:"telegram_chat_id"`
}

// TechnicalConfirm reports whether the technical tier runs for this account
func (s *Settings) TechnicalConfirm() bool {
	return s.UseTechnicalConfirm == nil || *s.UseTechnicalConfirm
}

// ModelEnsemble reports whether the model tier runs for this account
func (s *Settings) ModelEnsemble() bool {
	return s.UseModelEnsemble == nil || *s.UseModelEnsemble
}

// Account pairs an identifier with immutable credentials and its settings
type Account struct {
	ID          string      `json:"id"`
	Credentials Credentials `json:"credentials"`
	Settings    Settings    `json:"settings"`
}

// Store is the engine's read-only view of accounts
type Store interface {
	Get(id string) (*Account, error)
	List() ([]*Account, error)
}
