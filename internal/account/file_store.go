package account

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore loads accounts from a JSON file once at startup. Accounts whose
// credentials live in Vault are filled in through the optional
// CredentialsSource before the store is served.
type FileStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	order    []string
	logger   zerolog.Logger
}

// CredentialsSource resolves API keys for accounts that do not carry them
// inline, such as a Vault secret per account.
type CredentialsSource interface {
	Lookup(accountID string) (*Credentials, error)
}

// SettingsDefaults supplies deployment-level values for the settings an
// account leaves unset.
type SettingsDefaults struct {
	RiskPct             float64
	Leverage            int
	ThresholdPct        float64
	PnLIntervalMs       int
	EnsembleThreshold   float64
	UseTechnicalConfirm bool
	UseModelEnsemble    bool
}

func (d SettingsDefaults) normalized() SettingsDefaults {
	if d.RiskPct <= 0 {
		d.RiskPct = 1.0
	}
	if d.Leverage < 1 {
		d.Leverage = 10
	}
	if d.ThresholdPct <= 0 {
		d.ThresholdPct = 5.0
	}
	if d.PnLIntervalMs <= 0 {
		d.PnLIntervalMs = 30000
	}
	if d.EnsembleThreshold <= 0 {
		d.EnsembleThreshold = 0.6
	}
	return d
}

// NewFileStore reads the accounts file. Accounts with empty inline keys are
// resolved through source when one is given; unresolvable accounts are kept
// but skipped by callers via Credentials.Valid.
func NewFileStore(path string, source CredentialsSource, defaults SettingsDefaults, logger zerolog.Logger) (*FileStore, error) {
	log := logger.With().Str("component", "account_store").Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading accounts file: %w", err)
	}

	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("error parsing accounts file: %w", err)
	}

	defaults = defaults.normalized()

	store := &FileStore{
		accounts: make(map[string]*Account, len(accounts)),
		logger:   log,
	}
	for _, acc := range accounts {
		if acc.ID == "" {
			return nil, fmt.Errorf("account without id in %s", path)
		}
		if _, exists := store.accounts[acc.ID]; exists {
			return nil, fmt.Errorf("duplicate account id %q in %s", acc.ID, path)
		}

		if !acc.Credentials.Valid() && source != nil {
			creds, err := source.Lookup(acc.ID)
			if err != nil {
				log.Warn().Err(err).Str("account_id", acc.ID).Msg("Credential lookup failed, account will be skipped")
			} else {
				acc.Credentials = *creds
			}
		}

		applySettingsDefaults(&acc.Settings, defaults)
		store.accounts[acc.ID] = acc
		store.order = append(store.order, acc.ID)
	}

	log.Info().Int("accounts", len(store.accounts)).Msg("Accounts loaded")
	return store, nil
}

func applySettingsDefaults(s *Settings, d SettingsDefaults) {
	if s.RiskPct <= 0 {
		s.RiskPct = d.RiskPct
	}
	if s.Leverage < 1 {
		s.Leverage = d.Leverage
	}
	if s.ThresholdPct <= 0 {
		s.ThresholdPct = d.ThresholdPct
	}
	if s.PnLIntervalMs <= 0 {
		s.PnLIntervalMs = d.PnLIntervalMs
	}
	if s.MLThreshold <= 0 {
		s.MLThreshold = 0.7
	}
	if s.EnsembleThreshold <= 0 {
		s.EnsembleThreshold = d.EnsembleThreshold
	}
	if s.UseTechnicalConfirm == nil {
		v := d.UseTechnicalConfirm
		s.UseTechnicalConfirm = &v
	}
	if s.UseModelEnsemble == nil {
		v := d.UseModelEnsemble
		s.UseModelEnsemble = &v
	}
}

// Get returns one account by ID
func (s *FileStore) Get(id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// List returns all accounts in file order
func (s *FileStore) List() ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

var _ Store = (*FileStore)(nil)
