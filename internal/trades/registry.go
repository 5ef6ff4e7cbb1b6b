package trades

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrTradeNotFound = errors.New("trade not found")

const defaultThresholdPct = 5.0

// Registry holds the active trades per account. It is injected into the
// execution engine and the monitor rather than shared as a package global,
// so tests and multiple engine instances each get their own set.
type Registry struct {
	mu     sync.RWMutex
	trades map[string][]*Trade // accountID -> open trades
	logger zerolog.Logger
}

// NewRegistry creates an empty trade registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		trades: make(map[string][]*Trade),
		logger: logger.With().Str("component", "trade_registry").Logger(),
	}
}

// Add registers a newly opened trade. Missing fields get their defaults:
// a generated ID, the current time, threshold 5% and a clear alert gate.
func (r *Registry) Add(trade *Trade) *Trade {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = time.Now()
	}
	if trade.ThresholdPct <= 0 {
		trade.ThresholdPct = defaultThresholdPct
	}
	if trade.LastAlert == "" {
		trade.LastAlert = AlertNone
	}

	r.mu.Lock()
	r.trades[trade.AccountID] = append(r.trades[trade.AccountID], trade)
	r.mu.Unlock()

	r.logger.Info().
		Str("account_id", trade.AccountID).
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Float64("quantity", trade.Quantity).
		Msg("Trade registered")
	return trade
}

// Remove deletes a trade from the active set
func (r *Registry) Remove(accountID, tradeID string) (*Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.trades[accountID]
	for i, t := range list {
		if t.ID == tradeID {
			r.trades[accountID] = append(list[:i], list[i+1:]...)
			if len(r.trades[accountID]) == 0 {
				delete(r.trades, accountID)
			}
			return t, nil
		}
	}
	return nil, ErrTradeNotFound
}

// Get returns a single trade by ID
func (r *Registry) Get(accountID, tradeID string) (*Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.trades[accountID] {
		if t.ID == tradeID {
			return t, nil
		}
	}
	return nil, ErrTradeNotFound
}

// List returns a copy of the account's open trades
func (r *Registry) List(accountID string) []*Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.trades[accountID]
	out := make([]*Trade, len(list))
	copy(out, list)
	return out
}

// Accounts returns the IDs of all accounts with open trades
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.trades))
	for id := range r.trades {
		ids = append(ids, id)
	}
	return ids
}

// SetAlert updates the alert gate for a trade
func (r *Registry) SetAlert(accountID, tradeID string, state AlertState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.trades[accountID] {
		if t.ID == tradeID {
			t.LastAlert = state
			return nil
		}
	}
	return ErrTradeNotFound
}

// Count returns the total number of open trades across accounts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, list := range r.trades {
		n += len(list)
	}
	return n
}
