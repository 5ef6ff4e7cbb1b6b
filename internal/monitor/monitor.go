// Package monitor runs the live P&L loop: one pass over every account with
// open trades, then a reschedule at the shortest configured interval. Each
// pass refreshes prices through the shared cache, fires one-shot threshold
// alerts, and may hand profitable-to-close positions to the ML predictor.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/account"
	"futures-autotrader/internal/ensemble"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/execution"
	"futures-autotrader/internal/history"
	"futures-autotrader/internal/notification"
	"futures-autotrader/internal/trades"
)

// Config holds the monitor's process-wide defaults
type Config struct {
	DefaultInterval time.Duration // reschedule delay with no open trades
	MinTradeAge     time.Duration // ML auto-close dwell time
}

// Monitor owns the pass-and-reschedule loop
type Monitor struct {
	accounts  account.Store
	registry  *trades.Registry
	provider  *exchange.Provider
	cache     *exchange.MarketDataCache
	executor  *execution.Executor
	predictor ensemble.ClosePredictor
	notifier  notification.Notifier
	recorder  *history.Recorder
	store     *trades.RedisStore
	cfg       Config
	logger    zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a monitor. The recorder and store may be disabled instances.
func New(
	accounts account.Store,
	registry *trades.Registry,
	provider *exchange.Provider,
	cache *exchange.MarketDataCache,
	executor *execution.Executor,
	predictor ensemble.ClosePredictor,
	notifier notification.Notifier,
	recorder *history.Recorder,
	store *trades.RedisStore,
	cfg Config,
	logger zerolog.Logger,
) *Monitor {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 30 * time.Second
	}
	if cfg.MinTradeAge <= 0 {
		cfg.MinTradeAge = 60 * time.Second
	}
	return &Monitor{
		accounts:  accounts,
		registry:  registry,
		provider:  provider,
		cache:     cache,
		executor:  executor,
		predictor: predictor,
		notifier:  notifier,
		recorder:  recorder,
		store:     store,
		cfg:       cfg,
		logger:    logger.With().Str("component", "monitor").Logger(),
	}
}

// Start launches the loop in the background
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})

	m.wg.Add(1)
	go m.run()
	m.logger.Info().Dur("default_interval", m.cfg.DefaultInterval).Msg("Position monitor started")
}

// Stop halts the loop and waits for the current pass to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("Position monitor stopped")
}

// run performs a pass, then sleeps for the delay that pass computed. A pass
// always completes before the next is scheduled, so no account is ever
// polled concurrently with itself.
func (m *Monitor) run() {
	defer m.wg.Done()

	for {
		delay := m.Pass(context.Background())

		select {
		case <-m.stop:
			return
		case <-time.After(delay):
		}
	}
}

// Pass runs one monitor iteration over all accounts with open trades and
// returns the delay until the next pass: the minimum of the checked
// accounts' polling intervals, or the default when no account was checked.
func (m *Monitor) Pass(ctx context.Context) time.Duration {
	var next time.Duration

	for _, accountID := range m.registry.Accounts() {
		acc, err := m.accounts.Get(accountID)
		if err != nil || !acc.Credentials.Valid() {
			// Credentials removed since the trade opened; skip silently,
			// the trades stay registered
			continue
		}
		if !acc.Settings.AutoTrading {
			continue
		}

		if interval := time.Duration(acc.Settings.PnLIntervalMs) * time.Millisecond; interval > 0 && (next == 0 || interval < next) {
			next = interval
		}

		if err := m.checkAccount(ctx, acc); err != nil {
			m.logger.Error().Err(err).Str("account_id", accountID).Msg("Monitor pass failed for account")
		}
	}

	if next <= 0 {
		next = m.cfg.DefaultInterval
	}
	return next
}

// checkAccount evaluates every open trade for one account. An error on one
// trade does not stop the remaining trades.
func (m *Monitor) checkAccount(ctx context.Context, acc *account.Account) error {
	conn := m.provider.For(acc.ID, acc.Credentials.APIKey, acc.Credentials.SecretKey, acc.Credentials.Testnet)

	// A symbol reported with zero position means the exchange already
	// closed it, typically a stop or target fill
	flatSymbols := m.fetchFlatSymbols(conn)

	var firstErr error
	for _, trade := range m.registry.List(acc.ID) {
		if _, flat := flatSymbols[trade.Symbol]; flat {
			m.reapClosedTrade(ctx, acc, trade)
			continue
		}
		if err := m.checkTrade(ctx, acc, conn, trade); err != nil {
			m.logger.Warn().Err(err).
				Str("account_id", acc.ID).
				Str("symbol", trade.Symbol).
				Msg("Trade check failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// fetchFlatSymbols returns the symbols the exchange reports with a zero
// position. Symbols absent from the response stay untouched; only an
// explicit zero is trusted as evidence of an on-exchange close.
func (m *Monitor) fetchFlatSymbols(conn exchange.Connector) map[string]struct{} {
	positions, err := conn.GetPositions()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to fetch positions, skipping close reconciliation")
		return nil
	}

	flat := make(map[string]struct{})
	for _, p := range positions {
		if p.PositionAmt == 0 {
			flat[p.Symbol] = struct{}{}
		}
	}
	return flat
}

// reapClosedTrade removes a trade whose position the exchange closed,
// recording the exit at the last known mark price.
func (m *Monitor) reapClosedTrade(ctx context.Context, acc *account.Account, trade *trades.Trade) {
	if _, err := m.registry.Remove(acc.ID, trade.ID); err != nil {
		return
	}

	exitPrice := trade.EntryPrice
	pnl, pnlPct := 0.0, 0.0
	if mark, err := m.cache.GetMarkPrice(trade.Symbol); err == nil {
		exitPrice = mark.MarkPrice
		pnl, pnlPct = ComputePnL(trade, exitPrice)
	}

	m.logger.Info().
		Str("account_id", acc.ID).
		Str("symbol", trade.Symbol).
		Float64("pnl_pct", pnlPct).
		Msg("Position closed on exchange, removing trade")
	m.notifier.Notify(acc.ID, fmt.Sprintf(
		"%s %s closed on the exchange at ~%v (%.2f%%)", trade.Side, trade.Symbol, exitPrice, pnlPct))

	m.recorder.RecordClose(ctx, trade, exitPrice, pnl, pnlPct, "exchange_close")
	m.cache.InvalidateKlines(trade.Symbol)
	if m.store.Enabled() {
		if err := m.store.Snapshot(ctx, acc.ID, m.registry.List(acc.ID)); err != nil {
			m.logger.Warn().Err(err).Str("account_id", acc.ID).Msg("Trade snapshot failed")
		}
	}
}

func (m *Monitor) checkTrade(ctx context.Context, acc *account.Account, conn exchange.Connector, trade *trades.Trade) error {
	markPrice, err := m.cache.GetMarkPrice(trade.Symbol)
	if err != nil {
		return fmt.Errorf("error fetching mark price: %w", err)
	}

	pnl, pnlPct := ComputePnL(trade, markPrice.MarkPrice)

	m.applyAlerts(acc, trade, pnl, pnlPct)

	if acc.Settings.UseMLIntervention && trade.Age() >= m.cfg.MinTradeAge {
		if err := m.maybeAutoClose(ctx, acc, conn, trade, markPrice.MarkPrice, pnl, pnlPct); err != nil {
			return err
		}
	}
	return nil
}

// ComputePnL returns the unrealized P&L in quote currency and as a signed
// percentage of the entry price.
func ComputePnL(trade *trades.Trade, markPrice float64) (pnl, pnlPct float64) {
	diff := markPrice - trade.EntryPrice
	if trade.Side == trades.SideShort {
		diff = -diff
	}
	pnl = diff * trade.Quantity
	if trade.EntryPrice != 0 {
		pnlPct = diff / trade.EntryPrice * 100
	}
	return pnl, pnlPct
}

// applyAlerts fires at most one alert per threshold crossing per direction.
// The gate only resets when the opposite threshold is crossed.
func (m *Monitor) applyAlerts(acc *account.Account, trade *trades.Trade, pnl, pnlPct float64) {
	threshold := trade.ThresholdPct
	if threshold <= 0 {
		threshold = acc.Settings.ThresholdPct
	}

	switch {
	case pnlPct >= threshold && trade.LastAlert != trades.AlertProfit:
		m.notifier.Notify(acc.ID, fmt.Sprintf(
			"%s %s up %.2f%% (%.2f USDT)", trade.Side, trade.Symbol, pnlPct, pnl))
		if err := m.registry.SetAlert(acc.ID, trade.ID, trades.AlertProfit); err != nil {
			m.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Failed to update alert state")
		}
	case pnlPct <= -threshold && trade.LastAlert != trades.AlertLoss:
		m.notifier.Notify(acc.ID, fmt.Sprintf(
			"%s %s down %.2f%% (%.2f USDT)", trade.Side, trade.Symbol, math.Abs(pnlPct), pnl))
		if err := m.registry.SetAlert(acc.ID, trade.ID, trades.AlertLoss); err != nil {
			m.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Failed to update alert state")
		}
	}
}

// maybeAutoClose asks the predictor whether to exit and, above the
// account's confidence threshold, closes the position reduce-only.
func (m *Monitor) maybeAutoClose(ctx context.Context, acc *account.Account, conn exchange.Connector, trade *trades.Trade, markPrice, pnl, pnlPct float64) error {
	features, err := closeFeatures(m.cache, trade, pnlPct)
	if err != nil {
		return fmt.Errorf("error computing close features: %w", err)
	}

	signal, err := m.predictor.PredictClose(features, acc.Settings.MLThreshold)
	if err != nil {
		// Predictor failures degrade to holding the position
		m.logger.Warn().Err(err).Str("symbol", trade.Symbol).Msg("Close prediction failed")
		return nil
	}
	if signal.Action != ensemble.ActionClose || signal.Confidence < acc.Settings.MLThreshold {
		return nil
	}

	m.logger.Info().
		Str("account_id", acc.ID).
		Str("symbol", trade.Symbol).
		Float64("confidence", signal.Confidence).
		Float64("pnl_pct", pnlPct).
		Msg("ML auto-close triggered")

	if err := m.executor.CloseTrade(conn, trade, fmt.Sprintf("ml auto-close, confidence %.2f", signal.Confidence)); err != nil {
		return err
	}

	m.recorder.RecordClose(ctx, trade, markPrice, pnl, pnlPct, "ml_auto_close")
	// the next signal evaluation for this symbol starts from fresh candles
	m.cache.InvalidateKlines(trade.Symbol)
	return nil
}
