// Package autotrade runs the scheduled trading pass: for each account with
// automation enabled, derive a signal per configured symbol, confirm it
// through the ensemble, size the position, and hand it to the executor.
package autotrade

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/account"
	"futures-autotrader/internal/ensemble"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/execution"
	"futures-autotrader/internal/indicator"
	"futures-autotrader/internal/notification"
	"futures-autotrader/internal/sizing"
	"futures-autotrader/internal/trades"
)

const (
	signalLookback = 250 // enough candles for the slow EMA
	atrPeriod      = 14
)

// Config holds the deployment-level trading pass settings
type Config struct {
	Timeframe           string        // kline timeframe for signals
	PassInterval        time.Duration // delay between passes
	MarginType          string        // applied to every entry
	VolatilityThreshold float64       // ATR/lastClose reject level for the technical tier
}

// Service owns the periodic auto-trade pass
type Service struct {
	accounts account.Store
	registry *trades.Registry
	provider *exchange.Provider
	cache    *exchange.MarketDataCache
	sizer    *sizing.Sizer
	ensemble *ensemble.Ensemble
	executor *execution.Executor
	notifier notification.Notifier
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates the auto-trade service
func New(
	accounts account.Store,
	registry *trades.Registry,
	provider *exchange.Provider,
	cache *exchange.MarketDataCache,
	sizer *sizing.Sizer,
	ens *ensemble.Ensemble,
	executor *execution.Executor,
	notifier notification.Notifier,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1h"
	}
	if cfg.PassInterval <= 0 {
		cfg.PassInterval = time.Minute
	}
	return &Service{
		accounts: accounts,
		registry: registry,
		provider: provider,
		cache:    cache,
		sizer:    sizer,
		ensemble: ens,
		executor: executor,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "autotrade").Logger(),
	}
}

// Start launches the periodic pass
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.run()
	s.logger.Info().Dur("interval", s.cfg.PassInterval).Str("timeframe", s.cfg.Timeframe).Msg("Auto-trade service started")
}

// Stop halts the pass loop
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Auto-trade service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Pass()
		}
	}
}

// Pass evaluates all automated accounts once. A failure for one account is
// logged and does not stop the rest.
func (s *Service) Pass() {
	accounts, err := s.accounts.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list accounts")
		return
	}

	for _, acc := range accounts {
		if !acc.Settings.AutoTrading || !acc.Credentials.Valid() {
			continue
		}
		for _, symbol := range acc.Settings.Symbols {
			if s.hasOpenTrade(acc.ID, symbol) {
				continue
			}
			if err := s.evaluateSymbol(acc, symbol); err != nil {
				s.logger.Warn().Err(err).
					Str("account_id", acc.ID).
					Str("symbol", symbol).
					Msg("Signal evaluation failed")
			}
		}
	}
}

func (s *Service) hasOpenTrade(accountID, symbol string) bool {
	for _, t := range s.registry.List(accountID) {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// evaluateSymbol derives a trend side from the EMA cross, confirms it, and
// executes when everything lines up. Unconfirmed signals are debug noise,
// not errors.
func (s *Service) evaluateSymbol(acc *account.Account, symbol string) error {
	klines, err := s.cache.GetKlines(symbol, s.cfg.Timeframe, signalLookback)
	if err != nil {
		return fmt.Errorf("error fetching klines: %w", err)
	}
	series := indicator.NewSeries(klines)

	side, err := trendSide(series)
	if err != nil {
		return err
	}

	decision := s.ensemble.Confirm(side, series, s.confirmOptions(acc))
	if !decision.Confirmed {
		s.logger.Debug().
			Str("symbol", symbol).
			Str("side", string(side)).
			Float64("confidence", decision.Confidence).
			Str("reason", decision.Reason).
			Msg("Signal not confirmed")
		return nil
	}

	return s.openPosition(acc, symbol, side, series, decision)
}

// confirmOptions merges the account's tier toggles with the deployment
// volatility threshold
func (s *Service) confirmOptions(acc *account.Account) ensemble.Options {
	return ensemble.Options{
		UseTechnicalConfirm: acc.Settings.TechnicalConfirm(),
		UseModelEnsemble:    acc.Settings.ModelEnsemble(),
		VolatilityThreshold: s.cfg.VolatilityThreshold,
		Threshold:           acc.Settings.EnsembleThreshold,
	}
}

func (s *Service) openPosition(acc *account.Account, symbol string, side trades.Side, series *indicator.Series, decision *ensemble.Decision) error {
	conn := s.provider.For(acc.ID, acc.Credentials.APIKey, acc.Credentials.SecretKey, acc.Credentials.Testnet)

	rules, err := conn.GetMarketRules(symbol)
	if err != nil {
		return fmt.Errorf("error fetching market rules: %w", err)
	}

	markPrice, err := s.cache.GetMarkPrice(symbol)
	if err != nil {
		return fmt.Errorf("error fetching mark price: %w", err)
	}
	entry := markPrice.MarkPrice

	atr, err := series.ATR(atrPeriod)
	if err != nil {
		atr = 0 // levels fall back to fixed offsets
	}
	levels := sizing.StopLossTakeProfit(entry, side, atr)
	if levels.Fallback {
		s.logger.Warn().Str("symbol", symbol).Msg("ATR unavailable, stop and target use fixed offsets")
		s.notifier.Notify(acc.ID, fmt.Sprintf(
			"%s signal on %s: ATR unavailable, stop and target set at fixed 1%% offsets", side, symbol))
	}

	if err := s.sizer.CheckRewardRisk(entry, levels.StopLoss, levels.TakeProfit); err != nil {
		s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Signal rejected by reward/risk gate")
		return nil
	}

	balance, err := conn.GetUSDTBalance()
	if err != nil {
		return fmt.Errorf("error fetching balance: %w", err)
	}

	result, err := s.sizer.ComputeQuantity(balance, entry, levels.StopLoss, acc.Settings.RiskPct, acc.Settings.Leverage, rules)
	if err != nil {
		return fmt.Errorf("error computing quantity: %w", err)
	}
	if result.Final <= 0 {
		s.logger.Debug().Str("symbol", symbol).Msg("Computed quantity is zero, skipping")
		return nil
	}

	s.logger.Info().
		Str("account_id", acc.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("quantity", result.Final).
		Float64("confidence", decision.Confidence).
		Str("tier", decision.Tier).
		Msg("Signal confirmed, executing")

	_, err = s.executor.Execute(conn, rules, execution.Request{
		AccountID:  acc.ID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   result.Final,
		Leverage:   acc.Settings.Leverage,
		Balance:    balance,
		EntryPrice: entry,
		StopLoss:   levels.StopLoss,
		TakeProfit: levels.TakeProfit,
		MarginType: s.cfg.MarginType,
	})
	return err
}

// trendSide maps the EMA 50/200 relationship to a proposed direction
func trendSide(series *indicator.Series) (trades.Side, error) {
	fast, err := series.EMA(50)
	if err != nil {
		return "", err
	}
	slow, err := series.EMA(200)
	if err != nil {
		return "", err
	}
	if fast < slow {
		return trades.SideShort, nil
	}
	return trades.SideLong, nil
}
