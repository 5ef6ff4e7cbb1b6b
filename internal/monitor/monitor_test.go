package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/account"
	"futures-autotrader/internal/ensemble"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/execution"
	"futures-autotrader/internal/history"
	"futures-autotrader/internal/trades"
)

type stubAccounts struct {
	accounts map[string]*account.Account
}

func (s *stubAccounts) Get(id string) (*account.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}

func (s *stubAccounts) List() ([]*account.Account, error) {
	out := make([]*account.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	return out, nil
}

type stubNotifier struct {
	messages []string
}

func (s *stubNotifier) Notify(accountID, message string) {
	s.messages = append(s.messages, message)
}

type stubFactory struct {
	conn exchange.Connector
}

func (f *stubFactory) ConnectorFor(apiKey, secretKey string, testnet bool) exchange.Connector {
	return f.conn
}

type stubPredictor struct {
	signal *ensemble.CloseSignal
}

func (p *stubPredictor) PredictClose(features ensemble.CloseFeatures, threshold float64) (*ensemble.CloseSignal, error) {
	if p.signal == nil {
		return &ensemble.CloseSignal{Action: ensemble.ActionHold}, nil
	}
	return p.signal, nil
}

type fixture struct {
	monitor  *Monitor
	registry *trades.Registry
	notifier *stubNotifier
	cache    *exchange.MarketDataCache
	conn     *exchange.MockConnector
	accounts *stubAccounts
}

func newFixture(t *testing.T, predictor ensemble.ClosePredictor) *fixture {
	t.Helper()

	conn := &exchange.MockConnector{}
	cache := exchange.NewMarketDataCache(conn, zerolog.Nop())
	registry := trades.NewRegistry(zerolog.Nop())
	notifier := &stubNotifier{}
	provider := exchange.NewProvider(&stubFactory{conn: conn})

	store, err := trades.NewRedisStore("", "", 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("disabled store should not error: %v", err)
	}
	executor := execution.NewExecutor(registry, store, notifier, zerolog.Nop())
	recorder, err := history.NewRecorder(context.Background(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("disabled recorder should not error: %v", err)
	}

	accounts := &stubAccounts{accounts: map[string]*account.Account{
		"u1": {
			ID:          "u1",
			Credentials: account.Credentials{APIKey: "k", SecretKey: "s"},
			Settings: account.Settings{
				AutoTrading:   true,
				ThresholdPct:  5,
				PnLIntervalMs: 10000,
				MLThreshold:   0.7,
			},
		},
	}}

	if predictor == nil {
		predictor = &stubPredictor{}
	}

	mon := New(accounts, registry, provider, cache, executor, predictor, notifier, recorder, store, Config{
		DefaultInterval: 30 * time.Second,
		MinTradeAge:     60 * time.Second,
	}, zerolog.Nop())

	return &fixture{
		monitor:  mon,
		registry: registry,
		notifier: notifier,
		cache:    cache,
		conn:     conn,
		accounts: accounts,
	}
}

func (f *fixture) setMark(symbol string, price float64) {
	f.cache.SetMarkPrice(&exchange.MarkPrice{Symbol: symbol, MarkPrice: price})
}

func TestComputePnL(t *testing.T) {
	long := &trades.Trade{Side: trades.SideLong, EntryPrice: 100, Quantity: 2}
	pnl, pct := ComputePnL(long, 105)
	if pnl != 10 {
		t.Errorf("expected PnL 10.00, got %v", pnl)
	}
	if pct != 5 {
		t.Errorf("expected 5.00%%, got %v", pct)
	}

	short := &trades.Trade{Side: trades.SideShort, EntryPrice: 100, Quantity: 2}
	pnl, pct = ComputePnL(short, 105)
	if pnl != -10 {
		t.Errorf("short at rising price should lose, got %v", pnl)
	}
	if pct != -5 {
		t.Errorf("expected -5.00%%, got %v", pct)
	}
}

func TestProfitAlertFiresOnce(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})

	f.setMark("BTCUSDT", 105)
	f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected exactly 1 profit alert, got %d: %v", len(f.notifier.messages), f.notifier.messages)
	}
	if got, _ := f.registry.Get("u1", trade.ID); got.LastAlert != trades.AlertProfit {
		t.Errorf("expected lastAlert=profit, got %q", got.LastAlert)
	}

	// deeper into profit, same direction: the gate must hold
	f.setMark("BTCUSDT", 106)
	f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 1 {
		t.Fatalf("alert re-fired at 6%%: %v", f.notifier.messages)
	}
}

func TestOppositeCrossingResetsGate(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})

	f.setMark("BTCUSDT", 105)
	f.monitor.Pass(context.Background())
	f.setMark("BTCUSDT", 94)
	f.monitor.Pass(context.Background())
	f.setMark("BTCUSDT", 105)
	f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 3 {
		t.Fatalf("expected profit, loss, profit alerts, got %d: %v", len(f.notifier.messages), f.notifier.messages)
	}
	if !strings.Contains(f.notifier.messages[1], "down") {
		t.Errorf("second alert should be the loss crossing: %q", f.notifier.messages[1])
	}
}

func TestBelowThresholdStaysQuiet(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})

	f.setMark("BTCUSDT", 103)
	f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 0 {
		t.Errorf("3%% move must not alert at a 5%% threshold: %v", f.notifier.messages)
	}
}

func TestDisabledAutomationSkipsButKeepsTrades(t *testing.T) {
	f := newFixture(t, nil)
	f.accounts.accounts["u1"].Settings.AutoTrading = false
	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})

	f.setMark("BTCUSDT", 110)
	f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 0 {
		t.Errorf("disabled automation must not alert: %v", f.notifier.messages)
	}
	if len(f.registry.List("u1")) != 1 {
		t.Error("trades must survive a skipped account")
	}
}

func TestMissingCredentialsSkipSilently(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.Add(&trades.Trade{
		AccountID:  "ghost",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})

	f.setMark("BTCUSDT", 110)
	delay := f.monitor.Pass(context.Background())

	if len(f.notifier.messages) != 0 {
		t.Errorf("unknown account must be skipped silently: %v", f.notifier.messages)
	}
	if delay != 30*time.Second {
		t.Errorf("skipped accounts should not affect the reschedule delay, got %v", delay)
	}
}

func TestRescheduleUsesMinimumInterval(t *testing.T) {
	f := newFixture(t, nil)

	// no open trades: default interval
	if delay := f.monitor.Pass(context.Background()); delay != 30*time.Second {
		t.Errorf("expected default 30s with nothing open, got %v", delay)
	}

	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})
	f.setMark("BTCUSDT", 100)

	if delay := f.monitor.Pass(context.Background()); delay != 10*time.Second {
		t.Errorf("expected the account's 10s interval, got %v", delay)
	}

	// an interval above the default still wins while it is the only one
	f.accounts.accounts["u1"].Settings.PnLIntervalMs = 60000
	if delay := f.monitor.Pass(context.Background()); delay != 60*time.Second {
		t.Errorf("expected the account's 60s interval, got %v", delay)
	}
}

func TestExchangeClosedPositionIsReaped(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	})
	f.setMark("BTCUSDT", 103)

	// the exchange explicitly reports the symbol flat, e.g. a stop filled
	f.conn.PositionsFunc = func() ([]exchange.Position, error) {
		return []exchange.Position{{Symbol: "BTCUSDT", PositionAmt: 0}}, nil
	}

	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 0 {
		t.Fatal("a flat position must be removed from the registry")
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "closed on the exchange") {
		t.Errorf("expected a close notification, got %v", f.notifier.messages)
	}

	// symbols absent from the response are left alone
	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "ETHUSDT",
		Side:       trades.SideLong,
		EntryPrice: 2000,
		Quantity:   1,
	})
	f.setMark("ETHUSDT", 2000)
	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 1 {
		t.Error("a symbol missing from the positions response must not be reaped")
	}
}

func TestMLAutoCloseRespectsDwell(t *testing.T) {
	f := newFixture(t, &stubPredictor{signal: &ensemble.CloseSignal{Action: ensemble.ActionClose, Confidence: 0.95}})
	f.accounts.accounts["u1"].Settings.UseMLIntervention = true

	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
		OpenedAt:   time.Now(), // younger than the dwell time
	})

	f.setMark("BTCUSDT", 100)
	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 1 {
		t.Error("a trade younger than the dwell time must not be auto-closed")
	}
	if len(f.conn.PlacedOrders) != 0 {
		t.Errorf("no orders expected, got %d", len(f.conn.PlacedOrders))
	}
}

func TestMLAutoCloseClosesAgedTrade(t *testing.T) {
	f := newFixture(t, &stubPredictor{signal: &ensemble.CloseSignal{Action: ensemble.ActionClose, Confidence: 0.95}})
	f.accounts.accounts["u1"].Settings.UseMLIntervention = true

	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
		OpenedAt:   time.Now().Add(-5 * time.Minute),
	})
	f.setMark("BTCUSDT", 100)

	// the predictor features read hourly candles through the cache
	f.conn.KlinesFunc = func(symbol, interval string, limit int) ([]exchange.Kline, error) {
		klines := make([]exchange.Kline, 50)
		for i := range klines {
			klines[i] = exchange.Kline{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
		}
		return klines, nil
	}

	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 0 {
		t.Fatal("expected the trade to be auto-closed")
	}

	foundClose := false
	for _, p := range f.conn.PlacedOrders {
		if p.ReduceOnly && p.Type == exchange.OrderTypeMarket && p.Side == exchange.SideSell {
			foundClose = true
		}
	}
	if !foundClose {
		t.Error("expected a reduce-only market sell to close the long")
	}
}

func TestMLAutoCloseBelowConfidenceHolds(t *testing.T) {
	f := newFixture(t, &stubPredictor{signal: &ensemble.CloseSignal{Action: ensemble.ActionClose, Confidence: 0.5}})
	f.accounts.accounts["u1"].Settings.UseMLIntervention = true

	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
		OpenedAt:   time.Now().Add(-5 * time.Minute),
	})
	f.setMark("BTCUSDT", 100)
	f.conn.KlinesFunc = func(symbol, interval string, limit int) ([]exchange.Kline, error) {
		klines := make([]exchange.Kline, 50)
		for i := range klines {
			klines[i] = exchange.Kline{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
		}
		return klines, nil
	}

	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 1 {
		t.Error("confidence below the account threshold must hold the position")
	}
}

func TestAutoCloseRefreshesKlines(t *testing.T) {
	f := newFixture(t, &stubPredictor{signal: &ensemble.CloseSignal{Action: ensemble.ActionClose, Confidence: 0.95}})
	f.accounts.accounts["u1"].Settings.UseMLIntervention = true

	f.registry.Add(&trades.Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       trades.SideLong,
		EntryPrice: 100,
		Quantity:   2,
		OpenedAt:   time.Now().Add(-5 * time.Minute),
	})
	f.setMark("BTCUSDT", 100)

	fetches := 0
	f.conn.KlinesFunc = func(symbol, interval string, limit int) ([]exchange.Kline, error) {
		fetches++
		klines := make([]exchange.Kline, 50)
		for i := range klines {
			klines[i] = exchange.Kline{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
		}
		return klines, nil
	}

	f.monitor.Pass(context.Background())

	if len(f.registry.List("u1")) != 0 {
		t.Fatal("expected the trade to be auto-closed")
	}
	if fetches != 1 {
		t.Fatalf("expected one candle fetch for the close features, got %d", fetches)
	}

	// the close dropped the cached candles, so the next read goes to the
	// exchange instead of serving hour-old data
	if _, err := f.cache.GetKlines("BTCUSDT", "1h", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("candles should be refetched after the close, got %d fetches", fetches)
	}
}
