// Package execution places confirmed, sized orders on the exchange. Margin
// shortfalls trigger a step-by-step quantity decrement and resubmission;
// every other error aborts the attempt immediately.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/notification"
	"futures-autotrader/internal/sizing"
	"futures-autotrader/internal/trades"
)

// ErrQuantityExhausted means every attempted quantity down to the market
// minimum was rejected for insufficient margin.
var ErrQuantityExhausted = errors.New("all quantities rejected for insufficient margin")

// QuantityExhaustedError carries the attempted quantity range for reporting
type QuantityExhaustedError struct {
	Symbol string
	From   float64
	To     float64
}

func (e *QuantityExhaustedError) Error() string {
	return fmt.Sprintf("%s: tried %v down to %v", ErrQuantityExhausted.Error(), e.From, e.To)
}

func (e *QuantityExhaustedError) Unwrap() error {
	return ErrQuantityExhausted
}

// Request is a confirmed, sized order ready for submission
type Request struct {
	AccountID  string
	Symbol     string
	Side       trades.Side
	Quantity   float64 // rounded and clamped by the sizer
	Leverage   int
	Balance    float64 // available balance at sizing time
	EntryPrice float64 // reference price for the trade record
	StopLoss   float64
	TakeProfit float64
	MarginType string
}

// Snapshotter persists an account's open trades after a registry change.
// A crashed process restores its positions from the last snapshot.
type Snapshotter interface {
	Enabled() bool
	Snapshot(ctx context.Context, accountID string, trades []*trades.Trade) error
}

// Executor submits entries and registers the resulting trades
type Executor struct {
	registry *trades.Registry
	store    Snapshotter
	notifier notification.Notifier
	logger   zerolog.Logger
}

// NewExecutor creates an executor over the given registry and notifier.
// The store may be nil or disabled; registry changes are then not persisted.
func NewExecutor(registry *trades.Registry, store Snapshotter, notifier notification.Notifier, logger zerolog.Logger) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Execute places a market entry for the request, decrementing the quantity
// by one lot step whenever margin is insufficient, until the quantity falls
// below the market minimum. A successful fill gets reduce-only stop-loss and
// take-profit orders attached and the trade registered with the monitor.
func (e *Executor) Execute(conn exchange.Connector, rules *exchange.MarketRules, req Request) (*trades.Trade, error) {
	log := e.logger.With().
		Str("account_id", req.AccountID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Logger()

	if req.Quantity < rules.MinQty {
		return nil, fmt.Errorf("quantity %v below market minimum %v", req.Quantity, rules.MinQty)
	}

	e.prepareSymbol(conn, req, log)

	contractSize := rules.ContractSize
	if contractSize <= 0 {
		contractSize = 1
	}

	qty := req.Quantity
	lastTried := qty
	for qty >= rules.MinQty {
		lastTried = qty

		// Margin pre-check runs before the exchange round trip and is a
		// decrement trigger in its own right
		requiredMargin := qty * contractSize / float64(req.Leverage)
		if requiredMargin > req.Balance {
			log.Debug().
				Float64("quantity", qty).
				Float64("required_margin", requiredMargin).
				Float64("balance", req.Balance).
				Msg("Pre-check margin shortfall, decrementing")
			qty = sizing.RoundToStep(qty-rules.StepSize, rules.StepSize)
			continue
		}

		clientOrderID := "at-" + uuid.New().String()
		resp, err := conn.PlaceOrder(exchange.OrderParams{
			Symbol:           req.Symbol,
			Side:             entrySide(req.Side),
			Type:             exchange.OrderTypeMarket,
			Quantity:         qty,
			NewClientOrderID: clientOrderID,
		})
		if err != nil {
			if exchange.IsInsufficientMargin(err) {
				log.Info().Float64("quantity", qty).Msg("Insufficient margin, decrementing quantity")
				qty = sizing.RoundToStep(qty-rules.StepSize, rules.StepSize)
				continue
			}
			e.notifier.Notify(req.AccountID, fmt.Sprintf("Order failed for %s: %v", req.Symbol, err))
			return nil, fmt.Errorf("error placing entry order: %w", err)
		}

		filled := resp.ExecutedQty
		if filled <= 0 {
			filled = qty
		}
		entry := resp.AvgPrice
		if entry <= 0 {
			entry = req.EntryPrice
		}

		log.Info().
			Float64("quantity", filled).
			Float64("entry_price", entry).
			Int64("order_id", resp.OrderID).
			Msg("Entry order filled")

		e.attachProtectiveOrders(conn, req, filled, log)

		trade := e.registry.Add(&trades.Trade{
			AccountID:     req.AccountID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			EntryPrice:    entry,
			Quantity:      filled,
			Leverage:      req.Leverage,
			StopLoss:      req.StopLoss,
			TakeProfit:    req.TakeProfit,
			Platform:      "binance-futures",
			ClientOrderID: clientOrderID,
		})

		e.snapshot(req.AccountID)
		e.notifier.Notify(req.AccountID, fmt.Sprintf(
			"Opened %s %s: qty %v @ %v (SL %v / TP %v)",
			req.Side, req.Symbol, filled, entry, req.StopLoss, req.TakeProfit))
		return trade, nil
	}

	exhausted := &QuantityExhaustedError{Symbol: req.Symbol, From: req.Quantity, To: lastTried}
	e.notifier.Notify(req.AccountID, fmt.Sprintf(
		"Could not open %s %s: %v", req.Side, req.Symbol, exhausted))
	return nil, exhausted
}

// prepareSymbol sets leverage and margin type ahead of the entry. Both are
// advisory; a failure is logged and the entry proceeds with whatever the
// exchange currently has configured.
func (e *Executor) prepareSymbol(conn exchange.Connector, req Request, log zerolog.Logger) {
	if _, err := conn.SetLeverage(req.Symbol, req.Leverage); err != nil {
		log.Warn().Err(err).Int("leverage", req.Leverage).Msg("Failed to set leverage")
	}
	marginType := req.MarginType
	if marginType == "" {
		marginType = exchange.MarginTypeCrossed
	}
	if err := conn.SetMarginType(req.Symbol, marginType); err != nil {
		log.Warn().Err(err).Str("margin_type", marginType).Msg("Failed to set margin type")
	}
}

// attachProtectiveOrders layers reduce-only SL and TP orders on the filled
// entry. Failures here are warnings; the entry is already live and is not
// rolled back.
func (e *Executor) attachProtectiveOrders(conn exchange.Connector, req Request, qty float64, log zerolog.Logger) {
	closeSide := entrySide(req.Side.Opposite())

	if req.StopLoss > 0 {
		_, err := conn.PlaceOrder(exchange.OrderParams{
			Symbol:     req.Symbol,
			Side:       closeSide,
			Type:       exchange.OrderTypeStopMarket,
			Quantity:   qty,
			StopPrice:  req.StopLoss,
			ReduceOnly: true,
		})
		if err != nil {
			log.Warn().Err(err).Float64("stop_price", req.StopLoss).Msg("Failed to attach stop-loss")
			e.notifier.Notify(req.AccountID, fmt.Sprintf(
				"Warning: %s entry is live but the stop-loss order failed: %v", req.Symbol, err))
		}
	}

	if req.TakeProfit > 0 {
		_, err := conn.PlaceOrder(exchange.OrderParams{
			Symbol:     req.Symbol,
			Side:       closeSide,
			Type:       exchange.OrderTypeTakeProfit,
			Quantity:   qty,
			StopPrice:  req.TakeProfit,
			ReduceOnly: true,
		})
		if err != nil {
			log.Warn().Err(err).Float64("stop_price", req.TakeProfit).Msg("Failed to attach take-profit")
			e.notifier.Notify(req.AccountID, fmt.Sprintf(
				"Warning: %s entry is live but the take-profit order failed: %v", req.Symbol, err))
		}
	}
}

// CloseTrade submits a reduce-only market order for the full quantity and
// removes the trade from the registry.
func (e *Executor) CloseTrade(conn exchange.Connector, trade *trades.Trade, reason string) error {
	_, err := conn.PlaceOrder(exchange.OrderParams{
		Symbol:     trade.Symbol,
		Side:       entrySide(trade.Side.Opposite()),
		Type:       exchange.OrderTypeMarket,
		Quantity:   trade.Quantity,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("error closing position: %w", err)
	}

	if _, err := e.registry.Remove(trade.AccountID, trade.ID); err != nil && !errors.Is(err, trades.ErrTradeNotFound) {
		return err
	}
	e.snapshot(trade.AccountID)

	e.logger.Info().
		Str("account_id", trade.AccountID).
		Str("symbol", trade.Symbol).
		Str("reason", reason).
		Msg("Trade closed")
	e.notifier.Notify(trade.AccountID, fmt.Sprintf("Closed %s %s (%s)", trade.Side, trade.Symbol, reason))
	return nil
}

// snapshot persists the account's current open trades. Failures are logged;
// the order flow never blocks on persistence.
func (e *Executor) snapshot(accountID string) {
	if e.store == nil || !e.store.Enabled() {
		return
	}
	if err := e.store.Snapshot(context.Background(), accountID, e.registry.List(accountID)); err != nil {
		e.logger.Warn().Err(err).Str("account_id", accountID).Msg("Trade snapshot failed")
	}
}

func entrySide(side trades.Side) string {
	if side == trades.SideShort {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
