// Package sizing converts balance, risk settings, and volatility into an
// order quantity and stop-loss / take-profit levels that respect the
// symbol's lot step, minimum quantity, and a fee-adjusted safety ceiling.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/trades"
)

// Sizing modes. Risk-based sizes from the stop distance, notional-based
// from margin times leverage over contract size.
const (
	ModeRisk     = "risk"
	ModeNotional = "notional"
)

const (
	stopATRMultiple   = 1.5
	targetATRMultiple = 2.5
	fallbackOffsetPct = 0.01
)

var (
	ErrRiskRewardTooLow = errors.New("reward/risk ratio below minimum")
	ErrInvalidRiskPct   = errors.New("risk percentage must be in (0, 100]")
	ErrInvalidLeverage  = errors.New("leverage must be at least 1")
)

// Levels holds computed stop-loss and take-profit prices. Fallback is set
// when the ATR was unusable and fixed percentage offsets were used instead.
type Levels struct {
	StopLoss   float64
	TakeProfit float64
	Fallback   bool
}

// Result is the outcome of a quantity computation
type Result struct {
	Raw     float64
	Rounded float64
	MaxSafe float64
	Final   float64
	Clamped bool
}

// Sizer computes order quantities under the configured mode
type Sizer struct {
	mode          string
	safetyFactor  float64
	minRewardRisk float64
	logger        zerolog.Logger
}

// NewSizer creates a sizer. Mode must be ModeRisk or ModeNotional.
func NewSizer(mode string, safetyFactor, minRewardRisk float64, logger zerolog.Logger) *Sizer {
	if mode != ModeRisk && mode != ModeNotional {
		mode = ModeNotional
	}
	if safetyFactor <= 0 {
		safetyFactor = 0.1
	}
	if minRewardRisk <= 0 {
		minRewardRisk = 1.5
	}
	return &Sizer{
		mode:          mode,
		safetyFactor:  safetyFactor,
		minRewardRisk: minRewardRisk,
		logger:        logger.With().Str("component", "sizer").Logger(),
	}
}

// Mode returns the active sizing mode
func (s *Sizer) Mode() string {
	return s.mode
}

// StopLossTakeProfit derives SL and TP from the entry price and ATR.
// Long positions stop 1.5 ATR below and target 2.5 ATR above; shorts mirror.
// A zero or non-finite ATR falls back to 1% offsets and flags the result.
func StopLossTakeProfit(entry float64, side trades.Side, atr float64) Levels {
	fallback := atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0)

	stopDist := stopATRMultiple * atr
	targetDist := targetATRMultiple * atr
	if fallback {
		stopDist = entry * fallbackOffsetPct
		targetDist = entry * fallbackOffsetPct
	}

	if side == trades.SideShort {
		return Levels{
			StopLoss:   entry + stopDist,
			TakeProfit: entry - targetDist,
			Fallback:   fallback,
		}
	}
	return Levels{
		StopLoss:   entry - stopDist,
		TakeProfit: entry + targetDist,
		Fallback:   fallback,
	}
}

// CheckRewardRisk validates the TP/SL geometry against the minimum ratio
func (s *Sizer) CheckRewardRisk(entry, stopLoss, takeProfit float64) error {
	riskDist := math.Abs(entry - stopLoss)
	if riskDist == 0 {
		return ErrRiskRewardTooLow
	}
	ratio := math.Abs(takeProfit-entry) / riskDist
	if ratio < s.minRewardRisk {
		return fmt.Errorf("%w: %.2f < %.2f", ErrRiskRewardTooLow, ratio, s.minRewardRisk)
	}
	return nil
}

// ComputeQuantity turns balance and risk settings into a final order
// quantity: raw size per the active mode, rounded down to the lot step,
// bumped to the market minimum if needed, and clamped to the safety ceiling.
func (s *Sizer) ComputeQuantity(balance, entry, stopLoss, riskPct float64, leverage int, rules *exchange.MarketRules) (*Result, error) {
	if riskPct <= 0 || riskPct > 100 {
		return nil, ErrInvalidRiskPct
	}
	if leverage < 1 {
		return nil, ErrInvalidLeverage
	}

	raw := s.rawQuantity(balance, entry, stopLoss, riskPct, leverage, rules)
	if raw <= 0 {
		return &Result{}, nil
	}

	rounded := RoundToStep(raw, rules.StepSize)
	if rounded < rules.MinQty {
		rounded = rules.MinQty
	}

	maxSafe := MaxSafeQuantity(balance, leverage, s.safetyFactor, rules.TakerFee, rules.StepSize)

	result := &Result{
		Raw:     raw,
		Rounded: rounded,
		MaxSafe: maxSafe,
		Final:   rounded,
	}
	if rounded > maxSafe {
		result.Final = maxSafe
		result.Clamped = true
		s.logger.Warn().
			Float64("requested", rounded).
			Float64("max_safe", maxSafe).
			Str("symbol", rules.Symbol).
			Msg("Quantity clamped to safety ceiling")
	}
	return result, nil
}

func (s *Sizer) rawQuantity(balance, entry, stopLoss, riskPct float64, leverage int, rules *exchange.MarketRules) float64 {
	switch s.mode {
	case ModeRisk:
		dist := math.Abs(entry - stopLoss)
		if dist == 0 {
			return 0
		}
		riskAmount := balance * riskPct / 100
		return riskAmount * float64(leverage) / dist
	default:
		contractSize := rules.ContractSize
		if contractSize <= 0 {
			contractSize = 1
		}
		margin := balance * riskPct / 100
		return math.Floor(margin * float64(leverage) / contractSize)
	}
}

// RoundToStep rounds a quantity down to the nearest multiple of step
func RoundToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	steps := math.Floor(quantity / step)
	// Re-round to the step's own precision so float division noise does not
	// produce quantities like 99.99999999999999
	return roundToPrecision(steps*step, step)
}

// MaxSafeQuantity is the fee-adjusted ceiling on position size, a fraction
// of the theoretical maximum notional the balance could carry.
func MaxSafeQuantity(balance float64, leverage int, safetyFactor, takerFee, step float64) float64 {
	if step <= 0 {
		return balance * float64(leverage) * safetyFactor * (1 - takerFee)
	}
	raw := balance * float64(leverage) * safetyFactor * (1 - takerFee)
	return roundToPrecision(math.Floor(raw/step)*step, step)
}

func roundToPrecision(value, step float64) float64 {
	decimals := 0
	for step < 1 && decimals < 10 {
		step *= 10
		decimals++
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
