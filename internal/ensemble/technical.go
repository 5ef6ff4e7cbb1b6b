package ensemble

import (
	"futures-autotrader/internal/indicator"
	"futures-autotrader/internal/trades"
)

const (
	rsiPeriod         = 14
	atrPeriod         = 14
	rsiOverbought     = 70.0
	rsiOversold       = 30.0
	defaultVolatility = 0.02
)

// TechnicalResult carries the outcome of the first confirmation tier
type TechnicalResult struct {
	Passed     bool
	RSI        float64
	MACDHist   float64
	Volatility float64 // ATR / last close
	Rejected   string  // non-empty when the guard or filter rejected
}

// technicalConfirm runs the RSI + MACD histogram filter with an upfront
// volatility guard. Bullish signals need RSI below overbought and a positive
// histogram; bearish signals need RSI above oversold and a negative one.
func technicalConfirm(series *indicator.Series, side trades.Side, volThreshold float64) (*TechnicalResult, error) {
	if volThreshold <= 0 {
		volThreshold = defaultVolatility
	}

	atr, err := series.ATR(atrPeriod)
	if err != nil {
		return nil, err
	}
	rsi, err := series.RSI(rsiPeriod)
	if err != nil {
		return nil, err
	}
	hist, err := series.MACDHist()
	if err != nil {
		return nil, err
	}

	result := &TechnicalResult{RSI: rsi, MACDHist: hist}

	lastClose := series.LastClose()
	if lastClose > 0 {
		result.Volatility = atr / lastClose
	}
	if result.Volatility > volThreshold {
		result.Rejected = "volatility above threshold"
		return result, nil
	}

	if side == trades.SideShort {
		if rsi > rsiOversold && hist < 0 {
			result.Passed = true
		} else {
			result.Rejected = "bearish filter not met"
		}
		return result, nil
	}

	if rsi < rsiOverbought && hist > 0 {
		result.Passed = true
	} else {
		result.Rejected = "bullish filter not met"
	}
	return result, nil
}
