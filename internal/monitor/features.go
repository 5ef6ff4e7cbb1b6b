package monitor

import (
	"futures-autotrader/internal/ensemble"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/indicator"
	"futures-autotrader/internal/trades"
)

const (
	featureTimeframe = "1h"
	featureLookback  = 100
)

// closeFeatures builds the predictor input for one open trade from cached
// hourly candles: RSI, ATR as a fraction of price, and the one-hour return.
func closeFeatures(cache *exchange.MarketDataCache, trade *trades.Trade, pnlPct float64) (ensemble.CloseFeatures, error) {
	klines, err := cache.GetKlines(trade.Symbol, featureTimeframe, featureLookback)
	if err != nil {
		return ensemble.CloseFeatures{}, err
	}

	series := indicator.NewSeries(klines)

	rsi, err := series.RSI(14)
	if err != nil {
		return ensemble.CloseFeatures{}, err
	}
	atr, err := series.ATR(14)
	if err != nil {
		return ensemble.CloseFeatures{}, err
	}

	lastClose := series.LastClose()
	atrPct := 0.0
	if lastClose > 0 {
		atrPct = atr / lastClose
	}

	hourReturn := 0.0
	if n := len(series.Close); n >= 2 && series.Close[n-2] > 0 {
		hourReturn = (series.Close[n-1] - series.Close[n-2]) / series.Close[n-2]
	}

	return ensemble.CloseFeatures{
		Side:       trade.Side,
		RSI:        rsi,
		ATRPct:     atrPct,
		HourReturn: hourReturn,
		PnLPct:     pnlPct,
	}, nil
}
