// Package indicator wraps the TA-Lib bindings behind small helpers that
// return the latest value of each series, which is all the confirmation
// and sizing layers need.
package indicator

import (
	"errors"

	"github.com/markcheno/go-talib"

	"futures-autotrader/internal/exchange"
)

var ErrInsufficientData = errors.New("not enough candles for indicator period")

// Series splits klines into the per-field slices TA-Lib operates on
type Series struct {
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// NewSeries extracts price series from candle data
func NewSeries(klines []exchange.Kline) *Series {
	s := &Series{
		High:   make([]float64, len(klines)),
		Low:    make([]float64, len(klines)),
		Close:  make([]float64, len(klines)),
		Volume: make([]float64, len(klines)),
	}
	for i, k := range klines {
		s.High[i] = k.High
		s.Low[i] = k.Low
		s.Close[i] = k.Close
		s.Volume[i] = k.Volume
	}
	return s
}

// ATR returns the latest Average True Range over the given period
func (s *Series) ATR(period int) (float64, error) {
	if len(s.Close) <= period {
		return 0, ErrInsufficientData
	}
	out := talib.Atr(s.High, s.Low, s.Close, period)
	return out[len(out)-1], nil
}

// RSI returns the latest Relative Strength Index over the given period
func (s *Series) RSI(period int) (float64, error) {
	if len(s.Close) <= period {
		return 0, ErrInsufficientData
	}
	out := talib.Rsi(s.Close, period)
	return out[len(out)-1], nil
}

// EMA returns the latest Exponential Moving Average over the given period
func (s *Series) EMA(period int) (float64, error) {
	if len(s.Close) < period {
		return 0, ErrInsufficientData
	}
	out := talib.Ema(s.Close, period)
	return out[len(out)-1], nil
}

// MACDHist returns the latest MACD histogram value with standard 12/26/9
// parameters.
func (s *Series) MACDHist() (float64, error) {
	if len(s.Close) < 35 {
		return 0, ErrInsufficientData
	}
	_, _, hist := talib.Macd(s.Close, 12, 26, 9)
	return hist[len(hist)-1], nil
}

// LastClose returns the most recent closing price
func (s *Series) LastClose() float64 {
	if len(s.Close) == 0 {
		return 0
	}
	return s.Close[len(s.Close)-1]
}

// LastVolume returns the most recent candle volume
func (s *Series) LastVolume() float64 {
	if len(s.Volume) == 0 {
		return 0
	}
	return s.Volume[len(s.Volume)-1]
}
