package indicator

import (
	"errors"
	"math"
	"testing"

	"futures-autotrader/internal/exchange"
)

func constantCandles(n int, close, spread float64) []exchange.Kline {
	klines := make([]exchange.Kline, n)
	for i := range klines {
		klines[i] = exchange.Kline{
			Open:   close,
			High:   close + spread,
			Low:    close - spread,
			Close:  close,
			Volume: 500,
		}
	}
	return klines
}

func TestNewSeries(t *testing.T) {
	s := NewSeries(constantCandles(3, 100, 1))

	if len(s.Close) != 3 || len(s.High) != 3 || len(s.Low) != 3 || len(s.Volume) != 3 {
		t.Fatal("series slices have wrong length")
	}
	if s.LastClose() != 100 {
		t.Errorf("expected last close 100, got %v", s.LastClose())
	}
	if s.LastVolume() != 500 {
		t.Errorf("expected last volume 500, got %v", s.LastVolume())
	}
}

func TestATRConstantRange(t *testing.T) {
	// every candle has a true range of 2, so the smoothed ATR is 2
	s := NewSeries(constantCandles(50, 100, 1))

	atr, err := s.ATR(14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(atr-2) > 1e-6 {
		t.Errorf("expected ATR 2, got %v", atr)
	}
}

func TestRSIMonotonicUptrend(t *testing.T) {
	klines := make([]exchange.Kline, 50)
	for i := range klines {
		c := 100 + float64(i)
		klines[i] = exchange.Kline{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	s := NewSeries(klines)

	rsi, err := s.RSI(14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsi < 99 {
		t.Errorf("all-gains series should push RSI to 100, got %v", rsi)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	s := NewSeries(constantCandles(60, 42, 0.5))

	ema, err := s.EMA(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ema-42) > 1e-9 {
		t.Errorf("EMA of a constant series is the constant, got %v", ema)
	}
}

func TestInsufficientData(t *testing.T) {
	s := NewSeries(constantCandles(10, 100, 1))

	if _, err := s.ATR(14); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := s.RSI(14); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := s.EMA(50); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := s.MACDHist(); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEmptySeries(t *testing.T) {
	s := NewSeries(nil)
	if s.LastClose() != 0 || s.LastVolume() != 0 {
		t.Error("empty series should report zeros")
	}
}
