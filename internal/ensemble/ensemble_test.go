package ensemble

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/indicator"
	"futures-autotrader/internal/trades"
)

type fakeModel struct {
	name string
	pUp  float64
	err  error
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) PredictProbabilities(features []float64) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float64{1 - m.pUp, m.pUp}, nil
}

// testSeries builds synthetic candles long enough for the slow EMA and MACD
func testSeries(n int, base, drift, spread float64) *indicator.Series {
	klines := make([]exchange.Kline, n)
	for i := range klines {
		c := base + drift*float64(i) + math.Sin(float64(i))*base*0.002
		klines[i] = exchange.Kline{
			Open:   c,
			High:   c + spread,
			Low:    c - spread,
			Close:  c,
			Volume: 1000,
		}
	}
	return indicator.NewSeries(klines)
}

func TestAveragedProbabilityWithUnavailableModel(t *testing.T) {
	ens := New([]Model{
		&fakeModel{name: "forest", pUp: 0.7},
		&fakeModel{name: "margin", err: ErrModelUnavailable},
	}, zerolog.Nop())

	series := testSeries(250, 100, 0.01, 0.1)
	opts := Options{UseModelEnsemble: true, Threshold: 0.6}

	long := ens.Confirm(trades.SideLong, series, opts)
	if !long.Confirmed {
		t.Errorf("long at avg 0.6 against threshold 0.6 should confirm, got confidence %v", long.Confidence)
	}
	if math.Abs(long.Confidence-0.6) > 1e-12 {
		t.Errorf("expected averaged confidence 0.6, got %v", long.Confidence)
	}
	if long.ModelScores["margin"] != 0.5 {
		t.Errorf("unavailable model must contribute the neutral 0.5, got %v", long.ModelScores["margin"])
	}

	short := ens.Confirm(trades.SideShort, series, opts)
	if short.Confirmed {
		t.Errorf("short gate is 1-0.6=0.4 < 0.6, must not confirm")
	}
}

func TestNoModelsIsNeutral(t *testing.T) {
	ens := New(nil, zerolog.Nop())

	series := testSeries(250, 100, 0.01, 0.1)
	decision := ens.Confirm(trades.SideLong, series, Options{UseModelEnsemble: true, Threshold: 0.6})

	if decision.Confidence != 0.5 {
		t.Errorf("empty ensemble must report neutral 0.5, got %v", decision.Confidence)
	}
	if decision.Confirmed {
		t.Error("neutral 0.5 must not clear a 0.6 threshold")
	}
}

func TestNoModelsPassesLowThreshold(t *testing.T) {
	ens := New(nil, zerolog.Nop())

	series := testSeries(250, 100, 0.01, 0.1)
	decision := ens.Confirm(trades.SideLong, series, Options{UseModelEnsemble: true, Threshold: 0.5})

	if !decision.Confirmed {
		t.Error("neutral 0.5 meets a 0.5 threshold")
	}
}

func TestVolatilityGuardRejects(t *testing.T) {
	ens := New([]Model{&fakeModel{name: "forest", pUp: 0.9}}, zerolog.Nop())

	// candle ranges dwarf the close, driving ATR/close far past 2%
	series := testSeries(250, 100, 0, 50)
	decision := ens.Confirm(trades.SideLong, series, Options{
		UseTechnicalConfirm: true,
		UseModelEnsemble:    true,
		Threshold:           0.5,
	})

	if decision.Confirmed {
		t.Error("volatility guard should reject before the model tier")
	}
	if decision.Tier != "technical" {
		t.Errorf("rejection should come from the technical tier, got %q", decision.Tier)
	}
}

func TestDegradesWhenDataTooShort(t *testing.T) {
	ens := New([]Model{&fakeModel{name: "forest", pUp: 0.9}}, zerolog.Nop())

	// 10 candles cannot feed EMA200 or MACD; both tiers must degrade
	// without surfacing an error
	series := testSeries(10, 100, 0.01, 0.1)
	decision := ens.Confirm(trades.SideLong, series, Options{
		UseTechnicalConfirm: true,
		UseModelEnsemble:    true,
		Threshold:           0.6,
	})

	if !decision.Confirmed {
		t.Error("degraded confirmation should pass through rather than block")
	}
	if decision.Tier != "technical" {
		t.Errorf("expected degradation to the technical tier, got %q", decision.Tier)
	}
	if decision.Confidence != 0.5 {
		t.Errorf("degraded decision carries neutral confidence, got %v", decision.Confidence)
	}
}

func TestNilSeriesSkipsTiers(t *testing.T) {
	ens := New(nil, zerolog.Nop())

	decision := ens.Confirm(trades.SideLong, nil, Options{UseModelEnsemble: true})
	if !decision.Confirmed || decision.Confidence != 0.5 {
		t.Errorf("missing data must yield a neutral pass, got %+v", decision)
	}
}

func TestHeuristicClosePredictor(t *testing.T) {
	p := NewHeuristicClosePredictor(zerolog.Nop())

	// overbought long with adverse momentum and elevated volatility
	signal, err := p.PredictClose(CloseFeatures{
		Side:       trades.SideLong,
		RSI:        85,
		ATRPct:     0.03,
		HourReturn: -0.05,
		PnLPct:     2,
	}, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Action != ActionClose {
		t.Errorf("expected close, got %q with confidence %v", signal.Action, signal.Confidence)
	}

	// calm position with nothing against it
	signal, err = p.PredictClose(CloseFeatures{
		Side:       trades.SideLong,
		RSI:        55,
		ATRPct:     0.005,
		HourReturn: 0.01,
		PnLPct:     1,
	}, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Action != ActionHold {
		t.Errorf("expected hold, got %q with confidence %v", signal.Action, signal.Confidence)
	}
}
