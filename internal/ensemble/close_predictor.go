package ensemble

import (
	"github.com/rs/zerolog"

	"futures-autotrader/internal/trades"
)

// Close actions returned by a ClosePredictor
const (
	ActionClose = "close"
	ActionHold  = "hold"
)

// CloseFeatures is the input to the monitor's auto-close path
type CloseFeatures struct {
	Side       trades.Side
	RSI        float64
	ATRPct     float64 // ATR / last close
	HourReturn float64 // fractional price change over the last hour
	PnLPct     float64 // current signed P&L percentage
}

// CloseSignal is the predictor's verdict for an open position
type CloseSignal struct {
	Action     string
	Confidence float64
}

// ClosePredictor decides whether an open position should be closed. It must
// be safe to call with no model loaded and return a hold signal rather than
// an error in that case.
type ClosePredictor interface {
	PredictClose(features CloseFeatures, threshold float64) (*CloseSignal, error)
}

// HeuristicClosePredictor scores positions from momentum exhaustion signals:
// an RSI extreme against the position, adverse hourly momentum, and elevated
// volatility. It serves as the default predictor when no trained model is
// wired in.
type HeuristicClosePredictor struct {
	logger zerolog.Logger
}

// NewHeuristicClosePredictor creates the default close predictor
func NewHeuristicClosePredictor(logger zerolog.Logger) *HeuristicClosePredictor {
	return &HeuristicClosePredictor{
		logger: logger.With().Str("component", "close_predictor").Logger(),
	}
}

// PredictClose scores the position between 0 and 1 and recommends close
// when the score clears the threshold.
func (p *HeuristicClosePredictor) PredictClose(features CloseFeatures, threshold float64) (*CloseSignal, error) {
	if threshold <= 0 {
		threshold = 0.7
	}

	score := 0.0

	// RSI extreme against the position direction
	if features.Side == trades.SideLong && features.RSI >= 70 {
		score += 0.4 * (features.RSI - 70) / 30
		score += 0.1
	} else if features.Side == trades.SideShort && features.RSI <= 30 {
		score += 0.4 * (30 - features.RSI) / 30
		score += 0.1
	}

	// Hourly momentum running against the position
	adverse := features.HourReturn
	if features.Side == trades.SideLong {
		adverse = -features.HourReturn
	}
	if adverse > 0 {
		contribution := adverse * 20
		if contribution > 0.3 {
			contribution = 0.3
		}
		score += contribution
	}

	// Elevated volatility while in profit favors taking the exit
	if features.ATRPct > 0.02 && features.PnLPct > 0 {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}

	action := ActionHold
	if score >= threshold {
		action = ActionClose
	}

	p.logger.Debug().
		Float64("score", score).
		Float64("threshold", threshold).
		Str("action", action).
		Msg("Close prediction")
	return &CloseSignal{Action: action, Confidence: score}, nil
}

var _ ClosePredictor = (*HeuristicClosePredictor)(nil)
