package ensemble

import (
	"github.com/rs/zerolog"

	"futures-autotrader/internal/indicator"
	"futures-autotrader/internal/trades"
)

const (
	neutralProbability = 0.5
	emaFastPeriod      = 50
	emaSlowPeriod      = 200
)

// Decision is the outcome of a confirmation call
type Decision struct {
	Confirmed   bool
	Confidence  float64
	ModelScores map[string]float64
	Tier        string // which tier produced the decision
	Reason      string // populated when not confirmed
}

// Options toggles the confirmation tiers per call, read from account settings
type Options struct {
	UseTechnicalConfirm bool
	UseModelEnsemble    bool
	VolatilityThreshold float64
	Threshold           float64
}

// Ensemble evaluates trade signals. Models are injected at construction and
// may be empty, in which case the model tier reports neutral confidence.
type Ensemble struct {
	models []Model
	logger zerolog.Logger
}

// New creates an ensemble over the given models
func New(models []Model, logger zerolog.Logger) *Ensemble {
	return &Ensemble{
		models: models,
		logger: logger.With().Str("component", "ensemble").Logger(),
	}
}

// Confirm evaluates a proposed side against candle data. Tier one is the
// technical filter, tier two the averaged model probabilities. Either tier
// failing internally degrades to the next rather than surfacing an error;
// the returned Decision always carries the confidence that produced it.
func (e *Ensemble) Confirm(side trades.Side, series *indicator.Series, opts Options) *Decision {
	if series == nil {
		return &Decision{Confidence: neutralProbability, Confirmed: true, Tier: "none", Reason: "no market data, tiers skipped"}
	}

	if opts.Threshold <= 0 {
		opts.Threshold = 0.6
	}

	if opts.UseTechnicalConfirm {
		tech, err := technicalConfirm(series, side, opts.VolatilityThreshold)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Technical confirm failed, degrading to model tier")
		} else if !tech.Passed {
			return &Decision{
				Confirmed:  false,
				Confidence: neutralProbability,
				Tier:       "technical",
				Reason:     tech.Rejected,
			}
		}
	}

	if !opts.UseModelEnsemble {
		return &Decision{Confirmed: true, Confidence: neutralProbability, Tier: "technical"}
	}

	features, err := extractFeatures(series)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Feature extraction failed, degrading to technical confirm")
		return &Decision{Confirmed: true, Confidence: neutralProbability, Tier: "technical"}
	}

	avg, scores := e.averageProbability(features)
	confirmed := gate(side, avg, opts.Threshold)

	decision := &Decision{
		Confirmed:   confirmed,
		Confidence:  avg,
		ModelScores: scores,
		Tier:        "ensemble",
	}
	if !confirmed {
		decision.Reason = "ensemble confidence below threshold"
	}
	return decision
}

// averageProbability queries every model for P(up). A model that errors
// contributes the neutral 0.5 so one bad model cannot veto the rest; with no
// models at all the result is neutral.
func (e *Ensemble) averageProbability(features FeatureVector) (float64, map[string]float64) {
	if len(e.models) == 0 {
		return neutralProbability, nil
	}

	scores := make(map[string]float64, len(e.models))
	sum := 0.0
	for _, m := range e.models {
		probs, err := m.PredictProbabilities(features.Slice())
		pUp := neutralProbability
		if err != nil {
			e.logger.Warn().Err(err).Str("model", m.Name()).Msg("Model prediction failed, using neutral score")
		} else if len(probs) >= 2 {
			pUp = probs[1]
		}
		scores[m.Name()] = pUp
		sum += pUp
	}
	return sum / float64(len(e.models)), scores
}

// gate applies the direction-aware threshold: long passes on P(up), short
// on 1 - P(up).
func gate(side trades.Side, avgProbability, threshold float64) bool {
	if side == trades.SideShort {
		return 1-avgProbability >= threshold
	}
	return avgProbability >= threshold
}

func extractFeatures(series *indicator.Series) (FeatureVector, error) {
	atr, err := series.ATR(atrPeriod)
	if err != nil {
		return FeatureVector{}, err
	}
	rsi, err := series.RSI(rsiPeriod)
	if err != nil {
		return FeatureVector{}, err
	}
	emaFast, err := series.EMA(emaFastPeriod)
	if err != nil {
		return FeatureVector{}, err
	}
	emaSlow, err := series.EMA(emaSlowPeriod)
	if err != nil {
		return FeatureVector{}, err
	}

	return FeatureVector{
		ATR:        atr,
		EMASpread:  emaFast - emaSlow,
		RSI:        rsi,
		LastVolume: series.LastVolume(),
	}, nil
}
