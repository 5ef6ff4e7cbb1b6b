// Package ensemble confirms trade signals through up to three tiers:
// a technical filter, an averaged classifier ensemble, and a degradation
// chain that falls back a tier instead of failing the caller.
package ensemble

import "errors"

// ErrModelUnavailable marks a classifier that is configured but cannot
// serve predictions right now. The ensemble treats it as a neutral vote.
var ErrModelUnavailable = errors.New("model unavailable")

// Model is a direction classifier. PredictProbabilities takes the feature
// vector [ATR, EMA50-EMA200, RSI14, lastVolume] and returns [pDown, pUp].
type Model interface {
	Name() string
	PredictProbabilities(features []float64) ([]float64, error)
}

// FeatureVector is the fixed input layout shared by all ensemble models
type FeatureVector struct {
	ATR        float64
	EMASpread  float64 // EMA50 - EMA200
	RSI        float64
	LastVolume float64
}

// Slice returns the features in model input order
func (f FeatureVector) Slice() []float64 {
	return []float64{f.ATR, f.EMASpread, f.RSI, f.LastVolume}
}
