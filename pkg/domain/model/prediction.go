package model

import (
	"math"

	"github.com/vaidya-health/vaidya/pkg/domain/types"
)

// Fixed risk score thresholds. A score below RiskThresholdLow is Low, below
// RiskThresholdMedium is Medium, below RiskThresholdHigh is High, otherwise Critical.
const (
	RiskThresholdLow    = 0.25
	RiskThresholdMedium = 0.50
	RiskThresholdHigh   = 0.75
)

// ClassifyRisk maps a risk score in [0,1] to its risk level
func ClassifyRisk(score float64) types.RiskLevel {
	switch {
	case score < RiskThresholdLow:
		return types.RiskLevelLow
	case score < RiskThresholdMedium:
		return types.RiskLevelMedium
	case score < RiskThresholdHigh:
		return types.RiskLevelHigh
	default:
		return types.RiskLevelCritical
	}
}

// RiskBand returns the [lo, hi) score interval that ClassifyRisk maps to level
func RiskBand(level types.RiskLevel) (lo, hi float64) {
	switch level {
	case types.RiskLevelLow:
		return 0, RiskThresholdLow
	case types.RiskLevelMedium:
		return RiskThresholdLow, RiskThresholdMedium
	case types.RiskLevelHigh:
		return RiskThresholdMedium, RiskThresholdHigh
	default:
		return RiskThresholdHigh, 1
	}
}

// RiskScore places confidence inside the band of level, so that
// ClassifyRisk(RiskScore(level, c)) == level for every c in [0,1].
func RiskScore(level types.RiskLevel, confidence float64) float64 {
	confidence = math.Max(0, math.Min(1, confidence))
	lo, hi := RiskBand(level)
	score := lo + (hi-lo)*confidence
	if level != types.RiskLevelCritical && score >= hi {
		score = math.Nextafter(hi, lo)
	}
	return score
}

// Attribution is the contribution magnitude of one feature to a prediction
type Attribution struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// PredictionResult is the output of the risk and department classifiers
type PredictionResult struct {
	RiskLevel            types.RiskLevel             `json:"risk_level"`
	RiskScore            float64                     `json:"risk_score"`
	Confidence           float64                     `json:"confidence"`
	RiskProbabilities    map[types.RiskLevel]float64 `json:"risk_probabilities"`
	Department           string                      `json:"department,omitempty"`
	DepartmentConfidence float64                     `json:"department_confidence,omitempty"`
	TopFeatures          []Attribution               `json:"top_features"`
}
