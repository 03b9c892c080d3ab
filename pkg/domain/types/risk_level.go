package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// RiskLevel is the triage risk class predicted for a patient
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelMedium   RiskLevel = "Medium"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

// AllRiskLevels returns every risk level in ascending severity
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{
		RiskLevelLow,
		RiskLevelMedium,
		RiskLevelHigh,
		RiskLevelCritical,
	}
}

// IsValid checks if the risk level is one of the known levels
func (r RiskLevel) IsValid() bool {
	return r.Ordinal() >= 0
}

// Ordinal returns the severity rank (0 for Low) or -1 for unknown levels
func (r RiskLevel) Ordinal() int {
	switch r {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return -1
	}
}

// String returns the string representation of the risk level
func (r RiskLevel) String() string {
	return string(r)
}

// ParseRiskLevel parses a risk level case-insensitively
func ParseRiskLevel(s string) (RiskLevel, error) {
	for _, level := range AllRiskLevels() {
		if strings.EqualFold(string(level), strings.TrimSpace(s)) {
			return level, nil
		}
	}
	return "", goerr.New("invalid risk level", goerr.V("level", s))
}
