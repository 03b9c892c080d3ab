package gbdt

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// Config controls boosting
type Config struct {
	Rounds         int     `toml:"trees" json:"trees"`
	MaxDepth       int     `toml:"max_depth" json:"max_depth"`
	LearningRate   float64 `toml:"learning_rate" json:"learning_rate"`
	Lambda         float64 `toml:"lambda" json:"lambda"`
	MinChildWeight float64 `toml:"min_child_weight" json:"min_child_weight"`
	MinSplitGain   float64 `toml:"min_split_gain" json:"min_split_gain"`
}

// DefaultConfig returns the settings used for triage models
func DefaultConfig() Config {
	return Config{
		Rounds:         100,
		MaxDepth:       4,
		LearningRate:   0.1,
		Lambda:         1.0,
		MinChildWeight: 1.0,
	}
}

// Validate checks the ranges of every setting
func (c Config) Validate() error {
	switch {
	case c.Rounds <= 0:
		return goerr.Wrap(model.ErrConfiguration, "trees must be positive", goerr.V("trees", c.Rounds))
	case c.MaxDepth <= 0:
		return goerr.Wrap(model.ErrConfiguration, "max_depth must be positive", goerr.V("max_depth", c.MaxDepth))
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return goerr.Wrap(model.ErrConfiguration, "learning_rate must be in (0, 1]", goerr.V("learning_rate", c.LearningRate))
	case c.Lambda < 0:
		return goerr.Wrap(model.ErrConfiguration, "lambda must not be negative", goerr.V("lambda", c.Lambda))
	case c.MinChildWeight < 0:
		return goerr.Wrap(model.ErrConfiguration, "min_child_weight must not be negative", goerr.V("min_child_weight", c.MinChildWeight))
	case c.MinSplitGain < 0:
		return goerr.Wrap(model.ErrConfiguration, "min_split_gain must not be negative", goerr.V("min_split_gain", c.MinSplitGain))
	}
	return nil
}
