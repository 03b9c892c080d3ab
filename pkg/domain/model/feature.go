package model

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

// FeatureVector is the fixed-length numeric encoding of a PatientRecord.
// Names and Values have the same length and order as fixed at fit time.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features
func (f *FeatureVector) Len() int {
	return len(f.Values)
}

// Validate checks that the vector has the expected length and contains no NaN or Inf
func (f *FeatureVector) Validate(expected int) error {
	if len(f.Values) != expected {
		return goerr.Wrap(ErrConfiguration, "feature vector length mismatch",
			goerr.V(ExpectedKey, expected), goerr.V(ActualKey, len(f.Values)))
	}
	for i, v := range f.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return goerr.Wrap(ErrInvalidInput, "feature vector contains non-finite value", goerr.V("index", i))
		}
	}
	return nil
}
