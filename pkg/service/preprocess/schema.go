package preprocess

import (
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// Schema lists the record fields consumed by the preprocessor, grouped by encoding
type Schema struct {
	Numerical   []string `toml:"numerical" json:"numerical"`
	Categorical []string `toml:"categorical" json:"categorical"`
	Boolean     []string `toml:"boolean" json:"boolean"`
}

// DefaultSchema returns the triage feature set
func DefaultSchema() Schema {
	return Schema{
		Numerical: []string{
			"age",
			"systolic_bp",
			"diastolic_bp",
			"heart_rate",
			"respiratory_rate",
			"temperature",
			"spo2",
			"glucose",
			"pain_level",
		},
		Categorical: []string{
			"gender",
			"visit_type",
			"insurance_provider",
			"recent_diagnosis",
			"chronic_disease_history",
			"family_medical_history",
		},
		Boolean: []string{
			"symptom_chest_pain",
			"symptom_fever",
			"symptom_cough",
			"symptom_breathing_difficulty",
			"symptom_headache",
			"symptom_dizziness",
			"symptom_vomiting",
			"diabetes",
			"hypertension",
			"heart_disease",
			"asthma",
			"pregnant",
			"smoker",
		},
	}
}

// Fields returns every field name in encoding order
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s.Numerical)+len(s.Categorical)+len(s.Boolean))
	out = append(out, s.Numerical...)
	out = append(out, s.Categorical...)
	out = append(out, s.Boolean...)
	return out
}

// Validate checks that the schema is non-empty and has no duplicate fields
func (s Schema) Validate() error {
	fields := s.Fields()
	if len(fields) == 0 {
		return goerr.Wrap(model.ErrConfiguration, "feature schema has no fields")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" {
			return goerr.Wrap(model.ErrConfiguration, "feature schema has an empty field name")
		}
		if seen[f] {
			return goerr.Wrap(model.ErrConfiguration, "duplicate field in feature schema", goerr.V(model.FieldKey, f))
		}
		seen[f] = true
	}
	return nil
}

// Equal reports whether both schemas list the same fields in the same order
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s.Numerical, other.Numerical) &&
		slices.Equal(s.Categorical, other.Categorical) &&
		slices.Equal(s.Boolean, other.Boolean)
}
