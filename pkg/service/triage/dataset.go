package triage

import (
	"math/rand/v2"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
)

// Departments predicted by the department classifier
const (
	DepartmentCardiology      = "Cardiology"
	DepartmentPulmonology     = "Pulmonology"
	DepartmentGeneralMedicine = "General Medicine"
	DepartmentEmergency       = "Emergency"
)

// Dataset is a labelled training set. Risk and Department hold one label per row.
type Dataset struct {
	Rows       []model.PatientRecord
	Risk       []string
	Department []string
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Validate checks the label columns and normalizes risk labels to their canonical spelling
func (d *Dataset) Validate() error {
	if len(d.Rows) == 0 {
		return goerr.Wrap(model.ErrInvalidInput, "dataset is empty")
	}
	if len(d.Risk) != len(d.Rows) || len(d.Department) != len(d.Rows) {
		return goerr.Wrap(model.ErrInvalidInput, "label count does not match row count",
			goerr.V("rows", len(d.Rows)), goerr.V("risk", len(d.Risk)), goerr.V("department", len(d.Department)))
	}
	for i, label := range d.Risk {
		level, err := types.ParseRiskLevel(label)
		if err != nil {
			return goerr.Wrap(model.ErrInvalidInput, "risk label is not a risk level", goerr.V("row", i), goerr.V("label", label))
		}
		d.Risk[i] = level.String()
	}
	for i, label := range d.Department {
		if label == "" {
			return goerr.Wrap(model.ErrInvalidInput, "department label is empty", goerr.V("row", i))
		}
	}
	return nil
}

type sampler struct {
	rng *rand.Rand
}

// intn returns an integer in [lo, hi)
func (s sampler) intn(lo, hi int) int {
	return lo + s.rng.IntN(hi-lo)
}

func (s sampler) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// flag returns 1 with probability p
func (s sampler) flag(p float64) int {
	if s.rng.Float64() < p {
		return 1
	}
	return 0
}

func (s sampler) choice(values ...string) string {
	return values[s.rng.IntN(len(values))]
}

// GenerateSynthetic draws n synthetic triage visits. The same seed yields the same dataset.
// Respiratory rate and glucose are not simulated and stay missing.
func GenerateSynthetic(n int, seed uint64) *Dataset {
	s := sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	ds := &Dataset{
		Rows:       make([]model.PatientRecord, n),
		Risk:       make([]string, n),
		Department: make([]string, n),
	}

	for i := range n {
		row := model.PatientRecord{
			"age":              float64(s.intn(18, 90)),
			"gender":           s.choice("Male", "Female"),
			"systolic_bp":      float64(s.intn(90, 180)),
			"diastolic_bp":     float64(s.intn(60, 120)),
			"heart_rate":       float64(s.intn(50, 130)),
			"temperature":      s.uniform(36.0, 40.0),
			"spo2":             float64(s.intn(85, 100)),
			"respiratory_rate": nil,
			"glucose":          nil,

			"symptom_chest_pain":           s.flag(0.2),
			"symptom_fever":                s.flag(0.3),
			"symptom_cough":                s.flag(0.4),
			"symptom_breathing_difficulty": s.flag(0.2),
			"symptom_headache":             s.flag(0.3),
			"symptom_dizziness":            s.flag(0.2),
			"symptom_vomiting":             s.flag(0.1),
			"pain_level":                   float64(s.intn(1, 10)),

			"diabetes":      s.flag(0.15),
			"hypertension":  s.flag(0.25),
			"heart_disease": s.flag(0.1),
			"asthma":        s.flag(0.1),
			"pregnant":      s.flag(0.05),
			"smoker":        s.flag(0.2),

			"visit_type":              s.choice("Routine", "Emergency", "Follow-up"),
			"insurance_provider":      s.choice("Provider A", "Provider B", "None"),
			"recent_diagnosis":        s.choice("None", "Flu", "Infection"),
			"chronic_disease_history": s.choice("None", "Diabetes", "Hypertension"),
			"family_medical_history":  s.choice("None", "Heart Disease", "Cancer"),
		}
		ds.Rows[i] = row
		ds.Risk[i] = LabelRisk(row).String()
		ds.Department[i] = LabelDepartment(row, types.RiskLevel(ds.Risk[i]))
	}
	return ds
}

// LabelRisk applies the triage rules used to label synthetic data
func LabelRisk(row model.PatientRecord) types.RiskLevel {
	switch {
	case flagOf(row, "symptom_chest_pain") || flagOf(row, "symptom_breathing_difficulty") ||
		numberOf(row, "spo2", 100) < 90 || numberOf(row, "heart_rate", 0) > 110:
		return types.RiskLevelHigh
	case flagOf(row, "symptom_fever") || numberOf(row, "temperature", 37) > 38.5 ||
		numberOf(row, "systolic_bp", 0) > 150:
		return types.RiskLevelMedium
	default:
		return types.RiskLevelLow
	}
}

// LabelDepartment applies the department routing rules used to label synthetic data
func LabelDepartment(row model.PatientRecord, risk types.RiskLevel) string {
	switch {
	case flagOf(row, "symptom_chest_pain") || flagOf(row, "heart_disease"):
		return DepartmentCardiology
	case flagOf(row, "symptom_breathing_difficulty") || flagOf(row, "asthma"):
		return DepartmentPulmonology
	case flagOf(row, "symptom_fever") && flagOf(row, "symptom_cough"):
		return DepartmentGeneralMedicine
	case risk == types.RiskLevelHigh:
		return DepartmentEmergency
	default:
		return DepartmentGeneralMedicine
	}
}

func flagOf(row model.PatientRecord, field string) bool {
	switch v := row[field].(type) {
	case bool:
		return v
	case int:
		return v == 1
	case float64:
		return v == 1
	}
	return false
}

func numberOf(row model.PatientRecord, field string, fallback float64) float64 {
	switch v := row[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
