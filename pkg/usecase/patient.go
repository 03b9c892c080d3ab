package usecase

import (
	"strings"

	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// Values assumed for vitals that neither the request nor the extraction supplied
var vitalDefaults = map[string]float64{
	"age":              50,
	"heart_rate":       70,
	"systolic_bp":      120,
	"diastolic_bp":     80,
	"temperature":      37,
	"spo2":             98,
	"respiratory_rate": 16,
	"glucose":          100,
}

// keywordRule sets field when an entry contains one of the keyword stems
type keywordRule struct {
	field    string
	keywords []string
}

var symptomKeywords = []keywordRule{
	{"symptom_chest_pain", []string{"chest pain", "chest tightness", "angina"}},
	{"symptom_fever", []string{"fever", "pyrexia", "febrile"}},
	{"symptom_cough", []string{"cough"}},
	{"symptom_breathing_difficulty", []string{"breath", "dyspnea", "dyspnoea", "wheez"}},
	{"symptom_headache", []string{"headache", "migraine"}},
	{"symptom_dizziness", []string{"dizz", "vertigo", "lightheaded"}},
	{"symptom_vomiting", []string{"vomit", "emesis"}},
}

var historyKeywords = []keywordRule{
	{"diabetes", []string{"diabet"}},
	{"hypertension", []string{"hypertension", "high blood pressure"}},
	{"heart_disease", []string{"heart", "cardiac", "coronary", "myocardial"}},
	{"asthma", []string{"asthma"}},
	{"pregnant", []string{"pregnan"}},
	{"smoker", []string{"smok", "tobacco"}},
}

// PreparePatientData builds a complete record from base, which lists every field the model
// expects, overlaid with supplied values. Missing vitals get clinical defaults, free-text
// symptoms and history entries set the matching flags.
func PreparePatientData(base, supplied model.PatientRecord, symptoms, history []string) model.PatientRecord {
	rec := base.Clone()
	if rec == nil {
		rec = model.PatientRecord{}
	}
	for field, v := range vitalDefaults {
		rec[field] = v
	}
	for field, v := range supplied.Normalize() {
		if v != nil {
			rec[field] = v
		}
	}

	setFlags(rec, symptoms, symptomKeywords)
	setFlags(rec, history, historyKeywords)

	rec["comorbidity_count"] = float64(len(history))
	return rec
}

// FromExtraction prepares a record from a clinical extraction
func FromExtraction(base model.PatientRecord, ext *model.ClinicalExtraction) model.PatientRecord {
	supplied := model.PatientRecord{}
	for k, v := range ext.VitalSigns {
		supplied[k] = v
	}
	if ext.Age != nil {
		supplied["age"] = *ext.Age
	}
	if ext.Gender != "" {
		supplied["gender"] = ext.Gender
	}
	history := append(append([]string{}, ext.MedicalHistory...), ext.RiskFactors...)
	rec := PreparePatientData(base, supplied, ext.Symptoms, history)
	rec["comorbidity_count"] = float64(len(ext.MedicalHistory))
	rec["medication_count"] = float64(len(ext.CurrentMedications))
	return rec
}

func setFlags(rec model.PatientRecord, entries []string, table []keywordRule) {
	for _, entry := range entries {
		text := strings.ToLower(entry)
		for _, row := range table {
			for _, kw := range row.keywords {
				if strings.Contains(text, kw) {
					rec[row.field] = true
					break
				}
			}
		}
	}
}

// presentSymptoms lists the symptom flags set in rec, without the symptom_ prefix, in field order
func presentSymptoms(rec model.PatientRecord) []string {
	rec = rec.Normalize()
	var out []string
	for _, row := range symptomKeywords {
		if truthy(rec[row.field]) {
			out = append(out, strings.TrimPrefix(row.field, "symptom_"))
		}
	}
	return out
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "y":
			return true
		}
	}
	return false
}
