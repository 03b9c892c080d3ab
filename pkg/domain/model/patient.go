package model

import "maps"

// PatientRecord holds the raw attributes of one patient visit: numeric vitals,
// categorical strings and boolean flags (bool or 0/1). A nil value means "not measured".
type PatientRecord map[string]any

var fieldAliases = map[string]string{
	"blood_pressure_systolic":  "systolic_bp",
	"blood_pressure_diastolic": "diastolic_bp",
	"bp_systolic":              "systolic_bp",
	"bp_diastolic":             "diastolic_bp",
	"pulse":                    "heart_rate",
	"oxygen_saturation":        "spo2",
	"temp":                     "temperature",
	"resp_rate":                "respiratory_rate",
	"chest_pain":               "symptom_chest_pain",
	"fever":                    "symptom_fever",
	"cough":                    "symptom_cough",
	"breathing_difficulty":     "symptom_breathing_difficulty",
	"shortness_of_breath":      "symptom_breathing_difficulty",
	"headache":                 "symptom_headache",
	"dizziness":                "symptom_dizziness",
	"vomiting":                 "symptom_vomiting",
}

// CanonicalField maps a known alias to its canonical field name
func CanonicalField(name string) string {
	if canonical, ok := fieldAliases[name]; ok {
		return canonical
	}
	return name
}

// Normalize returns a copy with aliased keys renamed. A canonical key present in the
// record wins over its alias.
func (r PatientRecord) Normalize() PatientRecord {
	out := make(PatientRecord, len(r))
	for k, v := range r {
		if CanonicalField(k) == k {
			out[k] = v
		}
	}
	for k, v := range r {
		canonical := CanonicalField(k)
		if canonical == k {
			continue
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
	}
	return out
}

// Clone returns a shallow copy of the record
func (r PatientRecord) Clone() PatientRecord {
	return maps.Clone(r)
}
