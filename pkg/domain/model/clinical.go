package model

import "github.com/vaidya-health/vaidya/pkg/domain/types"

// ClinicalExtraction is the structured content extracted from free clinical text
type ClinicalExtraction struct {
	Symptoms           []string           `json:"symptoms"`
	VitalSigns         map[string]float64 `json:"vital_signs"`
	Age                *float64           `json:"age,omitempty"`
	Gender             string             `json:"gender,omitempty"`
	MedicalHistory     []string           `json:"medical_history"`
	Allergies          []string           `json:"allergies"`
	CurrentMedications []string           `json:"current_medications"`
	RiskFactors        []string           `json:"risk_factors"`
}

// ExplanationRequest carries what the narrative engine needs to explain a prediction
type ExplanationRequest struct {
	RiskLevel   types.RiskLevel
	RiskScore   float64
	Department  string
	RiskFactors []Attribution
	PatientData PatientRecord
	Language    types.LanguageCode
}

// Medication is one entry of a medication list
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Route     string `json:"route,omitempty"`
}
