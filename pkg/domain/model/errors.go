package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared by every component. Check with errors.Is.
var (
	// ErrConfiguration marks a broken deployment: missing or mismatched model artifacts,
	// transform before fit, vector length mismatch. Always surfaced to the caller.
	ErrConfiguration = goerr.New("configuration error")

	// ErrDegradedService marks a non-critical component that fell back to a degraded result.
	// The value returned alongside it is always usable.
	ErrDegradedService = goerr.New("degraded service")

	// ErrInvalidInput marks a malformed request.
	ErrInvalidInput = goerr.New("invalid input")

	// ErrNotFound marks a missing entity.
	ErrNotFound = goerr.New("not found")

	// ErrConflict marks an entity that already exists under the same key.
	ErrConflict = goerr.New("conflict")
)

// Context keys for error values
const (
	FieldKey     = "field"
	StageKey     = "stage"
	PatientIDKey = "patient_id"
	LanguageKey  = "language"
	ExpectedKey  = "expected"
	ActualKey    = "actual"
)
