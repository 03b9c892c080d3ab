package usecase

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// TriageExplanation is the rule-based explanation attached to a triage prediction
type TriageExplanation struct {
	Reasoning           string              `json:"reasoning"`
	ContributingFactors []string            `json:"contributing_factors"`
	TopFeatures         []model.Attribution `json:"top_features"`
}

// TriageResult is the outcome of one triage prediction
type TriageResult struct {
	RiskLevel               types.RiskLevel             `json:"risk_level"`
	RiskScore               float64                     `json:"risk_score"`
	Confidence              float64                     `json:"confidence"`
	RiskProbabilities       map[types.RiskLevel]float64 `json:"risk_probabilities"`
	Department              string                      `json:"department"`
	Explanation             TriageExplanation           `json:"explanation"`
	RetrievedMedicalContext []model.RetrievalResult     `json:"retrieved_medical_context"`
	Errors                  []StageError                `json:"errors,omitempty"`
}

type TriageUseCase struct {
	uc *UseCases
}

func NewTriageUseCase(uc *UseCases) *TriageUseCase {
	return &TriageUseCase{uc: uc}
}

// Predict classifies a complete patient record, explains it and retrieves supporting
// medical context. Schema fields absent from record are imputed. Retrieval failures
// degrade the result; model failures are returned.
func (x *TriageUseCase) Predict(ctx context.Context, record model.PatientRecord) (*TriageResult, error) {
	if len(record) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "patient record is empty")
	}

	bundle, err := x.uc.models.Get(ctx)
	if err != nil {
		return nil, err
	}
	full := bundle.Preprocessor.EmptyRecord()
	maps.Copy(full, record.Normalize())
	pred, err := bundle.Predict(ctx, full, x.uc.topFeatures)
	if err != nil {
		return nil, err
	}
	res := pred.Result

	symptoms := presentSymptoms(record)
	out := &TriageResult{
		RiskLevel:         res.RiskLevel,
		RiskScore:         res.RiskScore,
		Confidence:        res.Confidence,
		RiskProbabilities: res.RiskProbabilities,
		Department:        res.Department,
		Explanation: TriageExplanation{
			Reasoning:           fmt.Sprintf("Risk predicted as %s with %.1f%% confidence.", res.RiskLevel, res.Confidence*100),
			ContributingFactors: nonNil(symptoms),
			TopFeatures:         res.TopFeatures,
		},
		RetrievedMedicalContext: []model.RetrievalResult{},
	}

	if x.uc.retriever == nil {
		out.Errors = append(out.Errors, StageError{Stage: StageRetrieve, Message: unavailable("retriever").Error(), Degraded: true})
		return out, nil
	}

	query := SymptomQuery(symptoms, res.RiskLevel, record.Normalize()["pain_level"])
	rctx, cancel := context.WithTimeout(ctx, x.uc.stageTimeout)
	defer cancel()
	results, err := x.uc.retriever.Retrieve(rctx, query, DefaultContextTopK)
	if err != nil {
		logging.From(ctx).Warn("medical context retrieval failed", "error", err)
		out.Errors = append(out.Errors, StageError{Stage: StageRetrieve, Message: err.Error(), Degraded: true})
		return out, nil
	}
	out.RetrievedMedicalContext = results
	return out, nil
}

// SymptomQuery builds the retrieval query describing a triaged patient
func SymptomQuery(symptoms []string, level types.RiskLevel, painLevel any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient presents with %s. Predicted risk: %s.", strings.Join(symptoms, ", "), level)
	if painLevel != nil {
		fmt.Fprintf(&b, " Pain level: %v.", painLevel)
	}
	return b.String()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
