package usecase

import (
	"context"
	"time"

	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
)

// ModelProvider hands out the trained model bundle. triage.Loader implements it.
type ModelProvider interface {
	Get(ctx context.Context) (*triage.Bundle, error)
}

// Retriever indexes clinical documents and searches them. rag.Pipeline implements it.
type Retriever interface {
	AddDocument(ctx context.Context, text, patientID, source string) (int, error)
	AddLabResults(ctx context.Context, lab map[string]any, patientID string) (model.DocumentID, error)
	AddMedications(ctx context.Context, meds []model.Medication, patientID string) (model.DocumentID, error)
	Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error)
	PatientDocuments(patientID string) []*model.Document
}

// Narrator generates clinical text with an LLM. narrative.Engine implements it.
type Narrator interface {
	ExtractFromText(ctx context.Context, text string, lang types.LanguageCode) (*model.ClinicalExtraction, error)
	GenerateExplanation(ctx context.Context, req model.ExplanationRequest) (string, error)
	AnswerClinicalQuestion(ctx context.Context, question, contextText string, lang types.LanguageCode) (string, error)
	SummarizePatientRecord(ctx context.Context, record map[string]any, lang types.LanguageCode) (string, error)
}

// Translator translates text between supported languages. translation.Service implements it.
type Translator interface {
	Translate(ctx context.Context, text string, src, tgt types.LanguageCode) (string, error)
	DetectLanguage(text string) types.LanguageCode
}

// Default orchestration settings
const (
	DefaultStageTimeout = 60 * time.Second
	DefaultContextTopK  = 2
)

type UseCases struct {
	models          ModelProvider
	retriever       Retriever
	narrator        Narrator
	translator      Translator
	workingLanguage types.LanguageCode
	stageTimeout    time.Duration
	topFeatures     int

	Triage   *TriageUseCase
	Pipeline *PipelineUseCase
}

type Option func(*UseCases)

func WithRetriever(r Retriever) Option {
	return func(uc *UseCases) {
		uc.retriever = r
	}
}

func WithNarrator(n Narrator) Option {
	return func(uc *UseCases) {
		uc.narrator = n
	}
}

func WithTranslator(t Translator) Option {
	return func(uc *UseCases) {
		uc.translator = t
	}
}

// WithWorkingLanguage sets the language models and prompts operate in
func WithWorkingLanguage(lang types.LanguageCode) Option {
	return func(uc *UseCases) {
		uc.workingLanguage = lang
	}
}

// WithStageTimeout bounds every network-backed pipeline stage
func WithStageTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.stageTimeout = d
	}
}

// WithTopFeatures sets how many feature attributions a prediction carries
func WithTopFeatures(n int) Option {
	return func(uc *UseCases) {
		uc.topFeatures = n
	}
}

// New wires the use cases. Retriever, narrator and translator are optional: stages that
// need a missing one are reported as degraded.
func New(models ModelProvider, opts ...Option) *UseCases {
	uc := &UseCases{
		models:          models,
		workingLanguage: types.DefaultLanguage,
		stageTimeout:    DefaultStageTimeout,
		topFeatures:     5,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Triage = NewTriageUseCase(uc)
	uc.Pipeline = NewPipelineUseCase(uc)

	return uc
}
