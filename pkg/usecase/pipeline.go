package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/explain"
	"github.com/vaidya-health/vaidya/pkg/service/rag"
	"github.com/vaidya-health/vaidya/pkg/service/translation"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
)

// DocumentRequest asks to index a clinical document and assess the patient it describes
type DocumentRequest struct {
	Document  string             `json:"document"`
	DocType   types.DocType      `json:"type"`
	PatientID string             `json:"patient_id"`
	Language  types.LanguageCode `json:"language"`

	// LabResults and Medications are indexed as their own documents when present
	LabResults  map[string]any     `json:"lab_results,omitempty"`
	Medications []model.Medication `json:"medications,omitempty"`
}

// DocumentResult is the outcome of ProcessDocument
type DocumentResult struct {
	Response
	DocumentType    types.DocType             `json:"document_type"`
	PatientID       string                    `json:"patient_id,omitempty"`
	ChunksProcessed int                       `json:"chunks_processed"`
	RecordsIndexed  int                       `json:"records_indexed"`
	ExtractedData   *model.ClinicalExtraction `json:"extracted_data,omitempty"`
	RiskPrediction  *model.PredictionResult   `json:"risk_prediction,omitempty"`
	Explanation     string                    `json:"explanation,omitempty"`
}

// QueryRequest is a free-text clinical question
type QueryRequest struct {
	Query    string             `json:"query"`
	Language types.LanguageCode `json:"language"`
	TopK     int                `json:"top_k"`
}

// QueryResult is the outcome of ProcessUserInput
type QueryResult struct {
	Response
	Query          string                  `json:"query"`
	Answer         string                  `json:"answer,omitempty"`
	ContextSources int                     `json:"context_sources"`
	Context        []model.RetrievalResult `json:"context"`
}

// VitalsRequest asks for a risk assessment from measured vitals
type VitalsRequest struct {
	Vitals         model.PatientRecord `json:"vital_signs"`
	Symptoms       []string            `json:"symptoms"`
	MedicalHistory []string            `json:"medical_history"`
	Language       types.LanguageCode  `json:"language"`
}

// VitalsResult is the outcome of PredictFromVitals
type VitalsResult struct {
	Response
	RiskPrediction *model.PredictionResult `json:"risk_prediction,omitempty"`
	Explanation    string                  `json:"explanation,omitempty"`
}

// SummaryResult is the outcome of PatientSummary
type SummaryResult struct {
	Response
	PatientID     string `json:"patient_id"`
	DocumentCount int    `json:"document_count"`
	Summary       string `json:"summary,omitempty"`
}

// ExplainRequest asks for a narrative explanation of an existing prediction
type ExplainRequest struct {
	RiskScore   float64             `json:"risk_score"`
	RiskLevel   types.RiskLevel     `json:"risk_level"`
	RiskFactors []string            `json:"risk_factors"`
	PatientData model.PatientRecord `json:"patient_data"`
	Language    types.LanguageCode  `json:"language"`
}

// ExplainResult is the outcome of Explain
type ExplainResult struct {
	Response
	Explanation string `json:"explanation,omitempty"`
}

// RetrieveResult is the outcome of Retrieve
type RetrieveResult struct {
	Query   string                  `json:"query"`
	Results []model.RetrievalResult `json:"results"`
	Context string                  `json:"context"`
}

// TranslateResult is the outcome of Translate. Degraded is set when Text is the
// untranslated input.
type TranslateResult struct {
	Text     string             `json:"text"`
	Source   types.LanguageCode `json:"source"`
	Target   types.LanguageCode `json:"target"`
	Degraded bool               `json:"degraded"`
}

// PipelineUseCase orchestrates translation, retrieval, prediction and narrative stages.
// Every stage failure is recorded in the response; stages that do not depend on a failed
// stage still run. Only malformed requests are returned as errors.
type PipelineUseCase struct {
	uc *UseCases
}

func NewPipelineUseCase(uc *UseCases) *PipelineUseCase {
	return &PipelineUseCase{uc: uc}
}

// ProcessDocument translates a document to the working language, indexes it, extracts
// clinical facts, predicts risk and explains the prediction in the document language
func (x *PipelineUseCase) ProcessDocument(ctx context.Context, req DocumentRequest) (*DocumentResult, error) {
	if strings.TrimSpace(req.Document) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document is required")
	}
	docType := req.DocType
	if docType == "" {
		docType = types.DocTypeEHR
	}
	if !docType.IsValid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "invalid document type", goerr.V("doc_type", req.DocType))
	}

	ctx, r := newRun(ctx, x.uc.stageTimeout)
	lang, err := x.resolveLanguage(req.Language, req.Document)
	if err != nil {
		return nil, err
	}
	out := &DocumentResult{DocumentType: docType, PatientID: req.PatientID}
	defer func() {
		out.Response = *r.resp
	}()
	r.resp.Language = lang

	text := x.toWorking(ctx, r, req.Document, lang)
	textLang := x.uc.workingLanguage
	if r.resp.Failed(StageTranslateInput) != nil {
		textLang = lang
	}

	if x.uc.retriever == nil {
		r.fail(ctx, StageIndex, unavailable("retriever"))
	} else {
		r.stage(ctx, StageIndex, func(ctx context.Context) error {
			n, err := x.uc.retriever.AddDocument(ctx, text, req.PatientID, docType.String())
			out.ChunksProcessed = n
			if err != nil {
				return err
			}
			if len(req.LabResults) > 0 {
				if _, err := x.uc.retriever.AddLabResults(ctx, req.LabResults, req.PatientID); err != nil {
					return err
				}
				out.RecordsIndexed++
			}
			if len(req.Medications) > 0 {
				if _, err := x.uc.retriever.AddMedications(ctx, req.Medications, req.PatientID); err != nil {
					return err
				}
				out.RecordsIndexed++
			}
			return nil
		})
	}

	if x.uc.narrator == nil {
		r.fail(ctx, StageExtract, unavailable("narrator"))
		r.finish(ctx, false)
		return out, nil
	}
	extracted := r.stage(ctx, StageExtract, func(ctx context.Context) error {
		ext, err := x.uc.narrator.ExtractFromText(ctx, text, textLang)
		out.ExtractedData = ext
		return err
	})
	if !extracted || out.ExtractedData == nil {
		r.finish(ctx, false)
		return out, nil
	}

	ext := out.ExtractedData
	out.RiskPrediction, out.Explanation = x.predictAndExplain(ctx, r, lang, func(base model.PatientRecord) model.PatientRecord {
		return FromExtraction(base, ext)
	})

	r.finish(ctx, out.RiskPrediction != nil)
	return out, nil
}

// PredictFromVitals predicts risk from measured vitals and explains the prediction
func (x *PipelineUseCase) PredictFromVitals(ctx context.Context, req VitalsRequest) (*VitalsResult, error) {
	if len(req.Vitals) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "vital signs are required")
	}
	lang := req.Language.OrDefault()
	if !lang.IsSupported() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported language", goerr.V(model.LanguageKey, req.Language))
	}

	ctx, r := newRun(ctx, x.uc.stageTimeout)
	r.resp.Language = lang
	out := &VitalsResult{}

	out.RiskPrediction, out.Explanation = x.predictAndExplain(ctx, r, lang, func(base model.PatientRecord) model.PatientRecord {
		return PreparePatientData(base, req.Vitals, req.Symptoms, req.MedicalHistory)
	})

	r.finish(ctx, out.RiskPrediction != nil)
	out.Response = *r.resp
	return out, nil
}

// ProcessUserInput answers a clinical question from retrieved context, in the question's language
func (x *PipelineUseCase) ProcessUserInput(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	ctx, r := newRun(ctx, x.uc.stageTimeout)
	lang, err := x.resolveLanguage(req.Language, req.Query)
	if err != nil {
		return nil, err
	}
	r.resp.Language = lang
	out := &QueryResult{Query: req.Query, Context: []model.RetrievalResult{}}

	question := x.toWorking(ctx, r, req.Query, lang)

	if x.uc.retriever == nil {
		r.fail(ctx, StageRetrieve, unavailable("retriever"))
	} else {
		r.stage(ctx, StageRetrieve, func(ctx context.Context) error {
			results, err := x.uc.retriever.Retrieve(ctx, question, topK)
			if results != nil {
				out.Context = results
			}
			return err
		})
	}
	out.ContextSources = len(out.Context)

	if x.uc.narrator == nil {
		r.fail(ctx, StageAnswer, unavailable("narrator"))
	} else {
		r.stage(ctx, StageAnswer, func(ctx context.Context) error {
			answer, err := x.uc.narrator.AnswerClinicalQuestion(ctx, question, rag.FormatContext(out.Context), x.uc.workingLanguage)
			out.Answer = answer
			return err
		})
	}
	if out.Answer != "" {
		out.Answer = x.fromWorking(ctx, r, out.Answer, lang)
	}

	r.finish(ctx, out.Answer != "" || len(out.Context) > 0)
	out.Response = *r.resp
	return out, nil
}

// PatientSummary summarizes every indexed document of a patient
func (x *PipelineUseCase) PatientSummary(ctx context.Context, patientID string, lang types.LanguageCode) (*SummaryResult, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "patient ID is required")
	}
	lang = lang.OrDefault()
	if !lang.IsSupported() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported language", goerr.V(model.LanguageKey, lang))
	}

	ctx, r := newRun(ctx, x.uc.stageTimeout)
	r.resp.Language = lang
	out := &SummaryResult{PatientID: patientID}

	if x.uc.retriever == nil {
		r.fail(ctx, StageRetrieve, unavailable("retriever"))
		r.finish(ctx, false)
		out.Response = *r.resp
		return out, nil
	}

	docs := x.uc.retriever.PatientDocuments(patientID)
	out.DocumentCount = len(docs)
	if len(docs) == 0 {
		r.resp.Status = StatusNoData
		r.resp.Message = "No documents found for patient"
		out.Response = *r.resp
		return out, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	if x.uc.narrator == nil {
		r.fail(ctx, StageSummary, unavailable("narrator"))
	} else {
		r.stage(ctx, StageSummary, func(ctx context.Context) error {
			summary, err := x.uc.narrator.SummarizePatientRecord(ctx, map[string]any{"documents": strings.Join(texts, "\n")}, x.uc.workingLanguage)
			out.Summary = summary
			return err
		})
	}
	if out.Summary != "" {
		out.Summary = x.fromWorking(ctx, r, out.Summary, lang)
	}

	r.finish(ctx, out.Summary != "")
	out.Response = *r.resp
	return out, nil
}

// Explain narrates an existing prediction in the requested language
func (x *PipelineUseCase) Explain(ctx context.Context, req ExplainRequest) (*ExplainResult, error) {
	if req.RiskScore < 0 || req.RiskScore > 1 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "risk score must be in [0, 1]", goerr.V("risk_score", req.RiskScore))
	}
	level := req.RiskLevel
	if level == "" {
		level = model.ClassifyRisk(req.RiskScore)
	}
	if !level.IsValid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "invalid risk level", goerr.V("risk_level", req.RiskLevel))
	}
	lang := req.Language.OrDefault()
	if !lang.IsSupported() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported language", goerr.V(model.LanguageKey, req.Language))
	}

	ctx, r := newRun(ctx, x.uc.stageTimeout)
	r.resp.Language = lang
	out := &ExplainResult{}

	factors := make([]model.Attribution, len(req.RiskFactors))
	for i, f := range req.RiskFactors {
		factors[i] = model.Attribution{Feature: f}
	}
	out.Explanation = x.narrate(ctx, r, lang, model.ExplanationRequest{
		RiskLevel:   level,
		RiskScore:   req.RiskScore,
		RiskFactors: factors,
		PatientData: req.PatientData,
	})

	r.finish(ctx, out.Explanation != "")
	out.Response = *r.resp
	return out, nil
}

// Retrieve searches the index and renders the results as LLM context
func (x *PipelineUseCase) Retrieve(ctx context.Context, query string, topK int) (*RetrieveResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is required")
	}
	if x.uc.retriever == nil {
		return nil, unavailable("retriever")
	}
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	results, err := x.uc.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return &RetrieveResult{Query: query, Results: results, Context: rag.FormatContext(results)}, nil
}

// Translate translates text. An empty source is detected from the text. A degraded
// translation returns the input text with Degraded set.
func (x *PipelineUseCase) Translate(ctx context.Context, text string, src, tgt types.LanguageCode) (*TranslateResult, error) {
	if text == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "text is required")
	}
	if src == "" {
		src = x.DetectLanguage(text)
	}
	tgt = tgt.OrDefault()
	out := &TranslateResult{Text: text, Source: src, Target: tgt}

	if x.uc.translator == nil {
		out.Degraded = src != tgt
		return out, nil
	}
	translated, err := x.uc.translator.Translate(ctx, text, src, tgt)
	out.Text = translated
	out.Degraded = err != nil
	return out, nil
}

// DetectLanguage returns the language of text
func (x *PipelineUseCase) DetectLanguage(text string) types.LanguageCode {
	if x.uc.translator != nil {
		return x.uc.translator.DetectLanguage(text)
	}
	return translation.DetectLanguage(text)
}

func (x *PipelineUseCase) resolveLanguage(lang types.LanguageCode, text string) (types.LanguageCode, error) {
	if lang == "" {
		return x.DetectLanguage(text), nil
	}
	if !lang.IsSupported() {
		return "", goerr.Wrap(model.ErrInvalidInput, "unsupported language", goerr.V(model.LanguageKey, lang))
	}
	return lang, nil
}

func (x *PipelineUseCase) toWorking(ctx context.Context, r *run, text string, lang types.LanguageCode) string {
	return x.translate(ctx, r, StageTranslateInput, text, lang, x.uc.workingLanguage)
}

func (x *PipelineUseCase) fromWorking(ctx context.Context, r *run, text string, lang types.LanguageCode) string {
	return x.translate(ctx, r, StageTranslateOutput, text, x.uc.workingLanguage, lang)
}

// translate never loses text: on failure the input is kept and the stage marked degraded
func (x *PipelineUseCase) translate(ctx context.Context, r *run, stage Stage, text string, src, tgt types.LanguageCode) string {
	if src == tgt || text == "" {
		return text
	}
	if x.uc.translator == nil {
		r.fail(ctx, stage, unavailable("translator"))
		return text
	}

	out := text
	r.stage(ctx, stage, func(ctx context.Context) error {
		translated, err := x.uc.translator.Translate(ctx, text, src, tgt)
		if translated != "" {
			out = translated
		}
		return err
	})
	return out
}

// predictAndExplain runs prediction, attribution and narrative. prepare receives a record
// holding every model field and returns the record to classify.
func (x *PipelineUseCase) predictAndExplain(ctx context.Context, r *run, lang types.LanguageCode, prepare func(base model.PatientRecord) model.PatientRecord) (*model.PredictionResult, string) {
	var bundle *triage.Bundle
	var pred *triage.Prediction
	var record model.PatientRecord
	ok := r.stage(ctx, StagePredict, func(ctx context.Context) error {
		b, err := x.uc.models.Get(ctx)
		if err != nil {
			return err
		}
		bundle = b
		record = prepare(b.Preprocessor.EmptyRecord())
		p, err := b.Predict(ctx, record, x.uc.topFeatures)
		if err != nil {
			return err
		}
		pred = p
		return nil
	})
	if !ok || pred == nil {
		return nil, ""
	}

	result := pred.Result
	if bundle.Explainer.Kind() == explain.KindUnavailable {
		r.fail(ctx, StageExplain, unavailable("explainer"))
	}

	explanation := x.narrate(ctx, r, lang, model.ExplanationRequest{
		RiskLevel:   result.RiskLevel,
		RiskScore:   result.RiskScore,
		Department:  result.Department,
		RiskFactors: result.TopFeatures,
		PatientData: record,
	})
	return &result, explanation
}

// narrate generates an explanation in the working language and translates it to lang
func (x *PipelineUseCase) narrate(ctx context.Context, r *run, lang types.LanguageCode, req model.ExplanationRequest) string {
	if x.uc.narrator == nil {
		r.fail(ctx, StageNarrative, unavailable("narrator"))
		return ""
	}

	req.Language = x.uc.workingLanguage
	var explanation string
	r.stage(ctx, StageNarrative, func(ctx context.Context) error {
		text, err := x.uc.narrator.GenerateExplanation(ctx, req)
		explanation = text
		return err
	})
	if explanation == "" {
		return ""
	}
	return x.fromWorking(ctx, r, explanation, lang)
}
