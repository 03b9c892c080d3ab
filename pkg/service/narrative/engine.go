package narrative

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/translation"
)

//go:embed prompt/*.md
var promptFS embed.FS

var prompts = template.Must(template.New("").ParseFS(promptFS, "prompt/*.md"))

const (
	defaultTimeout    = 60 * time.Second
	maxRecordChars    = 1500
	maxExtractionText = 8000
)

// Engine produces clinical narratives with an LLM
type Engine struct {
	llmClient gollem.LLMClient
	timeout   time.Duration
}

// Option configures Engine
type Option func(*Engine)

// WithTimeout bounds every LLM call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// New creates an engine over llmClient
func New(llmClient gollem.LLMClient, opts ...Option) (*Engine, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	e := &Engine{
		llmClient: llmClient,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type languageData struct {
	Language string
	Script   string
}

func language(lang types.LanguageCode) languageData {
	l, ok := translation.LookupLanguage(lang.OrDefault())
	if !ok {
		l, _ = translation.LookupLanguage(types.DefaultLanguage)
	}
	return languageData{Language: l.Name, Script: l.Script}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute prompt template", goerr.V("template", name))
	}
	return buf.String(), nil
}

// ExtractFromText extracts structured clinical data from free text
func (e *Engine) ExtractFromText(ctx context.Context, text string, lang types.LanguageCode) (*model.ClinicalExtraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "text is empty")
	}
	if r := []rune(text); len(r) > maxExtractionText {
		text = string(r[:maxExtractionText])
	}

	lng := language(lang)
	prompt, err := render("extract.md", struct {
		languageData
		Text string
	}{lng, text})
	if err != nil {
		return nil, err
	}

	resp, err := e.generate(ctx, prompt, lng,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(extractionSchema()),
	)
	if err != nil {
		return nil, err
	}

	var out model.ClinicalExtraction
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", resp))
	}
	if out.VitalSigns == nil {
		out.VitalSigns = map[string]float64{}
	}
	return &out, nil
}

type patientLine struct {
	Name  string
	Value any
}

// GenerateExplanation explains a risk prediction in the requested language
func (e *Engine) GenerateExplanation(ctx context.Context, req model.ExplanationRequest) (string, error) {
	lng := language(req.Language)

	factors := make([]string, len(req.RiskFactors))
	for i, f := range req.RiskFactors {
		factors[i] = f.Feature
	}
	factorText := strings.Join(factors, ", ")
	if factorText == "" {
		factorText = "none identified"
	}

	keys := make([]string, 0, len(req.PatientData))
	for k, v := range req.PatientData {
		if v != nil {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	lines := make([]patientLine, len(keys))
	for i, k := range keys {
		lines[i] = patientLine{Name: k, Value: req.PatientData[k]}
	}

	prompt, err := render("explain.md", struct {
		languageData
		Patient     []patientLine
		RiskLevel   types.RiskLevel
		RiskPercent float64
		Department  string
		Factors     string
	}{lng, lines, req.RiskLevel, req.RiskScore * 100, req.Department, factorText})
	if err != nil {
		return "", err
	}
	return e.generate(ctx, prompt, lng)
}

// AnswerClinicalQuestion answers question from the retrieved context
func (e *Engine) AnswerClinicalQuestion(ctx context.Context, question, contextText string, lang types.LanguageCode) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", goerr.Wrap(model.ErrInvalidInput, "question is empty")
	}
	lng := language(lang)
	prompt, err := render("answer.md", struct {
		languageData
		Question string
		Context  string
	}{lng, question, contextText})
	if err != nil {
		return "", err
	}
	return e.generate(ctx, prompt, lng)
}

// SummarizePatientRecord summarizes a patient record. The serialized record is cut to
// a fixed length before it is sent.
func (e *Engine) SummarizePatientRecord(ctx context.Context, record map[string]any, lang types.LanguageCode) (string, error) {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", goerr.Wrap(model.ErrInvalidInput, "record is not serializable", goerr.V("cause", err.Error()))
	}
	text := string(raw)
	if r := []rune(text); len(r) > maxRecordChars {
		text = string(r[:maxRecordChars])
	}

	lng := language(lang)
	prompt, err := render("summary.md", struct {
		languageData
		Record string
	}{lng, text})
	if err != nil {
		return "", err
	}
	return e.generate(ctx, prompt, lng)
}

func (e *Engine) generate(ctx context.Context, prompt string, lng languageData, opts ...gollem.SessionOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	systemPrompt, err := render("system.md", lng)
	if err != nil {
		return "", err
	}

	opts = append(opts, gollem.WithSessionSystemPrompt(systemPrompt))
	session, err := e.llmClient.NewSession(ctx, opts...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.New("empty LLM response")
	}

	out := strings.TrimSpace(strings.Join(resp.Texts, ""))
	if out == "" {
		return "", goerr.New("empty LLM response")
	}
	return out, nil
}

func extractionSchema() *gollem.Parameter {
	stringList := func(desc string, required bool) *gollem.Parameter {
		return &gollem.Parameter{
			Type:        gollem.TypeArray,
			Description: desc,
			Items:       &gollem.Parameter{Type: gollem.TypeString},
			Required:    required,
		}
	}
	vital := func(desc string) *gollem.Parameter {
		return &gollem.Parameter{Type: gollem.TypeNumber, Description: desc}
	}

	return &gollem.Parameter{
		Title:       "ClinicalExtraction",
		Description: "Structured medical information extracted from clinical text",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"symptoms": stringList("Reported or observed symptoms", true),
			"vital_signs": {
				Type:        gollem.TypeObject,
				Description: "Numeric vital sign measurements",
				Required:    true,
				Properties: map[string]*gollem.Parameter{
					"heart_rate":       vital("Heart rate in beats per minute"),
					"systolic_bp":      vital("Systolic blood pressure in mmHg"),
					"diastolic_bp":     vital("Diastolic blood pressure in mmHg"),
					"temperature":      vital("Body temperature in Celsius"),
					"spo2":             vital("Oxygen saturation in percent"),
					"respiratory_rate": vital("Breaths per minute"),
					"glucose":          vital("Blood glucose in mg/dL"),
					"pain_level":       vital("Pain on a 0-10 scale"),
				},
			},
			"age":                 vital("Age in years"),
			"gender":              {Type: gollem.TypeString, Description: "male, female or other"},
			"medical_history":     stringList("Past and chronic conditions", true),
			"allergies":           stringList("Known allergies", true),
			"current_medications": stringList("Medications the patient currently takes", true),
			"risk_factors":        stringList("Clinical risk factors", true),
		},
	}
}
