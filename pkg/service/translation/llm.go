package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// LLMBackend translates with an LLM session per request
type LLMBackend struct {
	llmClient gollem.LLMClient
}

var _ Backend = &LLMBackend{}

// NewLLMBackend creates a backend over llmClient
func NewLLMBackend(llmClient gollem.LLMClient) (*LLMBackend, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &LLMBackend{llmClient: llmClient}, nil
}

func (b *LLMBackend) Name() string {
	return "llm"
}

type llmResponse struct {
	Translation string `json:"translation"`
}

func (b *LLMBackend) Translate(ctx context.Context, text string, src, tgt Language) (string, error) {
	session, err := b.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(responseSchema()),
		gollem.WithSessionSystemPrompt(buildSystemPrompt(src, tgt)),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(text))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate translation")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("empty LLM response")
	}

	var out llmResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &out); err != nil {
		return "", goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", resp.Texts[0]))
	}
	return strings.TrimSpace(out.Translation), nil
}

func buildSystemPrompt(src, tgt Language) string {
	var sb strings.Builder
	sb.WriteString("You are a medical translator working in an Indian hospital.\n\n")
	fmt.Fprintf(&sb, "Translate the user message from %s (%s) to %s (%s).\n", src.Name, src.Script, tgt.Name, tgt.Script)
	sb.WriteString("- Keep numbers, units, drug names and dosages unchanged.\n")
	sb.WriteString("- Use plain words a patient understands, in the native script of the target language.\n")
	sb.WriteString("- Do not add explanations. Return only the translation.\n")
	return sb.String()
}

func responseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "TranslationResponse",
		Description: "Translated text",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"translation": {
				Type:        gollem.TypeString,
				Description: "The translated text",
				Required:    true,
			},
		},
	}
}
