package translation_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/repository/cache"
	"github.com/vaidya-health/vaidya/pkg/service/translation"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want types.LanguageCode
	}{
		{"Hello", types.LanguageEnglish},
		{"नमस्ते", types.LanguageHindi},
		{"வணக்கம்", types.LanguageTamil},
		{"నమస్కారం", types.LanguageTelugu},
		{"ನಮಸ್ಕಾರ", types.LanguageKannada},
		{"നമസ്കാരം", types.LanguageMalayalam},
		{"নমস্কার", types.LanguageBengali},
		{"ਸਤ ਸ੍ਰੀ ਅਕਾਲ", types.LanguagePunjabi},
		{"નમસ્તે", types.LanguageGujarati},
		{"ନମସ୍କାର", types.LanguageOdia},
		{"السلام علیکم", types.LanguageUrdu},
		{"12345 !!", types.LanguageEnglish},
		{"", types.LanguageEnglish},
		// majority script wins
		{"BP 140/90 रक्तचाप बहुत अधिक है", types.LanguageHindi},
		{"Patient has बुखार", types.LanguageEnglish},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			gt.Value(t, translation.DetectLanguage(tc.text)).Equal(tc.want)
		})
	}
}

func TestSupportedLanguages(t *testing.T) {
	langs := translation.SupportedLanguages()
	gt.Array(t, langs).Length(len(types.AllLanguageCodes()))
	for i, code := range types.AllLanguageCodes() {
		gt.Value(t, langs[i].Code).Equal(code)
		gt.Value(t, langs[i].Script).NotEqual("")
	}

	hi, ok := translation.LookupLanguage(types.LanguageHindi)
	gt.Bool(t, ok).True()
	gt.Value(t, hi.Script).Equal("hin_Deva")
}

type mockBackend struct {
	calls atomic.Int32
	fn    func(ctx context.Context, text string, src, tgt translation.Language) (string, error)
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Translate(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
	m.calls.Add(1)
	return m.fn(ctx, text, src, tgt)
}

func TestTranslateIdentity(t *testing.T) {
	backend := &mockBackend{fn: func(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
		return "should not be called", nil
	}}
	svc := translation.New(translation.WithBackend(backend))

	for _, code := range types.AllLanguageCodes() {
		got, err := svc.Translate(context.Background(), "rogi ko bukhar hai", code, code)
		gt.NoError(t, err)
		gt.Value(t, got).Equal("rogi ko bukhar hai")
	}
	gt.Value(t, backend.calls.Load()).Equal(int32(0))
}

func TestTranslateUnsupportedLanguage(t *testing.T) {
	svc := translation.New()
	got, err := svc.Translate(context.Background(), "Take rest", types.LanguageEnglish, types.LanguageCode("fr"))
	gt.Value(t, got).Equal("Take rest")
	gt.Error(t, err).Is(model.ErrDegradedService)

	got, err = svc.Translate(context.Background(), "Take rest", types.LanguageCode("xx"), types.LanguageHindi)
	gt.Value(t, got).Equal("Take rest")
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestTranslateWithoutBackendIsDegraded(t *testing.T) {
	svc := translation.New()
	got, err := svc.Translate(context.Background(), "Take rest", types.LanguageEnglish, types.LanguageTamil)
	gt.Value(t, got).Equal("Take rest")
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestTranslateUsesBackendAndCache(t *testing.T) {
	backend := &mockBackend{fn: func(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
		return "[" + tgt.Script + "] " + text, nil
	}}
	c, err := cache.NewLRU(10)
	gt.NoError(t, err).Required()
	svc := translation.New(translation.WithBackend(backend), translation.WithCache(c))

	for range 3 {
		got, err := svc.Translate(context.Background(), "fever", types.LanguageEnglish, types.LanguageHindi)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal("[hin_Deva] fever")
	}
	gt.Value(t, backend.calls.Load()).Equal(int32(1))
}

func TestTranslateBackendFailureReturnsOriginal(t *testing.T) {
	backend := &mockBackend{fn: func(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	svc := translation.New(translation.WithBackend(backend))
	got, err := svc.Translate(context.Background(), "The patient has fever", types.LanguageEnglish, types.LanguageHindi)
	gt.Value(t, got).Equal("The patient has fever")
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestTranslateTimeoutIsDegraded(t *testing.T) {
	backend := &mockBackend{fn: func(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	svc := translation.New(translation.WithBackend(backend), translation.WithTimeout(10*time.Millisecond))
	got, err := svc.Translate(context.Background(), "chest pain", types.LanguageEnglish, types.LanguageTamil)
	gt.Value(t, got).Equal("chest pain")
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestBatchTranslateKeepsOrder(t *testing.T) {
	backend := &mockBackend{fn: func(ctx context.Context, text string, src, tgt translation.Language) (string, error) {
		if text == "fail" {
			return "", errors.New("boom")
		}
		return text + "!", nil
	}}
	svc := translation.New(translation.WithBackend(backend))

	got, err := svc.BatchTranslate(context.Background(), []string{"a", "b", "c"}, types.LanguageEnglish, types.LanguageHindi)
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal([]string{"a!", "b!", "c!"})

	got, err = svc.BatchTranslate(context.Background(), []string{"a", "fail"}, types.LanguageEnglish, types.LanguageHindi)
	gt.Value(t, got).Equal([]string{"a!", "fail"})
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestCacheKeyDistinguishesLanguages(t *testing.T) {
	a := translation.CacheKey("fever", types.LanguageEnglish, types.LanguageHindi)
	b := translation.CacheKey("fever", types.LanguageEnglish, types.LanguageTamil)
	gt.Value(t, a).NotEqual(b)
	gt.Value(t, a).Equal(translation.CacheKey("fever", types.LanguageEnglish, types.LanguageHindi))
}

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return c.newSessionFn(ctx, options...)
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func TestLLMBackend(t *testing.T) {
	var received string
	client := &mockLLMClient{newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
		return &mockLLMSession{generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
			received = string(input[0].(gollem.Text))
			return &gollem.Response{Texts: []string{`{"translation": " रोगी को बुखार है "}`}}, nil
		}}, nil
	}}

	backend, err := translation.NewLLMBackend(client)
	gt.NoError(t, err).Required()
	svc := translation.New(translation.WithBackend(backend))

	got, err := svc.Translate(context.Background(), "The patient has fever", types.LanguageEnglish, types.LanguageHindi)
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal("रोगी को बुखार है")
	gt.Value(t, received).Equal("The patient has fever")
}

func TestResponseSchemaRequiresTranslation(t *testing.T) {
	schema := translation.ResponseSchema()
	gt.Value(t, schema.Type).Equal(gollem.TypeObject)
	gt.Value(t, schema.Properties["translation"]).NotNil()
	gt.Bool(t, schema.Properties["translation"].Required).True()
}

func TestLLMBackendInvalidResponseIsDegraded(t *testing.T) {
	client := &mockLLMClient{newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
		return &mockLLMSession{generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
			return &gollem.Response{Texts: []string{"not json"}}, nil
		}}, nil
	}}
	backend, err := translation.NewLLMBackend(client)
	gt.NoError(t, err).Required()
	svc := translation.New(translation.WithBackend(backend))

	got, err := svc.Translate(context.Background(), "fever", types.LanguageEnglish, types.LanguageHindi)
	gt.Value(t, got).Equal("fever")
	gt.Error(t, err).Is(model.ErrDegradedService)
}

func TestLLMBackend_WithRealGemini(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT not set")
	}
	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		t.Skip("TEST_GEMINI_LOCATION not set")
	}

	ctx := context.Background()
	client, err := gemini.New(ctx, projectID, location)
	gt.NoError(t, err).Required()
	backend, err := translation.NewLLMBackend(client)
	gt.NoError(t, err).Required()

	svc := translation.New(translation.WithBackend(backend))
	got, err := svc.Translate(ctx, "The patient has a high fever.", types.LanguageEnglish, types.LanguageHindi)
	gt.NoError(t, err).Required()
	gt.Value(t, translation.DetectLanguage(got)).Equal(types.LanguageHindi)
}
