package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Backend performs the actual translation between two supported languages
type Backend interface {
	Name() string
	Translate(ctx context.Context, text string, src, tgt Language) (string, error)
}

const (
	defaultTimeout          = 20 * time.Second
	defaultBatchConcurrency = 4
)

// Service translates between supported languages. It never fails hard: whenever no
// translation can be produced it returns the original text with model.ErrDegradedService.
type Service struct {
	backend Backend
	cache   interfaces.TranslationCache
	timeout time.Duration
}

// Option configures Service
type Option func(*Service)

// WithBackend sets the translation backend
func WithBackend(b Backend) Option {
	return func(s *Service) {
		s.backend = b
	}
}

// WithCache memoizes backend results
func WithCache(c interfaces.TranslationCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithTimeout bounds each backend call
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// New creates a translation service
func New(opts ...Option) *Service {
	s := &Service{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a backend is configured
func (s *Service) Available() bool {
	return s.backend != nil
}

// DetectLanguage guesses the language of text
func (s *Service) DetectLanguage(text string) types.LanguageCode {
	return DetectLanguage(text)
}

// SupportedLanguages lists the supported languages
func (s *Service) SupportedLanguages() []Language {
	return SupportedLanguages()
}

// Translate converts text from src to tgt. The returned text is always usable; a non-nil
// error wraps model.ErrDegradedService and means the text is untranslated.
func (s *Service) Translate(ctx context.Context, text string, src, tgt types.LanguageCode) (string, error) {
	if src == tgt || strings.TrimSpace(text) == "" {
		return text, nil
	}
	logger := logging.From(ctx)

	srcLang, ok := LookupLanguage(src)
	if !ok {
		logger.Warn("unsupported source language, returning original text", "source", src)
		return text, goerr.Wrap(model.ErrDegradedService, "unsupported source language", goerr.V(model.LanguageKey, src))
	}
	tgtLang, ok := LookupLanguage(tgt)
	if !ok {
		logger.Warn("unsupported target language, returning original text", "target", tgt)
		return text, goerr.Wrap(model.ErrDegradedService, "unsupported target language", goerr.V(model.LanguageKey, tgt))
	}

	key := CacheKey(text, src, tgt)
	if s.cache != nil {
		cached, found, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("translation cache lookup failed", "error", err)
		} else if found {
			return cached, nil
		}
	}

	var cause error
	if s.backend != nil {
		translated, err := s.call(ctx, s.backend, text, srcLang, tgtLang)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Put(ctx, key, translated); err != nil {
					logger.Warn("translation cache store failed", "error", err)
				}
			}
			return translated, nil
		}
		cause = err
		logger.Warn("translation backend failed", "backend", s.backend.Name(), "source", src, "target", tgt, "error", err)
	} else {
		cause = goerr.New("no translation backend configured")
	}

	logger.Warn("translation unavailable, returning original text", "source", src, "target", tgt)
	return text, goerr.Wrap(model.ErrDegradedService, "translation unavailable",
		goerr.V("source", src), goerr.V("target", tgt), goerr.V("cause", cause.Error()))
}

// BatchTranslate translates texts concurrently, keeping their order. Every entry is
// usable; the error is the first degradation encountered.
func (s *Service) BatchTranslate(ctx context.Context, texts []string, src, tgt types.LanguageCode) ([]string, error) {
	out := make([]string, len(texts))
	errs := make([]error, len(texts))

	var eg errgroup.Group
	eg.SetLimit(defaultBatchConcurrency)
	for i, text := range texts {
		eg.Go(func() error {
			out[i], errs[i] = s.Translate(ctx, text, src, tgt)
			return nil
		})
	}
	_ = eg.Wait()

	for _, err := range errs {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Service) call(ctx context.Context, b Backend, text string, src, tgt Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	translated, err := b.Translate(ctx, text, src, tgt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(translated) == "" {
		return "", goerr.New("backend returned empty translation", goerr.V("backend", b.Name()))
	}
	return translated, nil
}

// CacheKey is the SHA-256 of text, source and target language
func CacheKey(text string, src, tgt types.LanguageCode) string {
	h := sha256.New()
	h.Write([]byte(src))
	h.Write([]byte{0})
	h.Write([]byte(tgt))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "translation:" + hex.EncodeToString(h.Sum(nil))
}
