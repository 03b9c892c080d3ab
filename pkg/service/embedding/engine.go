package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Encoder produces embeddings from a model. Implementations may return vectors of any
// norm; Engine normalizes them.
type Encoder interface {
	Encode(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
	Name() string
	Close() error
}

// Mode tells whether the engine serves encoder embeddings or hash fallback vectors
type Mode string

const (
	ModeEncoder  Mode = "encoder"
	ModeFallback Mode = "fallback"
)

const (
	defaultCacheSize = 4096
	defaultTimeout   = 30 * time.Second
	warmupText       = "patient reports chest pain"
)

// Engine turns text into unit vectors of model.EmbeddingDimension. Without a working
// encoder it serves HashEmbedding vectors; Embed never fails.
type Engine struct {
	encoder   Encoder
	mode      Mode
	cache     *lru.Cache[string, []float32]
	cacheSize int
	timeout   time.Duration
}

// Option configures Engine
type Option func(*Engine)

// WithEncoder sets the model encoder
func WithEncoder(enc Encoder) Option {
	return func(e *Engine) {
		e.encoder = enc
	}
}

// WithCacheSize sets the number of cached encoder results; 0 disables caching
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithTimeout bounds each encoder call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// New creates the engine and decides its mode once: an encoder that is missing or fails
// a warm-up encoding puts the engine in fallback mode for its whole lifetime.
func New(ctx context.Context, opts ...Option) *Engine {
	e := &Engine{
		mode:      ModeFallback,
		cacheSize: defaultCacheSize,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cacheSize > 0 {
		cache, err := lru.New[string, []float32](e.cacheSize)
		if err == nil {
			e.cache = cache
		}
	}

	logger := logging.From(ctx)
	if e.encoder == nil {
		logger.Warn("embedding encoder not configured, using hash fallback vectors")
		return e
	}
	if _, err := e.encode(ctx, []string{warmupText}, false); err != nil {
		logger.Warn("embedding encoder failed to load, using hash fallback vectors",
			"encoder", e.encoder.Name(), "error", err)
		return e
	}
	e.mode = ModeEncoder
	logger.Info("embedding encoder ready", "encoder", e.encoder.Name(), "dimension", model.EmbeddingDimension)
	return e
}

// Mode returns the mode chosen at construction
func (e *Engine) Mode() Mode {
	return e.mode
}

// Dimension returns the length of every vector
func (e *Engine) Dimension() int {
	return model.EmbeddingDimension
}

// Embed returns the embedding of a document text
func (e *Engine) Embed(ctx context.Context, text string) []float32 {
	return e.EmbedBatch(ctx, []string{text}, false)[0]
}

// EmbedQuery returns the embedding of a search query
func (e *Engine) EmbedQuery(ctx context.Context, text string) []float32 {
	return e.EmbedBatch(ctx, []string{text}, true)[0]
}

// EmbedBatch embeds texts in order. Entries the encoder cannot serve fall back to hash vectors.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string, isQuery bool) [][]float32 {
	out := make([][]float32, len(texts))
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = NormalizeText(t)
	}

	if e.mode == ModeFallback {
		for i, t := range normalized {
			out[i] = HashEmbedding(t)
		}
		return out
	}

	var pending []int
	for i, t := range normalized {
		if vec, ok := e.cached(t, isQuery); ok {
			out[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out
	}

	batch := make([]string, len(pending))
	for j, i := range pending {
		batch[j] = normalized[i]
	}
	vecs, err := e.encode(ctx, batch, isQuery)
	if err != nil {
		logging.From(ctx).Warn("embedding encoder failed, using hash fallback vectors",
			"encoder", e.encoder.Name(), "count", len(batch), "error", err)
		for _, i := range pending {
			out[i] = HashEmbedding(normalized[i])
		}
		return out
	}
	for j, i := range pending {
		out[i] = vecs[j]
		e.store(normalized[i], isQuery, vecs[j])
	}
	return out
}

// Close releases the encoder
func (e *Engine) Close() error {
	if e.encoder == nil {
		return nil
	}
	return e.encoder.Close()
}

func (e *Engine) encode(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.encoder.Encode(ctx, texts, isQuery)
	if err != nil {
		return nil, goerr.Wrap(model.ErrDegradedService, "encoder call failed", goerr.V("cause", err.Error()))
	}
	if len(raw) != len(texts) {
		return nil, goerr.Wrap(model.ErrDegradedService, "encoder returned wrong number of vectors",
			goerr.V(model.ExpectedKey, len(texts)), goerr.V(model.ActualKey, len(raw)))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != model.EmbeddingDimension {
			return nil, goerr.Wrap(model.ErrDegradedService, "encoder returned wrong dimension",
				goerr.V(model.ExpectedKey, model.EmbeddingDimension), goerr.V(model.ActualKey, len(v)))
		}
		vec, ok := normalizeVector(v)
		if !ok {
			return nil, goerr.Wrap(model.ErrDegradedService, "encoder returned a degenerate vector", goerr.V("index", i))
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Engine) cacheKey(text string, isQuery bool) string {
	h := sha1.New()
	_, _ = io.WriteString(h, e.encoder.Name())
	if isQuery {
		_, _ = io.WriteString(h, "|q|")
	} else {
		_, _ = io.WriteString(h, "|d|")
	}
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) cached(text string, isQuery bool) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	vec, ok := e.cache.Get(e.cacheKey(text, isQuery))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

func (e *Engine) store(text string, isQuery bool, vec []float32) {
	if e.cache == nil {
		return
	}
	e.cache.Add(e.cacheKey(text, isQuery), append([]float32(nil), vec...))
}
