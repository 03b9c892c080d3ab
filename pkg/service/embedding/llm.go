package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLLMBatchSize   = 32
	defaultLLMConcurrency = 4
)

// LLMEncoder produces embeddings through a gollem LLM client
type LLMEncoder struct {
	client      gollem.LLMClient
	batchSize     int
	concurrency   int
	queryPrefix   string
	passagePrefix string
}

// LLMOption configures LLMEncoder
type LLMOption func(*LLMEncoder)

// WithBatchSize sets how many texts are sent per embedding request
func WithBatchSize(n int) LLMOption {
	return func(e *LLMEncoder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency sets the number of embedding requests in flight
func WithConcurrency(n int) LLMOption {
	return func(e *LLMEncoder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithQueryPrefix sets the text prepended to search queries, e.g. "query: " for E5 style models
func WithQueryPrefix(prefix string) LLMOption {
	return func(e *LLMEncoder) {
		e.queryPrefix = prefix
	}
}

// WithPassagePrefix sets the text prepended to indexed documents
func WithPassagePrefix(prefix string) LLMOption {
	return func(e *LLMEncoder) {
		e.passagePrefix = prefix
	}
}

// NewLLMEncoder creates an encoder backed by client
func NewLLMEncoder(client gollem.LLMClient, opts ...LLMOption) (*LLMEncoder, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	e := &LLMEncoder{
		client:      client,
		batchSize:   defaultLLMBatchSize,
		concurrency: defaultLLMConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *LLMEncoder) Name() string {
	return "llm"
}

func (e *LLMEncoder) Close() error {
	return nil
}

// Encode requests embeddings in batches, several batches in parallel
func (e *LLMEncoder) Encode(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	prefix := e.passagePrefix
	if isQuery {
		prefix = e.queryPrefix
	}
	if prefix != "" {
		prefixed := make([]string, len(texts))
		for i, text := range texts {
			prefixed[i] = prefix + text
		}
		texts = prefixed
	}

	out := make([][]float32, len(texts))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		eg.Go(func() error {
			embeddings, err := e.client.GenerateEmbedding(ctx, model.EmbeddingDimension, texts[start:end])
			if err != nil {
				return goerr.Wrap(err, "failed to generate embedding", goerr.V("offset", start))
			}
			if len(embeddings) != end-start {
				return goerr.New("embedding count mismatch",
					goerr.V(model.ExpectedKey, end-start), goerr.V(model.ActualKey, len(embeddings)))
			}
			for i, emb := range embeddings {
				vec := make([]float32, len(emb))
				for j, v := range emb {
					vec[j] = float32(v)
				}
				out[start+i] = vec
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
