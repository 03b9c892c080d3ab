package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/service/embedding"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Embedding holds configuration for the embedding encoder
type Embedding struct {
	provider      string
	runtimePath   string
	modelPath     string
	tokenizerPath string
	maxSeqLen     int
	queryPrefix   string
	passagePrefix string
	cacheSize     int
	timeout       time.Duration
}

// Flags returns CLI flags for embedding configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding encoder (llm, onnx, or hash)",
			Value:       "llm",
			Sources:     cli.EnvVars("VAIDYA_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "onnx-runtime",
			Usage:       "Path to the onnxruntime shared library",
			Sources:     cli.EnvVars("VAIDYA_ONNX_RUNTIME"),
			Destination: &e.runtimePath,
		},
		&cli.StringFlag{
			Name:        "onnx-model",
			Usage:       "Path to the ONNX sentence encoder model",
			Sources:     cli.EnvVars("VAIDYA_ONNX_MODEL"),
			Destination: &e.modelPath,
		},
		&cli.StringFlag{
			Name:        "onnx-tokenizer",
			Usage:       "Path to the tokenizer.json of the ONNX model",
			Sources:     cli.EnvVars("VAIDYA_ONNX_TOKENIZER"),
			Destination: &e.tokenizerPath,
		},
		&cli.IntFlag{
			Name:        "onnx-max-seq-len",
			Usage:       "Maximum token sequence length for the ONNX model",
			Value:       512,
			Sources:     cli.EnvVars("VAIDYA_ONNX_MAX_SEQ_LEN"),
			Destination: &e.maxSeqLen,
		},
		&cli.StringFlag{
			Name:        "embedding-query-prefix",
			Usage:       "Text prepended to search queries before encoding",
			Sources:     cli.EnvVars("VAIDYA_EMBEDDING_QUERY_PREFIX"),
			Destination: &e.queryPrefix,
		},
		&cli.StringFlag{
			Name:        "embedding-passage-prefix",
			Usage:       "Text prepended to indexed documents before encoding",
			Sources:     cli.EnvVars("VAIDYA_EMBEDDING_PASSAGE_PREFIX"),
			Destination: &e.passagePrefix,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of cached embeddings (0 disables the cache)",
			Value:       4096,
			Sources:     cli.EnvVars("VAIDYA_EMBEDDING_CACHE_SIZE"),
			Destination: &e.cacheSize,
		},
		&cli.DurationFlag{
			Name:        "embedding-timeout",
			Usage:       "Timeout of one encoder call",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("VAIDYA_EMBEDDING_TIMEOUT"),
			Destination: &e.timeout,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.String("onnx_model", e.modelPath),
		slog.Int("cache_size", e.cacheSize),
		slog.Duration("timeout", e.timeout),
	}
}

// Configure creates the embedding engine. An encoder that cannot be created leaves the
// engine in hash fallback mode; only an unknown provider is an error.
func (e *Embedding) Configure(ctx context.Context, llmClient gollem.LLMClient) (*embedding.Engine, error) {
	opts := []embedding.Option{
		embedding.WithCacheSize(e.cacheSize),
		embedding.WithTimeout(e.timeout),
	}

	switch e.provider {
	case "hash":
	case "llm":
		if llmClient == nil {
			logging.From(ctx).Warn("no LLM client for embeddings")
			break
		}
		enc, err := embedding.NewLLMEncoder(llmClient,
			embedding.WithQueryPrefix(e.queryPrefix),
			embedding.WithPassagePrefix(e.passagePrefix),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, embedding.WithEncoder(enc))
	case "onnx":
		enc, err := embedding.NewONNXEncoder(embedding.ONNXConfig{
			RuntimePath:   e.runtimePath,
			ModelPath:     e.modelPath,
			TokenizerPath: e.tokenizerPath,
			MaxSeqLen:     e.maxSeqLen,
			QueryPrefix:   e.queryPrefix,
			PassagePrefix: e.passagePrefix,
		})
		if err != nil {
			logging.From(ctx).Warn("failed to load ONNX encoder", "error", err)
			break
		}
		opts = append(opts, embedding.WithEncoder(enc))
	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid embedding provider", goerr.V("provider", e.provider))
	}

	return embedding.New(ctx, opts...), nil
}
