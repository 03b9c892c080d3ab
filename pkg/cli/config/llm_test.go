package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	"github.com/vaidya-health/vaidya/pkg/service/embedding"
)

func TestLLM_Configure(t *testing.T) {
	t.Run("returns nil client when provider is none", func(t *testing.T) {
		cfg := config.NewLLMForTest("none", "", "")
		client, err := cfg.Configure(t.Context())
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
	})

	t.Run("returns nil client when gemini project is empty", func(t *testing.T) {
		cfg := config.NewLLMForTest("gemini", "", "")
		client, err := cfg.Configure(t.Context())
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
	})

	t.Run("returns nil client when openai key is empty", func(t *testing.T) {
		cfg := config.NewLLMForTest("openai", "", "")
		client, err := cfg.Configure(t.Context())
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		cfg := config.NewLLMForTest("claude", "", "")
		_, err := cfg.Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("returns flags", func(t *testing.T) {
		cfg := config.NewLLMForTest("", "", "")
		gt.Array(t, cfg.Flags()).Length(5)
	})
}

func TestEmbedding_Configure(t *testing.T) {
	t.Run("hash provider runs in fallback mode", func(t *testing.T) {
		engine, err := config.NewEmbeddingForTest("hash").Configure(t.Context(), nil)
		gt.NoError(t, err).Required()
		defer engine.Close()
		gt.Value(t, engine.Mode()).Equal(embedding.ModeFallback)
	})

	t.Run("llm provider without client falls back to hash", func(t *testing.T) {
		engine, err := config.NewEmbeddingForTest("llm").Configure(t.Context(), nil)
		gt.NoError(t, err).Required()
		defer engine.Close()
		gt.Value(t, engine.Mode()).Equal(embedding.ModeFallback)
	})

	t.Run("onnx provider without model falls back to hash", func(t *testing.T) {
		engine, err := config.NewEmbeddingForTest("onnx").Configure(t.Context(), nil)
		gt.NoError(t, err).Required()
		defer engine.Close()
		gt.Value(t, engine.Mode()).Equal(embedding.ModeFallback)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		_, err := config.NewEmbeddingForTest("word2vec").Configure(t.Context(), nil)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}

func TestCache_Configure(t *testing.T) {
	t.Run("memory cache", func(t *testing.T) {
		c, cleanup, err := config.NewCacheForTest("memory", 8).Configure(t.Context())
		gt.NoError(t, err).Required()
		defer cleanup()
		gt.Value(t, c).NotNil()
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		_, _, err := config.NewCacheForTest("memcached", 8).Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}
