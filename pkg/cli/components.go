package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/embedding"
	"github.com/vaidya-health/vaidya/pkg/service/narrative"
	"github.com/vaidya-health/vaidya/pkg/service/rag"
	"github.com/vaidya-health/vaidya/pkg/service/translation"
	"github.com/vaidya-health/vaidya/pkg/service/vectorindex"
	"github.com/vaidya-health/vaidya/pkg/usecase"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
	"github.com/vaidya-health/vaidya/pkg/utils/safe"
)

// componentConfig collects the flags shared by commands that run the pipeline
type componentConfig struct {
	configPath string
	llm        config.LLM
	embedding  config.Embedding
	repo       config.Repository
	cache      config.Cache
}

func (c *componentConfig) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file (built-in defaults when omitted)",
			Sources:     cli.EnvVars("VAIDYA_CONFIG"),
			Destination: &c.configPath,
		},
	}
	flags = append(flags, c.llm.Flags()...)
	flags = append(flags, c.embedding.Flags()...)
	flags = append(flags, c.repo.Flags()...)
	flags = append(flags, c.cache.Flags()...)
	return flags
}

// components are the services a pipeline command runs on. Narrator is nil without an LLM.
type components struct {
	app        *config.AppConfig
	llm        gollem.LLMClient
	embedder   *embedding.Engine
	repo       interfaces.DocumentRepository
	index      *vectorindex.Index
	retriever  *rag.Pipeline
	translator *translation.Service
	narrator   *narrative.Engine
	closers    []func()
}

func buildComponents(ctx context.Context, cfg *componentConfig) (*components, error) {
	app, err := config.LoadAppConfiguration(cfg.configPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load configuration")
	}
	c := &components{app: app}
	logger := logging.From(ctx)

	c.llm, err = cfg.llm.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure LLM")
	}
	if c.llm == nil {
		logger.Warn("LLM not configured, narrative and translation stages will be degraded")
	}

	c.embedder, err = cfg.embedding.Configure(ctx, c.llm)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure embedding")
	}
	c.closers = append(c.closers, func() { safe.Close(ctx, c.embedder) })
	logger.Info("Embedding engine ready", "mode", c.embedder.Mode(), "dimension", c.embedder.Dimension())

	c.repo, err = cfg.repo.Configure(ctx)
	if err != nil {
		c.Close()
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}
	c.closers = append(c.closers, func() { safe.Close(ctx, c.repo) })

	c.index = vectorindex.New(c.embedder, vectorindex.WithRepository(c.repo))
	if err := c.index.Load(ctx); err != nil {
		c.Close()
		return nil, goerr.Wrap(err, "failed to restore vector index")
	}

	c.retriever, err = rag.New(c.index, app.Retrieval)
	if err != nil {
		c.Close()
		return nil, err
	}

	cache, closeCache, err := cfg.cache.Configure(ctx)
	if err != nil {
		c.Close()
		return nil, goerr.Wrap(err, "failed to configure translation cache")
	}
	c.closers = append(c.closers, closeCache)

	trOpts := []translation.Option{
		translation.WithCache(cache),
		translation.WithTimeout(app.Pipeline.Timeout()),
	}
	if c.llm != nil {
		backend, err := translation.NewLLMBackend(c.llm)
		if err != nil {
			c.Close()
			return nil, err
		}
		trOpts = append(trOpts, translation.WithBackend(backend))

		c.narrator, err = narrative.New(c.llm, narrative.WithTimeout(app.Pipeline.Timeout()))
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	c.translator = translation.New(trOpts...)

	return c, nil
}

// useCases wires the components over models
func (c *components) useCases(models usecase.ModelProvider) *usecase.UseCases {
	opts := []usecase.Option{
		usecase.WithRetriever(c.retriever),
		usecase.WithTranslator(c.translator),
		usecase.WithWorkingLanguage(c.app.Pipeline.Language()),
		usecase.WithStageTimeout(c.app.Pipeline.Timeout()),
		usecase.WithTopFeatures(c.app.Pipeline.TopFeatures),
	}
	if c.narrator != nil {
		opts = append(opts, usecase.WithNarrator(c.narrator))
	}
	return usecase.New(models, opts...)
}

// seedKnowledge indexes the configured knowledge base unless the index already holds it
func (c *components) seedKnowledge(ctx context.Context) error {
	existing := c.index.Documents(func(d *model.Document) bool {
		return d.DocType == types.DocTypeKnowledge
	})
	if len(existing) > 0 {
		logging.From(ctx).Info("Knowledge base already indexed", "documents", len(existing))
		return nil
	}
	_, err := c.retriever.SeedKnowledge(ctx, c.app.Knowledge)
	return err
}

// Close releases components in reverse order of creation
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
