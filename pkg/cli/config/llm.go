package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"
)

// LLM holds configuration for the LLM client used for narratives, translation and embeddings
type LLM struct {
	provider     string
	projectID    string
	location     string
	openaiAPIKey string
	model        string
}

// Flags returns CLI flags for LLM configuration
func (l *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider (gemini, openai, or none)",
			Value:       "gemini",
			Sources:     cli.EnvVars("VAIDYA_LLM_PROVIDER"),
			Destination: &l.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("VAIDYA_GEMINI_PROJECT"),
			Destination: &l.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("VAIDYA_GEMINI_LOCATION"),
			Destination: &l.location,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("VAIDYA_OPENAI_API_KEY"),
			Destination: &l.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "llm-model",
			Usage:       "Model name (provider default when empty)",
			Sources:     cli.EnvVars("VAIDYA_LLM_MODEL"),
			Destination: &l.model,
		},
	}
}

// LogAttrs returns log attributes for the LLM configuration
func (l *LLM) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", l.provider),
		slog.String("project_id", l.projectID),
		slog.String("location", l.location),
		slog.String("model", l.model),
		slog.Bool("openai_api_key_set", l.openaiAPIKey != ""),
	}
}

// Configure creates the LLM client from the configured flags.
// Returns nil if the provider is not configured (LLM stages will be degraded).
func (l *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	switch l.provider {
	case "", "none":
		return nil, nil

	case "gemini":
		if l.projectID == "" {
			return nil, nil
		}
		var opts []gemini.Option
		if l.model != "" {
			opts = append(opts, gemini.WithModel(l.model))
		}
		client, err := gemini.New(ctx, l.projectID, l.location, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case "openai":
		if l.openaiAPIKey == "" {
			return nil, nil
		}
		var opts []openai.Option
		if l.model != "" {
			opts = append(opts, openai.WithModel(l.model))
		}
		client, err := openai.New(ctx, l.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid LLM provider", goerr.V("provider", l.provider))
	}
}
