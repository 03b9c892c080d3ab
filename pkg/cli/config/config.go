package config

import (
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/gbdt"
	"github.com/vaidya-health/vaidya/pkg/service/preprocess"
	"github.com/vaidya-health/vaidya/pkg/service/rag"
)

//go:embed default.toml
var defaultConfig []byte

// AppConfig represents the application configuration
type AppConfig struct {
	Features  preprocess.Schema `toml:"features"`
	Model     gbdt.Config       `toml:"model"`
	Retrieval rag.Config        `toml:"retrieval"`
	Pipeline  Pipeline          `toml:"pipeline"`
	Knowledge []rag.Knowledge   `toml:"knowledge"`
}

// Pipeline holds orchestration settings
type Pipeline struct {
	WorkingLanguage string `toml:"working_language"`
	StageTimeout    string `toml:"stage_timeout"`
	TopFeatures     int    `toml:"top_features"`
}

// Language returns the working language
func (p *Pipeline) Language() types.LanguageCode {
	return types.LanguageCode(p.WorkingLanguage).OrDefault()
}

// Timeout returns the parsed stage timeout
func (p *Pipeline) Timeout() time.Duration {
	d, err := time.ParseDuration(p.StageTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks if the Pipeline settings are valid
func (p *Pipeline) Validate() error {
	if !p.Language().IsSupported() {
		return goerr.Wrap(ErrInvalidConfig, "unsupported working language", goerr.V("working_language", p.WorkingLanguage))
	}
	d, err := time.ParseDuration(p.StageTimeout)
	if err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid stage timeout", goerr.V("stage_timeout", p.StageTimeout))
	}
	if d <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "stage timeout must be positive", goerr.V("stage_timeout", p.StageTimeout))
	}
	if p.TopFeatures <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "top_features must be positive", goerr.V("top_features", p.TopFeatures))
	}
	return nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	if err := a.Features.Validate(); err != nil {
		return goerr.Wrap(err, "invalid features")
	}
	if err := a.Model.Validate(); err != nil {
		return goerr.Wrap(err, "invalid model")
	}
	if err := a.Retrieval.Validate(); err != nil {
		return goerr.Wrap(err, "invalid retrieval")
	}
	if err := a.Pipeline.Validate(); err != nil {
		return goerr.Wrap(err, "invalid pipeline")
	}

	// Check knowledge duplicates
	titles := make(map[string]bool)
	for i, k := range a.Knowledge {
		title := strings.TrimSpace(k.Title)
		if title == "" {
			return goerr.Wrap(ErrMissingName, "knowledge title is required", goerr.V(KnowledgeIndexKey, i))
		}
		if strings.TrimSpace(k.Text) == "" {
			return goerr.Wrap(ErrInvalidConfig, "knowledge text is required", goerr.V(TitleKey, title))
		}
		if titles[title] {
			return goerr.Wrap(ErrDuplicateKnowledge, "duplicate knowledge title", goerr.V(TitleKey, title))
		}
		titles[title] = true
	}

	return nil
}

// DefaultAppConfiguration returns the embedded default configuration
func DefaultAppConfiguration() (*AppConfig, error) {
	var config AppConfig
	if err := toml.Unmarshal(defaultConfig, &config); err != nil {
		return nil, goerr.Wrap(err, "failed to parse default config")
	}
	return &config, nil
}

// LoadAppConfiguration loads the application configuration from a TOML file. Sections
// missing from the file keep their default values; an empty path loads the defaults only.
func LoadAppConfiguration(path string) (*AppConfig, error) {
	config, err := DefaultAppConfiguration()
	if err != nil {
		return nil, err
	}

	if path != "" {
		// #nosec G304 - path is expected to be provided by CLI argument
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
		}
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return config, nil
}
