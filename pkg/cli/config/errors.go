package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrInvalidConfig      = goerr.New("invalid configuration")
	ErrDuplicateKnowledge = goerr.New("duplicate knowledge title")
	ErrMissingName        = goerr.New("name is required")
)

// Context keys for error values
const (
	ConfigPathKey     = "config_path"
	KnowledgeIndexKey = "knowledge_index"
	TitleKey          = "title"
)
