package config

import (
	"os"
	"time"

	domainConfig "github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/service/retriever"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// AppConfig represents the TOML application configuration: pipeline
// tunables plus the knowledge base documents for the retriever
type AppConfig struct {
	Pipeline  Pipeline    `toml:"pipeline"`
	Knowledge []Knowledge `toml:"knowledge"`

	path string
}

// Pipeline represents the pipeline tunables section
type Pipeline struct {
	RetryBudget      int               `toml:"retry_budget"`
	BackoffBase      string            `toml:"backoff_base"`
	StageTimeout     string            `toml:"stage_timeout"`
	ImagingIndicated []string          `toml:"imaging_indicated"`
	ImagingLabels    []string          `toml:"imaging_labels"`
	UrgencyKeywords  map[string]string `toml:"urgency_keywords"`
	Temperature      float64           `toml:"temperature"`
	MaxTokens        int               `toml:"max_tokens"`
}

// Knowledge represents one knowledge base document
type Knowledge struct {
	ID   string `toml:"id"`
	Text string `toml:"text"`
}

// Validate checks if the Knowledge entry is valid
func (k *Knowledge) Validate() error {
	if k.ID == "" {
		return goerr.New("knowledge document ID is required")
	}
	if k.Text == "" {
		return goerr.New("knowledge document text is required", goerr.V("id", k.ID))
	}
	return nil
}

// Flags returns CLI flags for the application configuration
func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file",
			Sources:     cli.EnvVars("CASEFLOW_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Load reads and validates the configured TOML file. Without a path every
// pipeline default applies and the knowledge base is empty.
func (a *AppConfig) Load() error {
	if a.path == "" {
		return nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(a.path)
	if err != nil {
		return goerr.Wrap(ErrConfigNotFound, err.Error(), goerr.V(ConfigPathKey, a.path))
	}
	if err := toml.Unmarshal(data, a); err != nil {
		return goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, a.path))
	}

	seen := make(map[string]bool, len(a.Knowledge))
	for _, k := range a.Knowledge {
		if err := k.Validate(); err != nil {
			return goerr.Wrap(err, "invalid knowledge document", goerr.V(ConfigPathKey, a.path))
		}
		if seen[k.ID] {
			return goerr.Wrap(ErrDuplicateKnowledgeID, "duplicate knowledge ID",
				goerr.V("id", k.ID), goerr.V(ConfigPathKey, a.path))
		}
		seen[k.ID] = true
	}

	return nil
}

// ToPipelineConfig merges the file values over the built-in defaults and
// validates the result
func (a *AppConfig) ToPipelineConfig() (domainConfig.PipelineConfig, error) {
	cfg := domainConfig.DefaultPipelineConfig()
	p := a.Pipeline

	if p.RetryBudget > 0 {
		cfg.RetryBudget = p.RetryBudget
	}
	if p.BackoffBase != "" {
		d, err := time.ParseDuration(p.BackoffBase)
		if err != nil {
			return cfg, goerr.Wrap(err, "invalid backoff base", goerr.V("value", p.BackoffBase))
		}
		cfg.BackoffBase = d
	}
	if p.StageTimeout != "" {
		d, err := time.ParseDuration(p.StageTimeout)
		if err != nil {
			return cfg, goerr.Wrap(err, "invalid stage timeout", goerr.V("value", p.StageTimeout))
		}
		cfg.StageTimeout = d
	}
	if len(p.ImagingIndicated) > 0 {
		cfg.ImagingIndicated = p.ImagingIndicated
	}
	if len(p.ImagingLabels) > 0 {
		cfg.ImagingLabels = p.ImagingLabels
	}
	if len(p.UrgencyKeywords) > 0 {
		keywords := make(map[string]types.UrgencyLevel, len(p.UrgencyKeywords))
		for kw, raw := range p.UrgencyKeywords {
			level, err := types.ParseUrgencyLevel(raw)
			if err != nil {
				return cfg, goerr.Wrap(err, "invalid urgency keyword level",
					goerr.V("keyword", kw), goerr.V("level", raw))
			}
			keywords[kw] = level
		}
		cfg.UrgencyKeywords = keywords
	}
	if p.Temperature > 0 {
		cfg.Params.Temperature = p.Temperature
	}
	if p.MaxTokens > 0 {
		cfg.Params.MaxTokens = p.MaxTokens
	}

	if err := cfg.Validate(); err != nil {
		return cfg, goerr.Wrap(err, "pipeline config validation failed", goerr.V(ConfigPathKey, a.path))
	}
	return cfg, nil
}

// KnowledgeDocuments converts the knowledge section into retriever
// documents
func (a *AppConfig) KnowledgeDocuments() []retriever.Document {
	docs := make([]retriever.Document, 0, len(a.Knowledge))
	for _, k := range a.Knowledge {
		docs = append(docs, retriever.Document{
			SourceID: k.ID,
			Text:     k.Text,
		})
	}
	return docs
}
