package config

import (
	"strings"
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// ModelParams are the generation parameters forwarded to the inference
// boundary
type ModelParams struct {
	Temperature float64
	MaxTokens   int
}

// PipelineConfig carries every tunable of the orchestration core. It is
// constructed once by the caller and passed in explicitly; there is no
// process-wide configuration state.
type PipelineConfig struct {
	// RetryBudget is the maximum number of attempts per stage for
	// transient failures
	RetryBudget int

	// BackoffBase is the initial retry delay, doubled per attempt
	BackoffBase time.Duration

	// StageTimeout bounds each stage attempt, external calls included
	StageTimeout time.Duration

	// ImagingIndicated lists lowercase condition substrings that trigger
	// an imaging order when matched against examination diagnoses
	ImagingIndicated []string

	// UrgencyKeywords floors intake urgency when a keyword appears in the
	// complaint, keeping triage deterministic for known severe wording
	UrgencyKeywords map[string]types.UrgencyLevel

	// ImagingLabels is the expected label set of the vision classifier
	ImagingLabels []string

	Params ModelParams
}

// DefaultPipelineConfig returns the built-in configuration. The keyword
// table and label set mirror the chest X-ray triage setup the pipeline was
// built around.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RetryBudget:  3,
		BackoffBase:  500 * time.Millisecond,
		StageTimeout: 60 * time.Second,
		ImagingIndicated: []string{
			"pneumonia",
			"fracture",
			"effusion",
			"tumor",
			"pulmonary",
		},
		UrgencyKeywords: map[string]types.UrgencyLevel{
			"chest pain":          types.UrgencyHigh,
			"shortness of breath": types.UrgencyHigh,
			"difficulty breath":   types.UrgencyHigh,
			"high fever":          types.UrgencyHigh,
			"unconscious":         types.UrgencyCritical,
			"severe bleeding":     types.UrgencyCritical,
			"stroke":              types.UrgencyCritical,
			"fever":               types.UrgencyModerate,
			"persistent":          types.UrgencyModerate,
		},
		ImagingLabels: []string{"NORMAL", "PNEUMONIA"},
		Params: ModelParams{
			Temperature: 0.7,
			MaxTokens:   2048,
		},
	}
}

// Validate checks if the PipelineConfig is valid
func (c *PipelineConfig) Validate() error {
	if c.RetryBudget < 1 {
		return goerr.New("retry budget must be at least 1", goerr.V("budget", c.RetryBudget))
	}
	if c.BackoffBase <= 0 {
		return goerr.New("backoff base must be positive", goerr.V("base", c.BackoffBase))
	}
	if c.StageTimeout <= 0 {
		return goerr.New("stage timeout must be positive", goerr.V("timeout", c.StageTimeout))
	}
	for _, cond := range c.ImagingIndicated {
		if cond == "" {
			return goerr.New("imaging-indicated condition must not be empty")
		}
		if cond != strings.ToLower(cond) {
			return goerr.New("imaging-indicated condition must be lowercase", goerr.V("condition", cond))
		}
	}
	for kw, level := range c.UrgencyKeywords {
		if kw == "" {
			return goerr.New("urgency keyword must not be empty")
		}
		if !level.IsValid() {
			return goerr.New("invalid urgency level for keyword",
				goerr.V("keyword", kw), goerr.V("level", level))
		}
	}
	if len(c.ImagingLabels) == 0 {
		return goerr.New("imaging label set must not be empty")
	}
	if c.Params.Temperature < 0 || c.Params.Temperature > 2 {
		return goerr.New("temperature out of range", goerr.V("temperature", c.Params.Temperature))
	}
	if c.Params.MaxTokens < 1 {
		return goerr.New("max tokens must be positive", goerr.V("max_tokens", c.Params.MaxTokens))
	}
	return nil
}

// ImagingIndicatedFor reports whether the condition matches the configured
// imaging-indicated list. Matching is case-insensitive substring matching
// in both directions, so "community-acquired pneumonia" triggers the
// "pneumonia" entry.
func (c *PipelineConfig) ImagingIndicatedFor(condition string) bool {
	lowered := strings.ToLower(condition)
	for _, indicated := range c.ImagingIndicated {
		if strings.Contains(lowered, indicated) {
			return true
		}
	}
	return false
}
