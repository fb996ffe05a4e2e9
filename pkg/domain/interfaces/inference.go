package interfaces

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/m-mizutani/gollem"
)

// GenerateRequest is the request shape of the text-generation boundary
type GenerateRequest struct {
	SystemPrompt string
	Prompt       string

	// Schema describes the required structured output. The client rejects
	// any response that does not decode against it.
	Schema *gollem.Parameter

	Params config.ModelParams

	// Strict requests a reformulated, schema-first prompt. The
	// orchestrator sets it for the single structural retry after a
	// malformed response.
	Strict bool
}

// InferenceClient is the narrow contract over a text-generation service.
// It returns either a value decoded from the requested schema or a typed
// error from the model error taxonomy.
type InferenceClient interface {
	Generate(ctx context.Context, req GenerateRequest) (map[string]any, error)
}
