package inference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// client implements interfaces.InferenceClient on top of gollem
type client struct {
	llmClient gollem.LLMClient
}

// New creates a new inference client with the provided LLM client
func New(llmClient gollem.LLMClient) (interfaces.InferenceClient, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	return &client{llmClient: llmClient}, nil
}

// Generate sends the prompt with a JSON response schema and decodes the
// structured result. Schema validation is this boundary's responsibility:
// a response that does not decode, or that misses a required field, is
// reported as a malformed output so the orchestrator can apply its
// structural retry.
func (c *client) Generate(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
	if req.Schema == nil {
		return nil, goerr.New("response schema is required")
	}
	if err := validateParams(req.Params); err != nil {
		return nil, err
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(req.Schema),
		gollem.WithSessionSystemPrompt(req.SystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(mapTransportError(err), "failed to create LLM session")
	}

	prompt := req.Prompt
	if req.Strict {
		prompt = strictPrompt(req)
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return nil, goerr.Wrap(mapTransportError(err), "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "empty response from LLM")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(resp.Texts[0]), &decoded); err != nil {
		logging.From(ctx).Debug("undecodable LLM response", "response", resp.Texts[0])
		return nil, goerr.Wrap(model.ErrMalformedOutput, "failed to decode LLM response",
			goerr.V("response", resp.Texts[0]))
	}

	if err := validateAgainstSchema(decoded, req.Schema); err != nil {
		return nil, err
	}

	return decoded, nil
}

// validateParams rejects out-of-range generation parameters before an LLM
// call is spent on them. Zero values mean provider defaults; the effective
// values are applied when the provider client is constructed.
func validateParams(params config.ModelParams) error {
	if params.Temperature < 0 || params.Temperature > 2 {
		return goerr.New("temperature out of range", goerr.V("temperature", params.Temperature))
	}
	if params.MaxTokens < 0 {
		return goerr.New("max tokens must not be negative", goerr.V("max_tokens", params.MaxTokens))
	}
	return nil
}

// strictPrompt reformulates the prompt for the structural retry: the
// schema contract is restated first and the model is told to emit JSON
// only.
func strictPrompt(req interfaces.GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString("Your previous answer did not match the required JSON schema.\n")
	sb.WriteString("Respond with a single JSON object and nothing else. ")
	sb.WriteString("Every required field must be present with the exact name and type requested.\n\n")
	sb.WriteString(req.Prompt)
	return sb.String()
}

// validateAgainstSchema checks required top-level fields of the decoded
// response. Nested objects are validated where the stage decodes them into
// typed structs; this catches the common failure of a missing or null
// required field.
func validateAgainstSchema(decoded map[string]any, schema *gollem.Parameter) error {
	for field, p := range schema.Properties {
		if !p.Required {
			continue
		}
		v, ok := decoded[field]
		if !ok || v == nil {
			return goerr.Wrap(model.ErrMalformedOutput, "required field missing in LLM response",
				goerr.V("field", field))
		}
	}
	return nil
}

// mapTransportError folds provider errors into the typed taxonomy the
// orchestrator retries on. Providers do not share error types, so this
// falls back to message sniffing for rate-limit and availability cases.
func mapTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return goerr.Wrap(model.ErrTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "quota"):
		return goerr.Wrap(model.ErrRateLimited, err.Error())
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return goerr.Wrap(model.ErrTimeout, err.Error())
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "503"), strings.Contains(msg, "overloaded"):
		return goerr.Wrap(model.ErrUnavailable, err.Error())
	default:
		return err
	}
}
