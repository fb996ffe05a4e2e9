package stage

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
)

// retrievalK is how many grounding snippets each stage requests
const retrievalK = 5

// Deps bundles the collaborators shared by all stage agents
type Deps struct {
	Inference interfaces.InferenceClient
	Retriever interfaces.KnowledgeRetriever
	Vision    interfaces.VisionClassifier
	Config    config.PipelineConfig
}

// ProcessOption carries per-attempt directives from the orchestrator
type ProcessOption struct {
	// Strict is set for the single retry after a malformed model output.
	// Agents forward it to the inference boundary, which reformulates the
	// prompt around the schema contract.
	Strict bool
}

// Agent is the shared stage contract. Process is a pure transformation: it
// never mutates the input record, and with identical collaborator
// responses it returns an identical output record. That property makes
// orchestrator-level retries safe by construction.
type Agent interface {
	Name() types.Stage
	Process(ctx context.Context, record *model.CaseRecord, opt ProcessOption) (*model.CaseRecord, error)
}

// retrieve runs the stage's grounding query. An empty result is valid; a
// retriever failure is not silently swallowed into one.
func retrieve(ctx context.Context, r interfaces.KnowledgeRetriever, query string) ([]model.KnowledgeSnippet, error) {
	if r == nil {
		return []model.KnowledgeSnippet{}, nil
	}
	return r.Query(ctx, query, retrievalK)
}
