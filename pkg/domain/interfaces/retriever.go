package interfaces

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
)

// KnowledgeRetriever queries the knowledge store for grounding snippets.
// Implementations must be deterministic: identical (text, k) on an
// unchanged store yields identical ordering (score descending, ties broken
// by source ID ascending), and no matches above the relevance threshold is
// an empty result, not an error.
type KnowledgeRetriever interface {
	Query(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error)
}
