package retriever

import (
	"context"
	"math"
	"sort"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// Document is one entry of the knowledge store
type Document struct {
	SourceID string
	Text     string
}

// service implements interfaces.KnowledgeRetriever over an in-memory
// vector index. Documents are embedded once at construction; queries embed
// the query text and rank by cosine similarity.
type service struct {
	embedder Embedder
	minScore float64

	docs       []Document
	embeddings [][]float32
}

// Option is a functional option for retriever configuration
type Option func(*service)

// WithMinScore sets the relevance threshold. Snippets scoring below it are
// dropped rather than reported as an error.
func WithMinScore(score float64) Option {
	return func(s *service) {
		s.minScore = score
	}
}

// New builds the retriever and indexes the given documents
func New(ctx context.Context, embedder Embedder, docs []Document, opts ...Option) (interfaces.KnowledgeRetriever, error) {
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}

	s := &service{
		embedder: embedder,
		minScore: 0.1,
		docs:     docs,
	}

	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, len(docs))
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.SourceID == "" {
			return nil, goerr.New("knowledge document requires a source ID")
		}
		if seen[doc.SourceID] {
			return nil, goerr.New("duplicate knowledge source ID", goerr.V("source_id", doc.SourceID))
		}
		seen[doc.SourceID] = true
		texts = append(texts, doc.Text)
	}

	if len(texts) > 0 {
		embeddings, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed knowledge documents")
		}
		if len(embeddings) != len(texts) {
			return nil, goerr.New("embedding count mismatch",
				goerr.V("documents", len(texts)), goerr.V("embeddings", len(embeddings)))
		}
		s.embeddings = embeddings
	}

	return s, nil
}

// Query returns up to k snippets ordered by score descending, ties broken
// by source ID ascending. The ordering is stable across identical calls so
// stage processing stays reproducible.
func (s *service) Query(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error) {
	if k <= 0 || len(s.docs) == 0 || text == "" {
		return []model.KnowledgeSnippet{}, nil
	}

	queryEmbeddings, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	if len(queryEmbeddings) == 0 {
		return nil, goerr.New("no embedding returned for query")
	}
	query := queryEmbeddings[0]

	snippets := make([]model.KnowledgeSnippet, 0, len(s.docs))
	for i, doc := range s.docs {
		score := cosineSimilarity(query, s.embeddings[i])
		if score < s.minScore {
			continue
		}
		snippets = append(snippets, model.KnowledgeSnippet{
			SourceID: doc.SourceID,
			Text:     doc.Text,
			Score:    score,
		})
	}

	sort.Slice(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].SourceID < snippets[j].SourceID
	})

	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
