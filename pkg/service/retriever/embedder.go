package retriever

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Embedder converts texts into embedding vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// llmEmbedder generates embeddings through a gollem LLM client
type llmEmbedder struct {
	llmClient gollem.LLMClient
}

// NewLLMEmbedder creates an Embedder backed by the LLM client's embedding
// endpoint
func NewLLMEmbedder(llmClient gollem.LLMClient) (Embedder, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &llmEmbedder{llmClient: llmClient}, nil
}

func (e *llmEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("texts", len(texts)), goerr.V("embeddings", len(embeddings)))
	}

	result := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		result[i] = vec
	}
	return result, nil
}

// hashEmbedderDimension keeps the fallback vectors small; similarity only
// needs enough buckets to separate vocabularies.
const hashEmbedderDimension = 256

// hashEmbedder is a deterministic bag-of-words embedder used when no LLM
// client is configured. It keeps the retriever contract testable without
// network access: identical text always maps to an identical vector.
type hashEmbedder struct{}

// NewHashEmbedder creates the deterministic fallback embedder
func NewHashEmbedder() Embedder {
	return &hashEmbedder{}
}

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, hashEmbedderDimension)
		for _, token := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(token))
			vec[h.Sum32()%hashEmbedderDimension]++
		}
		normalize(vec)
		result[i] = vec
	}
	return result, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}
