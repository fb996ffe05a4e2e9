package model

// EmbeddingDimension is the dimension of the embedding vector.
// Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// KnowledgeSnippet is one retrieved passage used to ground a generation
// call. Snippets are immutable once retrieved.
type KnowledgeSnippet struct {
	SourceID string
	Text     string
	Score    float64
}
