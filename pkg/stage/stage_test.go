package stage_test

import (
	"context"
	"sync"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/stage"
)

// mockInference is a mock inference client recording every request
type mockInference struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error)
	requests   []interfaces.GenerateRequest
}

func (m *mockInference) Generate(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return map[string]any{}, nil
}

// mockRetriever is a mock knowledge retriever
type mockRetriever struct {
	queryFn func(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error)
	queries []string
}

func (m *mockRetriever) Query(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error) {
	m.queries = append(m.queries, text)
	if m.queryFn != nil {
		return m.queryFn(ctx, text, k)
	}
	return []model.KnowledgeSnippet{
		{SourceID: "kb-001", Text: "reference snippet", Score: 0.8},
	}, nil
}

// mockVision is a mock vision classifier
type mockVision struct {
	classifyFn func(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error)
}

func (m *mockVision) Classify(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error) {
	if m.classifyFn != nil {
		return m.classifyFn(ctx, image, labels)
	}
	return &interfaces.Classification{Label: "NORMAL", Confidence: 0.97}, nil
}

func testDeps(inf *mockInference) stage.Deps {
	return stage.Deps{
		Inference: inf,
		Retriever: &mockRetriever{},
		Vision:    &mockVision{},
		Config:    config.DefaultPipelineConfig(),
	}
}

func newIntakeRecord(complaint string) *model.CaseRecord {
	return model.NewCaseRecord(types.NewRunID(), complaint, model.PatientProfile{Age: "42"})
}

// pngImage is a minimal payload with PNG magic bytes
var pngImage = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
