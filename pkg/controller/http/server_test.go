package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	httpctrl "github.com/caresim-lab/caseflow/pkg/controller/http"
	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/model/config"
	"github.com/caresim-lab/caseflow/pkg/repository/memory"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/caresim-lab/caseflow/pkg/usecase"
	"github.com/m-mizutani/gt"
)

// cannedInference serves every stage from one canned script keyed by the
// schema title
type cannedInference struct {
	mu    sync.Mutex
	calls int
}

func (m *cannedInference) Generate(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	switch req.Schema.Title {
	case "IntakeAssessment":
		return map[string]any{
			"symptom_tags": []any{"cough"},
			"urgency":      "MODERATE",
			"summary":      "Dry cough for a week.",
		}, nil
	case "ExaminationAssessment":
		return map[string]any{
			"diagnoses": []any{
				map[string]any{"condition": "common cold", "confidence": 0.7, "rationale": "mild symptoms"},
			},
			"imaging": map[string]any{"needed": false},
		}, nil
	default:
		return map[string]any{"narrative": "unremarkable"}, nil
	}
}

type cannedRetriever struct{}

func (cannedRetriever) Query(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error) {
	return []model.KnowledgeSnippet{}, nil
}

type cannedVision struct{}

func (cannedVision) Classify(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error) {
	return &interfaces.Classification{Label: "NORMAL", Confidence: 0.95}, nil
}

func newTestServer(t *testing.T) *httpctrl.Server {
	t.Helper()

	cfg := config.DefaultPipelineConfig()
	cfg.BackoffBase = time.Millisecond

	uc := usecase.New(memory.New(), stage.Deps{
		Inference: &cannedInference{},
		Retriever: cannedRetriever{},
		Vision:    cannedVision{},
		Config:    cfg,
	})

	srv, err := httpctrl.New(uc)
	gt.NoError(t, err).Required()
	return srv
}

func postRun(t *testing.T, srv *httpctrl.Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func getStatus(t *testing.T, srv *httpctrl.Server, runID string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Code == http.StatusOK {
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)).Required()
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	gt.Number(t, rec.Code).Equal(http.StatusOK)
}

func TestStartRunEndpoint(t *testing.T) {
	t.Run("accepts a run and reports completion", func(t *testing.T) {
		srv := newTestServer(t)

		rec := postRun(t, srv, `{"complaint": "dry cough for a week", "patient": {"name": "Sam", "age": "35"}}`)
		gt.Number(t, rec.Code).Equal(http.StatusAccepted)

		var resp struct {
			RunID string `json:"run_id"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Bool(t, resp.RunID != "").True()

		deadline := time.Now().Add(5 * time.Second)
		for {
			statusRec, body := getStatus(t, srv, resp.RunID)
			gt.Number(t, statusRec.Code).Equal(http.StatusOK)
			state, _ := body["state"].(string)
			if state == "COMPLETED" {
				gt.Value(t, body["urgency"]).Equal("MODERATE")
				report, _ := body["report"].(string)
				gt.Bool(t, report != "").True()
				break
			}
			if state == "FAILED" {
				t.Fatalf("run failed: %v", body["failure_reason"])
			}
			if time.Now().After(deadline) {
				t.Fatal("run did not complete in time")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	t.Run("rejects a missing complaint", func(t *testing.T) {
		srv := newTestServer(t)

		rec := postRun(t, srv, `{"patient": {"name": "Sam"}}`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("rejects an invalid body", func(t *testing.T) {
		srv := newTestServer(t)

		rec := postRun(t, srv, `{not json`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("rejects invalid image encoding", func(t *testing.T) {
		srv := newTestServer(t)

		rec := postRun(t, srv, `{"complaint": "cough", "image_base64": "!!not-base64!!"}`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestGetStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := getStatus(t, srv, "nonexistent-run")
	gt.Number(t, rec.Code).Equal(http.StatusNotFound)
}

func TestCancelEndpoint(t *testing.T) {
	t.Run("unknown run returns 404", func(t *testing.T) {
		srv := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/runs/nonexistent-run/cancel", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Number(t, rec.Code).Equal(http.StatusNotFound)
	})

	t.Run("terminal run returns 409", func(t *testing.T) {
		srv := newTestServer(t)

		rec := postRun(t, srv, `{"complaint": "dry cough"}`)
		gt.Number(t, rec.Code).Equal(http.StatusAccepted)
		var resp struct {
			RunID string `json:"run_id"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()

		deadline := time.Now().Add(5 * time.Second)
		for {
			_, body := getStatus(t, srv, resp.RunID)
			state, _ := body["state"].(string)
			if state == "COMPLETED" || state == "FAILED" {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("run did not finish in time")
			}
			time.Sleep(10 * time.Millisecond)
		}

		cancelReq := httptest.NewRequest(http.MethodPost, "/api/runs/"+resp.RunID+"/cancel", nil)
		cancelRec := httptest.NewRecorder()
		srv.ServeHTTP(cancelRec, cancelReq)
		gt.Number(t, cancelRec.Code).Equal(http.StatusConflict)
	})
}
