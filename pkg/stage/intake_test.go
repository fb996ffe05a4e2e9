package stage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/m-mizutani/gt"
)

func TestIntakeProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("builds symptom profile from model output", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"rash", "itching"},
					"urgency":      "MODERATE",
					"summary":      "Localized rash with itching for two days.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))
		record := newIntakeRecord("itchy rash on left arm")

		updated, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.NoError(t, err).Required()

		gt.Array(t, updated.Symptoms.Tags).Length(2)
		gt.Value(t, updated.Symptoms.Tags[0]).Equal("rash")
		gt.Value(t, updated.Symptoms.Complaint).Equal("itchy rash on left arm")
		gt.Value(t, updated.Urgency).Equal(types.UrgencyModerate)
		gt.Array(t, updated.Knowledge).Length(1)

		// Input record is never mutated
		gt.Array(t, record.Symptoms.Tags).Length(0)
		gt.Value(t, record.Urgency).Equal(types.UrgencyLow)
	})

	t.Run("keyword rubric floors the model urgency", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"chest pain"},
					"urgency":      "LOW",
					"summary":      "Chest discomfort.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))
		record := newIntakeRecord("sudden chest pain since this morning")

		updated, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Urgency).Equal(types.UrgencyHigh)
	})

	t.Run("negated keyword does not floor the urgency", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"cough"},
					"urgency":      "LOW",
					"summary":      "Mild seasonal cough, afebrile.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))
		record := newIntakeRecord("mild seasonal cough, no fever")

		updated, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Urgency).Equal(types.UrgencyLow)
	})

	t.Run("model urgency above the floor is kept", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"fever"},
					"urgency":      "CRITICAL",
					"summary":      "Fever with altered mental state.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))
		record := newIntakeRecord("fever and confusion")

		updated, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Urgency).Equal(types.UrgencyCritical)
	})

	t.Run("unknown urgency level is a malformed output", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"cough"},
					"urgency":      "SEVERE",
					"summary":      "Coughing.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))

		_, err := agent.Process(ctx, newIntakeRecord("coughing"), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrMalformedOutput)).True()
	})

	t.Run("strict option reaches the inference boundary", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"symptom_tags": []any{"cough"},
					"urgency":      "LOW",
					"summary":      "Coughing.",
				}, nil
			},
		}
		agent := stage.NewIntake(testDeps(inf))

		_, err := agent.Process(ctx, newIntakeRecord("coughing"), stage.ProcessOption{Strict: true})
		gt.NoError(t, err).Required()
		gt.Array(t, inf.requests).Length(1).Required()
		gt.Bool(t, inf.requests[0].Strict).True()
	})

	t.Run("retrieval failure propagates", func(t *testing.T) {
		deps := testDeps(&mockInference{})
		deps.Retriever = &mockRetriever{
			queryFn: func(ctx context.Context, text string, k int) ([]model.KnowledgeSnippet, error) {
				return nil, model.ErrUnavailable
			},
		}
		agent := stage.NewIntake(deps)

		_, err := agent.Process(ctx, newIntakeRecord("coughing"), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrUnavailable)).True()
	})
}
