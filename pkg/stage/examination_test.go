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

func newExaminedRecord() *model.CaseRecord {
	record := newIntakeRecord("persistent cough with fever")
	record.Symptoms = model.SymptomProfile{
		Tags:      []string{"cough", "fever"},
		Complaint: record.Complaint,
		Summary:   "Productive cough with fever for five days.",
	}
	record.Urgency = types.UrgencyModerate
	return record
}

func examinationResult(condition string, confidence float64, imagingNeeded bool) map[string]any {
	return map[string]any{
		"diagnoses": []any{
			map[string]any{
				"condition":  condition,
				"confidence": confidence,
				"rationale":  "clinical presentation",
			},
		},
		"imaging": map[string]any{
			"needed":      imagingNeeded,
			"modality":    "xray",
			"body_region": "chest",
			"reason":      "confirm consolidation",
		},
	}
}

func TestExaminationProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an intake symptom profile", func(t *testing.T) {
		agent := stage.NewExamination(testDeps(&mockInference{}))
		record := newIntakeRecord("cough")

		_, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrPrecondition)).True()
	})

	t.Run("orders imaging for an indicated condition", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return examinationResult("community-acquired pneumonia", 0.85, true), nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		updated, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()

		gt.Array(t, updated.Diagnoses).Length(1)
		gt.Value(t, updated.Diagnoses[0].Condition).Equal("community-acquired pneumonia")
		gt.Value(t, updated.ImagingOrder).NotNil().Required()
		gt.Value(t, updated.ImagingOrder.Modality).Equal(types.ModalityXRay)
		gt.Value(t, updated.ImagingOrder.BodyRegion).Equal("chest")
	})

	t.Run("model cannot order imaging outside the indicated list", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return examinationResult("seasonal allergies", 0.7, true), nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		updated, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.ImagingOrder).Nil()
	})

	t.Run("indicated condition gets a default order even when model declines", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				result := examinationResult("pneumonia", 0.85, false)
				result["imaging"] = map[string]any{"needed": false}
				return result, nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		updated, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.ImagingOrder).NotNil().Required()
		gt.Value(t, updated.ImagingOrder.Modality).Equal(types.ModalityXRay)
	})

	t.Run("diagnoses are ordered by descending confidence", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"diagnoses": []any{
						map[string]any{"condition": "bronchitis", "confidence": 0.4, "rationale": "r1"},
						map[string]any{"condition": "pneumonia", "confidence": 0.85, "rationale": "r2"},
						map[string]any{"condition": "common cold", "confidence": 0.2, "rationale": "r3"},
					},
					"imaging": map[string]any{"needed": false},
				}, nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		updated, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Array(t, updated.Diagnoses).Length(3).Required()
		gt.Value(t, updated.Diagnoses[0].Condition).Equal("pneumonia")
		gt.Value(t, updated.Diagnoses[1].Condition).Equal("bronchitis")
		gt.Value(t, updated.Diagnoses[2].Condition).Equal("common cold")
	})

	t.Run("empty diagnosis list is a malformed output", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return map[string]any{
					"diagnoses": []any{},
					"imaging":   map[string]any{"needed": false},
				}, nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		_, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrMalformedOutput)).True()
	})

	t.Run("confidence out of range is a malformed output", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return examinationResult("pneumonia", 1.4, false), nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		_, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrMalformedOutput)).True()
	})

	t.Run("optional urgency only escalates", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				result := examinationResult("seasonal allergies", 0.7, false)
				result["urgency"] = "LOW"
				return result, nil
			},
		}
		agent := stage.NewExamination(testDeps(inf))

		updated, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		// Record started at MODERATE; the model's LOW is ignored
		gt.Value(t, updated.Urgency).Equal(types.UrgencyModerate)

		inf.generateFn = func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
			result := examinationResult("seasonal allergies", 0.7, false)
			result["urgency"] = "HIGH"
			return result, nil
		}
		updated, err = agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Urgency).Equal(types.UrgencyHigh)
	})

	t.Run("grounding query covers the symptom tags", func(t *testing.T) {
		retr := &mockRetriever{}
		deps := testDeps(&mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return examinationResult("seasonal allergies", 0.7, false), nil
			},
		})
		deps.Retriever = retr
		agent := stage.NewExamination(deps)

		_, err := agent.Process(ctx, newExaminedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Array(t, retr.queries).Length(1).Required()
		gt.Value(t, retr.queries[0]).Equal("differential diagnosis for cough, fever")
	})
}
