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

func newOrderedRecord() *model.CaseRecord {
	record := newExaminedRecord()
	record.Diagnoses = []model.Diagnosis{
		{Condition: "pneumonia", Confidence: 0.85, Rationale: "productive cough with fever"},
	}
	record.ImagingOrder = &model.ImagingOrder{
		Modality:   types.ModalityXRay,
		BodyRegion: "chest",
		Reason:     "suspected pneumonia",
	}
	return record
}

func narrativeResult() map[string]any {
	return map[string]any{
		"narrative": "Right lower lobe consolidation consistent with pneumonia.",
	}
}

func TestImagingProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an imaging order", func(t *testing.T) {
		agent := stage.NewImaging(testDeps(&mockInference{}), pngImage)
		record := newExaminedRecord()

		_, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrPrecondition)).True()
	})

	t.Run("requires an image payload", func(t *testing.T) {
		agent := stage.NewImaging(testDeps(&mockInference{}), nil)

		_, err := agent.Process(ctx, newOrderedRecord(), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrPrecondition)).True()
	})

	t.Run("abnormal finding escalates urgency", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return narrativeResult(), nil
			},
		}
		deps := testDeps(inf)
		deps.Vision = &mockVision{
			classifyFn: func(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error) {
				return &interfaces.Classification{Label: "PNEUMONIA", Confidence: 0.91}, nil
			},
		}
		agent := stage.NewImaging(deps, pngImage)

		updated, err := agent.Process(ctx, newOrderedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()

		gt.Value(t, updated.ImagingFinding).NotNil().Required()
		gt.Value(t, updated.ImagingFinding.Label).Equal("PNEUMONIA")
		gt.Value(t, updated.ImagingFinding.Confidence).Equal(0.91)
		gt.Value(t, updated.ImagingFinding.Narrative).Equal("Right lower lobe consolidation consistent with pneumonia.")
		gt.Value(t, updated.Urgency).Equal(types.UrgencyHigh)
	})

	t.Run("normal finding does not escalate", func(t *testing.T) {
		inf := &mockInference{
			generateFn: func(ctx context.Context, req interfaces.GenerateRequest) (map[string]any, error) {
				return narrativeResult(), nil
			},
		}
		agent := stage.NewImaging(testDeps(inf), pngImage)

		updated, err := agent.Process(ctx, newOrderedRecord(), stage.ProcessOption{})
		gt.NoError(t, err).Required()

		gt.Value(t, updated.ImagingFinding).NotNil().Required()
		gt.Value(t, updated.ImagingFinding.Label).Equal("NORMAL")
		gt.Value(t, updated.Urgency).Equal(types.UrgencyModerate)
	})

	t.Run("classification failure propagates", func(t *testing.T) {
		deps := testDeps(&mockInference{})
		deps.Vision = &mockVision{
			classifyFn: func(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error) {
				return nil, model.ErrUnsupportedFormat
			},
		}
		agent := stage.NewImaging(deps, pngImage)

		_, err := agent.Process(ctx, newOrderedRecord(), stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrUnsupportedFormat)).True()
	})
}
