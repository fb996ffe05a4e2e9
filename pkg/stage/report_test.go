package stage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/m-mizutani/gt"
)

func TestReportSynthesisProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a completed examination", func(t *testing.T) {
		agent := stage.NewReportSynthesis(testDeps(&mockInference{}))
		record := newExaminedRecord()

		_, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrPrecondition)).True()
	})

	t.Run("rejects an inconsistent record", func(t *testing.T) {
		agent := stage.NewReportSynthesis(testDeps(&mockInference{}))
		record := newOrderedRecord()
		record.ImagingOrder = nil
		record.ImagingFinding = &model.ImagingFinding{Label: "PNEUMONIA", Confidence: 0.9}

		_, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.Error(t, err)
	})

	t.Run("passes a valid record through unchanged", func(t *testing.T) {
		agent := stage.NewReportSynthesis(testDeps(&mockInference{}))
		record := newOrderedRecord()

		updated, err := agent.Process(ctx, record, stage.ProcessOption{})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Urgency).Equal(record.Urgency)
		gt.Array(t, updated.Diagnoses).Length(len(record.Diagnoses))
	})
}

func TestRenderReport(t *testing.T) {
	t.Run("requires diagnoses", func(t *testing.T) {
		record := newExaminedRecord()
		_, err := stage.RenderReport(record)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrPrecondition)).True()
	})

	t.Run("renders triage, physician and log sections", func(t *testing.T) {
		record := newOrderedRecord()
		record.ImagingOrder = nil
		record = record.WithEvent(types.StageIntake, types.OutcomeSuccess, "")

		report, err := stage.RenderReport(record)
		gt.NoError(t, err).Required()

		gt.Value(t, report.RunID).Equal(record.ID)
		gt.Value(t, report.Urgency).Equal(record.Urgency)
		gt.Bool(t, strings.HasPrefix(report.Markdown, "# Medical Assessment Report")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "## 1. Triage Assessment")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "## 2. Physician Assessment")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "**pneumonia**")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "## Processing Log")).True()
		// No radiology section without a finding
		gt.Bool(t, strings.Contains(report.Markdown, "Radiology")).False()
	})

	t.Run("includes radiology section when a finding exists", func(t *testing.T) {
		record := newOrderedRecord()
		record.ImagingFinding = &model.ImagingFinding{
			Label:      "PNEUMONIA",
			Confidence: 0.91,
			Narrative:  "Consolidation in the right lower lobe.",
		}

		report, err := stage.RenderReport(record)
		gt.NoError(t, err).Required()
		gt.Bool(t, strings.Contains(report.Markdown, "## 3. Radiology Report")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "PNEUMONIA")).True()
		gt.Bool(t, strings.Contains(report.Markdown, "Consolidation in the right lower lobe.")).True()
	})

	t.Run("rendering is deterministic for the same record", func(t *testing.T) {
		record := newOrderedRecord().WithEvent(types.StageIntake, types.OutcomeSuccess, "")

		first, err := stage.RenderReport(record)
		gt.NoError(t, err).Required()
		second, err := stage.RenderReport(record)
		gt.NoError(t, err).Required()

		gt.Value(t, first.Markdown).Equal(second.Markdown)
	})
}
