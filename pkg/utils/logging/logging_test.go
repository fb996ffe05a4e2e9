package logging_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/m-mizutani/gt"
)

func TestRedactsPatientFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)

	record := model.NewCaseRecord(types.NewRunID(), "persistent night sweats and weight loss", model.PatientProfile{
		Name:   "Alex Johnson",
		Age:    "54",
		Gender: "female",
	})
	record.Symptoms = model.SymptomProfile{
		Tags:      []string{"night sweats", "weight loss"},
		Complaint: record.Complaint,
		Summary:   "Constitutional symptoms over several weeks.",
	}

	logger.Info("stage committed", "record", record, "state", types.RunStateIntake)

	out := buf.String()
	gt.Bool(t, strings.Contains(out, "persistent night sweats")).False()
	gt.Bool(t, strings.Contains(out, "Alex Johnson")).False()
	gt.Bool(t, strings.Contains(out, "Constitutional symptoms")).False()
	gt.Bool(t, strings.Contains(out, "[REDACTED]")).True()

	// Non-PHI fields still reach the log
	gt.Bool(t, strings.Contains(out, string(record.ID))).True()
	gt.Bool(t, strings.Contains(out, "stage committed")).True()
}

func TestParseLevel(t *testing.T) {
	level, err := logging.ParseLevel("debug")
	gt.NoError(t, err).Required()
	gt.Value(t, level).Equal(slog.LevelDebug)

	level, err = logging.ParseLevel("")
	gt.NoError(t, err).Required()
	gt.Value(t, level).Equal(slog.LevelInfo)

	_, err = logging.ParseLevel("verbose")
	gt.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	format, err := logging.ParseFormat("json")
	gt.NoError(t, err).Required()
	gt.Value(t, format).Equal(logging.FormatJSON)

	_, err = logging.ParseFormat("yaml")
	gt.Error(t, err)
}
