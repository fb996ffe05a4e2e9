package stage

import (
	"bytes"
	"context"
	"text/template"
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// ReportSynthesis assembles the final report from committed record fields.
// It calls no external inference, which keeps the terminal stage
// deterministic and cheap to retry.
type ReportSynthesis struct {
	deps Deps
}

// NewReportSynthesis creates the terminal stage agent
func NewReportSynthesis(deps Deps) *ReportSynthesis {
	return &ReportSynthesis{deps: deps}
}

// Name returns the stage identifier
func (a *ReportSynthesis) Name() types.Stage {
	return types.StageReportSynthesis
}

func (a *ReportSynthesis) Process(ctx context.Context, record *model.CaseRecord, opt ProcessOption) (*model.CaseRecord, error) {
	if len(record.Diagnoses) == 0 {
		return nil, goerr.Wrap(model.ErrPrecondition, "report synthesis requires a completed examination",
			goerr.V("id", record.ID))
	}
	if err := record.Validate(); err != nil {
		return nil, goerr.Wrap(err, "record failed validation before report synthesis")
	}
	return record.Clone(), nil
}

var reportTmpl = template.Must(template.New("report").Parse(`# Medical Assessment Report

## 1. Triage Assessment

- Urgency: {{ .Urgency }}
- Symptoms: {{ range $i, $t := .Symptoms.Tags }}{{ if $i }}, {{ end }}{{ $t }}{{ end }}

{{ .Symptoms.Summary }}

## 2. Physician Assessment
{{ range .Diagnoses }}
- **{{ .Condition }}** (confidence {{ printf "%.2f" .Confidence }}): {{ .Rationale }}
{{- end }}
{{ if .Imaging }}
## 3. Radiology Report

- Finding: {{ .Imaging.Label }} (confidence {{ printf "%.2f" .Imaging.Confidence }})

{{ .Imaging.Narrative }}
{{ end }}
## Processing Log
{{ range .History }}
- {{ .At.Format "2006-01-02T15:04:05Z07:00" }} {{ .Stage }}: {{ .Outcome }}{{ if .Reason }} ({{ .Reason }}){{ end }}
{{- end }}
`))

// RenderReport builds the final report from a committed record. It is a
// pure function of the record: rendering twice yields the same sections.
func RenderReport(record *model.CaseRecord) (*model.FinalReport, error) {
	if len(record.Diagnoses) == 0 {
		return nil, goerr.Wrap(model.ErrPrecondition, "cannot render report without diagnoses",
			goerr.V("id", record.ID))
	}

	report := &model.FinalReport{
		RunID:       record.ID,
		Urgency:     record.Urgency,
		Symptoms:    record.Symptoms,
		Diagnoses:   append([]model.Diagnosis(nil), record.Diagnoses...),
		History:     append([]model.StageEvent(nil), record.History...),
		GeneratedAt: time.Now().UTC(),
	}
	if record.ImagingFinding != nil {
		finding := *record.ImagingFinding
		report.Imaging = &finding
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, report); err != nil {
		return nil, goerr.Wrap(err, "failed to render report template")
	}
	report.Markdown = buf.String()

	return report, nil
}
