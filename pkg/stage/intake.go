package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Intake derives the symptom profile and the initial urgency level from
// the raw complaint. The configured keyword rubric floors the model's
// urgency so triage never under-classifies known severe wording.
type Intake struct {
	deps Deps
}

// NewIntake creates the intake stage agent
func NewIntake(deps Deps) *Intake {
	return &Intake{deps: deps}
}

// Name returns the stage identifier
func (a *Intake) Name() types.Stage {
	return types.StageIntake
}

func (a *Intake) Process(ctx context.Context, record *model.CaseRecord, opt ProcessOption) (*model.CaseRecord, error) {
	snippets, err := retrieve(ctx, a.deps.Retriever, record.Complaint)
	if err != nil {
		return nil, goerr.Wrap(err, "intake retrieval failed")
	}

	result, err := a.deps.Inference.Generate(ctx, interfaces.GenerateRequest{
		SystemPrompt: intakeSystemPrompt,
		Prompt:       buildIntakePrompt(record, snippets),
		Schema:       intakeSchema(),
		Params:       a.deps.Config.Params,
		Strict:       opt.Strict,
	})
	if err != nil {
		return nil, err
	}

	tags, err := decodeStringSlice(result, "symptom_tags")
	if err != nil {
		return nil, err
	}
	urgencyRaw, err := decodeString(result, "urgency")
	if err != nil {
		return nil, err
	}
	urgency, err := types.ParseUrgencyLevel(strings.ToUpper(urgencyRaw))
	if err != nil {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "model returned unknown urgency level",
			goerr.V("urgency", urgencyRaw))
	}
	summary, err := decodeString(result, "summary")
	if err != nil {
		return nil, err
	}

	updated := record.WithKnowledge(snippets)
	updated.Symptoms = model.SymptomProfile{
		Tags:      tags,
		Complaint: record.Complaint,
		Summary:   summary,
	}
	updated.Urgency = urgency.Max(urgencyFloor(record.Complaint, a.deps.Config.UrgencyKeywords))

	return updated, nil
}

const intakeSystemPrompt = `You are a hospital front desk triage assistant.
Review the patient's complaint, extract the clinically relevant symptoms as short lowercase tags,
assess the urgency level, and summarize the presentation in one or two sentences.`

func buildIntakePrompt(record *model.CaseRecord, snippets []model.KnowledgeSnippet) string {
	var sb strings.Builder

	sb.WriteString("## Patient\n\n")
	if record.Patient.Name != "" {
		fmt.Fprintf(&sb, "- Name: %s\n", record.Patient.Name)
	}
	if record.Patient.Age != "" {
		fmt.Fprintf(&sb, "- Age: %s\n", record.Patient.Age)
	}
	if record.Patient.Gender != "" {
		fmt.Fprintf(&sb, "- Gender: %s\n", record.Patient.Gender)
	}

	sb.WriteString("\n## Primary Complaint\n\n")
	sb.WriteString(record.Complaint)
	sb.WriteString("\n")

	writeSnippetSection(&sb, snippets)

	sb.WriteString("\nAssess the urgency as one of LOW, MODERATE, HIGH, CRITICAL.\n")
	return sb.String()
}

func intakeSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "IntakeAssessment",
		Description: "Structured triage assessment of the patient's complaint",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"symptom_tags": {
				Type:        gollem.TypeArray,
				Description: "Short lowercase symptom tags extracted from the complaint",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeString,
				},
			},
			"urgency": {
				Type:        gollem.TypeString,
				Description: "Urgency level: LOW, MODERATE, HIGH or CRITICAL",
				Required:    true,
			},
			"summary": {
				Type:        gollem.TypeString,
				Description: "One or two sentence summary of the presentation",
				Required:    true,
			},
		},
	}
}

// writeSnippetSection renders retrieved grounding snippets into a prompt
func writeSnippetSection(sb *strings.Builder, snippets []model.KnowledgeSnippet) {
	if len(snippets) == 0 {
		return
	}
	sb.WriteString("\n## Reference Material\n\n")
	for _, s := range snippets {
		fmt.Fprintf(sb, "- [%s] %s\n", s.SourceID, s.Text)
	}
}
