package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Examination produces the differential diagnosis from the symptom profile
// and decides whether imaging is indicated. The imaging decision is guard
// logic over the configured condition list, never a default produced by
// error suppression.
type Examination struct {
	deps Deps
}

// NewExamination creates the examination stage agent
func NewExamination(deps Deps) *Examination {
	return &Examination{deps: deps}
}

// Name returns the stage identifier
func (a *Examination) Name() types.Stage {
	return types.StageExamination
}

func (a *Examination) Process(ctx context.Context, record *model.CaseRecord, opt ProcessOption) (*model.CaseRecord, error) {
	if len(record.Symptoms.Tags) == 0 && record.Symptoms.Summary == "" {
		return nil, goerr.Wrap(model.ErrPrecondition, "examination requires an intake symptom profile",
			goerr.V("id", record.ID))
	}

	// Differential-diagnosis grounding is mandatory for this stage
	query := examinationQuery(record)
	snippets, err := retrieve(ctx, a.deps.Retriever, query)
	if err != nil {
		return nil, goerr.Wrap(err, "examination retrieval failed")
	}

	result, err := a.deps.Inference.Generate(ctx, interfaces.GenerateRequest{
		SystemPrompt: examinationSystemPrompt,
		Prompt:       buildExaminationPrompt(record, snippets),
		Schema:       examinationSchema(),
		Params:       a.deps.Config.Params,
		Strict:       opt.Strict,
	})
	if err != nil {
		return nil, err
	}

	diagnoses, err := decodeDiagnoses(result)
	if err != nil {
		return nil, err
	}

	imaging, err := decodeObject(result, "imaging")
	if err != nil {
		return nil, err
	}
	modelWantsImaging, err := decodeBool(imaging, "needed")
	if err != nil {
		return nil, err
	}

	updated := record.WithKnowledge(snippets)
	updated.Diagnoses = diagnoses

	// Imaging is ordered when the top hypothesis is on the configured
	// imaging-indicated list. The model's own flag picks modality details
	// but cannot order imaging for a condition outside the list.
	top := diagnoses[0]
	if a.deps.Config.ImagingIndicatedFor(top.Condition) || a.deps.Config.ImagingIndicatedFor(top.Rationale) {
		updated.ImagingOrder = buildImagingOrder(imaging, top, modelWantsImaging)
	}

	if urgencyRaw := decodeOptionalString(result, "urgency"); urgencyRaw != "" {
		if urgency, err := types.ParseUrgencyLevel(strings.ToUpper(urgencyRaw)); err == nil {
			// Escalation only; a lower assessment here is ignored
			updated = updated.EscalateUrgency(urgency)
		}
	}

	return updated, nil
}

func decodeDiagnoses(result map[string]any) ([]model.Diagnosis, error) {
	items, err := decodeObjectSlice(result, "diagnoses")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "model returned no diagnoses")
	}

	diagnoses := make([]model.Diagnosis, 0, len(items))
	for _, item := range items {
		condition, err := decodeString(item, "condition")
		if err != nil {
			return nil, err
		}
		confidence, err := decodeFloat(item, "confidence")
		if err != nil {
			return nil, err
		}
		if confidence < 0 || confidence > 1 {
			return nil, goerr.Wrap(model.ErrMalformedOutput, "diagnosis confidence out of range",
				goerr.V("condition", condition), goerr.V("confidence", confidence))
		}
		rationale, err := decodeString(item, "rationale")
		if err != nil {
			return nil, err
		}
		diagnoses = append(diagnoses, model.Diagnosis{
			Condition:  condition,
			Confidence: confidence,
			Rationale:  rationale,
		})
	}

	sort.SliceStable(diagnoses, func(i, j int) bool {
		return diagnoses[i].Confidence > diagnoses[j].Confidence
	})
	return diagnoses, nil
}

func buildImagingOrder(imaging map[string]any, top model.Diagnosis, modelWantsImaging bool) *model.ImagingOrder {
	order := &model.ImagingOrder{
		Modality:   types.ModalityXRay,
		BodyRegion: "chest",
		Reason:     fmt.Sprintf("imaging indicated for suspected %s", top.Condition),
	}
	if !modelWantsImaging {
		return order
	}
	if m, err := types.ParseModality(strings.ToLower(decodeOptionalString(imaging, "modality"))); err == nil {
		order.Modality = m
	}
	if region := decodeOptionalString(imaging, "body_region"); region != "" {
		order.BodyRegion = region
	}
	if reason := decodeOptionalString(imaging, "reason"); reason != "" {
		order.Reason = reason
	}
	return order
}

func examinationQuery(record *model.CaseRecord) string {
	if len(record.Symptoms.Tags) > 0 {
		return "differential diagnosis for " + strings.Join(record.Symptoms.Tags, ", ")
	}
	return "differential diagnosis for " + record.Symptoms.Summary
}

const examinationSystemPrompt = `You are an experienced physician conducting a patient examination.
Review the symptom profile and the reference material, produce a differential diagnosis with a
confidence for each hypothesis, and state whether imaging is needed with modality and body region.`

func buildExaminationPrompt(record *model.CaseRecord, snippets []model.KnowledgeSnippet) string {
	var sb strings.Builder

	sb.WriteString("## Symptom Profile\n\n")
	fmt.Fprintf(&sb, "- Tags: %s\n", strings.Join(record.Symptoms.Tags, ", "))
	fmt.Fprintf(&sb, "- Urgency: %s\n", record.Urgency)
	fmt.Fprintf(&sb, "- Summary: %s\n", record.Symptoms.Summary)

	sb.WriteString("\n## Original Complaint\n\n")
	sb.WriteString(record.Symptoms.Complaint)
	sb.WriteString("\n")

	writeSnippetSection(&sb, snippets)

	sb.WriteString("\nList hypotheses ordered by confidence. Confidence must be between 0 and 1.\n")
	return sb.String()
}

func examinationSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ExaminationAssessment",
		Description: "Differential diagnosis and imaging decision",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"diagnoses": {
				Type:        gollem.TypeArray,
				Description: "Condition hypotheses ordered by descending confidence",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"condition": {
							Type:        gollem.TypeString,
							Description: "Name of the suspected condition",
							Required:    true,
						},
						"confidence": {
							Type:        gollem.TypeNumber,
							Description: "Confidence between 0 and 1",
							Required:    true,
						},
						"rationale": {
							Type:        gollem.TypeString,
							Description: "Clinical reasoning supporting the hypothesis",
							Required:    true,
						},
					},
				},
			},
			"imaging": {
				Type:        gollem.TypeObject,
				Description: "Whether an imaging study is needed and its details",
				Required:    true,
				Properties: map[string]*gollem.Parameter{
					"needed": {
						Type:        gollem.TypeBoolean,
						Description: "True if an imaging study should be ordered",
						Required:    true,
					},
					"modality": {
						Type:        gollem.TypeString,
						Description: "Imaging modality: xray, ct, mri or ultrasound",
					},
					"body_region": {
						Type:        gollem.TypeString,
						Description: "Body region to image",
					},
					"reason": {
						Type:        gollem.TypeString,
						Description: "Why the study is needed",
					},
				},
			},
			"urgency": {
				Type:        gollem.TypeString,
				Description: "Escalated urgency level if the findings warrant it",
			},
		},
	}
}
