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
	"golang.org/x/sync/errgroup"
)

// normalLabel is the classifier label meaning no abnormality. A normal
// study is a successful, reportable outcome, not a failure.
const normalLabel = "NORMAL"

// Imaging runs the ordered study: the image is classified by the vision
// collaborator and a radiologist-style narrative is drafted from the
// classification grounded in modality-specific reference snippets.
type Imaging struct {
	deps  Deps
	image []byte
}

// NewImaging creates the imaging stage agent for one run's image payload
func NewImaging(deps Deps, image []byte) *Imaging {
	return &Imaging{deps: deps, image: image}
}

// Name returns the stage identifier
func (a *Imaging) Name() types.Stage {
	return types.StageImaging
}

func (a *Imaging) Process(ctx context.Context, record *model.CaseRecord, opt ProcessOption) (*model.CaseRecord, error) {
	// Invoking imaging without an order is an orchestration bug
	if record.ImagingOrder == nil {
		return nil, goerr.Wrap(model.ErrPrecondition, "imaging stage requires an imaging order",
			goerr.V("id", record.ID))
	}
	if len(a.image) == 0 {
		return nil, goerr.Wrap(model.ErrPrecondition, "imaging ordered but no image supplied",
			goerr.V("id", record.ID))
	}

	order := *record.ImagingOrder

	// Retrieval and classification are independent; both must land before
	// the narrative generation they feed.
	var snippets []model.KnowledgeSnippet
	var classification *interfaces.Classification

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		snippets, err = retrieve(egCtx, a.deps.Retriever, imagingQuery(order))
		if err != nil {
			return goerr.Wrap(err, "imaging retrieval failed")
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		classification, err = a.deps.Vision.Classify(egCtx, a.image, a.deps.Config.ImagingLabels)
		if err != nil {
			return goerr.Wrap(err, "image classification failed")
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result, err := a.deps.Inference.Generate(ctx, interfaces.GenerateRequest{
		SystemPrompt: imagingSystemPrompt,
		Prompt:       buildImagingPrompt(record, order, classification, snippets),
		Schema:       imagingSchema(),
		Params:       a.deps.Config.Params,
		Strict:       opt.Strict,
	})
	if err != nil {
		return nil, err
	}

	narrative, err := decodeString(result, "narrative")
	if err != nil {
		return nil, err
	}

	updated := record.WithKnowledge(snippets)
	updated.ImagingFinding = &model.ImagingFinding{
		Label:      classification.Label,
		Confidence: classification.Confidence,
		Narrative:  narrative,
	}
	if classification.Label != normalLabel {
		updated = updated.EscalateUrgency(types.UrgencyHigh)
	}

	return updated, nil
}

func imagingQuery(order model.ImagingOrder) string {
	return fmt.Sprintf("%s %s interpretation findings", order.Modality, order.BodyRegion)
}

const imagingSystemPrompt = `You are a specialized radiologist. An automated classifier has scored the
study. Write the radiology narrative: findings, clinical significance, and recommendations,
consistent with the classifier result and the reference material.`

func buildImagingPrompt(record *model.CaseRecord, order model.ImagingOrder, c *interfaces.Classification, snippets []model.KnowledgeSnippet) string {
	var sb strings.Builder

	sb.WriteString("## Study\n\n")
	fmt.Fprintf(&sb, "- Modality: %s\n", order.Modality)
	fmt.Fprintf(&sb, "- Body region: %s\n", order.BodyRegion)
	fmt.Fprintf(&sb, "- Indication: %s\n", order.Reason)

	sb.WriteString("\n## Classifier Result\n\n")
	fmt.Fprintf(&sb, "- Label: %s\n", c.Label)
	fmt.Fprintf(&sb, "- Confidence: %.2f\n", c.Confidence)

	sb.WriteString("\n## Clinical History\n\n")
	fmt.Fprintf(&sb, "- Complaint: %s\n", record.Symptoms.Complaint)
	if len(record.Diagnoses) > 0 {
		fmt.Fprintf(&sb, "- Working diagnosis: %s\n", record.Diagnoses[0].Condition)
	}

	writeSnippetSection(&sb, snippets)

	sb.WriteString("\nWrite the narrative as a single text field.\n")
	return sb.String()
}

func imagingSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "RadiologyNarrative",
		Description: "Radiologist narrative for the classified study",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"narrative": {
				Type:        gollem.TypeString,
				Description: "Findings, interpretation and recommendations",
				Required:    true,
			},
		},
	}
}
