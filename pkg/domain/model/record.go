package model

import (
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// PatientProfile holds optional demographics attached to a case.
// Values come from the caller (or photo pre-analysis) and are never
// required by the pipeline itself. Fields are tagged as PHI so the log
// pipeline redacts them.
type PatientProfile struct {
	Name   string `masq:"phi"`
	Age    string `masq:"phi"`
	Gender string `masq:"phi"`
}

// SymptomProfile is the structured view of the raw complaint produced by
// the intake stage.
type SymptomProfile struct {
	Tags      []string `masq:"phi"`
	Complaint string   `masq:"phi"`
	Summary   string   `masq:"phi"`
}

// Diagnosis is a single condition hypothesis with supporting rationale
type Diagnosis struct {
	Condition  string
	Confidence float64 // [0,1]
	Rationale  string
}

// ImagingOrder requests an imaging study. It is set only by the
// examination stage.
type ImagingOrder struct {
	Modality   types.Modality
	BodyRegion string
	Reason     string
}

// ImagingFinding holds the classifier result plus the drafted narrative.
// It may exist only when an ImagingOrder exists.
type ImagingFinding struct {
	Label      string
	Confidence float64
	Narrative  string
}

// StageEvent is one append-only audit entry in the case history
type StageEvent struct {
	Stage   types.Stage
	Outcome types.StageOutcome
	Reason  string
	At      time.Time
}

// CaseRecord is the shared case state threaded through the pipeline.
// Stages never mutate a record in place: each stage receives the current
// version and returns a new one, and the orchestrator alone decides which
// version is authoritative. That keeps retries and replays idempotent.
type CaseRecord struct {
	ID        types.RunID
	Patient   PatientProfile
	Complaint string `masq:"phi"`

	Symptoms  SymptomProfile
	Urgency   types.UrgencyLevel
	Diagnoses []Diagnosis

	ImagingOrder   *ImagingOrder
	ImagingFinding *ImagingFinding

	// Knowledge holds the snippets that grounded the most recent stage
	Knowledge []KnowledgeSnippet

	History   []StageEvent
	CreatedAt time.Time
}

// NewCaseRecord creates the initial record for a run. Only the identifier,
// complaint, and optional demographics are populated.
func NewCaseRecord(id types.RunID, complaint string, patient PatientProfile) *CaseRecord {
	return &CaseRecord{
		ID:        id,
		Patient:   patient,
		Complaint: complaint,
		Urgency:   types.UrgencyLow,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the record
func (r *CaseRecord) Clone() *CaseRecord {
	copied := &CaseRecord{
		ID:        r.ID,
		Patient:   r.Patient,
		Complaint: r.Complaint,
		Symptoms: SymptomProfile{
			Complaint: r.Symptoms.Complaint,
			Summary:   r.Symptoms.Summary,
		},
		Urgency:   r.Urgency,
		CreatedAt: r.CreatedAt,
	}

	if r.Symptoms.Tags != nil {
		copied.Symptoms.Tags = make([]string, len(r.Symptoms.Tags))
		copy(copied.Symptoms.Tags, r.Symptoms.Tags)
	}
	if r.Diagnoses != nil {
		copied.Diagnoses = make([]Diagnosis, len(r.Diagnoses))
		copy(copied.Diagnoses, r.Diagnoses)
	}
	if r.ImagingOrder != nil {
		order := *r.ImagingOrder
		copied.ImagingOrder = &order
	}
	if r.ImagingFinding != nil {
		finding := *r.ImagingFinding
		copied.ImagingFinding = &finding
	}
	if r.Knowledge != nil {
		copied.Knowledge = make([]KnowledgeSnippet, len(r.Knowledge))
		copy(copied.Knowledge, r.Knowledge)
	}
	if r.History != nil {
		copied.History = make([]StageEvent, len(r.History))
		copy(copied.History, r.History)
	}

	return copied
}

// WithEvent returns a copy with the event appended to the history.
// History is append-only; earlier entries are never rewritten.
func (r *CaseRecord) WithEvent(stage types.Stage, outcome types.StageOutcome, reason string) *CaseRecord {
	copied := r.Clone()
	copied.History = append(copied.History, StageEvent{
		Stage:   stage,
		Outcome: outcome,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
	return copied
}

// WithKnowledge returns a copy with Knowledge replaced by the snippets
// that grounded the current stage
func (r *CaseRecord) WithKnowledge(snippets []KnowledgeSnippet) *CaseRecord {
	copied := r.Clone()
	copied.Knowledge = make([]KnowledgeSnippet, len(snippets))
	copy(copied.Knowledge, snippets)
	return copied
}

// EscalateUrgency returns a copy with urgency raised to at least the given
// level. A lower level is ignored: urgency never silently decreases.
func (r *CaseRecord) EscalateUrgency(to types.UrgencyLevel) *CaseRecord {
	copied := r.Clone()
	copied.Urgency = copied.Urgency.Max(to)
	return copied
}

// OverrideUrgency returns a copy with urgency explicitly lowered and an
// override event recorded. An empty reason is rejected so the audit trail
// always explains the downgrade.
func (r *CaseRecord) OverrideUrgency(stage types.Stage, to types.UrgencyLevel, reason string) (*CaseRecord, error) {
	if reason == "" {
		return nil, goerr.New("urgency override requires a reason",
			goerr.V("stage", stage), goerr.V("to", to))
	}
	if to.AtLeast(r.Urgency) {
		// Not a downgrade, treat as a plain escalation
		return r.EscalateUrgency(to), nil
	}

	copied := r.Clone()
	copied.Urgency = to
	copied.History = append(copied.History, StageEvent{
		Stage:   stage,
		Outcome: types.OutcomeUrgencyOverride,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
	return copied, nil
}

// Validate checks the record invariants
func (r *CaseRecord) Validate() error {
	if r.ID == "" {
		return goerr.New("case record ID is required")
	}
	if !r.Urgency.IsValid() {
		return goerr.New("invalid urgency level", goerr.V("urgency", r.Urgency))
	}
	if r.ImagingFinding != nil && r.ImagingOrder == nil {
		return goerr.New("imaging finding without imaging order", goerr.V("id", r.ID))
	}
	for _, d := range r.Diagnoses {
		if d.Confidence < 0 || d.Confidence > 1 {
			return goerr.New("diagnosis confidence out of range",
				goerr.V("condition", d.Condition), goerr.V("confidence", d.Confidence))
		}
	}
	if r.ImagingFinding != nil {
		if r.ImagingFinding.Confidence < 0 || r.ImagingFinding.Confidence > 1 {
			return goerr.New("imaging finding confidence out of range",
				goerr.V("label", r.ImagingFinding.Label),
				goerr.V("confidence", r.ImagingFinding.Confidence))
		}
	}
	return nil
}

// StageAttempts counts history entries for the given stage, retries included
func (r *CaseRecord) StageAttempts(stage types.Stage) int {
	var n int
	for _, ev := range r.History {
		if ev.Stage == stage && ev.Outcome != types.OutcomeUrgencyOverride {
			n++
		}
	}
	return n
}
