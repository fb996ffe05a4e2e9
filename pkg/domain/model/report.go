package model

import (
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/types"
)

// FinalReport is the terminal artifact of a completed run. It is assembled
// from committed record fields only, so regenerating it is deterministic
// and cheap.
type FinalReport struct {
	RunID       types.RunID
	Urgency     types.UrgencyLevel
	Symptoms    SymptomProfile
	Diagnoses   []Diagnosis
	Imaging     *ImagingFinding
	History     []StageEvent
	Markdown    string
	GeneratedAt time.Time
}
