package types

import "fmt"

// RunState represents the state machine position of a pipeline run
type RunState string

const (
	RunStateCreated         RunState = "CREATED"
	RunStateIntake          RunState = "INTAKE"
	RunStateExamination     RunState = "EXAMINATION"
	RunStateImaging         RunState = "IMAGING"
	RunStateReportSynthesis RunState = "REPORT_SYNTHESIS"
	RunStateCompleted       RunState = "COMPLETED"
	RunStateFailed          RunState = "FAILED"
)

// AllRunStates returns all valid run states
func AllRunStates() []RunState {
	return []RunState{
		RunStateCreated,
		RunStateIntake,
		RunStateExamination,
		RunStateImaging,
		RunStateReportSynthesis,
		RunStateCompleted,
		RunStateFailed,
	}
}

// IsValid checks if the run state is valid
func (s RunState) IsValid() bool {
	switch s {
	case RunStateCreated,
		RunStateIntake,
		RunStateExamination,
		RunStateImaging,
		RunStateReportSynthesis,
		RunStateCompleted,
		RunStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run state is terminal
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// Stage returns the pipeline stage executed while in this state, if any
func (s RunState) Stage() (Stage, bool) {
	switch s {
	case RunStateIntake:
		return StageIntake, true
	case RunStateExamination:
		return StageExamination, true
	case RunStateImaging:
		return StageImaging, true
	case RunStateReportSynthesis:
		return StageReportSynthesis, true
	default:
		return "", false
	}
}

// String returns the string representation of the run state
func (s RunState) String() string {
	return string(s)
}

// ParseRunState parses a string into a RunState
func ParseRunState(s string) (RunState, error) {
	state := RunState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid run state: %s", s)
	}
	return state, nil
}
