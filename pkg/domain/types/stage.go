package types

import "fmt"

// Stage identifies one processing stage of the case pipeline
type Stage string

const (
	StageIntake          Stage = "intake"
	StageExamination     Stage = "examination"
	StageImaging         Stage = "imaging"
	StageReportSynthesis Stage = "report_synthesis"
)

// AllStages returns all pipeline stages in processing order
func AllStages() []Stage {
	return []Stage{
		StageIntake,
		StageExamination,
		StageImaging,
		StageReportSynthesis,
	}
}

// IsValid checks if the stage is valid
func (s Stage) IsValid() bool {
	switch s {
	case StageIntake,
		StageExamination,
		StageImaging,
		StageReportSynthesis:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// ParseStage parses a string into a Stage
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("invalid stage: %s", s)
	}
	return stage, nil
}
