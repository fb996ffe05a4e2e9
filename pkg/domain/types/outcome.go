package types

import "fmt"

// StageOutcome represents the recorded result of one stage attempt
type StageOutcome string

const (
	OutcomeSuccess StageOutcome = "SUCCESS"
	OutcomeRetried StageOutcome = "RETRIED"
	OutcomeFailed  StageOutcome = "FAILED"

	// OutcomeUrgencyOverride marks an explicit urgency downgrade. Urgency is
	// monotonically non-decreasing otherwise, so every downgrade must leave
	// an audit entry with its reason.
	OutcomeUrgencyOverride StageOutcome = "URGENCY_OVERRIDE"
)

// IsValid checks if the stage outcome is valid
func (o StageOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess,
		OutcomeRetried,
		OutcomeFailed,
		OutcomeUrgencyOverride:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage outcome
func (o StageOutcome) String() string {
	return string(o)
}

// ParseStageOutcome parses a string into a StageOutcome
func ParseStageOutcome(s string) (StageOutcome, error) {
	outcome := StageOutcome(s)
	if !outcome.IsValid() {
		return "", fmt.Errorf("invalid stage outcome: %s", s)
	}
	return outcome, nil
}
