package types

import "github.com/google/uuid"

// RunID is a UUID-based identifier for a pipeline run
type RunID string

// NewRunID generates a new time-ordered RunID
func NewRunID() RunID {
	return RunID(uuid.Must(uuid.NewV7()).String())
}

// String returns the string representation of RunID
func (r RunID) String() string {
	return string(r)
}
