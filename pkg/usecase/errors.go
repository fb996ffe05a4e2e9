package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for the orchestration layer
var (
	ErrRunNotFound      = goerr.New("run not found")
	ErrRunCanceled      = goerr.New("run canceled")
	ErrRunNotCancelable = goerr.New("run already reached a terminal state")
	ErrNoTransition     = goerr.New("no transition defined for state")
)

// Context keys for error values
const (
	RunIDKey = "run_id"
	StateKey = "state"
)
