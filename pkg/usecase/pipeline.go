package usecase

import (
	"context"
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// transition is one guarded edge of the state machine
type transition struct {
	to   types.RunState
	when func(*model.CaseRecord) bool
}

func always(*model.CaseRecord) bool { return true }

// transitionTable enumerates every edge of the pipeline state machine.
// Successors are evaluated in order; the first passing guard wins. Keeping
// the control flow as data makes it inspectable and testable without any
// external service.
var transitionTable = map[types.RunState][]transition{
	types.RunStateCreated: {
		{to: types.RunStateIntake, when: always},
	},
	types.RunStateIntake: {
		{to: types.RunStateExamination, when: always},
	},
	types.RunStateExamination: {
		{to: types.RunStateImaging, when: func(r *model.CaseRecord) bool { return r.ImagingOrder != nil }},
		{to: types.RunStateReportSynthesis, when: always},
	},
	types.RunStateImaging: {
		{to: types.RunStateReportSynthesis, when: always},
	},
	types.RunStateReportSynthesis: {
		{to: types.RunStateCompleted, when: always},
	},
}

// nextState resolves the successor of state for the given record
func nextState(state types.RunState, record *model.CaseRecord) (types.RunState, error) {
	for _, tr := range transitionTable[state] {
		if tr.when(record) {
			return tr.to, nil
		}
	}
	return "", goerr.Wrap(ErrNoTransition, "state machine exhausted", goerr.V(StateKey, state))
}

// RunInput is the caller-supplied input of one pipeline run
type RunInput struct {
	Complaint string
	Patient   model.PatientProfile
	Image     []byte
}

// Observer receives the committed record after every state change. The
// run manager uses it to persist status snapshots; tests use it to watch
// the state sequence.
type Observer func(state types.RunState, record *model.CaseRecord)

// Pipeline is the orchestration state machine. It owns exactly one
// CaseRecord per run, invokes one stage at a time, and adopts a stage's
// returned record exactly once.
type Pipeline struct {
	deps stage.Deps
}

// NewPipeline creates the orchestrator with its stage collaborators
func NewPipeline(deps stage.Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run executes the pipeline for one case. On success it returns the final
// report with the immutable terminal record. On failure the partial record
// is still returned for diagnostics, never presented as a final report.
func (p *Pipeline) Run(ctx context.Context, id types.RunID, input RunInput, observe Observer) (*model.FinalReport, *model.CaseRecord, error) {
	if observe == nil {
		observe = func(types.RunState, *model.CaseRecord) {}
	}
	logger := logging.From(ctx)

	agents := map[types.Stage]stage.Agent{
		types.StageIntake:          stage.NewIntake(p.deps),
		types.StageExamination:     stage.NewExamination(p.deps),
		types.StageImaging:         stage.NewImaging(p.deps, input.Image),
		types.StageReportSynthesis: stage.NewReportSynthesis(p.deps),
	}

	state := types.RunStateCreated
	record := model.NewCaseRecord(id, input.Complaint, input.Patient)
	observe(state, record)

	for {
		// Cancellation takes effect at stage boundaries only; a stage
		// already issued to an external call finishes or times out on its
		// own.
		if err := ctx.Err(); err != nil {
			observe(types.RunStateFailed, record)
			return nil, record, goerr.Wrap(ErrRunCanceled, "run canceled at stage boundary",
				goerr.V(RunIDKey, id), goerr.V(StateKey, state))
		}

		next, err := nextState(state, record)
		if err != nil {
			observe(types.RunStateFailed, record)
			return nil, record, err
		}

		if next == types.RunStateCompleted {
			report, err := stage.RenderReport(record)
			if err != nil {
				observe(types.RunStateFailed, record)
				return nil, record, err
			}
			observe(types.RunStateCompleted, record)
			logger.Info("pipeline run completed",
				"run_id", id, "urgency", record.Urgency, "stages", len(record.History))
			return report, record, nil
		}

		st, ok := next.Stage()
		if !ok {
			observe(types.RunStateFailed, record)
			return nil, record, goerr.Wrap(ErrNoTransition, "non-stage state reached",
				goerr.V(StateKey, next))
		}

		state = next
		observe(state, record)

		record, err = p.executeStage(ctx, agents[st], record)
		observe(state, record)
		if err != nil {
			observe(types.RunStateFailed, record)
			logger.Warn("pipeline run failed",
				"run_id", id, "stage", st, "reason", model.FailureReason(err))
			return nil, record, err
		}
	}
}

// executeStage runs one stage under the retry policy. Transient failures
// retry with exponential backoff up to the budget; a malformed output gets
// exactly one strict reattempt; precondition violations fail immediately.
// Every attempt appends a history event, never overwriting earlier ones.
func (p *Pipeline) executeStage(ctx context.Context, agent stage.Agent, record *model.CaseRecord) (*model.CaseRecord, error) {
	cfg := p.deps.Config
	logger := logging.From(ctx)

	strict := false
	structuralRetried := false

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.StageTimeout)
		next, err := agent.Process(attemptCtx, record, stage.ProcessOption{Strict: strict})
		cancel()

		if err == nil {
			return next.WithEvent(agent.Name(), types.OutcomeSuccess, ""), nil
		}

		// Parent cancellation is not a stage failure
		if ctx.Err() != nil {
			return record.WithEvent(agent.Name(), types.OutcomeFailed, "Canceled"),
				goerr.Wrap(ErrRunCanceled, "stage interrupted by cancellation",
					goerr.V("stage", agent.Name()))
		}

		reason := model.FailureReason(err)
		switch model.Classify(err) {
		case model.ErrorClassTransient:
			if attempt >= cfg.RetryBudget {
				return record.WithEvent(agent.Name(), types.OutcomeFailed, reason),
					goerr.Wrap(err, "retry budget exhausted",
						goerr.V("stage", agent.Name()), goerr.V("attempts", attempt))
			}
			record = record.WithEvent(agent.Name(), types.OutcomeRetried, reason)
			logger.Warn("transient stage failure, retrying",
				"stage", agent.Name(), "attempt", attempt, "reason", reason)
			if err := sleep(ctx, backoff(cfg.BackoffBase, attempt)); err != nil {
				return record, goerr.Wrap(ErrRunCanceled, "canceled during backoff",
					goerr.V("stage", agent.Name()))
			}

		case model.ErrorClassStructural:
			if structuralRetried {
				return record.WithEvent(agent.Name(), types.OutcomeFailed, reason),
					goerr.Wrap(err, "model output still malformed after strict retry",
						goerr.V("stage", agent.Name()))
			}
			structuralRetried = true
			strict = true
			record = record.WithEvent(agent.Name(), types.OutcomeRetried, reason)
			logger.Warn("malformed model output, retrying with strict prompt",
				"stage", agent.Name())

		default:
			// Precondition and fatal errors are never retried
			return record.WithEvent(agent.Name(), types.OutcomeFailed, reason),
				goerr.Wrap(err, "stage failed",
					goerr.V("stage", agent.Name()), goerr.V("class", model.Classify(err)))
		}
	}
}

// backoff doubles the base delay per completed attempt
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// sleep waits for d or until the context ends
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
