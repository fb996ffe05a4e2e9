package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/caresim-lab/caseflow/pkg/utils/async"
	"github.com/m-mizutani/goerr/v2"
)

// UseCases is the boundary consumed by the presentation layer. It starts
// pipeline runs in the background, exposes their committed snapshots, and
// cancels in-flight runs at the next stage boundary. Independent runs
// share only the stateless collaborators and read-only configuration.
type UseCases struct {
	repo     interfaces.RunRepository
	pipeline *Pipeline

	mu      sync.Mutex
	cancels map[types.RunID]context.CancelFunc
}

// New creates the use case layer over the given repository and stage
// collaborators
func New(repo interfaces.RunRepository, deps stage.Deps) *UseCases {
	return &UseCases{
		repo:     repo,
		pipeline: NewPipeline(deps),
		cancels:  make(map[types.RunID]context.CancelFunc),
	}
}

// StartRun validates the input, persists the created snapshot, and
// dispatches the pipeline in the background. The returned RunID can be
// polled with GetStatus immediately.
func (uc *UseCases) StartRun(ctx context.Context, input RunInput) (types.RunID, error) {
	if input.Complaint == "" {
		return "", goerr.New("complaint is required")
	}

	id := types.NewRunID()
	if err := uc.repo.Put(ctx, &interfaces.RunSnapshot{
		ID:     id,
		State:  types.RunStateCreated,
		Record: model.NewCaseRecord(id, input.Complaint, input.Patient),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to persist initial snapshot", goerr.V(RunIDKey, id))
	}

	// The cancel func is registered before dispatch so a Cancel arriving
	// right after StartRun returns still finds the run.
	runCtx, cancel := context.WithCancel(async.Detach(ctx))
	uc.registerCancel(id, cancel)

	async.Run(runCtx, func(ctx context.Context) error {
		defer func() {
			uc.unregisterCancel(id)
			cancel()
		}()

		return uc.execute(ctx, id, input)
	})

	return id, nil
}

// RunSync executes the pipeline in the calling goroutine. The CLI run
// command uses it; the HTTP layer uses StartRun.
func (uc *UseCases) RunSync(ctx context.Context, input RunInput) (*model.FinalReport, *model.CaseRecord, error) {
	if input.Complaint == "" {
		return nil, nil, goerr.New("complaint is required")
	}
	id := types.NewRunID()
	return uc.pipeline.Run(ctx, id, input, uc.observer(ctx, id))
}

func (uc *UseCases) execute(ctx context.Context, id types.RunID, input RunInput) error {
	report, record, err := uc.pipeline.Run(ctx, id, input, uc.observer(ctx, id))
	if err != nil {
		snapshot := &interfaces.RunSnapshot{
			ID:            id,
			State:         types.RunStateFailed,
			Record:        record,
			FailureReason: failureReason(err),
		}
		if putErr := uc.repo.Put(ctx, snapshot); putErr != nil {
			return goerr.Wrap(putErr, "failed to persist failure snapshot", goerr.V(RunIDKey, id))
		}
		return err
	}

	if err := uc.repo.Put(ctx, &interfaces.RunSnapshot{
		ID:     id,
		State:  types.RunStateCompleted,
		Record: record,
		Report: report,
	}); err != nil {
		return goerr.Wrap(err, "failed to persist final snapshot", goerr.V(RunIDKey, id))
	}
	return nil
}

// observer persists a snapshot after every committed state change
func (uc *UseCases) observer(ctx context.Context, id types.RunID) Observer {
	return func(state types.RunState, record *model.CaseRecord) {
		// Terminal snapshots are written by execute with report/reason
		if state.IsTerminal() {
			return
		}
		_ = uc.repo.Put(ctx, &interfaces.RunSnapshot{
			ID:     id,
			State:  state,
			Record: record,
		})
	}
}

// GetStatus returns the latest committed snapshot of the run
func (uc *UseCases) GetStatus(ctx context.Context, id types.RunID) (*interfaces.RunSnapshot, error) {
	snapshot, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(ErrRunNotFound, err.Error(), goerr.V(RunIDKey, id))
	}
	return snapshot, nil
}

// Cancel requests cancellation of an in-flight run. It takes effect at the
// next stage boundary.
func (uc *UseCases) Cancel(ctx context.Context, id types.RunID) error {
	snapshot, err := uc.repo.Get(ctx, id)
	if err != nil {
		return goerr.Wrap(ErrRunNotFound, err.Error(), goerr.V(RunIDKey, id))
	}
	if snapshot.State.IsTerminal() {
		return goerr.Wrap(ErrRunNotCancelable, "cannot cancel terminal run",
			goerr.V(RunIDKey, id), goerr.V(StateKey, snapshot.State))
	}

	uc.mu.Lock()
	cancel, ok := uc.cancels[id]
	uc.mu.Unlock()
	if !ok {
		return goerr.Wrap(ErrRunNotFound, "no in-flight run to cancel", goerr.V(RunIDKey, id))
	}
	cancel()
	return nil
}

func (uc *UseCases) registerCancel(id types.RunID, cancel context.CancelFunc) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.cancels[id] = cancel
}

func (uc *UseCases) unregisterCancel(id types.RunID) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.cancels, id)
}

// failureReason folds cancellation into the recorded reason set
func failureReason(err error) string {
	if errors.Is(err, ErrRunCanceled) {
		return "Canceled"
	}
	return model.FailureReason(err)
}
