package interfaces

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
)

// RunSnapshot is the externally visible view of a pipeline run. The record
// inside a snapshot is a committed copy; in-flight stage work is never
// observable.
type RunSnapshot struct {
	ID            types.RunID
	State         types.RunState
	Record        *model.CaseRecord
	Report        *model.FinalReport
	FailureReason string
}

// RunRepository stores run snapshots for status queries. Implementations
// must deep-copy on both write and read.
type RunRepository interface {
	Put(ctx context.Context, snapshot *RunSnapshot) error
	Get(ctx context.Context, id types.RunID) (*RunSnapshot, error)
	List(ctx context.Context) ([]*RunSnapshot, error)
}
