package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned when a run snapshot does not exist
var ErrNotFound = goerr.New("not found")

// Repository is an in-memory RunRepository. Snapshots are deep-copied on
// both write and read so callers can never alias the stored record.
type Repository struct {
	mu   sync.RWMutex
	runs map[types.RunID]*interfaces.RunSnapshot
}

var _ interfaces.RunRepository = &Repository{}

// New creates an empty in-memory repository
func New() *Repository {
	return &Repository{
		runs: make(map[types.RunID]*interfaces.RunSnapshot),
	}
}

// copySnapshot creates a deep copy of a run snapshot
func copySnapshot(s *interfaces.RunSnapshot) *interfaces.RunSnapshot {
	copied := &interfaces.RunSnapshot{
		ID:            s.ID,
		State:         s.State,
		FailureReason: s.FailureReason,
	}
	if s.Record != nil {
		copied.Record = s.Record.Clone()
	}
	if s.Report != nil {
		report := *s.Report
		if s.Report.Diagnoses != nil {
			report.Diagnoses = append([]model.Diagnosis(nil), s.Report.Diagnoses...)
		}
		if s.Report.History != nil {
			report.History = append([]model.StageEvent(nil), s.Report.History...)
		}
		if s.Report.Imaging != nil {
			finding := *s.Report.Imaging
			report.Imaging = &finding
		}
		copied.Report = &report
	}
	return copied
}

// Put stores the snapshot, replacing any previous snapshot of the run
func (r *Repository) Put(ctx context.Context, snapshot *interfaces.RunSnapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return goerr.New("snapshot with run ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[snapshot.ID] = copySnapshot(snapshot)
	return nil
}

// Get retrieves a snapshot by run ID
func (r *Repository) Get(ctx context.Context, id types.RunID) (*interfaces.RunSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, exists := r.runs[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "run not found", goerr.V("run_id", id))
	}
	return copySnapshot(snapshot), nil
}

// List returns all snapshots ordered by run ID
func (r *Repository) List(ctx context.Context) ([]*interfaces.RunSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*interfaces.RunSnapshot, 0, len(r.runs))
	for _, s := range r.runs {
		result = append(result, copySnapshot(s))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}
