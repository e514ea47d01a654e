package repo

import (
	"context"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
)

type MethodFilter struct {
	Name  string
	Limit int
}

type RunSetFilter struct {
	MethodVersionID string
	Limit           int
}

type RunFilter struct {
	RunSetID        string
	NonTerminalOnly bool
	Limit           int
}

// RunSetSummary is a run set together with counters derived from its runs.
type RunSetSummary struct {
	RunSet        domain.RunSet
	RunCount      int
	TerminalCount int
	ErrorCount    int
}

// MethodRepository manages methods and their versions.
type MethodRepository interface {
	CreateMethod(ctx context.Context, method domain.Method) error
	GetMethod(ctx context.Context, id string) (domain.Method, error)
	ListMethods(ctx context.Context, filter MethodFilter) ([]domain.Method, error)

	CreateMethodVersion(ctx context.Context, version domain.MethodVersion) error
	GetMethodVersion(ctx context.Context, id string) (domain.MethodVersion, error)
	ListMethodVersions(ctx context.Context, methodID string) ([]domain.MethodVersion, error)

	// SetLastRunSet overwrites the weak back-reference on both the version and its method.
	SetLastRunSet(ctx context.Context, methodVersionID, runSetID string, at time.Time) error
}

// RunSetRepository manages run sets. Run sets are immutable after creation.
type RunSetRepository interface {
	CreateRunSet(ctx context.Context, runSet domain.RunSet) (int64, error)
	GetRunSet(ctx context.Context, id string) (domain.RunSet, error)
	ListRunSets(ctx context.Context, filter RunSetFilter) ([]RunSetSummary, error)
}

// RunRepository manages runs. Write methods report the number of affected rows.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) (int64, error)
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)

	UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, modifiedAt time.Time) (int64, error)
	UpdateRunStatusWithError(ctx context.Context, id string, status domain.RunStatus, modifiedAt time.Time, errorMessages string) (int64, error)
	UpdateLastPolledTimestamp(ctx context.Context, id string, polledAt time.Time) (int64, error)
}
