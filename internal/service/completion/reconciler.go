package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/execution/outputs"
	"github.com/animus-labs/cbas-go/internal/platform/metrics"
	"github.com/animus-labs/cbas-go/internal/platform/runlock"
	"github.com/animus-labs/cbas-go/internal/repo"
	"github.com/animus-labs/cbas-go/internal/storage/objectstore"
)

type Result string

const (
	ResultSuccess    Result = "SUCCESS"
	ResultValidation Result = "VALIDATION"
	ResultError      Result = "ERROR"
)

// Observation is one engine reading of a run.
type Observation struct {
	// Run is the persisted run, including its RunSet.
	Run            domain.Run
	Status         domain.RunStatus
	Outputs        map[string]any
	WorkflowErrors []string
	ObservedAt     time.Time
}

// RecordWriter writes attributes back to a record.
type RecordWriter interface {
	UpdateRecord(ctx context.Context, recordType, recordID string, attributes map[string]any) error
}

// OutputArchiver keeps the raw outputs of completed runs.
type OutputArchiver interface {
	Archive(ctx context.Context, outputs objectstore.ArchivedOutputs) (string, error)
}

type Dependencies struct {
	Runs    repo.RunRepository
	Records RecordWriter

	// Optional. A nil Locker uses an in-process lock.
	Locker  runlock.Locker
	Archive OutputArchiver
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

type Reconciler struct {
	runs    repo.RunRepository
	records RecordWriter
	locker  runlock.Locker
	archive OutputArchiver
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

func New(deps Dependencies) *Reconciler {
	if deps.Runs == nil || deps.Records == nil {
		return nil
	}
	locker := deps.Locker
	if locker == nil {
		locker = runlock.NewLocalLocker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		runs:    deps.Runs,
		records: deps.Records,
		locker:  locker,
		archive: deps.Archive,
		metrics: deps.Metrics,
		logger:  logger.With("component", "completion"),
		now:     time.Now,
	}
}

// Reconcile applies obs and returns the outcome together with the run as persisted afterwards.
func (r *Reconciler) Reconcile(ctx context.Context, obs Observation) (Result, domain.Run) {
	if r == nil {
		return ResultError, obs.Run
	}
	result, run := r.reconcile(ctx, obs)
	r.metrics.RecordReconciliation(ctx, string(result))
	return result, run
}

func (r *Reconciler) reconcile(ctx context.Context, obs Observation) (Result, domain.Run) {
	run := obs.Run
	logger := r.logger.With("run_id", run.ID, "run_set_id", run.RunSetID, "engine_id", run.EngineID)

	release, err := r.locker.Lock(ctx, run.ID)
	if err != nil {
		logger.Error("acquire run lock failed", "error", err)
		return ResultError, run
	}
	defer release()

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = r.now()
	}
	observedAt = observedAt.UTC()

	if obs.Status == run.Status && len(obs.WorkflowErrors) == 0 {
		rows, err := r.runs.UpdateLastPolledTimestamp(ctx, run.ID, observedAt)
		if err != nil || rows != 1 {
			logger.Error("update last polled timestamp failed", "rows", rows, "error", err)
			return ResultError, run
		}
		run.LastPolledAt = observedAt
		return ResultSuccess, run
	}

	status := obs.Status
	var errorText string

	if obs.Status == domain.RunStatusComplete {
		if run.RunSet == nil {
			logger.Error("run set missing for completed run")
			return ResultError, run
		}
		if run.RunSet.HasOutputDefinitions() {
			attributes, err := outputs.BuildOutputs(run.RunSet.OutputDefinitions, obs.Outputs)
			if err != nil {
				var verr *outputs.ValidationError
				if !errors.As(err, &verr) {
					logger.Error("build outputs failed", "error", err)
				} else {
					logger.Warn("outputs do not match output definitions", "error", err)
				}
				return ResultValidation, run
			}
			if len(attributes) > 0 {
				if err := r.records.UpdateRecord(ctx, run.RunSet.RecordType, run.RecordID, attributes); err != nil {
					errorText = fmt.Sprintf("Error while updating data table attributes for record %s from run %s (engine workflow ID %s): %s",
						run.RecordID, run.ID, run.EngineID, err)
					logger.Error("record write-back failed", "record_id", run.RecordID, "error", err)
					status = domain.RunStatusSystemError
				}
			}
		}
	} else if obs.Status.InErrorState() && len(obs.WorkflowErrors) > 0 {
		errorText = appendError(errorText, strings.Join(obs.WorkflowErrors, ", "))
	}

	var rows int64
	if errorText == "" {
		rows, err = r.runs.UpdateRunStatus(ctx, run.ID, status, observedAt)
	} else {
		rows, err = r.runs.UpdateRunStatusWithError(ctx, run.ID, status, observedAt, errorText)
	}
	if err != nil || rows != 1 {
		logger.Error("run update did not affect exactly one row", "status", status, "rows", rows, "error", err)
		return ResultError, run
	}

	logger.Info("run status updated", "from", run.Status, "to", status)
	if status == domain.RunStatusComplete {
		r.archiveOutputs(ctx, logger, run, obs.Outputs, observedAt)
	}
	run.Status = status
	run.LastModifiedAt = observedAt
	run.LastPolledAt = observedAt
	if errorText != "" {
		run.ErrorMessages = errorText
	}
	return ResultSuccess, run
}

func (r *Reconciler) archiveOutputs(ctx context.Context, logger *slog.Logger, run domain.Run, observed map[string]any, observedAt time.Time) {
	if r.archive == nil || len(observed) == 0 {
		return
	}
	key, err := r.archive.Archive(ctx, objectstore.ArchivedOutputs{
		RunID:      run.ID,
		RunSetID:   run.RunSetID,
		RecordID:   run.RecordID,
		EngineID:   run.EngineID,
		ObservedAt: observedAt,
		Outputs:    observed,
	})
	if err != nil {
		logger.Warn("archive outputs failed", "error", err)
		return
	}
	logger.Debug("outputs archived", "key", key)
}

func appendError(existing, message string) string {
	if existing == "" {
		return message
	}
	return existing + ", " + message
}
