package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the persisted status of a single workflow execution.
type RunStatus string

const (
	RunStatusUnknown       RunStatus = "UNKNOWN"
	RunStatusQueued        RunStatus = "QUEUED"
	RunStatusInitializing  RunStatus = "INITIALIZING"
	RunStatusRunning       RunStatus = "RUNNING"
	RunStatusPaused        RunStatus = "PAUSED"
	RunStatusCanceling     RunStatus = "CANCELING"
	RunStatusComplete      RunStatus = "COMPLETE"
	RunStatusExecutorError RunStatus = "EXECUTOR_ERROR"
	RunStatusSystemError   RunStatus = "SYSTEM_ERROR"
	RunStatusAborted       RunStatus = "ABORTED"
)

// ParseRunStatus maps engine (WES) and stored status values to canonical run statuses.
func ParseRunStatus(value string) (RunStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RunStatusUnknown), "":
		return RunStatusUnknown, true
	case string(RunStatusQueued):
		return RunStatusQueued, true
	case string(RunStatusInitializing):
		return RunStatusInitializing, true
	case string(RunStatusRunning):
		return RunStatusRunning, true
	case string(RunStatusPaused):
		return RunStatusPaused, true
	case string(RunStatusCanceling):
		return RunStatusCanceling, true
	case string(RunStatusComplete):
		return RunStatusComplete, true
	case string(RunStatusExecutorError):
		return RunStatusExecutorError, true
	case string(RunStatusSystemError):
		return RunStatusSystemError, true
	case string(RunStatusAborted), "CANCELED", "CANCELLED":
		return RunStatusAborted, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further engine transitions are expected.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusComplete, RunStatusExecutorError, RunStatusSystemError, RunStatusAborted:
		return true
	default:
		return false
	}
}

// InErrorState reports whether the status represents a failed run.
func (s RunStatus) InErrorState() bool {
	return s == RunStatusExecutorError || s == RunStatusSystemError
}

// TerminalRunStatuses lists the statuses excluded from polling.
func TerminalRunStatuses() []RunStatus {
	return []RunStatus{RunStatusComplete, RunStatusExecutorError, RunStatusSystemError, RunStatusAborted}
}

// Run is one execution attempt of a workflow against one record.
type Run struct {
	ID             string
	EngineID       string
	RunSetID       string
	RecordID       string
	SubmittedAt    time.Time
	Status         RunStatus
	LastModifiedAt time.Time
	LastPolledAt   time.Time
	ErrorMessages  string

	// RunSet is populated by repository reads that join the parent run set.
	RunSet *RunSet
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.RunSetID) == "" {
		return errors.New("run set id is required")
	}
	if strings.TrimSpace(r.RecordID) == "" {
		return errors.New("record id is required")
	}
	if _, ok := ParseRunStatus(string(r.Status)); !ok {
		return errors.New("run status is invalid")
	}
	return nil
}
