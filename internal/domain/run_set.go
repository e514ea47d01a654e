package domain

import (
	"errors"
	"strings"
	"time"
)

// RunSetState is the batch-level verdict of a run set.
type RunSetState string

const (
	RunSetStateUnknown  RunSetState = "UNKNOWN"
	RunSetStateRunning  RunSetState = "RUNNING"
	RunSetStateComplete RunSetState = "COMPLETE"
	RunSetStateError    RunSetState = "ERROR"
)

// NormalizeRunSetState maps stored values to canonical run set states.
func NormalizeRunSetState(value string) RunSetState {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RunSetStateRunning):
		return RunSetStateRunning
	case string(RunSetStateComplete):
		return RunSetStateComplete
	case string(RunSetStateError):
		return RunSetStateError
	default:
		return RunSetStateUnknown
	}
}

// RunSet is one user-submitted batch sharing a method version and parameter definitions.
type RunSet struct {
	ID                string
	MethodVersionID   string
	Name              string
	Description       string
	IsTemplate        bool
	Status            RunSetState
	SubmittedAt       time.Time
	LastModifiedAt    time.Time
	LastPolledAt      time.Time
	InputDefinitions  []WorkflowInputDefinition
	OutputDefinitions []WorkflowOutputDefinition
	RecordType        string
}

func (r RunSet) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run set id is required")
	}
	if strings.TrimSpace(r.MethodVersionID) == "" {
		return errors.New("method version id is required")
	}
	if strings.TrimSpace(r.RecordType) == "" {
		return errors.New("record type is required")
	}
	return nil
}

// HasOutputDefinitions reports whether completed runs have anything to write back.
func (r RunSet) HasOutputDefinitions() bool {
	return len(r.OutputDefinitions) > 0
}
