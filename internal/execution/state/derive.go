package state

import "github.com/animus-labs/cbas-go/internal/domain"

// RunCounts summarizes the runs of one run set.
type RunCounts struct {
	Total    int
	Terminal int
	Errored  int
}

// Counts tallies run statuses. Unparseable statuses count as non-terminal.
func Counts(runs []domain.Run) RunCounts {
	counts := RunCounts{Total: len(runs)}
	for _, run := range runs {
		status, ok := domain.ParseRunStatus(string(run.Status))
		if !ok {
			continue
		}
		if status.IsTerminal() {
			counts.Terminal++
		}
		if status.InErrorState() {
			counts.Errored++
		}
	}
	return counts
}

// DeriveRunSetState computes the batch verdict from the current child runs.
func DeriveRunSetState(runs []domain.Run) domain.RunSetState {
	return StateFromCounts(Counts(runs))
}

// StateFromCounts applies the verdict rules to precomputed counts.
func StateFromCounts(counts RunCounts) domain.RunSetState {
	switch {
	case counts.Total == 0:
		return domain.RunSetStateUnknown
	case counts.Errored == counts.Total:
		return domain.RunSetStateError
	case counts.Terminal == counts.Total:
		return domain.RunSetStateComplete
	default:
		return domain.RunSetStateRunning
	}
}
