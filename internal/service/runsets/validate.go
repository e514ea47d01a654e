package runsets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/animus-labs/cbas-go/internal/domain"
)

// Request is one batch submission.
type Request struct {
	Name        string
	Description string

	// MethodVersionID references a stored method version. When empty,
	// WorkflowURL identifies the workflow and a method is found or created for it.
	MethodVersionID string
	WorkflowURL     string

	RecordType string
	RecordIDs  []string

	InputDefinitions  []domain.WorkflowInputDefinition
	OutputDefinitions []domain.WorkflowOutputDefinition

	RequestID string
}

// RequestError aggregates every problem found in a request.
type RequestError struct {
	Issues []string
}

func (e *RequestError) Error() string {
	return "Bad user request. Error(s): [" + strings.Join(e.Issues, ", ") + "]"
}

func (e *RequestError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *RequestError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// FetchError maps each record id that could not be read to its cause.
type FetchError struct {
	Failures map[string]string
}

func (e *FetchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%s", id, e.Failures[id]))
	}
	return "Error while fetching records for record id(s): {" + strings.Join(parts, ", ") + "}"
}

// ValidateRequest checks a request against the configured limits without side effects.
func ValidateRequest(req Request, cfg Config) error {
	verr := &RequestError{}

	if n := len(req.RecordIDs); n > cfg.MaximumRecordIDs {
		verr.Add(fmt.Sprintf("%d record IDs submitted exceeds the maximum value of %d.", n, cfg.MaximumRecordIDs))
	}
	if dups := duplicateIDs(req.RecordIDs); len(dups) > 0 {
		verr.Add(fmt.Sprintf("Duplicate Record ID(s) [%s] present in request.", strings.Join(dups, ", ")))
	}
	if len(req.RecordIDs) == 0 {
		verr.Add("At least one record ID is required.")
	}
	for _, id := range req.RecordIDs {
		if strings.TrimSpace(id) == "" {
			verr.Add("Record IDs must not be blank.")
			break
		}
	}
	if strings.TrimSpace(req.RecordType) == "" {
		verr.Add("Record type is required.")
	}
	if strings.TrimSpace(req.MethodVersionID) == "" && strings.TrimSpace(req.WorkflowURL) == "" {
		verr.Add("Either a method version ID or a workflow URL is required.")
	}
	return verr.OrNil()
}

// duplicateIDs lists ids occurring more than once, in order of first appearance.
func duplicateIDs(ids []string) []string {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, id := range ids {
		if counts[id] < 2 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
