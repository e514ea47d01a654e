package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/execution/params"
	"github.com/animus-labs/cbas-go/internal/repo"
)

type RunSetStore struct {
	db DB
}

const (
	insertRunSetQuery = `INSERT INTO run_sets (
		run_set_id,
		method_version_id,
		name,
		description,
		is_template,
		status,
		submission_timestamp,
		last_modified_timestamp,
		last_polled_timestamp,
		input_definition,
		output_definition,
		record_type
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	runSetColumns = `rs.run_set_id, rs.method_version_id, rs.name, rs.description, rs.is_template, rs.status,
		rs.submission_timestamp, rs.last_modified_timestamp, rs.last_polled_timestamp,
		rs.input_definition, rs.output_definition, rs.record_type`

	selectRunSetQuery = `SELECT ` + runSetColumns + `
	 FROM run_sets rs
	 WHERE rs.run_set_id = $1`

	// Counters are derived from child runs on every read.
	runSetSummaryColumns = runSetColumns + `,
		COUNT(r.run_id),
		COUNT(r.run_id) FILTER (WHERE r.status IN ('COMPLETE','EXECUTOR_ERROR','SYSTEM_ERROR','ABORTED')),
		COUNT(r.run_id) FILTER (WHERE r.status IN ('EXECUTOR_ERROR','SYSTEM_ERROR'))`
)

func NewRunSetStore(db DB) *RunSetStore {
	if db == nil {
		return nil
	}
	return &RunSetStore{db: db}
}

func (s *RunSetStore) CreateRunSet(ctx context.Context, runSet domain.RunSet) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run set store not initialized")
	}
	if err := runSet.Validate(); err != nil {
		return 0, err
	}
	inputsJSON, err := params.MarshalInputDefinitions(runSet.InputDefinitions)
	if err != nil {
		return 0, fmt.Errorf("encode input definitions: %w", err)
	}
	outputsJSON, err := params.MarshalOutputDefinitions(runSet.OutputDefinitions)
	if err != nil {
		return 0, fmt.Errorf("encode output definitions: %w", err)
	}
	status := runSet.Status
	if status == "" {
		status = domain.RunSetStateUnknown
	}
	submittedAt := normalizeTime(runSet.SubmittedAt)
	res, err := s.db.ExecContext(
		ctx,
		insertRunSetQuery,
		strings.TrimSpace(runSet.ID),
		strings.TrimSpace(runSet.MethodVersionID),
		strings.TrimSpace(runSet.Name),
		nullIfEmpty(runSet.Description),
		runSet.IsTemplate,
		string(status),
		submittedAt,
		orTime(runSet.LastModifiedAt, submittedAt),
		orTime(runSet.LastPolledAt, submittedAt),
		inputsJSON,
		outputsJSON,
		strings.TrimSpace(runSet.RecordType),
	)
	if err != nil {
		return 0, mapWriteError("insert run set", err)
	}
	return rowsAffected("insert run set", res)
}

func (s *RunSetStore) GetRunSet(ctx context.Context, id string) (domain.RunSet, error) {
	if s == nil || s.db == nil {
		return domain.RunSet{}, fmt.Errorf("run set store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.RunSet{}, fmt.Errorf("run set id is required")
	}
	var raw runSetRow
	if err := s.db.QueryRowContext(ctx, selectRunSetQuery, id).Scan(raw.dest()...); err != nil {
		return domain.RunSet{}, handleNotFound(err)
	}
	return raw.decode()
}

func (s *RunSetStore) ListRunSets(ctx context.Context, filter repo.RunSetFilter) ([]repo.RunSetSummary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run set store not initialized")
	}
	args := make([]any, 0, 2)
	query := `SELECT ` + runSetSummaryColumns + `
		FROM run_sets rs
		LEFT JOIN runs r ON r.run_set_id = rs.run_set_id`
	if id := strings.TrimSpace(filter.MethodVersionID); id != "" {
		args = append(args, id)
		query += fmt.Sprintf(" WHERE rs.method_version_id = $%d", len(args))
	}
	query += " GROUP BY rs.run_set_id ORDER BY rs.submission_timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run sets: %w", err)
	}
	defer rows.Close()

	out := make([]repo.RunSetSummary, 0)
	for rows.Next() {
		var raw runSetRow
		var summary repo.RunSetSummary
		dest := append(raw.dest(), &summary.RunCount, &summary.TerminalCount, &summary.ErrorCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan run set: %w", err)
		}
		runSet, err := raw.decode()
		if err != nil {
			return nil, err
		}
		summary.RunSet = runSet
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run sets: %w", err)
	}
	return out, nil
}

// runSetRow holds the raw columns of runSetColumns before decoding.
type runSetRow struct {
	runSet      domain.RunSet
	description sql.NullString
	status      string
	inputsJSON  []byte
	outputsJSON []byte
}

func (r *runSetRow) dest() []any {
	return []any{
		&r.runSet.ID, &r.runSet.MethodVersionID, &r.runSet.Name, &r.description, &r.runSet.IsTemplate, &r.status,
		&r.runSet.SubmittedAt, &r.runSet.LastModifiedAt, &r.runSet.LastPolledAt,
		&r.inputsJSON, &r.outputsJSON, &r.runSet.RecordType,
	}
}

func (r *runSetRow) decode() (domain.RunSet, error) {
	runSet := r.runSet
	runSet.Description = r.description.String
	runSet.Status = domain.NormalizeRunSetState(r.status)
	runSet.SubmittedAt = runSet.SubmittedAt.UTC()
	runSet.LastModifiedAt = runSet.LastModifiedAt.UTC()
	runSet.LastPolledAt = runSet.LastPolledAt.UTC()
	inputs, err := params.UnmarshalInputDefinitions(r.inputsJSON)
	if err != nil {
		return domain.RunSet{}, fmt.Errorf("decode input definitions for run set %s: %w", runSet.ID, err)
	}
	outputs, err := params.UnmarshalOutputDefinitions(r.outputsJSON)
	if err != nil {
		return domain.RunSet{}, fmt.Errorf("decode output definitions for run set %s: %w", runSet.ID, err)
	}
	runSet.InputDefinitions = inputs
	runSet.OutputDefinitions = outputs
	return runSet, nil
}
