package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/repo"
)

type RunStore struct {
	db DB
}

const (
	insertRunQuery = `INSERT INTO runs (
		run_id,
		engine_id,
		run_set_id,
		record_id,
		submission_timestamp,
		status,
		last_modified_timestamp,
		last_polled_timestamp,
		error_messages
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	runColumns = `r.run_id, r.engine_id, r.run_set_id, r.record_id, r.submission_timestamp, r.status,
		r.last_modified_timestamp, r.last_polled_timestamp, r.error_messages`

	selectRunQuery = `SELECT ` + runColumns + `, ` + runSetColumns + `
	 FROM runs r
	 JOIN run_sets rs ON rs.run_set_id = r.run_set_id
	 WHERE r.run_id = $1`

	terminalStatusList = `('COMPLETE','EXECUTOR_ERROR','SYSTEM_ERROR','ABORTED')`

	updateRunStatusQuery = `UPDATE runs
	 SET status = $1, last_modified_timestamp = $2, last_polled_timestamp = $2
	 WHERE run_id = $3`

	updateRunStatusWithErrorQuery = `UPDATE runs
	 SET status = $1, last_modified_timestamp = $2, last_polled_timestamp = $2, error_messages = $3
	 WHERE run_id = $4`

	updateRunLastPolledQuery = `UPDATE runs
	 SET last_polled_timestamp = $1
	 WHERE run_id = $2`
)

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return 0, err
	}
	submittedAt := normalizeTime(run.SubmittedAt)
	res, err := s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(run.ID),
		nullIfEmpty(run.EngineID),
		strings.TrimSpace(run.RunSetID),
		strings.TrimSpace(run.RecordID),
		submittedAt,
		string(run.Status),
		orTime(run.LastModifiedAt, submittedAt),
		orTime(run.LastPolledAt, submittedAt),
		nullIfEmpty(run.ErrorMessages),
	)
	if err != nil {
		return 0, mapWriteError("insert run", err)
	}
	return rowsAffected("insert run", res)
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	var raw runRow
	if err := s.db.QueryRowContext(ctx, selectRunQuery, id).Scan(raw.dest()...); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	return raw.decode()
}

// ListRuns returns runs joined with their run set, oldest submission first.
func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.RunSetID) != "" {
		args = append(args, strings.TrimSpace(filter.RunSetID))
		clauses = append(clauses, fmt.Sprintf("r.run_set_id = $%d", len(args)))
	}
	if filter.NonTerminalOnly {
		clauses = append(clauses, "r.status NOT IN "+terminalStatusList)
	}

	query := `SELECT ` + runColumns + `, ` + runSetColumns + `
		FROM runs r
		JOIN run_sets rs ON rs.run_set_id = r.run_set_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY r.submission_timestamp ASC, r.run_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		var raw runRow
		if err := rows.Scan(raw.dest()...); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run, err := raw.decode()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, modifiedAt time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run store not initialized")
	}
	id, err := requireRunUpdate(id, status)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, updateRunStatusQuery, string(status), normalizeTime(modifiedAt), id)
	if err != nil {
		return 0, fmt.Errorf("update run status: %w", err)
	}
	return rowsAffected("update run status", res)
}

func (s *RunStore) UpdateRunStatusWithError(ctx context.Context, id string, status domain.RunStatus, modifiedAt time.Time, errorMessages string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run store not initialized")
	}
	id, err := requireRunUpdate(id, status)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, updateRunStatusWithErrorQuery, string(status), normalizeTime(modifiedAt), nullIfEmpty(errorMessages), id)
	if err != nil {
		return 0, fmt.Errorf("update run status: %w", err)
	}
	return rowsAffected("update run status", res)
}

func (s *RunStore) UpdateLastPolledTimestamp(ctx context.Context, id string, polledAt time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(ctx, updateRunLastPolledQuery, normalizeTime(polledAt), id)
	if err != nil {
		return 0, fmt.Errorf("update run last polled: %w", err)
	}
	return rowsAffected("update run last polled", res)
}

func requireRunUpdate(id string, status domain.RunStatus) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("run id is required")
	}
	if _, ok := domain.ParseRunStatus(string(status)); !ok || strings.TrimSpace(string(status)) == "" {
		return "", fmt.Errorf("run status is invalid")
	}
	return id, nil
}

type runRow struct {
	run           domain.Run
	engineID      sql.NullString
	status        string
	errorMessages sql.NullString
	runSet        runSetRow
}

func (r *runRow) dest() []any {
	dest := []any{
		&r.run.ID, &r.engineID, &r.run.RunSetID, &r.run.RecordID, &r.run.SubmittedAt, &r.status,
		&r.run.LastModifiedAt, &r.run.LastPolledAt, &r.errorMessages,
	}
	return append(dest, r.runSet.dest()...)
}

func (r *runRow) decode() (domain.Run, error) {
	run := r.run
	run.EngineID = r.engineID.String
	run.ErrorMessages = r.errorMessages.String
	run.SubmittedAt = run.SubmittedAt.UTC()
	run.LastModifiedAt = run.LastModifiedAt.UTC()
	run.LastPolledAt = run.LastPolledAt.UTC()
	status, ok := domain.ParseRunStatus(r.status)
	if !ok {
		return domain.Run{}, fmt.Errorf("run %s has invalid status %q", run.ID, r.status)
	}
	run.Status = status
	runSet, err := r.runSet.decode()
	if err != nil {
		return domain.Run{}, err
	}
	run.RunSet = &runSet
	return run, nil
}
