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

type MethodStore struct {
	db DB
}

const (
	insertMethodQuery = `INSERT INTO methods (
		method_id,
		name,
		description,
		created_at,
		method_source,
		method_source_url
	) VALUES ($1,$2,$3,$4,$5,$6)`

	methodColumns = `method_id, name, description, created_at, last_run_set_id, last_run_at, method_source, method_source_url`

	selectMethodQuery = `SELECT ` + methodColumns + `
	 FROM methods
	 WHERE method_id = $1`

	insertMethodVersionQuery = `INSERT INTO method_versions (
		method_version_id,
		method_id,
		name,
		description,
		created_at,
		url
	) VALUES ($1,$2,$3,$4,$5,$6)`

	methodVersionColumns = `method_version_id, method_id, name, description, created_at, last_run_set_id, last_run_at, url`

	selectMethodVersionQuery = `SELECT ` + methodVersionColumns + `
	 FROM method_versions
	 WHERE method_version_id = $1`

	listMethodVersionsQuery = `SELECT ` + methodVersionColumns + `
	 FROM method_versions
	 WHERE method_id = $1
	 ORDER BY created_at DESC, name ASC`

	setMethodVersionLastRunSetQuery = `UPDATE method_versions
	 SET last_run_set_id = $1, last_run_at = $2
	 WHERE method_version_id = $3`

	setMethodLastRunSetQuery = `UPDATE methods
	 SET last_run_set_id = $1, last_run_at = $2
	 WHERE method_id = (SELECT method_id FROM method_versions WHERE method_version_id = $3)`
)

func NewMethodStore(db DB) *MethodStore {
	if db == nil {
		return nil
	}
	return &MethodStore{db: db}
}

func (s *MethodStore) CreateMethod(ctx context.Context, method domain.Method) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("method store not initialized")
	}
	if err := method.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertMethodQuery,
		strings.TrimSpace(method.ID),
		strings.TrimSpace(method.Name),
		nullIfEmpty(method.Description),
		normalizeTime(method.CreatedAt),
		strings.TrimSpace(method.Source),
		nullIfEmpty(method.SourceURL),
	)
	if err != nil {
		return mapWriteError("insert method", err)
	}
	return nil
}

func (s *MethodStore) GetMethod(ctx context.Context, id string) (domain.Method, error) {
	if s == nil || s.db == nil {
		return domain.Method{}, fmt.Errorf("method store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Method{}, fmt.Errorf("method id is required")
	}
	method, err := scanMethod(s.db.QueryRowContext(ctx, selectMethodQuery, id))
	if err != nil {
		return domain.Method{}, handleNotFound(err)
	}
	return method, nil
}

func (s *MethodStore) ListMethods(ctx context.Context, filter repo.MethodFilter) ([]domain.Method, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("method store not initialized")
	}
	args := make([]any, 0, 2)
	query := `SELECT ` + methodColumns + ` FROM methods`
	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, name)
		query += fmt.Sprintf(" WHERE name = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, name ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	defer rows.Close()

	methods := make([]domain.Method, 0)
	for rows.Next() {
		method, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		methods = append(methods, method)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	return methods, nil
}

func (s *MethodStore) CreateMethodVersion(ctx context.Context, version domain.MethodVersion) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("method store not initialized")
	}
	if err := version.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertMethodVersionQuery,
		strings.TrimSpace(version.ID),
		strings.TrimSpace(version.MethodID),
		strings.TrimSpace(version.Name),
		nullIfEmpty(version.Description),
		normalizeTime(version.CreatedAt),
		strings.TrimSpace(version.URL),
	)
	if err != nil {
		return mapWriteError("insert method version", err)
	}
	return nil
}

func (s *MethodStore) GetMethodVersion(ctx context.Context, id string) (domain.MethodVersion, error) {
	if s == nil || s.db == nil {
		return domain.MethodVersion{}, fmt.Errorf("method store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.MethodVersion{}, fmt.Errorf("method version id is required")
	}
	version, err := scanMethodVersion(s.db.QueryRowContext(ctx, selectMethodVersionQuery, id))
	if err != nil {
		return domain.MethodVersion{}, handleNotFound(err)
	}
	return version, nil
}

func (s *MethodStore) ListMethodVersions(ctx context.Context, methodID string) ([]domain.MethodVersion, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("method store not initialized")
	}
	methodID = strings.TrimSpace(methodID)
	if methodID == "" {
		return nil, fmt.Errorf("method id is required")
	}
	rows, err := s.db.QueryContext(ctx, listMethodVersionsQuery, methodID)
	if err != nil {
		return nil, fmt.Errorf("list method versions: %w", err)
	}
	defer rows.Close()

	versions := make([]domain.MethodVersion, 0)
	for rows.Next() {
		version, err := scanMethodVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan method version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list method versions: %w", err)
	}
	return versions, nil
}

func (s *MethodStore) SetLastRunSet(ctx context.Context, methodVersionID, runSetID string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("method store not initialized")
	}
	methodVersionID = strings.TrimSpace(methodVersionID)
	if methodVersionID == "" {
		return fmt.Errorf("method version id is required")
	}
	runSetID = strings.TrimSpace(runSetID)
	if runSetID == "" {
		return fmt.Errorf("run set id is required")
	}
	at = normalizeTime(at)

	res, err := s.db.ExecContext(ctx, setMethodVersionLastRunSetQuery, runSetID, at, methodVersionID)
	if err != nil {
		return fmt.Errorf("update method version last run set: %w", err)
	}
	n, err := rowsAffected("update method version last run set", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, setMethodLastRunSetQuery, runSetID, at, methodVersionID); err != nil {
		return fmt.Errorf("update method last run set: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMethod(row rowScanner) (domain.Method, error) {
	var method domain.Method
	var description sql.NullString
	var lastRunSetID sql.NullString
	var lastRunAt sql.NullTime
	var sourceURL sql.NullString
	if err := row.Scan(&method.ID, &method.Name, &description, &method.CreatedAt, &lastRunSetID, &lastRunAt, &method.Source, &sourceURL); err != nil {
		return domain.Method{}, err
	}
	method.Description = description.String
	method.LastRunSetID = lastRunSetID.String
	method.LastRunAt = timePtr(lastRunAt)
	method.SourceURL = sourceURL.String
	method.CreatedAt = method.CreatedAt.UTC()
	return method, nil
}

func scanMethodVersion(row rowScanner) (domain.MethodVersion, error) {
	var version domain.MethodVersion
	var description sql.NullString
	var lastRunSetID sql.NullString
	var lastRunAt sql.NullTime
	if err := row.Scan(&version.ID, &version.MethodID, &version.Name, &description, &version.CreatedAt, &lastRunSetID, &lastRunAt, &version.URL); err != nil {
		return domain.MethodVersion{}, err
	}
	version.Description = description.String
	version.LastRunSetID = lastRunSetID.String
	version.LastRunAt = timePtr(lastRunAt)
	version.CreatedAt = version.CreatedAt.UTC()
	return version, nil
}
