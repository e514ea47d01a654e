package runsets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/execution/inputs"
	"github.com/animus-labs/cbas-go/internal/platform/auditlog"
	"github.com/animus-labs/cbas-go/internal/platform/metrics"
	"github.com/animus-labs/cbas-go/internal/repo"
)

// RecordReader fetches one record from the record store.
type RecordReader interface {
	GetRecord(ctx context.Context, recordType, recordID string) (domain.Record, error)
}

// Engine submits one workflow execution and returns the engine-assigned id.
type Engine interface {
	SubmitWorkflow(ctx context.Context, workflowURL string, params []byte) (string, error)
}

// Auditor appends an audit event.
type Auditor interface {
	Record(ctx context.Context, event auditlog.Event) (int64, error)
}

type Dependencies struct {
	Methods repo.MethodRepository
	RunSets repo.RunSetRepository
	Runs    repo.RunRepository
	Records RecordReader
	Engine  Engine

	// Optional.
	Audit   Auditor
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

type Service struct {
	cfg     Config
	methods repo.MethodRepository
	runSets repo.RunSetRepository
	runs    repo.RunRepository
	records RecordReader
	engine  Engine
	audit   Auditor
	metrics *metrics.Recorder
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

type RunResult struct {
	RunID  string
	State  domain.RunStatus
	Errors string
}

type Response struct {
	RunSetID string
	State    domain.RunSetState
	Runs     []RunResult
}

func New(cfg Config, deps Dependencies) *Service {
	if deps.Methods == nil || deps.RunSets == nil || deps.Runs == nil || deps.Records == nil || deps.Engine == nil {
		return nil
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:     cfg,
		methods: deps.Methods,
		runSets: deps.RunSets,
		runs:    deps.Runs,
		records: deps.Records,
		engine:  deps.Engine,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  logger.With("component", "run_sets"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Submit validates, fetches, and submits one batch.
//
// A *RequestError or *FetchError means nothing was persisted. Any other error
// means the run set could not be created. Once the run set exists, per-record
// failures are reported in the response and never returned as an error.
func (s *Service) Submit(ctx context.Context, req Request) (Response, error) {
	if s == nil {
		return Response{}, errors.New("run set service not initialized")
	}
	if err := ValidateRequest(req, s.cfg); err != nil {
		s.logger.Warn("run set request rejected", "request_id", req.RequestID, "error", err)
		return Response{}, err
	}
	s.metrics.RecordBatch(ctx, len(req.RecordIDs))

	version, err := s.resolveMethodVersion(ctx, req)
	if err != nil {
		return Response{}, err
	}

	records, err := s.fetchRecords(ctx, req.RecordType, req.RecordIDs)
	if err != nil {
		s.logger.Warn("run set record fetch failed", "request_id", req.RequestID, "error", err)
		return Response{}, err
	}

	if version.ID == "" {
		version, err = s.findOrCreateMethodVersion(ctx, req.WorkflowURL)
		if err != nil {
			return Response{}, err
		}
	}

	now := s.now().UTC()
	runSet := domain.RunSet{
		ID:                s.newID(),
		MethodVersionID:   version.ID,
		Name:              req.Name,
		Description:       req.Description,
		Status:            domain.RunSetStateUnknown,
		SubmittedAt:       now,
		LastModifiedAt:    now,
		LastPolledAt:      now,
		InputDefinitions:  req.InputDefinitions,
		OutputDefinitions: req.OutputDefinitions,
		RecordType:        req.RecordType,
	}
	if strings.TrimSpace(runSet.Name) == "" {
		runSet.Name = fmt.Sprintf("%s-%s", req.RecordType, now.Format("2006-01-02T15:04:05"))
	}
	created, err := s.runSets.CreateRunSet(ctx, runSet)
	if err != nil {
		return Response{}, fmt.Errorf("create run set: %w", err)
	}
	if created != 1 {
		return Response{}, fmt.Errorf("create run set: expected 1 row, got %d", created)
	}

	results := make([]RunResult, 0, len(records))
	errored := 0
	for _, record := range records {
		result := s.submitRun(ctx, runSet, version.URL, record)
		if result.State.InErrorState() {
			errored++
		}
		s.metrics.RecordRunSubmitted(ctx, string(result.State))
		results = append(results, result)
	}

	state := domain.RunSetStateRunning
	if errored == len(results) {
		state = domain.RunSetStateError
	}

	if err := s.methods.SetLastRunSet(ctx, version.ID, runSet.ID, now); err != nil {
		s.logger.Warn("update method last run set failed", "method_version_id", version.ID, "run_set_id", runSet.ID, "error", err)
	}
	s.recordAudit(ctx, auditlog.RunSetSubmission{
		RunSetID:        runSet.ID,
		MethodVersionID: version.ID,
		RecordType:      req.RecordType,
		RecordCount:     len(results),
		FailedCount:     errored,
		State:           string(state),
		RequestID:       req.RequestID,
		SubmittedAt:     now,
	})

	s.logger.Info("run set submitted",
		"run_set_id", runSet.ID,
		"method_version_id", version.ID,
		"records", len(results),
		"failed", errored,
		"state", state,
	)
	return Response{RunSetID: runSet.ID, State: state, Runs: results}, nil
}

func (s *Service) resolveMethodVersion(ctx context.Context, req Request) (domain.MethodVersion, error) {
	id := strings.TrimSpace(req.MethodVersionID)
	if id == "" {
		return domain.MethodVersion{}, nil
	}
	version, err := s.methods.GetMethodVersion(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.MethodVersion{}, &RequestError{Issues: []string{fmt.Sprintf("Method version %s not found.", id)}}
	}
	if err != nil {
		return domain.MethodVersion{}, fmt.Errorf("get method version: %w", err)
	}
	return version, nil
}

func (s *Service) fetchRecords(ctx context.Context, recordType string, ids []string) ([]domain.Record, error) {
	records := make([]domain.Record, 0, len(ids))
	failures := make(map[string]string)
	for _, id := range ids {
		record, err := s.records.GetRecord(ctx, recordType, id)
		if err != nil {
			failures[id] = err.Error()
			continue
		}
		record.ID = id
		records = append(records, record)
	}
	if len(failures) > 0 {
		return nil, &FetchError{Failures: failures}
	}
	return records, nil
}

// findOrCreateMethodVersion returns the version registered for workflowURL,
// creating the method and version on first use.
func (s *Service) findOrCreateMethodVersion(ctx context.Context, workflowURL string) (domain.MethodVersion, error) {
	workflowURL = strings.TrimSpace(workflowURL)
	version, found, err := s.lookupMethodVersion(ctx, workflowURL)
	if err != nil || found {
		return version, err
	}

	now := s.now().UTC()
	method := domain.Method{
		ID:        s.newID(),
		Name:      workflowURL,
		CreatedAt: now,
		Source:    methodSource(workflowURL),
		SourceURL: workflowURL,
	}
	methodID := method.ID
	if createErr := s.methods.CreateMethod(ctx, method); createErr != nil {
		if !errors.Is(createErr, repo.ErrConflict) {
			return domain.MethodVersion{}, fmt.Errorf("create method: %w", createErr)
		}
		existing, err := s.methods.ListMethods(ctx, repo.MethodFilter{Name: workflowURL, Limit: 1})
		if err != nil {
			return domain.MethodVersion{}, fmt.Errorf("list methods: %w", err)
		}
		if len(existing) == 0 {
			return domain.MethodVersion{}, fmt.Errorf("create method: %w", createErr)
		}
		methodID = existing[0].ID
	}

	version = domain.MethodVersion{
		ID:        s.newID(),
		MethodID:  methodID,
		Name:      "1.0",
		CreatedAt: now,
		URL:       workflowURL,
	}
	if err := s.methods.CreateMethodVersion(ctx, version); err != nil {
		if !errors.Is(err, repo.ErrConflict) {
			return domain.MethodVersion{}, fmt.Errorf("create method version: %w", err)
		}
		version, found, err = s.lookupMethodVersion(ctx, workflowURL)
		if err != nil {
			return domain.MethodVersion{}, err
		}
		if !found {
			return domain.MethodVersion{}, fmt.Errorf("create method version: %w", repo.ErrConflict)
		}
	}
	return version, nil
}

func (s *Service) lookupMethodVersion(ctx context.Context, workflowURL string) (domain.MethodVersion, bool, error) {
	methods, err := s.methods.ListMethods(ctx, repo.MethodFilter{Name: workflowURL, Limit: 1})
	if err != nil {
		return domain.MethodVersion{}, false, fmt.Errorf("list methods: %w", err)
	}
	if len(methods) == 0 {
		return domain.MethodVersion{}, false, nil
	}
	versions, err := s.methods.ListMethodVersions(ctx, methods[0].ID)
	if err != nil {
		return domain.MethodVersion{}, false, fmt.Errorf("list method versions: %w", err)
	}
	for _, version := range versions {
		if version.URL == workflowURL {
			return version, true, nil
		}
	}
	return domain.MethodVersion{}, false, nil
}

func (s *Service) submitRun(ctx context.Context, runSet domain.RunSet, workflowURL string, record domain.Record) RunResult {
	now := s.now().UTC()
	run := domain.Run{
		ID:             s.newID(),
		RunSetID:       runSet.ID,
		RecordID:       record.ID,
		SubmittedAt:    now,
		LastModifiedAt: now,
		LastPolledAt:   now,
		Status:         domain.RunStatusUnknown,
	}

	params := inputs.BuildInputs(runSet.InputDefinitions, record)
	payload, err := inputs.InputsToJSON(params)
	if err != nil {
		run.Status = domain.RunStatusSystemError
		run.ErrorMessages = fmt.Sprintf("Failed to convert inputs object to JSON for record %s: %v", record.ID, err)
	} else {
		engineID, err := s.engine.SubmitWorkflow(ctx, workflowURL, payload)
		if err != nil {
			run.Status = domain.RunStatusSystemError
			run.ErrorMessages = fmt.Sprintf("Engine submission failed for record %s: %v", record.ID, err)
		} else {
			run.EngineID = engineID
		}
	}
	if run.ErrorMessages != "" {
		s.logger.Warn("run submission failed", "run_set_id", runSet.ID, "record_id", record.ID, "error", run.ErrorMessages)
	}

	result := RunResult{RunID: run.ID, State: run.Status, Errors: run.ErrorMessages}
	inserted, err := s.runs.CreateRun(ctx, run)
	if err != nil || inserted != 1 {
		anomaly := fmt.Sprintf("Run %s for record %s failed to create: expected 1 row, got %d", run.ID, record.ID, inserted)
		if err != nil {
			anomaly = fmt.Sprintf("Run %s for record %s failed to create: %v", run.ID, record.ID, err)
		}
		s.logger.Error("run insert anomaly",
			"run_id", run.ID,
			"run_set_id", runSet.ID,
			"record_id", record.ID,
			"engine_id", run.EngineID,
			"rows", inserted,
			"error", err,
		)
		result.Errors = appendError(result.Errors, anomaly)
	}
	return result
}

func (s *Service) recordAudit(ctx context.Context, submission auditlog.RunSetSubmission) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(ctx, auditlog.RunSetSubmittedEvent(submission)); err != nil {
		s.logger.Warn("audit append failed", "run_set_id", submission.RunSetID, "error", err)
	}
}

func appendError(existing, message string) string {
	if existing == "" {
		return message
	}
	return existing + "; " + message
}

func methodSource(workflowURL string) string {
	parsed, err := url.Parse(workflowURL)
	if err != nil {
		return "Other"
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "github"):
		return "GitHub"
	case strings.Contains(host, "dockstore"):
		return "Dockstore"
	default:
		return "Other"
	}
}
