package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/execution/params"
	"github.com/animus-labs/cbas-go/internal/execution/state"
	"github.com/animus-labs/cbas-go/internal/platform/httpserver"
	"github.com/animus-labs/cbas-go/internal/platform/requestid"
	"github.com/animus-labs/cbas-go/internal/repo"
	"github.com/animus-labs/cbas-go/internal/service/methods"
	"github.com/animus-labs/cbas-go/internal/service/polling"
	"github.com/animus-labs/cbas-go/internal/service/runsets"
)

const maxRequestBodyBytes = 10 << 20

type runSetSubmitter interface {
	Submit(ctx context.Context, req runsets.Request) (runsets.Response, error)
}

type runUpdater interface {
	UpdateRuns(ctx context.Context, runs []domain.Run) polling.Summary
}

type methodCatalog interface {
	List(ctx context.Context, showVersions bool, limit int) ([]methods.MethodWithVersions, error)
	GetVersion(ctx context.Context, methodVersionID string) (methods.MethodWithVersions, error)
}

type batchAPI struct {
	logger    *slog.Logger
	submitter runSetSubmitter
	runSets   repo.RunSetRepository
	runs      repo.RunRepository
	updater   runUpdater
	methods   methodCatalog
	validator *requestValidator
}

func (api *batchAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/batch/v1/run_sets", api.handleSubmitRunSet)
	mux.HandleFunc("GET /api/batch/v1/run_sets", api.handleListRunSets)
	mux.HandleFunc("GET /api/batch/v1/runs", api.handleListRuns)
	mux.HandleFunc("GET /api/batch/v1/methods", api.handleListMethods)
}

type recordsPayload struct {
	RecordType string   `json:"record_type"`
	RecordIDs  []string `json:"record_ids"`
}

type runSetRequestPayload struct {
	MethodVersionID   string          `json:"method_version_id"`
	WorkflowURL       string          `json:"workflow_url"`
	RunSetName        string          `json:"run_set_name"`
	RunSetDescription string          `json:"run_set_description"`
	InputDefinitions  json.RawMessage `json:"workflow_input_definitions"`
	OutputDefinitions json.RawMessage `json:"workflow_output_definitions"`
	Records           recordsPayload  `json:"wds_records"`
}

type runStateResponse struct {
	RunID  string `json:"run_id"`
	State  string `json:"state"`
	Errors string `json:"errors,omitempty"`
}

type runSetStateResponse struct {
	RunSetID string             `json:"run_set_id"`
	State    string             `json:"state"`
	Runs     []runStateResponse `json:"runs"`
}

func (api *batchAPI) handleSubmitRunSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_body", "")
		return
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_json", "")
		return
	}
	if err := api.validator.ValidateRunSetRequest(generic); err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var payload runSetRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_json", "")
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.RequestID, _ = requestid.FromContext(r.Context())

	resp, err := api.submitter.Submit(r.Context(), req)
	if err != nil {
		var reqErr *runsets.RequestError
		var fetchErr *runsets.FetchError
		switch {
		case errors.As(err, &reqErr), errors.As(err, &fetchErr):
			httpserver.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		default:
			api.logger.Error("run set submission failed", "error", err)
			httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}

	out := runSetStateResponse{RunSetID: resp.RunSetID, State: string(resp.State), Runs: make([]runStateResponse, 0, len(resp.Runs))}
	for _, run := range resp.Runs {
		out.Runs = append(out.Runs, runStateResponse{RunID: run.RunID, State: string(run.State), Errors: run.Errors})
	}
	httpserver.WriteJSON(w, http.StatusOK, out)
}

func (p runSetRequestPayload) toRequest() (runsets.Request, error) {
	req := runsets.Request{
		Name:            strings.TrimSpace(p.RunSetName),
		Description:     p.RunSetDescription,
		MethodVersionID: strings.TrimSpace(p.MethodVersionID),
		WorkflowURL:     strings.TrimSpace(p.WorkflowURL),
		RecordType:      strings.TrimSpace(p.Records.RecordType),
		RecordIDs:       p.Records.RecordIDs,
	}
	if len(p.InputDefinitions) > 0 {
		defs, err := params.UnmarshalInputDefinitions(p.InputDefinitions)
		if err != nil {
			return runsets.Request{}, err
		}
		req.InputDefinitions = defs
	}
	if len(p.OutputDefinitions) > 0 {
		defs, err := params.UnmarshalOutputDefinitions(p.OutputDefinitions)
		if err != nil {
			return runsets.Request{}, err
		}
		req.OutputDefinitions = defs
	}
	return req, nil
}

type runSetSummaryResponse struct {
	RunSetID          string    `json:"run_set_id"`
	MethodVersionID   string    `json:"method_version_id"`
	Name              string    `json:"run_set_name"`
	Description       string    `json:"run_set_description,omitempty"`
	IsTemplate        bool      `json:"is_template"`
	State             string    `json:"state"`
	RecordType        string    `json:"record_type"`
	SubmittedAt       time.Time `json:"submission_timestamp"`
	LastModifiedAt    time.Time `json:"last_modified_timestamp"`
	RunCount          int       `json:"run_count"`
	ErrorCount        int       `json:"error_count"`
	TerminalRunsCount int       `json:"terminal_run_count"`
}

func (api *batchAPI) handleListRunSets(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	summaries, err := api.runSets.ListRunSets(r.Context(), repo.RunSetFilter{
		MethodVersionID: strings.TrimSpace(r.URL.Query().Get("method_version_id")),
		Limit:           limit,
	})
	if err != nil {
		api.logger.Error("list run sets failed", "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	out := make([]runSetSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		rs := summary.RunSet
		derived := state.StateFromCounts(state.RunCounts{
			Total:    summary.RunCount,
			Terminal: summary.TerminalCount,
			Errored:  summary.ErrorCount,
		})
		out = append(out, runSetSummaryResponse{
			RunSetID:          rs.ID,
			MethodVersionID:   rs.MethodVersionID,
			Name:              rs.Name,
			Description:       rs.Description,
			IsTemplate:        rs.IsTemplate,
			State:             string(derived),
			RecordType:        rs.RecordType,
			SubmittedAt:       rs.SubmittedAt,
			LastModifiedAt:    rs.LastModifiedAt,
			RunCount:          summary.RunCount,
			ErrorCount:        summary.ErrorCount,
			TerminalRunsCount: summary.TerminalCount,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"run_sets": out, "fully_updated": true})
}

type runResponse struct {
	RunID          string    `json:"run_id"`
	EngineID       string    `json:"engine_id,omitempty"`
	RunSetID       string    `json:"run_set_id"`
	RecordID       string    `json:"record_id"`
	State          string    `json:"state"`
	SubmittedAt    time.Time `json:"submission_date"`
	LastModifiedAt time.Time `json:"last_modified_timestamp"`
	LastPolledAt   time.Time `json:"last_polled_timestamp"`
	ErrorMessages  string    `json:"error_messages,omitempty"`
}

func (api *batchAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := api.runs.ListRuns(r.Context(), repo.RunFilter{
		RunSetID: strings.TrimSpace(r.URL.Query().Get("run_set_id")),
		Limit:    limit,
	})
	if err != nil {
		api.logger.Error("list runs failed", "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	fullyUpdated := true
	if api.updater != nil {
		summary := api.updater.UpdateRuns(r.Context(), runs)
		runs = summary.Runs
		fullyUpdated = summary.Skipped == 0
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			RunID:          run.ID,
			EngineID:       run.EngineID,
			RunSetID:       run.RunSetID,
			RecordID:       run.RecordID,
			State:          string(run.Status),
			SubmittedAt:    run.SubmittedAt,
			LastModifiedAt: run.LastModifiedAt,
			LastPolledAt:   run.LastPolledAt,
			ErrorMessages:  run.ErrorMessages,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"runs": out, "fully_updated": fullyUpdated})
}

type lastRunResponse struct {
	RunSetID  string     `json:"run_set_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type methodVersionResponse struct {
	MethodVersionID string          `json:"method_version_id"`
	MethodID        string          `json:"method_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Created         time.Time       `json:"created"`
	URL             string          `json:"url"`
	LastRun         lastRunResponse `json:"last_run"`
}

type methodResponse struct {
	MethodID    string                  `json:"method_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Source      string                  `json:"source"`
	SourceURL   string                  `json:"source_url,omitempty"`
	Created     time.Time               `json:"created"`
	LastRun     lastRunResponse         `json:"last_run"`
	Versions    []methodVersionResponse `json:"method_versions,omitempty"`
}

func (api *batchAPI) handleListMethods(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	showVersions := true
	if raw := strings.TrimSpace(query.Get("show_versions")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_show_versions", "")
			return
		}
		showVersions = parsed
	}

	var entries []methods.MethodWithVersions
	if versionID := strings.TrimSpace(query.Get("method_version_id")); versionID != "" {
		entry, err := api.methods.GetVersion(r.Context(), versionID)
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.WriteError(w, r, http.StatusNotFound, "not_found", "")
			return
		}
		if err != nil {
			api.logger.Error("get method version failed", "method_version_id", versionID, "error", err)
			httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
			return
		}
		entries = []methods.MethodWithVersions{entry}
	} else {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		list, err := api.methods.List(r.Context(), showVersions, limit)
		if err != nil {
			api.logger.Error("list methods failed", "error", err)
			httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
			return
		}
		entries = list
	}

	out := make([]methodResponse, 0, len(entries))
	for _, entry := range entries {
		m := entry.Method
		item := methodResponse{
			MethodID:    m.ID,
			Name:        m.Name,
			Description: m.Description,
			Source:      m.Source,
			SourceURL:   m.SourceURL,
			Created:     m.CreatedAt,
			LastRun:     lastRunResponse{RunSetID: m.LastRunSetID, Timestamp: m.LastRunAt},
		}
		for _, v := range entry.Versions {
			item.Versions = append(item.Versions, methodVersionResponse{
				MethodVersionID: v.ID,
				MethodID:        v.MethodID,
				Name:            v.Name,
				Description:     v.Description,
				Created:         v.CreatedAt,
				URL:             v.URL,
				LastRun:         lastRunResponse{RunSetID: v.LastRunSetID, Timestamp: v.LastRunAt},
			})
		}
		out = append(out, item)
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"methods": out})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_limit", "")
		return 0, false
	}
	return limit, true
}
