package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/platform/httpserver"
	"github.com/animus-labs/cbas-go/internal/platform/requestid"
	"github.com/animus-labs/cbas-go/internal/repo"
	"github.com/animus-labs/cbas-go/internal/service/methods"
	"github.com/animus-labs/cbas-go/internal/service/polling"
	"github.com/animus-labs/cbas-go/internal/service/runsets"
)

type fakeSubmitter struct {
	got  runsets.Request
	resp runsets.Response
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req runsets.Request) (runsets.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeRunSets struct {
	repo.RunSetRepository
	summaries []repo.RunSetSummary
	filter    repo.RunSetFilter
}

func (f *fakeRunSets) ListRunSets(_ context.Context, filter repo.RunSetFilter) ([]repo.RunSetSummary, error) {
	f.filter = filter
	return f.summaries, nil
}

type fakeRuns struct {
	repo.RunRepository
	runs   []domain.Run
	filter repo.RunFilter
}

func (f *fakeRuns) ListRuns(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.filter = filter
	return f.runs, nil
}

type fakeUpdater struct {
	skipped int
}

func (f *fakeUpdater) UpdateRuns(_ context.Context, runs []domain.Run) polling.Summary {
	out := make([]domain.Run, 0, len(runs))
	for _, run := range runs {
		if !run.Status.IsTerminal() {
			run.Status = domain.RunStatusRunning
		}
		out = append(out, run)
	}
	return polling.Summary{Runs: out, Skipped: f.skipped}
}

type fakeCatalog struct {
	entries []methods.MethodWithVersions
}

func (f *fakeCatalog) List(context.Context, bool, int) ([]methods.MethodWithVersions, error) {
	return f.entries, nil
}

func (f *fakeCatalog) GetVersion(_ context.Context, id string) (methods.MethodWithVersions, error) {
	for _, entry := range f.entries {
		for _, version := range entry.Versions {
			if version.ID == id {
				return methods.MethodWithVersions{Method: entry.Method, Versions: []domain.MethodVersion{version}}, nil
			}
		}
	}
	return methods.MethodWithVersions{}, repo.ErrNotFound
}

type apiFixture struct {
	submitter *fakeSubmitter
	runSets   *fakeRunSets
	runs      *fakeRuns
	updater   *fakeUpdater
	catalog   *fakeCatalog
	handler   http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	validator, err := newRequestValidator(context.Background())
	require.NoError(t, err)

	f := &apiFixture{
		submitter: &fakeSubmitter{},
		runSets:   &fakeRunSets{},
		runs:      &fakeRuns{},
		updater:   &fakeUpdater{},
		catalog:   &fakeCatalog{},
	}
	logger := slog.New(slog.DiscardHandler)
	api := &batchAPI{
		logger:    logger,
		submitter: f.submitter,
		runSets:   f.runSets,
		runs:      f.runs,
		updater:   f.updater,
		methods:   f.catalog,
		validator: validator,
	}
	mux := http.NewServeMux()
	api.register(mux)
	f.handler = httpserver.Wrap(logger, serviceName, mux)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(requestid.Header, "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

const validRunSetBody = `{
  "workflow_url": "https://example.org/hello.wdl",
  "run_set_name": "hello batch",
  "workflow_input_definitions": [
    {"input_name": "wf.name", "input_type": {"type": "primitive", "primitive_type": "String"},
     "source": {"type": "record_lookup", "record_attribute": "foo_name"}}
  ],
  "workflow_output_definitions": [
    {"output_name": "wf.greeting", "output_type": {"type": "primitive", "primitive_type": "String"},
     "destination": {"type": "record_update", "record_attribute": "greeting"}}
  ],
  "wds_records": {"record_type": "FOO", "record_ids": ["FOO1", "FOO2"]}
}`

func TestSubmitRunSet(t *testing.T) {
	f := newAPIFixture(t)
	f.submitter.resp = runsets.Response{
		RunSetID: "rs-1",
		State:    domain.RunSetStateRunning,
		Runs: []runsets.RunResult{
			{RunID: "run-1", State: domain.RunStatusUnknown},
			{RunID: "run-2", State: domain.RunStatusSystemError, Errors: "Engine submission failed for record FOO2: boom"},
		},
	}

	rec, body := f.do(t, http.MethodPost, "/api/batch/v1/run_sets", validRunSetBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rs-1", body["run_set_id"])
	assert.Equal(t, "RUNNING", body["state"])
	runs := body["runs"].([]any)
	require.Len(t, runs, 2)
	assert.Equal(t, "SYSTEM_ERROR", runs[1].(map[string]any)["state"])

	got := f.submitter.got
	assert.Equal(t, "req-123", got.RequestID)
	assert.Equal(t, "FOO", got.RecordType)
	assert.Equal(t, []string{"FOO1", "FOO2"}, got.RecordIDs)
	assert.Equal(t, "hello batch", got.Name)
	require.Len(t, got.InputDefinitions, 1)
	assert.Equal(t, domain.RecordLookupSource{Attribute: "foo_name"}, got.InputDefinitions[0].Source)
	require.Len(t, got.OutputDefinitions, 1)
	assert.Equal(t, domain.RecordUpdateDestination{Attribute: "greeting"}, got.OutputDefinitions[0].Destination)
}

func TestSubmitRunSetRejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "not json", body: "{", code: "invalid_json"},
		{name: "missing records", body: `{"workflow_url": "https://example.org/x.wdl"}`, code: "invalid_request"},
		{name: "wrong id type", body: `{"wds_records": {"record_type": "FOO", "record_ids": [1]}}`, code: "invalid_request"},
		{
			name: "unknown source",
			body: `{"wds_records": {"record_type": "FOO", "record_ids": ["a"]},
			        "workflow_input_definitions": [{"input_name": "x", "input_type": {"type": "primitive", "primitive_type": "String"}, "source": {"type": "magic"}}]}`,
			code: "invalid_request",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAPIFixture(t)
			rec, body := f.do(t, http.MethodPost, "/api/batch/v1/run_sets", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, body["error"])
			assert.Equal(t, "req-123", body["request_id"])
			assert.Empty(t, f.submitter.got.RecordType, "submitter must not be called")
		})
	}
}

func TestSubmitRunSetMapsErrors(t *testing.T) {
	f := newAPIFixture(t)
	f.submitter.err = &runsets.RequestError{Issues: []string{"3 record IDs submitted exceeds the maximum value of 2."}}
	rec, body := f.do(t, http.MethodPost, "/api/batch/v1/run_sets", validRunSetBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "exceeds the maximum value of 2")

	f.submitter.err = &runsets.FetchError{Failures: map[string]string{"FOO2": "not found"}}
	rec, body = f.do(t, http.MethodPost, "/api/batch/v1/run_sets", validRunSetBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "FOO2")

	f.submitter.err = errors.New("create run set: connection refused")
	rec, body = f.do(t, http.MethodPost, "/api/batch/v1/run_sets", validRunSetBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestListRunSetsDerivesState(t *testing.T) {
	f := newAPIFixture(t)
	f.runSets.summaries = []repo.RunSetSummary{
		{RunSet: domain.RunSet{ID: "rs-1", RecordType: "FOO"}, RunCount: 2, TerminalCount: 2, ErrorCount: 2},
		{RunSet: domain.RunSet{ID: "rs-2", RecordType: "FOO"}, RunCount: 2, TerminalCount: 1, ErrorCount: 1},
		{RunSet: domain.RunSet{ID: "rs-3", RecordType: "FOO"}, RunCount: 3, TerminalCount: 3, ErrorCount: 1},
	}

	rec, body := f.do(t, http.MethodGet, "/api/batch/v1/run_sets?limit=5&method_version_id=mv-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repo.RunSetFilter{MethodVersionID: "mv-1", Limit: 5}, f.runSets.filter)

	sets := body["run_sets"].([]any)
	require.Len(t, sets, 3)
	var states []string
	for _, item := range sets {
		states = append(states, item.(map[string]any)["state"].(string))
	}
	assert.Equal(t, []string{"ERROR", "RUNNING", "COMPLETE"}, states)

	rec, body = f.do(t, http.MethodGet, "/api/batch/v1/run_sets?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", body["error"])
}

func TestListRunsRefreshesFromEngine(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	f.runs.runs = []domain.Run{
		{ID: "run-1", RunSetID: "rs-1", RecordID: "FOO1", EngineID: "wf-1", Status: domain.RunStatusUnknown, SubmittedAt: now},
		{ID: "run-2", RunSetID: "rs-1", RecordID: "FOO2", Status: domain.RunStatusSystemError, ErrorMessages: "boom", SubmittedAt: now},
	}

	rec, body := f.do(t, http.MethodGet, "/api/batch/v1/runs?run_set_id=rs-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rs-1", f.runs.filter.RunSetID)
	assert.Equal(t, true, body["fully_updated"])

	runs := body["runs"].([]any)
	require.Len(t, runs, 2)
	assert.Equal(t, "RUNNING", runs[0].(map[string]any)["state"])
	assert.Equal(t, "boom", runs[1].(map[string]any)["error_messages"])

	f.updater.skipped = 1
	_, body = f.do(t, http.MethodGet, "/api/batch/v1/runs?run_set_id=rs-1", "")
	assert.Equal(t, false, body["fully_updated"])
}

func TestListMethods(t *testing.T) {
	f := newAPIFixture(t)
	f.catalog.entries = []methods.MethodWithVersions{{
		Method:   domain.Method{ID: "m1", Name: "hello", Source: "GitHub"},
		Versions: []domain.MethodVersion{{ID: "mv1", MethodID: "m1", Name: "1.0", URL: "https://example.org/hello.wdl"}},
	}}

	rec, body := f.do(t, http.MethodGet, "/api/batch/v1/methods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["methods"].([]any)
	require.Len(t, list, 1)
	versions := list[0].(map[string]any)["method_versions"].([]any)
	assert.Equal(t, "mv1", versions[0].(map[string]any)["method_version_id"])

	rec, _ = f.do(t, http.MethodGet, "/api/batch/v1/methods?method_version_id=mv1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/batch/v1/methods?method_version_id=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])

	rec, _ = f.do(t, http.MethodGet, "/api/batch/v1/methods?show_versions=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenAPIDocumentLoads(t *testing.T) {
	validator, err := newRequestValidator(context.Background())
	require.NoError(t, err)

	var body any
	require.NoError(t, json.Unmarshal([]byte(validRunSetBody), &body))
	assert.NoError(t, validator.ValidateRunSetRequest(body))
	assert.Error(t, validator.ValidateRunSetRequest(map[string]any{"wds_records": map[string]any{"record_type": "FOO"}}))
}
