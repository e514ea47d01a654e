package cromwell

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestSubmitWorkflow(t *testing.T) {
	client := newTestClient(t, Config{Token: "tok", FinalWorkflowLogDir: "gs://logs"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ga4gh/wes/v1/runs", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://example.org/wf.wdl", r.FormValue("workflow_url"))
		assert.JSONEq(t, `{"wf.x":"a"}`, r.FormValue("workflow_params"))
		assert.Equal(t, "WDL", r.FormValue("workflow_type"))
		assert.Equal(t, "1.0", r.FormValue("workflow_type_version"))
		assert.JSONEq(t, `{"final_workflow_log_dir":"gs://logs"}`, r.FormValue("workflow_engine_parameters"))
		_, _ = w.Write([]byte(`{"run_id":"engine-123"}`))
	})

	id, err := client.SubmitWorkflow(context.Background(), "https://example.org/wf.wdl", []byte(`{"wf.x":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "engine-123", id)
}

func TestSubmitWorkflowRejected(t *testing.T) {
	client := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"msg":"invalid workflow","status_code":400}`))
	})

	_, err := client.SubmitWorkflow(context.Background(), "https://example.org/wf.wdl", []byte(`{}`))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid workflow", apiErr.Message)
}

func TestStatusAndOutputs(t *testing.T) {
	client := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ga4gh/wes/v1/runs/e1/status":
			_, _ = w.Write([]byte(`{"run_id":"e1","state":"COMPLETE"}`))
		case "/api/workflows/v1/e1/outputs":
			_, _ = w.Write([]byte(`{"id":"e1","outputs":{"wf.bam":"gs://b/a.bam"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	state, err := client.Status(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", state)

	outputs, err := client.Outputs(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wf.bam": "gs://b/a.bam"}, outputs)

	_, err = client.Status(context.Background(), " ")
	assert.Error(t, err)
}

func TestFailuresFlattensCauses(t *testing.T) {
	client := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/workflows/v1/e2/metadata", r.URL.Path)
		assert.Equal(t, "failures", r.URL.Query().Get("includeKey"))
		_, _ = w.Write([]byte(`{"failures":[
			{"message":"Workflow failed","causedBy":[
				{"message":"Task x failed","causedBy":[{"message":"OOM","causedBy":[]}]}
			]},
			{"message":"Second","causedBy":[]}
		]}`))
	})

	messages, err := client.Failures(context.Background(), "e2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Workflow failed", "Task x failed", "OOM", "Second"}, messages)
}
