package wds

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/", InstanceID: "inst-1", Token: token})
	require.NoError(t, err)
	return client
}

func TestGetRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/inst-1/records/v0.2/sample/S%201", r.URL.EscapedPath())
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"S 1","type":"sample","attributes":{"depth":30,"bam":"gs://b/x.bam"}}`))
	}, "secret")

	record, err := client.GetRecord(context.Background(), "sample", "S 1")
	require.NoError(t, err)
	assert.Equal(t, "S 1", record.ID)
	assert.Equal(t, "sample", record.Type)
	assert.Equal(t, float64(30), record.Attributes["depth"])
}

func TestGetRecordNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"message":"Record not found"}`))
	}, "")

	_, err := client.GetRecord(context.Background(), "sample", "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Record not found", apiErr.Message)
}

func TestUpdateRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "gs://b/out.bam", body["attributes"]["bam"])
		_, _ = w.Write([]byte(`{"id":"r1","type":"sample","attributes":{}}`))
	}, "")

	require.NoError(t, client.UpdateRecord(context.Background(), "sample", "r1", map[string]any{"bam": "gs://b/out.bam"}))
}

func TestUpdateRecordServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, "")

	err := client.UpdateRecord(context.Background(), "sample", "r1", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
	assert.Contains(t, err.Error(), "boom")
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{BaseURL: "http://wds"}.Validate())
	assert.NoError(t, Config{BaseURL: "http://wds", InstanceID: "i"}.Validate())
}
