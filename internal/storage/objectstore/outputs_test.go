package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

type memoryWriter struct {
	objects map[string]storedObject
	err     error
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{objects: map[string]storedObject{}}
}

func (m *memoryWriter) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	if m.err != nil {
		return m.err
	}
	blob, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(blob)) != size {
		return errors.New("size mismatch")
	}
	m.objects[bucket+"/"+key] = storedObject{body: blob, contentType: contentType, metadata: metadata}
	return nil
}

func TestOutputArchiveWritesTaggedJSON(t *testing.T) {
	writer := newMemoryWriter()
	archive, err := NewOutputArchive(writer, " run-outputs ")
	require.NoError(t, err)

	observedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	key, err := archive.Archive(context.Background(), ArchivedOutputs{
		RunID:      "run-1",
		RunSetID:   "rs-1",
		RecordID:   "r1",
		EngineID:   "e1",
		ObservedAt: observedAt,
		Outputs:    map[string]any{"wf.bam": "gs://b/a.bam"},
	})
	require.NoError(t, err)
	assert.Equal(t, "outputs/rs-1/run-1.json", key)

	obj, ok := writer.objects["run-outputs/"+key]
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.contentType)
	assert.Equal(t, map[string]string{
		"run-id":      "run-1",
		"run-set-id":  "rs-1",
		"record-id":   "r1",
		"engine-id":   "e1",
		"observed-at": "2026-03-04T05:06:07Z",
	}, obj.metadata)

	var got ArchivedOutputs
	require.NoError(t, json.Unmarshal(obj.body, &got))
	assert.Equal(t, "r1", got.RecordID)
	assert.True(t, got.ObservedAt.Equal(observedAt))
	assert.Equal(t, map[string]any{"wf.bam": "gs://b/a.bam"}, got.Outputs)
}

func TestOutputArchiveEmptyOutputsEncodeAsObject(t *testing.T) {
	writer := newMemoryWriter()
	archive, err := NewOutputArchive(writer, "b")
	require.NoError(t, err)

	key, err := archive.Archive(context.Background(), ArchivedOutputs{RunID: "r", RunSetID: "s"})
	require.NoError(t, err)
	assert.Contains(t, string(writer.objects["b/"+key].body), `"outputs":{}`)
	assert.NotContains(t, writer.objects["b/"+key].metadata, "engine-id")
}

func TestOutputArchiveErrors(t *testing.T) {
	_, err := NewOutputArchive(nil, "b")
	assert.Error(t, err)
	_, err = NewOutputArchive(newMemoryWriter(), "  ")
	assert.Error(t, err)
	_, err = NewMinioOutputArchive(nil, "b")
	assert.Error(t, err)

	writer := newMemoryWriter()
	writer.err = errors.New("unavailable")
	archive, err := NewOutputArchive(writer, "b")
	require.NoError(t, err)

	_, err = archive.Archive(context.Background(), ArchivedOutputs{RunID: "r", RunSetID: "s"})
	assert.ErrorContains(t, err, "unavailable")

	_, err = archive.Archive(context.Background(), ArchivedOutputs{RunID: "r"})
	assert.Error(t, err)
}
