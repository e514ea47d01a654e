package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const outputsPrefix = "outputs"

// OutputArchive keeps a copy of the raw outputs observed for completed runs.
type OutputArchive struct {
	writer ObjectWriter
	bucket string
}

type ArchivedOutputs struct {
	RunID      string         `json:"run_id"`
	RunSetID   string         `json:"run_set_id"`
	RecordID   string         `json:"record_id"`
	EngineID   string         `json:"engine_id,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
	Outputs    map[string]any `json:"outputs"`
}

func NewOutputArchive(writer ObjectWriter, bucket string) (*OutputArchive, error) {
	if writer == nil {
		return nil, errors.New("object writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &OutputArchive{writer: writer, bucket: bucket}, nil
}

// OutputKey is the object key for one run's archived outputs.
func OutputKey(runSetID, runID string) string {
	return path.Join(outputsPrefix, strings.TrimSpace(runSetID), strings.TrimSpace(runID)+".json")
}

// Archive writes outputs as JSON and tags the object with the run identifiers.
func (a *OutputArchive) Archive(ctx context.Context, outputs ArchivedOutputs) (string, error) {
	if a == nil || a.writer == nil {
		return "", errors.New("output archive not initialized")
	}
	if strings.TrimSpace(outputs.RunID) == "" || strings.TrimSpace(outputs.RunSetID) == "" {
		return "", errors.New("run id and run set id are required")
	}
	if outputs.Outputs == nil {
		outputs.Outputs = map[string]any{}
	}
	blob, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("encode outputs: %w", err)
	}
	key := OutputKey(outputs.RunSetID, outputs.RunID)
	if err := a.writer.Put(ctx, a.bucket, key, bytes.NewReader(blob), int64(len(blob)), "application/json", archiveMetadata(outputs)); err != nil {
		return "", fmt.Errorf("put %s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}

func archiveMetadata(outputs ArchivedOutputs) map[string]string {
	meta := map[string]string{
		"run-id":      outputs.RunID,
		"run-set-id":  outputs.RunSetID,
		"observed-at": outputs.ObservedAt.UTC().Format(time.RFC3339),
	}
	if outputs.RecordID != "" {
		meta["record-id"] = outputs.RecordID
	}
	if outputs.EngineID != "" {
		meta["engine-id"] = outputs.EngineID
	}
	return meta
}
