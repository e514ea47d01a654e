package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestRecorderWithNoopProvider(t *testing.T) {
	recorder, err := New(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	ctx := context.Background()
	recorder.RecordBatch(ctx, 3)
	recorder.RecordRunSubmitted(ctx, "UNKNOWN")
	recorder.RecordReconciliation(ctx, "SUCCESS")
	recorder.RecordPollFailure(ctx, "status")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	ctx := context.Background()
	recorder.RecordBatch(ctx, 1)
	recorder.RecordRunSubmitted(ctx, "SYSTEM_ERROR")
	recorder.RecordReconciliation(ctx, "ERROR")
	recorder.RecordPollFailure(ctx, "outputs")
}

func TestNewUsesGlobalProviderWhenNil(t *testing.T) {
	if _, err := New(nil); err != nil {
		t.Fatalf("New(nil) err=%v", err)
	}
}
