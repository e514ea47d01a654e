package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/animus-labs/cbas-go"

// Recorder publishes batch submission and reconciliation instruments.
// A nil *Recorder records nothing.
type Recorder struct {
	recordsPerRequest metric.Int64Histogram
	runsSubmitted     metric.Int64Counter
	reconciliations   metric.Int64Counter
	pollFailures      metric.Int64Counter
}

// New registers instruments on provider, or on the global provider when nil.
func New(provider metric.MeterProvider) (*Recorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	recordsPerRequest, err := meter.Int64Histogram(
		"cbas.run_set.records",
		metric.WithDescription("Record ids per run set submission request."),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("records histogram: %w", err)
	}
	runsSubmitted, err := meter.Int64Counter(
		"cbas.runs.submitted",
		metric.WithDescription("Runs created by batch submission, by outcome."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("runs counter: %w", err)
	}
	reconciliations, err := meter.Int64Counter(
		"cbas.runs.reconciliations",
		metric.WithDescription("Completion observations applied, by result."),
		metric.WithUnit("{observation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("reconciliations counter: %w", err)
	}
	pollFailures, err := meter.Int64Counter(
		"cbas.runs.poll_failures",
		metric.WithDescription("Engine inspections that failed during polling."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("poll failures counter: %w", err)
	}
	return &Recorder{
		recordsPerRequest: recordsPerRequest,
		runsSubmitted:     runsSubmitted,
		reconciliations:   reconciliations,
		pollFailures:      pollFailures,
	}, nil
}

func (r *Recorder) RecordBatch(ctx context.Context, records int) {
	if r == nil {
		return
	}
	r.recordsPerRequest.Record(ctx, int64(records))
}

func (r *Recorder) RecordRunSubmitted(ctx context.Context, status string) {
	if r == nil {
		return
	}
	r.runsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *Recorder) RecordReconciliation(ctx context.Context, result string) {
	if r == nil {
		return
	}
	r.reconciliations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (r *Recorder) RecordPollFailure(ctx context.Context, stage string) {
	if r == nil {
		return
	}
	r.pollFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
