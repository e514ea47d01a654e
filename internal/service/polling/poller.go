// Package polling refreshes non-terminal runs from the workflow engine.
package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/platform/metrics"
	"github.com/animus-labs/cbas-go/internal/repo"
	"github.com/animus-labs/cbas-go/internal/service/completion"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultBatch    = 100
)

// EngineReader inspects workflow executions by engine id.
type EngineReader interface {
	Status(ctx context.Context, engineID string) (string, error)
	Outputs(ctx context.Context, engineID string) (map[string]any, error)
	Failures(ctx context.Context, engineID string) ([]string, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, obs completion.Observation) (completion.Result, domain.Run)
}

type Poller struct {
	runs       repo.RunRepository
	engine     EngineReader
	reconciler Reconciler
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Summary reports the runs after an update pass and how each observation ended.
type Summary struct {
	Runs    []domain.Run
	Results map[completion.Result]int
	Skipped int
}

func New(runs repo.RunRepository, engine EngineReader, reconciler Reconciler, recorder *metrics.Recorder, logger *slog.Logger) *Poller {
	if runs == nil || engine == nil || reconciler == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		runs:       runs,
		engine:     engine,
		reconciler: reconciler,
		metrics:    recorder,
		logger:     logger.With("component", "run_poller"),
		now:        time.Now,
	}
}

// Start polls on a ticker until ctx is done.
func (p *Poller) Start(ctx context.Context, interval time.Duration, batch int) {
	if p == nil {
		return
	}
	go p.Run(ctx, interval, batch)
}

// Run polls on a ticker and blocks until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx, batch); err != nil {
				p.log("poll failed", "error", err)
			}
		}
	}
}

// PollOnce refreshes up to batch non-terminal runs.
func (p *Poller) PollOnce(ctx context.Context, batch int) (Summary, error) {
	if p == nil {
		return Summary{}, errors.New("poller not initialized")
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	runs, err := p.runs.ListRuns(ctx, repo.RunFilter{NonTerminalOnly: true, Limit: batch})
	if err != nil {
		return Summary{}, fmt.Errorf("list non-terminal runs: %w", err)
	}
	return p.UpdateRuns(ctx, runs), nil
}

// UpdateRuns inspects each non-terminal run with an engine id and reconciles
// what the engine reports. Runs that could not be inspected are returned unchanged.
func (p *Poller) UpdateRuns(ctx context.Context, runs []domain.Run) Summary {
	summary := Summary{Runs: make([]domain.Run, 0, len(runs)), Results: map[completion.Result]int{}}
	if p == nil {
		summary.Runs = append(summary.Runs, runs...)
		summary.Skipped = len(runs)
		return summary
	}
	for _, run := range runs {
		if run.Status.IsTerminal() || run.EngineID == "" {
			summary.Runs = append(summary.Runs, run)
			continue
		}
		obs, ok := p.observe(ctx, run)
		if !ok {
			summary.Skipped++
			summary.Runs = append(summary.Runs, run)
			continue
		}
		result, updated := p.reconciler.Reconcile(ctx, obs)
		summary.Results[result]++
		summary.Runs = append(summary.Runs, updated)
	}
	return summary
}

func (p *Poller) observe(ctx context.Context, run domain.Run) (completion.Observation, bool) {
	raw, err := p.engine.Status(ctx, run.EngineID)
	if err != nil {
		p.metrics.RecordPollFailure(ctx, "status")
		p.log("inspect status failed", "run_id", run.ID, "engine_id", run.EngineID, "error", err)
		return completion.Observation{}, false
	}
	status, ok := domain.ParseRunStatus(raw)
	if !ok {
		p.metrics.RecordPollFailure(ctx, "status")
		p.log("unexpected engine status", "run_id", run.ID, "engine_id", run.EngineID, "status", raw)
		return completion.Observation{}, false
	}

	obs := completion.Observation{Run: run, Status: status, ObservedAt: p.now().UTC()}
	if status == run.Status {
		return obs, true
	}
	switch {
	case status == domain.RunStatusComplete:
		outputs, err := p.engine.Outputs(ctx, run.EngineID)
		if err != nil {
			p.metrics.RecordPollFailure(ctx, "outputs")
			p.log("inspect outputs failed", "run_id", run.ID, "engine_id", run.EngineID, "error", err)
			return completion.Observation{}, false
		}
		obs.Outputs = outputs
	case status.InErrorState():
		failures, err := p.engine.Failures(ctx, run.EngineID)
		if err != nil {
			p.metrics.RecordPollFailure(ctx, "failures")
			p.log("inspect failures failed", "run_id", run.ID, "engine_id", run.EngineID, "error", err)
			return completion.Observation{}, false
		}
		obs.WorkflowErrors = failures
	}
	return obs, true
}

func (p *Poller) log(msg string, attrs ...any) {
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, ok := attrs[i].(string); ok && key == "error" {
			if err, ok := attrs[i+1].(error); ok && errors.Is(err, context.Canceled) {
				return
			}
		}
	}
	p.logger.Warn(msg, attrs...)
}
