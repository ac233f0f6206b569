package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenlabs/lumen/services/runtime"
	"github.com/lumenlabs/lumen/services/scoring"
)

// Executor drives exactly one run from pending to a terminal state.
type Executor struct {
	store      Store
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewExecutor creates a run executor. runTimeout bounds each provider
// call; zero disables the per-run timeout.
func NewExecutor(store Store, runTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:      store,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Execute transitions the run to running, calls the provider, scores the
// output, and persists the terminal status together with its response.
// Provider failures (timeout, API error, empty output) are recorded as
// failed responses, not returned as errors; only precondition violations
// and store failures are hard errors.
func (e *Executor) Execute(ctx context.Context, exp *Experiment, run *Run, provider runtime.Provider) (*Response, error) {
	ctx, span := tracer.Start(ctx, "experiment.run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("experiment.id", exp.ID),
			attribute.String("provider", provider.Name()),
		))
	defer span.End()

	if run.Status != StatusPending {
		return nil, fmt.Errorf("%w: run %s is %s, want pending", ErrPrecondition, run.ID, run.Status)
	}

	// Persist running before the provider call so a crash mid-call
	// leaves discoverable state for the reconciler.
	if err := e.store.UpdateRunStatus(ctx, run.ID, StatusRunning, nil); err != nil {
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	callCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := provider.Complete(callCtx, runtime.CompletionParams{
		Prompt:      exp.UserPrompt,
		Model:       exp.ModelName,
		Temperature: run.Temperature,
		TopP:        run.TopP,
		MaxTokens:   run.MaxOutputTokens,
	})
	latency := time.Since(start)

	var resp *Response
	if err != nil {
		msg := err.Error()
		if callCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("generation timed out after %s", e.runTimeout)
		}
		e.logger.WarnContext(ctx, "run generation failed",
			"run_id", run.ID, "experiment_id", exp.ID, "error", msg)

		resp = &Response{
			ID:           uuid.New().String(),
			RunID:        run.ID,
			Status:       StatusFailed,
			ErrorMessage: msg,
			LatencyMs:    float64(latency.Milliseconds()),
		}
	} else {
		scored := scoring.Evaluate(result.Content, exp.UserPrompt)
		resp = &Response{
			ID:             uuid.New().String(),
			RunID:          run.ID,
			GeneratedText:  result.Content,
			Status:         StatusCompleted,
			LatencyMs:      float64(latency.Milliseconds()),
			TotalWords:     scored.WordCount,
			TotalSentences: scored.SentenceCount,
			Metrics:        scored.Metrics,
		}
	}

	span.SetAttributes(
		attribute.String("run.status", string(resp.Status)),
		attribute.Float64("run.latency_ms", resp.LatencyMs),
	)

	// Terminal status and response commit together.
	if err := e.store.UpdateRunStatus(ctx, run.ID, resp.Status, resp); err != nil {
		return nil, fmt.Errorf("failed to persist run outcome: %w", err)
	}

	e.logger.InfoContext(ctx, "run finished",
		"run_id", run.ID, "experiment_id", exp.ID,
		"status", resp.Status, "latency_ms", resp.LatencyMs)

	return resp, nil
}
