package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenlabs/lumen/services/runtime"
)

var tracer = otel.Tracer("lumen/experiment")

// Orchestrator drives an experiment and its runs from dispatch to a
// terminal aggregate state.
type Orchestrator struct {
	store          Store
	executor       *Executor
	registry       *runtime.Registry
	maxConcurrency int
	logger         *slog.Logger
}

// NewOrchestrator creates an orchestrator. maxConcurrency bounds the
// number of in-flight provider calls per dispatch; zero means unbounded.
func NewOrchestrator(store Store, executor *Executor, registry *runtime.Registry, maxConcurrency int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:          store,
		executor:       executor,
		registry:       registry,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Dispatch executes all runs of the experiment concurrently under the
// concurrency bound, then reduces the terminal run statuses to the
// experiment status. Store failures abort dispatch without writing an
// unconfirmed terminal status.
func (o *Orchestrator) Dispatch(ctx context.Context, experimentID string) (err error) {
	ctx, span := tracer.Start(ctx, "experiment.dispatch",
		trace.WithAttributes(attribute.String("experiment.id", experimentID)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	exp, err := o.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("failed to load experiment: %w", err)
	}
	if exp == nil {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, experimentID)
	}

	if err := o.store.UpdateExperimentStatus(ctx, exp.ID, StatusRunning); err != nil {
		return fmt.Errorf("failed to mark experiment running: %w", err)
	}

	provider, ok := o.resolveProvider(exp.ModelName)
	if !ok {
		return o.failAllRuns(ctx, exp, fmt.Sprintf("no provider available for model %q", exp.ModelName))
	}

	o.logger.InfoContext(ctx, "dispatching experiment",
		"experiment_id", exp.ID, "total_runs", len(exp.Runs),
		"provider", provider.Name(), "max_concurrency", o.maxConcurrency)

	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}

	statuses := make([]Status, len(exp.Runs))
	hardErrs := make([]error, len(exp.Runs))

	var wg sync.WaitGroup
	for i, run := range exp.Runs {
		wg.Add(1)
		go func(i int, run *Run) {
			defer wg.Done()

			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			resp, err := o.executor.Execute(ctx, exp, run, provider)
			if err != nil {
				hardErrs[i] = err
				return
			}
			statuses[i] = resp.Status
		}(i, run)
	}
	wg.Wait()

	if err := errors.Join(hardErrs...); err != nil {
		// Some runs have no confirmed terminal write; leave the
		// experiment running for the reconciler instead of guessing.
		return fmt.Errorf("dispatch aborted for experiment %s: %w", exp.ID, err)
	}

	final := AggregateStatus(statuses)
	span.SetAttributes(attribute.String("experiment.status", string(final)))
	if err := o.store.UpdateExperimentStatus(ctx, exp.ID, final); err != nil {
		return fmt.Errorf("failed to persist final status: %w", err)
	}

	o.logger.InfoContext(ctx, "experiment finished",
		"experiment_id", exp.ID, "status", final)

	return nil
}

func (o *Orchestrator) resolveProvider(model string) (runtime.Provider, bool) {
	if p, ok := o.registry.ForModel(model); ok {
		return p, true
	}
	// Unknown models route to OpenAI when configured; this covers
	// newly released model names without a registry update.
	if p, ok := o.registry.Get("openai"); ok && p.Available(context.Background()) {
		return p, true
	}
	return nil, false
}

// failAllRuns resolves every pending run to failed with the given
// message and marks the experiment failed.
func (o *Orchestrator) failAllRuns(ctx context.Context, exp *Experiment, msg string) error {
	for _, run := range exp.Runs {
		if run.Status != StatusPending {
			continue
		}
		if err := o.store.UpdateRunStatus(ctx, run.ID, StatusRunning, nil); err != nil {
			return fmt.Errorf("failed to mark run running: %w", err)
		}
		resp := &Response{
			ID:           uuid.New().String(),
			RunID:        run.ID,
			Status:       StatusFailed,
			ErrorMessage: msg,
		}
		if err := o.store.UpdateRunStatus(ctx, run.ID, StatusFailed, resp); err != nil {
			return fmt.Errorf("failed to persist run outcome: %w", err)
		}
	}

	if err := o.store.UpdateExperimentStatus(ctx, exp.ID, StatusFailed); err != nil {
		return fmt.Errorf("failed to persist final status: %w", err)
	}

	o.logger.WarnContext(ctx, "experiment failed before dispatch",
		"experiment_id", exp.ID, "reason", msg)
	return nil
}
