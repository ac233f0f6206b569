package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Reconciler resolves runs stuck running past a staleness threshold,
// which happens when the process dies between the running write and the
// terminal write. Dispatch is asynchronous, so this is an operational
// requirement rather than a corner case.
type Reconciler struct {
	store     Store
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. threshold is how long a run may
// stay running before it is considered abandoned; interval is the scan
// period.
func NewReconciler(store Store, threshold, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

// Run scans on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started",
		"threshold", r.threshold, "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce resolves all currently stale runs to failed and
// re-aggregates any experiment whose runs are then all terminal.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.threshold)
	stale, err := r.store.ListStaleRuns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale runs: %w", err)
	}

	touched := make(map[string]struct{})
	for _, run := range stale {
		resp := &Response{
			ID:           uuid.New().String(),
			RunID:        run.ID,
			Status:       StatusFailed,
			ErrorMessage: fmt.Sprintf("run abandoned: still running after %s", r.threshold),
		}
		if err := r.store.UpdateRunStatus(ctx, run.ID, StatusFailed, resp); err != nil {
			r.logger.Error("failed to fail stale run", "run_id", run.ID, "error", err)
			continue
		}
		touched[run.ExperimentID] = struct{}{}

		r.logger.Warn("resolved stale run to failed",
			"run_id", run.ID, "experiment_id", run.ExperimentID)
	}

	for experimentID := range touched {
		if err := r.reaggregate(ctx, experimentID); err != nil {
			r.logger.Error("failed to re-aggregate experiment",
				"experiment_id", experimentID, "error", err)
		}
	}

	return nil
}

func (r *Reconciler) reaggregate(ctx context.Context, experimentID string) error {
	exp, err := r.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp == nil || exp.Status.Terminal() {
		return nil
	}

	statuses := make([]Status, 0, len(exp.Runs))
	for _, run := range exp.Runs {
		if !run.Status.Terminal() {
			// Some runs are still in flight; leave the experiment alone.
			return nil
		}
		statuses = append(statuses, run.Status)
	}

	final := AggregateStatus(statuses)
	if err := r.store.UpdateExperimentStatus(ctx, experimentID, final); err != nil {
		return err
	}

	r.logger.Info("re-aggregated experiment after reconciliation",
		"experiment_id", experimentID, "status", final)
	return nil
}
