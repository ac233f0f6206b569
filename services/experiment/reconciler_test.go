package experiment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lumenlabs/lumen/pkg/testutil"
)

func TestReconciler_ResolvesStaleRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exp := newStoredExperiment(t, store, time.Now().UTC(), 2)

	if err := store.UpdateExperimentStatus(ctx, exp.ID, StatusRunning); err != nil {
		t.Fatalf("UpdateExperimentStatus() error = %v", err)
	}

	// One run finishes normally, the other gets stuck running.
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusRunning, nil)
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusCompleted, &Response{
		ID:            "resp-ok",
		GeneratedText: "finished fine",
		Status:        StatusCompleted,
	})
	mustUpdateRun(t, store, exp.Runs[1].ID, StatusRunning, nil)

	// Let the stuck run age past the threshold.
	time.Sleep(30 * time.Millisecond)

	rec := NewReconciler(store, 10*time.Millisecond, time.Minute, testutil.DiscardLogger())
	if err := rec.ReconcileOnce(ctx); err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}

	got, _ := store.GetExperiment(ctx, exp.ID)

	stuck := got.Runs[1]
	if stuck.Status != StatusFailed {
		t.Errorf("stale run status = %v, want failed", stuck.Status)
	}
	if stuck.Response == nil {
		t.Fatal("stale run has no response")
	}
	if !strings.Contains(stuck.Response.ErrorMessage, "abandoned") {
		t.Errorf("ErrorMessage = %q, want abandonment notice", stuck.Response.ErrorMessage)
	}

	// One completed, one failed: the experiment re-aggregates to partial.
	if got.Status != StatusPartial {
		t.Errorf("experiment status = %v, want partial", got.Status)
	}
	if got.Runs[0].Status != StatusCompleted {
		t.Errorf("healthy run status = %v, want completed", got.Runs[0].Status)
	}
}

func TestReconciler_FreshRunUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exp := newStoredExperiment(t, store, time.Now().UTC(), 1)

	if err := store.UpdateExperimentStatus(ctx, exp.ID, StatusRunning); err != nil {
		t.Fatalf("UpdateExperimentStatus() error = %v", err)
	}
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusRunning, nil)

	rec := NewReconciler(store, time.Hour, time.Minute, testutil.DiscardLogger())
	if err := rec.ReconcileOnce(ctx); err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}

	got, _ := store.GetExperiment(ctx, exp.ID)
	if got.Runs[0].Status != StatusRunning {
		t.Errorf("run status = %v, want running", got.Runs[0].Status)
	}
	if got.Status != StatusRunning {
		t.Errorf("experiment status = %v, want running", got.Status)
	}
}

func TestReconciler_LeavesInFlightExperiment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exp := newStoredExperiment(t, store, time.Now().UTC(), 2)

	if err := store.UpdateExperimentStatus(ctx, exp.ID, StatusRunning); err != nil {
		t.Fatalf("UpdateExperimentStatus() error = %v", err)
	}

	// One run is stuck running, the other has not started yet.
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusRunning, nil)
	time.Sleep(30 * time.Millisecond)

	rec := NewReconciler(store, 10*time.Millisecond, time.Minute, testutil.DiscardLogger())
	if err := rec.ReconcileOnce(ctx); err != nil {
		t.Fatalf("ReconcileOnce() error = %v", err)
	}

	got, _ := store.GetExperiment(ctx, exp.ID)
	if got.Runs[0].Status != StatusFailed {
		t.Errorf("stale run status = %v, want failed", got.Runs[0].Status)
	}
	if got.Runs[1].Status != StatusPending {
		t.Errorf("pending run status = %v, want pending", got.Runs[1].Status)
	}

	// The pending run keeps the experiment non-terminal.
	if got.Status != StatusRunning {
		t.Errorf("experiment status = %v, want running", got.Status)
	}
}
