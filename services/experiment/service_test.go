package experiment

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/lumenlabs/lumen/pkg/testutil"
	"github.com/lumenlabs/lumen/services/runtime"
)

func newTestService(t *testing.T, store Store, provider *stubProvider) *Service {
	t.Helper()
	orch := newTestOrchestrator(store, provider, 2)
	return NewService(store, orch, testutil.DiscardLogger())
}

func TestService_Submit_Validation(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store, newStubProvider("x"))

	create := validCreate()
	create.TotalRuns = 5 // mismatch

	_, err := svc.Submit(context.Background(), create)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Submit() error = %v, want ErrValidation", err)
	}

	// Nothing was persisted.
	summaries, err := store.ListExperiments(context.Background())
	if err != nil {
		t.Fatalf("ListExperiments() error = %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("len(summaries) = %d after rejected submission, want 0", len(summaries))
	}
}

func TestService_Submit_EndToEnd(t *testing.T) {
	store := NewMemoryStore()
	provider := newStubProvider("Lorem Ipsum is placeholder text. Designers use it to fill layouts.")
	svc := newTestService(t, store, provider)
	ctx := context.Background()

	exp, err := svc.Submit(ctx, validCreate())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Submission returns immediately with pending runs.
	if exp.Status != StatusPending {
		t.Errorf("returned status = %v, want pending", exp.Status)
	}
	if len(exp.Runs) != 2 {
		t.Fatalf("len(Runs) = %d, want 2", len(exp.Runs))
	}

	testutil.WaitFor(t, 5*time.Second, func() bool {
		got, err := svc.Get(ctx, exp.ID)
		return err == nil && got.Status.Terminal()
	}, "experiment did not reach a terminal state")

	got, err := svc.Get(ctx, exp.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("final status = %v, want completed", got.Status)
	}
	for _, run := range got.Runs {
		if run.Response == nil {
			t.Fatalf("run %s has no response", run.ID)
		}
		overall := run.Response.Metrics["overall"]
		if overall < 0 || overall > 1 {
			t.Errorf("overall = %v, want in [0,1]", overall)
		}
		if run.Response.TotalWords == 0 || run.Response.TotalSentences == 0 {
			t.Error("response has zero word or sentence count")
		}
	}
}

func TestService_Submit_PartialOnTimeout(t *testing.T) {
	store := NewMemoryStore()

	// The hot run (temperature 1.5) hangs past the executor timeout,
	// the other answers immediately.
	provider := newStubProvider("")
	provider.completeFn = func(ctx context.Context, params runtime.CompletionParams) (*runtime.CompletionResult, error) {
		if params.Temperature > 1.2 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &runtime.CompletionResult{Content: "Quick response text for the fast run."}, nil
	}
	svc := newTimeoutService(store, provider, 50*time.Millisecond)

	create := validCreate()
	create.Runs[1].Temperature = 1.5 // the slow run

	ctx := context.Background()
	exp, err := svc.Submit(ctx, create)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	testutil.WaitFor(t, 5*time.Second, func() bool {
		got, err := svc.Get(ctx, exp.ID)
		return err == nil && got.Status.Terminal()
	}, "experiment did not reach a terminal state")

	got, _ := svc.Get(ctx, exp.ID)
	if got.Status != StatusPartial {
		t.Fatalf("final status = %v, want partial", got.Status)
	}

	var completed, failed *Response
	for _, run := range got.Runs {
		switch run.Response.Status {
		case StatusCompleted:
			completed = run.Response
		case StatusFailed:
			failed = run.Response
		}
	}
	if completed == nil || failed == nil {
		t.Fatalf("want one completed and one failed response, got %+v", got.Runs)
	}
	if failed.ErrorMessage == "" {
		t.Error("failed response has no error message")
	}
	if completed.GeneratedText == "" {
		t.Error("completed response has no generated text")
	}
}

func newTimeoutService(store Store, provider runtime.Provider, runTimeout time.Duration) *Service {
	registry := runtime.NewRegistry()
	registry.Register(provider)
	executor := NewExecutor(store, runTimeout, testutil.DiscardLogger())
	orch := NewOrchestrator(store, executor, registry, 0, testutil.DiscardLogger())
	return NewService(store, orch, testutil.DiscardLogger())
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(t, NewMemoryStore(), newStubProvider("x"))
	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exp := newStoredExperiment(t, store, time.Now().UTC(), 2)

	// Drive both runs terminal by hand: one success, one failure.
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusRunning, nil)
	mustUpdateRun(t, store, exp.Runs[0].ID, StatusCompleted, &Response{
		ID:             "resp-1",
		GeneratedText:  "hello, world",
		Status:         StatusCompleted,
		LatencyMs:      120.5,
		TotalWords:     2,
		TotalSentences: 1,
		Metrics:        map[string]float64{"overall": 0.75, "coherence": 1},
	})
	mustUpdateRun(t, store, exp.Runs[1].ID, StatusRunning, nil)
	mustUpdateRun(t, store, exp.Runs[1].ID, StatusFailed, &Response{
		ID:           "resp-2",
		Status:       StatusFailed,
		ErrorMessage: "provider timeout",
	})

	svc := NewService(store, nil, testutil.DiscardLogger())

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, exp.ID, &buf); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV parse error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("CSV rows = %d, want header + 2", len(records))
	}

	header := records[0]
	wantHeader := []string{
		"temperature", "top_p", "max_output_tokens", "status",
		"generated_text", "error_message", "latency_ms",
		"total_words", "total_sentences", "coherence", "overall",
	}
	if len(header) != len(wantHeader) {
		t.Fatalf("header = %v, want %v", header, wantHeader)
	}
	for i := range wantHeader {
		if header[i] != wantHeader[i] {
			t.Errorf("header[%d] = %q, want %q", i, header[i], wantHeader[i])
		}
	}

	// Every row has the same column count as the header.
	for i, row := range records[1:] {
		if len(row) != len(header) {
			t.Errorf("row %d has %d columns, want %d", i+1, len(row), len(header))
		}
	}

	if records[1][3] != "completed" || records[2][3] != "failed" {
		t.Errorf("status columns = %q/%q, want completed/failed", records[1][3], records[2][3])
	}
	if records[1][4] != "hello, world" {
		t.Errorf("generated_text = %q", records[1][4])
	}
	if records[2][5] != "provider timeout" {
		t.Errorf("error_message = %q", records[2][5])
	}
}

func mustUpdateRun(t *testing.T, store Store, runID string, status Status, resp *Response) {
	t.Helper()
	if err := store.UpdateRunStatus(context.Background(), runID, status, resp); err != nil {
		t.Fatalf("UpdateRunStatus(%s, %s) error = %v", runID, status, err)
	}
}
