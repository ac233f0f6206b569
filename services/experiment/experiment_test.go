package experiment

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func validCreate() Create {
	return Create{
		UserPrompt: "Generate a description about Lorem Ipsum",
		Name:       "lorem",
		ModelName:  "gpt-4",
		TotalRuns:  2,
		Runs: []RunCreate{
			{Temperature: 1, TopP: 1, MaxOutputTokens: 50},
			{Temperature: 1, TopP: 1, MaxOutputTokens: 50},
		},
	}
}

func TestCreate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Create)
		wantErr bool
	}{
		{"valid", func(c *Create) {}, false},
		{"empty prompt", func(c *Create) { c.UserPrompt = "" }, true},
		{"empty model", func(c *Create) { c.ModelName = "" }, true},
		{"zero runs", func(c *Create) { c.TotalRuns = 0; c.Runs = nil }, true},
		{"run count mismatch", func(c *Create) { c.TotalRuns = 3 }, true},
		{"temperature too high", func(c *Create) { c.Runs[0].Temperature = 2.5 }, true},
		{"temperature negative", func(c *Create) { c.Runs[0].Temperature = -0.1 }, true},
		{"temperature at upper bound", func(c *Create) { c.Runs[0].Temperature = 2 }, false},
		{"top_p too high", func(c *Create) { c.Runs[1].TopP = 1.5 }, true},
		{"top_p at bounds", func(c *Create) { c.Runs[0].TopP = 0; c.Runs[1].TopP = 1 }, false},
		{"zero max tokens", func(c *Create) { c.Runs[0].MaxOutputTokens = 0 }, true},
		{"negative max tokens", func(c *Create) { c.Runs[0].MaxOutputTokens = -10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			create := validCreate()
			tt.mutate(&create)

			err := create.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Validate() error = %v, want ErrValidation", err)
				}
			} else if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all completed", []Status{StatusCompleted, StatusCompleted, StatusCompleted}, StatusCompleted},
		{"all failed", []Status{StatusFailed, StatusFailed}, StatusFailed},
		{"mixed", []Status{StatusCompleted, StatusCompleted, StatusFailed}, StatusPartial},
		{"single completed", []Status{StatusCompleted}, StatusCompleted},
		{"single failed", []Status{StatusFailed}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.statuses); got != tt.want {
				t.Errorf("AggregateStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregateStatus_OrderIndependent(t *testing.T) {
	statuses := []Status{
		StatusCompleted, StatusFailed, StatusCompleted,
		StatusFailed, StatusCompleted,
	}
	want := AggregateStatus(statuses)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]Status, len(statuses))
		copy(shuffled, statuses)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		if got := AggregateStatus(shuffled); got != want {
			t.Fatalf("AggregateStatus(%v) = %v, want %v", shuffled, got, want)
		}
	}
}

func TestValidateRunTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  bool
	}{
		{StatusPending, StatusRunning, false},
		{StatusRunning, StatusCompleted, false},
		{StatusRunning, StatusFailed, false},
		{StatusPending, StatusCompleted, true},
		{StatusCompleted, StatusRunning, true},
		{StatusFailed, StatusCompleted, true},
		{StatusRunning, StatusPartial, true}, // runs never aggregate
	}

	for _, tt := range tests {
		err := ValidateRunTransition(tt.from, tt.to)
		if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("ValidateRunTransition(%s, %s) = %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ValidateRunTransition(%s, %s) = %v, want nil", tt.from, tt.to, err)
		}
	}
}

func TestValidateExperimentTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  bool
	}{
		{StatusPending, StatusRunning, false},
		{StatusRunning, StatusCompleted, false},
		{StatusRunning, StatusFailed, false},
		{StatusRunning, StatusPartial, false},
		{StatusPending, StatusCompleted, true},
		{StatusCompleted, StatusRunning, true},
		{StatusPartial, StatusCompleted, true},
	}

	for _, tt := range tests {
		err := ValidateExperimentTransition(tt.from, tt.to)
		if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("ValidateExperimentTransition(%s, %s) = %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ValidateExperimentTransition(%s, %s) = %v, want nil", tt.from, tt.to, err)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusPartial:   true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestCopyExperiment_DeepCopy(t *testing.T) {
	now := time.Now().UTC()
	exp := &Experiment{
		ID:     "exp-1",
		Status: StatusPending,
		Runs: []*Run{
			{
				ID:     "run-1",
				Status: StatusCompleted,
				Response: &Response{
					ID:      "resp-1",
					Metrics: map[string]float64{"overall": 0.5},
				},
				CreatedAt: now,
			},
		},
	}

	cp := CopyExperiment(exp)
	cp.Runs[0].Status = StatusFailed
	cp.Runs[0].Response.Metrics["overall"] = 0.9

	if exp.Runs[0].Status != StatusCompleted {
		t.Error("copy mutated the original run status")
	}
	if exp.Runs[0].Response.Metrics["overall"] != 0.5 {
		t.Error("copy mutated the original metrics")
	}
}
