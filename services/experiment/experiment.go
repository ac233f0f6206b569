// Package experiment implements the experiment execution engine: batch
// submission, concurrent run dispatch, scoring, and aggregate status
// tracking.
package experiment

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the service and store layers.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPrecondition      = errors.New("precondition violation")
)

// Status represents an experiment or run lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// Valid reports whether the status is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// Runs never aggregate, so partial is not a legal run state.
var runTransitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

var experimentTransitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed, StatusPartial},
}

// ValidateRunTransition checks a run status transition against the
// lifecycle table.
func ValidateRunTransition(from, to Status) error {
	return validateTransition(runTransitions, from, to)
}

// ValidateExperimentTransition checks an experiment status transition
// against the lifecycle table.
func ValidateExperimentTransition(from, to Status) error {
	return validateTransition(experimentTransitions, from, to)
}

func validateTransition(table map[Status][]Status, from, to Status) error {
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Experiment is a batch of runs sharing one prompt and model.
type Experiment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	UserPrompt string    `json:"user_prompt"`
	ModelName  string    `json:"model_name"`
	TotalRuns  int       `json:"total_runs"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Runs       []*Run    `json:"runs,omitempty"`
}

// Summary is the list projection of an experiment, without run detail.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	TotalRuns int       `json:"total_runs"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the experiment's list projection.
func (e *Experiment) Summary() Summary {
	return Summary{
		ID:        e.ID,
		Name:      e.Name,
		TotalRuns: e.TotalRuns,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}

// Run is one generation attempt with a fixed sampling-parameter triple.
type Run struct {
	ID              string    `json:"id"`
	ExperimentID    string    `json:"-"`
	Temperature     float64   `json:"temperature"`
	TopP            float64   `json:"top_p"`
	MaxOutputTokens int       `json:"max_output_tokens"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"-"`
	Response        *Response `json:"response,omitempty"`
}

// Response is the terminal outcome record of a run. Text is present
// only on success; ErrorMessage only on failure. Created once, immutable.
type Response struct {
	ID             string             `json:"id"`
	RunID          string             `json:"-"`
	GeneratedText  string             `json:"generated_text,omitempty"`
	Status         Status             `json:"status"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	LatencyMs      float64            `json:"latency_ms"`
	TotalWords     int                `json:"total_words"`
	TotalSentences int                `json:"total_sentences"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	CreatedAt      time.Time          `json:"-"`
}

// RunCreate holds the sampling parameters for one run at submission.
type RunCreate struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// Create is an experiment submission.
type Create struct {
	UserPrompt string      `json:"user_prompt"`
	Name       string      `json:"name,omitempty"`
	ModelName  string      `json:"model_name"`
	TotalRuns  int         `json:"total_runs"`
	Runs       []RunCreate `json:"runs"`
}

// Validate checks a submission against the parameter ranges. No
// persistence happens for an invalid submission.
func (c *Create) Validate() error {
	if c.UserPrompt == "" {
		return fmt.Errorf("%w: user_prompt is required", ErrValidation)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is required", ErrValidation)
	}
	if c.TotalRuns < 1 {
		return fmt.Errorf("%w: total_runs must be at least 1", ErrValidation)
	}
	if c.TotalRuns != len(c.Runs) {
		return fmt.Errorf("%w: total_runs is %d but %d run configurations were provided",
			ErrValidation, c.TotalRuns, len(c.Runs))
	}
	for i, r := range c.Runs {
		if r.Temperature < 0 || r.Temperature > 2 {
			return fmt.Errorf("%w: runs[%d].temperature %g outside [0,2]", ErrValidation, i, r.Temperature)
		}
		if r.TopP < 0 || r.TopP > 1 {
			return fmt.Errorf("%w: runs[%d].top_p %g outside [0,1]", ErrValidation, i, r.TopP)
		}
		if r.MaxOutputTokens <= 0 {
			return fmt.Errorf("%w: runs[%d].max_output_tokens must be positive", ErrValidation, i)
		}
	}
	return nil
}

// AggregateStatus reduces terminal run statuses to the experiment
// status: all completed -> completed, all failed -> failed, mixed ->
// partial. The reduction is commutative, so completion order never
// affects the result.
func AggregateStatus(statuses []Status) Status {
	var completed, failed int
	for _, s := range statuses {
		switch s {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case completed > 0 && failed == 0:
		return StatusCompleted
	case failed > 0 && completed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// CopyExperiment returns a deep copy.
func CopyExperiment(e *Experiment) *Experiment {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Runs != nil {
		cp.Runs = make([]*Run, len(e.Runs))
		for i, r := range e.Runs {
			cp.Runs[i] = CopyRun(r)
		}
	}
	return &cp
}

// CopyRun returns a deep copy.
func CopyRun(r *Run) *Run {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Response = CopyResponse(r.Response)
	return &cp
}

// CopyResponse returns a deep copy.
func CopyResponse(resp *Response) *Response {
	if resp == nil {
		return nil
	}
	cp := *resp
	if resp.Metrics != nil {
		cp.Metrics = make(map[string]float64, len(resp.Metrics))
		for k, v := range resp.Metrics {
			cp.Metrics[k] = v
		}
	}
	return &cp
}
