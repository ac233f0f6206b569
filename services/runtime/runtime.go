// Package runtime provides generation provider clients for experiment runs.
package runtime

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"
)

// ErrEmptyCompletion is returned when a provider responds with no text.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// CompletionParams holds the parameters for a single generation call.
type CompletionParams struct {
	Prompt      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is the outcome of a successful generation call.
type CompletionResult struct {
	Content  string
	Provider string
	Model    string
	Usage    Usage
	Latency  time.Duration
}

// Provider defines the interface for generation providers.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string

	// Available checks if the provider is available.
	Available(ctx context.Context) bool

	// Complete performs a completion request.
	Complete(ctx context.Context, params CompletionParams) (*CompletionResult, error)
}

// HTTPDoer abstracts the HTTP client so tests can substitute a mock.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry manages available providers and routes models to them.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// List returns all registered providers sorted by name.
func (r *Registry) List() []Provider {
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Name() < providers[j].Name()
	})
	return providers
}

// ForModel returns the first provider that serves the given model.
func (r *Registry) ForModel(model string) (Provider, bool) {
	for _, p := range r.List() {
		for _, m := range p.Models() {
			if m == model {
				return p, true
			}
		}
	}
	return nil, false
}

// Available returns all available providers.
func (r *Registry) Available(ctx context.Context) []Provider {
	var available []Provider
	for _, p := range r.List() {
		if p.Available(ctx) {
			available = append(available, p)
		}
	}
	return available
}
