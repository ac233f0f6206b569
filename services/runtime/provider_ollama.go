package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements the Provider interface for Ollama (local LLMs).
type OllamaProvider struct {
	baseURL    string
	httpClient HTTPDoer
	models     []string
	modelsMu   sync.RWMutex
	lastCheck  time.Time
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second}, // Long timeout for local inference
		models:     []string{},
	}
}

// WithHTTPClient overrides the HTTP client, used in tests.
func (p *OllamaProvider) WithHTTPClient(client HTTPDoer) *OllamaProvider {
	p.httpClient = client
	return p
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Models() []string {
	p.modelsMu.RLock()
	if time.Since(p.lastCheck) < time.Minute && len(p.models) > 0 {
		models := p.models
		p.modelsMu.RUnlock()
		return models
	}
	p.modelsMu.RUnlock()

	p.refreshModels()

	p.modelsMu.RLock()
	defer p.modelsMu.RUnlock()
	return p.models
}

func (p *OllamaProvider) refreshModels() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return
	}

	p.modelsMu.Lock()
	defer p.modelsMu.Unlock()

	p.models = make([]string, len(result.Models))
	for i, m := range result.Models {
		p.models[i] = m.Name
	}
	p.lastCheck = time.Now()
}

func (p *OllamaProvider) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Ollama API types
type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, params CompletionParams) (*CompletionResult, error) {
	options := map[string]interface{}{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.TopP > 0 {
		options["top_p"] = params.TopP
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	reqBody := ollamaGenerateRequest{
		Model:   params.Model,
		Prompt:  params.Prompt,
		Stream:  false,
		Options: options,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API error: status %d", resp.StatusCode)
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if genResp.Response == "" {
		return nil, ErrEmptyCompletion
	}

	return &CompletionResult{
		Content:  genResp.Response,
		Provider: p.Name(),
		Model:    genResp.Model,
		Usage: Usage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
		Latency: time.Since(start),
	}, nil
}
