package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumenlabs/lumen/services/experiment"
)

func TestNew_AddressNormalization(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"localhost:8083", "http://localhost:8083"},
		{"http://localhost:8083", "http://localhost:8083"},
		{"https://api.example.com/", "https://api.example.com"},
	}

	for _, tt := range tests {
		if got := New(tt.addr).baseURL; got != tt.want {
			t.Errorf("New(%q).baseURL = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestClient_ListExperiments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/experiments/" {
			t.Errorf("path = %q, want /experiments/", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]experiment.Summary{
			{ID: "exp-1", TotalRuns: 3, Status: experiment.StatusCompleted},
		})
	}))
	defer server.Close()

	summaries, err := New(server.URL).ListExperiments(context.Background())
	if err != nil {
		t.Fatalf("ListExperiments() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "exp-1" {
		t.Errorf("summaries = %+v, want one with id exp-1", summaries)
	}
}

func TestClient_GetExperiment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/experiments/exp-1/":
			json.NewEncoder(w).Encode(experiment.Experiment{ID: "exp-1", Status: experiment.StatusRunning})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "experiment not found"})
		}
	}))
	defer server.Close()

	c := New(server.URL)

	exp, err := c.GetExperiment(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment() error = %v", err)
	}
	if exp.ID != "exp-1" {
		t.Errorf("id = %v, want exp-1", exp.ID)
	}

	_, err = c.GetExperiment(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "experiment not found" {
		t.Errorf("Message = %q, want the service error body", apiErr.Message)
	}
}

func TestClient_CreateExperiment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %v, want POST", r.Method)
		}
		var create experiment.Create
		if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
			t.Errorf("request decode error = %v", err)
		}
		if create.UserPrompt == "" {
			t.Error("request has no user_prompt")
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(experiment.Experiment{ID: "exp-new", Status: experiment.StatusPending})
	}))
	defer server.Close()

	exp, err := New(server.URL).CreateExperiment(context.Background(), experiment.Create{
		UserPrompt: "Generate a description about Lorem Ipsum",
		ModelName:  "gpt-4",
		TotalRuns:  1,
		Runs:       []experiment.RunCreate{{Temperature: 1, TopP: 1, MaxOutputTokens: 50}},
	})
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	if exp.ID != "exp-new" {
		t.Errorf("id = %v, want exp-new", exp.ID)
	}
}

func TestClient_ExportCSV(t *testing.T) {
	const csvBody = "temperature,top_p\n1,1\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/export/csv/") {
			t.Errorf("path = %q, want export suffix", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(csvBody))
	}))
	defer server.Close()

	var buf strings.Builder
	if err := New(server.URL).ExportCSV(context.Background(), "exp-1", &buf); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if buf.String() != csvBody {
		t.Errorf("body = %q, want %q", buf.String(), csvBody)
	}
}
