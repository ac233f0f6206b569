package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWriter(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   Format
	}{
		{"json format", "json", FormatJSON},
		{"yaml format", "yaml", FormatYAML},
		{"table format", "table", FormatTable},
		{"unknown defaults to table", "unknown", FormatTable},
		{"empty defaults to table", "", FormatTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(tt.format)
			if w.format != tt.want {
				t.Errorf("NewWriter(%q).format = %v, want %v", tt.format, w.format, tt.want)
			}
		})
	}
}

func TestWriter_PrintJSON(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{format: FormatJSON, out: &buf}

	data := map[string]string{"status": "completed", "id": "exp-1"}
	if err := w.Print(data); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["status"] != "completed" {
		t.Errorf("status = %q, want completed", decoded["status"])
	}
}

func TestWriter_PrintYAML(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{format: FormatYAML, out: &buf}

	data := map[string]string{"status": "completed"}
	if err := w.Print(data); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if !strings.Contains(buf.String(), "status: completed") {
		t.Errorf("YAML output = %q, want status: completed", buf.String())
	}
}

func TestWriter_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{format: FormatTable, out: &buf}

	table := Table{
		Headers: []string{"ID", "STATUS"},
		Rows: [][]string{
			{"exp-1", "completed"},
			{"exp-2", "partial"},
		},
	}
	if err := w.Print(table); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[2], "partial") {
		t.Errorf("row line = %q, want partial", lines[2])
	}
}

func TestWriter_PrintTable_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{format: FormatTable, out: &buf}

	if err := w.Print(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"n": 1`) {
		t.Errorf("fallback output = %q, want JSON", buf.String())
	}
}
