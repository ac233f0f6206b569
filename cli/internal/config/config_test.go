package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	envVars := []string{"LUMEN_EXPERIMENT_ADDR", "LUMEN_FORMAT", "LUMEN_VERBOSE"}
	originalValues := make(map[string]string)
	for _, key := range envVars {
		originalValues[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, val := range originalValues {
			if val == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, val)
			}
		}
	}()

	t.Run("default values", func(t *testing.T) {
		cfg := DefaultConfig()

		if cfg.ExperimentAddr != "localhost:8083" {
			t.Errorf("ExperimentAddr = %v, want localhost:8083", cfg.ExperimentAddr)
		}
		if cfg.Format != "table" {
			t.Errorf("Format = %v, want table", cfg.Format)
		}
		if cfg.Verbose {
			t.Error("Verbose = true, want false")
		}
	})

	t.Run("from environment", func(t *testing.T) {
		os.Setenv("LUMEN_EXPERIMENT_ADDR", "experiments.example.com:8083")
		os.Setenv("LUMEN_FORMAT", "json")
		os.Setenv("LUMEN_VERBOSE", "true")

		cfg := DefaultConfig()

		if cfg.ExperimentAddr != "experiments.example.com:8083" {
			t.Errorf("ExperimentAddr = %v, want experiments.example.com:8083", cfg.ExperimentAddr)
		}
		if cfg.Format != "json" {
			t.Errorf("Format = %v, want json", cfg.Format)
		}
		if !cfg.Verbose {
			t.Error("Verbose = false, want true")
		}
	})
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"TRUE", true},
	}

	for _, tt := range tests {
		os.Setenv("TEST_GET_ENV_BOOL", tt.value)
		result := getEnvBool("TEST_GET_ENV_BOOL", !tt.want)
		if result != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, result, tt.want)
		}
	}
	os.Unsetenv("TEST_GET_ENV_BOOL")

	t.Run("invalid value returns default", func(t *testing.T) {
		os.Setenv("TEST_GET_ENV_BOOL", "not-a-bool")
		defer os.Unsetenv("TEST_GET_ENV_BOOL")

		if !getEnvBool("TEST_GET_ENV_BOOL", true) {
			t.Error("getEnvBool() with invalid value = false, want true (default)")
		}
	})
}
