// Package config provides configuration for the CLI.
package config

import (
	"os"
	"strconv"
)

// Config holds CLI configuration.
type Config struct {
	// ExperimentAddr is the experiment service host:port.
	ExperimentAddr string

	// Format is the output format: table, json, or yaml.
	Format string

	// Verbose enables extra output.
	Verbose bool
}

// DefaultConfig returns the default configuration, overridable from the
// environment.
func DefaultConfig() *Config {
	return &Config{
		ExperimentAddr: getEnv("LUMEN_EXPERIMENT_ADDR", "localhost:8083"),
		Format:         getEnv("LUMEN_FORMAT", "table"),
		Verbose:        getEnvBool("LUMEN_VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}
