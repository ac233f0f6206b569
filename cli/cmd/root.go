// Package cmd contains CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lumenlabs/lumen/cli/internal/config"
)

var (
	cfg     *config.Config
	format  string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumen CLI - LLM Experiment Platform",
	Long: `Lumen runs repeated-sampling experiments against LLM providers and
scores every response with deterministic text metrics.

Examples:
  # List experiments
  lumen experiment list

  # Submit an experiment with 5 runs
  lumen experiment create --prompt "Describe Lorem Ipsum" --model gpt-4 --runs 5

  # Inspect results
  lumen experiment get <id>

  # Download results as CSV
  lumen experiment export <id> --file results.csv
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.DefaultConfig()
		if format != "" {
			cfg.Format = format
		}
		cfg.Verbose = verbose
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(experimentCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version info.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("lumen version 0.1.0")
	},
}
