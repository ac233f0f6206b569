package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlabs/lumen/cli/internal/client"
	"github.com/lumenlabs/lumen/cli/internal/output"
	"github.com/lumenlabs/lumen/services/experiment"
	"github.com/lumenlabs/lumen/services/scoring"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage experiments",
	Long:  "Commands for submitting, inspecting, and exporting experiments.",
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(cfg.ExperimentAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		summaries, err := c.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(summaries)
		}

		table := output.Table{
			Headers: []string{"ID", "NAME", "RUNS", "STATUS", "CREATED"},
			Rows:    make([][]string, len(summaries)),
		}
		for i, s := range summaries {
			table.Rows[i] = []string{
				shortID(s.ID),
				s.Name,
				strconv.Itoa(s.TotalRuns),
				string(s.Status),
				s.CreatedAt.Format("2006-01-02 15:04"),
			}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

var experimentGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get an experiment with its runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(cfg.ExperimentAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		exp, err := c.GetExperiment(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(exp)
		}

		output.Info("Experiment %s (%s)", exp.ID, exp.Status)
		output.Info("Prompt: %s", exp.UserPrompt)
		output.Info("Model: %s", exp.ModelName)

		table := output.Table{
			Headers: []string{"RUN", "TEMP", "TOP_P", "MAX_TOKENS", "STATUS", "OVERALL", "LATENCY_MS"},
			Rows:    make([][]string, len(exp.Runs)),
		}
		for i, run := range exp.Runs {
			overall, latency := "", ""
			if run.Response != nil {
				if v, ok := run.Response.Metrics[scoring.MetricOverall]; ok {
					overall = strconv.FormatFloat(v, 'f', 3, 64)
				}
				if run.Response.LatencyMs > 0 {
					latency = strconv.FormatFloat(run.Response.LatencyMs, 'f', 0, 64)
				}
			}
			table.Rows[i] = []string{
				shortID(run.ID),
				strconv.FormatFloat(run.Temperature, 'g', -1, 64),
				strconv.FormatFloat(run.TopP, 'g', -1, 64),
				strconv.Itoa(run.MaxOutputTokens),
				string(run.Status),
				overall,
				latency,
			}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		name, _ := cmd.Flags().GetString("name")
		model, _ := cmd.Flags().GetString("model")
		runs, _ := cmd.Flags().GetInt("runs")
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		topP, _ := cmd.Flags().GetFloat64("top-p")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")

		create := experiment.Create{
			UserPrompt: prompt,
			Name:       name,
			ModelName:  model,
			TotalRuns:  runs,
			Runs:       make([]experiment.RunCreate, runs),
		}
		for i := range create.Runs {
			create.Runs[i] = experiment.RunCreate{
				Temperature:     temperature,
				TopP:            topP,
				MaxOutputTokens: maxTokens,
			}
		}

		c := client.New(cfg.ExperimentAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		exp, err := c.CreateExperiment(ctx, create)
		if err != nil {
			return fmt.Errorf("failed to create experiment: %w", err)
		}

		output.Success("Submitted experiment %s with %d runs", exp.ID, exp.TotalRuns)

		if cfg.Verbose {
			w := output.NewWriter(cfg.Format)
			return w.Print(exp)
		}

		return nil
	},
}

var experimentExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export experiment results as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		c := client.New(cfg.ExperimentAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if file == "" {
			return c.ExportCSV(ctx, args[0], os.Stdout)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", file, err)
		}
		defer f.Close()

		if err := c.ExportCSV(ctx, args[0], f); err != nil {
			return fmt.Errorf("failed to export experiment: %w", err)
		}

		output.Success("Exported experiment %s to %s", args[0], file)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	experimentCreateCmd.Flags().String("prompt", "", "User prompt sent to the model (required)")
	experimentCreateCmd.Flags().String("name", "", "Experiment name")
	experimentCreateCmd.Flags().String("model", "gpt-4o-mini", "Model name")
	experimentCreateCmd.Flags().Int("runs", 3, "Number of runs")
	experimentCreateCmd.Flags().Float64("temperature", 1.0, "Sampling temperature [0,2]")
	experimentCreateCmd.Flags().Float64("top-p", 1.0, "Nucleus sampling [0,1]")
	experimentCreateCmd.Flags().Int("max-tokens", 256, "Max output tokens per run")
	experimentCreateCmd.MarkFlagRequired("prompt")

	experimentExportCmd.Flags().String("file", "", "Write CSV to this file instead of stdout")

	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentGetCmd)
	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentExportCmd)
}
