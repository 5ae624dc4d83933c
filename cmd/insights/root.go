package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/tracking"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "Trace insights stored as artifacts on MLflow runs",
	Long: "insights manages analyses, hypotheses and issues for agent trace\n" +
		"investigations, persisted as YAML artifacts on MLflow runs.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(analysisCmd)
	rootCmd.AddCommand(hypothesisCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(censusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tracesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// newTrackingClient builds a tracking client from the environment.
func newTrackingClient() (*tracking.Client, error) {
	client, err := tracking.NewClient(tracking.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking client: %w", err)
	}
	return client, nil
}

// newInsightsClient builds the SDK client from the environment.
func newInsightsClient() (*insights.Client, error) {
	t, err := newTrackingClient()
	if err != nil {
		return nil, err
	}
	return insights.NewClient(t), nil
}

// resolveExperimentID falls back to MLFLOW_EXPERIMENT_ID when the flag
// is empty.
func resolveExperimentID(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(tracking.EnvExperimentID); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("experiment ID required: pass --experiment-id or set %s", tracking.EnvExperimentID)
}

// parseEvidence decodes repeatable --evidence JSON flags.
func parseEvidence(raw []string) ([]insights.EvidenceInput, error) {
	var out []insights.EvidenceInput
	for _, item := range raw {
		var ev insights.EvidenceInput
		dec := json.NewDecoder(strings.NewReader(item))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("invalid evidence JSON %q: %w", item, err)
		}
		if ev.TraceID == "" {
			return nil, fmt.Errorf("evidence %q missing trace_id", item)
		}
		out = append(out, ev)
	}
	return out, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
