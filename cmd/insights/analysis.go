package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Manage analyses",
}

var analysisCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new analysis run in an experiment",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		experimentID, err := resolveExperimentID(analysisExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		runID, err := client.CreateAnalysis(ctx, experimentID, analysisRunName, analysisName, analysisDescription)
		if err != nil {
			fatal("failed to create analysis: %v", err)
		}

		fmt.Printf("Created analysis %q\n", analysisName)
		fmt.Printf("Run ID: %s\n", runID)
	},
}

var analysisUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update an analysis",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		req := &insights.UpdateAnalysisRequest{}
		if cmd.Flags().Changed("name") {
			req.Name = &analysisName
		}
		if cmd.Flags().Changed("description") {
			req.Description = &analysisDescription
		}
		if cmd.Flags().Changed("status") {
			status := insights.AnalysisStatus(analysisStatus)
			if !status.IsValid() {
				fatal("invalid status %q (want ACTIVE, COMPLETED or ARCHIVED)", analysisStatus)
			}
			req.Status = &status
		}
		if req.Name == nil && req.Description == nil && req.Status == nil {
			fatal("nothing to update: pass --name, --description or --status")
		}

		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}
		if err := client.UpdateAnalysis(ctx, analysisRunID, req); err != nil {
			fatal("failed to update analysis: %v", err)
		}
		fmt.Printf("Updated analysis on run %s\n", analysisRunID)
	},
}

var analysisListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyses in an experiment",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(analysisOutput) {
			fatal("invalid output format %q (want table or json)", analysisOutput)
		}
		experimentID, err := resolveExperimentID(analysisExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		analyses, err := client.ListAnalyses(ctx, experimentID)
		if err != nil {
			fatal("failed to list analyses: %v", err)
		}

		if analysisOutput == outputJSON {
			printJSON(analyses)
			return
		}

		header("Analyses")
		if len(analyses) == 0 {
			fmt.Println("  No analyses found")
			return
		}
		for _, a := range analyses {
			sc := statusColor(string(a.Status))
			fmt.Printf("  %s  %s\n", sc(a.Status), a.Name)
			fmt.Printf("    Run ID:     %s\n", a.RunID)
			fmt.Printf("    Hypotheses: %d (%d validated)\n", a.HypothesisCount, a.ValidatedCount)
			fmt.Printf("    Updated:    %s\n", a.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Println()
		}
	},
}

var analysisGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one analysis",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(analysisOutput) {
			fatal("invalid output format %q (want table or json)", analysisOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		analysis, err := client.GetAnalysis(ctx, analysisRunID)
		if err != nil {
			fatal("failed to get analysis: %v", err)
		}
		if analysis == nil {
			fatal("no analysis found on run %s", analysisRunID)
		}

		if analysisOutput == outputJSON {
			printJSON(analysis)
			return
		}

		header("Analysis")
		field("Name", analysis.Name)
		field("Status", statusColor(string(analysis.Status))(analysis.Status))
		field("Description", analysis.Description)
		field("Created", analysis.CreatedAt.Format("2006-01-02 15:04:05"))
		field("Updated", analysis.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	},
}

var (
	analysisExperimentID string
	analysisRunID        string
	analysisRunName      string
	analysisName         string
	analysisDescription  string
	analysisStatus       string
	analysisOutput       string
)

func init() {
	analysisCreateCmd.Flags().StringVar(&analysisExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	analysisCreateCmd.Flags().StringVar(&analysisRunName, "run-name", "", "Short name (3-4 words) for the MLflow run")
	analysisCreateCmd.Flags().StringVar(&analysisName, "name", "", "Name for the analysis")
	analysisCreateCmd.Flags().StringVar(&analysisDescription, "description", "", "Description of what this analysis is investigating")
	analysisCreateCmd.MarkFlagRequired("run-name")
	analysisCreateCmd.MarkFlagRequired("name")
	analysisCreateCmd.MarkFlagRequired("description")

	analysisUpdateCmd.Flags().StringVar(&analysisRunID, "run-id", "", "Run ID of the analysis")
	analysisUpdateCmd.Flags().StringVar(&analysisName, "name", "", "Update analysis name")
	analysisUpdateCmd.Flags().StringVar(&analysisDescription, "description", "", "Update analysis description")
	analysisUpdateCmd.Flags().StringVar(&analysisStatus, "status", "", "Update analysis status (ACTIVE, COMPLETED, ARCHIVED)")
	analysisUpdateCmd.MarkFlagRequired("run-id")

	analysisListCmd.Flags().StringVar(&analysisExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	analysisListCmd.Flags().StringVar(&analysisOutput, "output", outputTable, "Output format (table or json)")

	analysisGetCmd.Flags().StringVar(&analysisRunID, "run-id", "", "Run ID of the analysis")
	analysisGetCmd.Flags().StringVar(&analysisOutput, "output", outputTable, "Output format (table or json)")
	analysisGetCmd.MarkFlagRequired("run-id")

	analysisCmd.AddCommand(analysisCreateCmd)
	analysisCmd.AddCommand(analysisUpdateCmd)
	analysisCmd.AddCommand(analysisListCmd)
	analysisCmd.AddCommand(analysisGetCmd)
}
