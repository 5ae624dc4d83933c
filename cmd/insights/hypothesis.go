package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
)

var hypothesisCmd = &cobra.Command{
	Use:   "hypothesis",
	Short: "Manage hypotheses within an analysis",
}

var hypothesisCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a hypothesis on an analysis run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		evidence, err := parseEvidence(hypothesisEvidence)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		id, err := client.CreateHypothesis(ctx, hypothesisRunID, hypothesisStatement, hypothesisRationale, hypothesisTestingPlan, evidence)
		if err != nil {
			fatal("failed to create hypothesis: %v", err)
		}

		fmt.Printf("Created hypothesis %s\n", id)
	},
}

var hypothesisUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a hypothesis",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		req := &insights.UpdateHypothesisRequest{}
		if cmd.Flags().Changed("status") {
			status := insights.HypothesisStatus(hypothesisStatus)
			if !status.IsValid() {
				fatal("invalid status %q (want TESTING, VALIDATED or REJECTED)", hypothesisStatus)
			}
			req.Status = &status
		}
		if cmd.Flags().Changed("rationale") {
			req.Rationale = &hypothesisRationale
		}
		if cmd.Flags().Changed("testing-plan") {
			req.TestingPlan = &hypothesisTestingPlan
		}
		if len(hypothesisEvidence) > 0 {
			evidence, err := parseEvidence(hypothesisEvidence)
			if err != nil {
				fatal("%v", err)
			}
			req.Evidence = evidence
		}
		if req.Status == nil && req.Rationale == nil && req.TestingPlan == nil && req.Evidence == nil {
			fatal("nothing to update: pass --status, --rationale, --testing-plan or --evidence")
		}

		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}
		if err := client.UpdateHypothesis(ctx, hypothesisRunID, hypothesisID, req); err != nil {
			fatal("failed to update hypothesis: %v", err)
		}
		fmt.Printf("Updated hypothesis %s\n", hypothesisID)
	},
}

var hypothesisListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hypotheses on an analysis run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(hypothesisOutput) {
			fatal("invalid output format %q (want table or json)", hypothesisOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		hypotheses, err := client.ListHypotheses(ctx, hypothesisRunID)
		if err != nil {
			fatal("failed to list hypotheses: %v", err)
		}

		if hypothesisOutput == outputJSON {
			printJSON(hypotheses)
			return
		}

		header("Hypotheses")
		if len(hypotheses) == 0 {
			fmt.Println("  No hypotheses found")
			return
		}
		for _, h := range hypotheses {
			sc := statusColor(string(h.Status))
			fmt.Printf("  %s  %s\n", sc(h.Status), truncate(h.Statement, 70))
			fmt.Printf("    ID:       %s\n", h.HypothesisID)
			fmt.Printf("    Evidence: %d (%d supports, %d refutes, %d traces)\n",
				h.EvidenceCount, h.SupportsCount, h.RefutesCount, h.TraceCount)
			fmt.Println()
		}
	},
}

var hypothesisGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one hypothesis",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(hypothesisOutput) {
			fatal("invalid output format %q (want table or json)", hypothesisOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		h, err := client.GetHypothesis(ctx, hypothesisRunID, hypothesisID)
		if err != nil {
			fatal("failed to get hypothesis: %v", err)
		}
		if h == nil {
			fatal("hypothesis %s not found on run %s", hypothesisID, hypothesisRunID)
		}

		if hypothesisOutput == outputJSON {
			printJSON(h)
			return
		}

		header("Hypothesis")
		field("ID", h.HypothesisID)
		field("Status", statusColor(string(h.Status))(h.Status))
		field("Statement", h.Statement)
		if h.Rationale != "" {
			field("Rationale", h.Rationale)
		}
		field("Testing plan", h.TestingPlan)
		field("Evidence", fmt.Sprintf("%d entries across %d traces", h.EvidenceCount(), h.TraceCount()))
		for _, e := range h.Evidence {
			marker := "+"
			if e.Supports != nil && !*e.Supports {
				marker = "-"
			}
			fmt.Printf("    %s %s: %s\n", marker, e.TraceID, truncate(e.Rationale, 60))
		}
		fmt.Println()
	},
}

var hypothesisPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview traces referenced by hypotheses on a run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(hypothesisOutput) {
			fatal("invalid output format %q (want table or json)", hypothesisOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		traces, err := client.PreviewHypotheses(ctx, hypothesisRunID, hypothesisMaxTraces)
		if err != nil {
			fatal("failed to preview hypotheses: %v", err)
		}

		stats := insights.SummarizeTraces(traces)
		if hypothesisOutput == outputJSON {
			printJSON(stats)
			return
		}
		printTraceStats(stats)
	},
}

var (
	hypothesisRunID       string
	hypothesisID          string
	hypothesisStatement   string
	hypothesisRationale   string
	hypothesisTestingPlan string
	hypothesisStatus      string
	hypothesisEvidence    []string
	hypothesisOutput      string
	hypothesisMaxTraces   int
)

func init() {
	hypothesisCreateCmd.Flags().StringVar(&hypothesisRunID, "run-id", "", "Run ID of the analysis")
	hypothesisCreateCmd.Flags().StringVar(&hypothesisStatement, "statement", "", "Hypothesis statement to test")
	hypothesisCreateCmd.Flags().StringVar(&hypothesisRationale, "rationale", "", "Detailed rationale for the hypothesis")
	hypothesisCreateCmd.Flags().StringVar(&hypothesisTestingPlan, "testing-plan", "", "Detailed plan for testing the hypothesis")
	hypothesisCreateCmd.Flags().StringArrayVar(&hypothesisEvidence, "evidence", nil, "Evidence as JSON with trace_id, rationale and supports fields (repeatable)")
	hypothesisCreateCmd.MarkFlagRequired("run-id")
	hypothesisCreateCmd.MarkFlagRequired("statement")
	hypothesisCreateCmd.MarkFlagRequired("rationale")
	hypothesisCreateCmd.MarkFlagRequired("testing-plan")

	hypothesisUpdateCmd.Flags().StringVar(&hypothesisRunID, "run-id", "", "Run ID of the analysis")
	hypothesisUpdateCmd.Flags().StringVar(&hypothesisID, "hypothesis-id", "", "Hypothesis ID to update")
	hypothesisUpdateCmd.Flags().StringVar(&hypothesisStatus, "status", "", "Update hypothesis status (TESTING, VALIDATED, REJECTED)")
	hypothesisUpdateCmd.Flags().StringVar(&hypothesisRationale, "rationale", "", "Update hypothesis rationale")
	hypothesisUpdateCmd.Flags().StringVar(&hypothesisTestingPlan, "testing-plan", "", "Update testing plan")
	hypothesisUpdateCmd.Flags().StringArrayVar(&hypothesisEvidence, "evidence", nil, "Additional evidence as JSON (repeatable)")
	hypothesisUpdateCmd.MarkFlagRequired("run-id")
	hypothesisUpdateCmd.MarkFlagRequired("hypothesis-id")

	hypothesisListCmd.Flags().StringVar(&hypothesisRunID, "run-id", "", "Run ID of the analysis")
	hypothesisListCmd.Flags().StringVar(&hypothesisOutput, "output", outputTable, "Output format (table or json)")
	hypothesisListCmd.MarkFlagRequired("run-id")

	hypothesisGetCmd.Flags().StringVar(&hypothesisRunID, "run-id", "", "Run ID of the analysis")
	hypothesisGetCmd.Flags().StringVar(&hypothesisID, "hypothesis-id", "", "Hypothesis ID")
	hypothesisGetCmd.Flags().StringVar(&hypothesisOutput, "output", outputTable, "Output format (table or json)")
	hypothesisGetCmd.MarkFlagRequired("run-id")
	hypothesisGetCmd.MarkFlagRequired("hypothesis-id")

	hypothesisPreviewCmd.Flags().StringVar(&hypothesisRunID, "run-id", "", "Run ID of the analysis")
	hypothesisPreviewCmd.Flags().IntVar(&hypothesisMaxTraces, "max-traces", 100, "Maximum traces to fetch")
	hypothesisPreviewCmd.Flags().StringVar(&hypothesisOutput, "output", outputTable, "Output format (table or json)")
	hypothesisPreviewCmd.MarkFlagRequired("run-id")

	hypothesisCmd.AddCommand(hypothesisCreateCmd)
	hypothesisCmd.AddCommand(hypothesisUpdateCmd)
	hypothesisCmd.AddCommand(hypothesisListCmd)
	hypothesisCmd.AddCommand(hypothesisGetCmd)
	hypothesisCmd.AddCommand(hypothesisPreviewCmd)
}
