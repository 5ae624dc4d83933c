package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage confirmed issues",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue from an analysis run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		severity := insights.IssueSeverity(issueSeverity)
		if !severity.IsValid() {
			fatal("invalid severity %q (want CRITICAL, HIGH, MEDIUM or LOW)", issueSeverity)
		}
		evidence, err := parseEvidence(issueEvidence)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		id, err := client.CreateIssue(ctx, issueRunID, issueTitle, issueDescription, severity, issueHypothesisID, evidence)
		if err != nil {
			fatal("failed to create issue: %v", err)
		}
		fmt.Printf("Created issue %s\n", id)
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update an issue",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		req := &insights.UpdateIssueRequest{}
		if cmd.Flags().Changed("severity") {
			severity := insights.IssueSeverity(issueSeverity)
			if !severity.IsValid() {
				fatal("invalid severity %q (want CRITICAL, HIGH, MEDIUM or LOW)", issueSeverity)
			}
			req.Severity = &severity
		}
		if cmd.Flags().Changed("status") {
			status := insights.IssueStatus(issueStatus)
			if !status.IsValid() {
				fatal("invalid status %q (want OPEN, IN_PROGRESS, RESOLVED or REJECTED)", issueStatus)
			}
			req.Status = &status
		}
		if cmd.Flags().Changed("resolution") {
			req.Resolution = &issueResolution
		}
		if len(issueEvidence) > 0 {
			evidence, err := parseEvidence(issueEvidence)
			if err != nil {
				fatal("%v", err)
			}
			req.Evidence = evidence
		}
		if req.Severity == nil && req.Status == nil && req.Resolution == nil && req.Evidence == nil {
			fatal("nothing to update: pass --severity, --status, --resolution or --evidence")
		}

		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}
		if err := client.UpdateIssue(ctx, issueRunID, issueID, req); err != nil {
			fatal("failed to update issue: %v", err)
		}
		fmt.Printf("Updated issue %s\n", issueID)
	},
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues in an experiment, sorted by trace count",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(issueOutput) {
			fatal("invalid output format %q (want table or json)", issueOutput)
		}
		experimentID, err := resolveExperimentID(issueExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		issues, err := client.ListIssues(ctx, experimentID)
		if err != nil {
			fatal("failed to list issues: %v", err)
		}

		if issueOutput == outputJSON {
			printJSON(issues)
			return
		}

		header("Issues")
		if len(issues) == 0 {
			fmt.Println("  No issues found")
			return
		}
		for _, i := range issues {
			sev := severityColor(i.Severity)
			sc := statusColor(string(i.Status))
			fmt.Printf("  %s %s  %s\n", sev(i.Severity), sc(i.Status), truncate(i.Title, 60))
			fmt.Printf("    ID:     %s\n", i.IssueID)
			fmt.Printf("    Traces: %d\n", i.TraceCount)
			fmt.Println()
		}
	},
}

var issueGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one issue by ID",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(issueOutput) {
			fatal("invalid output format %q (want table or json)", issueOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		issue, err := client.GetIssue(ctx, issueID)
		if err != nil {
			fatal("failed to get issue: %v", err)
		}
		if issue == nil {
			fatal("issue %s not found", issueID)
		}

		if issueOutput == outputJSON {
			printJSON(issue)
			return
		}

		header("Issue")
		field("ID", issue.IssueID)
		field("Title", issue.Title)
		field("Severity", severityColor(issue.Severity)(issue.Severity))
		field("Status", statusColor(string(issue.Status))(issue.Status))
		field("Description", issue.Description)
		if issue.HypothesisID != "" {
			field("Hypothesis", issue.HypothesisID)
		}
		if issue.Resolution != "" {
			field("Resolution", issue.Resolution)
		}
		field("Traces", fmt.Sprintf("%d", issue.TraceCount()))
		fmt.Println()
	},
}

var issuePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview traces referenced by issues in an experiment",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(issueOutput) {
			fatal("invalid output format %q (want table or json)", issueOutput)
		}
		experimentID, err := resolveExperimentID(issueExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		traces, err := client.PreviewIssues(ctx, experimentID, issueMaxTraces)
		if err != nil {
			fatal("failed to preview issues: %v", err)
		}

		stats := insights.SummarizeTraces(traces)
		if issueOutput == outputJSON {
			printJSON(stats)
			return
		}
		printTraceStats(stats)
	},
}

var (
	issueExperimentID string
	issueRunID        string
	issueID           string
	issueTitle        string
	issueDescription  string
	issueSeverity     string
	issueStatus       string
	issueHypothesisID string
	issueResolution   string
	issueEvidence     []string
	issueOutput       string
	issueMaxTraces    int
)

func init() {
	issueCreateCmd.Flags().StringVar(&issueRunID, "run-id", "", "Run ID of the source analysis")
	issueCreateCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title")
	issueCreateCmd.Flags().StringVar(&issueDescription, "description", "", "Issue description")
	issueCreateCmd.Flags().StringVar(&issueSeverity, "severity", "", "Issue severity (CRITICAL, HIGH, MEDIUM, LOW)")
	issueCreateCmd.Flags().StringVar(&issueHypothesisID, "hypothesis-id", "", "Source hypothesis ID if validated from a hypothesis")
	issueCreateCmd.Flags().StringArrayVar(&issueEvidence, "evidence", nil, "Evidence as JSON with trace_id and rationale fields (repeatable)")
	issueCreateCmd.MarkFlagRequired("run-id")
	issueCreateCmd.MarkFlagRequired("title")
	issueCreateCmd.MarkFlagRequired("description")
	issueCreateCmd.MarkFlagRequired("severity")

	issueUpdateCmd.Flags().StringVar(&issueRunID, "run-id", "", "Any analysis run ID of the experiment")
	issueUpdateCmd.Flags().StringVar(&issueID, "issue-id", "", "Issue ID to update")
	issueUpdateCmd.Flags().StringVar(&issueSeverity, "severity", "", "Update severity (CRITICAL, HIGH, MEDIUM, LOW)")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "Update status (OPEN, IN_PROGRESS, RESOLVED, REJECTED)")
	issueUpdateCmd.Flags().StringVar(&issueResolution, "resolution", "", "Resolution description (marks as resolved)")
	issueUpdateCmd.Flags().StringArrayVar(&issueEvidence, "evidence", nil, "Additional evidence as JSON (repeatable)")
	issueUpdateCmd.MarkFlagRequired("run-id")
	issueUpdateCmd.MarkFlagRequired("issue-id")

	issueListCmd.Flags().StringVar(&issueExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	issueListCmd.Flags().StringVar(&issueOutput, "output", outputTable, "Output format (table or json)")

	issueGetCmd.Flags().StringVar(&issueID, "issue-id", "", "Issue ID")
	issueGetCmd.Flags().StringVar(&issueOutput, "output", outputTable, "Output format (table or json)")
	issueGetCmd.MarkFlagRequired("issue-id")

	issuePreviewCmd.Flags().StringVar(&issueExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	issuePreviewCmd.Flags().IntVar(&issueMaxTraces, "max-traces", 100, "Maximum traces to fetch")
	issuePreviewCmd.Flags().StringVar(&issueOutput, "output", outputTable, "Output format (table or json)")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueGetCmd)
	issueCmd.AddCommand(issuePreviewCmd)
}
