package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/tracedb"
	"github.com/tracewise/insights/internal/tracking"
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Search and manage traces on the tracking server",
}

var tracesSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search traces in an experiment",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(tracesOutput) {
			fatal("invalid output format %q (want table or json)", tracesOutput)
		}
		experimentID, err := resolveExperimentID(tracesExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}

		resp, err := client.SearchTraces(ctx, &tracking.SearchTracesRequest{
			ExperimentIDs: []string{experimentID},
			Filter:        tracesFilter,
			MaxResults:    tracesMaxResults,
			OrderBy:       tracesOrderBy,
			PageToken:     tracesPageToken,
			RunID:         tracesRunID,
		})
		if err != nil {
			fatal("failed to search traces: %v", err)
		}

		if tracesOutput == outputJSON {
			printJSON(resp)
			return
		}

		header("Traces")
		if len(resp.Traces) == 0 {
			fmt.Println("  No traces found")
			return
		}
		for _, tr := range resp.Traces {
			info := tr.Info
			sc := statusColor(string(info.State))
			fmt.Printf("  %s  %s (%dms)\n", sc(info.State), info.TraceID, info.ExecutionDurationMS)
			if info.RequestPreview != "" {
				fmt.Printf("    Request: %s\n", truncate(info.RequestPreview, 70))
			}
		}
		if resp.NextPageToken != "" {
			fmt.Printf("\n  Next page: --page-token %s\n", resp.NextPageToken)
		}
		fmt.Println()
	},
}

var tracesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch one trace by ID",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}
		trace, err := client.GetTrace(ctx, tracesTraceID)
		if err != nil {
			fatal("failed to get trace: %v", err)
		}
		printJSON(trace)
	},
}

var tracesDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete traces by ID or age",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		experimentID, err := resolveExperimentID(tracesExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}

		req := &tracking.DeleteTracesRequest{
			ExperimentID:       experimentID,
			MaxTimestampMillis: tracesMaxTimestamp,
			MaxTraces:          tracesMaxTraces,
		}
		if tracesTraceIDs != "" {
			req.TraceIDs = strings.Split(tracesTraceIDs, ",")
		}

		deleted, err := client.DeleteTraces(ctx, req)
		if err != nil {
			fatal("failed to delete traces: %v", err)
		}
		fmt.Printf("Deleted %d trace(s)\n", deleted)
	},
}

var tracesSetTagCmd = &cobra.Command{
	Use:   "set-tag",
	Short: "Set a tag on a trace",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}
		if err := client.SetTraceTag(ctx, tracesTraceID, tracesTagKey, tracesTagValue); err != nil {
			fatal("failed to set tag: %v", err)
		}
		fmt.Printf("Set tag %s=%s on trace %s\n", tracesTagKey, tracesTagValue, tracesTraceID)
	},
}

var tracesDeleteTagCmd = &cobra.Command{
	Use:   "delete-tag",
	Short: "Delete a tag from a trace",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}
		if err := client.DeleteTraceTag(ctx, tracesTraceID, tracesTagKey); err != nil {
			fatal("failed to delete tag: %v", err)
		}
		fmt.Printf("Deleted tag %s from trace %s\n", tracesTagKey, tracesTraceID)
	},
}

var tracesIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Mirror trace metadata into a local index for correlation scans",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		experimentID, err := resolveExperimentID(tracesExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		client, err := newTrackingClient()
		if err != nil {
			fatal("%v", err)
		}
		db, err := tracedb.Open(tracesIndexPath)
		if err != nil {
			fatal("failed to open trace index: %v", err)
		}
		defer db.Close()

		indexed := 0
		pageToken := ""
		for {
			resp, err := client.SearchTraces(ctx, &tracking.SearchTracesRequest{
				ExperimentIDs: []string{experimentID},
				Filter:        tracesFilter,
				MaxResults:    500,
				PageToken:     pageToken,
			})
			if err != nil {
				fatal("failed to search traces: %v", err)
			}
			if err := db.IndexTraces(ctx, resp.Traces); err != nil {
				fatal("failed to index traces: %v", err)
			}
			indexed += len(resp.Traces)
			if resp.NextPageToken == "" || len(resp.Traces) == 0 {
				break
			}
			pageToken = resp.NextPageToken
		}
		fmt.Printf("Indexed %d trace(s) into %s\n", indexed, tracesIndexPath)
	},
}

var tracesCorrelateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Score how strongly tag values co-occur with trace errors",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(tracesOutput) {
			fatal("invalid output format %q (want table or json)", tracesOutput)
		}
		if len(tracesTagKeys) == 0 {
			fatal("at least one --tag-key is required")
		}
		experimentID, err := resolveExperimentID(tracesExperimentID)
		if err != nil {
			fatal("%v", err)
		}
		db, err := tracedb.Open(tracesIndexPath)
		if err != nil {
			fatal("failed to open trace index: %v", err)
		}
		defer db.Close()

		items, err := db.ErrorCorrelations(ctx, experimentID, tracesTagKeys)
		if err != nil {
			fatal("failed to compute correlations: %v", err)
		}
		if tracesLimit > 0 && len(items) > tracesLimit {
			items = items[:tracesLimit]
		}

		if tracesOutput == outputJSON {
			printJSON(items)
			return
		}

		header("Error Correlations")
		if len(items) == 0 {
			fmt.Println("  No indexed traces (run 'insights traces index' first)")
			return
		}
		for _, item := range items {
			strength := string(item.Strength)
			sc := statusColor("") // gray
			switch item.Strength {
			case insights.StrengthStrong:
				sc = statusColor("ERROR")
			case insights.StrengthModerate:
				sc = statusColor(string(insights.AnalysisActive))
			}
			fmt.Printf("  %+.3f %-9s %s=%s\n", item.Score, sc(strength), item.Dimension, item.Value)
			fmt.Printf("         %d trace(s), %.1f%% of errors, %.1f%% of all\n",
				item.TraceCount, item.PercentageOfSlice, item.PercentageOfTotal)
		}
		fmt.Println()
	},
}

var (
	tracesExperimentID string
	tracesRunID        string
	tracesTraceID      string
	tracesTraceIDs     string
	tracesFilter       string
	tracesOrderBy      []string
	tracesPageToken    string
	tracesMaxResults   int
	tracesMaxTimestamp int64
	tracesMaxTraces    int
	tracesTagKey       string
	tracesTagValue     string
	tracesTagKeys      []string
	tracesIndexPath    string
	tracesLimit        int
	tracesOutput       string
)

func init() {
	tracesSearchCmd.Flags().StringVar(&tracesExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	tracesSearchCmd.Flags().StringVar(&tracesFilter, "filter", "", "Search filter string")
	tracesSearchCmd.Flags().IntVar(&tracesMaxResults, "max-results", 100, "Maximum traces to return")
	tracesSearchCmd.Flags().StringArrayVar(&tracesOrderBy, "order-by", nil, "Order-by clause (repeatable)")
	tracesSearchCmd.Flags().StringVar(&tracesPageToken, "page-token", "", "Token for pagination from previous search")
	tracesSearchCmd.Flags().StringVar(&tracesRunID, "run-id", "", "Filter traces by run ID")
	tracesSearchCmd.Flags().StringVar(&tracesOutput, "output", outputTable, "Output format (table or json)")

	tracesGetCmd.Flags().StringVar(&tracesTraceID, "trace-id", "", "Trace ID")
	tracesGetCmd.MarkFlagRequired("trace-id")

	tracesDeleteCmd.Flags().StringVar(&tracesExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	tracesDeleteCmd.Flags().StringVar(&tracesTraceIDs, "trace-ids", "", "Comma-separated list of trace IDs to delete")
	tracesDeleteCmd.Flags().Int64Var(&tracesMaxTimestamp, "max-timestamp-millis", 0, "Delete traces older than this timestamp")
	tracesDeleteCmd.Flags().IntVar(&tracesMaxTraces, "max-traces", 0, "Maximum number of traces to delete")

	tracesSetTagCmd.Flags().StringVar(&tracesTraceID, "trace-id", "", "Trace ID")
	tracesSetTagCmd.Flags().StringVar(&tracesTagKey, "key", "", "Tag key")
	tracesSetTagCmd.Flags().StringVar(&tracesTagValue, "value", "", "Tag value")
	tracesSetTagCmd.MarkFlagRequired("trace-id")
	tracesSetTagCmd.MarkFlagRequired("key")
	tracesSetTagCmd.MarkFlagRequired("value")

	tracesDeleteTagCmd.Flags().StringVar(&tracesTraceID, "trace-id", "", "Trace ID")
	tracesDeleteTagCmd.Flags().StringVar(&tracesTagKey, "key", "", "Tag key to delete")
	tracesDeleteTagCmd.MarkFlagRequired("trace-id")
	tracesDeleteTagCmd.MarkFlagRequired("key")

	tracesIndexCmd.Flags().StringVar(&tracesExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	tracesIndexCmd.Flags().StringVar(&tracesFilter, "filter", "", "Search filter string")
	tracesIndexCmd.Flags().StringVar(&tracesIndexPath, "db", ".insights/traces.db", "Path to the local trace index")

	tracesCorrelateCmd.Flags().StringVar(&tracesExperimentID, "experiment-id", "", "Experiment ID (falls back to MLFLOW_EXPERIMENT_ID)")
	tracesCorrelateCmd.Flags().StringVar(&tracesIndexPath, "db", ".insights/traces.db", "Path to the local trace index")
	tracesCorrelateCmd.Flags().StringArrayVar(&tracesTagKeys, "tag-key", nil, "Tag key to scan (repeatable)")
	tracesCorrelateCmd.Flags().IntVar(&tracesLimit, "limit", 20, "Maximum correlations to show")
	tracesCorrelateCmd.Flags().StringVar(&tracesOutput, "output", outputTable, "Output format (table or json)")

	tracesCmd.AddCommand(tracesSearchCmd)
	tracesCmd.AddCommand(tracesGetCmd)
	tracesCmd.AddCommand(tracesDeleteCmd)
	tracesCmd.AddCommand(tracesSetTagCmd)
	tracesCmd.AddCommand(tracesDeleteTagCmd)
	tracesCmd.AddCommand(tracesIndexCmd)
	tracesCmd.AddCommand(tracesCorrelateCmd)
}
