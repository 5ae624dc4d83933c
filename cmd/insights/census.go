package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/warehouse"
)

const envTraceTableName = "MLFLOW_TRACE_TABLE_NAME"

var censusCmd = &cobra.Command{
	Use:   "census",
	Short: "Manage the baseline census of a trace table",
}

var censusCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a baseline census and attach it to an analysis run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if censusTableName == "" {
			censusTableName = os.Getenv(envTraceTableName)
		}
		if censusTableName == "" {
			fatal("table name required: pass --table-name or set %s", envTraceTableName)
		}
		exec, cleanup, err := openWarehouse()
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		census, queries, err := warehouse.GenerateCensus(ctx, exec, censusTableName)
		if err != nil {
			fatal("failed to generate census: %v", err)
		}

		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}
		path, err := client.SaveBaselineCensus(ctx, censusRunID, census, queries)
		if err != nil {
			fatal("failed to save census: %v", err)
		}

		fmt.Printf("Created baseline census for table %q\n", censusTableName)
		fmt.Printf("Artifact: %s\n", path)
		fmt.Printf("Traces: %d (%.1f%% errors)\n",
			census.OperationalMetrics.TotalTraces,
			census.OperationalMetrics.ErrorRatePercentage)
	},
}

var censusUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update census metadata, or regenerate it entirely",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if censusTableName == "" {
			censusTableName = os.Getenv(envTraceTableName)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		var metadata map[string]any
		if censusMetadata != "" {
			if err := json.Unmarshal([]byte(censusMetadata), &metadata); err != nil {
				fatal("invalid metadata JSON: %v", err)
			}
		}

		if censusRegenerate {
			if censusTableName == "" {
				fatal("--regenerate requires --table-name")
			}
			exec, cleanup, err := openWarehouse()
			if err != nil {
				fatal("%v", err)
			}
			defer cleanup()

			census, queries, err := warehouse.GenerateCensus(ctx, exec, censusTableName)
			if err != nil {
				fatal("failed to regenerate census: %v", err)
			}
			if metadata != nil {
				census.Metadata.AdditionalMetadata = metadata
			}
			path, err := client.SaveBaselineCensus(ctx, censusRunID, census, queries)
			if err != nil {
				fatal("failed to save census: %v", err)
			}
			fmt.Printf("Regenerated baseline census\nArtifact: %s\n", path)
			return
		}

		req := &insights.UpdateBaselineCensusRequest{Metadata: metadata}
		if censusTableName != "" {
			req.TableName = &censusTableName
		}
		if req.TableName == nil && req.Metadata == nil {
			fatal("nothing to update: pass --table-name, --metadata or --regenerate")
		}
		path, err := client.UpdateBaselineCensus(ctx, censusRunID, req)
		if err != nil {
			fatal("failed to update census: %v", err)
		}
		fmt.Printf("Updated baseline census\nArtifact: %s\n", path)
	},
}

var censusGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the baseline census of an analysis run",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if !validOutput(censusOutput) {
			fatal("invalid output format %q (want table or json)", censusOutput)
		}
		client, err := newInsightsClient()
		if err != nil {
			fatal("%v", err)
		}

		census, err := client.GetBaselineCensus(ctx, censusRunID)
		if err != nil {
			fatal("failed to get census: %v", err)
		}
		if census == nil {
			fatal("no baseline census found on run %s", censusRunID)
		}

		if censusOutput == outputJSON {
			printJSON(census)
			return
		}

		om := census.OperationalMetrics
		header("Baseline Census")
		field("Table", census.Metadata.TableName)
		field("Created", census.Metadata.CreatedAt.Format("2006-01-02 15:04:05"))
		field("Traces", fmt.Sprintf("%d (%d ok, %d errors, %.1f%%)",
			om.TotalTraces, om.OKCount, om.ErrorCount, om.ErrorRatePercentage))
		field("Latency", fmt.Sprintf("p50=%.0fms p90=%.0fms p95=%.0fms p99=%.0fms max=%.0fms",
			om.P50LatencyMS, om.P90LatencyMS, om.P95LatencyMS, om.P99LatencyMS, om.MaxLatencyMS))
		if om.FirstTraceTimestamp != "" {
			field("Period", om.FirstTraceTimestamp+" .. "+om.LastTraceTimestamp)
		}

		if len(om.TopErrorSpans) > 0 {
			fmt.Println()
			fmt.Println("  Top error spans:")
			for _, s := range om.TopErrorSpans {
				fmt.Printf("    %5d  %s (%.1f%% of errors)\n", s.Count, s.ErrorSpanName, s.PercentageOfErrors)
			}
		}
		if len(om.TopSlowTools) > 0 {
			fmt.Println()
			fmt.Println("  Top slow tools:")
			for _, t := range om.TopSlowTools {
				fmt.Printf("    %5d  %s (median %.0fms, p95 %.0fms)\n", t.Count, t.ToolSpanName, t.MedianLatencyMS, t.P95LatencyMS)
			}
		}

		qm := census.QualityMetrics
		fmt.Println()
		fmt.Println("  Quality metrics:")
		for _, m := range []insights.QualityMetric{qm.Verbosity, qm.ResponseQualityIssues, qm.RushedProcessing, qm.MinimalResponses} {
			fmt.Printf("    %5.1f%%  %s\n", m.Value, m.Description)
		}
		fmt.Println()
	},
}

// openWarehouse opens the local SQLite mirror of the trace table.
func openWarehouse() (warehouse.Executor, func(), error) {
	if censusWarehouseDB == "" {
		return nil, nil, fmt.Errorf("warehouse database required: pass --warehouse-db")
	}
	db, err := sql.Open("sqlite3", "file:"+censusWarehouseDB+"?mode=ro")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open warehouse database: %w", err)
	}
	return warehouse.NewSQLExecutor(db), func() { db.Close() }, nil
}

var (
	censusRunID       string
	censusTableName   string
	censusWarehouseDB string
	censusMetadata    string
	censusRegenerate  bool
	censusOutput      string
)

func init() {
	censusCreateCmd.Flags().StringVar(&censusRunID, "run-id", "", "Run ID of the analysis")
	censusCreateCmd.Flags().StringVar(&censusTableName, "table-name", "", "Name of the trace table to analyze (falls back to MLFLOW_TRACE_TABLE_NAME)")
	censusCreateCmd.Flags().StringVar(&censusWarehouseDB, "warehouse-db", "", "Path to the SQLite mirror of the trace table")
	censusCreateCmd.MarkFlagRequired("run-id")

	censusUpdateCmd.Flags().StringVar(&censusRunID, "run-id", "", "Run ID of the analysis")
	censusUpdateCmd.Flags().StringVar(&censusTableName, "table-name", "", "Update the table name for the census (falls back to MLFLOW_TRACE_TABLE_NAME)")
	censusUpdateCmd.Flags().StringVar(&censusWarehouseDB, "warehouse-db", "", "Path to the SQLite mirror of the trace table")
	censusUpdateCmd.Flags().StringVar(&censusMetadata, "metadata", "", "Additional metadata as JSON string")
	censusUpdateCmd.Flags().BoolVar(&censusRegenerate, "regenerate", false, "Regenerate all census data from the table (requires --table-name)")
	censusUpdateCmd.MarkFlagRequired("run-id")

	censusGetCmd.Flags().StringVar(&censusRunID, "run-id", "", "Run ID of the analysis")
	censusGetCmd.Flags().StringVar(&censusOutput, "output", outputTable, "Output format (table or json)")
	censusGetCmd.MarkFlagRequired("run-id")

	censusCmd.AddCommand(censusCreateCmd)
	censusCmd.AddCommand(censusUpdateCmd)
	censusCmd.AddCommand(censusGetCmd)
}
