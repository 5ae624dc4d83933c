package warehouse

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensusQueriesTargetTable(t *testing.T) {
	queries := CensusQueries("catalog.schema.traces")
	require.Len(t, queries, 10)
	for i, q := range queries {
		assert.Contains(t, q, "catalog.schema.traces", "query %d must reference the trace table", i+1)
	}
}

func TestGenerateCensusRequiresTable(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, query string) ([]Row, error) {
		t.Fatal("no query expected")
		return nil, nil
	})
	_, _, err := GenerateCensus(context.Background(), exec, "")
	require.Error(t, err)
}

func TestGenerateCensusFlattensResults(t *testing.T) {
	// Canned results in census execution order.
	canned := [][]Row{
		{{
			"total_traces":           int64(1000),
			"ok_count":               int64(950),
			"error_count":            int64(50),
			"error_rate_percentage":  5.0,
			"error_sample_trace_ids": []any{"tr-1", "tr-2", nil},
		}},
		{{
			"p50_latency_ms": 120.0,
			"p90_latency_ms": 300.0,
			"p95_latency_ms": 450.0,
			"p99_latency_ms": 900.0,
			"max_latency_ms": int64(5000),
		}},
		{{
			"error_span_name":      "call_tool",
			"count":                int64(30),
			"percentage_of_errors": 60.0,
			"sample_trace_ids":     []string{"tr-1"},
		}},
		{{
			"tool_span_name":    "search",
			"count":             int64(400),
			"median_latency_ms": 80.0,
			"p95_latency_ms":    200.0,
		}},
		{
			{"time_bucket": "2026-08-01 10:00", "total_traces": int64(10), "ok_count": int64(9), "error_count": int64(1), "error_rate_percentage": 10.0, "p95_latency_ms": 210.0},
			{"time_bucket": "2026-08-01 11:00", "total_traces": int64(20), "ok_count": int64(20), "error_count": int64(0), "error_rate_percentage": 0.0, "p95_latency_ms": 190.0},
		},
		{{
			"first_trace_timestamp": "2026-08-01 10:00:00",
			"last_trace_timestamp":  "2026-08-01 12:00:00",
		}},
		{{
			"verbose_percentage": 12.5,
			"sample_trace_ids":   []string{"tr-3"},
		}},
		{{"problematic_response_rate_percentage": 3.0}},
		{{"rushed_complex_pct": 1.5}},
		{{"minimal_response_rate": 0.8}},
	}

	var executed []string
	exec := ExecutorFunc(func(ctx context.Context, query string) ([]Row, error) {
		i := len(executed)
		executed = append(executed, query)
		if i >= len(canned) {
			return nil, fmt.Errorf("unexpected extra query: %s", query)
		}
		return canned[i], nil
	})

	census, queries, err := GenerateCensus(context.Background(), exec, "prod.traces")
	require.NoError(t, err)
	require.Len(t, queries, 10)
	assert.Equal(t, executed, queries)

	assert.Equal(t, "prod.traces", census.Metadata.TableName)
	assert.False(t, census.Metadata.CreatedAt.IsZero())

	op := census.OperationalMetrics
	assert.Equal(t, int64(1000), op.TotalTraces)
	assert.Equal(t, int64(50), op.ErrorCount)
	assert.Equal(t, 5.0, op.ErrorRatePercentage)
	assert.Equal(t, []string{"tr-1", "tr-2"}, op.ErrorSampleTraceIDs, "nil entries are dropped")
	assert.Equal(t, 120.0, op.P50LatencyMS)
	assert.Equal(t, 5000.0, op.MaxLatencyMS, "integer driver values coerce to float")
	assert.Equal(t, "2026-08-01 10:00:00", op.FirstTraceTimestamp)
	require.Len(t, op.TopErrorSpans, 1)
	assert.Equal(t, "call_tool", op.TopErrorSpans[0].ErrorSpanName)
	require.Len(t, op.TimeBuckets, 2)
	assert.Equal(t, int64(20), op.TimeBuckets[1].TotalTraces)

	q := census.QualityMetrics
	assert.Equal(t, 12.5, q.Verbosity.Value)
	assert.NotEmpty(t, q.Verbosity.Description)
	assert.Equal(t, 3.0, q.ResponseQualityIssues.Value)
	assert.Equal(t, 1.5, q.RushedProcessing.Value)
	assert.Equal(t, 0.8, q.MinimalResponses.Value)
}

func TestGenerateCensusPropagatesQueryError(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, query string) ([]Row, error) {
		return nil, fmt.Errorf("table not found")
	})
	_, _, err := GenerateCensus(context.Background(), exec, "missing.table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census query 1 failed")
}

func TestGenerateCensusToleratesEmptyResults(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, query string) ([]Row, error) {
		return nil, nil
	})

	census, _, err := GenerateCensus(context.Background(), exec, "empty.table")
	require.NoError(t, err)
	assert.Equal(t, int64(0), census.OperationalMetrics.TotalTraces)
	assert.Empty(t, census.OperationalMetrics.TopErrorSpans)
	assert.Empty(t, census.QualityMetrics.Verbosity.SampleTraceIDs)
}

func TestRowAccessorsCoerceDriverTypes(t *testing.T) {
	r := Row{
		"s":    nil,
		"n":    42,
		"f":    "not a number",
		"list": []any{"a", nil, "b"},
	}
	assert.Equal(t, "", r.string("s"))
	assert.Equal(t, int64(42), r.int64("n"))
	assert.Equal(t, 42.0, r.float64("n"))
	assert.Equal(t, int64(0), r.int64("f"))
	assert.Equal(t, []string{"a", "b"}, r.strings("list", 10))
	assert.Equal(t, []string{"a"}, r.strings("list", 1))
	assert.Empty(t, r.strings("missing", 10))
}
