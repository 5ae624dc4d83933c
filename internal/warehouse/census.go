package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/tracewise/insights/internal/insights"
)

// Quality metric descriptions recorded alongside the values so census
// readers do not need this package to interpret them.
const (
	verbosityDescription        = "Percentage of short inputs (<=P25 request length) that receive verbose responses (>P90 response length)"
	responseQualityDescription  = "Percentage of responses containing question marks, apologies ('sorry', 'apologize'), or uncertainty phrases ('not sure', 'cannot confirm')"
	rushedProcessingDescription = "Percentage of complex requests (>P75 length) processed faster than typical fast responses (P10 execution time)"
	minimalResponsesDescription = "Percentage of responses shorter than 50 characters, potentially indicating incomplete or minimal responses"
)

// GenerateCensus runs the census query set against a trace table and
// flattens the results into a BaselineCensus. The executed SQL is
// returned alongside so callers can log it.
func GenerateCensus(ctx context.Context, exec Executor, table string) (*insights.BaselineCensus, []string, error) {
	if table == "" {
		return nil, nil, fmt.Errorf("trace table name is required")
	}

	queries := CensusQueries(table)
	results := make([][]Row, len(queries))
	for i, q := range queries {
		rows, err := exec.ExecuteQuery(ctx, q)
		if err != nil {
			return nil, nil, fmt.Errorf("census query %d failed: %w", i+1, err)
		}
		results[i] = rows
	}

	basic := firstRow(results[0])
	latency := firstRow(results[1])
	errorSpans := results[2]
	slowTools := results[3]
	timeBuckets := results[4]
	timestamps := firstRow(results[5])
	verbosity := firstRow(results[6])
	responseQuality := firstRow(results[7])
	rushed := firstRow(results[8])
	minimal := firstRow(results[9])

	census := &insights.BaselineCensus{
		Metadata: insights.CensusMetadata{
			TableName:          table,
			CreatedAt:          time.Now().UTC(),
			AdditionalMetadata: map[string]any{},
		},
		OperationalMetrics: insights.OperationalMetrics{
			TotalTraces:         basic.int64("total_traces"),
			OKCount:             basic.int64("ok_count"),
			ErrorCount:          basic.int64("error_count"),
			ErrorRatePercentage: basic.float64("error_rate_percentage"),
			ErrorSampleTraceIDs: basic.strings("error_sample_trace_ids", sampleLimit),
			P50LatencyMS:        latency.float64("p50_latency_ms"),
			P90LatencyMS:        latency.float64("p90_latency_ms"),
			P95LatencyMS:        latency.float64("p95_latency_ms"),
			P99LatencyMS:        latency.float64("p99_latency_ms"),
			MaxLatencyMS:        latency.float64("max_latency_ms"),
			FirstTraceTimestamp: timestamps.string("first_trace_timestamp"),
			LastTraceTimestamp:  timestamps.string("last_trace_timestamp"),
			TopErrorSpans:       toErrorSpans(errorSpans),
			TopSlowTools:        toSlowTools(slowTools),
			TimeBuckets:         toTimeBuckets(timeBuckets),
		},
		QualityMetrics: insights.QualityMetrics{
			Verbosity: insights.QualityMetric{
				Description:    verbosityDescription,
				Value:          verbosity.float64("verbose_percentage"),
				SampleTraceIDs: verbosity.strings("sample_trace_ids", sampleLimit),
			},
			ResponseQualityIssues: insights.QualityMetric{
				Description:    responseQualityDescription,
				Value:          responseQuality.float64("problematic_response_rate_percentage"),
				SampleTraceIDs: responseQuality.strings("sample_trace_ids", sampleLimit),
			},
			RushedProcessing: insights.QualityMetric{
				Description:    rushedProcessingDescription,
				Value:          rushed.float64("rushed_complex_pct"),
				SampleTraceIDs: rushed.strings("sample_trace_ids", sampleLimit),
			},
			MinimalResponses: insights.QualityMetric{
				Description:    minimalResponsesDescription,
				Value:          minimal.float64("minimal_response_rate"),
				SampleTraceIDs: minimal.strings("sample_trace_ids", sampleLimit),
			},
		},
	}
	return census, queries, nil
}

func toErrorSpans(rows []Row) []insights.ErrorSpan {
	spans := []insights.ErrorSpan{}
	for _, r := range rows {
		spans = append(spans, insights.ErrorSpan{
			ErrorSpanName:      r.string("error_span_name"),
			Count:              r.int64("count"),
			PercentageOfErrors: r.float64("percentage_of_errors"),
			SampleTraceIDs:     r.strings("sample_trace_ids", sampleLimit),
		})
	}
	return spans
}

func toSlowTools(rows []Row) []insights.SlowTool {
	tools := []insights.SlowTool{}
	for _, r := range rows {
		tools = append(tools, insights.SlowTool{
			ToolSpanName:    r.string("tool_span_name"),
			Count:           r.int64("count"),
			MedianLatencyMS: r.float64("median_latency_ms"),
			P95LatencyMS:    r.float64("p95_latency_ms"),
			SampleTraceIDs:  r.strings("sample_trace_ids", sampleLimit),
		})
	}
	return tools
}

func toTimeBuckets(rows []Row) []insights.TimeBucket {
	buckets := []insights.TimeBucket{}
	for _, r := range rows {
		buckets = append(buckets, insights.TimeBucket{
			TimeBucket:          r.string("time_bucket"),
			TotalTraces:         r.int64("total_traces"),
			OKCount:             r.int64("ok_count"),
			ErrorCount:          r.int64("error_count"),
			ErrorRatePercentage: r.float64("error_rate_percentage"),
			P95LatencyMS:        r.float64("p95_latency_ms"),
		})
	}
	return buckets
}

func firstRow(rows []Row) Row {
	if len(rows) == 0 {
		return Row{}
	}
	return rows[0]
}

// Column accessors tolerant of driver type differences. Warehouse
// drivers variously return int64, float64, or strings for numerics.

func (r Row) string(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (r Row) float64(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func (r Row) strings(key string, limit int) []string {
	out := []string{}
	switch v := r[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
