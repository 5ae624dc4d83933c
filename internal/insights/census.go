package insights

import "time"

// CensusFilename is the artifact name of the baseline census.
const CensusFilename = "baseline_census.yaml"

// CensusMetadata describes the census itself and its data source.
type CensusMetadata struct {
	TableName          string         `json:"table_name" yaml:"table_name"`
	CreatedAt          time.Time      `json:"created_at" yaml:"created_at"`
	AdditionalMetadata map[string]any `json:"additional_metadata" yaml:"additional_metadata"`
}

// ErrorSpan is one entry of the top-error-spans breakdown.
type ErrorSpan struct {
	ErrorSpanName      string   `json:"error_span_name" yaml:"error_span_name"`
	Count              int64    `json:"count" yaml:"count"`
	PercentageOfErrors float64  `json:"percentage_of_errors" yaml:"percentage_of_errors"`
	SampleTraceIDs     []string `json:"sample_trace_ids" yaml:"sample_trace_ids"`
}

// SlowTool is one entry of the top-slow-tools breakdown.
type SlowTool struct {
	ToolSpanName    string   `json:"tool_span_name" yaml:"tool_span_name"`
	Count           int64    `json:"count" yaml:"count"`
	MedianLatencyMS float64  `json:"median_latency_ms" yaml:"median_latency_ms"`
	P95LatencyMS    float64  `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	SampleTraceIDs  []string `json:"sample_trace_ids" yaml:"sample_trace_ids"`
}

// TimeBucket is one slice of the adaptive time-bucket breakdown.
type TimeBucket struct {
	TimeBucket          string  `json:"time_bucket" yaml:"time_bucket"`
	TotalTraces         int64   `json:"total_traces" yaml:"total_traces"`
	OKCount             int64   `json:"ok_count" yaml:"ok_count"`
	ErrorCount          int64   `json:"error_count" yaml:"error_count"`
	ErrorRatePercentage float64 `json:"error_rate_percentage" yaml:"error_rate_percentage"`
	P95LatencyMS        float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
}

// OperationalMetrics covers volume, errors, and latency.
type OperationalMetrics struct {
	TotalTraces         int64        `json:"total_traces" yaml:"total_traces"`
	OKCount             int64        `json:"ok_count" yaml:"ok_count"`
	ErrorCount          int64        `json:"error_count" yaml:"error_count"`
	ErrorRatePercentage float64      `json:"error_rate_percentage" yaml:"error_rate_percentage"`
	ErrorSampleTraceIDs []string     `json:"error_sample_trace_ids" yaml:"error_sample_trace_ids"`
	P50LatencyMS        float64      `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMS        float64      `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMS        float64      `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMS        float64      `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	MaxLatencyMS        float64      `json:"max_latency_ms" yaml:"max_latency_ms"`
	FirstTraceTimestamp string       `json:"first_trace_timestamp,omitempty" yaml:"first_trace_timestamp,omitempty"`
	LastTraceTimestamp  string       `json:"last_trace_timestamp,omitempty" yaml:"last_trace_timestamp,omitempty"`
	TopErrorSpans       []ErrorSpan  `json:"top_error_spans" yaml:"top_error_spans"`
	TopSlowTools        []SlowTool   `json:"top_slow_tools" yaml:"top_slow_tools"`
	TimeBuckets         []TimeBucket `json:"time_buckets" yaml:"time_buckets"`
}

// QualityMetric is a single percentage-valued quality signal with
// sample traces exhibiting it.
type QualityMetric struct {
	Description    string   `json:"description" yaml:"description"`
	Value          float64  `json:"value" yaml:"value"`
	SampleTraceIDs []string `json:"sample_trace_ids" yaml:"sample_trace_ids"`
}

// QualityMetrics covers response-quality heuristics over OK traces.
type QualityMetrics struct {
	Verbosity             QualityMetric `json:"verbosity" yaml:"verbosity"`
	ResponseQualityIssues QualityMetric `json:"response_quality_issues" yaml:"response_quality_issues"`
	RushedProcessing      QualityMetric `json:"rushed_processing" yaml:"rushed_processing"`
	MinimalResponses      QualityMetric `json:"minimal_responses" yaml:"minimal_responses"`
}

// BaselineCensus is a one-shot statistical snapshot of a trace table,
// stored as baseline_census.yaml alongside the analysis.
type BaselineCensus struct {
	Metadata           CensusMetadata     `json:"metadata" yaml:"metadata"`
	OperationalMetrics OperationalMetrics `json:"operational_metrics" yaml:"operational_metrics"`
	QualityMetrics     QualityMetrics     `json:"quality_metrics" yaml:"quality_metrics"`
}
