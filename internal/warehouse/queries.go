package warehouse

import "fmt"

// sampleLimit caps the sample trace IDs carried per census entry.
const sampleLimit = 15

// Query builders for the census. Each produces one analytical statement
// over the trace table; dialect features (percentile, LATERAL VIEW
// explode, collect_list) follow the warehouse the trace tables live in.

func basicCountsQuery(table string) string {
	return fmt.Sprintf(`
WITH error_traces AS (
    SELECT
        trace_id,
        state,
        ROW_NUMBER() OVER (ORDER BY trace_id) as rn
    FROM %[1]s
    WHERE state = 'ERROR'
)
SELECT
    (SELECT COUNT(*) FROM %[1]s) as total_traces,
    (SELECT SUM(CASE WHEN state = 'OK' THEN 1 ELSE 0 END) FROM %[1]s) as ok_count,
    (SELECT SUM(CASE WHEN state = 'ERROR' THEN 1 ELSE 0 END) FROM %[1]s) as error_count,
    (SELECT ROUND(SUM(CASE WHEN state = 'ERROR' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) FROM %[1]s) as error_rate_percentage,
    collect_list(CASE WHEN rn <= %[2]d THEN trace_id END) as error_sample_trace_ids
FROM error_traces`, table, sampleLimit)
}

func latencyQuery(table string) string {
	return fmt.Sprintf(`
SELECT
    percentile(execution_duration_ms, 0.5) as p50_latency_ms,
    percentile(execution_duration_ms, 0.9) as p90_latency_ms,
    percentile(execution_duration_ms, 0.95) as p95_latency_ms,
    percentile(execution_duration_ms, 0.99) as p99_latency_ms,
    MAX(execution_duration_ms) as max_latency_ms
FROM %s
WHERE state = 'OK' AND execution_duration_ms IS NOT NULL`, table)
}

func errorSpansQuery(table string) string {
	return fmt.Sprintf(`
WITH error_spans_with_traces AS (
    SELECT
        span.name as error_span_name,
        t.trace_id,
        COUNT(*) OVER (PARTITION BY span.name) as count,
        ROUND(COUNT(*) OVER (PARTITION BY span.name) * 100.0 / (
            SELECT COUNT(*)
            FROM %[1]s
            LATERAL VIEW explode(spans) AS s
            WHERE s.status_code = 'ERROR'
        ), 2) as percentage_of_errors,
        ROW_NUMBER() OVER (PARTITION BY span.name ORDER BY t.trace_id) as rn
    FROM %[1]s t
    LATERAL VIEW explode(spans) AS span
    WHERE span.status_code = 'ERROR'
),
error_spans_summary AS (
    SELECT
        error_span_name,
        count,
        percentage_of_errors,
        collect_list(CASE WHEN rn <= %[2]d THEN trace_id END) as sample_trace_ids
    FROM error_spans_with_traces
    GROUP BY error_span_name, count, percentage_of_errors
)
SELECT
    error_span_name,
    count,
    percentage_of_errors,
    sample_trace_ids
FROM error_spans_summary
ORDER BY count DESC
LIMIT 5`, table, sampleLimit)
}

func slowToolsQuery(table string) string {
	return fmt.Sprintf(`
WITH slow_tools_with_traces AS (
    SELECT
        span.name as tool_span_name,
        t.trace_id,
        (unix_timestamp(span.end_time) - unix_timestamp(span.start_time)) * 1000 as latency_ms,
        COUNT(*) OVER (PARTITION BY span.name) as count,
        percentile((unix_timestamp(span.end_time) - unix_timestamp(span.start_time)) * 1000, 0.95) OVER (PARTITION BY span.name) as p95_latency_ms,
        percentile((unix_timestamp(span.end_time) - unix_timestamp(span.start_time)) * 1000, 0.5) OVER (PARTITION BY span.name) as median_latency_ms,
        ROW_NUMBER() OVER (PARTITION BY span.name ORDER BY (unix_timestamp(span.end_time) - unix_timestamp(span.start_time)) * 1000 DESC) as rn
    FROM %[1]s t
    LATERAL VIEW explode(spans) AS span
    WHERE span.start_time IS NOT NULL AND span.end_time IS NOT NULL
),
slow_tools_summary AS (
    SELECT
        tool_span_name,
        count,
        p95_latency_ms,
        median_latency_ms,
        collect_list(CASE WHEN rn <= %[2]d THEN trace_id END) as sample_trace_ids
    FROM slow_tools_with_traces
    GROUP BY tool_span_name, count, p95_latency_ms, median_latency_ms
    HAVING count >= 10
)
SELECT
    tool_span_name,
    count,
    median_latency_ms,
    p95_latency_ms,
    sample_trace_ids
FROM slow_tools_summary
ORDER BY p95_latency_ms DESC
LIMIT 5`, table, sampleLimit)
}

func timeBucketsQuery(table string) string {
	return fmt.Sprintf(`
WITH time_range AS (
    SELECT
        MIN(request_time) as min_time,
        MAX(request_time) as max_time,
        CAST((UNIX_TIMESTAMP(MAX(request_time)) - UNIX_TIMESTAMP(MIN(request_time))) / 10 AS BIGINT) as bucket_width_seconds
    FROM %[1]s
),
bucketed_data AS (
    SELECT
        LEAST(9, FLOOR((UNIX_TIMESTAMP(t.request_time) - UNIX_TIMESTAMP(r.min_time)) / GREATEST(1, r.bucket_width_seconds))) as bucket_num,
        FROM_UNIXTIME(
            UNIX_TIMESTAMP(r.min_time) +
            (LEAST(9, FLOOR((UNIX_TIMESTAMP(t.request_time) - UNIX_TIMESTAMP(r.min_time)) / GREATEST(1, r.bucket_width_seconds))) * r.bucket_width_seconds)
        ) as time_bucket,
        t.state,
        t.execution_duration_ms
    FROM %[1]s t
    CROSS JOIN time_range r
    WHERE t.request_time IS NOT NULL
)
SELECT
    time_bucket,
    COUNT(*) as total_traces,
    SUM(CASE WHEN state = 'OK' THEN 1 ELSE 0 END) as ok_count,
    SUM(CASE WHEN state = 'ERROR' THEN 1 ELSE 0 END) as error_count,
    ROUND(SUM(CASE WHEN state = 'ERROR' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) as error_rate_percentage,
    percentile(execution_duration_ms, 0.95) as p95_latency_ms
FROM bucketed_data
GROUP BY time_bucket
ORDER BY time_bucket`, table)
}

func timestampRangeQuery(table string) string {
	return fmt.Sprintf(`
SELECT
    MIN(request_time) as first_trace_timestamp,
    MAX(request_time) as last_trace_timestamp
FROM %s`, table)
}

func verbosityQuery(table string) string {
	return fmt.Sprintf(`
WITH percentile_thresholds AS (
  SELECT
    percentile(LENGTH(request), 0.25) as short_input_threshold,
    percentile(LENGTH(response), 0.90) as verbose_response_threshold
  FROM %[1]s
  WHERE state = 'OK'
),
shorter_inputs AS (
  SELECT
    t.trace_id,
    LENGTH(t.response) as response_length
  FROM %[1]s t
  CROSS JOIN percentile_thresholds p
  WHERE t.state = 'OK'
    AND LENGTH(t.request) <= p.short_input_threshold
),
verbose_traces AS (
  SELECT
    trace_id,
    response_length > (SELECT verbose_response_threshold FROM percentile_thresholds) as is_verbose
  FROM shorter_inputs
),
limited_samples AS (
  SELECT
    trace_id,
    is_verbose,
    ROW_NUMBER() OVER (PARTITION BY is_verbose ORDER BY trace_id) as rn
  FROM verbose_traces
)
SELECT
  ROUND(100.0 * SUM(CASE WHEN is_verbose THEN 1 ELSE 0 END) / COUNT(*), 2) as verbose_percentage,
  collect_list(CASE WHEN is_verbose AND rn <= %[2]d THEN trace_id END) as sample_trace_ids
FROM limited_samples`, table, sampleLimit)
}

func responseQualityQuery(table string) string {
	return fmt.Sprintf(`
WITH quality_issues AS (
  SELECT
    trace_id,
    (response LIKE '%%?%%' OR
     LOWER(response) LIKE '%%apologize%%' OR LOWER(response) LIKE '%%sorry%%' OR
     LOWER(response) LIKE '%%not sure%%' OR LOWER(response) LIKE '%%cannot confirm%%') as has_quality_issue
  FROM %[1]s
  WHERE state = 'OK'
),
limited_samples AS (
  SELECT
    trace_id,
    has_quality_issue,
    ROW_NUMBER() OVER (PARTITION BY has_quality_issue ORDER BY trace_id) as rn
  FROM quality_issues
)
SELECT
  ROUND(100.0 * SUM(CASE WHEN has_quality_issue THEN 1 ELSE 0 END) / COUNT(*), 2) as problematic_response_rate_percentage,
  collect_list(CASE WHEN has_quality_issue AND rn <= %[2]d THEN trace_id END) as sample_trace_ids
FROM limited_samples`, table, sampleLimit)
}

func rushedProcessingQuery(table string) string {
	return fmt.Sprintf(`
WITH percentile_thresholds AS (
  SELECT
    percentile(LENGTH(request), 0.75) as complex_threshold,
    percentile(execution_duration_ms, 0.10) as fast_threshold
  FROM %[1]s
  WHERE state = 'OK' AND execution_duration_ms > 0
),
complex_requests AS (
  SELECT
    t.trace_id,
    LENGTH(t.request) > p.complex_threshold as is_complex,
    t.execution_duration_ms < p.fast_threshold as is_fast
  FROM %[1]s t
  CROSS JOIN percentile_thresholds p
  WHERE t.state = 'OK' AND t.execution_duration_ms > 0
),
limited_samples AS (
  SELECT
    trace_id,
    is_complex,
    is_fast,
    ROW_NUMBER() OVER (PARTITION BY (is_complex AND is_fast) ORDER BY trace_id) as rn
  FROM complex_requests
)
SELECT
  ROUND(100.0 * SUM(CASE WHEN is_complex AND is_fast THEN 1 ELSE 0 END) / NULLIF(SUM(CASE WHEN is_complex THEN 1 ELSE 0 END), 0), 2) as rushed_complex_pct,
  collect_list(CASE WHEN is_complex AND is_fast AND rn <= %[2]d THEN trace_id END) as sample_trace_ids
FROM limited_samples`, table, sampleLimit)
}

func minimalResponsesQuery(table string) string {
	return fmt.Sprintf(`
WITH minimal_check AS (
  SELECT
    trace_id,
    LENGTH(response) < 50 as is_minimal
  FROM %[1]s
  WHERE state = 'OK'
),
limited_samples AS (
  SELECT
    trace_id,
    is_minimal,
    ROW_NUMBER() OVER (PARTITION BY is_minimal ORDER BY trace_id) as rn
  FROM minimal_check
)
SELECT
  ROUND(100.0 * SUM(CASE WHEN is_minimal THEN 1 ELSE 0 END) / COUNT(*), 2) as minimal_response_rate,
  collect_list(CASE WHEN is_minimal AND rn <= %[2]d THEN trace_id END) as sample_trace_ids
FROM limited_samples`, table, sampleLimit)
}

// CensusQueries returns the full analytical set for a trace table, in
// execution order.
func CensusQueries(table string) []string {
	return []string{
		basicCountsQuery(table),
		latencyQuery(table),
		errorSpansQuery(table),
		slowToolsQuery(table),
		timeBucketsQuery(table),
		timestampRangeQuery(table),
		verbosityQuery(table),
		responseQualityQuery(table),
		rushedProcessingQuery(table),
		minimalResponsesQuery(table),
	}
}
