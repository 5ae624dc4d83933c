package insights

import (
	"sort"

	"github.com/tracewise/insights/internal/tracking"
)

// TraceSample is a condensed view of one trace used in previews.
type TraceSample struct {
	TraceID         string            `json:"trace_id"`
	State           string            `json:"state"`
	DurationMS      int64             `json:"duration_ms"`
	RequestPreview  string            `json:"request_preview,omitempty"`
	ResponsePreview string            `json:"response_preview,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	Assessments     []AssessmentNote  `json:"assessments,omitempty"`
}

// AssessmentNote is one human or judge assessment attached to a trace.
// Value carries whatever the assessment recorded (bool, number, string).
type AssessmentNote struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Rationale string `json:"rationale,omitempty"`
}

// ErrorCount pairs an error description with its occurrence count.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// TraceStats aggregates the traces backing a hypothesis or issue.
type TraceStats struct {
	TraceCount   int           `json:"trace_count"`
	ErrorCount   int           `json:"error_count"`
	ErrorRate    float64       `json:"error_rate"`
	AvgLatencyMS float64       `json:"avg_latency_ms"`
	MaxLatencyMS int64         `json:"max_latency_ms"`
	CommonErrors []ErrorCount  `json:"common_errors,omitempty"`
	Samples      []TraceSample `json:"samples,omitempty"`
}

const maxPreviewSamples = 5

// SummarizeTraces computes aggregate stats plus a handful of samples
// from fetched trace metadata. Traces that could not be fetched are
// simply absent from the input.
func SummarizeTraces(traces []*tracking.Trace) TraceStats {
	stats := TraceStats{TraceCount: len(traces)}
	if len(traces) == 0 {
		return stats
	}

	var totalLatency int64
	errCounts := map[string]int{}
	for _, tr := range traces {
		info := tr.Info
		totalLatency += info.ExecutionDurationMS
		if info.ExecutionDurationMS > stats.MaxLatencyMS {
			stats.MaxLatencyMS = info.ExecutionDurationMS
		}
		if info.State == tracking.TraceStateError {
			stats.ErrorCount++
			if msg := errorMessage(info); msg != "" {
				errCounts[msg]++
			}
		}
		if len(stats.Samples) < maxPreviewSamples {
			stats.Samples = append(stats.Samples, sampleTrace(info))
		}
	}

	stats.ErrorRate = float64(stats.ErrorCount) / float64(len(traces))
	stats.AvgLatencyMS = float64(totalLatency) / float64(len(traces))
	stats.CommonErrors = rankErrors(errCounts)
	return stats
}

func sampleTrace(info tracking.TraceInfo) TraceSample {
	s := TraceSample{
		TraceID:         info.TraceID,
		State:           string(info.State),
		DurationMS:      info.ExecutionDurationMS,
		RequestPreview:  info.RequestPreview,
		ResponsePreview: info.ResponsePreview,
		Tags:            info.Tags,
	}
	for _, a := range info.Assessments {
		s.Assessments = append(s.Assessments, AssessmentNote{
			Name:      a.AssessmentName,
			Value:     a.Value,
			Rationale: a.Rationale,
		})
	}
	return s
}

// errorMessage picks the best available description of a failed trace.
func errorMessage(info tracking.TraceInfo) string {
	for _, key := range []string{"mlflow.trace.error", "error", "exception.message"} {
		if v, ok := info.Tags[key]; ok && v != "" {
			return v
		}
	}
	if info.ResponsePreview != "" {
		return info.ResponsePreview
	}
	return "unknown error"
}

func rankErrors(counts map[string]int) []ErrorCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorCount{Message: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > maxPreviewSamples {
		out = out[:maxPreviewSamples]
	}
	return out
}
