package insights

import (
	"testing"

	"github.com/tracewise/insights/internal/tracking"
)

func trace(id string, state tracking.TraceState, durationMS int64, tags map[string]string) *tracking.Trace {
	return &tracking.Trace{Info: tracking.TraceInfo{
		TraceID:             id,
		State:               state,
		ExecutionDurationMS: durationMS,
		Tags:                tags,
	}}
}

func TestSummarizeTracesEmpty(t *testing.T) {
	stats := SummarizeTraces(nil)
	if stats.TraceCount != 0 || stats.ErrorRate != 0 {
		t.Errorf("empty summary = %+v", stats)
	}
}

func TestSummarizeTracesAggregates(t *testing.T) {
	traces := []*tracking.Trace{
		trace("tr-1", tracking.TraceStateOK, 100, nil),
		trace("tr-2", tracking.TraceStateError, 300, map[string]string{"mlflow.trace.error": "timeout"}),
		trace("tr-3", tracking.TraceStateError, 500, map[string]string{"mlflow.trace.error": "timeout"}),
		trace("tr-4", tracking.TraceStateOK, 100, nil),
	}

	stats := SummarizeTraces(traces)
	if stats.TraceCount != 4 {
		t.Errorf("TraceCount = %d", stats.TraceCount)
	}
	if stats.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d", stats.ErrorCount)
	}
	if stats.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v", stats.ErrorRate)
	}
	if stats.AvgLatencyMS != 250 {
		t.Errorf("AvgLatencyMS = %v", stats.AvgLatencyMS)
	}
	if stats.MaxLatencyMS != 500 {
		t.Errorf("MaxLatencyMS = %d", stats.MaxLatencyMS)
	}
	if len(stats.CommonErrors) != 1 || stats.CommonErrors[0].Message != "timeout" || stats.CommonErrors[0].Count != 2 {
		t.Errorf("CommonErrors = %+v", stats.CommonErrors)
	}
}

func TestSummarizeTracesSampleCap(t *testing.T) {
	var traces []*tracking.Trace
	for i := 0; i < 10; i++ {
		traces = append(traces, trace("tr", tracking.TraceStateOK, 10, nil))
	}
	stats := SummarizeTraces(traces)
	if len(stats.Samples) != maxPreviewSamples {
		t.Errorf("Samples = %d, want %d", len(stats.Samples), maxPreviewSamples)
	}
}

func TestSummarizeTracesCarriesAssessmentValues(t *testing.T) {
	tr := trace("tr-1", tracking.TraceStateOK, 10, nil)
	tr.Info.Assessments = []tracking.Assessment{
		{AssessmentName: "correct", Value: true, Rationale: "matches ground truth"},
		{AssessmentName: "relevance", Value: 0.92},
		{AssessmentName: "reviewer", Value: "approved"},
	}

	stats := SummarizeTraces([]*tracking.Trace{tr})
	if len(stats.Samples) != 1 {
		t.Fatalf("Samples = %d, want 1", len(stats.Samples))
	}
	notes := stats.Samples[0].Assessments
	if len(notes) != 3 {
		t.Fatalf("Assessments = %d, want 3", len(notes))
	}
	if v, ok := notes[0].Value.(bool); !ok || !v {
		t.Errorf("notes[0].Value = %v (%T), want true", notes[0].Value, notes[0].Value)
	}
	if v, ok := notes[1].Value.(float64); !ok || v != 0.92 {
		t.Errorf("notes[1].Value = %v (%T), want 0.92", notes[1].Value, notes[1].Value)
	}
	if notes[2].Value != "approved" || notes[2].Rationale != "" {
		t.Errorf("notes[2] = %+v", notes[2])
	}
}

func TestSummarizeTracesErrorMessageFallback(t *testing.T) {
	tr := trace("tr-1", tracking.TraceStateError, 10, nil)
	tr.Info.ResponsePreview = "something broke"

	stats := SummarizeTraces([]*tracking.Trace{tr})
	if len(stats.CommonErrors) != 1 || stats.CommonErrors[0].Message != "something broke" {
		t.Errorf("CommonErrors = %+v", stats.CommonErrors)
	}
}
