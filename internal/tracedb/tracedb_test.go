package tracedb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/tracking"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTrace(id string, state tracking.TraceState, tags map[string]string) *tracking.Trace {
	return &tracking.Trace{Info: tracking.TraceInfo{
		TraceID:             id,
		ExperimentID:        "exp-1",
		RequestTime:         time.Unix(1700000000, 0),
		ExecutionDurationMS: 100,
		State:               state,
		Tags:                tags,
	}}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "traces.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.CountTraces(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIndexTracesUpserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.IndexTraces(ctx, []*tracking.Trace{
		testTrace("tr-1", tracking.TraceStateOK, map[string]string{"model": "alpha"}),
		testTrace("tr-2", tracking.TraceStateError, map[string]string{"model": "beta"}),
	}))

	// Re-indexing tr-1 with a new state and tag value must not duplicate.
	require.NoError(t, db.IndexTraces(ctx, []*tracking.Trace{
		testTrace("tr-1", tracking.TraceStateError, map[string]string{"model": "beta"}),
	}))

	total, err := db.CountTraces(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	errs, err := db.CountByState(ctx, "exp-1", tracking.TraceStateError)
	require.NoError(t, err)
	assert.Equal(t, int64(2), errs)

	values, err := db.TagValueCounts(ctx, "exp-1", "model")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, TagValueCount{Value: "beta", Count: 2}, values[0])
}

func TestCountTracesScopesByExperiment(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tr := testTrace("tr-other", tracking.TraceStateOK, nil)
	tr.Info.ExperimentID = "exp-2"
	require.NoError(t, db.IndexTraces(ctx, []*tracking.Trace{
		testTrace("tr-1", tracking.TraceStateOK, nil),
		tr,
	}))

	all, err := db.CountTraces(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), all)

	scoped, err := db.CountTraces(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), scoped)
}

func TestTagValueCountsOrdering(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var traces []*tracking.Trace
	for i := 0; i < 3; i++ {
		traces = append(traces, testTrace(fmt.Sprintf("a-%d", i), tracking.TraceStateOK, map[string]string{"region": "us-east"}))
	}
	traces = append(traces,
		testTrace("b-0", tracking.TraceStateOK, map[string]string{"region": "eu-west"}),
		testTrace("c-0", tracking.TraceStateOK, map[string]string{"region": "ap-south"}),
	)
	require.NoError(t, db.IndexTraces(ctx, traces))

	values, err := db.TagValueCounts(ctx, "exp-1", "region")
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "us-east", values[0].Value)
	assert.Equal(t, int64(3), values[0].Count)
	// Ties break alphabetically.
	assert.Equal(t, "ap-south", values[1].Value)
	assert.Equal(t, "eu-west", values[2].Value)
}

func TestErrorCorrelationsRanking(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// 10 traces: model=beta fails every time, model=alpha never does.
	var traces []*tracking.Trace
	for i := 0; i < 5; i++ {
		traces = append(traces, testTrace(fmt.Sprintf("ok-%d", i), tracking.TraceStateOK, map[string]string{"model": "alpha"}))
		traces = append(traces, testTrace(fmt.Sprintf("err-%d", i), tracking.TraceStateError, map[string]string{"model": "beta"}))
	}
	require.NoError(t, db.IndexTraces(ctx, traces))

	items, err := db.ErrorCorrelations(ctx, "exp-1", []string{"model"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	top := items[0]
	assert.Equal(t, "model", top.Dimension)
	assert.Equal(t, "beta", top.Value)
	assert.InDelta(t, 1.0, top.Score, 1e-9, "perfect co-occurrence scores 1.0")
	assert.Equal(t, insights.StrengthStrong, top.Strength)
	assert.Equal(t, int64(5), top.TraceCount)
	assert.InDelta(t, 100.0, top.PercentageOfSlice, 1e-9)
	assert.InDelta(t, 50.0, top.PercentageOfTotal, 1e-9)

	// alpha never co-occurs with errors.
	assert.Equal(t, "alpha", items[1].Value)
	assert.Equal(t, 0.0, items[1].Score)
	assert.Equal(t, insights.StrengthNone, items[1].Strength)
}

func TestErrorCorrelationsEmptyIndex(t *testing.T) {
	db := openTestDB(t)
	items, err := db.ErrorCorrelations(context.Background(), "exp-1", []string{"model"})
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestPairCorrelation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var traces []*tracking.Trace
	// 4 traces where both tags co-occur, 4 with only one of each, and
	// 4 carrying neither.
	for i := 0; i < 4; i++ {
		traces = append(traces, testTrace(fmt.Sprintf("both-%d", i), tracking.TraceStateOK,
			map[string]string{"model": "beta", "region": "us-east"}))
		traces = append(traces, testTrace(fmt.Sprintf("plain-%d", i), tracking.TraceStateOK, nil))
	}
	for i := 0; i < 2; i++ {
		traces = append(traces, testTrace(fmt.Sprintf("m-%d", i), tracking.TraceStateOK,
			map[string]string{"model": "beta"}))
		traces = append(traces, testTrace(fmt.Sprintf("r-%d", i), tracking.TraceStateOK,
			map[string]string{"region": "us-east"}))
	}
	require.NoError(t, db.IndexTraces(ctx, traces))

	corr, err := db.PairCorrelation(ctx, "exp-1", "model", "beta", "region", "us-east")
	require.NoError(t, err)
	assert.Equal(t, int64(4), corr.IntersectionCount)
	assert.Equal(t, int64(6), corr.Dimension1.Count)
	assert.Equal(t, int64(6), corr.Dimension2.Count)
	assert.Greater(t, corr.Score, 0.0, "co-occurring tags correlate positively")
}
