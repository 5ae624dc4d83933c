package tracedb

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/tracking"
)

// ErrorCorrelations scans the given tag keys and scores how strongly
// each tag value co-occurs with failed traces, ranked by absolute
// NPMI score.
func (d *DB) ErrorCorrelations(ctx context.Context, experimentID string, keys []string) ([]insights.CorrelationItem, error) {
	total, err := d.CountTraces(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	errorCount, err := d.CountByState(ctx, experimentID, tracking.TraceStateError)
	if err != nil {
		return nil, err
	}

	var items []insights.CorrelationItem
	for _, key := range keys {
		values, err := d.TagValueCounts(ctx, experimentID, key)
		if err != nil {
			return nil, err
		}
		for _, tvc := range values {
			intersection, err := d.countTagValueInState(ctx, experimentID, key, tvc.Value, tracking.TraceStateError)
			if err != nil {
				return nil, err
			}
			score := insights.NPMI(total, errorCount, tvc.Count, intersection)
			item := insights.CorrelationItem{
				Dimension:         key,
				Value:             tvc.Value,
				Score:             score,
				TraceCount:        intersection,
				PercentageOfTotal: pct(intersection, total),
				Strength:          insights.ClassifyStrength(score),
			}
			if errorCount > 0 {
				item.PercentageOfSlice = pct(intersection, errorCount)
			}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := math.Abs(items[i].Score), math.Abs(items[j].Score)
		if ai != aj {
			return ai > aj
		}
		if items[i].Dimension != items[j].Dimension {
			return items[i].Dimension < items[j].Dimension
		}
		return items[i].Value < items[j].Value
	})
	return items, nil
}

// PairCorrelation scores the co-occurrence of two specific tag values
// within an experiment.
func (d *DB) PairCorrelation(ctx context.Context, experimentID, key1, value1, key2, value2 string) (insights.Correlation, error) {
	total, err := d.CountTraces(ctx, experimentID)
	if err != nil {
		return insights.Correlation{}, err
	}

	count1, err := d.countTagValue(ctx, experimentID, key1, value1)
	if err != nil {
		return insights.Correlation{}, err
	}
	count2, err := d.countTagValue(ctx, experimentID, key2, value2)
	if err != nil {
		return insights.Correlation{}, err
	}
	intersection, err := d.countTagPair(ctx, experimentID, key1, value1, key2, value2)
	if err != nil {
		return insights.Correlation{}, err
	}

	dim1 := insights.DimensionValue{Name: key1, Value: value1, Count: count1}
	dim2 := insights.DimensionValue{Name: key2, Value: value2, Count: count2}
	return insights.Correlate(total, dim1, dim2, intersection), nil
}

func (d *DB) countTagValue(ctx context.Context, experimentID, key, value string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM trace_tags t
		JOIN trace_info i ON i.trace_id = t.trace_id
		WHERE t.key = ? AND t.value = ?`
	args := []any{key, value}
	if experimentID != "" {
		query += " AND i.experiment_id = ?"
		args = append(args, experimentID)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tag value: %w", err)
	}
	return count, nil
}

func (d *DB) countTagPair(ctx context.Context, experimentID, key1, value1, key2, value2 string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM trace_tags a
		JOIN trace_tags b ON b.trace_id = a.trace_id
		JOIN trace_info i ON i.trace_id = a.trace_id
		WHERE a.key = ? AND a.value = ? AND b.key = ? AND b.value = ?`
	args := []any{key1, value1, key2, value2}
	if experimentID != "" {
		query += " AND i.experiment_id = ?"
		args = append(args, experimentID)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tag pair: %w", err)
	}
	return count, nil
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
