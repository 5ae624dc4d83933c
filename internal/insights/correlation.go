package insights

import "math"

// CorrelationStrength buckets an NPMI score for human consumption.
type CorrelationStrength string

const (
	StrengthStrong   CorrelationStrength = "Strong"
	StrengthModerate CorrelationStrength = "Moderate"
	StrengthWeak     CorrelationStrength = "Weak"
	StrengthNone     CorrelationStrength = "None"
)

// NPMI computes normalized pointwise mutual information over four
// counts: the population size, the two event counts, and their
// intersection. Returns 0 when any of the counts is zero and 1.0 when
// the events always co-occur with the whole population.
func NPMI(total, countA, countB, intersection int64) float64 {
	if total == 0 || countA == 0 || countB == 0 || intersection == 0 {
		return 0
	}
	pA := float64(countA) / float64(total)
	pB := float64(countB) / float64(total)
	pJoint := float64(intersection) / float64(total)

	if pJoint >= 1.0 {
		return 1.0
	}
	pmi := math.Log(pJoint / (pA * pB))
	return pmi / -math.Log(pJoint)
}

// ClassifyStrength buckets an NPMI score by absolute value:
// >= 0.7 Strong, >= 0.4 Moderate, >= 0.1 Weak, otherwise None.
func ClassifyStrength(score float64) CorrelationStrength {
	abs := math.Abs(score)
	switch {
	case abs >= 0.7:
		return StrengthStrong
	case abs >= 0.4:
		return StrengthModerate
	case abs >= 0.1:
		return StrengthWeak
	default:
		return StrengthNone
	}
}

// DimensionValue identifies one dimension/value pair and how many
// traces carry it.
type DimensionValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Correlation is the NPMI relationship between two dimension values.
type Correlation struct {
	Dimension1        DimensionValue      `json:"dimension1"`
	Dimension2        DimensionValue      `json:"dimension2"`
	IntersectionCount int64               `json:"intersection_count"`
	Score             float64             `json:"npmi_score"`
	Strength          CorrelationStrength `json:"strength"`
}

// Correlate computes the NPMI correlation between two dimension values
// given their counts within a trace population.
func Correlate(total int64, dim1, dim2 DimensionValue, intersection int64) Correlation {
	score := NPMI(total, dim1.Count, dim2.Count, intersection)
	return Correlation{
		Dimension1:        dim1,
		Dimension2:        dim2,
		IntersectionCount: intersection,
		Score:             score,
		Strength:          ClassifyStrength(score),
	}
}

// CorrelationItem is one entry of a correlation scan against a base
// filter, e.g. "which tag values co-occur with errors".
type CorrelationItem struct {
	Dimension         string              `json:"dimension"`
	Value             string              `json:"value"`
	Score             float64             `json:"npmi_score"`
	TraceCount        int64               `json:"trace_count"`
	PercentageOfSlice float64             `json:"percentage_of_slice"`
	PercentageOfTotal float64             `json:"percentage_of_total"`
	Strength          CorrelationStrength `json:"strength"`
}
