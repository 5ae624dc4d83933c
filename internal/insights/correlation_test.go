package insights

import (
	"math"
	"testing"
)

func TestNPMIZeroCounts(t *testing.T) {
	cases := []struct {
		name                           string
		total, a, b, intersection int64
	}{
		{"zero total", 0, 10, 10, 5},
		{"zero countA", 100, 0, 10, 0},
		{"zero countB", 100, 10, 0, 0},
		{"zero intersection", 100, 10, 10, 0},
	}
	for _, tc := range cases {
		if got := NPMI(tc.total, tc.a, tc.b, tc.intersection); got != 0 {
			t.Errorf("%s: NPMI = %v, want 0", tc.name, got)
		}
	}
}

func TestNPMIPerfectCooccurrence(t *testing.T) {
	// Both events cover the whole population.
	if got := NPMI(50, 50, 50, 50); got != 1.0 {
		t.Errorf("NPMI = %v, want 1.0", got)
	}
}

func TestNPMIIndependentEvents(t *testing.T) {
	// p_a = p_b = 0.5, p_joint = 0.25: exactly what independence
	// predicts, so the score is 0.
	got := NPMI(100, 50, 50, 25)
	if math.Abs(got) > 1e-9 {
		t.Errorf("NPMI for independent events = %v, want 0", got)
	}
}

func TestNPMIPositiveAssociation(t *testing.T) {
	// Events co-occur far more than chance predicts.
	got := NPMI(1000, 100, 100, 90)
	if got <= 0 || got > 1 {
		t.Errorf("NPMI = %v, want in (0, 1]", got)
	}
}

func TestNPMINegativeAssociation(t *testing.T) {
	// Events co-occur far less than chance predicts.
	got := NPMI(100, 50, 50, 1)
	if got >= 0 {
		t.Errorf("NPMI = %v, want negative", got)
	}
}

func TestClassifyStrength(t *testing.T) {
	cases := []struct {
		score float64
		want  CorrelationStrength
	}{
		{0.9, StrengthStrong},
		{0.7, StrengthStrong},
		{-0.8, StrengthStrong},
		{0.5, StrengthModerate},
		{0.4, StrengthModerate},
		{0.2, StrengthWeak},
		{0.1, StrengthWeak},
		{-0.15, StrengthWeak},
		{0.05, StrengthNone},
		{0, StrengthNone},
	}
	for _, tc := range cases {
		if got := ClassifyStrength(tc.score); got != tc.want {
			t.Errorf("ClassifyStrength(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCorrelate(t *testing.T) {
	dim1 := DimensionValue{Name: "trace.status", Value: "ERROR", Count: 100}
	dim2 := DimensionValue{Name: "tag.model", Value: "gpt-x", Count: 100}

	c := Correlate(1000, dim1, dim2, 90)
	if c.IntersectionCount != 90 {
		t.Errorf("IntersectionCount = %d", c.IntersectionCount)
	}
	if c.Strength != ClassifyStrength(c.Score) {
		t.Errorf("Strength %s inconsistent with score %v", c.Strength, c.Score)
	}
	if c.Score <= 0 {
		t.Errorf("expected positive score, got %v", c.Score)
	}
}
