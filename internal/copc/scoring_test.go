package copc

import (
	"math"
	"testing"
)

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightQuality + WeightEfficiency + WeightEffectiveness + WeightCX + WeightPeople
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v, want 1.0", sum)
	}
}

func TestOverall(t *testing.T) {
	cases := []struct {
		name   string
		scores CategoryScores
		want   float64
	}{
		{"all hundred", CategoryScores{100, 100, 100, 100, 100}, 100},
		{"all zero", CategoryScores{}, 0},
		{"quality dominates", CategoryScores{Quality: 100}, 35},
		{"mixed", CategoryScores{Quality: 90, Efficiency: 80, Effectiveness: 70, CX: 60, People: 50}, 75.5},
	}
	for _, tc := range cases {
		if got := Overall(tc.scores); got != tc.want {
			t.Errorf("%s: Overall = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, StatusExcellent},
		{85, StatusExcellent},
		{84.99, StatusGood},
		{70, StatusGood},
		{69.99, StatusWarning},
		{50, StatusWarning},
		{49.99, StatusCritical},
		{0, StatusCritical},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.score); got != tc.want {
			t.Errorf("StatusFor(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	if !(CategoryScores{50, 50, 50, 50, 50}).Valid() {
		t.Fatal("in-range scores reported invalid")
	}
	if (CategoryScores{Quality: -1}).Valid() {
		t.Fatal("negative score reported valid")
	}
	if (CategoryScores{People: 101}).Valid() {
		t.Fatal("over-range score reported valid")
	}
}
