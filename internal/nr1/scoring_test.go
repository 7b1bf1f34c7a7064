package nr1

import "testing"

func uniformScores(v int) DimensionScores {
	return DimensionScores{
		WorkloadPace: v, GoalPressure: v, RoleClarity: v, AutonomyControl: v,
		LeadershipSupport: v, PeerCollaboration: v, RecognitionJustice: v,
		CommunicationChange: v, ConflictHarassment: v, RecoveryBoundaries: v,
	}
}

func TestRiskLevelFor(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{1, RiskLow},
		{1.99, RiskLow},
		{2, RiskMedium},
		{2.99, RiskMedium},
		{3, RiskHigh},
		{3.99, RiskHigh},
		{4, RiskCritical},
		{5, RiskCritical},
	}
	for _, tc := range cases {
		if got := RiskLevelFor(tc.score); got != tc.want {
			t.Errorf("RiskLevelFor(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestEvaluateUniform(t *testing.T) {
	eval := Evaluate(uniformScores(3))
	if eval.RiskScore != 3 {
		t.Fatalf("riskScore = %v, want 3", eval.RiskScore)
	}
	if eval.OverallLevel != RiskHigh {
		t.Fatalf("overall = %q, want high", eval.OverallLevel)
	}
	for key, level := range eval.DimensionLevels {
		if level != RiskHigh {
			t.Fatalf("dimension %s = %q, want high", key, level)
		}
	}
}

func TestEvaluateMeanBoundary(t *testing.T) {
	// nine dimensions at 3, one at 2: mean 2.9 stays medium
	scores := uniformScores(3)
	scores.RecoveryBoundaries = 2
	eval := Evaluate(scores)
	if eval.RiskScore != 2.9 {
		t.Fatalf("riskScore = %v, want 2.9", eval.RiskScore)
	}
	if eval.OverallLevel != RiskMedium {
		t.Fatalf("overall = %q, want medium", eval.OverallLevel)
	}
	if eval.DimensionLevels["recovery_boundaries"] != RiskMedium {
		t.Fatalf("recovery_boundaries level = %q, want medium", eval.DimensionLevels["recovery_boundaries"])
	}
}

func TestValid(t *testing.T) {
	if !uniformScores(1).Valid() || !uniformScores(5).Valid() {
		t.Fatal("in-range scores reported invalid")
	}
	bad := uniformScores(3)
	bad.GoalPressure = 0
	if bad.Valid() {
		t.Fatal("zero score reported valid")
	}
	bad.GoalPressure = 6
	if bad.Valid() {
		t.Fatal("out-of-range score reported valid")
	}
}

func TestElevatedDimensions(t *testing.T) {
	scores := uniformScores(1)
	scores.WorkloadPace = 4
	scores.ConflictHarassment = 3

	elevated := ElevatedDimensions(scores)
	if len(elevated) != 2 {
		t.Fatalf("elevated count = %d, want 2", len(elevated))
	}
	if elevated[0].Key != "workload_pace" || elevated[0].Level != RiskCritical {
		t.Fatalf("first elevated = %+v", elevated[0])
	}
	if elevated[1].Key != "conflict_harassment" || elevated[1].Level != RiskHigh {
		t.Fatalf("second elevated = %+v", elevated[1])
	}
}
