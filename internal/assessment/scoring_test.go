package assessment

import "testing"

func allAnswers(value int) []Answer {
	answers := make([]Answer, 0, len(BehavioralQuestions))
	for _, q := range BehavioralQuestions {
		answers = append(answers, Answer{QuestionID: q.ID, Value: value})
	}
	return answers
}

func TestCalculateScoresNeutralMidpoint(t *testing.T) {
	result := CalculateScores(allAnswers(3))

	// every item at 3 lands every trait at 60, reverse item included
	if result.NormalizedScore != 60 {
		t.Fatalf("normalizedScore = %d, want 60", result.NormalizedScore)
	}
	if result.RawScore != 540 {
		t.Fatalf("rawScore = %d, want 540", result.RawScore)
	}
	if result.Traits.BigFive.Extraversion != 60 {
		t.Fatalf("extraversion = %d, want 60", result.Traits.BigFive.Extraversion)
	}
	if result.Traits.DISC.Conscientiousness != 60 {
		t.Fatalf("disc conscientiousness = %d, want 60", result.Traits.DISC.Conscientiousness)
	}
}

func TestCalculateScoresReverseItem(t *testing.T) {
	result := CalculateScores([]Answer{{QuestionID: "q1", Value: 5}})
	if result.Traits.BigFive.Extraversion != 20 {
		t.Fatalf("extraversion = %d, want 20 for reversed max answer", result.Traits.BigFive.Extraversion)
	}

	result = CalculateScores([]Answer{{QuestionID: "q1", Value: 1}})
	if result.Traits.BigFive.Extraversion != 100 {
		t.Fatalf("extraversion = %d, want 100 for reversed min answer", result.Traits.BigFive.Extraversion)
	}
}

func TestCalculateScoresMissingTraitsDefaultToNeutral(t *testing.T) {
	result := CalculateScores([]Answer{{QuestionID: "q2", Value: 5}})

	if result.Traits.BigFive.Openness != 100 {
		t.Fatalf("openness = %d, want 100", result.Traits.BigFive.Openness)
	}
	if result.Traits.BigFive.Neuroticism != neutralTrait {
		t.Fatalf("neuroticism = %d, want neutral %d", result.Traits.BigFive.Neuroticism, neutralTrait)
	}
	if result.Traits.DISC.Dominance != neutralTrait {
		t.Fatalf("dominance = %d, want neutral %d", result.Traits.DISC.Dominance, neutralTrait)
	}
	if result.RawScore != 100 || result.NormalizedScore != 100 {
		t.Fatalf("raw/normalized = %d/%d, want 100/100", result.RawScore, result.NormalizedScore)
	}
}

func TestCalculateScoresSkipsUnknownQuestions(t *testing.T) {
	result := CalculateScores([]Answer{
		{QuestionID: "q3", Value: 4},
		{QuestionID: "q99", Value: 5},
	})
	if result.Traits.BigFive.Conscientiousness != 80 {
		t.Fatalf("conscientiousness = %d, want 80", result.Traits.BigFive.Conscientiousness)
	}
	if result.RawScore != 80 {
		t.Fatalf("rawScore = %d, unknown question leaked into scoring", result.RawScore)
	}
}

func TestCalculateScoresEmptyAnswers(t *testing.T) {
	result := CalculateScores(nil)
	if result.RawScore != 0 || result.NormalizedScore != 0 {
		t.Fatalf("raw/normalized = %d/%d, want 0/0", result.RawScore, result.NormalizedScore)
	}
	if result.Traits.BigFive.Openness != neutralTrait {
		t.Fatalf("openness = %d, want neutral", result.Traits.BigFive.Openness)
	}
}

func TestCalculateScoresAveragesWithinTrait(t *testing.T) {
	// q2 and q10 both load on openness: (5+2)/2 = 3.5 -> 70
	result := CalculateScores([]Answer{
		{QuestionID: "q2", Value: 5},
		{QuestionID: "q10", Value: 2},
	})
	if result.Traits.BigFive.Openness != 70 {
		t.Fatalf("openness = %d, want 70", result.Traits.BigFive.Openness)
	}
}
