package assessment

import "math"

const (
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
	TraitDominance         = "dominance"
	TraitInfluence         = "influence"
	TraitSteadiness        = "steadiness"
	TraitCompliance        = "compliance"
)

// neutralTrait is the midpoint of the 0-100 scale, used for traits the
// submitted answers never touched. Missing data neutralizes, it does not
// zero out.
const neutralTrait = 50

type Answer struct {
	QuestionID string `json:"questionId"`
	Value      int    `json:"value"`
}

type BigFive struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
}

type DISC struct {
	Dominance         int `json:"dominance"`
	Influence         int `json:"influence"`
	Steadiness        int `json:"steadiness"`
	Conscientiousness int `json:"conscientiousness"`
}

type Traits struct {
	BigFive BigFive `json:"bigFive"`
	DISC    DISC    `json:"disc"`
}

type ScoreResult struct {
	RawScore        int    `json:"rawScore"`
	NormalizedScore int    `json:"normalizedScore"`
	Traits          Traits `json:"traits"`
}

// CalculateScores turns Likert answers into per-trait 0-100 scores.
// Reverse-keyed items score as 6 minus the value, per-trait means are
// scaled by 20 and rounded, and unknown question ids are skipped.
func CalculateScores(answers []Answer) ScoreResult {
	traitValues := make(map[string][]int)
	for _, answer := range answers {
		question, ok := questionByID(answer.QuestionID)
		if !ok {
			continue
		}
		score := answer.Value
		if question.Reverse {
			score = 6 - answer.Value
		}
		traitValues[question.Trait] = append(traitValues[question.Trait], score)
	}

	traits := make(map[string]int, len(traitValues))
	total := 0
	for trait, values := range traitValues {
		sum := 0
		for _, v := range values {
			sum += v
		}
		scaled := int(math.Round(float64(sum) / float64(len(values)) * 20))
		traits[trait] = scaled
		total += scaled
	}

	normalized := 0
	if len(traits) > 0 {
		normalized = int(math.Round(float64(total) / float64(len(traits))))
	}

	return ScoreResult{
		RawScore:        total,
		NormalizedScore: normalized,
		Traits: Traits{
			BigFive: BigFive{
				Openness:          traitOrNeutral(traits, TraitOpenness),
				Conscientiousness: traitOrNeutral(traits, TraitConscientiousness),
				Extraversion:      traitOrNeutral(traits, TraitExtraversion),
				Agreeableness:     traitOrNeutral(traits, TraitAgreeableness),
				Neuroticism:       traitOrNeutral(traits, TraitNeuroticism),
			},
			DISC: DISC{
				Dominance:         traitOrNeutral(traits, TraitDominance),
				Influence:         traitOrNeutral(traits, TraitInfluence),
				Steadiness:        traitOrNeutral(traits, TraitSteadiness),
				Conscientiousness: traitOrNeutral(traits, TraitCompliance),
			},
		},
	}
}

func traitOrNeutral(traits map[string]int, name string) int {
	if v, ok := traits[name]; ok {
		return v
	}
	return neutralTrait
}
