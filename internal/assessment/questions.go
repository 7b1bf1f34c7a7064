package assessment

// Question is one item of the fixed behavioral bank. Reverse items score
// as 6 minus the answered value.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Trait   string `json:"trait"`
	Reverse bool   `json:"-"`
}

type Option struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

const KindBehavioralV1 = "behavioral_v1"

// BehavioralQuestions is version 1 of the Big Five / DISC item bank.
// Changing item order or traits invalidates stored raw answers, so this
// slice is append-only across versions.
var BehavioralQuestions = []Question{
	{ID: "q1", Text: "I prefer working alone over working in a group", Trait: TraitExtraversion, Reverse: true},
	{ID: "q2", Text: "I enjoy trying new things", Trait: TraitOpenness},
	{ID: "q3", Text: "I am organized and like to plan ahead", Trait: TraitConscientiousness},
	{ID: "q4", Text: "I tend to help others even when not asked", Trait: TraitAgreeableness},
	{ID: "q5", Text: "I get anxious when facing unfamiliar situations", Trait: TraitNeuroticism},
	{ID: "q6", Text: "I enjoy leading projects and teams", Trait: TraitDominance},
	{ID: "q7", Text: "I prefer predictable and stable work environments", Trait: TraitSteadiness},
	{ID: "q8", Text: "I enjoy persuading people and influencing decisions", Trait: TraitInfluence},
	{ID: "q9", Text: "I pay close attention to detail", Trait: TraitCompliance},
	{ID: "q10", Text: "I adapt easily to change", Trait: TraitOpenness},
}

var LikertOptions = []Option{
	{Value: 1, Label: "Strongly disagree"},
	{Value: 2, Label: "Somewhat disagree"},
	{Value: 3, Label: "Neutral"},
	{Value: 4, Label: "Somewhat agree"},
	{Value: 5, Label: "Strongly agree"},
}

func questionByID(id string) (Question, bool) {
	for _, q := range BehavioralQuestions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
