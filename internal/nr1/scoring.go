package nr1

import "math"

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Dimension is one of the ten psychosocial factors scored 1-5, where a
// higher value means more exposure.
type Dimension struct {
	Key   string
	Label string
}

var Dimensions = []Dimension{
	{Key: "workload_pace", Label: "Workload & Pace"},
	{Key: "goal_pressure", Label: "Goal & Time Pressure"},
	{Key: "role_clarity", Label: "Role Clarity & Expectations"},
	{Key: "autonomy_control", Label: "Autonomy & Control"},
	{Key: "leadership_support", Label: "Leadership Support"},
	{Key: "peer_collaboration", Label: "Peer Support & Collaboration"},
	{Key: "recognition_justice", Label: "Recognition & Perceived Fairness"},
	{Key: "communication_change", Label: "Communication & Change"},
	{Key: "conflict_harassment", Label: "Conflict & Harassment"},
	{Key: "recovery_boundaries", Label: "Recovery & Boundaries"},
}

type DimensionScores struct {
	WorkloadPace        int `json:"workloadPace"`
	GoalPressure        int `json:"goalPressure"`
	RoleClarity         int `json:"roleClarity"`
	AutonomyControl     int `json:"autonomyControl"`
	LeadershipSupport   int `json:"leadershipSupport"`
	PeerCollaboration   int `json:"peerCollaboration"`
	RecognitionJustice  int `json:"recognitionJustice"`
	CommunicationChange int `json:"communicationChange"`
	ConflictHarassment  int `json:"conflictHarassment"`
	RecoveryBoundaries  int `json:"recoveryBoundaries"`
}

func (d DimensionScores) values() []int {
	return []int{
		d.WorkloadPace, d.GoalPressure, d.RoleClarity, d.AutonomyControl,
		d.LeadershipSupport, d.PeerCollaboration, d.RecognitionJustice,
		d.CommunicationChange, d.ConflictHarassment, d.RecoveryBoundaries,
	}
}

// Valid reports whether every dimension sits inside the 1-5 scale.
func (d DimensionScores) Valid() bool {
	for _, v := range d.values() {
		if v < 1 || v > 5 {
			return false
		}
	}
	return true
}

// RiskLevelFor quantizes a score onto the four risk levels. The same
// thresholds apply to a single dimension and to the overall mean.
func RiskLevelFor(score float64) string {
	switch {
	case score >= 4:
		return RiskCritical
	case score >= 3:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

type Evaluation struct {
	RiskScore       float64           `json:"riskScore"`
	OverallLevel    string            `json:"overallRiskLevel"`
	DimensionLevels map[string]string `json:"dimensionLevels"`
}

// Evaluate computes the mean risk score and per-dimension levels.
func Evaluate(scores DimensionScores) Evaluation {
	values := scores.values()
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))
	mean = math.Round(mean*100) / 100

	levels := make(map[string]string, len(Dimensions))
	for i, dim := range Dimensions {
		levels[dim.Key] = RiskLevelFor(float64(values[i]))
	}

	return Evaluation{
		RiskScore:       mean,
		OverallLevel:    RiskLevelFor(mean),
		DimensionLevels: levels,
	}
}

// ElevatedDimensions returns the dimensions at or above the high
// threshold, in bank order.
func ElevatedDimensions(scores DimensionScores) []DimensionRisk {
	values := scores.values()
	var out []DimensionRisk
	for i, dim := range Dimensions {
		if values[i] >= 3 {
			out = append(out, DimensionRisk{
				Key:   dim.Key,
				Label: dim.Label,
				Score: values[i],
				Level: RiskLevelFor(float64(values[i])),
			})
		}
	}
	return out
}

type DimensionRisk struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Score int    `json:"score"`
	Level string `json:"level"`
}

// mitigations holds the playbook applied to an elevated dimension when an
// action plan is generated.
var mitigations = map[string][]string{
	"workload_pace":        {"Review task distribution", "Schedule regular breaks", "Reassess deadlines and working hours"},
	"goal_pressure":        {"Renegotiate targets to realistic levels", "Introduce time management practices", "Prioritize critical work"},
	"role_clarity":         {"Review job descriptions", "Set explicit expectations", "Communicate objectives clearly"},
	"autonomy_control":     {"Delegate more responsibility", "Increase decision autonomy", "Reduce micromanagement"},
	"leadership_support":   {"Leadership training", "Regular feedback sessions", "Recognize achievements"},
	"peer_collaboration":   {"Team building activities", "Promote collaboration", "Improve peer communication"},
	"recognition_justice":  {"Introduce a recognition program", "Review reward policies", "Ensure pay equity"},
	"communication_change": {"Improve internal communication", "Prepare teams for change", "Decision transparency"},
	"conflict_harassment":  {"Investigate reported conflicts", "Offer mediation", "Harassment awareness training"},
	"recovery_boundaries":  {"Promote work-life balance", "Respect rest hours", "Encourage regular time off"},
}

func MitigationsFor(key string) []string {
	if actions, ok := mitigations[key]; ok {
		return actions
	}
	return []string{"Assess the specific situation"}
}
