package tfci

import "time"

const (
	CycleStatusDraft     = "draft"
	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"
	CycleStatusCancelled = "cancelled"
)

const (
	RelationshipManager     = "manager"
	RelationshipSubordinate = "subordinate"
	RelationshipPeer        = "peer"
)

// MaxTimesChosen caps how many selectors may pick the same peer per cycle.
const MaxTimesChosen = 2

type Cycle struct {
	ID                string    `json:"id"`
	OrgID             string    `json:"orgId"`
	Name              string    `json:"name"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	Status            string    `json:"status"`
	IsAnonymous       bool      `json:"isAnonymous"`
	ParticipantsCount int       `json:"participantsCount"`
	CompletionRate    int       `json:"completionRate"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Employee struct {
	ID             string
	OrgID          string
	FullName       string
	Position       string
	Department     string
	HierarchyLevel int
	ManagerID      *string
}

type Quota struct {
	PeerCount   int `json:"peerCount"`
	Quota       int `json:"quota"`
	ManualCount int `json:"manualCount"`
	Remaining   int `json:"remaining"`
}

type EligiblePeer struct {
	PeerID         string `json:"peerId"`
	PeerName       string `json:"peerName"`
	PeerPosition   string `json:"peerPosition"`
	Department     string `json:"department"`
	HierarchyLevel int    `json:"hierarchyLevel"`
	TimesChosen    int    `json:"timesChosen"`
	CanBeChosen    bool   `json:"canBeChosen"`
}

type PeerSelection struct {
	CycleID        string    `json:"cycleId"`
	SelectorID     string    `json:"selectorId"`
	SelectedPeerID string    `json:"selectedPeerId"`
	IsRandom       bool      `json:"isRandom"`
	CreatedAt      time.Time `json:"createdAt"`
}

type SelectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RandomSelectionsResult struct {
	TotalGenerated int    `json:"totalGenerated"`
	Message        string `json:"message"`
}

type GenerateAssessmentsResult struct {
	HierarchicalAssessments int    `json:"hierarchicalAssessments"`
	PeerAssessments         int    `json:"peerAssessments"`
	TotalAssessments        int    `json:"totalAssessments"`
	Message                 string `json:"message"`
}

type Scores struct {
	Collaboration  int `json:"collaboration"`
	Communication  int `json:"communication"`
	Adaptability   int `json:"adaptability"`
	Accountability int `json:"accountability"`
	Leadership     int `json:"leadership"`
}

type Assessment struct {
	ID               string     `json:"id"`
	CycleID          string     `json:"cycleId"`
	TargetUserID     string     `json:"targetUserId"`
	EvaluatorID      *string    `json:"evaluatorId"`
	RelationshipType string     `json:"relationshipType"`
	Scores           *Scores    `json:"scores,omitempty"`
	OverallScore     *float64   `json:"overallScore,omitempty"`
	IsAnonymous      bool       `json:"isAnonymous"`
	SubmittedAt      *time.Time `json:"submittedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type HeatmapEntry struct {
	TargetUserID    string  `json:"targetUserId"`
	TargetName      string  `json:"targetName"`
	Collaboration   float64 `json:"collaboration"`
	Communication   float64 `json:"communication"`
	Adaptability    float64 `json:"adaptability"`
	Accountability  float64 `json:"accountability"`
	Leadership      float64 `json:"leadership"`
	Overall         float64 `json:"overall"`
	AssessmentCount int     `json:"assessmentCount"`
}
