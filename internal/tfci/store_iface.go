package tfci

import (
	"context"
	"time"
)

type StoreAPI interface {
	CreateCycle(ctx context.Context, orgID, name string, startDate, endDate time.Time, isAnonymous bool, createdBy string) (string, error)
	GetCycle(ctx context.Context, orgID, cycleID string) (Cycle, error)
	ListCycles(ctx context.Context, orgID string) ([]Cycle, error)
	UpdateCycleStatus(ctx context.Context, orgID, cycleID, status string) error
	UpdateCycleStats(ctx context.Context, cycleID string, participants, completionRate int) error
	DeleteCycle(ctx context.Context, orgID, cycleID string) error

	GetEmployee(ctx context.Context, orgID, employeeID string) (Employee, error)
	EmployeeIDByUserID(ctx context.Context, orgID, userID string) (string, error)
	ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error)
	ListEligiblePeers(ctx context.Context, cycleID, orgID, employeeID, position, department string) ([]EligiblePeer, error)

	CountSelectionsBySelector(ctx context.Context, cycleID, selectorID string) (int, error)
	CountSelectionsForPeer(ctx context.Context, cycleID, peerID string) (int, error)
	SelectedPeerIDs(ctx context.Context, cycleID, selectorID string) ([]string, error)
	ListSelections(ctx context.Context, cycleID string) ([]PeerSelection, error)
	// InsertSelection performs the cap and uniqueness checks atomically with
	// the insert; it returns ErrSelectionLimitReached or ErrDuplicateSelection.
	InsertSelection(ctx context.Context, cycleID, selectorID, selectedPeerID string, isRandom bool) error
	DeleteSelection(ctx context.Context, cycleID, selectorID, selectedPeerID string) error

	// InsertAssessment reports false when the natural key already exists.
	InsertAssessment(ctx context.Context, orgID, cycleID, targetUserID, evaluatorID, relationshipType string, isAnonymous bool) (bool, error)
	GetAssessment(ctx context.Context, orgID, assessmentID string) (Assessment, error)
	// AssessmentEvaluator returns the stored evaluator regardless of the
	// anonymity flag, for authorization checks only.
	AssessmentEvaluator(ctx context.Context, orgID, assessmentID string) (string, error)
	ListAssessmentsByCycle(ctx context.Context, orgID, cycleID string) ([]Assessment, error)
	// SubmitScores reports false when the assessment was already submitted.
	SubmitScores(ctx context.Context, assessmentID string, scores Scores, overall float64, comments string) (bool, error)

	TargetSubmissionCounts(ctx context.Context, cycleID string) (map[string]int, error)
	Heatmap(ctx context.Context, orgID, cycleID string) ([]HeatmapEntry, error)
}
