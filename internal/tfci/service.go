package tfci

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

type Service struct {
	store  StoreAPI
	ladder QuotaLadder

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(store StoreAPI) *Service {
	return &Service{
		store:  store,
		ladder: DefaultQuotaLadder,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewServiceWithRand pins the random source and quota ladder, for tests.
func NewServiceWithRand(store StoreAPI, ladder QuotaLadder, rng *rand.Rand) *Service {
	return &Service{store: store, ladder: ladder, rng: rng}
}

func (s *Service) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// ---- cycles ----

type CycleInput struct {
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	IsAnonymous bool
}

func (s *Service) CreateCycle(ctx context.Context, orgID, userID string, input CycleInput) (Cycle, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Cycle{}, fmt.Errorf("%w: cycle name is required", ErrValidation)
	}
	if !input.EndDate.After(input.StartDate) {
		return Cycle{}, fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}
	id, err := s.store.CreateCycle(ctx, orgID, strings.TrimSpace(input.Name), input.StartDate, input.EndDate, input.IsAnonymous, userID)
	if err != nil {
		return Cycle{}, err
	}
	return s.store.GetCycle(ctx, orgID, id)
}

func (s *Service) GetCycle(ctx context.Context, orgID, cycleID string) (Cycle, error) {
	return s.store.GetCycle(ctx, orgID, cycleID)
}

func (s *Service) ListCycles(ctx context.Context, orgID string) ([]Cycle, error) {
	return s.store.ListCycles(ctx, orgID)
}

var cycleTransitions = map[string][]string{
	CycleStatusDraft:  {CycleStatusActive, CycleStatusCancelled},
	CycleStatusActive: {CycleStatusCompleted, CycleStatusCancelled},
}

func (s *Service) TransitionCycle(ctx context.Context, orgID, cycleID, status string) (Cycle, error) {
	cycle, err := s.store.GetCycle(ctx, orgID, cycleID)
	if err != nil {
		return Cycle{}, err
	}
	allowed := false
	for _, next := range cycleTransitions[cycle.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Cycle{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cycle.Status, status)
	}
	if err := s.store.UpdateCycleStatus(ctx, orgID, cycleID, status); err != nil {
		return Cycle{}, err
	}
	return s.store.GetCycle(ctx, orgID, cycleID)
}

func (s *Service) DeleteCycle(ctx context.Context, orgID, cycleID string) error {
	return s.store.DeleteCycle(ctx, orgID, cycleID)
}

func (s *Service) activeCycle(ctx context.Context, orgID, cycleID string) (Cycle, error) {
	cycle, err := s.store.GetCycle(ctx, orgID, cycleID)
	if err != nil {
		return Cycle{}, err
	}
	if cycle.Status != CycleStatusActive {
		return Cycle{}, ErrCycleNotActive
	}
	return cycle, nil
}

// ---- peer selection ----

func (s *Service) GetQuota(ctx context.Context, orgID, cycleID, employeeID string) (Quota, error) {
	if _, err := s.store.GetCycle(ctx, orgID, cycleID); err != nil {
		return Quota{}, err
	}
	employee, err := s.store.GetEmployee(ctx, orgID, employeeID)
	if err != nil {
		return Quota{}, err
	}

	peers, err := s.store.ListEligiblePeers(ctx, cycleID, orgID, employee.ID, employee.Position, employee.Department)
	if err != nil {
		return Quota{}, err
	}
	selected, err := s.store.CountSelectionsBySelector(ctx, cycleID, employee.ID)
	if err != nil {
		return Quota{}, err
	}

	quota := s.ladder.QuotaFor(len(peers))
	remaining := quota - selected
	if remaining < 0 {
		remaining = 0
	}
	return Quota{
		PeerCount:   len(peers),
		Quota:       quota,
		ManualCount: selected,
		Remaining:   remaining,
	}, nil
}

func (s *Service) GetEligiblePeers(ctx context.Context, orgID, cycleID, employeeID string) ([]EligiblePeer, error) {
	if _, err := s.store.GetCycle(ctx, orgID, cycleID); err != nil {
		return nil, err
	}
	employee, err := s.store.GetEmployee(ctx, orgID, employeeID)
	if err != nil {
		return nil, err
	}
	return s.store.ListEligiblePeers(ctx, cycleID, orgID, employee.ID, employee.Position, employee.Department)
}

// RegisterPeerSelection validates in a fixed order: self-selection, the
// selector's quota, the target's eligibility, the times-chosen cap, then
// duplicates. The store re-enforces cap and uniqueness atomically with the
// insert.
func (s *Service) RegisterPeerSelection(ctx context.Context, orgID, cycleID, selectorID, selectedPeerID string) (SelectionResult, error) {
	if _, err := s.activeCycle(ctx, orgID, cycleID); err != nil {
		return SelectionResult{}, err
	}
	if selectorID == selectedPeerID {
		return SelectionResult{}, ErrSelfSelection
	}

	selector, err := s.store.GetEmployee(ctx, orgID, selectorID)
	if err != nil {
		return SelectionResult{}, err
	}
	if _, err := s.store.GetEmployee(ctx, orgID, selectedPeerID); err != nil {
		return SelectionResult{}, err
	}

	peers, err := s.store.ListEligiblePeers(ctx, cycleID, orgID, selector.ID, selector.Position, selector.Department)
	if err != nil {
		return SelectionResult{}, err
	}
	selected, err := s.store.CountSelectionsBySelector(ctx, cycleID, selector.ID)
	if err != nil {
		return SelectionResult{}, err
	}
	if selected >= s.ladder.QuotaFor(len(peers)) {
		return SelectionResult{}, ErrQuotaExceeded
	}

	eligible := false
	for _, peer := range peers {
		if peer.PeerID == selectedPeerID {
			eligible = true
			break
		}
	}
	if !eligible {
		return SelectionResult{}, ErrNotEligible
	}

	chosen, err := s.store.CountSelectionsForPeer(ctx, cycleID, selectedPeerID)
	if err != nil {
		return SelectionResult{}, err
	}
	if chosen >= MaxTimesChosen {
		return SelectionResult{}, ErrSelectionLimitReached
	}

	if err := s.store.InsertSelection(ctx, cycleID, selectorID, selectedPeerID, false); err != nil {
		return SelectionResult{}, err
	}
	return SelectionResult{Success: true, Message: "peer selection registered"}, nil
}

// GenerateRandomSelections fills every employee's remaining quota with
// uniform draws over peers that are still selectable, rerouting earlier
// random picks when that is what stands between an employee and a full
// quota. Totals are partial only when the pool is genuinely exhausted;
// re-running only fills gaps left by a previous run.
func (s *Service) GenerateRandomSelections(ctx context.Context, orgID, cycleID string) (RandomSelectionsResult, error) {
	if _, err := s.activeCycle(ctx, orgID, cycleID); err != nil {
		return RandomSelectionsResult{}, err
	}

	employees, err := s.store.ListActiveEmployees(ctx, orgID)
	if err != nil {
		return RandomSelectionsResult{}, err
	}

	total := 0
	for _, employee := range employees {
		generated, err := s.fillEmployeeQuota(ctx, orgID, cycleID, employee)
		if err != nil {
			return RandomSelectionsResult{}, err
		}
		total += generated
	}

	return RandomSelectionsResult{
		TotalGenerated: total,
		Message:        fmt.Sprintf("generated %d random selections", total),
	}, nil
}

func (s *Service) fillEmployeeQuota(ctx context.Context, orgID, cycleID string, employee Employee) (int, error) {
	peers, err := s.store.ListEligiblePeers(ctx, cycleID, orgID, employee.ID, employee.Position, employee.Department)
	if err != nil {
		return 0, err
	}
	selectedCount, err := s.store.CountSelectionsBySelector(ctx, cycleID, employee.ID)
	if err != nil {
		return 0, err
	}
	remaining := s.ladder.QuotaFor(len(peers)) - selectedCount
	if remaining <= 0 {
		return 0, nil
	}

	alreadyChosen, err := s.store.SelectedPeerIDs(ctx, cycleID, employee.ID)
	if err != nil {
		return 0, err
	}
	chosenSet := make(map[string]bool, len(alreadyChosen))
	for _, id := range alreadyChosen {
		chosenSet[id] = true
	}

	var candidates []string
	for _, peer := range peers {
		if peer.CanBeChosen && !chosenSet[peer.PeerID] {
			candidates = append(candidates, peer.PeerID)
		}
	}

	generated := 0
	for remaining > 0 && len(candidates) > 0 {
		idx := s.intn(len(candidates))
		peerID := candidates[idx]
		candidates = append(candidates[:idx], candidates[idx+1:]...)

		err := s.store.InsertSelection(ctx, cycleID, employee.ID, peerID, true)
		switch {
		case err == nil:
			generated++
			remaining--
		case err == ErrSelectionLimitReached || err == ErrDuplicateSelection:
			// another selector filled this peer concurrently; try the next
		default:
			return generated, err
		}
	}

	// Earlier draws can consume exactly the capacity a later employee needed.
	// Reroute random selections along a freeing chain before giving up;
	// manual choices are never moved.
	for remaining > 0 {
		ok, err := s.rerouteForStranded(ctx, orgID, cycleID, employee)
		if err != nil {
			return generated, err
		}
		if !ok {
			break
		}
		generated++
		remaining--
	}
	return generated, nil
}

// rerouteStep records a pending move: once `into` has a free slot, the
// selector's random pick moves from `fromPeer` to it, freeing fromPeer.
type rerouteStep struct {
	selector string
	fromPeer string
}

// rerouteForStranded frees one slot on a peer the stranded employee may
// select. Breadth-first over random selections only: a capped peer can shed
// one of its random selectors onto another selectable peer, which may itself
// need freeing first. Reports false when no chain of such moves exists, which
// means the pool is genuinely exhausted.
func (s *Service) rerouteForStranded(ctx context.Context, orgID, cycleID string, employee Employee) (bool, error) {
	peers, err := s.store.ListEligiblePeers(ctx, cycleID, orgID, employee.ID, employee.Position, employee.Department)
	if err != nil {
		return false, err
	}
	alreadyChosen, err := s.store.SelectedPeerIDs(ctx, cycleID, employee.ID)
	if err != nil {
		return false, err
	}
	chosenSet := make(map[string]bool, len(alreadyChosen))
	for _, id := range alreadyChosen {
		chosenSet[id] = true
	}

	visited := map[string]bool{}
	var queue []string
	for _, peer := range peers {
		if chosenSet[peer.PeerID] {
			continue
		}
		if peer.CanBeChosen {
			// a slot opened up since the draw; take it directly
			err := s.store.InsertSelection(ctx, cycleID, employee.ID, peer.PeerID, true)
			if err == nil {
				return true, nil
			}
			if err != ErrSelectionLimitReached && err != ErrDuplicateSelection {
				return false, err
			}
			continue
		}
		visited[peer.PeerID] = true
		queue = append(queue, peer.PeerID)
	}

	selections, err := s.store.ListSelections(ctx, cycleID)
	if err != nil {
		return false, err
	}
	randomInto := map[string][]string{}
	for _, sel := range selections {
		if sel.IsRandom && sel.SelectorID != employee.ID {
			randomInto[sel.SelectedPeerID] = append(randomInto[sel.SelectedPeerID], sel.SelectorID)
		}
	}

	parent := map[string]rerouteStep{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, selectorID := range randomInto[cur] {
			selector, err := s.store.GetEmployee(ctx, orgID, selectorID)
			if err != nil {
				return false, err
			}
			alternatives, err := s.store.ListEligiblePeers(ctx, cycleID, orgID, selector.ID, selector.Position, selector.Department)
			if err != nil {
				return false, err
			}
			selectorChosen, err := s.store.SelectedPeerIDs(ctx, cycleID, selector.ID)
			if err != nil {
				return false, err
			}
			selectorSet := make(map[string]bool, len(selectorChosen))
			for _, id := range selectorChosen {
				selectorSet[id] = true
			}

			for _, alt := range alternatives {
				if selectorSet[alt.PeerID] || alt.PeerID == cur {
					continue
				}
				if alt.CanBeChosen {
					return true, s.applyReroute(ctx, cycleID, employee.ID, cur, selectorID, alt.PeerID, parent)
				}
				if !visited[alt.PeerID] {
					visited[alt.PeerID] = true
					parent[alt.PeerID] = rerouteStep{selector: selectorID, fromPeer: cur}
					queue = append(queue, alt.PeerID)
				}
			}
		}
	}
	return false, nil
}

// applyReroute replays a freeing chain from its open end back to the
// stranded employee: the terminal selector moves to the open slot, each
// intermediate selector moves into the slot the previous step vacated, and
// the employee takes the last freed peer.
func (s *Service) applyReroute(ctx context.Context, cycleID, employeeID, freed, selectorID, target string, parent map[string]rerouteStep) error {
	if err := s.store.DeleteSelection(ctx, cycleID, selectorID, freed); err != nil {
		return err
	}
	if err := s.store.InsertSelection(ctx, cycleID, selectorID, target, true); err != nil {
		return err
	}
	for {
		step, ok := parent[freed]
		if !ok {
			return s.store.InsertSelection(ctx, cycleID, employeeID, freed, true)
		}
		if err := s.store.DeleteSelection(ctx, cycleID, step.selector, step.fromPeer); err != nil {
			return err
		}
		if err := s.store.InsertSelection(ctx, cycleID, step.selector, freed, true); err != nil {
			return err
		}
		freed = step.fromPeer
	}
}

// ---- assessment generation ----

// GenerateCycleAssessments creates the hierarchical manager/subordinate
// pairs plus one peer assessment per selection. Re-running never duplicates:
// the natural-key conflict is treated as already generated.
func (s *Service) GenerateCycleAssessments(ctx context.Context, orgID, cycleID string) (GenerateAssessmentsResult, error) {
	cycle, err := s.activeCycle(ctx, orgID, cycleID)
	if err != nil {
		return GenerateAssessmentsResult{}, err
	}

	employees, err := s.store.ListActiveEmployees(ctx, orgID)
	if err != nil {
		return GenerateAssessmentsResult{}, err
	}
	byID := make(map[string]Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	hierarchical := 0
	for _, employee := range employees {
		if employee.ManagerID == nil {
			continue
		}
		manager, ok := byID[*employee.ManagerID]
		if !ok {
			continue
		}

		inserted, err := s.store.InsertAssessment(ctx, orgID, cycleID, employee.ID, manager.ID, RelationshipManager, false)
		if err != nil {
			return GenerateAssessmentsResult{}, err
		}
		if inserted {
			hierarchical++
		}

		inserted, err = s.store.InsertAssessment(ctx, orgID, cycleID, manager.ID, employee.ID, RelationshipSubordinate, false)
		if err != nil {
			return GenerateAssessmentsResult{}, err
		}
		if inserted {
			hierarchical++
		}
	}

	selections, err := s.store.ListSelections(ctx, cycleID)
	if err != nil {
		return GenerateAssessmentsResult{}, err
	}
	peer := 0
	for _, sel := range selections {
		inserted, err := s.store.InsertAssessment(ctx, orgID, cycleID, sel.SelectedPeerID, sel.SelectorID, RelationshipPeer, cycle.IsAnonymous)
		if err != nil {
			return GenerateAssessmentsResult{}, err
		}
		if inserted {
			peer++
		}
	}

	return GenerateAssessmentsResult{
		HierarchicalAssessments: hierarchical,
		PeerAssessments:         peer,
		TotalAssessments:        hierarchical + peer,
		Message:                 fmt.Sprintf("generated %d assessments", hierarchical+peer),
	}, nil
}

// ---- submission ----

func (s *Service) ListAssessments(ctx context.Context, orgID, cycleID string) ([]Assessment, error) {
	if _, err := s.store.GetCycle(ctx, orgID, cycleID); err != nil {
		return nil, err
	}
	return s.store.ListAssessmentsByCycle(ctx, orgID, cycleID)
}

func (s *Service) SubmitAssessment(ctx context.Context, orgID, userID, assessmentID string, scores Scores, comments string) (Assessment, error) {
	if err := validateScores(scores); err != nil {
		return Assessment{}, err
	}

	assessment, err := s.store.GetAssessment(ctx, orgID, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if _, err := s.activeCycle(ctx, orgID, assessment.CycleID); err != nil {
		return Assessment{}, err
	}

	employeeID, err := s.store.EmployeeIDByUserID(ctx, orgID, userID)
	if err != nil {
		return Assessment{}, err
	}
	evaluator, err := s.store.AssessmentEvaluator(ctx, orgID, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if evaluator != employeeID {
		return Assessment{}, ErrNotEvaluator
	}

	overall := overallScore(scores)
	updated, err := s.store.SubmitScores(ctx, assessmentID, scores, overall, comments)
	if err != nil {
		return Assessment{}, err
	}
	if !updated {
		return Assessment{}, ErrAlreadySubmitted
	}

	if err := s.refreshCycleStats(ctx, assessment.CycleID); err != nil {
		return Assessment{}, err
	}

	return s.store.GetAssessment(ctx, orgID, assessmentID)
}

func (s *Service) Heatmap(ctx context.Context, orgID, cycleID string) ([]HeatmapEntry, error) {
	if _, err := s.store.GetCycle(ctx, orgID, cycleID); err != nil {
		return nil, err
	}
	return s.store.Heatmap(ctx, orgID, cycleID)
}

// refreshCycleStats recomputes participants and the completion rate: a
// target counts as complete once three submitted assessments exist for it.
func (s *Service) refreshCycleStats(ctx context.Context, cycleID string) error {
	counts, err := s.store.TargetSubmissionCounts(ctx, cycleID)
	if err != nil {
		return err
	}
	completed := 0
	for _, submitted := range counts {
		if submitted >= 3 {
			completed++
		}
	}
	rate := 0
	if len(counts) > 0 {
		rate = int(math.Round(float64(completed) / float64(len(counts)) * 100))
	}
	return s.store.UpdateCycleStats(ctx, cycleID, len(counts), rate)
}

func validateScores(scores Scores) error {
	for _, v := range []int{scores.Collaboration, scores.Communication, scores.Adaptability, scores.Accountability, scores.Leadership} {
		if v < 1 || v > 5 {
			return fmt.Errorf("%w: scores must be between 1 and 5", ErrValidation)
		}
	}
	return nil
}

func overallScore(scores Scores) float64 {
	sum := scores.Collaboration + scores.Communication + scores.Adaptability + scores.Accountability + scores.Leadership
	return float64(sum) / 5
}
