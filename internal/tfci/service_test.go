package tfci

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"
)

const testOrg = "org-1"

type fakeAssessment struct {
	Assessment
	evaluator string
	comments  string
}

type fakeStore struct {
	mu           sync.Mutex
	cycles       map[string]Cycle
	employees    map[string]Employee
	userEmployee map[string]string
	selections   []PeerSelection
	assessments  map[string]*fakeAssessment
	nextID       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cycles:       make(map[string]Cycle),
		employees:    make(map[string]Employee),
		userEmployee: make(map[string]string),
		assessments:  make(map[string]*fakeAssessment),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) addEmployee(id, name, position, department string, managerID *string) {
	f.employees[id] = Employee{
		ID:         id,
		OrgID:      testOrg,
		FullName:   name,
		Position:   position,
		Department: department,
		ManagerID:  managerID,
	}
	f.userEmployee["user-"+id] = id
}

func (f *fakeStore) addActiveCycle(id string, anonymous bool) {
	f.cycles[id] = Cycle{
		ID:          id,
		OrgID:       testOrg,
		Name:        "cycle " + id,
		Status:      CycleStatusActive,
		IsAnonymous: anonymous,
	}
}

func (f *fakeStore) CreateCycle(_ context.Context, orgID, name string, startDate, endDate time.Time, isAnonymous bool, createdBy string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("cycle")
	f.cycles[id] = Cycle{
		ID:          id,
		OrgID:       orgID,
		Name:        name,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      CycleStatusDraft,
		IsAnonymous: isAnonymous,
		CreatedAt:   time.Now(),
	}
	return id, nil
}

func (f *fakeStore) GetCycle(_ context.Context, orgID, cycleID string) (Cycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cycle, ok := f.cycles[cycleID]
	if !ok || cycle.OrgID != orgID {
		return Cycle{}, ErrCycleNotFound
	}
	return cycle, nil
}

func (f *fakeStore) ListCycles(_ context.Context, orgID string) ([]Cycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Cycle
	for _, c := range f.cycles {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateCycleStatus(_ context.Context, orgID, cycleID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cycle, ok := f.cycles[cycleID]
	if !ok || cycle.OrgID != orgID {
		return ErrCycleNotFound
	}
	cycle.Status = status
	f.cycles[cycleID] = cycle
	return nil
}

func (f *fakeStore) UpdateCycleStats(_ context.Context, cycleID string, participants, completionRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cycle, ok := f.cycles[cycleID]
	if !ok {
		return ErrCycleNotFound
	}
	cycle.ParticipantsCount = participants
	cycle.CompletionRate = completionRate
	f.cycles[cycleID] = cycle
	return nil
}

func (f *fakeStore) DeleteCycle(_ context.Context, orgID, cycleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cycle, ok := f.cycles[cycleID]
	if !ok || cycle.OrgID != orgID {
		return ErrCycleNotFound
	}
	delete(f.cycles, cycleID)
	return nil
}

func (f *fakeStore) GetEmployee(_ context.Context, orgID, employeeID string) (Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	employee, ok := f.employees[employeeID]
	if !ok || employee.OrgID != orgID {
		return Employee{}, ErrEmployeeNotFound
	}
	return employee, nil
}

func (f *fakeStore) EmployeeIDByUserID(_ context.Context, orgID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.userEmployee[userID]
	if !ok {
		return "", ErrEmployeeNotFound
	}
	return id, nil
}

func (f *fakeStore) ListActiveEmployees(_ context.Context, orgID string) ([]Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Employee
	for _, e := range f.employees {
		if e.OrgID == orgID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListEligiblePeers(_ context.Context, cycleID, orgID, employeeID, position, department string) ([]EligiblePeer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EligiblePeer
	for _, e := range f.employees {
		if e.OrgID != orgID || e.ID == employeeID || e.Position != position || e.Department != department {
			continue
		}
		chosen := f.countForPeerLocked(cycleID, e.ID)
		out = append(out, EligiblePeer{
			PeerID:       e.ID,
			PeerName:     e.FullName,
			PeerPosition: e.Position,
			Department:   e.Department,
			TimesChosen:  chosen,
			CanBeChosen:  chosen < MaxTimesChosen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerName < out[j].PeerName })
	return out, nil
}

func (f *fakeStore) countForPeerLocked(cycleID, peerID string) int {
	n := 0
	for _, s := range f.selections {
		if s.CycleID == cycleID && s.SelectedPeerID == peerID {
			n++
		}
	}
	return n
}

func (f *fakeStore) CountSelectionsBySelector(_ context.Context, cycleID, selectorID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.selections {
		if s.CycleID == cycleID && s.SelectorID == selectorID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountSelectionsForPeer(_ context.Context, cycleID, peerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countForPeerLocked(cycleID, peerID), nil
}

func (f *fakeStore) SelectedPeerIDs(_ context.Context, cycleID, selectorID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.selections {
		if s.CycleID == cycleID && s.SelectorID == selectorID {
			out = append(out, s.SelectedPeerID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSelections(_ context.Context, cycleID string) ([]PeerSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PeerSelection
	for _, s := range f.selections {
		if s.CycleID == cycleID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertSelection(_ context.Context, cycleID, selectorID, selectedPeerID string, isRandom bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.selections {
		if s.CycleID == cycleID && s.SelectorID == selectorID && s.SelectedPeerID == selectedPeerID {
			return ErrDuplicateSelection
		}
	}
	if f.countForPeerLocked(cycleID, selectedPeerID) >= MaxTimesChosen {
		return ErrSelectionLimitReached
	}
	f.selections = append(f.selections, PeerSelection{
		CycleID:        cycleID,
		SelectorID:     selectorID,
		SelectedPeerID: selectedPeerID,
		IsRandom:       isRandom,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (f *fakeStore) DeleteSelection(_ context.Context, cycleID, selectorID, selectedPeerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.selections {
		if s.CycleID == cycleID && s.SelectorID == selectorID && s.SelectedPeerID == selectedPeerID {
			f.selections = append(f.selections[:i], f.selections[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) InsertAssessment(_ context.Context, orgID, cycleID, targetUserID, evaluatorID, relationshipType string, isAnonymous bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assessments {
		if a.CycleID == cycleID && a.evaluator == evaluatorID && a.TargetUserID == targetUserID && a.RelationshipType == relationshipType {
			return false, nil
		}
	}
	id := f.id("assessment")
	f.assessments[id] = &fakeAssessment{
		Assessment: Assessment{
			ID:               id,
			CycleID:          cycleID,
			TargetUserID:     targetUserID,
			RelationshipType: relationshipType,
			IsAnonymous:      isAnonymous,
			CreatedAt:        time.Now(),
		},
		evaluator: evaluatorID,
	}
	return true, nil
}

func (f *fakeStore) viewLocked(a *fakeAssessment) Assessment {
	out := a.Assessment
	out.EvaluatorID = evaluatorFor(a.evaluator, a.IsAnonymous)
	return out
}

func (f *fakeStore) GetAssessment(_ context.Context, orgID, assessmentID string) (Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assessments[assessmentID]
	if !ok {
		return Assessment{}, ErrAssessmentNotFound
	}
	return f.viewLocked(a), nil
}

func (f *fakeStore) AssessmentEvaluator(_ context.Context, orgID, assessmentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assessments[assessmentID]
	if !ok {
		return "", ErrAssessmentNotFound
	}
	return a.evaluator, nil
}

func (f *fakeStore) ListAssessmentsByCycle(_ context.Context, orgID, cycleID string) ([]Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Assessment
	for _, a := range f.assessments {
		if a.CycleID == cycleID {
			out = append(out, f.viewLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SubmitScores(_ context.Context, assessmentID string, scores Scores, overall float64, comments string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assessments[assessmentID]
	if !ok {
		return false, ErrAssessmentNotFound
	}
	if a.SubmittedAt != nil {
		return false, nil
	}
	now := time.Now()
	s := scores
	a.Scores = &s
	a.OverallScore = &overall
	a.SubmittedAt = &now
	a.comments = comments
	return true, nil
}

func (f *fakeStore) TargetSubmissionCounts(_ context.Context, cycleID string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range f.assessments {
		if a.CycleID != cycleID {
			continue
		}
		if _, ok := counts[a.TargetUserID]; !ok {
			counts[a.TargetUserID] = 0
		}
		if a.SubmittedAt != nil {
			counts[a.TargetUserID]++
		}
	}
	return counts, nil
}

func (f *fakeStore) Heatmap(_ context.Context, orgID, cycleID string) ([]HeatmapEntry, error) {
	return nil, nil
}

func newTestService(store *fakeStore) *Service {
	return NewServiceWithRand(store, DefaultQuotaLadder, rand.New(rand.NewSource(1)))
}

func TestCreateCycleValidation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateCycle(ctx, testOrg, "user-1", CycleInput{Name: "  ", StartDate: start, EndDate: start.AddDate(0, 1, 0)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("blank name: got %v, want ErrValidation", err)
	}

	_, err = svc.CreateCycle(ctx, testOrg, "user-1", CycleInput{Name: "Q1", StartDate: start, EndDate: start})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("end date not after start: got %v, want ErrValidation", err)
	}

	cycle, err := svc.CreateCycle(ctx, testOrg, "user-1", CycleInput{Name: "Q1 Review", StartDate: start, EndDate: start.AddDate(0, 1, 0), IsAnonymous: true})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	if cycle.Status != CycleStatusDraft {
		t.Fatalf("new cycle status = %q, want draft", cycle.Status)
	}
}

func TestTransitionCycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cycle, err := svc.CreateCycle(ctx, testOrg, "user-1", CycleInput{Name: "Q1", StartDate: start, EndDate: start.AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}

	if _, err := svc.TransitionCycle(ctx, testOrg, cycle.ID, CycleStatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("draft -> completed: got %v, want ErrInvalidTransition", err)
	}

	active, err := svc.TransitionCycle(ctx, testOrg, cycle.ID, CycleStatusActive)
	if err != nil {
		t.Fatalf("draft -> active: %v", err)
	}
	if active.Status != CycleStatusActive {
		t.Fatalf("status = %q, want active", active.Status)
	}

	done, err := svc.TransitionCycle(ctx, testOrg, cycle.ID, CycleStatusCompleted)
	if err != nil {
		t.Fatalf("active -> completed: %v", err)
	}
	if _, err := svc.TransitionCycle(ctx, testOrg, done.ID, CycleStatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed -> active: got %v, want ErrInvalidTransition", err)
	}
}

func seedTeam(store *fakeStore) {
	// four agents share position and department; e1 reports to the manager
	manager := "mgr"
	store.addEmployee("mgr", "Morgan Lead", "Team Lead", "Support", nil)
	store.addEmployee("e1", "Ana Silva", "Agent", "Support", &manager)
	store.addEmployee("e2", "Bruno Costa", "Agent", "Support", nil)
	store.addEmployee("e3", "Carla Dias", "Agent", "Support", nil)
	store.addEmployee("e4", "Diego Rocha", "Agent", "Support", nil)
}

func TestGetQuota(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	quota, err := svc.GetQuota(ctx, testOrg, "c1", "e1")
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if quota.PeerCount != 3 || quota.Quota != 2 || quota.Remaining != 2 {
		t.Fatalf("quota = %+v, want peerCount 3, quota 2, remaining 2", quota)
	}

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("register selection: %v", err)
	}
	quota, err = svc.GetQuota(ctx, testOrg, "c1", "e1")
	if err != nil {
		t.Fatalf("get quota after selection: %v", err)
	}
	if quota.ManualCount != 1 || quota.Remaining != 1 {
		t.Fatalf("quota = %+v, want manualCount 1, remaining 1", quota)
	}
}

func TestRegisterPeerSelectionRules(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e1"); !errors.Is(err, ErrSelfSelection) {
		t.Fatalf("self selection: got %v, want ErrSelfSelection", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "ghost"); !errors.Is(err, ErrEmployeeNotFound) {
		t.Fatalf("unknown peer: got %v, want ErrEmployeeNotFound", err)
	}

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("first selection: %v", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); !errors.Is(err, ErrDuplicateSelection) {
		t.Fatalf("duplicate: got %v, want ErrDuplicateSelection", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e3"); err != nil {
		t.Fatalf("second selection: %v", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e4"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("over quota: got %v, want ErrQuotaExceeded", err)
	}

	// e2 is now at the times-chosen cap once e3 also picks them
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e3", "e2"); err != nil {
		t.Fatalf("e3 selects e2: %v", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e4", "e2"); !errors.Is(err, ErrSelectionLimitReached) {
		t.Fatalf("cap reached: got %v, want ErrSelectionLimitReached", err)
	}
}

func TestRegisterPeerSelectionRejectsIneligiblePeer(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addEmployee("s1", "Elisa Prado", "Agent", "Sales", nil)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	// the manager shares the department but not the position
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "mgr"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("different position: got %v, want ErrNotEligible", err)
	}
	// same position, different department
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "s1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("different department: got %v, want ErrNotEligible", err)
	}
	if got, _ := store.CountSelectionsBySelector(ctx, "c1", "e1"); got != 0 {
		t.Fatalf("selections recorded for e1 = %d, want 0", got)
	}
}

func TestRegisterPeerSelectionRequiresActiveCycle(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.cycles["c1"] = Cycle{ID: "c1", OrgID: testOrg, Name: "draft", Status: CycleStatusDraft}
	svc := newTestService(store)

	if _, err := svc.RegisterPeerSelection(context.Background(), testOrg, "c1", "e1", "e2"); !errors.Is(err, ErrCycleNotActive) {
		t.Fatalf("draft cycle: got %v, want ErrCycleNotActive", err)
	}
}

func TestConcurrentSelectionsRespectPeerCap(t *testing.T) {
	store := newFakeStore()
	store.addActiveCycle("c1", true)
	target := "p0"
	store.addEmployee(target, "Target Zero", "Agent", "Support", nil)
	for i := 1; i <= 8; i++ {
		store.addEmployee(fmt.Sprintf("p%d", i), fmt.Sprintf("Peer %d", i), "Agent", "Support", nil)
	}
	svc := newTestService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(selector string) {
			defer wg.Done()
			_, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", selector, target)
			results <- err
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrSelectionLimitReached) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != MaxTimesChosen {
		t.Fatalf("succeeded = %d, want %d", succeeded, MaxTimesChosen)
	}
	if got, _ := store.CountSelectionsForPeer(ctx, "c1", target); got != MaxTimesChosen {
		t.Fatalf("stored selections for peer = %d, want %d", got, MaxTimesChosen)
	}
}

func TestGenerateRandomSelectionsFillsQuotas(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := NewServiceWithRand(store, QuotaLadder{{MinPeers: 1, Quota: 1}}, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	// one manual selection beforehand; random fill only covers the gap
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("manual selection: %v", err)
	}

	result, err := svc.GenerateRandomSelections(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("generate random: %v", err)
	}

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		quota, err := svc.GetQuota(ctx, testOrg, "c1", id)
		if err != nil {
			t.Fatalf("quota for %s: %v", id, err)
		}
		if quota.Remaining != 0 {
			t.Fatalf("employee %s remaining = %d after random fill", id, quota.Remaining)
		}
	}

	// e2, e3 and e4 each needed one pick; the manager has no eligible peers
	if result.TotalGenerated != 3 {
		t.Fatalf("totalGenerated = %d, want 3", result.TotalGenerated)
	}

	again, err := svc.GenerateRandomSelections(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.TotalGenerated != 0 {
		t.Fatalf("second run generated %d, want 0", again.TotalGenerated)
	}
}

func TestGenerateRandomSelectionsNeverPicksSelfOrDuplicates(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.GenerateRandomSelections(ctx, testOrg, "c1"); err != nil {
		t.Fatalf("generate random: %v", err)
	}

	selections, _ := store.ListSelections(ctx, "c1")
	seen := make(map[string]bool)
	for _, sel := range selections {
		if sel.SelectorID == sel.SelectedPeerID {
			t.Fatalf("self selection generated: %+v", sel)
		}
		key := sel.SelectorID + "/" + sel.SelectedPeerID
		if seen[key] {
			t.Fatalf("duplicate selection generated: %+v", sel)
		}
		seen[key] = true
	}
	for _, sel := range selections {
		if got := store.countForPeerLocked("c1", sel.SelectedPeerID); got > MaxTimesChosen {
			t.Fatalf("peer %s chosen %d times", sel.SelectedPeerID, got)
		}
	}
}

func TestGenerateRandomSelectionsReroutesWhenCapacityIsTight(t *testing.T) {
	// Four agents with quota 2 and a times-chosen cap of 2 leave zero slack:
	// total demand equals total capacity, so any pick the random fill wastes
	// on the wrong peer must be rerouted, never abandoned. This manual
	// pattern front-loads e2 to the cap and forces that situation.
	manual := [][2]string{{"e1", "e2"}, {"e2", "e3"}, {"e3", "e2"}, {"e4", "e1"}}
	agents := []string{"e1", "e2", "e3", "e4"}

	for seed := int64(0); seed < 50; seed++ {
		store := newFakeStore()
		seedTeam(store)
		store.addActiveCycle("c1", true)
		svc := NewServiceWithRand(store, DefaultQuotaLadder, rand.New(rand.NewSource(seed)))
		ctx := context.Background()

		for _, m := range manual {
			if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", m[0], m[1]); err != nil {
				t.Fatalf("seed %d: manual selection %s -> %s: %v", seed, m[0], m[1], err)
			}
		}

		result, err := svc.GenerateRandomSelections(ctx, testOrg, "c1")
		if err != nil {
			t.Fatalf("seed %d: generate: %v", seed, err)
		}
		if result.TotalGenerated != 4 {
			t.Fatalf("seed %d: generated %d random selections, want 4", seed, result.TotalGenerated)
		}

		selections, _ := store.ListSelections(ctx, "c1")
		if len(selections) != 8 {
			t.Fatalf("seed %d: %d selections total, want 8", seed, len(selections))
		}
		seen := map[string]bool{}
		perSelector := map[string]int{}
		for _, sel := range selections {
			if sel.SelectorID == sel.SelectedPeerID {
				t.Fatalf("seed %d: %s selected themselves", seed, sel.SelectorID)
			}
			key := sel.SelectorID + "/" + sel.SelectedPeerID
			if seen[key] {
				t.Fatalf("seed %d: duplicate selection %s", seed, key)
			}
			seen[key] = true
			perSelector[sel.SelectorID]++
		}
		for _, id := range agents {
			if perSelector[id] != 2 {
				t.Fatalf("seed %d: %s holds %d selections, want 2", seed, id, perSelector[id])
			}
			if got := store.countForPeerLocked("c1", id); got != MaxTimesChosen {
				t.Fatalf("seed %d: %s chosen %d times, want %d", seed, id, got, MaxTimesChosen)
			}
		}
		// rerouting may only move random picks; manual choices stay put
		for _, m := range manual {
			if !seen[m[0]+"/"+m[1]] {
				t.Fatalf("seed %d: manual selection %s -> %s was moved", seed, m[0], m[1])
			}
		}

		gen, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1")
		if err != nil {
			t.Fatalf("seed %d: generate assessments: %v", seed, err)
		}
		if gen.PeerAssessments != 8 {
			t.Fatalf("seed %d: %d peer assessments, want 8", seed, gen.PeerAssessments)
		}
	}
}

func TestGenerateCycleAssessments(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("e1 selects e2: %v", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e3", "e4"); err != nil {
		t.Fatalf("e3 selects e4: %v", err)
	}

	result, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("generate assessments: %v", err)
	}
	// e1 and mgr form the only manager pair
	if result.HierarchicalAssessments != 2 {
		t.Fatalf("hierarchical = %d, want 2", result.HierarchicalAssessments)
	}
	if result.PeerAssessments != 2 {
		t.Fatalf("peer = %d, want 2", result.PeerAssessments)
	}
	if result.TotalAssessments != 4 {
		t.Fatalf("total = %d, want 4", result.TotalAssessments)
	}

	again, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if again.TotalAssessments != 0 {
		t.Fatalf("second generation created %d assessments, want 0", again.TotalAssessments)
	}
}

func TestGenerateCycleAssessmentsAnonymity(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", true)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	assessments, err := svc.ListAssessments(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range assessments {
		switch a.RelationshipType {
		case RelationshipPeer:
			if !a.IsAnonymous || a.EvaluatorID != nil {
				t.Fatalf("peer assessment leaks evaluator: %+v", a)
			}
		default:
			if a.IsAnonymous || a.EvaluatorID == nil {
				t.Fatalf("hierarchical assessment missing evaluator: %+v", a)
			}
		}
	}
}

func TestSubmitAssessment(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", false)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e1", "e2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	var peerAssessment Assessment
	assessments, _ := svc.ListAssessments(ctx, testOrg, "c1")
	for _, a := range assessments {
		if a.RelationshipType == RelationshipPeer {
			peerAssessment = a
		}
	}
	if peerAssessment.ID == "" {
		t.Fatal("no peer assessment generated")
	}

	scores := Scores{Collaboration: 5, Communication: 4, Adaptability: 3, Accountability: 4, Leadership: 2}

	if _, err := svc.SubmitAssessment(ctx, testOrg, "user-e2", peerAssessment.ID, scores, ""); !errors.Is(err, ErrNotEvaluator) {
		t.Fatalf("wrong evaluator: got %v, want ErrNotEvaluator", err)
	}

	bad := scores
	bad.Leadership = 6
	if _, err := svc.SubmitAssessment(ctx, testOrg, "user-e1", peerAssessment.ID, bad, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("out-of-range score: got %v, want ErrValidation", err)
	}

	submitted, err := svc.SubmitAssessment(ctx, testOrg, "user-e1", peerAssessment.ID, scores, "solid quarter")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.SubmittedAt == nil || submitted.Scores == nil {
		t.Fatalf("submission not recorded: %+v", submitted)
	}
	if *submitted.OverallScore != 3.6 {
		t.Fatalf("overall = %v, want 3.6", *submitted.OverallScore)
	}

	if _, err := svc.SubmitAssessment(ctx, testOrg, "user-e1", peerAssessment.ID, scores, ""); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("resubmit: got %v, want ErrAlreadySubmitted", err)
	}
}

func TestSubmitUpdatesCompletionRate(t *testing.T) {
	store := newFakeStore()
	seedTeam(store)
	store.addActiveCycle("c1", false)
	svc := newTestService(store)
	ctx := context.Background()

	// e2, e3 and e4 each pick e1, giving e1 two peer reviews plus the
	// manager pair. The peer cap blocks the third selector.
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e2", "e1"); err != nil {
		t.Fatalf("e2 selects e1: %v", err)
	}
	if _, err := svc.RegisterPeerSelection(ctx, testOrg, "c1", "e3", "e1"); err != nil {
		t.Fatalf("e3 selects e1: %v", err)
	}
	if _, err := svc.GenerateCycleAssessments(ctx, testOrg, "c1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	assessments, _ := svc.ListAssessments(ctx, testOrg, "c1")
	scores := Scores{Collaboration: 4, Communication: 4, Adaptability: 4, Accountability: 4, Leadership: 4}
	for _, a := range assessments {
		if a.TargetUserID != "e1" {
			continue
		}
		evaluator, err := store.AssessmentEvaluator(ctx, testOrg, a.ID)
		if err != nil {
			t.Fatalf("evaluator: %v", err)
		}
		if _, err := svc.SubmitAssessment(ctx, testOrg, "user-"+evaluator, a.ID, scores, ""); err != nil {
			t.Fatalf("submit %s: %v", a.ID, err)
		}
	}

	cycle, err := svc.GetCycle(ctx, testOrg, "c1")
	if err != nil {
		t.Fatalf("get cycle: %v", err)
	}
	if cycle.ParticipantsCount == 0 {
		t.Fatal("participants count not refreshed")
	}
	// e1 has three submitted assessments and counts as complete
	if cycle.CompletionRate == 0 {
		t.Fatal("completion rate not refreshed")
	}
}
