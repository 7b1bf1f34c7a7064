package tfci

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateCycle(ctx context.Context, orgID, name string, startDate, endDate time.Time, isAnonymous bool, createdBy string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO tfci_cycles (org_id, name, start_date, end_date, is_anonymous, created_by)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
  `, orgID, name, startDate, endDate, isAnonymous, createdBy).Scan(&id)
	return id, err
}

func (s *Store) GetCycle(ctx context.Context, orgID, cycleID string) (Cycle, error) {
	var c Cycle
	err := s.DB.QueryRow(ctx, `
    SELECT id, org_id, name, start_date, end_date, status, is_anonymous, participants_count, completion_rate, created_at
    FROM tfci_cycles
    WHERE id = $1 AND org_id = $2
  `, cycleID, orgID).Scan(&c.ID, &c.OrgID, &c.Name, &c.StartDate, &c.EndDate, &c.Status, &c.IsAnonymous, &c.ParticipantsCount, &c.CompletionRate, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrCycleNotFound
	}
	return c, err
}

func (s *Store) ListCycles(ctx context.Context, orgID string) ([]Cycle, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, org_id, name, start_date, end_date, status, is_anonymous, participants_count, completion_rate, created_at
    FROM tfci_cycles
    WHERE org_id = $1
    ORDER BY created_at DESC
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.StartDate, &c.EndDate, &c.Status, &c.IsAnonymous, &c.ParticipantsCount, &c.CompletionRate, &c.CreatedAt); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (s *Store) UpdateCycleStatus(ctx context.Context, orgID, cycleID, status string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE tfci_cycles SET status = $1 WHERE id = $2 AND org_id = $3
  `, status, cycleID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (s *Store) UpdateCycleStats(ctx context.Context, cycleID string, participants, completionRate int) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE tfci_cycles SET participants_count = $1, completion_rate = $2 WHERE id = $3
  `, participants, completionRate, cycleID)
	return err
}

func (s *Store) DeleteCycle(ctx context.Context, orgID, cycleID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM tfci_cycles WHERE id = $1 AND org_id = $2", cycleID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, orgID, employeeID string) (Employee, error) {
	var e Employee
	err := s.DB.QueryRow(ctx, `
    SELECT id, org_id, full_name, position, department, hierarchy_level, manager_id
    FROM employees
    WHERE id = $1 AND org_id = $2 AND active
  `, employeeID, orgID).Scan(&e.ID, &e.OrgID, &e.FullName, &e.Position, &e.Department, &e.HierarchyLevel, &e.ManagerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

func (s *Store) EmployeeIDByUserID(ctx context.Context, orgID, userID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    SELECT id FROM employees WHERE org_id = $1 AND user_id = $2 AND active
  `, orgID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrEmployeeNotFound
	}
	return id, err
}

func (s *Store) ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, org_id, full_name, position, department, hierarchy_level, manager_id
    FROM employees
    WHERE org_id = $1 AND active
    ORDER BY full_name
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.OrgID, &e.FullName, &e.Position, &e.Department, &e.HierarchyLevel, &e.ManagerID); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) ListEligiblePeers(ctx context.Context, cycleID, orgID, employeeID, position, department string) ([]EligiblePeer, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT e.id, e.full_name, e.position, e.department, e.hierarchy_level,
           COALESCE(c.times_chosen, 0)
    FROM employees e
    LEFT JOIN (
      SELECT selected_peer_id, COUNT(*) AS times_chosen
      FROM tfci_peer_selections
      WHERE cycle_id = $1
      GROUP BY selected_peer_id
    ) c ON c.selected_peer_id = e.id
    WHERE e.org_id = $2 AND e.active AND e.id <> $3 AND e.position = $4 AND e.department = $5
    ORDER BY e.full_name
  `, cycleID, orgID, employeeID, position, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []EligiblePeer
	for rows.Next() {
		var p EligiblePeer
		if err := rows.Scan(&p.PeerID, &p.PeerName, &p.PeerPosition, &p.Department, &p.HierarchyLevel, &p.TimesChosen); err != nil {
			return nil, err
		}
		p.CanBeChosen = p.TimesChosen < MaxTimesChosen
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (s *Store) CountSelectionsBySelector(ctx context.Context, cycleID, selectorID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(*) FROM tfci_peer_selections WHERE cycle_id = $1 AND selector_id = $2
  `, cycleID, selectorID).Scan(&count)
	return count, err
}

func (s *Store) CountSelectionsForPeer(ctx context.Context, cycleID, peerID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(*) FROM tfci_peer_selections WHERE cycle_id = $1 AND selected_peer_id = $2
  `, cycleID, peerID).Scan(&count)
	return count, err
}

func (s *Store) SelectedPeerIDs(ctx context.Context, cycleID, selectorID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT selected_peer_id FROM tfci_peer_selections WHERE cycle_id = $1 AND selector_id = $2
  `, cycleID, selectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListSelections(ctx context.Context, cycleID string) ([]PeerSelection, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT cycle_id, selector_id, selected_peer_id, is_random, created_at
    FROM tfci_peer_selections
    WHERE cycle_id = $1
    ORDER BY created_at
  `, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var selections []PeerSelection
	for rows.Next() {
		var sel PeerSelection
		if err := rows.Scan(&sel.CycleID, &sel.SelectorID, &sel.SelectedPeerID, &sel.IsRandom, &sel.CreatedAt); err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}

// InsertSelection serializes writers targeting the same (cycle, peer) pair
// with an advisory lock so the times-chosen cap cannot be raced past, then
// inserts. The unique constraint backstops duplicate (selector, peer) pairs.
func (s *Store) InsertSelection(ctx context.Context, cycleID, selectorID, selectedPeerID string, isRandom bool) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))
  `, cycleID, selectedPeerID); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow(ctx, `
    SELECT COUNT(*) FROM tfci_peer_selections WHERE cycle_id = $1 AND selected_peer_id = $2
  `, cycleID, selectedPeerID).Scan(&count); err != nil {
		return err
	}
	if count >= MaxTimesChosen {
		return ErrSelectionLimitReached
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO tfci_peer_selections (cycle_id, selector_id, selected_peer_id, is_random)
    VALUES ($1, $2, $3, $4)
  `, cycleID, selectorID, selectedPeerID, isRandom); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSelection
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) DeleteSelection(ctx context.Context, cycleID, selectorID, selectedPeerID string) error {
	_, err := s.DB.Exec(ctx, `
    DELETE FROM tfci_peer_selections
    WHERE cycle_id = $1 AND selector_id = $2 AND selected_peer_id = $3
  `, cycleID, selectorID, selectedPeerID)
	return err
}

func (s *Store) InsertAssessment(ctx context.Context, orgID, cycleID, targetUserID, evaluatorID, relationshipType string, isAnonymous bool) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO tfci_assessments (org_id, cycle_id, target_user_id, evaluator_id, relationship_type, is_anonymous)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (cycle_id, evaluator_id, target_user_id, relationship_type) DO NOTHING
  `, orgID, cycleID, targetUserID, evaluatorID, relationshipType, isAnonymous)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetAssessment(ctx context.Context, orgID, assessmentID string) (Assessment, error) {
	var (
		a           Assessment
		evaluatorID string
		scores      [5]*int
	)
	err := s.DB.QueryRow(ctx, `
    SELECT id, cycle_id, target_user_id, evaluator_id, relationship_type,
           collaboration_score, communication_score, adaptability_score, accountability_score, leadership_score,
           overall_score, is_anonymous, submitted_at, created_at
    FROM tfci_assessments
    WHERE id = $1 AND org_id = $2
  `, assessmentID, orgID).Scan(
		&a.ID, &a.CycleID, &a.TargetUserID, &evaluatorID, &a.RelationshipType,
		&scores[0], &scores[1], &scores[2], &scores[3], &scores[4],
		&a.OverallScore, &a.IsAnonymous, &a.SubmittedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assessment{}, ErrAssessmentNotFound
	}
	if err != nil {
		return Assessment{}, err
	}
	if scores[0] != nil {
		a.Scores = &Scores{
			Collaboration:  *scores[0],
			Communication:  *scores[1],
			Adaptability:   *scores[2],
			Accountability: *scores[3],
			Leadership:     *scores[4],
		}
	}
	a.EvaluatorID = evaluatorFor(evaluatorID, a.IsAnonymous)
	return a, nil
}

func (s *Store) AssessmentEvaluator(ctx context.Context, orgID, assessmentID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    SELECT evaluator_id FROM tfci_assessments WHERE id = $1 AND org_id = $2
  `, assessmentID, orgID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrAssessmentNotFound
	}
	return id, err
}

func (s *Store) ListAssessmentsByCycle(ctx context.Context, orgID, cycleID string) ([]Assessment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, cycle_id, target_user_id, evaluator_id, relationship_type,
           collaboration_score, communication_score, adaptability_score, accountability_score, leadership_score,
           overall_score, is_anonymous, submitted_at, created_at
    FROM tfci_assessments
    WHERE org_id = $1 AND cycle_id = $2
    ORDER BY created_at
  `, orgID, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []Assessment
	for rows.Next() {
		var (
			a           Assessment
			evaluatorID string
			scores      [5]*int
		)
		if err := rows.Scan(
			&a.ID, &a.CycleID, &a.TargetUserID, &evaluatorID, &a.RelationshipType,
			&scores[0], &scores[1], &scores[2], &scores[3], &scores[4],
			&a.OverallScore, &a.IsAnonymous, &a.SubmittedAt, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		if scores[0] != nil {
			a.Scores = &Scores{
				Collaboration:  *scores[0],
				Communication:  *scores[1],
				Adaptability:   *scores[2],
				Accountability: *scores[3],
				Leadership:     *scores[4],
			}
		}
		a.EvaluatorID = evaluatorFor(evaluatorID, a.IsAnonymous)
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

func (s *Store) SubmitScores(ctx context.Context, assessmentID string, scores Scores, overall float64, comments string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE tfci_assessments
    SET collaboration_score = $1, communication_score = $2, adaptability_score = $3,
        accountability_score = $4, leadership_score = $5, overall_score = $6,
        comments = NULLIF($7, ''), submitted_at = now()
    WHERE id = $8 AND submitted_at IS NULL
  `, scores.Collaboration, scores.Communication, scores.Adaptability, scores.Accountability, scores.Leadership, overall, comments, assessmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) TargetSubmissionCounts(ctx context.Context, cycleID string) (map[string]int, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT target_user_id, COUNT(*) FILTER (WHERE submitted_at IS NOT NULL)
    FROM tfci_assessments
    WHERE cycle_id = $1
    GROUP BY target_user_id
  `, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var target string
		var submitted int
		if err := rows.Scan(&target, &submitted); err != nil {
			return nil, err
		}
		counts[target] = submitted
	}
	return counts, rows.Err()
}

func (s *Store) Heatmap(ctx context.Context, orgID, cycleID string) ([]HeatmapEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT a.target_user_id, e.full_name,
           AVG(a.collaboration_score), AVG(a.communication_score), AVG(a.adaptability_score),
           AVG(a.accountability_score), AVG(a.leadership_score), AVG(a.overall_score),
           COUNT(*)
    FROM tfci_assessments a
    JOIN employees e ON e.id = a.target_user_id
    WHERE a.org_id = $1 AND a.cycle_id = $2 AND a.submitted_at IS NOT NULL
    GROUP BY a.target_user_id, e.full_name
    ORDER BY e.full_name
  `, orgID, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HeatmapEntry
	for rows.Next() {
		var entry HeatmapEntry
		if err := rows.Scan(&entry.TargetUserID, &entry.TargetName, &entry.Collaboration, &entry.Communication, &entry.Adaptability, &entry.Accountability, &entry.Leadership, &entry.Overall, &entry.AssessmentCount); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// evaluatorFor hides the evaluator identity on anonymous assessments. The
// row always stores it so the natural-key uniqueness and quota accounting
// stay intact.
func evaluatorFor(evaluatorID string, isAnonymous bool) *string {
	if isAnonymous {
		return nil
	}
	return &evaluatorID
}
