package nr1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"talentforge/internal/api"
	"talentforge/internal/middleware"
	"talentforge/internal/requestctx"
)

type Handler struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

func NewHandler(db *pgxpool.Pool, log *zap.Logger) *Handler {
	return &Handler{DB: db, Log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/nr1", func(r chi.Router) {
		r.Post("/assessments", h.handleCreate)
		r.Get("/assessments", h.handleList)
		r.Get("/assessments/{assessmentID}", h.handleGet)
		r.Get("/summary", h.handleSummary)
		r.Get("/risk-matrix", h.handleRiskMatrix)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Delete("/assessments/{assessmentID}", h.handleDelete)
		})
	})
}

type Assessment struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"orgId"`
	TeamID     *string         `json:"teamId"`
	EmployeeID *string         `json:"employeeId"`
	Scores     DimensionScores `json:"scores"`
	RiskScore  float64         `json:"riskScore"`
	RiskLevel  string          `json:"overallRiskLevel"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type createRequest struct {
	TeamID     *string         `json:"teamId"`
	EmployeeID *string         `json:"employeeId"`
	Scores     DimensionScores `json:"scores"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if !payload.Scores.Valid() {
		api.Fail(w, http.StatusBadRequest, "validation_error", "dimension scores must be between 1 and 5", requestctx.GetRequestID(r.Context()))
		return
	}

	eval := Evaluate(payload.Scores)
	s := payload.Scores

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO nr1_assessments (
      org_id, team_id, employee_id,
      workload_pace, goal_pressure, role_clarity, autonomy_control,
      leadership_support, peer_collaboration, recognition_justice,
      communication_change, conflict_harassment, recovery_boundaries,
      risk_score, overall_risk_level, created_by
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    RETURNING id
  `, user.OrgID, payload.TeamID, payload.EmployeeID,
		s.WorkloadPace, s.GoalPressure, s.RoleClarity, s.AutonomyControl,
		s.LeadershipSupport, s.PeerCollaboration, s.RecognitionJustice,
		s.CommunicationChange, s.ConflictHarassment, s.RecoveryBoundaries,
		eval.RiskScore, eval.OverallLevel, user.UserID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create nr1 assessment", err)
		return
	}

	if eval.OverallLevel == RiskHigh || eval.OverallLevel == RiskCritical {
		h.generateActionPlan(r, user.OrgID, user.UserID, id, payload, eval)
	}

	assessment, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create nr1 assessment", err)
		return
	}
	api.Created(w, assessment, requestctx.GetRequestID(r.Context()))
}

// generateActionPlan opens a remediation plan for an elevated assessment.
// Best effort: a failed insert is logged, the assessment itself stands.
func (h *Handler) generateActionPlan(r *http.Request, orgID, userID, assessmentID string, payload createRequest, eval Evaluation) {
	elevated := ElevatedDimensions(payload.Scores)
	if len(elevated) == 0 {
		return
	}

	rootCause := ""
	recommended := make([]map[string]any, 0, len(elevated))
	for i, dim := range elevated {
		if i > 0 {
			rootCause += ", "
		}
		rootCause += dim.Label + ": " + strconv.Itoa(dim.Score) + "/5"
		recommended = append(recommended, map[string]any{
			"dimension": dim.Label,
			"riskLevel": dim.Level,
			"actions":   MitigationsFor(dim.Key),
		})
	}
	recommendedJSON, err := json.Marshal(recommended)
	if err != nil {
		h.Log.Warn("action plan generation failed", zap.Error(err))
		return
	}

	priority := 4
	if eval.OverallLevel == RiskCritical {
		priority = 5
	}

	_, err = h.DB.Exec(r.Context(), `
    INSERT INTO action_plans (org_id, team_id, title, description, category, priority, risk_level, source, root_cause, recommended_actions, created_by)
    VALUES ($1, $2, $3, $4, 'psychosocial', $5, $6, 'nr1', $7, $8, $9)
  `, orgID, payload.TeamID,
		"Psychosocial risk intervention",
		"Risk assessment "+assessmentID+" flagged "+strconv.Itoa(len(elevated))+" elevated dimensions",
		priority, eval.OverallLevel, rootCause, recommendedJSON, userID)
	if err != nil {
		h.Log.Warn("action plan generation failed",
			zap.String("assessmentId", assessmentID),
			zap.Error(err))
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := `
    SELECT id, org_id, team_id, employee_id,
           workload_pace, goal_pressure, role_clarity, autonomy_control,
           leadership_support, peer_collaboration, recognition_justice,
           communication_change, conflict_harassment, recovery_boundaries,
           risk_score, overall_risk_level, created_at
    FROM nr1_assessments
    WHERE org_id = $1
  `
	args := []any{user.OrgID}
	if teamID := r.URL.Query().Get("teamId"); teamID != "" {
		args = append(args, teamID)
		query += " AND team_id = $" + strconv.Itoa(len(args))
	}
	if employeeID := r.URL.Query().Get("employeeId"); employeeID != "" {
		args = append(args, employeeID)
		query += " AND employee_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			args = append(args, n)
			query += " LIMIT $" + strconv.Itoa(len(args))
		}
	}

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list nr1 assessments", err)
		return
	}
	defer rows.Close()

	assessments := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			h.serverError(w, r, "list nr1 assessments", err)
			return
		}
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list nr1 assessments", err)
		return
	}
	api.Success(w, assessments, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	assessment, err := h.fetch(r, user.OrgID, chi.URLParam(r, "assessmentID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "assessment not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get nr1 assessment", err)
		return
	}
	api.Success(w, assessment, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM nr1_assessments WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "assessmentID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete nr1 assessment", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "assessment not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Assessment, error) {
	row := h.DB.QueryRow(r.Context(), `
    SELECT id, org_id, team_id, employee_id,
           workload_pace, goal_pressure, role_clarity, autonomy_control,
           leadership_support, peer_collaboration, recognition_justice,
           communication_change, conflict_harassment, recovery_boundaries,
           risk_score, overall_risk_level, created_at
    FROM nr1_assessments
    WHERE id = $1 AND org_id = $2
  `, id, orgID)
	return scanAssessment(row)
}

func scanAssessment(row pgx.Row) (Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.OrgID, &a.TeamID, &a.EmployeeID,
		&a.Scores.WorkloadPace, &a.Scores.GoalPressure, &a.Scores.RoleClarity, &a.Scores.AutonomyControl,
		&a.Scores.LeadershipSupport, &a.Scores.PeerCollaboration, &a.Scores.RecognitionJustice,
		&a.Scores.CommunicationChange, &a.Scores.ConflictHarassment, &a.Scores.RecoveryBoundaries,
		&a.RiskScore, &a.RiskLevel, &a.CreatedAt)
	return a, err
}

type summaryResponse struct {
	OrgID              string         `json:"orgId"`
	PeriodDays         int            `json:"periodDays"`
	TotalAssessments   int            `json:"totalAssessments"`
	ByLevel            map[string]int `json:"byLevel"`
	ComplianceStatus   string         `json:"complianceStatus"`
	CriticalDimensions []dimensionAvg `json:"criticalDimensions"`
	Recommendations    []string       `json:"recommendations"`
}

type dimensionAvg struct {
	Dimension string  `json:"dimension"`
	Average   float64 `json:"average"`
}

// handleSummary builds the rolling 90-day compliance report. A dimension
// is critical when its org-wide mean reaches 2.5.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var total int
	byLevel := map[string]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0, RiskCritical: 0}
	rows, err := h.DB.Query(r.Context(), `
    SELECT overall_risk_level, count(*)
    FROM nr1_assessments
    WHERE org_id = $1 AND created_at >= now() - interval '90 days'
    GROUP BY overall_risk_level
  `, user.OrgID)
	if err != nil {
		h.serverError(w, r, "nr1 summary", err)
		return
	}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			rows.Close()
			h.serverError(w, r, "nr1 summary", err)
			return
		}
		byLevel[level] = count
		total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "nr1 summary", err)
		return
	}

	var critical []dimensionAvg
	if total > 0 {
		row := h.DB.QueryRow(r.Context(), `
      SELECT avg(workload_pace), avg(goal_pressure), avg(role_clarity), avg(autonomy_control),
             avg(leadership_support), avg(peer_collaboration), avg(recognition_justice),
             avg(communication_change), avg(conflict_harassment), avg(recovery_boundaries)
      FROM nr1_assessments
      WHERE org_id = $1 AND created_at >= now() - interval '90 days'
    `, user.OrgID)
		averages := make([]float64, len(Dimensions))
		targets := make([]any, len(averages))
		for i := range averages {
			targets[i] = &averages[i]
		}
		if err := row.Scan(targets...); err != nil {
			h.serverError(w, r, "nr1 summary", err)
			return
		}
		for i, dim := range Dimensions {
			if averages[i] >= 2.5 {
				critical = append(critical, dimensionAvg{Dimension: dim.Key, Average: averages[i]})
			}
		}
	}

	elevated := byLevel[RiskHigh] + byLevel[RiskCritical]
	status := "compliant"
	if elevated > 0 || (total > 0 && float64(byLevel[RiskMedium]) >= float64(total)*0.3) {
		status = "requires_action"
	}

	api.Success(w, summaryResponse{
		OrgID:              user.OrgID,
		PeriodDays:         90,
		TotalAssessments:   total,
		ByLevel:            byLevel,
		ComplianceStatus:   status,
		CriticalDimensions: critical,
		Recommendations:    recommendations(critical),
	}, requestctx.GetRequestID(r.Context()))
}

func recommendations(critical []dimensionAvg) []string {
	if len(critical) == 0 {
		return []string{
			"Keep the 90-day monitoring cadence",
			"Continue promoting a healthy work environment",
		}
	}
	out := []string{
		"Prioritize the " + strconv.Itoa(len(critical)) + " critical dimensions",
		"Open immediate action plans",
		"Meet with managers of affected teams",
		"Track progress monthly",
	}
	if len(critical) >= 5 {
		out = append(out, "Consider external occupational health consulting")
	}
	return out
}

type teamRiskRow struct {
	TeamID          *string   `json:"teamId"`
	TeamName        string    `json:"teamName"`
	Averages        []float64 `json:"dimensionAverages"`
	HighRiskCount   int       `json:"highRiskCount"`
	AssessmentCount int       `json:"assessmentCount"`
}

func (h *Handler) handleRiskMatrix(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT a.team_id, COALESCE(t.name, 'Unassigned'),
           avg(a.workload_pace), avg(a.goal_pressure), avg(a.role_clarity), avg(a.autonomy_control),
           avg(a.leadership_support), avg(a.peer_collaboration), avg(a.recognition_justice),
           avg(a.communication_change), avg(a.conflict_harassment), avg(a.recovery_boundaries),
           count(*) FILTER (WHERE a.overall_risk_level IN ('high', 'critical')),
           count(*)
    FROM nr1_assessments a
    LEFT JOIN teams t ON t.id = a.team_id
    WHERE a.org_id = $1
    GROUP BY a.team_id, t.name
    ORDER BY COALESCE(t.name, 'Unassigned')
  `, user.OrgID)
	if err != nil {
		h.serverError(w, r, "nr1 risk matrix", err)
		return
	}
	defer rows.Close()

	matrix := []teamRiskRow{}
	totalHigh := 0
	for rows.Next() {
		row := teamRiskRow{Averages: make([]float64, len(Dimensions))}
		targets := []any{&row.TeamID, &row.TeamName}
		for i := range row.Averages {
			targets = append(targets, &row.Averages[i])
		}
		targets = append(targets, &row.HighRiskCount, &row.AssessmentCount)
		if err := rows.Scan(targets...); err != nil {
			h.serverError(w, r, "nr1 risk matrix", err)
			return
		}
		totalHigh += row.HighRiskCount
		matrix = append(matrix, row)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "nr1 risk matrix", err)
		return
	}

	overall := RiskLow
	if len(matrix) > 0 {
		avgHigh := float64(totalHigh) / float64(len(matrix))
		switch {
		case avgHigh >= 2:
			overall = RiskHigh
		case avgHigh >= 1:
			overall = RiskMedium
		}
	}

	api.Success(w, map[string]any{
		"orgId":       user.OrgID,
		"dimensions":  Dimensions,
		"teams":       matrix,
		"overallRisk": overall,
	}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
