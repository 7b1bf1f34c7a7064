package copc

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
	r.Route("/copc", func(r chi.Router) {
		r.Post("/metrics", h.handleCreate)
		r.Get("/metrics", h.handleList)
		r.Get("/metrics/{metricID}", h.handleGet)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/export", h.handleExport)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Delete("/metrics/{metricID}", h.handleDelete)
		})
	})
}

type Metric struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"orgId"`
	TeamID       *string        `json:"teamId"`
	UserID       *string        `json:"userId"`
	MetricDate   time.Time      `json:"metricDate"`
	Scores       CategoryScores `json:"scores"`
	OverallScore float64        `json:"overallScore"`
	Status       string         `json:"status"`
	Notes        *string        `json:"notes"`
	Source       string         `json:"metricSource"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type createRequest struct {
	TeamID     *string        `json:"teamId"`
	UserID     *string        `json:"userId"`
	MetricDate string         `json:"metricDate"`
	Scores     CategoryScores `json:"scores"`
	Notes      *string        `json:"notes"`
	Source     string         `json:"metricSource"`
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
		api.Fail(w, http.StatusBadRequest, "validation_error", "category scores must be between 0 and 100", requestctx.GetRequestID(r.Context()))
		return
	}

	metricDate := time.Now().UTC()
	if payload.MetricDate != "" {
		parsed, err := time.Parse("2006-01-02", payload.MetricDate)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "metricDate must be YYYY-MM-DD", requestctx.GetRequestID(r.Context()))
			return
		}
		metricDate = parsed
	}

	source := payload.Source
	if source == "" {
		source = "manual"
	}
	if source != "manual" && source != "automated" && source != "integration" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "unknown metricSource", requestctx.GetRequestID(r.Context()))
		return
	}

	overall := Overall(payload.Scores)
	s := payload.Scores

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO copc_metrics (
      org_id, team_id, user_id, metric_date,
      quality_score, efficiency_score, effectiveness_score, cx_score, people_score,
      overall_score, status, notes, metric_source, created_by
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    RETURNING id
  `, user.OrgID, payload.TeamID, payload.UserID, metricDate,
		s.Quality, s.Efficiency, s.Effectiveness, s.CX, s.People,
		overall, StatusFor(overall), payload.Notes, source, user.UserID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create copc metric", err)
		return
	}

	metric, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create copc metric", err)
		return
	}
	api.Created(w, metric, requestctx.GetRequestID(r.Context()))
}

const metricColumns = `
    id, org_id, team_id, user_id, metric_date,
    quality_score, efficiency_score, effectiveness_score, cx_score, people_score,
    overall_score, status, notes, metric_source, created_at
`

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	metrics, err := h.query(r, user.OrgID)
	if err != nil {
		h.serverError(w, r, "list copc metrics", err)
		return
	}
	api.Success(w, metrics, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) query(r *http.Request, orgID string) ([]Metric, error) {
	query := "SELECT " + metricColumns + " FROM copc_metrics WHERE org_id = $1"
	args := []any{orgID}
	if teamID := r.URL.Query().Get("teamId"); teamID != "" {
		args = append(args, teamID)
		query += " AND team_id = $" + strconv.Itoa(len(args))
	}
	if userID := r.URL.Query().Get("userId"); userID != "" {
		args = append(args, userID)
		query += " AND user_id = $" + strconv.Itoa(len(args))
	}
	if from := r.URL.Query().Get("from"); from != "" {
		args = append(args, from)
		query += " AND metric_date >= $" + strconv.Itoa(len(args))
	}
	if to := r.URL.Query().Get("to"); to != "" {
		args = append(args, to)
		query += " AND metric_date <= $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY metric_date DESC, created_at DESC"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []Metric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	metric, err := h.fetch(r, user.OrgID, chi.URLParam(r, "metricID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "metric not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get copc metric", err)
		return
	}
	api.Success(w, metric, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM copc_metrics WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "metricID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete copc metric", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "metric not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Metric, error) {
	row := h.DB.QueryRow(r.Context(),
		"SELECT "+metricColumns+" FROM copc_metrics WHERE id = $1 AND org_id = $2", id, orgID)
	return scanMetric(row)
}

func scanMetric(row pgx.Row) (Metric, error) {
	var m Metric
	err := row.Scan(&m.ID, &m.OrgID, &m.TeamID, &m.UserID, &m.MetricDate,
		&m.Scores.Quality, &m.Scores.Efficiency, &m.Scores.Effectiveness, &m.Scores.CX, &m.Scores.People,
		&m.OverallScore, &m.Status, &m.Notes, &m.Source, &m.CreatedAt)
	return m, err
}

type dashboardResponse struct {
	OrgID         string             `json:"orgId"`
	TotalMetrics  int                `json:"totalMetrics"`
	AverageScores CategoryScores     `json:"averageScores"`
	Overall       float64            `json:"overall"`
	OverallStatus string             `json:"overallStatus"`
	ByStatus      map[string]int     `json:"byStatus"`
	Teams         []teamDashboardRow `json:"teams"`
}

type teamDashboardRow struct {
	TeamID      *string `json:"teamId"`
	TeamName    string  `json:"teamName"`
	Overall     float64 `json:"overall"`
	Status      string  `json:"status"`
	MetricCount int     `json:"metricCount"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	resp := dashboardResponse{
		OrgID:    user.OrgID,
		ByStatus: map[string]int{StatusExcellent: 0, StatusGood: 0, StatusWarning: 0, StatusCritical: 0},
		Teams:    []teamDashboardRow{},
	}

	err := h.DB.QueryRow(r.Context(), `
    SELECT count(*),
           COALESCE(avg(quality_score), 0), COALESCE(avg(efficiency_score), 0),
           COALESCE(avg(effectiveness_score), 0), COALESCE(avg(cx_score), 0),
           COALESCE(avg(people_score), 0)
    FROM copc_metrics
    WHERE org_id = $1
  `, user.OrgID).Scan(&resp.TotalMetrics,
		&resp.AverageScores.Quality, &resp.AverageScores.Efficiency,
		&resp.AverageScores.Effectiveness, &resp.AverageScores.CX,
		&resp.AverageScores.People)
	if err != nil {
		h.serverError(w, r, "copc dashboard", err)
		return
	}
	resp.Overall = Overall(resp.AverageScores)
	resp.OverallStatus = StatusFor(resp.Overall)

	rows, err := h.DB.Query(r.Context(), `
    SELECT status, count(*) FROM copc_metrics WHERE org_id = $1 GROUP BY status
  `, user.OrgID)
	if err != nil {
		h.serverError(w, r, "copc dashboard", err)
		return
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			h.serverError(w, r, "copc dashboard", err)
			return
		}
		resp.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "copc dashboard", err)
		return
	}

	rows, err = h.DB.Query(r.Context(), `
    SELECT m.team_id, COALESCE(t.name, 'Unassigned'), avg(m.overall_score), count(*)
    FROM copc_metrics m
    LEFT JOIN teams t ON t.id = m.team_id
    WHERE m.org_id = $1
    GROUP BY m.team_id, t.name
    ORDER BY avg(m.overall_score) DESC
  `, user.OrgID)
	if err != nil {
		h.serverError(w, r, "copc dashboard", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var row teamDashboardRow
		if err := rows.Scan(&row.TeamID, &row.TeamName, &row.Overall, &row.MetricCount); err != nil {
			h.serverError(w, r, "copc dashboard", err)
			return
		}
		row.Status = StatusFor(row.Overall)
		resp.Teams = append(resp.Teams, row)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "copc dashboard", err)
		return
	}

	api.Success(w, resp, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
