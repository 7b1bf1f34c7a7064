package actionplan

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

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

type Handler struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

func NewHandler(db *pgxpool.Pool, log *zap.Logger) *Handler {
	return &Handler{DB: db, Log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/action-plans", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/top-priority", h.handleTopPriority)
		r.Get("/{planID}", h.handleGet)
		r.Patch("/{planID}", h.handleUpdate)
		r.Delete("/{planID}", h.handleDelete)

		r.Post("/{planID}/items", h.handleCreateItem)
		r.Get("/{planID}/items", h.handleListItems)
		r.Patch("/{planID}/items/{itemID}", h.handleUpdateItem)
		r.Delete("/{planID}/items/{itemID}", h.handleDeleteItem)
	})
}

type Plan struct {
	ID                 string          `json:"id"`
	OrgID              string          `json:"orgId"`
	TeamID             *string         `json:"teamId"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	Priority           int             `json:"priority"`
	Status             string          `json:"status"`
	RiskLevel          *string         `json:"riskLevel"`
	Source             string          `json:"source"`
	RootCause          *string         `json:"rootCause"`
	RecommendedActions json.RawMessage `json:"recommendedActions,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type Item struct {
	ID        string     `json:"id"`
	PlanID    string     `json:"planId"`
	Title     string     `json:"title"`
	OwnerID   *string    `json:"ownerId"`
	DueDate   *time.Time `json:"dueDate"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

type planPayload struct {
	TeamID      *string `json:"teamId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    int     `json:"priority"`
	RiskLevel   *string `json:"riskLevel"`
	RootCause   *string `json:"rootCause"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload planPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "title is required", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Priority == 0 {
		payload.Priority = 3
	}
	if payload.Priority < 1 || payload.Priority > 5 {
		api.Fail(w, http.StatusBadRequest, "validation_error", "priority must be between 1 and 5", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Category == "" {
		payload.Category = "general"
	}

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO action_plans (org_id, team_id, title, description, category, priority, risk_level, source, root_cause, created_by)
    VALUES ($1, $2, $3, $4, $5, $6, $7, 'manual', $8, $9)
    RETURNING id
  `, user.OrgID, payload.TeamID, payload.Title, payload.Description, payload.Category,
		payload.Priority, payload.RiskLevel, payload.RootCause, user.UserID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create action plan", err)
		return
	}

	plan, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create action plan", err)
		return
	}
	api.Created(w, plan, requestctx.GetRequestID(r.Context()))
}

const planColumns = `
    id, org_id, team_id, title, description, category, priority, status,
    risk_level, source, root_cause, recommended_actions, created_at, updated_at
`

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := "SELECT " + planColumns + " FROM action_plans WHERE org_id = $1"
	args := []any{user.OrgID}
	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if source := r.URL.Query().Get("source"); source != "" {
		args = append(args, source)
		query += " AND source = $" + strconv.Itoa(len(args))
	}
	if teamID := r.URL.Query().Get("teamId"); teamID != "" {
		args = append(args, teamID)
		query += " AND team_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY priority DESC, created_at DESC"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list action plans", err)
		return
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			h.serverError(w, r, "list action plans", err)
			return
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list action plans", err)
		return
	}
	api.Success(w, plans, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	plan, err := h.fetch(r, user.OrgID, chi.URLParam(r, "planID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "action plan not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get action plan", err)
		return
	}
	api.Success(w, plan, requestctx.GetRequestID(r.Context()))
}

type updatePayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority"`
	Status      *string `json:"status"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Status != nil {
		switch *payload.Status {
		case StatusOpen, StatusInProgress, StatusDone, StatusCancelled:
		default:
			api.Fail(w, http.StatusBadRequest, "validation_error", "unknown status", requestctx.GetRequestID(r.Context()))
			return
		}
	}
	if payload.Priority != nil && (*payload.Priority < 1 || *payload.Priority > 5) {
		api.Fail(w, http.StatusBadRequest, "validation_error", "priority must be between 1 and 5", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE action_plans
    SET title = COALESCE($1, title),
        description = COALESCE($2, description),
        priority = COALESCE($3, priority),
        status = COALESCE($4, status),
        updated_at = now()
    WHERE id = $5 AND org_id = $6
  `, payload.Title, payload.Description, payload.Priority, payload.Status,
		chi.URLParam(r, "planID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "update action plan", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "action plan not found", requestctx.GetRequestID(r.Context()))
		return
	}

	plan, err := h.fetch(r, user.OrgID, chi.URLParam(r, "planID"))
	if err != nil {
		h.serverError(w, r, "update action plan", err)
		return
	}
	api.Success(w, plan, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM action_plans WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "planID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete action plan", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "action plan not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Plan, error) {
	row := h.DB.QueryRow(r.Context(),
		"SELECT "+planColumns+" FROM action_plans WHERE id = $1 AND org_id = $2", id, orgID)
	return scanPlan(row)
}

func scanPlan(row pgx.Row) (Plan, error) {
	var plan Plan
	err := row.Scan(&plan.ID, &plan.OrgID, &plan.TeamID, &plan.Title, &plan.Description,
		&plan.Category, &plan.Priority, &plan.Status, &plan.RiskLevel, &plan.Source,
		&plan.RootCause, &plan.RecommendedActions, &plan.CreatedAt, &plan.UpdatedAt)
	return plan, err
}

type statsResponse struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	ByRisk    map[string]int `json:"byRiskLevel"`
	BySource  map[string]int `json:"bySource"`
	OpenItems int            `json:"openItems"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	stats := statsResponse{
		ByStatus: map[string]int{},
		ByRisk:   map[string]int{},
		BySource: map[string]int{},
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT status, COALESCE(risk_level, ''), source, count(*)
    FROM action_plans
    WHERE org_id = $1
    GROUP BY status, risk_level, source
  `, user.OrgID)
	if err != nil {
		h.serverError(w, r, "action plan stats", err)
		return
	}
	for rows.Next() {
		var status, risk, source string
		var count int
		if err := rows.Scan(&status, &risk, &source, &count); err != nil {
			rows.Close()
			h.serverError(w, r, "action plan stats", err)
			return
		}
		stats.Total += count
		stats.ByStatus[status] += count
		if risk != "" {
			stats.ByRisk[risk] += count
		}
		stats.BySource[source] += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "action plan stats", err)
		return
	}

	err = h.DB.QueryRow(r.Context(), `
    SELECT count(*)
    FROM action_items i
    JOIN action_plans p ON p.id = i.plan_id
    WHERE p.org_id = $1 AND i.status = 'open'
  `, user.OrgID).Scan(&stats.OpenItems)
	if err != nil {
		h.serverError(w, r, "action plan stats", err)
		return
	}

	api.Success(w, stats, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleTopPriority(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT `+planColumns+`
    FROM action_plans
    WHERE org_id = $1 AND status IN ('open', 'in_progress')
    ORDER BY priority DESC, created_at ASC
    LIMIT $2
  `, user.OrgID, limit)
	if err != nil {
		h.serverError(w, r, "top priority plans", err)
		return
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			h.serverError(w, r, "top priority plans", err)
			return
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "top priority plans", err)
		return
	}
	api.Success(w, plans, requestctx.GetRequestID(r.Context()))
}

type itemPayload struct {
	Title   string  `json:"title"`
	OwnerID *string `json:"ownerId"`
	DueDate *string `json:"dueDate"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	planID := chi.URLParam(r, "planID")
	if _, err := h.fetch(r, user.OrgID, planID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			api.Fail(w, http.StatusNotFound, "not_found", "action plan not found", requestctx.GetRequestID(r.Context()))
			return
		}
		h.serverError(w, r, "create action item", err)
		return
	}

	var payload itemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "title is required", requestctx.GetRequestID(r.Context()))
		return
	}

	var dueDate *time.Time
	if payload.DueDate != nil {
		parsed, err := time.Parse("2006-01-02", *payload.DueDate)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "dueDate must be YYYY-MM-DD", requestctx.GetRequestID(r.Context()))
			return
		}
		dueDate = &parsed
	}

	var item Item
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO action_items (plan_id, title, owner_id, due_date)
    VALUES ($1, $2, $3, $4)
    RETURNING id, plan_id, title, owner_id, due_date, status, created_at
  `, planID, payload.Title, payload.OwnerID, dueDate).Scan(
		&item.ID, &item.PlanID, &item.Title, &item.OwnerID, &item.DueDate, &item.Status, &item.CreatedAt)
	if err != nil {
		h.serverError(w, r, "create action item", err)
		return
	}
	api.Created(w, item, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT i.id, i.plan_id, i.title, i.owner_id, i.due_date, i.status, i.created_at
    FROM action_items i
    JOIN action_plans p ON p.id = i.plan_id
    WHERE i.plan_id = $1 AND p.org_id = $2
    ORDER BY i.created_at
  `, chi.URLParam(r, "planID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "list action items", err)
		return
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PlanID, &item.Title, &item.OwnerID, &item.DueDate, &item.Status, &item.CreatedAt); err != nil {
			h.serverError(w, r, "list action items", err)
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list action items", err)
		return
	}
	api.Success(w, items, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Status *string `json:"status"`
		Title  *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Status != nil && *payload.Status != "open" && *payload.Status != "done" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "item status must be open or done", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE action_items i
    SET status = COALESCE($1, i.status),
        title = COALESCE($2, i.title)
    FROM action_plans p
    WHERE i.id = $3 AND i.plan_id = $4 AND p.id = i.plan_id AND p.org_id = $5
  `, payload.Status, payload.Title, chi.URLParam(r, "itemID"), chi.URLParam(r, "planID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "update action item", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "action item not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "updated"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM action_items i
    USING action_plans p
    WHERE i.id = $1 AND i.plan_id = $2 AND p.id = i.plan_id AND p.org_id = $3
  `, chi.URLParam(r, "itemID"), chi.URLParam(r, "planID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete action item", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "action item not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
