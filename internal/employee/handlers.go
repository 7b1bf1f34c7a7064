package employee

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
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{employeeID}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/", h.handleCreate)
			r.Patch("/{employeeID}", h.handleUpdate)
			r.Delete("/{employeeID}", h.handleDeactivate)
		})
	})
}

type Employee struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"orgId"`
	UserID         *string   `json:"userId"`
	TeamID         *string   `json:"teamId"`
	FullName       string    `json:"fullName"`
	Email          *string   `json:"email"`
	Position       string    `json:"position"`
	Department     string    `json:"department"`
	HierarchyLevel int       `json:"hierarchyLevel"`
	ManagerID      *string   `json:"managerId"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

type employeePayload struct {
	UserID         *string `json:"userId"`
	TeamID         *string `json:"teamId"`
	FullName       string  `json:"fullName"`
	Email          *string `json:"email"`
	Position       string  `json:"position"`
	Department     string  `json:"department"`
	HierarchyLevel int     `json:"hierarchyLevel"`
	ManagerID      *string `json:"managerId"`
}

const employeeColumns = `
    id, org_id, user_id, team_id, full_name, email, position, department,
    hierarchy_level, manager_id, active, created_at
`

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload employeePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.FullName == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "fullName is required", requestctx.GetRequestID(r.Context()))
		return
	}

	if !h.validManager(w, r, user.OrgID, "", payload.ManagerID) {
		return
	}

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO employees (org_id, user_id, team_id, full_name, email, position, department, hierarchy_level, manager_id)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    RETURNING id
  `, user.OrgID, payload.UserID, payload.TeamID, payload.FullName, payload.Email,
		payload.Position, payload.Department, payload.HierarchyLevel, payload.ManagerID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create employee", err)
		return
	}

	employee, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create employee", err)
		return
	}
	api.Created(w, employee, requestctx.GetRequestID(r.Context()))
}

// validManager writes the failure response itself and reports whether the
// manager reference is acceptable: same org, existing, not the employee.
func (h *Handler) validManager(w http.ResponseWriter, r *http.Request, orgID, employeeID string, managerID *string) bool {
	if managerID == nil {
		return true
	}
	if employeeID != "" && *managerID == employeeID {
		api.Fail(w, http.StatusBadRequest, "validation_error", "an employee cannot be their own manager", requestctx.GetRequestID(r.Context()))
		return false
	}
	var exists bool
	err := h.DB.QueryRow(r.Context(), `
    SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1 AND org_id = $2)
  `, *managerID, orgID).Scan(&exists)
	if err != nil {
		h.serverError(w, r, "manager lookup", err)
		return false
	}
	if !exists {
		api.Fail(w, http.StatusBadRequest, "validation_error", "manager not found in organization", requestctx.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := "SELECT " + employeeColumns + " FROM employees WHERE org_id = $1"
	args := []any{user.OrgID}
	if department := r.URL.Query().Get("department"); department != "" {
		args = append(args, department)
		query += " AND department = $" + strconv.Itoa(len(args))
	}
	if managerID := r.URL.Query().Get("managerId"); managerID != "" {
		args = append(args, managerID)
		query += " AND manager_id = $" + strconv.Itoa(len(args))
	}
	if r.URL.Query().Get("includeInactive") != "true" {
		query += " AND active"
	}
	query += " ORDER BY full_name"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list employees", err)
		return
	}
	defer rows.Close()

	employees := []Employee{}
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			h.serverError(w, r, "list employees", err)
			return
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list employees", err)
		return
	}
	api.Success(w, employees, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	employee, err := h.fetch(r, user.OrgID, chi.URLParam(r, "employeeID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get employee", err)
		return
	}
	api.Success(w, employee, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	employeeID := chi.URLParam(r, "employeeID")

	var payload struct {
		FullName       *string `json:"fullName"`
		Email          *string `json:"email"`
		Position       *string `json:"position"`
		Department     *string `json:"department"`
		HierarchyLevel *int    `json:"hierarchyLevel"`
		ManagerID      *string `json:"managerId"`
		TeamID         *string `json:"teamId"`
		Active         *bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	if payload.ManagerID != nil && !h.validManager(w, r, user.OrgID, employeeID, payload.ManagerID) {
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE employees
    SET full_name = COALESCE($1, full_name),
        email = COALESCE($2, email),
        position = COALESCE($3, position),
        department = COALESCE($4, department),
        hierarchy_level = COALESCE($5, hierarchy_level),
        manager_id = COALESCE($6, manager_id),
        team_id = COALESCE($7, team_id),
        active = COALESCE($8, active)
    WHERE id = $9 AND org_id = $10
  `, payload.FullName, payload.Email, payload.Position, payload.Department,
		payload.HierarchyLevel, payload.ManagerID, payload.TeamID, payload.Active,
		employeeID, user.OrgID)
	if err != nil {
		h.serverError(w, r, "update employee", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", requestctx.GetRequestID(r.Context()))
		return
	}

	employee, err := h.fetch(r, user.OrgID, employeeID)
	if err != nil {
		h.serverError(w, r, "update employee", err)
		return
	}
	api.Success(w, employee, requestctx.GetRequestID(r.Context()))
}

// handleDeactivate soft-deletes: assessment history references employees,
// so rows are never removed.
func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE employees SET active = FALSE WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "employeeID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "deactivate employee", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deactivated"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Employee, error) {
	row := h.DB.QueryRow(r.Context(),
		"SELECT "+employeeColumns+" FROM employees WHERE id = $1 AND org_id = $2", id, orgID)
	return scanEmployee(row)
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.OrgID, &e.UserID, &e.TeamID, &e.FullName, &e.Email,
		&e.Position, &e.Department, &e.HierarchyLevel, &e.ManagerID, &e.Active, &e.CreatedAt)
	return e, err
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
