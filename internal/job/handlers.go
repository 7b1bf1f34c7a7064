package job

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"talentforge/internal/api"
	"talentforge/internal/middleware"
	"talentforge/internal/requestctx"
)

// defaultStages seeds every new job's pipeline in order.
var defaultStages = []string{"applied", "screening", "interview", "offer", "hired"}

type Handler struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

func NewHandler(db *pgxpool.Pool, log *zap.Logger) *Handler {
	return &Handler{DB: db, Log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{jobID}", h.handleGet)
		r.Patch("/{jobID}", h.handleUpdate)
		r.Delete("/{jobID}", h.handleDelete)

		r.Post("/{jobID}/stages", h.handleCreateStage)
		r.Patch("/{jobID}/stages/{stageID}", h.handleUpdateStage)
		r.Delete("/{jobID}/stages/{stageID}", h.handleDeleteStage)

		r.Post("/{jobID}/applications", h.handleCreateApplication)
		r.Get("/{jobID}/applications", h.handleListApplications)
		r.Patch("/{jobID}/applications/{applicationID}", h.handleUpdateApplication)
	})
}

type Job struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Department  string    `json:"department"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	Stages      []Stage   `json:"stages,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Stage struct {
	ID        string `json:"id"`
	JobID     string `json:"jobId"`
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
}

type Application struct {
	ID            string    `json:"id"`
	JobID         string    `json:"jobId"`
	CandidateID   string    `json:"candidateId"`
	CandidateName string    `json:"candidateName,omitempty"`
	StageID       *string   `json:"stageId"`
	Score         *int      `json:"score"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type jobPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Department  string `json:"department"`
	Location    string `json:"location"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload jobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "title is required", requestctx.GetRequestID(r.Context()))
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		h.serverError(w, r, "create job", err)
		return
	}
	defer tx.Rollback(r.Context())

	var id string
	err = tx.QueryRow(r.Context(), `
    INSERT INTO jobs (org_id, title, description, department, location, created_by)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
  `, user.OrgID, payload.Title, payload.Description, payload.Department, payload.Location, user.UserID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create job", err)
		return
	}

	for i, name := range defaultStages {
		if _, err := tx.Exec(r.Context(), `
      INSERT INTO pipeline_stages (job_id, name, sort_order) VALUES ($1, $2, $3)
    `, id, name, i); err != nil {
			h.serverError(w, r, "create job", err)
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.serverError(w, r, "create job", err)
		return
	}

	job, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create job", err)
		return
	}
	api.Created(w, job, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := `
    SELECT id, org_id, title, description, department, location, status, created_at, updated_at
    FROM jobs WHERE org_id = $1
  `
	args := []any{user.OrgID}
	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if search := r.URL.Query().Get("search"); search != "" {
		args = append(args, "%"+search+"%")
		query += " AND title ILIKE $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list jobs", err)
		return
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.OrgID, &job.Title, &job.Description, &job.Department,
			&job.Location, &job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			h.serverError(w, r, "list jobs", err)
			return
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list jobs", err)
		return
	}
	api.Success(w, jobs, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	job, err := h.fetch(r, user.OrgID, chi.URLParam(r, "jobID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get job", err)
		return
	}
	api.Success(w, job, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Job, error) {
	var job Job
	err := h.DB.QueryRow(r.Context(), `
    SELECT id, org_id, title, description, department, location, status, created_at, updated_at
    FROM jobs WHERE id = $1 AND org_id = $2
  `, id, orgID).Scan(&job.ID, &job.OrgID, &job.Title, &job.Description, &job.Department,
		&job.Location, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return Job{}, err
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT id, job_id, name, sort_order FROM pipeline_stages WHERE job_id = $1 ORDER BY sort_order
  `, id)
	if err != nil {
		return Job{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var stage Stage
		if err := rows.Scan(&stage.ID, &stage.JobID, &stage.Name, &stage.SortOrder); err != nil {
			return Job{}, err
		}
		job.Stages = append(job.Stages, stage)
	}
	return job, rows.Err()
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Department  *string `json:"department"`
		Location    *string `json:"location"`
		Status      *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Status != nil {
		switch *payload.Status {
		case "open", "paused", "closed":
		default:
			api.Fail(w, http.StatusBadRequest, "validation_error", "unknown status", requestctx.GetRequestID(r.Context()))
			return
		}
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE jobs
    SET title = COALESCE($1, title),
        description = COALESCE($2, description),
        department = COALESCE($3, department),
        location = COALESCE($4, location),
        status = COALESCE($5, status),
        updated_at = now()
    WHERE id = $6 AND org_id = $7
  `, payload.Title, payload.Description, payload.Department, payload.Location, payload.Status,
		chi.URLParam(r, "jobID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "update job", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestctx.GetRequestID(r.Context()))
		return
	}

	job, err := h.fetch(r, user.OrgID, chi.URLParam(r, "jobID"))
	if err != nil {
		h.serverError(w, r, "update job", err)
		return
	}
	api.Success(w, job, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM jobs WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "jobID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete job", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	var payload struct {
		Name      string `json:"name"`
		SortOrder int    `json:"sortOrder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Name == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "name is required", requestctx.GetRequestID(r.Context()))
		return
	}

	var stage Stage
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO pipeline_stages (job_id, name, sort_order)
    VALUES ($1, $2, $3)
    RETURNING id, job_id, name, sort_order
  `, jobID, payload.Name, payload.SortOrder).Scan(&stage.ID, &stage.JobID, &stage.Name, &stage.SortOrder)
	if err != nil {
		h.serverError(w, r, "create stage", err)
		return
	}
	api.Created(w, stage, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	var payload struct {
		Name      *string `json:"name"`
		SortOrder *int    `json:"sortOrder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Name != nil && *payload.Name == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "name must not be empty", requestctx.GetRequestID(r.Context()))
		return
	}

	var stage Stage
	err := h.DB.QueryRow(r.Context(), `
    UPDATE pipeline_stages
    SET name = COALESCE($1, name),
        sort_order = COALESCE($2, sort_order)
    WHERE id = $3 AND job_id = $4
    RETURNING id, job_id, name, sort_order
  `, payload.Name, payload.SortOrder, chi.URLParam(r, "stageID"), jobID).
		Scan(&stage.ID, &stage.JobID, &stage.Name, &stage.SortOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "stage not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "update stage", err)
		return
	}
	api.Success(w, stage, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteStage(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	stageID := chi.URLParam(r, "stageID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	var occupied bool
	err := h.DB.QueryRow(r.Context(), `
    SELECT EXISTS (SELECT 1 FROM applications WHERE stage_id = $1)
  `, stageID).Scan(&occupied)
	if err != nil {
		h.serverError(w, r, "delete stage", err)
		return
	}
	if occupied {
		api.Fail(w, http.StatusConflict, "invalid_state", "stage has applications; move them first", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM pipeline_stages WHERE id = $1 AND job_id = $2
  `, stageID, jobID)
	if err != nil {
		h.serverError(w, r, "delete stage", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "stage not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	var payload struct {
		CandidateID string  `json:"candidateId"`
		StageID     *string `json:"stageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.CandidateID == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "candidateId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	stageID := payload.StageID
	if stageID == nil {
		// default to the first pipeline stage
		var first string
		err := h.DB.QueryRow(r.Context(), `
      SELECT id FROM pipeline_stages WHERE job_id = $1 ORDER BY sort_order LIMIT 1
    `, jobID).Scan(&first)
		if err == nil {
			stageID = &first
		} else if !errors.Is(err, pgx.ErrNoRows) {
			h.serverError(w, r, "create application", err)
			return
		}
	}

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO applications (org_id, job_id, candidate_id, stage_id)
    VALUES ($1, $2, $3, $4)
    RETURNING id
  `, user.OrgID, jobID, payload.CandidateID, stageID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			api.Fail(w, http.StatusConflict, "duplicate", "candidate already applied to this job", requestctx.GetRequestID(r.Context()))
			return
		}
		h.serverError(w, r, "create application", err)
		return
	}

	api.Created(w, map[string]string{"id": id}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT a.id, a.job_id, a.candidate_id, c.full_name, a.stage_id, a.score, a.status, a.created_at
    FROM applications a
    JOIN candidates c ON c.id = a.candidate_id
    WHERE a.job_id = $1
    ORDER BY a.created_at DESC
  `, jobID)
	if err != nil {
		h.serverError(w, r, "list applications", err)
		return
	}
	defer rows.Close()

	applications := []Application{}
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.JobID, &app.CandidateID, &app.CandidateName,
			&app.StageID, &app.Score, &app.Status, &app.CreatedAt); err != nil {
			h.serverError(w, r, "list applications", err)
			return
		}
		applications = append(applications, app)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list applications", err)
		return
	}
	api.Success(w, applications, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !h.jobInOrg(w, r, user.OrgID, jobID) {
		return
	}

	var payload struct {
		StageID *string `json:"stageId"`
		Status  *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Status != nil {
		switch *payload.Status {
		case "active", "rejected", "hired", "withdrawn":
		default:
			api.Fail(w, http.StatusBadRequest, "validation_error", "unknown status", requestctx.GetRequestID(r.Context()))
			return
		}
	}
	if payload.StageID != nil {
		var ok bool
		err := h.DB.QueryRow(r.Context(), `
      SELECT EXISTS (SELECT 1 FROM pipeline_stages WHERE id = $1 AND job_id = $2)
    `, *payload.StageID, jobID).Scan(&ok)
		if err != nil {
			h.serverError(w, r, "update application", err)
			return
		}
		if !ok {
			api.Fail(w, http.StatusBadRequest, "validation_error", "stage does not belong to this job", requestctx.GetRequestID(r.Context()))
			return
		}
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE applications
    SET stage_id = COALESCE($1, stage_id),
        status = COALESCE($2, status)
    WHERE id = $3 AND job_id = $4
  `, payload.StageID, payload.Status, chi.URLParam(r, "applicationID"), jobID)
	if err != nil {
		h.serverError(w, r, "update application", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "application not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "updated"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) jobInOrg(w http.ResponseWriter, r *http.Request, orgID, jobID string) bool {
	var exists bool
	err := h.DB.QueryRow(r.Context(), `
    SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1 AND org_id = $2)
  `, jobID, orgID).Scan(&exists)
	if err != nil {
		h.serverError(w, r, "job lookup", err)
		return false
	}
	if !exists {
		api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestctx.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
