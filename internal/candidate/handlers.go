package candidate

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
	r.Route("/candidates", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{candidateID}", h.handleGet)
		r.Patch("/{candidateID}", h.handleUpdate)
		r.Delete("/{candidateID}", h.handleDelete)

		r.Post("/{candidateID}/notes", h.handleCreateNote)
		r.Get("/{candidateID}/notes", h.handleListNotes)
	})
}

type Candidate struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"orgId"`
	FullName  string    `json:"fullName"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

type Note struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidateId"`
	AuthorID    *string   `json:"authorId"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"createdAt"`
}

type candidatePayload struct {
	FullName string   `json:"fullName"`
	Email    *string  `json:"email"`
	Phone    *string  `json:"phone"`
	Tags     []string `json:"tags"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload candidatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.FullName == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "fullName is required", requestctx.GetRequestID(r.Context()))
		return
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO candidates (org_id, full_name, email, phone, tags, created_by)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
  `, user.OrgID, payload.FullName, payload.Email, payload.Phone, payload.Tags, user.UserID).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create candidate", err)
		return
	}

	candidate, err := h.fetch(r, user.OrgID, id)
	if err != nil {
		h.serverError(w, r, "create candidate", err)
		return
	}
	api.Created(w, candidate, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := `
    SELECT id, org_id, full_name, email, phone, tags, created_at
    FROM candidates WHERE org_id = $1
  `
	args := []any{user.OrgID}
	if search := r.URL.Query().Get("search"); search != "" {
		args = append(args, "%"+search+"%")
		query += " AND (full_name ILIKE $" + strconv.Itoa(len(args)) + " OR email ILIKE $" + strconv.Itoa(len(args)) + ")"
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		args = append(args, tag)
		query += " AND $" + strconv.Itoa(len(args)) + " = ANY(tags)"
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list candidates", err)
		return
	}
	defer rows.Close()

	candidates := []Candidate{}
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			h.serverError(w, r, "list candidates", err)
			return
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list candidates", err)
		return
	}
	api.Success(w, candidates, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	candidate, err := h.fetch(r, user.OrgID, chi.URLParam(r, "candidateID"))
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "candidate not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get candidate", err)
		return
	}
	api.Success(w, candidate, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		FullName *string  `json:"fullName"`
		Email    *string  `json:"email"`
		Phone    *string  `json:"phone"`
		Tags     []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    UPDATE candidates
    SET full_name = COALESCE($1, full_name),
        email = COALESCE($2, email),
        phone = COALESCE($3, phone),
        tags = COALESCE($4, tags)
    WHERE id = $5 AND org_id = $6
  `, payload.FullName, payload.Email, payload.Phone, payload.Tags,
		chi.URLParam(r, "candidateID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "update candidate", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "candidate not found", requestctx.GetRequestID(r.Context()))
		return
	}

	candidate, err := h.fetch(r, user.OrgID, chi.URLParam(r, "candidateID"))
	if err != nil {
		h.serverError(w, r, "update candidate", err)
		return
	}
	api.Success(w, candidate, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
    DELETE FROM candidates WHERE id = $1 AND org_id = $2
  `, chi.URLParam(r, "candidateID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "delete candidate", err)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "candidate not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	candidateID := chi.URLParam(r, "candidateID")
	if _, err := h.fetch(r, user.OrgID, candidateID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			api.Fail(w, http.StatusNotFound, "not_found", "candidate not found", requestctx.GetRequestID(r.Context()))
			return
		}
		h.serverError(w, r, "create note", err)
		return
	}

	var payload struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Note == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "note is required", requestctx.GetRequestID(r.Context()))
		return
	}

	var note Note
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO candidate_notes (candidate_id, author_id, note)
    VALUES ($1, $2, $3)
    RETURNING id, candidate_id, author_id, note, created_at
  `, candidateID, user.UserID, payload.Note).Scan(&note.ID, &note.CandidateID, &note.AuthorID, &note.Note, &note.CreatedAt)
	if err != nil {
		h.serverError(w, r, "create note", err)
		return
	}
	api.Created(w, note, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT n.id, n.candidate_id, n.author_id, n.note, n.created_at
    FROM candidate_notes n
    JOIN candidates c ON c.id = n.candidate_id
    WHERE n.candidate_id = $1 AND c.org_id = $2
    ORDER BY n.created_at DESC
  `, chi.URLParam(r, "candidateID"), user.OrgID)
	if err != nil {
		h.serverError(w, r, "list notes", err)
		return
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.CandidateID, &note.AuthorID, &note.Note, &note.CreatedAt); err != nil {
			h.serverError(w, r, "list notes", err)
			return
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list notes", err)
		return
	}
	api.Success(w, notes, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetch(r *http.Request, orgID, id string) (Candidate, error) {
	row := h.DB.QueryRow(r.Context(), `
    SELECT id, org_id, full_name, email, phone, tags, created_at
    FROM candidates WHERE id = $1 AND org_id = $2
  `, id, orgID)
	return scanCandidate(row)
}

func scanCandidate(row pgx.Row) (Candidate, error) {
	var c Candidate
	err := row.Scan(&c.ID, &c.OrgID, &c.FullName, &c.Email, &c.Phone, &c.Tags, &c.CreatedAt)
	return c, err
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
