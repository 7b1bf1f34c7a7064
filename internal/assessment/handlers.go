package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

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

// RegisterRoutes mounts the authenticated assessment endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assessments", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{assessmentID}", h.handleGet)
		r.Get("/{assessmentID}/pdf", h.handlePDF)
	})
}

// RegisterPublicRoutes mounts the candidate-facing take endpoints. The
// assessment id is the capability: whoever holds the link may answer.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/assessments/take/{assessmentID}", h.handleTake)
	r.Post("/assessments/take/{assessmentID}", h.handleSubmit)
}

type createRequest struct {
	CandidateID string  `json:"candidateId"`
	JobID       *string `json:"jobId"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.CandidateID == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "candidateId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	var candidateExists bool
	err := h.DB.QueryRow(r.Context(), `
    SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1 AND org_id = $2)
  `, payload.CandidateID, user.OrgID).Scan(&candidateExists)
	if err != nil {
		h.serverError(w, r, "create assessment", err)
		return
	}
	if !candidateExists {
		api.Fail(w, http.StatusNotFound, "not_found", "candidate not found", requestctx.GetRequestID(r.Context()))
		return
	}

	if payload.JobID != nil {
		var jobExists bool
		err := h.DB.QueryRow(r.Context(), `
      SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1 AND org_id = $2)
    `, *payload.JobID, user.OrgID).Scan(&jobExists)
		if err != nil {
			h.serverError(w, r, "create assessment", err)
			return
		}
		if !jobExists {
			api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestctx.GetRequestID(r.Context()))
			return
		}
	}

	var id string
	err = h.DB.QueryRow(r.Context(), `
    INSERT INTO assessments (candidate_id, job_id, assessment_kind)
    VALUES ($1, $2, $3)
    RETURNING id
  `, payload.CandidateID, payload.JobID, KindBehavioralV1).Scan(&id)
	if err != nil {
		h.serverError(w, r, "create assessment", err)
		return
	}

	api.Created(w, map[string]any{
		"id":       id,
		"takePath": fmt.Sprintf("/assessments/take/%s", id),
	}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	query := `
    SELECT a.id, a.candidate_id, c.full_name, a.job_id, a.assessment_kind,
           a.raw_score, a.normalized_score, a.traits, a.submitted_at, a.created_at
    FROM assessments a
    JOIN candidates c ON c.id = a.candidate_id
    WHERE c.org_id = $1
  `
	args := []any{user.OrgID}
	if candidateID := r.URL.Query().Get("candidateId"); candidateID != "" {
		query += " AND a.candidate_id = $2"
		args = append(args, candidateID)
	}
	query += " ORDER BY a.created_at DESC"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.serverError(w, r, "list assessments", err)
		return
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			h.serverError(w, r, "list assessments", err)
			return
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		h.serverError(w, r, "list assessments", err)
		return
	}
	api.Success(w, records, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	record, err := h.fetchRecord(r, chi.URLParam(r, "assessmentID"), user.OrgID)
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "assessment not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "get assessment", err)
		return
	}
	api.Success(w, record, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) fetchRecord(r *http.Request, assessmentID, orgID string) (Record, error) {
	row := h.DB.QueryRow(r.Context(), `
    SELECT a.id, a.candidate_id, c.full_name, a.job_id, a.assessment_kind,
           a.raw_score, a.normalized_score, a.traits, a.submitted_at, a.created_at
    FROM assessments a
    JOIN candidates c ON c.id = a.candidate_id
    WHERE a.id = $1 AND c.org_id = $2
  `, assessmentID, orgID)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	err := row.Scan(&record.ID, &record.CandidateID, &record.CandidateName, &record.JobID, &record.Kind,
		&record.RawScore, &record.NormalizedScore, &record.Traits, &record.SubmittedAt, &record.CreatedAt)
	return record, err
}

func (h *Handler) handleTake(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "assessmentID")

	var submitted bool
	err := h.DB.QueryRow(r.Context(), `
    SELECT submitted_at IS NOT NULL FROM assessments WHERE id = $1
  `, assessmentID).Scan(&submitted)
	if errors.Is(err, pgx.ErrNoRows) {
		api.Fail(w, http.StatusNotFound, "not_found", "assessment not found", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.serverError(w, r, "take assessment", err)
		return
	}
	if submitted {
		api.Success(w, map[string]any{
			"completed": true,
			"message":   "assessment already completed",
		}, requestctx.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]any{
		"completed": false,
		"questions": BehavioralQuestions,
		"options":   LikertOptions,
	}, requestctx.GetRequestID(r.Context()))
}

type submitRequest struct {
	Answers []Answer `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "assessmentID")

	var payload submitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Answers) == 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "answers are required", requestctx.GetRequestID(r.Context()))
		return
	}
	for _, answer := range payload.Answers {
		if answer.Value < 1 || answer.Value > 5 {
			api.Fail(w, http.StatusBadRequest, "validation_error", "answer values must be between 1 and 5", requestctx.GetRequestID(r.Context()))
			return
		}
	}

	scores := CalculateScores(payload.Answers)
	traitsJSON, err := json.Marshal(scores.Traits)
	if err != nil {
		h.serverError(w, r, "submit assessment", err)
		return
	}

	// the conditional update is the only guard against double submission
	tag, err := h.DB.Exec(r.Context(), `
    UPDATE assessments
    SET raw_score = $1, normalized_score = $2, traits = $3, submitted_at = now()
    WHERE id = $4 AND submitted_at IS NULL
  `, scores.RawScore, scores.NormalizedScore, traitsJSON, assessmentID)
	if err != nil {
		h.serverError(w, r, "submit assessment", err)
		return
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := h.DB.QueryRow(r.Context(), `SELECT EXISTS (SELECT 1 FROM assessments WHERE id = $1)`, assessmentID).Scan(&exists); err == nil && !exists {
			api.Fail(w, http.StatusNotFound, "not_found", "assessment not found", requestctx.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusConflict, "invalid_state", "assessment already completed", requestctx.GetRequestID(r.Context()))
		return
	}

	h.propagateApplicationScore(r, assessmentID, scores.NormalizedScore)

	api.Success(w, SubmitResult{
		Success: true,
		Message: "assessment submitted successfully",
		Score:   scores.NormalizedScore,
	}, requestctx.GetRequestID(r.Context()))
}

// propagateApplicationScore denormalizes the result onto a linked
// application. Failures are logged and swallowed; reporting catches up on
// the next submission.
func (h *Handler) propagateApplicationScore(r *http.Request, assessmentID string, score int) {
	_, err := h.DB.Exec(r.Context(), `
    UPDATE applications ap
    SET score = $1
    FROM assessments a
    WHERE a.id = $2 AND a.job_id IS NOT NULL
      AND ap.job_id = a.job_id AND ap.candidate_id = a.candidate_id
  `, score, assessmentID)
	if err != nil {
		h.Log.Warn("application score propagation failed",
			zap.String("assessmentId", assessmentID),
			zap.Error(err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.Log.Error(op, zap.Error(err))
	api.Fail(w, http.StatusInternalServerError, "internal_error", op+" failed", requestctx.GetRequestID(r.Context()))
}
