package tfci

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"talentforge/internal/api"
	"talentforge/internal/middleware"
	"talentforge/internal/requestctx"
)

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tfci", func(r chi.Router) {
		r.Get("/cycles", h.handleListCycles)
		r.Get("/cycles/{cycleID}", h.handleGetCycle)
		r.Get("/cycles/{cycleID}/assessments", h.handleListAssessments)
		r.Get("/cycles/{cycleID}/heatmap", h.handleHeatmap)
		r.Get("/cycles/{cycleID}/peer-selection/quota", h.handleGetQuota)
		r.Get("/cycles/{cycleID}/peer-selection/eligible-peers", h.handleEligiblePeers)
		r.Post("/cycles/{cycleID}/peer-selection/register", h.handleRegisterSelection)
		r.Post("/assessments/{assessmentID}/submit", h.handleSubmitAssessment)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/cycles", h.handleCreateCycle)
			r.Patch("/cycles/{cycleID}/status", h.handleTransitionCycle)
			r.Delete("/cycles/{cycleID}", h.handleDeleteCycle)
			r.Post("/cycles/{cycleID}/peer-selection/generate-random", h.handleGenerateRandom)
			r.Post("/cycles/{cycleID}/peer-selection/generate-assessments", h.handleGenerateAssessments)
		})
	})
}

func failFromError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestctx.GetRequestID(r.Context())
	switch {
	case errors.Is(err, ErrCycleNotFound), errors.Is(err, ErrEmployeeNotFound), errors.Is(err, ErrAssessmentNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, ErrCycleNotActive), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadySubmitted):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), reqID)
	case errors.Is(err, ErrQuotaExceeded):
		api.Fail(w, http.StatusConflict, "quota_exceeded", err.Error(), reqID)
	case errors.Is(err, ErrSelectionLimitReached):
		api.Fail(w, http.StatusConflict, "selection_limit_reached", err.Error(), reqID)
	case errors.Is(err, ErrDuplicateSelection):
		api.Fail(w, http.StatusConflict, "duplicate_selection", err.Error(), reqID)
	case errors.Is(err, ErrNotEligible):
		api.Fail(w, http.StatusBadRequest, "not_eligible", err.Error(), reqID)
	case errors.Is(err, ErrSelfSelection), errors.Is(err, ErrValidation):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
	case errors.Is(err, ErrNotEvaluator):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	default:
		api.Fail(w, http.StatusInternalServerError, "tfci_failed", "operation failed", reqID)
	}
}

type cyclePayload struct {
	Name        string `json:"name"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	IsAnonymous *bool  `json:"isAnonymous"`
}

func (h *Handler) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload cyclePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	start, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "validation_error", "startDate must be YYYY-MM-DD", requestctx.GetRequestID(r.Context()))
		return
	}
	end, err := time.Parse("2006-01-02", payload.EndDate)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "validation_error", "endDate must be YYYY-MM-DD", requestctx.GetRequestID(r.Context()))
		return
	}

	anonymous := true
	if payload.IsAnonymous != nil {
		anonymous = *payload.IsAnonymous
	}

	cycle, err := h.Service.CreateCycle(r.Context(), user.OrgID, user.UserID, CycleInput{
		Name:        payload.Name,
		StartDate:   start,
		EndDate:     end,
		IsAnonymous: anonymous,
	})
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Created(w, cycle, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleListCycles(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	cycles, err := h.Service.ListCycles(r.Context(), user.OrgID)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, cycles, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	cycle, err := h.Service.GetCycle(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"))
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, cycle, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleTransitionCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	cycle, err := h.Service.TransitionCycle(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"), payload.Status)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, cycle, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	if err := h.Service.DeleteCycle(r.Context(), user.OrgID, chi.URLParam(r, "cycleID")); err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	employeeID := r.URL.Query().Get("employeeId")
	if employeeID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "employeeId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	quota, err := h.Service.GetQuota(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"), employeeID)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, quota, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleEligiblePeers(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	employeeID := r.URL.Query().Get("employeeId")
	if employeeID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "employeeId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	peers, err := h.Service.GetEligiblePeers(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"), employeeID)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, peers, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleRegisterSelection(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	employeeID := r.URL.Query().Get("employeeId")
	if employeeID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "employeeId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		SelectedPeerID string `json:"selectedPeerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.SelectedPeerID == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "selectedPeerId is required", requestctx.GetRequestID(r.Context()))
		return
	}

	result, err := h.Service.RegisterPeerSelection(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"), employeeID, payload.SelectedPeerID)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Created(w, result, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGenerateRandom(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	result, err := h.Service.GenerateRandomSelections(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"))
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, result, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGenerateAssessments(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	result, err := h.Service.GenerateCycleAssessments(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"))
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, result, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	assessments, err := h.Service.ListAssessments(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"))
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, assessments, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	entries, err := h.Service.Heatmap(r.Context(), user.OrgID, chi.URLParam(r, "cycleID"))
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, entries, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Scores   Scores `json:"scores"`
		Comments string `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	assessment, err := h.Service.SubmitAssessment(r.Context(), user.OrgID, user.UserID, chi.URLParam(r, "assessmentID"), payload.Scores, payload.Comments)
	if err != nil {
		failFromError(w, r, err)
		return
	}
	api.Success(w, assessment, requestctx.GetRequestID(r.Context()))
}
