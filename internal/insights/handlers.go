package insights

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

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
	r.Get("/insights", h.handleGenerate)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	insights, err := h.Service.Generate(r.Context(), user.OrgID)
	if err != nil {
		h.Service.Log.Error("generate insights", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "internal_error", "insight generation failed", requestctx.GetRequestID(r.Context()))
		return
	}

	narrative := ""
	if h.Service.Narrate != nil {
		text, err := h.Service.Narrate.Narrate(r.Context(), insights)
		if err != nil {
			// narrative is decoration; the insights still ship
			h.Service.Log.Warn("insight narrative failed", zap.Error(err))
		} else {
			narrative = text
		}
	}

	api.Success(w, map[string]any{
		"insights":  insights,
		"narrative": narrative,
	}, requestctx.GetRequestID(r.Context()))
}
