package assessment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jung-kurt/gofpdf"

	"talentforge/internal/api"
	"talentforge/internal/middleware"
	"talentforge/internal/requestctx"
)

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
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
		h.serverError(w, r, "assessment pdf", err)
		return
	}
	if record.SubmittedAt == nil || record.Traits == nil {
		api.Fail(w, http.StatusConflict, "invalid_state", "assessment not yet submitted", requestctx.GetRequestID(r.Context()))
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Behavioral Assessment Report")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Candidate: %s", record.CandidateName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Submitted: %s", record.SubmittedAt.Format("2006-01-02")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Overall score: %d / 100", *record.NormalizedScore))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Big Five")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	big := record.Traits.BigFive
	for _, line := range []struct {
		label string
		value int
	}{
		{"Openness", big.Openness},
		{"Conscientiousness", big.Conscientiousness},
		{"Extraversion", big.Extraversion},
		{"Agreeableness", big.Agreeableness},
		{"Neuroticism", big.Neuroticism},
	} {
		pdf.Cell(0, 7, fmt.Sprintf("%s: %d", line.label, line.value))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "DISC")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	disc := record.Traits.DISC
	for _, line := range []struct {
		label string
		value int
	}{
		{"Dominance", disc.Dominance},
		{"Influence", disc.Influence},
		{"Steadiness", disc.Steadiness},
		{"Conscientiousness", disc.Conscientiousness},
	} {
		pdf.Cell(0, 7, fmt.Sprintf("%s: %d", line.label, line.value))
		pdf.Ln(6)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=assessment-%s.pdf", record.ID))
	if err := pdf.Output(w); err != nil {
		h.Log.Warn("pdf write failed")
	}
}
