package copc

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"

	"talentforge/internal/api"
	"talentforge/internal/middleware"
	"talentforge/internal/requestctx"
)

type sheetSpec struct {
	Title  string
	Header []string
	Rows   [][]string
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	metrics, err := h.query(r, user.OrgID)
	if err != nil {
		h.serverError(w, r, "export copc metrics", err)
		return
	}

	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		team := ""
		if m.TeamID != nil {
			team = *m.TeamID
		}
		rows = append(rows, []string{
			m.MetricDate.Format("2006-01-02"),
			team,
			formatScore(m.Scores.Quality),
			formatScore(m.Scores.Efficiency),
			formatScore(m.Scores.Effectiveness),
			formatScore(m.Scores.CX),
			formatScore(m.Scores.People),
			formatScore(m.OverallScore),
			m.Status,
			m.Source,
		})
	}

	file, err := buildWorkbook(sheetSpec{
		Title:  "COPC Metrics",
		Header: []string{"Date", "Team", "Quality", "Efficiency", "Effectiveness", "CX", "People", "Overall", "Status", "Source"},
		Rows:   rows,
	})
	if err != nil {
		h.serverError(w, r, "export copc metrics", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=copc-metrics.xlsx")
	if err := file.Write(w); err != nil {
		h.Log.Warn("xlsx write failed")
	}
}

func buildWorkbook(sheet sheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet.Title); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for col, header := range sheet.Header {
		cell := fmt.Sprintf("%s1", columnName(col+1))
		if err := f.SetCellStr(sheet.Title, cell, header); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	end := columnName(len(sheet.Header)) + "1"
	_ = f.SetCellStyle(sheet.Title, "A1", end, bold)
	_ = f.AutoFilter(sheet.Title, "A1:"+end, nil)

	for r, row := range sheet.Rows {
		for c, value := range row {
			cell := fmt.Sprintf("%s%d", columnName(c+1), r+2)
			if err := f.SetCellStr(sheet.Title, cell, value); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	// width heuristic from header and row content
	for c := 1; c <= len(sheet.Header); c++ {
		longest := len(sheet.Header[c-1])
		for r := 0; r < len(sheet.Rows) && r < 50; r++ {
			if l := len(sheet.Rows[r][c-1]); l > longest {
				longest = l
			}
		}
		width := float64(longest) * 0.9
		if width < 12 {
			width = 12
		}
		if width > 40 {
			width = 40
		}
		_ = f.SetColWidth(sheet.Title, columnName(c), columnName(c), width)
	}

	return f, nil
}

func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
