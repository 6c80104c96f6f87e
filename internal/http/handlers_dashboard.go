package http

import (
	"net/http"

	"tally/internal/log"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, ownerID int64) {
	month, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	overview, err := s.dashboard.Overview(r.Context(), ownerID, month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
