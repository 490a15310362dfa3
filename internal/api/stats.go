package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total        int            `json:"total"`
	Complete     int            `json:"complete"`
	ByStatus     map[string]int `json:"by_status"`
	Terminations int            `json:"terminations"`
	Pending      int            `json:"pending"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetResultStats(r.Context())
	if err != nil {
		s.logger.Error("get result stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:        stats.Total,
		Complete:     stats.Complete,
		ByStatus:     stats.CountByStatus,
		Terminations: stats.Terminations,
		Pending:      s.engine.Pending(),
	})
}
