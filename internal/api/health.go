package api

import (
	"net/http"

	"github.com/jonathon-love/silky/internal/engine"
)

type healthResponse struct {
	Status string `json:"status"`
	Engine string `json:"engine"`
}

// handleHealthz reports 503 once the engine has stopped, since no request can
// be served after that.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	if state == engine.StateStopped {
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Engine: state.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Engine: state.String()})
}
