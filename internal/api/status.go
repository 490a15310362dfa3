package api

import (
	"net/http"

	"github.com/jonathon-love/silky/internal/model"
)

type engineResponse struct {
	ManagerID string `json:"manager_id"`
	Address   string `json:"address"`
	State     string `json:"state"`
	Pending   int    `json:"pending"`
}

// listEventsResponse wraps the paginated event list.
type listEventsResponse struct {
	Events []*model.EngineEventRecord `json:"events"`
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

func (s *Server) handleGetEngine(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, engineResponse{
		ManagerID: s.engine.ID(),
		Address:   s.engine.Address(),
		State:     s.engine.State().String(),
		Pending:   s.engine.Pending(),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, total, err := s.store.ListEvents(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list engine events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*model.EngineEventRecord{}
	}

	s.writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
