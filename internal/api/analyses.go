package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonathon-love/silky/internal/engine"
	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/wire"
)

// sendAnalysisRequest is the JSON body for POST /v1/analyses. Options carries
// the engine's encoded option set and travels as base64.
type sendAnalysisRequest struct {
	DatasetID  string `json:"dataset_id"`
	AnalysisID uint32 `json:"analysis_id"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	Perform    string `json:"perform"`
	Options    []byte `json:"options"`
	Revision   uint32 `json:"revision"`
}

type sendAnalysisResponse struct {
	RequestID uint64 `json:"request_id"`
	ManagerID string `json:"manager_id"`
}

type historyResponse struct {
	RequestID uint64                `json:"request_id"`
	Results   []*model.ResultRecord `json:"results"`
}

func (s *Server) handleSendAnalysis(w http.ResponseWriter, r *http.Request) {
	var body sendAnalysisRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.rejectAnalysis(w, http.StatusBadRequest, rejectInvalid, "invalid JSON body")
		return
	}

	if body.Name == "" {
		s.rejectAnalysis(w, http.StatusBadRequest, rejectInvalid, "name is required")
		return
	}
	if body.Perform == "" {
		s.rejectAnalysis(w, http.StatusBadRequest, rejectInvalid, "perform is required")
		return
	}
	perform, err := wire.ParsePerform(body.Perform)
	if err != nil {
		s.rejectAnalysis(w, http.StatusBadRequest, rejectInvalid, err.Error())
		return
	}

	req := &wire.AnalysisRequest{
		DatasetID:  body.DatasetID,
		AnalysisID: body.AnalysisID,
		Name:       body.Name,
		Namespace:  body.Namespace,
		Perform:    perform,
		Options:    body.Options,
		Revision:   body.Revision,
	}

	id, err := s.engine.Send(r.Context(), req)
	switch {
	case errors.Is(err, engine.ErrNotStarted), errors.Is(err, engine.ErrStopped):
		s.rejectAnalysis(w, http.StatusServiceUnavailable, rejectUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("send analysis", "request_id", id, "error", err)
		s.rejectAnalysis(w, http.StatusBadGateway, rejectSendFailed, "failed to send request to engine")
		return
	}

	s.writeJSON(w, http.StatusAccepted, sendAnalysisResponse{
		RequestID: id,
		ManagerID: s.engine.ID(),
	})
}

func (s *Server) rejectAnalysis(w http.ResponseWriter, status int, reason, message string) {
	analysesRejected.WithLabelValues(reason).Inc()
	s.writeError(w, status, message)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	results, err := s.store.ListResults(r.Context(), s.engine.ID(), id)
	if err != nil {
		s.logger.Error("list results", "request_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []*model.ResultRecord{}
	}

	s.writeJSON(w, http.StatusOK, historyResponse{RequestID: id, Results: results})
}
