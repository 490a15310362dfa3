package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/store"
	"github.com/jonathon-love/silky/internal/wire"
)

// historyWriteTimeout bounds each store write made from the receive loop.
const historyWriteTimeout = 5 * time.Second

// HistoryRecorder persists every result and lifecycle event it is handed.
// Write failures are logged, never propagated, so a broken database cannot
// stop the receive loop.
type HistoryRecorder struct {
	store     store.Store
	managerID string
	logger    *slog.Logger
}

// NewHistoryRecorder creates a recorder writing to s.
func NewHistoryRecorder(s store.Store, managerID string, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{store: s, managerID: managerID, logger: logger}
}

// OnRequestResults records one response.
func (h *HistoryRecorder) OnRequestResults(id uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	rec := NewResultRecord(h.managerID, id, resp, req, complete)
	if err := h.store.RecordResult(ctx, rec); err != nil {
		h.logger.Error("failed to record result", "request_id", id, "error", err)
	}
}

// OnEngineEvent records one lifecycle event.
func (h *HistoryRecorder) OnEngineEvent(ev model.EngineEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	rec := &model.EngineEventRecord{
		ID:          model.NewID(),
		ManagerID:   h.managerID,
		EngineEvent: ev,
	}
	if err := h.store.RecordEvent(ctx, rec); err != nil {
		h.logger.Error("failed to record engine event", "type", ev.Type, "error", err)
	}
}
