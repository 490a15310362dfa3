package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func (s *Server) handleStreamResults(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	// The next id may be streamed before it is sent so that no result is
	// missed; anything beyond it was never allocated.
	if id > s.engine.LastID()+1 {
		s.writeError(w, http.StatusNotFound, "unknown request id")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// A request that already completed yields a closed channel, so the loop
	// below ends at once with a done event.
	ch, unsub := s.broker.Subscribe(id)
	defer unsub()

	activeResultStreams.Inc()
	defer activeResultStreams.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				s.logger.Error("encode result event", "request_id", id, "error", err)
				continue
			}
			if err := writeSSEEvent(w, "result", string(data)); err != nil {
				return
			}
			resultEventsWritten.Inc()
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event. data must not contain newlines.
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
