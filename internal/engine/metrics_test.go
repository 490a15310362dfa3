package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonathon-love/silky/internal/wire"
)

func newTestManager() *Manager {
	return &Manager{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry:   NewRegistry(),
		dispatcher: NewDispatcher(),
	}
}

func encodeResponse(id uint64, status wire.AnalysisStatus) []byte {
	payload := (&wire.AnalysisResponse{Status: status}).Marshal()
	return (&wire.Envelope{ID: id, PayloadType: wire.PayloadTypeAnalysisResponse, Payload: payload}).Marshal()
}

func TestMetricsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}

	for _, name := range []string{
		"silky_engine_requests_sent_total",
		"silky_engine_responses_total",
		"silky_engine_pending_requests",
		"silky_engine_receive_timeouts_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestUnmatchedResponseCounted(t *testing.T) {
	m := newTestManager()
	before := testutil.ToFloat64(unmatchedResponses)

	if err := m.handle(encodeResponse(99, wire.StatusComplete)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := testutil.ToFloat64(unmatchedResponses) - before; got != 1 {
		t.Errorf("unmatched responses increased by %v, want 1", got)
	}
}

func TestResponsesCountedByStatus(t *testing.T) {
	m := newTestManager()
	id := m.registry.Allocate(&wire.AnalysisRequest{Perform: wire.PerformRun})
	counter := responsesTotal.WithLabelValues(wire.StatusRunning.String())
	before := testutil.ToFloat64(counter)

	if err := m.handle(encodeResponse(id, wire.StatusRunning)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("running responses increased by %v, want 1", got)
	}
	if m.registry.Len() != 1 {
		t.Error("non-final response must leave the request pending")
	}
}

func TestDiscardedMessageCounted(t *testing.T) {
	m := newTestManager()
	before := testutil.ToFloat64(discardedMessages)

	if err := m.handle([]byte{0xff}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := testutil.ToFloat64(discardedMessages) - before; got != 1 {
		t.Errorf("discarded messages increased by %v, want 1", got)
	}
}
