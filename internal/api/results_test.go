package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/wire"
)

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	var events []sseEvent
	var cur sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func openStream(t *testing.T, url string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	return resp
}

func TestStreamResultsBadID(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/analyses/nope/results")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamResultsUnknownID(t *testing.T) {
	srv := newTestServer(t)
	srv.fake.sendN(2)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/analyses/4/results")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if n := srv.broker.Topics(); n != 0 {
		t.Errorf("broker topics = %d, want 0", n)
	}
}

func TestStreamResultsNextIDBeforeSend(t *testing.T) {
	srv := newTestServer(t)
	srv.fake.sendN(2)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := openStream(t, ts.URL+"/v1/analyses/3/results")
	srv.fake.sendN(1)
	srv.broker.OnRequestResults(3, &wire.AnalysisResponse{Status: wire.StatusComplete}, &wire.AnalysisRequest{Perform: wire.PerformRun}, true)

	events := readSSE(t, resp)
	if len(events) != 2 || events[0].name != "result" || events[1].name != "done" {
		t.Errorf("events = %v, want a result then done", events)
	}
}

func TestStreamResultsCompletedRequest(t *testing.T) {
	srv := newTestServer(t)
	srv.fake.sendN(5)
	srv.broker.Close(5)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	events := readSSE(t, openStream(t, ts.URL+"/v1/analyses/5/results"))
	if len(events) != 1 || events[0].name != "done" {
		t.Errorf("events = %v, want a single done event", events)
	}
}

func TestStreamResultsReceivesEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := openStream(t, ts.URL+"/v1/analyses/1/results")

	req := &wire.AnalysisRequest{Name: "anova", Perform: wire.PerformRun}
	srv.broker.OnRequestResults(1, &wire.AnalysisResponse{Name: "anova", Status: wire.StatusRunning}, req, false)
	srv.broker.OnRequestResults(1, &wire.AnalysisResponse{Name: "anova", Status: wire.StatusComplete, Results: []byte("x\ny")}, req, true)

	events := readSSE(t, resp)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}
	if events[2].name != "done" {
		t.Errorf("last event = %q, want done", events[2].name)
	}

	var last model.ResultRecord
	if err := json.Unmarshal([]byte(events[1].data), &last); err != nil {
		t.Fatalf("decode result event: %v", err)
	}
	if last.Status != "ANALYSIS_COMPLETE" || !last.Complete || last.RequestID != 1 {
		t.Errorf("last result = %+v", last)
	}
	if string(last.Results) != "x\ny" {
		t.Errorf("results = %q, want %q", last.Results, "x\ny")
	}
}

func TestStreamResultsEndsOnTermination(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	srv.fake.sendN(8)
	resp := openStream(t, ts.URL+"/v1/analyses/9/results")
	srv.broker.OnEngineEvent(model.EngineEvent{Type: model.EventTerminated, ExitCode: 1})

	events := readSSE(t, resp)
	if len(events) != 1 || events[0].name != "done" {
		t.Errorf("events = %v, want a single done event", events)
	}
}
