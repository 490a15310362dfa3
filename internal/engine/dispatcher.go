package engine

import (
	"fmt"
	"sync"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/wire"
)

// ResultsListener receives every matched response, the request it answers, and
// whether it is the final response for that request.
type ResultsListener interface {
	OnResults(resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool)
}

// ResultsListenerFunc adapts a function to ResultsListener.
type ResultsListenerFunc func(resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool)

// OnResults calls f.
func (f ResultsListenerFunc) OnResults(resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) {
	f(resp, req, complete)
}

// RequestResultsListener is a ResultsListener that also needs the correlation
// id the response was matched on.
type RequestResultsListener interface {
	OnRequestResults(id uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool)
}

type resultsAdapter struct {
	l ResultsListener
}

func (a resultsAdapter) OnRequestResults(_ uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) {
	a.l.OnResults(resp, req, complete)
}

// EngineListener receives engine lifecycle events.
type EngineListener interface {
	OnEngineEvent(ev model.EngineEvent)
}

// EngineListenerFunc adapts a function to EngineListener.
type EngineListenerFunc func(ev model.EngineEvent)

// OnEngineEvent calls f.
func (f EngineListenerFunc) OnEngineEvent(ev model.EngineEvent) {
	f(ev)
}

// Dispatcher fans results and lifecycle events out to listeners in
// registration order. Listeners are only ever added. Registration may happen
// while a dispatch is in progress; the new listener sees the next one.
type Dispatcher struct {
	mu      sync.RWMutex
	results []RequestResultsListener
	engine  []EngineListener
}

// NewDispatcher creates a dispatcher with no listeners.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// AddResultsListener registers l.
func (d *Dispatcher) AddResultsListener(l ResultsListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, resultsAdapter{l})
}

// AddRequestResultsListener registers l.
func (d *Dispatcher) AddRequestResultsListener(l RequestResultsListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, l)
}

// AddEngineListener registers l.
func (d *Dispatcher) AddEngineListener(l EngineListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine = append(d.engine, l)
}

// NotifyResults calls every results listener with the same values. A
// panicking listener stops the dispatch and is reported as ErrListenerPanic.
func (d *Dispatcher) NotifyResults(id uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) (err error) {
	d.mu.RLock()
	listeners := d.results[:len(d.results):len(d.results)]
	d.mu.RUnlock()

	defer recoverListener(&err)
	for _, l := range listeners {
		l.OnRequestResults(id, resp, req, complete)
	}
	return nil
}

// NotifyEngineEvent calls every engine listener with ev.
func (d *Dispatcher) NotifyEngineEvent(ev model.EngineEvent) (err error) {
	d.mu.RLock()
	listeners := d.engine[:len(d.engine):len(d.engine)]
	d.mu.RUnlock()

	defer recoverListener(&err)
	for _, l := range listeners {
		l.OnEngineEvent(ev)
	}
	return nil
}

func recoverListener(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
	}
}
