package engine

import (
	"sync"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/wire"
)

// subscriberBufferSize is the channel buffer for each result subscriber.
// Results are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// ResultBroker streams results to subscribers, one topic per correlation id.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that a subscriber arriving after
// the final response receives a closed channel instead of blocking forever.
// An open topic lives only while it has subscribers. Once the engine
// terminates every topic, current and future, is closed.
type ResultBroker struct {
	managerID string

	mu      sync.Mutex
	topics  map[uint64]*resultTopic
	stopped bool
}

type resultTopic struct {
	subs   map[int]chan *model.ResultRecord
	nextID int
	closed bool
}

// NewResultBroker creates a broker for the results of one manager.
func NewResultBroker(managerID string) *ResultBroker {
	return &ResultBroker{
		managerID: managerID,
		topics:    make(map[uint64]*resultTopic),
	}
}

// Subscribe returns a channel that receives results for the request id and an
// unsubscribe function. If the request already completed, or the engine is
// gone, the returned channel is closed.
func (b *ResultBroker) Subscribe(id uint64) (<-chan *model.ResultRecord, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.ResultRecord, subscriberBufferSize)
	if b.stopped {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[id]
	if !ok {
		t = &resultTopic{subs: make(map[int]chan *model.ResultRecord)}
		b.topics[id] = t
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	subID := t.nextID
	t.nextID++
	t.subs[subID] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, subID)
		if len(t.subs) == 0 && !t.closed && b.topics[id] == t {
			delete(b.topics, id)
		}
	}
}

// Publish sends r to all subscribers of its request id. Results are dropped
// for subscribers whose buffers are full.
func (b *ResultBroker) Publish(r *model.ResultRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[r.RequestID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Close ends the stream for one request id.
func (b *ResultBroker) Close(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(id)
}

// CloseAll ends every stream and makes future subscriptions return closed
// channels.
func (b *ResultBroker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id := range b.topics {
		b.closeLocked(id)
	}
}

func (b *ResultBroker) closeLocked(id uint64) {
	t, ok := b.topics[id]
	if !ok {
		b.topics[id] = &resultTopic{subs: make(map[int]chan *model.ResultRecord), closed: true}
		return
	}
	if t.closed {
		return
	}

	t.closed = true
	for subID, ch := range t.subs {
		close(ch)
		delete(t.subs, subID)
	}
}

// Topics returns the number of request ids the broker is tracking.
func (b *ResultBroker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// OnRequestResults publishes the response and closes the topic on the final one.
func (b *ResultBroker) OnRequestResults(id uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) {
	b.Publish(NewResultRecord(b.managerID, id, resp, req, complete))
	if complete {
		b.Close(id)
	}
}

// OnEngineEvent closes all streams when the engine terminates.
func (b *ResultBroker) OnEngineEvent(ev model.EngineEvent) {
	if ev.Type == model.EventTerminated {
		b.CloseAll()
	}
}
