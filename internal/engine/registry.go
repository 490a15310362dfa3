package engine

import (
	"sync"

	"github.com/jonathon-love/silky/internal/wire"
)

// Registry tracks in-flight requests by correlation id. Ids start at 1 and are
// never reused. Entries without a final response are never evicted; they stay
// until the manager is discarded.
//
// It is safe for concurrent use: the send path inserts while the receive loop
// resolves and consumes.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*wire.AnalysisRequest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nextID:  1,
		pending: make(map[uint64]*wire.AnalysisRequest),
	}
}

// Allocate assigns the next correlation id to req and records it as pending.
func (r *Registry) Allocate(req *wire.AnalysisRequest) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.pending[id] = req
	return id
}

// Last returns the most recently allocated id, or 0 before the first.
func (r *Registry) Last() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID - 1
}

// Resolve returns the pending request for id.
func (r *Registry) Resolve(id uint64) (*wire.AnalysisRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	return req, ok
}

// Consume removes id from the pending set.
func (r *Registry) Consume(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
