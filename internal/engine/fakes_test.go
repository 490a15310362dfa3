package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathon-love/silky/internal/engine"
	"github.com/jonathon-love/silky/internal/transport"
	"github.com/jonathon-love/silky/internal/wire"
)

const testAddress = "ipc:///tmp/silky-test/connection"

// fakeTransport delivers queued inbound messages and records outbound ones.
type fakeTransport struct {
	mu      sync.Mutex
	bound   string
	sent    [][]byte
	closed  int
	bindErr error
	sendErr error
	recvErr error
	onSend  func()

	inbox chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan []byte, 64)}
}

func (f *fakeTransport) Bind(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound = address
	return nil
}

func (f *fakeTransport) Send(_ context.Context, msg []byte) error {
	f.mu.Lock()
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) ReceiveWithTimeout(d time.Duration) ([]byte, error) {
	f.mu.Lock()
	recvErr := f.recvErr
	f.mu.Unlock()
	if recvErr != nil {
		return nil, recvErr
	}

	select {
	case msg := <-f.inbox:
		return msg, nil
	case <-time.After(d):
		return nil, transport.ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed > 0
}

func (f *fakeTransport) sentMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) failSend(err error, hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
	f.onSend = hook
}

func (f *fakeTransport) failReceive(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvErr = err
}

// fakeProcess exits when told to, or when terminated.
type fakeProcess struct {
	exited     atomic.Bool
	code       atomic.Int32
	terminated atomic.Int32
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) Poll() (bool, int) {
	if p.exited.Load() {
		return true, int(p.code.Load())
	}
	return false, 0
}

func (p *fakeProcess) Terminate() {
	p.terminated.Add(1)
	if p.exited.CompareAndSwap(false, true) {
		p.code.Store(-1)
	}
}

func (p *fakeProcess) exit(code int) {
	p.code.Store(int32(code))
	p.exited.Store(true)
}

type fakeLauncher struct {
	proc *fakeProcess
	err  error

	mu   sync.Mutex
	spec engine.ProcessSpec
}

func (l *fakeLauncher) Launch(spec engine.ProcessSpec) (engine.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spec = spec
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

type fakeAddress struct {
	cleanups atomic.Int32
}

func (a *fakeAddress) Address() string { return testAddress }

func (a *fakeAddress) Cleanup() error {
	a.cleanups.Add(1)
	return nil
}

// harness wires a Manager to fakes.
type harness struct {
	mgr       *engine.Manager
	transport *fakeTransport
	proc      *fakeProcess
	launcher  *fakeLauncher
	addresses *fakeAddress
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		proc:      &fakeProcess{},
		addresses: &fakeAddress{},
	}
	h.launcher = &fakeLauncher{proc: h.proc}

	base := []engine.Option{
		engine.WithTransport(h.transport),
		engine.WithLauncher(h.launcher),
		engine.WithAddressStrategy(h.addresses),
		engine.WithReceiveTimeout(10 * time.Millisecond),
	}
	mgr, err := engine.New(engine.Config{Executable: "/opt/engine", Env: []string{"HOME=/home/test"}}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.mgr = mgr

	t.Cleanup(func() {
		_ = mgr.Close()
		select {
		case <-mgr.Done():
		case <-time.After(2 * time.Second):
			t.Error("manager loop did not stop")
		}
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.mgr.Start(context.Background(), "/tmp/session"); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// respond queues an engine response for correlation id.
func (h *harness) respond(t *testing.T, id uint64, resp *wire.AnalysisResponse) {
	t.Helper()
	env := &wire.Envelope{ID: id, PayloadType: wire.PayloadTypeAnalysisResponse, Payload: resp.Marshal()}
	h.transport.inbox <- env.Marshal()
}

func waitDone(t *testing.T, m *engine.Manager) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager loop did not stop")
	}
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
