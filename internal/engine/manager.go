package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/transport"
	"github.com/jonathon-love/silky/internal/wire"
)

// DefaultReceiveTimeout bounds each receive in the loop, and so how quickly
// engine exit and host shutdown are noticed.
const DefaultReceiveTimeout = 500 * time.Millisecond

// State is the lifecycle state of a Manager.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transport is the message channel between the manager and the engine.
// *transport.Channel implements it.
type Transport interface {
	Bind(address string) error
	Send(ctx context.Context, msg []byte) error
	ReceiveWithTimeout(d time.Duration) ([]byte, error)
	Close() error
}

// Config describes the engine a Manager supervises.
type Config struct {
	// Executable is the engine binary.
	Executable string

	// LibraryDirs replace PATH in the engine's environment when non-empty.
	LibraryDirs []string

	// Env is the base environment. Nil means the host's environment.
	Env []string

	// ReceiveTimeout overrides DefaultReceiveTimeout when positive.
	ReceiveTimeout time.Duration
}

// Option customises a Manager.
type Option func(*Manager)

// WithTransport replaces the default transport.Channel.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithLauncher replaces the default ExecLauncher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithAddressStrategy replaces transport.DefaultAddressStrategy.
func WithAddressStrategy(s transport.AddressStrategy) Option {
	return func(m *Manager) { m.addresses = s }
}

// WithHostAlive installs a liveness check consulted once per loop cycle. The
// loop shuts the engine down when it returns false.
func WithHostAlive(alive func() bool) Option {
	return func(m *Manager) { m.hostAlive = alive }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithReceiveTimeout sets the per-cycle receive timeout.
func WithReceiveTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Manager supervises a single engine process.
type Manager struct {
	id         string
	cfg        Config
	timeout    time.Duration
	logger     *slog.Logger
	transport  Transport
	launcher   Launcher
	addresses  transport.AddressStrategy
	hostAlive  func() bool
	registry   *Registry
	dispatcher *Dispatcher

	mu      sync.Mutex
	state   State
	address string
	proc    Process
	err     error
	done    chan struct{}
}

// New creates an idle manager. The address strategy is resolved here so that
// Address is known before Start.
func New(cfg Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		id:         model.NewID(),
		cfg:        cfg,
		timeout:    DefaultReceiveTimeout,
		logger:     slog.Default(),
		launcher:   ExecLauncher{},
		registry:   NewRegistry(),
		dispatcher: NewDispatcher(),
		done:       make(chan struct{}),
	}
	if cfg.ReceiveTimeout > 0 {
		m.timeout = cfg.ReceiveTimeout
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.transport == nil {
		m.transport = transport.NewChannel()
	}
	if m.addresses == nil {
		s, err := transport.DefaultAddressStrategy()
		if err != nil {
			return nil, fmt.Errorf("choose engine address: %w", err)
		}
		m.addresses = s
	}
	m.address = m.addresses.Address()
	m.logger = m.logger.With("manager_id", m.id)

	return m, nil
}

// ID identifies this manager instance.
func (m *Manager) ID() string {
	return m.id
}

// Address is the connection string handed to the engine.
func (m *Manager) Address() string {
	return m.address
}

// Start binds the transport, launches the engine and starts the receive loop.
// Cancelling ctx is treated as the host going away.
func (m *Manager) Start(ctx context.Context, sessionPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrAlreadyStarted
	}

	if err := m.transport.Bind(m.address); err != nil {
		return fmt.Errorf("bind engine transport: %w", err)
	}

	env := m.cfg.Env
	if env == nil {
		env = os.Environ()
	}
	spec := ProcessSpec{
		Executable:  m.cfg.Executable,
		Address:     m.address,
		SessionPath: sessionPath,
		Env:         EngineEnv(env, m.cfg.LibraryDirs),
	}
	proc, err := m.launcher.Launch(spec)
	if err != nil {
		_ = m.transport.Close()
		return err
	}

	m.proc = proc
	m.state = StateRunning
	m.logger.Info("engine started", "pid", proc.Pid(), "address", m.address)

	go m.run(ctx, proc)
	return nil
}

// Send allocates a correlation id for req and writes it to the engine. The
// request stays pending until its final response arrives, even if the write
// fails. A write that fails because the receive loop stopped releases the id
// and returns ErrStopped.
func (m *Manager) Send(ctx context.Context, req *wire.AnalysisRequest) (uint64, error) {
	m.mu.Lock()
	switch m.state {
	case StateIdle:
		m.mu.Unlock()
		return 0, ErrNotStarted
	case StateStopped:
		m.mu.Unlock()
		return 0, ErrStopped
	}
	id := m.registry.Allocate(req)
	m.mu.Unlock()
	pendingRequests.Inc()

	msg := wire.NewRequestEnvelope(id, req).Marshal()
	if err := m.transport.Send(ctx, msg); err != nil {
		if m.State() == StateStopped {
			m.registry.Consume(id)
			pendingRequests.Dec()
			return 0, fmt.Errorf("send request %d: %w", id, ErrStopped)
		}
		return id, fmt.Errorf("send request %d: %w", id, err)
	}

	requestsSent.Inc()
	m.logger.Debug("request sent", "request_id", id, "analysis", req.Name, "perform", req.Perform.String())
	return id, nil
}

// LastID returns the most recently allocated correlation id, or 0 if nothing
// has been sent.
func (m *Manager) LastID() uint64 {
	return m.registry.Last()
}

// AddResultsListener registers l for every matched response.
func (m *Manager) AddResultsListener(l ResultsListener) {
	m.dispatcher.AddResultsListener(l)
}

// AddRequestResultsListener registers l for every matched response, with its
// correlation id.
func (m *Manager) AddRequestResultsListener(l RequestResultsListener) {
	m.dispatcher.AddRequestResultsListener(l)
}

// AddEngineListener registers l for engine lifecycle events.
func (m *Manager) AddEngineListener(l EngineListener) {
	m.dispatcher.AddEngineListener(l)
}

// Pending returns the number of requests without a final response.
func (m *Manager) Pending() int {
	return m.registry.Len()
}

// State returns the manager's lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the receive loop has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the error that stopped the receive loop, or nil if it stopped
// because the engine exited or the host went away.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close kills the engine. The receive loop notices the exit on its next cycle
// and stops; Close does not wait for it. A manager that was never started
// only releases its address.
func (m *Manager) Close() error {
	m.mu.Lock()
	state, proc := m.state, m.proc
	if state == StateIdle {
		m.state = StateStopped
		close(m.done)
	}
	m.mu.Unlock()

	switch state {
	case StateIdle:
		return m.addresses.Cleanup()
	case StateRunning:
		proc.Terminate()
	}
	return nil
}

// run owns the loop goroutine and records how it ended.
func (m *Manager) run(ctx context.Context, proc Process) {
	err := m.loop(ctx, proc)

	if cerr := m.addresses.Cleanup(); cerr != nil {
		m.logger.Warn("failed to clean up engine address", "error", cerr)
	}

	m.mu.Lock()
	m.state = StateStopped
	m.err = err
	m.mu.Unlock()
	close(m.done)
}
