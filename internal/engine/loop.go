package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/transport"
	"github.com/jonathon-love/silky/internal/wire"
)

// loop is the receive loop. Each cycle checks the host, waits up to the
// receive timeout for one message, delivers it, and then polls the engine.
// It returns nil when the engine exits or the host goes away, and the fatal
// error otherwise.
func (m *Manager) loop(ctx context.Context, proc Process) error {
	for {
		if !m.hostRunning(ctx) {
			m.shutdown(proc)
			return nil
		}

		msg, err := m.transport.ReceiveWithTimeout(m.timeout)
		switch {
		case err == nil:
			if err := m.handle(msg); err != nil {
				return m.abort(proc, err)
			}
		case errors.Is(err, transport.ErrTimeout):
			receiveTimeouts.Inc()
		default:
			return m.abort(proc, fmt.Errorf("receive from engine: %w", err))
		}

		if exited, code := proc.Poll(); exited {
			m.logger.Error("engine process ended", "exit_code", code)
			return m.terminated(code, model.ReasonProcessExited)
		}
	}
}

// handle delivers one inbound message. Undecodable messages and responses to
// unknown ids are logged and dropped. The only error it returns comes from a
// listener.
func (m *Manager) handle(msg []byte) error {
	env, err := wire.UnmarshalEnvelope(msg)
	if err != nil {
		discardedMessages.Inc()
		m.logger.Warn("discarding undecodable message", "error", err)
		return nil
	}

	req, ok := m.registry.Resolve(env.ID)
	if !ok {
		unmatchedResponses.Inc()
		m.logger.Info("response id not found in waiting requests", "request_id", env.ID)
		return nil
	}

	resp, err := wire.UnmarshalAnalysisResponse(env.Payload)
	if err != nil {
		discardedMessages.Inc()
		m.logger.Warn("discarding undecodable response", "request_id", env.ID, "error", err)
		return nil
	}

	complete := wire.IsComplete(resp, req)
	responsesTotal.WithLabelValues(resp.Status.String()).Inc()

	start := time.Now()
	err = m.dispatcher.NotifyResults(env.ID, resp, req, complete)
	dispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("dispatch results for request %d: %w", env.ID, err)
	}

	if complete {
		m.registry.Consume(env.ID)
		pendingRequests.Dec()
	}
	return nil
}

func (m *Manager) hostRunning(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return m.hostAlive == nil || m.hostAlive()
}

// shutdown stops the engine because the host is going away.
func (m *Manager) shutdown(proc Process) {
	m.logger.Info("host stopped, shutting down engine")
	proc.Terminate()
	if err := m.terminated(model.NoExitCode, model.ReasonHostStopped); err != nil {
		m.logger.Error("failed to deliver terminated event", "error", err)
	}
}

// abort tears everything down after a fatal loop error. No terminated event
// is emitted; the error is reported through Err.
func (m *Manager) abort(proc Process, err error) error {
	m.logger.Error("engine receive loop failed", "error", err)
	m.closeTransport()
	proc.Terminate()
	return err
}

// terminated closes the transport and then emits the one terminated event.
func (m *Manager) terminated(code int, reason string) error {
	m.closeTransport()
	engineTerminations.WithLabelValues(reason).Inc()

	ev := model.EngineEvent{
		Type:     model.EventTerminated,
		ExitCode: code,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
	if err := m.dispatcher.NotifyEngineEvent(ev); err != nil {
		return fmt.Errorf("dispatch terminated event: %w", err)
	}
	return nil
}

// closeTransport refuses further sends and closes the transport.
func (m *Manager) closeTransport() {
	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()

	if err := m.transport.Close(); err != nil {
		m.logger.Warn("failed to close engine transport", "error", err)
	}
}
