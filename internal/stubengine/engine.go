// Package stubengine implements a stand-in analysis engine. It speaks the same
// protocol as the real engine: it connects back to the manager, reads analysis
// requests, and answers each with a short, deterministic response sequence.
// It is used for local development and end-to-end tests.
package stubengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/jonathon-love/silky/internal/transport"
	"github.com/jonathon-love/silky/internal/wire"
)

// ExitAnalysis is the analysis name that makes the stub engine exit. The
// request's revision is used as the exit code.
const ExitAnalysis = "stub.exit"

// ExitError is returned by Serve when an ExitAnalysis request arrives.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit requested with code %d", e.Code)
}

// Engine answers analysis requests arriving on one connection.
type Engine struct {
	conn        *transport.Conn
	sessionPath string
	logger      *slog.Logger

	// Delay is inserted between consecutive responses to one request.
	Delay time.Duration
}

// New creates a stub engine on an established connection.
func New(conn *transport.Conn, sessionPath string, logger *slog.Logger) *Engine {
	return &Engine{conn: conn, sessionPath: sessionPath, logger: logger}
}

// Run dials the manager at address, prepares the session directory and
// serves until the manager hangs up or ctx is cancelled.
func Run(ctx context.Context, address, sessionPath string, logger *slog.Logger) error {
	if sessionPath != "" {
		if err := os.MkdirAll(sessionPath, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	conn, err := transport.Dial(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("connected to manager", "address", address, "session_path", sessionPath)
	return New(conn, sessionPath, logger).Serve(ctx)
}

// Serve handles requests until the connection closes. A clean hang-up by the
// manager returns nil.
func (e *Engine) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = e.conn.Close() })
	defer stop()

	for {
		msg, err := e.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				e.logger.Info("manager closed the connection")
				return nil
			}
			return fmt.Errorf("receive request: %w", err)
		}

		if err := e.handle(msg); err != nil {
			return err
		}
	}
}

func (e *Engine) handle(msg []byte) error {
	env, err := wire.UnmarshalEnvelope(msg)
	if err != nil {
		e.logger.Warn("discarding undecodable message", "error", err)
		return nil
	}
	if env.PayloadType != wire.PayloadTypeAnalysisRequest {
		e.logger.Warn("discarding unexpected payload", "payload_type", env.PayloadType)
		return nil
	}

	req, err := wire.UnmarshalAnalysisRequest(env.Payload)
	if err != nil {
		e.logger.Warn("discarding undecodable request", "request_id", env.ID, "error", err)
		return nil
	}

	e.logger.Debug("request received", "request_id", env.ID, "analysis", req.Name, "perform", req.Perform.String())

	if req.Name == ExitAnalysis {
		return &ExitError{Code: int(req.Revision)}
	}

	for i, resp := range Respond(req) {
		if i > 0 && e.Delay > 0 {
			time.Sleep(e.Delay)
		}
		if err := e.send(env.ID, resp); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) send(id uint64, resp *wire.AnalysisResponse) error {
	env := &wire.Envelope{ID: id, PayloadType: wire.PayloadTypeAnalysisResponse, Payload: resp.Marshal()}
	if err := e.conn.Send(env.Marshal()); err != nil {
		return fmt.Errorf("send response %d: %w", id, err)
	}
	return nil
}

// Respond returns the responses the stub engine sends for req: INITED for an
// INIT, otherwise RUNNING followed by COMPLETE.
func Respond(req *wire.AnalysisRequest) []*wire.AnalysisResponse {
	base := func(status wire.AnalysisStatus) *wire.AnalysisResponse {
		return &wire.AnalysisResponse{
			DatasetID:  req.DatasetID,
			AnalysisID: req.AnalysisID,
			Name:       req.Name,
			Namespace:  req.Namespace,
			Status:     status,
			Revision:   req.Revision,
		}
	}

	if req.Perform == wire.PerformInit {
		return []*wire.AnalysisResponse{base(wire.StatusInited)}
	}

	done := base(wire.StatusComplete)
	done.Results = fmt.Appendf(nil, "%s/%s r%d", req.Name, req.Perform, req.Revision)
	return []*wire.AnalysisResponse{base(wire.StatusRunning), done}
}
