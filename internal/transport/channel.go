package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/jonathon-love/silky/internal/wire"
)

var (
	// ErrTransport marks a channel that could not be bound or broke during use.
	ErrTransport = errors.New("transport error")

	// ErrTimeout is returned by ReceiveWithTimeout when no message arrived in
	// time. It is an expected outcome and does not wrap ErrTransport.
	ErrTimeout = errors.New("receive timed out")
)

// deadlineListener is implemented by the unix, tcp and vsock listeners.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Channel is the manager's end of the transport. It binds an address and
// accepts exactly one peer, the engine process.
//
// ReceiveWithTimeout must be called from a single goroutine; Send may be called
// concurrently with it and with itself.
type Channel struct {
	address  string
	listener deadlineListener

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	connected chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannel returns an unbound channel.
func NewChannel() *Channel {
	return &Channel{
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

// Bind parses address and starts listening on it.
func (c *Channel) Bind(address string) error {
	if c.listener != nil {
		return fmt.Errorf("%w: channel already bound to %s", ErrTransport, c.address)
	}

	ep, err := ParseAddress(address)
	if err != nil {
		return err
	}

	ln, err := listen(ep)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrTransport, address, err)
	}

	c.address = address
	c.listener = ln
	return nil
}

func listen(ep Endpoint) (deadlineListener, error) {
	switch ep.Network {
	case "unix":
		if err := cleanStaleSocket(ep.Addr); err != nil {
			return nil, err
		}
		ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: ep.Addr, Net: "unix"})
		if err != nil {
			return nil, err
		}
		// Owner-only: nothing but our own engine should connect.
		if err := os.Chmod(ep.Addr, 0o600); err != nil {
			ln.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
		return ln, nil
	case "tcp":
		addr, err := net.ResolveTCPAddr("tcp", ep.Addr)
		if err != nil {
			return nil, err
		}
		return net.ListenTCP("tcp", addr)
	case "vsock":
		port, err := strconv.ParseUint(ep.Addr, 10, 32)
		if err != nil {
			return nil, err
		}
		return vsock.Listen(uint32(port), nil)
	default:
		return nil, fmt.Errorf("unsupported network %q", ep.Network)
	}
}

// Address returns the bound connection string, or "" before Bind.
func (c *Channel) Address() string {
	return c.address
}

// ListenAddr returns the listener's network address, which for tcp://…:0
// includes the port actually chosen.
func (c *Channel) ListenAddr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Send writes msg as one frame. If the engine has not connected yet, Send waits
// for it until ctx is done or the channel is closed.
func (c *Channel) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: send on closed channel", ErrTransport)
	default:
	}

	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	select {
	case <-connected:
	case <-c.closed:
		return fmt.Errorf("%w: send on closed channel", ErrTransport)
	case <-ctx.Done():
		return fmt.Errorf("%w: wait for engine connection: %w", ErrTransport, ctx.Err())
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: engine disconnected", ErrTransport)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// ReceiveWithTimeout waits up to d for the next complete message. It returns
// ErrTimeout when nothing arrived. The wait covers the start of the next frame
// only; once its first byte is in, the rest of the frame is read to completion
// so a timeout never leaves the stream misaligned.
func (c *Channel) ReceiveWithTimeout(d time.Duration) ([]byte, error) {
	if c.listener == nil {
		return nil, fmt.Errorf("%w: receive on unbound channel", ErrTransport)
	}

	deadline := time.Now().Add(d)

	var conn net.Conn
	var reader *bufio.Reader
	for {
		var err error
		conn, reader, err = c.acceptBefore(deadline)
		if err != nil {
			return nil, err
		}

		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: set read deadline: %w", ErrTransport, err)
		}
		_, err = reader.Peek(1)
		if err == nil {
			break
		}
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: receive: %w", ErrTransport, err)
		}
		// The engine hung up between frames. Forget it and wait out the rest
		// of the deadline for a reconnect.
		c.dropPeer(conn)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("%w: clear read deadline: %w", ErrTransport, err)
	}

	msg, err := wire.ReadFrame(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return msg, nil
}

// acceptBefore returns the engine connection, accepting it first if needed.
func (c *Channel) acceptBefore(deadline time.Time) (net.Conn, *bufio.Reader, error) {
	c.mu.Lock()
	conn, reader := c.conn, c.reader
	c.mu.Unlock()
	if conn != nil {
		return conn, reader, nil
	}

	if err := c.listener.SetDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("%w: set accept deadline: %w", ErrTransport, err)
	}
	conn, err := c.listener.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil, nil, ErrTimeout
		}
		return nil, nil, fmt.Errorf("%w: accept: %w", ErrTransport, err)
	}

	// Use a buffered reader for all subsequent reads so bytes read ahead while
	// peeking are never lost.
	reader = bufio.NewReader(conn)

	c.mu.Lock()
	c.conn, c.reader = conn, reader
	close(c.connected)
	c.mu.Unlock()

	return conn, reader, nil
}

// dropPeer forgets a connection the engine closed so the next receive accepts
// a new one.
func (c *Channel) dropPeer(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	conn.Close()
	c.conn, c.reader = nil, nil
	c.connected = make(chan struct{})
}

// Connected reports whether the engine has connected.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	select {
	case <-connected:
		return true
	default:
		return false
	}
}

// Close releases the listener and the engine connection. It is safe to call
// more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = fmt.Errorf("close connection: %w", cerr)
			}
		}
		if c.listener != nil {
			if lerr := c.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) && err == nil {
				err = fmt.Errorf("close listener: %w", lerr)
			}
		}
	})
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
