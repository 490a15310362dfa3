package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/jonathon-love/silky/internal/wire"
)

// Retry defaults for connecting to a manager.
const (
	dialMaxRetries  = 5
	dialBaseBackoff = 100 * time.Millisecond
)

// Conn is the engine's end of the transport.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, reader: bufio.NewReader(c)}
}

// Dial connects to the manager listening on address, retrying with exponential
// backoff while the manager is not yet bound.
func Dial(ctx context.Context, address string) (*Conn, error) {
	ep, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	var lastErr error
	backoff := dialBaseBackoff

	for attempt := range dialMaxRetries {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
		default:
		}

		c, err := dialEndpoint(ctx, ep)
		if err == nil {
			return NewConn(c), nil
		}
		lastErr = err

		if attempt < dialMaxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("%w: dial %s after %d attempts: %w", ErrTransport, address, dialMaxRetries, lastErr)
}

func dialEndpoint(ctx context.Context, ep Endpoint) (net.Conn, error) {
	switch ep.Network {
	case "unix", "tcp":
		dialer := net.Dialer{}
		return dialer.DialContext(ctx, ep.Network, ep.Addr)
	case "vsock":
		port, err := strconv.ParseUint(ep.Addr, 10, 32)
		if err != nil {
			return nil, err
		}
		// Engines inside a microVM reach the manager on the host CID.
		return vsock.Dial(vsock.Host, uint32(port), nil)
	default:
		return nil, fmt.Errorf("unsupported network %q", ep.Network)
	}
}

// Send writes msg as one frame.
func (c *Conn) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.conn, msg)
}

// Receive blocks until the next frame arrives.
func (c *Conn) Receive() ([]byte, error) {
	return wire.ReadFrame(c.reader)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
