package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Address scheme prefixes.
const (
	SchemeIPC   = "ipc://"
	SchemeTCP   = "tcp://"
	SchemeVsock = "vsock://"
)

// connectionName is the socket file created inside a temporary directory.
const connectionName = "connection"

// Endpoint is a parsed connection string.
type Endpoint struct {
	// Network is "unix", "tcp" or "vsock".
	Network string

	// Addr is the socket path, host:port, or vsock port.
	Addr string
}

// ParseAddress splits a connection string into its network and address.
func ParseAddress(address string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(address, SchemeIPC):
		path := strings.TrimPrefix(address, SchemeIPC)
		if path == "" {
			return Endpoint{}, fmt.Errorf("%w: empty ipc path in %q", ErrTransport, address)
		}
		return Endpoint{Network: "unix", Addr: path}, nil
	case strings.HasPrefix(address, SchemeTCP):
		hostPort := strings.TrimPrefix(address, SchemeTCP)
		if _, _, err := net.SplitHostPort(hostPort); err != nil {
			return Endpoint{}, fmt.Errorf("%w: tcp address %q: %w", ErrTransport, address, err)
		}
		return Endpoint{Network: "tcp", Addr: hostPort}, nil
	case strings.HasPrefix(address, SchemeVsock):
		port := strings.TrimPrefix(address, SchemeVsock)
		if _, err := strconv.ParseUint(port, 10, 32); err != nil {
			return Endpoint{}, fmt.Errorf("%w: vsock port %q: %w", ErrTransport, port, err)
		}
		return Endpoint{Network: "vsock", Addr: port}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported address scheme in %q", ErrTransport, address)
	}
}

// AddressStrategy produces the connection string a manager binds and releases
// whatever filesystem state backs it.
type AddressStrategy interface {
	Address() string
	Cleanup() error
}

// DefaultAddressStrategy picks the strategy for the current platform: a socket
// named after the host process id on Windows, a socket inside a fresh
// temporary directory everywhere else.
func DefaultAddressStrategy() (AddressStrategy, error) {
	if runtime.GOOS == "windows" {
		return NewPIDAddress(os.Getpid()), nil
	}
	return NewTempDirAddress()
}

// TempDirAddress places the socket inside a uniquely created temporary directory.
type TempDirAddress struct {
	dir string
}

// NewTempDirAddress creates the backing directory.
func NewTempDirAddress() (*TempDirAddress, error) {
	dir, err := os.MkdirTemp("", "silky-")
	if err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	return &TempDirAddress{dir: dir}, nil
}

// Address returns ipc://<dir>/connection.
func (a *TempDirAddress) Address() string {
	return SchemeIPC + filepath.Join(a.dir, connectionName)
}

// Dir returns the backing directory.
func (a *TempDirAddress) Dir() string {
	return a.dir
}

// Cleanup removes the directory and the socket inside it.
func (a *TempDirAddress) Cleanup() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("remove socket dir: %w", err)
	}
	return nil
}

// PIDAddress derives the socket name from a process id, so each host process
// gets its own address.
type PIDAddress struct {
	pid int
	dir string
}

// NewPIDAddress returns a strategy rooted in the OS temporary directory.
func NewPIDAddress(pid int) *PIDAddress {
	return &PIDAddress{pid: pid, dir: os.TempDir()}
}

// Address returns ipc://<tmp>/silky-<pid>.sock.
func (a *PIDAddress) Address() string {
	return SchemeIPC + filepath.Join(a.dir, fmt.Sprintf("silky-%d.sock", a.pid))
}

// Cleanup removes a leftover socket file, if any.
func (a *PIDAddress) Cleanup() error {
	path := filepath.Join(a.dir, fmt.Sprintf("silky-%d.sock", a.pid))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// staleProbeTimeout bounds the dial used to detect a live listener on a socket path.
const staleProbeTimeout = 200 * time.Millisecond

// cleanStaleSocket removes a socket file left behind by a crashed process.
// If something is still listening on it an error is returned instead.
func cleanStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	conn, err := net.DialTimeout("unix", path, staleProbeTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use", path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}
