package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		address string
		want    Endpoint
		wantErr bool
	}{
		{"ipc:///tmp/silky/connection", Endpoint{Network: "unix", Addr: "/tmp/silky/connection"}, false},
		{"tcp://127.0.0.1:5555", Endpoint{Network: "tcp", Addr: "127.0.0.1:5555"}, false},
		{"vsock://1024", Endpoint{Network: "vsock", Addr: "1024"}, false},
		{"ipc://", Endpoint{}, true},
		{"tcp://nohost", Endpoint{}, true},
		{"vsock://abc", Endpoint{}, true},
		{"inproc://engine", Endpoint{}, true},
		{"/tmp/no-scheme", Endpoint{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := ParseAddress(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrTransport) {
					t.Errorf("ParseAddress(%q) error = %v, want ErrTransport", tt.address, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tt.address, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.address, got, tt.want)
			}
		})
	}
}

func TestTempDirAddress(t *testing.T) {
	a, err := NewTempDirAddress()
	if err != nil {
		t.Fatalf("NewTempDirAddress: %v", err)
	}

	addr := a.Address()
	if !strings.HasPrefix(addr, SchemeIPC) {
		t.Errorf("address %q lacks ipc scheme", addr)
	}
	if want := filepath.Join(a.Dir(), connectionName); strings.TrimPrefix(addr, SchemeIPC) != want {
		t.Errorf("socket path = %q, want %q", strings.TrimPrefix(addr, SchemeIPC), want)
	}

	info, err := os.Stat(a.Dir())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", a.Dir())
	}

	if err := a.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(a.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dir still present after Cleanup: %v", err)
	}
}

func TestTempDirAddressesAreUnique(t *testing.T) {
	a, err := NewTempDirAddress()
	if err != nil {
		t.Fatalf("NewTempDirAddress: %v", err)
	}
	defer a.Cleanup()
	b, err := NewTempDirAddress()
	if err != nil {
		t.Fatalf("NewTempDirAddress: %v", err)
	}
	defer b.Cleanup()

	if a.Address() == b.Address() {
		t.Errorf("two strategies share address %q", a.Address())
	}
}

func TestPIDAddress(t *testing.T) {
	a := NewPIDAddress(4242)
	addr := a.Address()

	if !strings.HasPrefix(addr, SchemeIPC) {
		t.Errorf("address %q lacks ipc scheme", addr)
	}
	if want := fmt.Sprintf("silky-%d.sock", 4242); !strings.HasSuffix(addr, want) {
		t.Errorf("address %q does not end in %q", addr, want)
	}
	if addr == NewPIDAddress(4243).Address() {
		t.Error("different pids produced the same address")
	}

	// Nothing to remove is not an error.
	if err := a.Cleanup(); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
}

func TestDefaultAddressStrategy(t *testing.T) {
	s, err := DefaultAddressStrategy()
	if err != nil {
		t.Fatalf("DefaultAddressStrategy: %v", err)
	}
	defer s.Cleanup()

	if _, err := ParseAddress(s.Address()); err != nil {
		t.Errorf("default address %q does not parse: %v", s.Address(), err)
	}
}

func TestCleanStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")

	// A socket file with no listener behind it.
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	if err := cleanStaleSocket(path); err != nil {
		t.Fatalf("cleanStaleSocket: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale socket still present: %v", err)
	}
}

func TestCleanStaleSocketInUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	if err := cleanStaleSocket(path); err == nil {
		t.Error("cleanStaleSocket removed a socket that is in use")
	}
}
