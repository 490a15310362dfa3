package engine

import (
	"errors"
	"io"
	"os/exec"
	"sync"
)

// Command-line flags understood by the engine binary.
const (
	flagConnection = "--con="
	flagPath       = "--path="
)

// ProcessSpec describes how to launch the engine.
type ProcessSpec struct {
	Executable  string
	Address     string
	SessionPath string

	// Env is the complete environment of the engine process.
	Env []string
}

// Args returns the engine's command-line arguments.
func (s ProcessSpec) Args() []string {
	return []string{flagConnection + s.Address, flagPath + s.SessionPath}
}

// Launcher starts engine processes.
type Launcher interface {
	Launch(spec ProcessSpec) (Process, error)
}

// Process is a running engine.
type Process interface {
	// Pid returns the OS process id.
	Pid() int

	// Poll reports, without blocking, whether the process has exited and with
	// which code. The code is -1 if the process was killed by a signal.
	Poll() (exited bool, exitCode int)

	// Terminate kills the process. It is safe to call repeatedly and after
	// the process has exited.
	Terminate()
}

// ExecLauncher launches the engine as a child process with os/exec.
type ExecLauncher struct {
	// Stdout and Stderr receive the engine's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Launch starts the engine described by spec.
func (l ExecLauncher) Launch(spec ProcessSpec) (Process, error) {
	cmd := exec.Command(spec.Executable, spec.Args()...)
	cmd.Env = spec.Env
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

// execProcess is a Process backed by an *exec.Cmd. A reaper goroutine waits on
// the child so Poll never blocks.
type execProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	killOnce sync.Once
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	p.exitCode = code
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Poll() (bool, int) {
	select {
	case <-p.done:
		return true, p.exitCode
	default:
		return false, 0
	}
}

func (p *execProcess) Terminate() {
	select {
	case <-p.done:
		return
	default:
	}
	p.killOnce.Do(func() {
		// Kill fails only if the process is already gone.
		_ = p.cmd.Process.Kill()
	})
}
