// Package process tracks the child running in a pane.
//
// A Process wraps an already started exec.Cmd. Wait is a blocking reap
// meant to run on the worker pool; the event loop learns about the exit
// from the pool's completion channel. Signals go to the child's process
// group, which is the session it leads on its pty.
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// State represents the state of a process.
type State int32

const (
	// StateRunning indicates the process has been started and not reaped.
	StateRunning State = iota
	// StateExited indicates the process exited on its own.
	StateExited
	// StateKilled indicates the process was terminated by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// ExitStatus describes how a process ended. It is a value, not an error.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was signaled.
	Code int
	// Signal is the terminating signal when Signaled is set.
	Signal   syscall.Signal
	Signaled bool
	// Err is set when the status could not be collected.
	Err error
}

// String formats the status the way shells report it.
func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return "wait failed: " + s.Err.Error()
	case s.Signaled:
		return "killed by " + SignalName(s.Signal)
	default:
		return "exit status " + strconv.Itoa(s.Code)
	}
}

// Success reports whether the process exited with code 0.
func (s ExitStatus) Success() bool {
	return s.Err == nil && !s.Signaled && s.Code == 0
}

// Process is a started child.
//
// Process is safe for concurrent use; Wait must be called once.
type Process struct {
	cmd     *exec.Cmd
	started time.Time

	state  atomic.Int32
	mu     sync.Mutex
	status ExitStatus
	done   chan struct{}
}

// New wraps a started command.
func New(cmd *exec.Cmd) *Process {
	p := &Process{
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	p.state.Store(int32(StateRunning))
	return p
}

// PID returns the process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// HasExited reports whether the process has been reaped.
func (p *Process) HasExited() bool {
	return p.State() != StateRunning
}

// Done is closed once Wait has returned.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Status returns the exit status. It is the zero value until Done is
// closed.
func (p *Process) Status() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Runtime returns how long the process has run.
func (p *Process) Runtime() time.Duration {
	return time.Since(p.started)
}

// Wait blocks until the process exits, reaps it and returns its status.
func (p *Process) Wait() ExitStatus {
	err := p.cmd.Wait()
	st := exitStatus(err)
	if err == nil && p.cmd.ProcessState != nil {
		st = fromWaitStatus(p.cmd.ProcessState.Sys())
	}

	p.mu.Lock()
	p.status = st
	p.mu.Unlock()

	if st.Signaled {
		p.state.Store(int32(StateKilled))
	} else {
		p.state.Store(int32(StateExited))
	}
	close(p.done)
	return st
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fromWaitStatus(ee.Sys())
	}
	return ExitStatus{Code: -1, Err: err}
}

func fromWaitStatus(sys any) ExitStatus {
	ws, ok := sys.(syscall.WaitStatus)
	if !ok {
		return ExitStatus{}
	}
	if ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal(), Signaled: true}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

// Signal sends sig to the child's process group. Signalling a process
// that has already been reaped is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	if p.HasExited() || p.cmd.Process == nil {
		return nil
	}
	pid := p.cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	err = unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("signal %s to group %d: %w", SignalName(sig), pgid, err)
	}
	return nil
}

// Hangup sends SIGHUP, which is how panes are killed.
func (p *Process) Hangup() error {
	return p.Signal(syscall.SIGHUP)
}

// ParseSignal parses "SIGTERM", "TERM", "term" or a signal number.
func ParseSignal(s string) (syscall.Signal, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n >= 65 {
			return 0, fmt.Errorf("invalid signal number %d", n)
		}
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", s)
	}
	return sig, nil
}

// SignalName returns the SIG-prefixed name of sig.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "signal " + strconv.Itoa(int(sig))
}
