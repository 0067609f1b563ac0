// Package muxerr defines the error kinds shared across the multiplexer.
//
// Errors are scoped: a SpawnError fails one pane creation, a ProtocolError
// drops one client connection, and a CommandError becomes a status
// message. None of them is fatal to the server.
package muxerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors.
var (
	// ErrClosed indicates the resource has already been closed.
	ErrClosed = errors.New("already closed")

	// ErrNoSuchPane indicates a pane id that is not in the arrangement.
	ErrNoSuchPane = errors.New("no such pane")

	// ErrNoSuchWindow indicates a window id or index that does not exist.
	ErrNoSuchWindow = errors.New("no such window")

	// ErrNoWindows indicates the arrangement is empty.
	ErrNoWindows = errors.New("no windows")

	// ErrServerRunning indicates another server already owns the socket.
	ErrServerRunning = errors.New("server already running")

	// ErrNoServer indicates no server is listening on the socket.
	ErrNoServer = errors.New("no server running")

	// ErrShutdown indicates the server is shutting down.
	ErrShutdown = errors.New("server shutting down")
)

// SpawnError reports a failure to allocate a pty or start a child.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProtocolError reports a malformed packet from a client.
type ProtocolError struct {
	Client string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	msg := "protocol error"
	if e.Client != "" {
		msg += " from " + e.Client
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CommandError reports semantic misuse of a user command. It carries no
// state change and is surfaced as a status message.
type CommandError struct {
	Command string
	Message string
}

// NewCommandError creates a CommandError with a formatted message.
func NewCommandError(command, format string, args ...any) *CommandError {
	return &CommandError{Command: command, Message: fmt.Sprintf(format, args...)}
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if e.Command == "" {
		return e.Message
	}
	return e.Command + ": " + e.Message
}

// IsTransient reports whether err is an interrupted or would-block
// condition that callers retry instead of surfacing.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK)
}

// IsCommandError reports whether err carries a CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// OperationError represents an error that occurred during a specific operation.
type OperationError struct {
	Op      string // Operation name (e.g., "spawn", "attach", "resize")
	Target  string // Target of the operation (e.g., pane id, socket path)
	Context string // Additional context
	Err     error  // Underlying error
}

// Wrap creates an OperationError, or returns nil when err is nil.
func Wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Op: op, Target: target, Err: err}
}

// WithContext adds context to the error.
// Safe to call on nil receiver - returns nil.
func (e *OperationError) WithContext(ctx string) *OperationError {
	if e == nil {
		return nil
	}
	e.Context = ctx
	return e
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorList collects multiple errors.
// NOTE: ErrorList is NOT safe for concurrent use.
type ErrorList struct {
	errors []error
}

// Add adds an error to the list. Nil errors are ignored.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.errors = append(e.errors, err)
	}
}

// Len returns the number of errors.
func (e *ErrorList) Len() int {
	return len(e.errors)
}

// Error returns a combined error message.
func (e *ErrorList) Error() string {
	if e == nil || len(e.errors) == 0 {
		return ""
	}
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}
	return fmt.Sprintf("%d errors: first: %v", len(e.errors), e.errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *ErrorList) Unwrap() []error {
	if e == nil {
		return nil
	}
	return e.errors
}

// AsError returns nil if there are no errors, otherwise returns the ErrorList.
func (e *ErrorList) AsError() error {
	if e == nil || len(e.errors) == 0 {
		return nil
	}
	return e
}
