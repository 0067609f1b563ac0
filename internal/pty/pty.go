// Package pty runs a child process on a pseudo-terminal.
//
// The master side is switched to non-blocking mode. Output is read with
// PollOutput, which waits with poll(2) for a bounded time so the reader
// goroutine can notice Close. Input written with Write is queued and
// drained by a writer goroutine that waits for writability on EAGAIN,
// so callers never block on a slow child.
package pty

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/muxerr"
)

const (
	readSize = 32 * 1024

	// writePollMs bounds each wait for writability so the writer notices
	// Close.
	writePollMs = 50
)

// Size is a terminal size in cells.
type Size struct {
	Rows, Cols uint16
}

// Command describes the child to start.
type Command struct {
	// Argv is the program and its arguments.
	Argv []string
	// Env is appended to the filtered server environment.
	Env []string
	// Dir is the working directory. Empty means the server's.
	Dir string
	// Term is the TERM value for the child.
	Term string
}

// scrubbed are removed from the inherited environment.
var scrubbed = []string{"TERM", "TMUX", "TMUX_PANE", "MUXSTORM", "COLUMNS", "LINES"}

// Option configures a Pty.
type Option func(*Pty)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pty) {
		p.log = l
	}
}

// Pty is a running child attached to a pty master.
type Pty struct {
	master *os.File
	fd     int
	cmd    *exec.Cmd
	log    *logging.Logger

	mu   sync.Mutex
	size Size

	queue  writeQueue
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Start allocates a pty, starts cmd with the slave as its controlling
// terminal in a new session, and returns the master. Failures are
// reported as *muxerr.SpawnError.
func Start(cmd Command, size Size, opts ...Option) (*Pty, error) {
	if len(cmd.Argv) == 0 {
		return nil, &muxerr.SpawnError{Err: errors.New("empty command")}
	}
	if size.Rows == 0 || size.Cols == 0 {
		size = Size{Rows: 24, Cols: 80}
	}

	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = buildEnv(os.Environ(), cmd)

	master, err := pty.StartWithAttrs(c, &pty.Winsize{Rows: size.Rows, Cols: size.Cols},
		&syscall.SysProcAttr{Setsid: true, Setctty: true})
	if err != nil {
		return nil, &muxerr.SpawnError{Command: cmd.Argv, Err: err}
	}

	fd := int(master.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = master.Close()
		_ = c.Process.Kill()
		_ = c.Wait()
		return nil, &muxerr.SpawnError{Command: cmd.Argv, Err: err}
	}

	p := &Pty{
		master: master,
		fd:     fd,
		cmd:    c,
		log:    logging.Nop(),
		size:   size,
		done:   make(chan struct{}),
	}
	p.queue.notify = make(chan struct{}, 1)
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("pty").WithField("pid", c.Process.Pid)

	p.wg.Add(1)
	go p.writeLoop()

	return p, nil
}

func buildEnv(base []string, cmd Command) []string {
	env := make([]string, 0, len(base)+len(cmd.Env)+1)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		keep := true
		for _, s := range scrubbed {
			if name == s {
				keep = false
				break
			}
		}
		if keep {
			env = append(env, kv)
		}
	}
	if cmd.Term != "" {
		env = append(env, "TERM="+cmd.Term)
	}
	return append(env, cmd.Env...)
}

// Cmd returns the started command.
func (p *Pty) Cmd() *exec.Cmd {
	return p.cmd
}

// Pid returns the child's process id.
func (p *Pty) Pid() int {
	return p.cmd.Process.Pid
}

// ForegroundPgrp returns the foreground process group of the terminal.
func (p *Pty) ForegroundPgrp() (int, error) {
	if p.closed.Load() {
		return 0, muxerr.ErrClosed
	}
	return unix.IoctlGetInt(p.fd, unix.TIOCGPGRP)
}

// Size returns the last size set.
func (p *Pty) Size() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Resize sets the kernel window size, which delivers SIGWINCH to the
// child's foreground process group.
func (p *Pty) Resize(size Size) error {
	if p.closed.Load() {
		return muxerr.ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if size == p.size {
		return nil
	}
	if err := pty.Setsize(p.master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols}); err != nil {
		return muxerr.Wrap("resize", p.master.Name(), err)
	}
	p.size = size
	return nil
}

// PollOutput waits up to timeout for output and returns it. A nil slice
// with a nil error means nothing arrived. Once the child side is gone it
// returns io.EOF.
func (p *Pty) PollOutput(timeout time.Duration) ([]byte, error) {
	if p.closed.Load() {
		return nil, io.EOF
	}

	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if muxerr.IsTransient(err) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	buf := make([]byte, readSize)
	n, err = p.master.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	switch {
	case err == nil, muxerr.IsTransient(err):
		return nil, nil
	case isHangup(err):
		return nil, io.EOF
	default:
		return nil, err
	}
}

// isHangup reports whether err means the slave side is gone or the master
// was closed. Linux reports a vanished slave as EIO.
func isHangup(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.EBADF) ||
		errors.Is(err, os.ErrClosed)
}

// Write queues b for the child. It never blocks.
func (p *Pty) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, muxerr.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	p.queue.push(buf)
	return len(b), nil
}

// Pending returns the number of queued bytes not yet written.
func (p *Pty) Pending() int {
	return p.queue.pending()
}

func (p *Pty) writeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.queue.notify:
		}
		for _, b := range p.queue.drain() {
			if err := p.writeAll(b); err != nil {
				if !isHangup(err) {
					p.log.Warn("write to pty failed", "err", err)
				}
				return
			}
		}
	}
}

func (p *Pty) writeAll(b []byte) error {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLOUT}}
	for len(b) > 0 {
		if p.closed.Load() {
			return os.ErrClosed
		}
		n, err := p.master.Write(b)
		b = b[n:]
		if err == nil {
			continue
		}
		if !muxerr.IsTransient(err) {
			return err
		}
		if _, err := unix.Poll(fds, writePollMs); err != nil && !muxerr.IsTransient(err) {
			return err
		}
	}
	return nil
}

// Close stops the writer and closes the master. It does not signal or
// reap the child. Close is idempotent.
func (p *Pty) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	return p.master.Close()
}

// writeQueue is an unbounded FIFO of byte slices.
type writeQueue struct {
	mu     sync.Mutex
	bufs   [][]byte
	bytes  int
	notify chan struct{}
}

func (q *writeQueue) push(b []byte) {
	q.mu.Lock()
	q.bufs = append(q.bufs, b)
	q.bytes += len(b)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *writeQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	bufs := q.bufs
	q.bufs = nil
	q.bytes = 0
	return bufs
}

func (q *writeQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}
