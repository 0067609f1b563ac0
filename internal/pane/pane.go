// Package pane binds a child process on a pty to a terminal emulator.
//
// Output is read by a goroutine owned by the pane and delivered as Output
// values on a channel supplied by the caller. Everything else, including
// Feed, runs on the caller's event loop; a Pane is not safe for concurrent
// use apart from its reader.
package pane

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/process"
	"github.com/dshills/muxstorm/internal/pty"
	"github.com/dshills/muxstorm/internal/terminal"
)

// EnvVar is set in every pane to "<socket>,<pane id>".
const EnvVar = "MUXSTORM"

const pollInterval = 100 * time.Millisecond

// ID identifies a pane for the lifetime of the server.
type ID uint32

func (id ID) String() string {
	return "%" + strconv.FormatUint(uint64(id), 10)
}

// Output is a chunk read from a pane. The last Output of a pane carries
// Err, which is io.EOF when the child side closed.
type Output struct {
	Pane ID
	Data []byte
	Err  error
}

// Config describes a pane to start.
type Config struct {
	Argv []string
	Dir  string
	Term string
	// Socket is the server socket path advertised to the child.
	Socket       string
	Cols, Rows   int
	HistoryLimit int
	Logger       *logging.Logger

	// OnBell and OnTitle are called from Feed.
	OnBell  func(ID)
	OnTitle func(ID, string)
}

// Pane is one child process and its screen.
type Pane struct {
	id   ID
	pty  *pty.Pty
	proc *process.Process
	emu  *terminal.Emulator
	log  *logging.Logger
	argv []string

	name string
	// ClockMode replaces the pane's content with a clock when drawn.
	ClockMode bool

	dead   bool
	status process.ExitStatus

	stop     chan struct{}
	stopOnce sync.Once
	reader   sync.WaitGroup
}

// Start spawns cfg.Argv on a new pty and starts the output reader, which
// sends to out until EOF or Close.
func Start(id ID, cfg Config, out chan<- Output) (*Pane, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("pane").WithField("pane", id.String())

	p := newPane(id, cfg, log)

	env := []string{fmt.Sprintf("%s=%s,%d", EnvVar, cfg.Socket, uint32(id))}
	tty, err := pty.Start(pty.Command{
		Argv: cfg.Argv,
		Env:  env,
		Dir:  cfg.Dir,
		Term: cfg.Term,
	}, pty.Size{Rows: uint16(cfg.Rows), Cols: uint16(cfg.Cols)}, pty.WithLogger(log))
	if err != nil {
		return nil, err
	}
	p.pty = tty
	p.proc = process.New(tty.Cmd())
	p.emu.SetUpstream(func(b []byte) { _, _ = tty.Write(b) })

	log.Debug("pane started", "argv", cfg.Argv, "pid", p.proc.PID())

	p.reader.Add(1)
	go p.readLoop(out)
	return p, nil
}

// NewDetached creates a pane with no process. It is useful as a
// placeholder and in tests; writes to it fail with muxerr.ErrClosed.
func NewDetached(id ID, cols, rows int) *Pane {
	return newPane(id, Config{Cols: cols, Rows: rows}, logging.Nop())
}

func newPane(id ID, cfg Config, log *logging.Logger) *Pane {
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	p := &Pane{
		id:   id,
		log:  log,
		argv: cfg.Argv,
		stop: make(chan struct{}),
	}
	opts := terminal.Options{
		Cols:         cfg.Cols,
		Rows:         cfg.Rows,
		HistoryLimit: cfg.HistoryLimit,
	}
	if cfg.OnBell != nil {
		opts.OnBell = func() { cfg.OnBell(id) }
	}
	if cfg.OnTitle != nil {
		opts.OnTitle = func(t string) { cfg.OnTitle(id, t) }
	}
	p.emu = terminal.New(opts)
	return p
}

func (p *Pane) readLoop(out chan<- Output) {
	defer p.reader.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		data, err := p.pty.PollOutput(pollInterval)
		if len(data) == 0 && err == nil {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			p.log.Warn("pane read failed", "err", err)
		}
		select {
		case out <- Output{Pane: p.id, Data: data, Err: err}:
		case <-p.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// ID returns the pane id.
func (p *Pane) ID() ID { return p.id }

// Emulator returns the pane's terminal state.
func (p *Pane) Emulator() *terminal.Emulator { return p.emu }

// Process returns the child, or nil for a detached pane.
func (p *Pane) Process() *process.Process { return p.proc }

// Name returns the name set with SetName.
func (p *Pane) Name() string { return p.name }

// SetName names the pane. An empty name clears it.
func (p *Pane) SetName(name string) { p.name = name }

// Title returns the pane name, or the title set by the application.
func (p *Pane) Title() string {
	if p.name != "" {
		return p.name
	}
	return p.emu.Title()
}

// Size returns the pane size in cells.
func (p *Pane) Size() (cols, rows int) {
	return p.emu.Size()
}

// Feed applies output read from the pty.
func (p *Pane) Feed(data []byte) {
	p.emu.Feed(data)
}

// Write sends input to the child. When paste is set and the application
// enabled bracketed paste, the input is wrapped in paste markers.
func (p *Pane) Write(b []byte, paste bool) error {
	if p.pty == nil || p.dead {
		return muxerr.ErrClosed
	}
	if paste {
		b = p.emu.WrapPaste(b)
	}
	_, err := p.pty.Write(b)
	return err
}

// Resize changes the size of the screen and of the pty.
func (p *Pane) Resize(cols, rows int) error {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if c, r := p.emu.Size(); c == cols && r == rows {
		return nil
	}
	p.emu.Resize(cols, rows)
	if p.pty == nil || p.dead {
		return nil
	}
	err := p.pty.Resize(pty.Size{Rows: uint16(rows), Cols: uint16(cols)})
	if errors.Is(err, muxerr.ErrClosed) {
		return nil
	}
	return err
}

// Signal sends sig to the child's process group.
func (p *Pane) Signal(sig syscall.Signal) error {
	if p.proc == nil {
		return nil
	}
	return p.proc.Signal(sig)
}

// Kill hangs up the child. The pane goes away once it is reaped.
func (p *Pane) Kill() error {
	return p.Signal(syscall.SIGHUP)
}

// Wait reaps the child. It blocks and belongs on the worker pool.
func (p *Pane) Wait() process.ExitStatus {
	if p.proc == nil {
		return process.ExitStatus{}
	}
	return p.proc.Wait()
}

// Dead reports whether the child has exited and the pane was kept.
func (p *Pane) Dead() bool { return p.dead }

// ExitStatus returns the child's status once the pane is dead.
func (p *Pane) ExitStatus() process.ExitStatus { return p.status }

// MarkDead records the exit status and releases the pty.
func (p *Pane) MarkDead(st process.ExitStatus) {
	p.dead = true
	p.status = st
	p.Close()
}

// Close stops the reader and closes the pty. It does not signal the child.
func (p *Pane) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.pty != nil {
			_ = p.pty.Close()
		}
		p.reader.Wait()
	})
}

// foreground returns the pid of the foreground process group leader on the
// pane's terminal, falling back to the child.
func (p *Pane) foreground() int {
	if p.pty == nil || p.dead {
		return 0
	}
	if pgrp, err := p.pty.ForegroundPgrp(); err == nil && pgrp > 0 {
		return pgrp
	}
	return p.proc.PID()
}

// ForegroundName returns the command name of the foreground process, as
// used for automatic window names.
func (p *Pane) ForegroundName() string {
	pid := p.foreground()
	if pid <= 0 {
		return ""
	}
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		if len(p.argv) > 0 {
			return filepath.Base(p.argv[0])
		}
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Cwd returns the working directory of the foreground process.
func (p *Pane) Cwd() string {
	pid := p.foreground()
	if pid <= 0 {
		return ""
	}
	dir, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err != nil {
		return ""
	}
	return dir
}
