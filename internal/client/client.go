// Package client attaches a terminal to a running server.
//
// The client is thin: it puts the terminal in the mode the server asks
// for, forwards keyboard input and window size changes, and copies the
// server's output to the terminal. All drawing happens in the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/protocol"
)

// Options configure Attach.
type Options struct {
	// In is the terminal to read keys from and switch between modes.
	In *os.File
	// Out receives the server's output. It defaults to In.
	Out io.Writer
	// Term is the terminal type reported to the server.
	Term         string
	DetachOthers bool
	Logger       *logging.Logger
}

// sender serializes packet writes from the input, signal and resize
// paths.
type sender struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *sender) send(pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(pkt)
	return err
}

// ttyModes tracks the terminal mode the server asked for and restores the
// original state on exit.
type ttyModes struct {
	fd    int
	saved *term.State
	mode  protocol.Mode
}

func (t *ttyModes) apply(m protocol.Mode) error {
	switch m {
	case protocol.ModeRaw:
		st, err := term.MakeRaw(t.fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		if t.saved == nil {
			t.saved = st
		}
	default:
		if err := t.restore(); err != nil {
			return err
		}
	}
	t.mode = m
	return nil
}

// restore puts the terminal back the way it was before the first raw
// mode.
func (t *ttyModes) restore() error {
	if t.saved == nil {
		return nil
	}
	if err := term.Restore(t.fd, t.saved); err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}
	return nil
}

func size(fd int) []byte {
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		cols, rows = 80, 24
	}
	return protocol.Size(rows, cols)
}

// Attach starts a GUI session on conn and serves it until the server
// closes the connection or ctx is done. The terminal is restored before
// it returns.
func Attach(ctx context.Context, conn net.Conn, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = opts.In
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("client")

	fd := int(opts.In.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("attach: input is not a terminal")
	}
	modes := &ttyModes{fd: fd, mode: protocol.ModeRestore}
	defer func() {
		if err := modes.restore(); err != nil {
			log.Warn("restoring terminal", "err", err)
		}
	}()

	tx := &sender{conn: conn}
	if err := tx.send(protocol.StartGUIPacket(protocol.StartGUI{
		DetachOthers: opts.DetachOthers,
		Term:         opts.Term,
	})); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := tx.send(size(fd)); err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-winch:
				if err := tx.send(size(fd)); err != nil {
					return
				}
			}
		}
	}()

	go forwardInput(opts.In, tx, log)

	cont := make(chan os.Signal, 1)
	signal.Notify(cont, syscall.SIGCONT)
	defer signal.Stop(cont)

	r := protocol.NewReader(conn, protocol.ToClient, "server")
	for {
		p, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("attach: %w", err)
		}
		switch p.Cmd {
		case protocol.CmdOut:
			text, err := p.Text()
			if err != nil {
				log.Warn("bad out packet", "err", err)
				continue
			}
			if _, err := io.WriteString(opts.Out, text); err != nil {
				return fmt.Errorf("attach: write terminal: %w", err)
			}
		case protocol.CmdMode:
			m, err := p.Mode()
			if err != nil {
				log.Warn("bad mode packet", "err", err)
				continue
			}
			if err := modes.apply(m); err != nil {
				return err
			}
		case protocol.CmdSuspend:
			suspend(modes, cont, log)
			if err := tx.send(size(fd)); err != nil {
				return nil
			}
		}
	}
}

// suspend stops the process with the terminal restored, and goes back to
// the server's mode once continued.
func suspend(modes *ttyModes, cont <-chan os.Signal, log *logging.Logger) {
	current := modes.mode
	if err := modes.restore(); err != nil {
		log.Warn("suspend", "err", err)
	}
	// Drop a SIGCONT left over from an earlier stop.
	select {
	case <-cont:
	default:
	}
	if err := unix.Kill(os.Getpid(), unix.SIGTSTP); err != nil {
		log.Warn("suspend", "err", err)
		return
	}
	<-cont
	if err := modes.apply(current); err != nil {
		log.Warn("resume", "err", err)
	}
}

// forwardInput sends what is typed as in packets until the connection
// fails. A rune split across reads is held back until it is complete.
func forwardInput(in io.Reader, tx *sender, log *logging.Logger) {
	buf := make([]byte, 4096)
	var pending []byte
	flush := func(b []byte) bool {
		if len(b) == 0 {
			return true
		}
		return tx.send(protocol.In(string(b))) == nil
	}
	for {
		n, err := in.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completeRunes(data)
			if !flush(data[:cut]) {
				return
			}
			pending = append([]byte(nil), data[cut:]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !muxerr.IsTransient(err) {
				log.Debug("input closed", "err", err)
			}
			if !muxerr.IsTransient(err) {
				flush(pending)
				return
			}
		}
	}
}

// completeRunes returns the length of b without a trailing incomplete
// UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Run sends a command line to the server on conn, optionally targeted at
// pane, and copies the reply to out.
func Run(conn net.Conn, command string, pane uint32, out io.Writer) error {
	defer conn.Close()
	if _, err := conn.Write(protocol.RunCommandPacket(protocol.RunCommand{
		Command: command,
		Pane:    pane,
	})); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	r := protocol.NewReader(conn, protocol.ToClient, "server")
	for {
		p, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("run: %w", err)
		}
		if p.Cmd != protocol.CmdOut {
			continue
		}
		text, err := p.Text()
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		if _, err := io.WriteString(out, text); err != nil {
			return err
		}
	}
}

// Query runs a command and returns its reply.
func Query(conn net.Conn, command string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	var b strings.Builder
	err := Run(conn, command, 0, &b)
	return b.String(), err
}
