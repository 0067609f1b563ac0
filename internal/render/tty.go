package render

import (
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/muxstorm/internal/muxerr"
)

// Tty is a tcell.Tty whose output goes to a client connection instead of
// a terminal device. Input never arrives through it: Read blocks until the
// screen stops it.
type Tty struct {
	mu       sync.Mutex
	sink     func([]byte)
	size     tcell.WindowSize
	onResize func()
	// running is closed by Drain, Stop and Close to wake Read.
	running chan struct{}
	closed  bool
}

var _ tcell.Tty = (*Tty)(nil)

// NewTty returns a Tty of the given size that passes everything written to
// sink. sink must not block and must not call back into the screen.
func NewTty(cols, rows int, sink func([]byte)) *Tty {
	return &Tty{
		sink: sink,
		size: tcell.WindowSize{Width: cols, Height: rows},
	}
}

// Start implements tcell.Tty.
func (t *Tty) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return muxerr.ErrClosed
	}
	if t.running == nil {
		t.running = make(chan struct{})
	}
	return nil
}

// Drain wakes a blocked Read.
func (t *Tty) Drain() error {
	t.mu.Lock()
	t.wake()
	t.mu.Unlock()
	return nil
}

// Stop implements tcell.Tty.
func (t *Tty) Stop() error {
	return t.Drain()
}

// Close stops the Tty for good. Later writes fail.
func (t *Tty) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.wake()
	return nil
}

func (t *Tty) wake() {
	if t.running != nil {
		close(t.running)
		t.running = nil
	}
}

// Read blocks until the Tty is stopped and then reports EOF.
func (t *Tty) Read([]byte) (int, error) {
	t.mu.Lock()
	ch := t.running
	t.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return 0, io.EOF
}

// Write passes a copy of p to the sink.
func (t *Tty) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, muxerr.ErrClosed
	}
	if len(p) > 0 {
		t.sink(append([]byte(nil), p...))
	}
	return len(p), nil
}

// NotifyResize implements tcell.Tty.
func (t *Tty) NotifyResize(cb func()) {
	t.mu.Lock()
	t.onResize = cb
	t.mu.Unlock()
}

// WindowSize implements tcell.Tty.
func (t *Tty) WindowSize() (tcell.WindowSize, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size, nil
}

// SetSize records the client's new size and tells the screen about it.
func (t *Tty) SetSize(cols, rows int) {
	t.mu.Lock()
	t.size = tcell.WindowSize{Width: cols, Height: rows}
	cb := t.onResize
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}
