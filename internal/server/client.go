package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"

	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/metrics"
	"github.com/dshills/muxstorm/internal/protocol"
	"github.com/dshills/muxstorm/internal/render"
)

// Default viewport of a client that has not sent its size.
const (
	defaultCols = 80
	defaultRows = 24
)

// ClientConnection is one connected client. Its outbound queue may be
// used from any goroutine; everything else belongs to the event loop.
type ClientConnection struct {
	id      string
	conn    net.Conn
	log     *logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	queue   [][]byte
	closing bool
	wake    chan struct{}
	written chan struct{}

	cols, rows int
	sized      bool
	term       string
	attached   bool

	modes   []modeEntry
	modeSeq uint64
	raw     Guard

	tty    *render.Tty
	screen tcell.Screen
	keys   keys.Decoder
	prefix bool

	message      string
	messageUntil time.Time
	prompt       *prompt
}

type modeEntry struct {
	mode protocol.Mode
	seq  uint64
}

// prompt is an open command prompt.
type prompt struct {
	text     string
	template string
	input    []rune
}

func newClientConnection(conn net.Conn, log *logging.Logger, m *metrics.Metrics) *ClientConnection {
	id := uuid.NewString()
	c := &ClientConnection{
		id:      id,
		conn:    conn,
		log:     log.WithField("client", id),
		metrics: m,
		wake:    make(chan struct{}, 1),
		written: make(chan struct{}),
		cols:    defaultCols,
		rows:    defaultRows,
	}
	go c.writeLoop()
	return c
}

// ID returns the connection's unique id.
func (c *ClientConnection) ID() string { return c.id }

// Size returns the client's viewport.
func (c *ClientConnection) Size() (cols, rows int) { return c.cols, c.rows }

// Attached reports whether the client has started its GUI.
func (c *ClientConnection) Attached() bool { return c.attached }

// send queues a packet. It never blocks.
func (c *ClientConnection) send(pkt []byte) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, pkt)
	c.mu.Unlock()
	c.metrics.RecordPacketOut(len(pkt))
	c.notify()
}

func (c *ClientConnection) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sendOut queues terminal output. The client's tty writes through it.
func (c *ClientConnection) sendOut(b []byte) {
	c.send(protocol.Out(string(b)))
}

// writeLoop drains the queue to the socket. It flushes what is queued
// when the connection is closed, then closes the socket.
func (c *ClientConnection) writeLoop() {
	defer close(c.written)
	defer c.conn.Close()
	for {
		c.mu.Lock()
		batch, closing := c.queue, c.closing
		c.queue = nil
		c.mu.Unlock()

		for _, pkt := range batch {
			if _, err := c.conn.Write(pkt); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					c.log.Warn("client write failed", "err", err)
				}
				c.mu.Lock()
				c.closing = true
				c.queue = nil
				c.mu.Unlock()
				return
			}
		}
		if len(batch) == 0 {
			if closing {
				return
			}
			<-c.wake
		}
	}
}

// close stops accepting packets and lets the writer flush and close the
// socket. A writer stuck on a client that stopped reading is cut off
// after timeout.
func (c *ClientConnection) close(timeout time.Duration) {
	c.mu.Lock()
	already := c.closing
	c.closing = true
	c.mu.Unlock()
	c.notify()
	if already {
		return
	}
	go func() {
		select {
		case <-c.written:
		case <-time.After(timeout):
			_ = c.conn.Close()
		}
	}()
}

// done is closed once the socket is closed.
func (c *ClientConnection) done() <-chan struct{} {
	return c.written
}

// clientEvent is a packet, or the end of a client's stream.
type clientEvent struct {
	client *ClientConnection
	packet protocol.Packet
	err    error
}

// readLoop decodes packets and hands them to the event loop until the
// stream ends or stop is closed.
func (c *ClientConnection) readLoop(events chan<- clientEvent, stop <-chan struct{}) {
	r := protocol.NewReader(c.conn, protocol.ToServer, c.id)
	for {
		p, err := r.Next()
		if err != nil && errors.Is(err, net.ErrClosed) {
			err = io.EOF
		}
		select {
		case events <- clientEvent{client: c, packet: p, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// Guard undoes one EnterMode.
type Guard struct {
	c   *ClientConnection
	seq uint64
}

// EnterMode tells the client to switch its terminal to m. Releasing the
// returned guard switches it back.
func (c *ClientConnection) EnterMode(m protocol.Mode) Guard {
	c.modeSeq++
	c.modes = append(c.modes, modeEntry{mode: m, seq: c.modeSeq})
	c.send(protocol.SetMode(m))
	return Guard{c: c, seq: c.modeSeq}
}

// Mode returns the mode the client was last told to be in.
func (c *ClientConnection) Mode() protocol.Mode {
	if n := len(c.modes); n > 0 {
		return c.modes[n-1].mode
	}
	return protocol.ModeRestore
}

// Release pops the guard's mode, and every mode entered after it, and
// sends the mode now on top. Releasing twice does nothing.
func (g Guard) Release() {
	c := g.c
	if c == nil {
		return
	}
	for i, e := range c.modes {
		if e.seq == g.seq {
			c.modes = c.modes[:i]
			c.send(protocol.SetMode(c.Mode()))
			return
		}
	}
}

// setMessage shows text on the status line. A message of several lines
// stays until the next key.
func (c *ClientConnection) setMessage(text string, d time.Duration) {
	c.message = text
	c.messageUntil = time.Time{}
	if !strings.Contains(text, "\n") {
		c.messageUntil = time.Now().Add(d)
	}
}

// expireMessage clears a timed-out message and reports whether it did.
func (c *ClientConnection) expireMessage(now time.Time) bool {
	if c.message == "" || c.messageUntil.IsZero() || now.Before(c.messageUntil) {
		return false
	}
	c.message = ""
	return true
}

func (c *ClientConnection) status(session, host string, now time.Time, cols, rows int) render.Status {
	st := render.Status{
		Session: session,
		Host:    host,
		Now:     now,
		Cols:    cols,
		Rows:    rows,
		Message: c.message,
	}
	if c.prompt != nil {
		st.Prompting = true
		st.Prompt = c.prompt.text
		st.Input = string(c.prompt.input)
	}
	return st
}
