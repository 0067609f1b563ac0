package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/command"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/metrics"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/process"
	"github.com/dshills/muxstorm/internal/protocol"
	"github.com/dshills/muxstorm/internal/render"
	"github.com/dshills/muxstorm/internal/worker"
)

const (
	// writeTimeout bounds how long a closing connection may take to
	// flush its queue.
	writeTimeout = 2 * time.Second
	// statusInterval refreshes the clock, messages and window names.
	statusInterval = time.Second
)

// Server is one multiplexer session.
type Server struct {
	id       string
	socket   string
	session  string
	host     string
	opts     *config.Options
	files    []string
	environ  []string
	command  []string
	dir      string
	log      *logging.Logger
	metrics  *metrics.Metrics
	table    *command.Table
	bindings *command.Bindings

	// overrides are options set at runtime. They survive config reloads.
	overrides map[string]string

	arr      *arrange.Arrangement
	comp     *render.Compositor
	clients  map[string]*ClientConnection
	nextPane uint32
	killed   map[pane.ID]bool

	paneOut chan pane.Output
	events  chan clientEvent
	accepts chan net.Conn
	reloads chan reload
	stop    chan struct{}
	pool    *worker.Pool
	cancel  context.CancelFunc

	dirty       bool
	renderTimer *time.Timer
	exitReason  string
}

type reload struct {
	opts *config.Options
	err  error
}

// exited is the reaping pool's result for a pane.
type exited struct {
	pane   pane.ID
	status process.ExitStatus
}

// New creates a server. Run starts it.
func New(cx Context) *Server {
	cx.withDefaults()
	host, _ := os.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	id := uuid.NewString()
	s := &Server{
		id:        id,
		socket:    cx.Socket,
		session:   SessionName(cx.Socket),
		host:      host,
		opts:      cx.Config.Clone(),
		files:     cx.ConfigFiles,
		environ:   cx.Environ,
		command:   cx.Command,
		dir:       cx.Dir,
		log:       cx.Logger.WithComponent("server").WithField("server", id),
		metrics:   cx.Metrics,
		table:     cx.Table,
		bindings:  command.DefaultBindings(cx.Table),
		overrides: make(map[string]string),
		arr:       arrange.New(),
		comp:      render.NewCompositor(),
		clients:   make(map[string]*ClientConnection),
		killed:    make(map[pane.ID]bool),
		paneOut:   make(chan pane.Output, 64),
		events:    make(chan clientEvent, 64),
		accepts:   make(chan net.Conn),
		reloads:   make(chan reload, 1),
		stop:      make(chan struct{}),
	}
	s.arr.BaseIndex = s.opts.BaseIndex
	s.renderTimer = time.NewTimer(time.Hour)
	s.renderTimer.Stop()
	return s
}

// Run listens on the socket, starts the first window and serves until
// ctx is done, kill-server runs or the last pane exits.
func (s *Server) Run(ctx context.Context) error {
	ln, err := listen(s.socket)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.pool = worker.New(ctx, s.opts.WorkerPoolSize)

	s.log.Info("server started", "socket", s.socket, "pid", os.Getpid())

	if err := s.newWindow(s.command, s.dir, ""); err != nil {
		s.pool.Close()
		_ = ln.Close()
		return err
	}

	go s.acceptLoop(ln)
	go func() {
		err := config.Watch(ctx, s.files, s.environ, func(o *config.Options, err error) {
			select {
			case s.reloads <- reload{opts: o, err: err}:
			case <-ctx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("config watch stopped", "err", err)
		}
	}()

	s.loop(ctx)
	s.shutdown(ln)
	return nil
}

// loop is the event loop. Each event runs to completion before the next.
func (s *Server) loop(ctx context.Context) {
	status := time.NewTicker(statusInterval)
	defer status.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.exitReason == "" {
				s.exitReason = "interrupted"
			}
			return
		case out := <-s.paneOut:
			s.handlePaneOutput(out)
		case ev := <-s.events:
			s.handleClientEvent(ctx, ev)
		case conn := <-s.accepts:
			s.addClient(conn)
		case res := <-s.pool.Results():
			s.handleResult(res)
		case r := <-s.reloads:
			s.handleReload(r)
		case <-s.renderTimer.C:
			s.render()
		case now := <-status.C:
			s.tick(now)
		}
	}
}

// exit ends the loop after the current event.
func (s *Server) exit(reason string) {
	if s.exitReason == "" {
		s.exitReason = reason
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) shutdown(ln *listener) {
	s.log.Info("server stopping", "reason", s.exitReason)
	close(s.stop)
	if err := ln.Close(); err != nil {
		s.log.Warn("closing socket", "err", err)
	}

	clients := make([]*ClientConnection, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
		s.detach(c, true)
	}
	for _, c := range clients {
		<-c.done()
	}

	for _, p := range s.arr.Panes() {
		_ = p.Kill()
		p.Close()
	}
	s.pool.Close()
	s.renderTimer.Stop()
	s.log.Info("server stopped", s.metrics.Snapshot().Fields()...)
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "err", err)
			select {
			case <-s.stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		select {
		case s.accepts <- conn:
		case <-s.stop:
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) addClient(conn net.Conn) {
	c := newClientConnection(conn, s.log, s.metrics)
	s.clients[c.id] = c
	s.metrics.ClientAccepted()
	c.log.Debug("client connected")
	go c.readLoop(s.events, s.stop)
}

func (s *Server) handleClientEvent(ctx context.Context, ev clientEvent) {
	c := ev.client
	if s.clients[c.id] != c {
		return
	}
	if ev.err != nil {
		var perr *muxerr.ProtocolError
		switch {
		case errors.As(ev.err, &perr):
			s.metrics.RecordProtocolError()
			c.log.Warn("dropping client", "err", ev.err)
		case !errors.Is(ev.err, io.EOF):
			c.log.Warn("client read failed", "err", ev.err)
		}
		s.detach(c, false)
		return
	}
	s.handlePacket(ctx, c, ev.packet)
}

// handlePacket applies one packet from c.
func (s *Server) handlePacket(ctx context.Context, c *ClientConnection, p protocol.Packet) {
	var inputBytes int
	defer func() { s.metrics.RecordPacketIn(inputBytes) }()

	switch p.Cmd {
	case protocol.CmdSize:
		rows, cols, err := p.Size()
		if err != nil {
			c.log.Warn("bad size packet", "err", err)
			return
		}
		s.resizeClient(c, cols, rows)
	case protocol.CmdIn:
		text, err := p.Text()
		if err != nil {
			c.log.Warn("bad in packet", "err", err)
			return
		}
		inputBytes = len(text)
		if c.attached {
			s.handleInput(ctx, c, []byte(text))
		}
	case protocol.CmdStartGUI:
		s.attach(c, p.StartGUI())
	case protocol.CmdRunCommand:
		rc, err := p.RunCommand()
		if err != nil {
			c.send(protocol.Out(err.Error() + "\n"))
		} else {
			s.runCommand(ctx, c, rc)
		}
		if !c.attached {
			s.detach(c, true)
		}
	}
}

func (s *Server) resizeClient(c *ClientConnection, cols, rows int) {
	c.cols, c.rows, c.sized = max(cols, 1), max(rows, 1), true
	if c.tty != nil {
		c.tty.SetSize(c.cols, c.rows)
		c.screen.Sync()
	}
	s.markDirty()
}

// attach starts the GUI of c.
func (s *Server) attach(c *ClientConnection, sg protocol.StartGUI) {
	if c.attached {
		return
	}
	if sg.DetachOthers {
		for _, o := range s.clients {
			if o != c && o.attached {
				s.detach(o, true)
			}
		}
	}
	c.term = sg.Term
	c.tty = render.NewTty(c.cols, c.rows, c.sendOut)
	c.raw = c.EnterMode(protocol.ModeRaw)
	scr, err := render.NewScreen(c.tty, c.term, s.opts.Mouse)
	if err != nil {
		c.log.Warn("client screen failed", "err", err)
		s.detach(c, true)
		return
	}
	c.screen = scr
	c.attached = true
	s.metrics.ClientAttached()
	c.log.Info("client attached", "term", c.term, "cols", c.cols, "rows", c.rows)
	s.markDirty()
}

// detach stops c's screen and closes its connection. When notify is set
// the client is told to restore its terminal first.
func (s *Server) detach(c *ClientConnection, notify bool) {
	if !notify {
		c.close(writeTimeout)
	}
	if c.screen != nil {
		c.screen.Fini()
		c.screen, c.tty = nil, nil
	}
	if c.attached {
		c.attached = false
		s.metrics.ClientDetached()
		c.log.Info("client detached")
	}
	c.raw.Release()
	c.close(writeTimeout)
	delete(s.clients, c.id)
	s.markDirty()
}

func (s *Server) attachedClients() []*ClientConnection {
	var out []*ClientConnection
	for _, c := range s.clients {
		if c.attached {
			out = append(out, c)
		}
	}
	return out
}

// viewport returns the smallest size across attached clients.
func (s *Server) viewport() (cols, rows int, ok bool) {
	for _, c := range s.clients {
		if !c.attached {
			continue
		}
		if !ok || c.cols < cols {
			cols = c.cols
		}
		if !ok || c.rows < rows {
			rows = c.rows
		}
		ok = true
	}
	return cols, rows, ok
}

// body returns the area panes are laid out in.
func (s *Server) body() arrange.Box {
	cols, rows, ok := s.viewport()
	if !ok {
		cols, rows = defaultCols, defaultRows
	}
	body, _ := render.Body(s.opts, cols, rows)
	return body
}

// layoutPanes sizes every pane to the box it gets in body.
func (s *Server) layoutPanes(body arrange.Box) {
	for _, w := range s.arr.Windows() {
		for id, box := range arrange.Layout(w, body).Panes {
			p := s.arr.Pane(id)
			if p == nil {
				continue
			}
			if err := p.Resize(box.W, box.H); err != nil {
				s.log.Warn("pane resize failed", "pane", id.String(), "err", err)
			}
		}
	}
}

// markDirty schedules a render within render-interval.
func (s *Server) markDirty() {
	if s.dirty {
		return
	}
	s.dirty = true
	s.renderTimer.Reset(s.opts.RenderInterval)
}

func (s *Server) render() {
	if !s.dirty {
		return
	}
	s.dirty = false
	cols, rows, ok := s.viewport()
	if !ok {
		return
	}
	if body, fits := render.Body(s.opts, cols, rows); fits {
		s.layoutPanes(body)
	}
	now := time.Now()
	for _, c := range s.attachedClients() {
		start := time.Now()
		s.comp.Draw(c.screen, s.arr, s.opts, c.status(s.session, s.host, now, cols, rows))
		c.screen.Show()
		s.metrics.RecordFrame(time.Since(start))
	}
}

// tick expires messages, refreshes automatic window names and redraws
// the status line.
func (s *Server) tick(now time.Time) {
	attached := s.attachedClients()
	if len(attached) == 0 {
		return
	}
	for _, c := range attached {
		c.expireMessage(now)
	}
	for _, w := range s.arr.Windows() {
		if p := s.arr.Pane(w.ActivePane()); p != nil {
			w.SetAutoName(p.ForegroundName())
		}
	}
	if s.opts.Status {
		s.markDirty()
	}
}

// spawn starts a pane running argv in dir.
func (s *Server) spawn(argv []string, dir string) (*pane.Pane, error) {
	if len(argv) == 0 {
		argv = []string{s.opts.DefaultShell}
	}
	body := s.body()
	s.nextPane++
	id := pane.ID(s.nextPane)
	p, err := pane.Start(id, pane.Config{
		Argv:         argv,
		Dir:          dir,
		Term:         s.opts.DefaultTerminal,
		Socket:       s.socket,
		Cols:         max(body.W, 1),
		Rows:         max(body.H, 1),
		HistoryLimit: s.opts.HistoryLimit,
		Logger:       s.log,
		OnBell:       s.bell,
		OnTitle:      func(pane.ID, string) { s.markDirty() },
	}, s.paneOut)
	if err != nil {
		return nil, err
	}
	s.metrics.PaneSpawned()
	return p, nil
}

// shellCommand runs a command typed by the user through the default
// shell.
func (s *Server) shellCommand(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return []string{s.opts.DefaultShell, "-c", strings.Join(args, " ")}
}

// newWindow spawns argv in a new window and makes it active.
func (s *Server) newWindow(argv []string, dir, name string) error {
	p, err := s.spawn(argv, dir)
	if err != nil {
		return err
	}
	w := s.arr.NewWindow(p, name)
	s.log.Debug("window created", "window", s.arr.Index(w), "pane", p.ID().String())
	s.markDirty()
	return nil
}

func (s *Server) bell(pane.ID) {
	if !s.opts.Bell {
		return
	}
	for _, c := range s.attachedClients() {
		_ = c.screen.Beep()
	}
}

func (s *Server) handlePaneOutput(out pane.Output) {
	p := s.arr.Pane(out.Pane)
	if p == nil {
		return
	}
	if len(out.Data) > 0 {
		p.Feed(out.Data)
		s.metrics.RecordPaneOutput(len(out.Data))
		s.markDirty()
	}
	if out.Err != nil {
		s.reap(p)
	}
}

// reap waits for p's child on the pool once its output has ended.
func (s *Server) reap(p *pane.Pane) {
	err := s.pool.Submit("wait "+p.ID().String(), func(context.Context) (any, error) {
		return exited{pane: p.ID(), status: p.Wait()}, nil
	})
	if err != nil {
		s.log.Warn("cannot reap pane", "pane", p.ID().String(), "err", err)
	}
}

func (s *Server) handleResult(res worker.Result) {
	if res.Err != nil {
		s.log.Warn("job failed", "job", res.Name, "err", res.Err)
		return
	}
	if ex, ok := res.Value.(exited); ok {
		s.paneExited(ex.pane, ex.status)
	}
}

// paneExited removes a pane whose child has exited, or keeps it dead when
// remain-on-exit is set.
func (s *Server) paneExited(id pane.ID, st process.ExitStatus) {
	p := s.arr.Pane(id)
	if p == nil {
		return
	}
	s.metrics.PaneReaped()
	s.log.Info("pane exited", "pane", id.String(), "status", st.String())
	if s.opts.RemainOnExit && !s.killed[id] {
		p.MarkDead(st)
		s.markDirty()
		return
	}
	s.removePane(p)
}

func (s *Server) removePane(p *pane.Pane) {
	p.Close()
	delete(s.killed, p.ID())
	s.arr.RemovePane(p.ID())
	s.markDirty()
	if s.arr.Empty() && s.opts.ExitEmpty {
		s.exit("no panes left")
	}
}

// killPane hangs up a pane's child. A dead pane is removed at once.
func (s *Server) killPane(p *pane.Pane) {
	if p.Dead() || p.Process() == nil {
		s.removePane(p)
		return
	}
	s.killed[p.ID()] = true
	if err := p.Kill(); err != nil {
		s.log.Warn("kill pane failed", "pane", p.ID().String(), "err", err)
	}
}

func (s *Server) handleReload(r reload) {
	if r.err != nil {
		s.log.Warn("config reload failed", "err", r.err)
		s.broadcast(fmt.Sprintf("config: %v", r.err))
		if r.opts == nil {
			return
		}
	}
	next := r.opts.Clone()
	for name, value := range s.overrides {
		if err := next.Set(name, value); err != nil {
			s.log.Warn("runtime option dropped", "option", name, "err", err)
		}
	}
	s.applyOptions(next)
	s.log.Info("config reloaded")
}

// applyOptions installs o and applies what changed to running state.
func (s *Server) applyOptions(o *config.Options) {
	old := s.opts
	s.opts = o
	for _, line := range o.Diff(old) {
		s.log.Debug("option changed", "option", line)
	}
	s.arr.BaseIndex = o.BaseIndex
	if o.LogLevel != old.LogLevel {
		s.log.SetLevel(o.LogLevel)
	}
	if o.Mouse != old.Mouse {
		for _, c := range s.attachedClients() {
			render.SetMouse(c.screen, o.Mouse)
		}
	}
	if o.HistoryLimit != old.HistoryLimit {
		for _, p := range s.arr.Panes() {
			p.Emulator().SetHistoryLimit(o.HistoryLimit)
		}
	}
	s.markDirty()
}

// broadcast shows text to every attached client.
func (s *Server) broadcast(text string) {
	for _, c := range s.attachedClients() {
		c.setMessage(text, s.opts.DisplayTime)
	}
	s.markDirty()
}
