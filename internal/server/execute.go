package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/command"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/protocol"
	"github.com/dshills/muxstorm/internal/render"
)

type ctxKey int

const (
	clientKey ctxKey = iota
	paneKey
)

// withClient records the client a command came from.
func withClient(ctx context.Context, c *ClientConnection) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

func clientFrom(ctx context.Context) *ClientConnection {
	c, _ := ctx.Value(clientKey).(*ClientConnection)
	return c
}

// withPane makes commands act on id instead of the active pane.
func withPane(ctx context.Context, id pane.ID) context.Context {
	return context.WithValue(ctx, paneKey, id)
}

var _ command.Executor = (*Server)(nil)

// Execute runs cmd on the event loop's goroutine. Failures come back as
// *muxerr.CommandError.
func (s *Server) Execute(ctx context.Context, cmd command.Command) error {
	err := s.execute(ctx, cmd)
	if err != nil && !muxerr.IsCommandError(err) {
		err = muxerr.NewCommandError(cmd.Name(), "%v", err)
	}
	s.metrics.RecordCommand(err)
	s.log.Debug("command", "command", cmd.String(), "err", err)
	s.markDirty()
	return err
}

// run executes a command typed or bound by an attached client and shows
// any error on its status line.
func (s *Server) run(ctx context.Context, c *ClientConnection, cmd command.Command) {
	if err := s.Execute(withClient(ctx, c), cmd); err != nil && c.attached {
		c.setMessage(err.Error(), s.opts.DisplayTime)
	}
}

// runCommand executes a run-command packet. Output and errors go back as
// out packets.
func (s *Server) runCommand(ctx context.Context, c *ClientConnection, rc protocol.RunCommand) {
	cmd, err := s.table.Parse(rc.Command)
	if err == nil {
		ctx = withClient(ctx, c)
		if rc.Pane != 0 {
			ctx = withPane(ctx, pane.ID(rc.Pane))
		}
		err = s.Execute(ctx, cmd)
	}
	if err != nil {
		c.send(protocol.Out(err.Error() + "\n"))
	}
}

// message shows text to the client a command came from.
func (s *Server) message(ctx context.Context, text string) {
	c := clientFrom(ctx)
	switch {
	case c == nil:
		s.log.Info(text)
	case c.attached:
		c.setMessage(text, s.opts.DisplayTime)
		s.markDirty()
	default:
		c.send(protocol.Out(text + "\n"))
	}
}

// target returns the pane a command acts on and its window.
func (s *Server) target(ctx context.Context) (*pane.Pane, *arrange.Window, error) {
	if id, ok := ctx.Value(paneKey).(pane.ID); ok {
		if p := s.arr.Pane(id); p != nil {
			return p, s.arr.WindowOf(id), nil
		}
	}
	w := s.arr.ActiveWindow()
	if w == nil {
		return nil, nil, muxerr.ErrNoWindows
	}
	return s.arr.Pane(w.ActivePane()), w, nil
}

func (s *Server) execute(ctx context.Context, cmd command.Command) error {
	switch cmd.Kind {
	case command.NewWindow:
		return s.execNewWindow(ctx, cmd.Args.(*command.NewWindowArgs))
	case command.KillServer:
		s.exit("kill-server")
		return nil
	case command.SetOption:
		return s.execSetOption(cmd.Args.(*command.SetOptionArgs))
	case command.ShowOptions:
		return s.execShowOptions(ctx, cmd.Args.(*command.ShowOptionsArgs))
	case command.BindKey:
		a := cmd.Args.(*command.BindKeyArgs)
		s.bindings.Bind(keyTable(a.Root), a.Key, a.Command)
		return nil
	case command.UnbindKey:
		a := cmd.Args.(*command.UnbindKeyArgs)
		if !s.bindings.Unbind(keyTable(a.Root), a.Key) {
			return muxerr.NewCommandError(cmd.Name(), "%s is not bound", a.Key)
		}
		return nil
	case command.DetachClient:
		s.execDetach(ctx, cmd.Args.(*command.DetachClientArgs))
		return nil
	case command.SuspendClient:
		c := clientFrom(ctx)
		if c == nil || !c.attached {
			return muxerr.NewCommandError(cmd.Name(), "no client to suspend")
		}
		c.send(protocol.Suspend())
		return nil
	case command.CommandPrompt:
		a := cmd.Args.(*command.CommandPromptArgs)
		c := clientFrom(ctx)
		if c == nil || !c.attached {
			return muxerr.NewCommandError(cmd.Name(), "no client to prompt")
		}
		c.prompt = &prompt{text: a.Prompt, template: a.Template}
		return nil
	case command.ListWindows:
		s.message(ctx, strings.Join(s.listWindows(), "\n"))
		return nil
	case command.ListKeys:
		var lines []string
		for _, b := range s.bindings.List() {
			lines = append(lines, b.String())
		}
		s.message(ctx, strings.Join(lines, "\n"))
		return nil
	case command.ListCommands:
		var lines []string
		for _, name := range s.table.Names() {
			if help, ok := s.table.HelpText(name); ok {
				lines = append(lines, help)
			}
		}
		s.message(ctx, strings.Join(lines, "\n"))
		return nil
	case command.DisplayMessage:
		a := cmd.Args.(*command.DisplayMessageArgs)
		_, w, _ := s.target(ctx)
		fc := render.FormatContext(s.arr, w, render.Status{Session: s.session, Host: s.host, Now: time.Now()})
		s.message(ctx, config.Expand(a.Text, fc))
		return nil
	}

	// Everything else needs a pane.
	p, w, err := s.target(ctx)
	if err != nil {
		return err
	}
	switch cmd.Kind {
	case command.SplitWindow:
		return s.execSplitWindow(p, w, cmd.Args.(*command.SplitWindowArgs))
	case command.KillPane:
		s.killPane(p)
	case command.KillWindow:
		for _, id := range w.Panes() {
			if p := s.arr.Pane(id); p != nil {
				s.killPane(p)
			}
		}
	case command.RenameWindow:
		return s.arr.RenameWindow(w.ID(), cmd.Args.(*command.RenameArgs).Name)
	case command.RenamePane:
		return s.arr.RenamePane(p.ID(), cmd.Args.(*command.RenameArgs).Name)
	case command.SelectPane:
		return s.execSelectPane(cmd.Args.(*command.SelectPaneArgs))
	case command.LastPane:
		return s.arr.LastPane()
	case command.SelectWindow:
		return s.arr.SelectWindow(cmd.Args.(*command.SelectWindowArgs).Index)
	case command.NextWindow:
		s.arr.NextWindow()
	case command.PreviousWindow:
		s.arr.PreviousWindow()
	case command.LastWindow:
		return s.arr.LastWindow()
	case command.ResizePane:
		return s.execResizePane(w, cmd.Args.(*command.ResizePaneArgs))
	case command.SelectLayout:
		a := cmd.Args.(*command.SelectLayoutArgs)
		layout := a.Layout
		if a.Reapply {
			if w.Layout() == arrange.LayoutCustom {
				return muxerr.NewCommandError(cmd.Name(), "no layout to reapply")
			}
			layout = w.Layout()
		}
		return s.arr.SelectLayout(w.ID(), layout.String())
	case command.NextLayout:
		return s.arr.NextLayout(w.ID())
	case command.PreviousLayout:
		return s.arr.PreviousLayout(w.ID())
	case command.RotateWindow:
		return s.arr.Rotate(w.ID(), cmd.Args.(*command.RotateWindowArgs).Reverse)
	case command.SendSignal:
		return p.Signal(cmd.Args.(*command.SendSignalArgs).Signal)
	case command.SendKeys:
		appCursor := p.Emulator().Modes().AppCursor
		for _, k := range cmd.Args.(*command.SendKeysArgs).Keys {
			if err := p.Write(keys.Encode(k, appCursor), false); err != nil {
				return err
			}
		}
	case command.SendPrefix:
		return p.Write(keys.Encode(s.opts.Prefix, p.Emulator().Modes().AppCursor), false)
	case command.ClockMode:
		p.ClockMode = !p.ClockMode
	case command.ListPanes:
		s.message(ctx, strings.Join(s.listPanes(w), "\n"))
	default:
		return muxerr.NewCommandError(cmd.Name(), "not supported")
	}
	return nil
}

func keyTable(root bool) command.KeyTable {
	if root {
		return command.RootTable
	}
	return command.PrefixTable
}

func (s *Server) execSplitWindow(p *pane.Pane, w *arrange.Window, a *command.SplitWindowArgs) error {
	prev := w.ActivePane()
	np, err := s.spawn(s.shellCommand(a.Command), p.Cwd())
	if err != nil {
		return err
	}
	o := arrange.Vertical
	if a.Horizontal {
		o = arrange.Horizontal
	}
	if err := s.arr.AddPane(w.ID(), p.ID(), np, o); err != nil {
		s.discard(np)
		return err
	}
	if a.Detached {
		return s.arr.FocusPane(prev)
	}
	return nil
}

func (s *Server) execNewWindow(ctx context.Context, a *command.NewWindowArgs) error {
	dir := s.dir
	if p, _, err := s.target(ctx); err == nil {
		if cwd := p.Cwd(); cwd != "" {
			dir = cwd
		}
	}
	if err := s.newWindow(s.shellCommand(a.Command), dir, a.Name); err != nil {
		return err
	}
	if a.Detached {
		// A first window has nothing to go back to.
		_ = s.arr.LastWindow()
	}
	return nil
}

// discard hangs up a pane that never joined the arrangement and reaps it.
func (s *Server) discard(p *pane.Pane) {
	_ = p.Kill()
	p.Close()
	s.reap(p)
}

func (s *Server) execSelectPane(a *command.SelectPaneArgs) error {
	switch a.Target {
	case command.TargetDirection:
		w := s.arr.ActiveWindow()
		s.arr.MoveFocus(a.Direction, arrange.Layout(w, s.body()))
	case command.TargetLast:
		return s.arr.LastPane()
	case command.TargetNext:
		s.arr.FocusNext()
	case command.TargetPrevious:
		w := s.arr.ActiveWindow()
		ids := w.Panes()
		for i, id := range ids {
			if id == w.ActivePane() {
				return s.arr.FocusPane(ids[(i+len(ids)-1)%len(ids)])
			}
		}
	case command.TargetPane:
		if err := s.arr.FocusPane(pane.ID(a.Pane)); err != nil {
			return fmt.Errorf("pane %d: %w", a.Pane, err)
		}
	}
	return nil
}

func (s *Server) execResizePane(w *arrange.Window, a *command.ResizePaneArgs) error {
	if a.Zoom {
		return s.arr.ToggleZoom(w.ID())
	}
	var up, down, left, right int
	switch a.Direction {
	case arrange.Up:
		up = a.Amount
	case arrange.Down:
		down = a.Amount
	case arrange.Left:
		left = a.Amount
	case arrange.Right:
		right = a.Amount
	}
	return s.arr.ResizeActivePane(up, down, left, right)
}

func (s *Server) execSetOption(a *command.SetOptionArgs) error {
	value := a.Value
	if a.Unset {
		v, err := config.Default().Get(a.Name)
		if err != nil {
			return err
		}
		value = v
	}
	next := s.opts.Clone()
	if err := next.Set(a.Name, value); err != nil {
		return err
	}
	if a.Unset {
		delete(s.overrides, a.Name)
	} else {
		s.overrides[a.Name] = value
	}
	s.applyOptions(next)
	return nil
}

func (s *Server) execShowOptions(ctx context.Context, a *command.ShowOptionsArgs) error {
	if a.Name == "" {
		s.message(ctx, strings.Join(s.opts.Lines(), "\n"))
		return nil
	}
	v, err := s.opts.Get(a.Name)
	if err != nil {
		return err
	}
	s.message(ctx, a.Name+" "+v)
	return nil
}

func (s *Server) execDetach(ctx context.Context, a *command.DetachClientArgs) {
	c := clientFrom(ctx)
	if c != nil && c.attached && !a.All {
		s.detach(c, true)
		return
	}
	// From a run-command client, or with -a, detach the attached clients.
	for _, o := range s.attachedClients() {
		if o != c {
			s.detach(o, true)
		}
	}
}

func (s *Server) listWindows() []string {
	var lines []string
	for _, w := range s.arr.Windows() {
		n := len(w.Panes())
		unit := "panes"
		if n == 1 {
			unit = "pane"
		}
		lines = append(lines, fmt.Sprintf("%d: %s%s (%d %s)", s.arr.Index(w), w.Name(), s.arr.Flags(w), n, unit))
	}
	return lines
}

func (s *Server) listPanes(w *arrange.Window) []string {
	var lines []string
	for i, id := range w.Panes() {
		p := s.arr.Pane(id)
		if p == nil {
			continue
		}
		cols, rows := p.Size()
		line := fmt.Sprintf("%d: [%dx%d] %s", i, cols, rows, id)
		if id == w.ActivePane() {
			line += " (active)"
		}
		if p.Dead() {
			line += " (dead)"
		}
		lines = append(lines, line)
	}
	return lines
}
