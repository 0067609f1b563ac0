package server

import (
	"context"
	"strings"

	"github.com/dshills/muxstorm/internal/command"
	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/terminal"
)

// wheelLines is how far one wheel notch scrolls a pane's history.
const wheelLines = 3

var cancelKey = keys.MustParse("C-c")

// Wheel button numbers of a mouse report.
const (
	wheelUp   = 64
	wheelDown = 65
)

// handleInput routes raw input from an attached client.
func (s *Server) handleInput(ctx context.Context, c *ClientConnection, data []byte) {
	for _, ev := range c.keys.Feed(data) {
		if s.clients[c.id] != c || !c.attached {
			// A binding detached the client.
			return
		}
		s.handleKey(ctx, c, ev)
	}
}

func (s *Server) handleKey(ctx context.Context, c *ClientConnection, ev keys.Event) {
	if c.prompt != nil {
		s.promptKey(ctx, c, ev)
		return
	}
	if c.message != "" && ev.Key != keys.KeyMouse {
		sticky := c.messageUntil.IsZero()
		c.message = ""
		s.markDirty()
		if sticky {
			return
		}
	}
	if ev.Key == keys.KeyMouse {
		s.handleMouse(c, ev.Mouse)
		return
	}

	if c.prefix {
		c.prefix = false
		if cmd, ok := s.bindings.Lookup(command.PrefixTable, ev); ok {
			s.run(ctx, c, cmd)
		}
		return
	}
	if ev.Equals(s.opts.Prefix) {
		c.prefix = true
		return
	}
	if cmd, ok := s.bindings.Lookup(command.RootTable, ev); ok {
		s.run(ctx, c, cmd)
		return
	}
	s.forward(c, ev)
}

// forward writes a key to the active pane, encoded for its modes.
func (s *Server) forward(c *ClientConnection, ev keys.Event) {
	p := s.arr.ActivePane()
	if p == nil || p.Dead() {
		return
	}
	if p.ClockMode {
		p.ClockMode = false
		s.markDirty()
		return
	}
	emu := p.Emulator()
	if scr := emu.Screen(); scr.ViewOffset() != 0 {
		scr.ResetView()
		s.markDirty()
	}

	var err error
	switch {
	case ev.Key == keys.KeyPaste:
		err = p.Write(ev.Raw, true)
	case ev.Raw != nil:
		err = p.Write(emu.EncodeKey(ev.Raw), false)
	default:
		err = p.Write(keys.Encode(ev, emu.Modes().AppCursor), false)
	}
	if err != nil {
		c.log.Debug("input dropped", "pane", p.ID().String(), "err", err)
	}
}

// promptKey edits the command prompt.
func (s *Server) promptKey(ctx context.Context, c *ClientConnection, ev keys.Event) {
	pr := c.prompt
	s.markDirty()
	switch {
	case ev.Key == keys.KeyEnter:
		c.prompt = nil
		line := strings.TrimSpace(string(pr.input))
		if pr.template != "" {
			line = strings.ReplaceAll(pr.template, "%%", line)
		}
		if line == "" {
			return
		}
		cmd, err := s.table.Parse(line)
		if err != nil {
			c.setMessage(err.Error(), s.opts.DisplayTime)
			return
		}
		s.run(ctx, c, cmd)
	case ev.Key == keys.KeyEscape || ev.Equals(cancelKey):
		c.prompt = nil
	case ev.Key == keys.KeyBackspace:
		if n := len(pr.input); n > 0 {
			pr.input = pr.input[:n-1]
		}
	case ev.Key == keys.KeyRune && !ev.Mod.Has(keys.ModCtrl) && !ev.Mod.Has(keys.ModMeta):
		pr.input = append(pr.input, ev.Rune)
	case ev.Key == keys.KeyPaste:
		text := strings.NewReplacer("\r", " ", "\n", " ").Replace(string(ev.Raw))
		pr.input = append(pr.input, []rune(text)...)
	}
}

// handleMouse focuses the pane under a click, then hands the report to
// the pane's application or scrolls its history.
func (s *Server) handleMouse(c *ClientConnection, m keys.Mouse) {
	w := s.arr.ActiveWindow()
	geo := s.arr.Geometry()
	if w == nil || geo.Window != w.ID() {
		return
	}
	var p *pane.Pane
	var x, y int
	for id, box := range geo.Panes {
		if box.Contains(m.X, m.Y) {
			p, x, y = s.arr.Pane(id), m.X-box.X, m.Y-box.Y
			break
		}
	}
	if p == nil {
		return
	}

	button := m.Button()
	if !m.Release && !m.Motion() && button <= 2 && p.ID() != w.ActivePane() {
		_ = s.arr.FocusPane(p.ID())
		s.markDirty()
	}

	emu := p.Emulator()
	if emu.WantsMouse() && !p.Dead() {
		emu.SendMouse(terminal.MouseEvent{
			Button: mouseButton(button),
			X:      x,
			Y:      y,
			Press:  !m.Release,
			Motion: m.Motion(),
			Shift:  m.Code&4 != 0,
			Meta:   m.Code&8 != 0,
			Ctrl:   m.Code&16 != 0,
		})
		return
	}
	if emu.Modes().AltScreen {
		return
	}
	switch button {
	case wheelUp:
		emu.Screen().ScrollView(wheelLines)
		s.markDirty()
	case wheelDown:
		emu.Screen().ScrollView(-wheelLines)
		s.markDirty()
	}
	c.log.Debug("mouse", "button", button, "x", m.X, "y", m.Y)
}

func mouseButton(b int) terminal.MouseButton {
	switch b {
	case 0:
		return terminal.MouseLeft
	case 1:
		return terminal.MouseMiddle
	case 2:
		return terminal.MouseRight
	case wheelUp:
		return terminal.MouseWheelUp
	case wheelDown:
		return terminal.MouseWheelDown
	default:
		return terminal.MouseNone
	}
}
