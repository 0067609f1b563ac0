// Package render draws an arrangement into a tcell screen, one screen per
// attached client. tcell keeps the previous frame and emits only the
// escape sequences needed to reach the new one.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/terminal"
)

// Smallest usable viewport. Anything smaller shows TooSmallText.
const (
	MinCols = 10
	MinRows = 2
)

// TooSmallText replaces the arrangement in a viewport below the minimum.
const TooSmallText = "need bigger terminal"

// Status is the per-client state drawn around the arrangement.
type Status struct {
	Session string
	Host    string
	Now     time.Time

	// Cols and Rows are the size shared by all attached clients. Zero
	// means the screen's own size.
	Cols, Rows int

	// Message replaces the status line. A message of several lines is
	// drawn over the top of the body instead.
	Message string

	// While Prompting, the status line shows Prompt followed by Input.
	Prompting bool
	Prompt    string
	Input     string
}

// Body returns the box panes are laid out in for a cols x rows viewport.
// It reports false when the viewport is too small to draw.
func Body(opts *config.Options, cols, rows int) (arrange.Box, bool) {
	if cols < MinCols || rows < MinRows {
		return arrange.Box{}, false
	}
	body := arrange.Box{W: cols, H: rows}
	if opts.Status {
		body.H--
		if opts.StatusPosition == config.StatusTop {
			body.Y = 1
		}
	}
	return body, true
}

// FormatContext returns the values # sequences expand to for window w.
func FormatContext(a *arrange.Arrangement, w *arrange.Window, st Status) config.FormatContext {
	fc := config.FormatContext{Session: st.Session, Host: st.Host, Now: st.Now}
	if w == nil {
		return fc
	}
	fc.WindowIndex = a.Index(w)
	fc.WindowName = w.Name()
	fc.WindowFlags = a.Flags(w)
	for i, id := range w.Panes() {
		if id != w.ActivePane() {
			continue
		}
		fc.PaneIndex = i
		if p := a.Pane(id); p != nil {
			fc.PaneTitle = p.Title()
		}
	}
	return fc
}

// Compositor draws frames. It caches parsed style options and is not
// safe for concurrent use.
type Compositor struct {
	styles styleCache
}

// NewCompositor returns a compositor.
func NewCompositor() *Compositor {
	return &Compositor{styles: make(styleCache)}
}

// Draw paints the active window of a and the status line into s and
// stores the window's geometry in a. It does not call Show.
func (c *Compositor) Draw(s tcell.Screen, a *arrange.Arrangement, opts *config.Options, st Status) {
	if st.Now.IsZero() {
		st.Now = time.Now()
	}
	sw, sh := s.Size()
	cols, rows := st.Cols, st.Rows
	if cols <= 0 || cols > sw {
		cols = sw
	}
	if rows <= 0 || rows > sh {
		rows = sh
	}

	s.SetStyle(tcell.StyleDefault)
	s.Clear()
	s.HideCursor()

	body, ok := Body(opts, cols, rows)
	if !ok {
		drawText(s, 0, 0, cols, TooSmallText, tcell.StyleDefault)
		return
	}

	if w := a.ActiveWindow(); w != nil {
		geo := arrange.Layout(w, body)
		a.SetGeometry(geo)
		c.drawWindow(s, a, w, geo, opts, st.Now)
	}

	statusRow := -1
	switch {
	case opts.Status && opts.StatusPosition == config.StatusTop:
		statusRow = 0
	case opts.Status:
		statusRow = rows - 1
	case st.Prompting || (st.Message != "" && !strings.Contains(st.Message, "\n")):
		// Without a status line, prompts and messages use the last row.
		statusRow = rows - 1
	}
	if statusRow >= 0 {
		c.drawStatus(s, a, opts, st, cols, statusRow)
	}
	if strings.Contains(st.Message, "\n") && !st.Prompting {
		c.drawOverlay(s, body, cols, st.Message, c.styles.get(opts.StatusStyle))
	}
}

func (c *Compositor) drawWindow(s tcell.Screen, a *arrange.Arrangement, w *arrange.Window, geo arrange.Geometry, opts *config.Options, now time.Time) {
	accent := c.styles.get(opts.PaneActiveBorderStyle)
	for id, box := range geo.Panes {
		if p := a.Pane(id); p != nil {
			drawPane(s, p, box, accent, now)
		}
	}

	activeBox, ok := geo.Panes[w.ActivePane()]
	if !w.Zoomed() && w.Root() != nil {
		drawBorders(s, w.Root(), geo.Panes, activeBox,
			c.styles.get(opts.PaneBorderStyle), accent)
	}

	p := a.Pane(w.ActivePane())
	if !ok || p == nil || p.ClockMode || p.Dead() {
		return
	}
	scr := p.Emulator().Screen()
	if !scr.CursorVisible() || scr.ViewOffset() != 0 {
		return
	}
	x, y := scr.Cursor()
	if x < activeBox.W && y < activeBox.H {
		s.SetCursorStyle(tcell.CursorStyle(scr.CursorStyle()))
		s.ShowCursor(activeBox.X+x, activeBox.Y+y)
	}
}

// drawPane copies the visible cells of p into box.
func drawPane(s tcell.Screen, p *pane.Pane, box arrange.Box, accent tcell.Style, now time.Time) {
	if p.ClockMode {
		drawClock(s, box, accent, now)
		return
	}
	emu := p.Emulator()
	scr := emu.Screen()
	reverse := emu.Modes().ReverseVideo
	for y := 0; y < box.H; y++ {
		line := scr.VisibleLine(y)
		if line == nil {
			continue
		}
		for x := 0; x < box.W && x < len(line.Cells); x++ {
			cell := line.Cells[x]
			if cell.IsContinuation() {
				continue
			}
			r, comb := cell.Rune, cell.Comb
			if r == 0 || cell.Style.Attrs.Has(terminal.AttrHidden) || (cell.Width == 2 && x+1 >= box.W) {
				r, comb = ' ', nil
			}
			s.SetContent(box.X+x, box.Y+y, r, comb, CellStyle(cell.Style, reverse))
		}
	}
	if p.Dead() {
		msg := fmt.Sprintf("Pane is dead (%s)", p.ExitStatus())
		row := box.Y + box.H - 1
		for x := box.X; x < box.X+box.W; x++ {
			s.SetContent(x, row, ' ', nil, tcell.StyleDefault.Reverse(true))
		}
		drawText(s, box.X, row, box.X+box.W, msg, tcell.StyleDefault.Reverse(true))
	}
}

// Border connection bits.
const (
	lineUp uint8 = 1 << iota
	lineDown
	lineLeft
	lineRight
)

var borderGlyphs = map[uint8]rune{
	lineUp | lineDown:                        '│',
	lineLeft | lineRight:                     '─',
	lineUp | lineDown | lineLeft | lineRight: '┼',
	lineUp | lineDown | lineRight:            '├',
	lineUp | lineDown | lineLeft:             '┤',
	lineLeft | lineRight | lineDown:          '┬',
	lineLeft | lineRight | lineUp:            '┴',
}

type point struct{ x, y int }

// drawBorders draws the separators between the children of every split
// node. Cells around the active pane use accent.
func drawBorders(s tcell.Screen, root *arrange.Split, panes map[pane.ID]arrange.Box, active arrange.Box, normal, accent tcell.Style) {
	lines := make(map[point]uint8)
	var walk func(*arrange.Split)
	walk = func(n *arrange.Split) {
		if n.IsLeaf() {
			return
		}
		children := n.Children()
		for i, child := range children {
			walk(child)
			if i == len(children)-1 {
				continue
			}
			cb, ok := bounds(child, panes)
			nb, _ := bounds(n, panes)
			if !ok {
				continue
			}
			if n.Orientation() == arrange.Horizontal {
				x := cb.X + cb.W
				for y := nb.Y; y < nb.Y+nb.H; y++ {
					lines[point{x, y}] |= lineUp | lineDown
				}
			} else {
				y := cb.Y + cb.H
				for x := nb.X; x < nb.X+nb.W; x++ {
					lines[point{x, y}] |= lineLeft | lineRight
				}
			}
		}
	}
	walk(root)

	ring := arrange.Box{X: active.X - 1, Y: active.Y - 1, W: active.W + 2, H: active.H + 2}
	for pt, bits := range lines {
		if bits&lineUp != 0 {
			if lines[point{pt.x - 1, pt.y}]&lineRight != 0 {
				bits |= lineLeft
			}
			if lines[point{pt.x + 1, pt.y}]&lineLeft != 0 {
				bits |= lineRight
			}
		} else {
			if lines[point{pt.x, pt.y - 1}]&lineDown != 0 {
				bits |= lineUp
			}
			if lines[point{pt.x, pt.y + 1}]&lineUp != 0 {
				bits |= lineDown
			}
		}
		glyph, ok := borderGlyphs[bits]
		if !ok {
			glyph = '┼'
		}
		style := normal
		if ring.Contains(pt.x, pt.y) {
			style = accent
		}
		s.SetContent(pt.x, pt.y, glyph, nil, style)
	}
}

// bounds returns the box covering every pane under n.
func bounds(n *arrange.Split, panes map[pane.ID]arrange.Box) (arrange.Box, bool) {
	if n.IsLeaf() {
		b, ok := panes[n.Pane()]
		return b, ok
	}
	var out arrange.Box
	found := false
	for _, c := range n.Children() {
		b, ok := bounds(c, panes)
		if !ok {
			continue
		}
		if !found {
			out, found = b, true
			continue
		}
		x0, y0 := min(out.X, b.X), min(out.Y, b.Y)
		x1, y1 := max(out.X+out.W, b.X+b.W), max(out.Y+out.H, b.Y+b.H)
		out = arrange.Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
	}
	return out, found
}

func (c *Compositor) drawStatus(s tcell.Screen, a *arrange.Arrangement, opts *config.Options, st Status, cols, y int) {
	style := c.styles.get(opts.StatusStyle)
	for x := 0; x < cols; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}

	switch {
	case st.Prompting:
		text := st.Prompt + st.Input
		x := drawText(s, 0, y, cols, text, style)
		s.ShowCursor(min(x, cols-1), y)
		return
	case st.Message != "" && !strings.Contains(st.Message, "\n"):
		drawText(s, 0, y, cols, st.Message, style)
		return
	}

	fc := FormatContext(a, a.ActiveWindow(), st)
	left := Truncate(config.Expand(opts.StatusLeft, fc), opts.StatusLeftLength)
	right := Truncate(config.Expand(opts.StatusRight, fc), opts.StatusRightLength)

	x := drawText(s, 0, y, cols, left, style)
	rightX := cols - uniseg.StringWidth(right)
	limit := cols
	if rightX > x {
		limit = rightX - 1
	}
	for _, w := range a.Windows() {
		format := opts.WindowStatusFormat
		if w == a.ActiveWindow() {
			format = opts.WindowStatusCurrentFormat
		}
		x = drawText(s, x, y, limit, config.Expand(format, FormatContext(a, w, st)), style)
		x = drawText(s, x, y, limit, " ", style)
	}
	if rightX >= x {
		drawText(s, rightX, y, cols, right, style)
	}
}

// drawOverlay draws the lines of msg over the top of the body.
func (c *Compositor) drawOverlay(s tcell.Screen, body arrange.Box, cols int, msg string, style tcell.Style) {
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	if len(lines) > body.H {
		lines = lines[len(lines)-body.H:]
	}
	for i, line := range lines {
		y := body.Y + i
		for x := 0; x < cols; x++ {
			s.SetContent(x, y, ' ', nil, style)
		}
		drawText(s, 0, y, cols, line, style)
	}
}

// drawText draws text from column x, stopping before maxX, and returns
// the column after the last cell drawn. Control characters are skipped.
func drawText(s tcell.Screen, x, y, maxX int, text string, style tcell.Style) int {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		w := g.Width()
		if w <= 0 {
			continue
		}
		if x+w > maxX {
			break
		}
		rs := g.Runes()
		s.SetContent(x, y, rs[0], rs[1:], style)
		x += w
	}
	return x
}

// Truncate cuts s to at most width cells without splitting a grapheme
// cluster.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > width {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	return b.String()
}
