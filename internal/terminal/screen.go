package terminal

import "strings"

// Cursor shapes set by DECSCUSR.
const (
	CursorDefault = iota
	CursorBlinkBlock
	CursorSteadyBlock
	CursorBlinkUnderline
	CursorSteadyUnderline
	CursorBlinkBar
	CursorSteadyBar
)

const tabWidth = 8

// Screen is a grid of cells with a cursor.
//
// A Screen is not safe for concurrent use; it is owned by the goroutine
// feeding its Emulator.
type Screen struct {
	cols, rows int
	lines      []*Line

	cx, cy        int
	pendingWrap   bool
	cursorVisible bool
	cursorStyle   int

	pen Style

	// Scroll region, inclusive rows.
	top, bottom int

	originMode bool
	autoWrap   bool
	insertMode bool

	tabs  []bool
	saved savedCursor

	history    *History
	viewOffset int
}

type savedCursor struct {
	set         bool
	x, y        int
	pen         Style
	originMode  bool
	pendingWrap bool
}

// NewScreen creates a blank screen. Lines scrolled off the top of a full
// screen scroll region are pushed to history when it is non-nil.
func NewScreen(cols, rows int, history *History) *Screen {
	cols = max(cols, 1)
	rows = max(rows, 1)
	s := &Screen{
		cols:          cols,
		rows:          rows,
		cursorVisible: true,
		autoWrap:      true,
		bottom:        rows - 1,
		history:       history,
	}
	s.lines = make([]*Line, rows)
	for i := range s.lines {
		s.lines[i] = newLine(cols, Style{})
	}
	s.resetTabs()
	return s
}

// Size returns the screen width and height in cells.
func (s *Screen) Size() (cols, rows int) {
	return s.cols, s.rows
}

// Cursor returns the cursor column and row.
func (s *Screen) Cursor() (x, y int) {
	return s.cx, s.cy
}

// CursorVisible reports whether the cursor should be drawn.
func (s *Screen) CursorVisible() bool {
	return s.cursorVisible
}

// CursorStyle returns the DECSCUSR shape.
func (s *Screen) CursorStyle() int {
	return s.cursorStyle
}

// Pen returns the style applied to newly written cells.
func (s *Screen) Pen() Style {
	return s.pen
}

// ScrollRegion returns the inclusive scroll region rows.
func (s *Screen) ScrollRegion() (top, bottom int) {
	return s.top, s.bottom
}

// History returns the scrollback, or nil for the alternate screen.
func (s *Screen) History() *History {
	return s.history
}

// Line returns row y, or nil when out of range.
func (s *Screen) Line(y int) *Line {
	if y < 0 || y >= s.rows {
		return nil
	}
	return s.lines[y]
}

// Cell returns the cell at column x and row y. Out of range positions
// return an empty cell.
func (s *Screen) Cell(x, y int) Cell {
	l := s.Line(y)
	if l == nil || x < 0 || x >= len(l.Cells) {
		return EmptyCell()
	}
	return l.Cells[x]
}

// Text returns the visible screen as text, one line per row, with
// trailing blanks and trailing empty rows removed.
func (s *Screen) Text() string {
	rows := make([]string, s.rows)
	for i, l := range s.lines {
		rows[i] = l.Text()
	}
	return strings.TrimRight(strings.Join(rows, "\n"), "\n")
}

// ViewOffset returns how many lines the view is scrolled into history.
func (s *Screen) ViewOffset() int {
	return s.viewOffset
}

// ScrollView moves the view delta lines into history (positive) or back
// towards the live screen (negative).
func (s *Screen) ScrollView(delta int) {
	limit := 0
	if s.history != nil {
		limit = s.history.Len()
	}
	s.viewOffset = clamp(s.viewOffset+delta, 0, limit)
}

// ResetView returns the view to the live screen.
func (s *Screen) ResetView() {
	s.viewOffset = 0
}

// VisibleLine returns row y of the view, taking the view offset into
// account.
func (s *Screen) VisibleLine(y int) *Line {
	if s.viewOffset == 0 || s.history == nil {
		return s.Line(y)
	}
	idx := y - s.viewOffset
	if idx >= 0 {
		return s.Line(idx)
	}
	return s.history.Line(s.history.Len() + idx)
}

// Put writes r with the given display width at the cursor and advances
// it. Width 0 runes combine with the previous cell.
func (s *Screen) Put(r rune, width int) {
	if width == 0 {
		s.combine(r)
		return
	}
	if width > 2 {
		width = 2
	}
	if width == 2 && s.cols < 2 {
		width = 1
	}

	if s.pendingWrap && s.autoWrap {
		s.wrap()
	}
	s.pendingWrap = false

	if width == 2 && s.cx == s.cols-1 {
		if s.autoWrap {
			s.lines[s.cy].fill(s.cx, s.cols, s.pen)
			s.wrap()
		} else {
			s.cx--
		}
	}

	line := s.lines[s.cy]
	if s.insertMode {
		s.insertCells(line, s.cx, width)
	}
	line.Cells[s.cx] = Cell{Rune: r, Width: uint8(width), Style: s.pen}
	if width == 2 {
		line.Cells[s.cx+1] = Cell{Width: 0, Style: s.pen}
	}
	s.fixNeighbors(line, s.cx, s.cx+width)

	if s.cx+width >= s.cols {
		s.cx = s.cols - 1
		s.pendingWrap = true
	} else {
		s.cx += width
	}
}

func (s *Screen) wrap() {
	s.lines[s.cy].Wrapped = true
	s.cx = 0
	s.Index()
}

// fixNeighbors repairs wide glyphs cut by a write to [from, to).
func (s *Screen) fixNeighbors(l *Line, from, to int) {
	if from > 0 && l.Cells[from-1].Width == 2 && l.Cells[from].Width != 0 {
		l.Cells[from-1] = blank(l.Cells[from-1].Style)
	}
	if to < len(l.Cells) && l.Cells[to].Width == 0 {
		l.Cells[to] = blank(l.Cells[to].Style)
	}
}

func (s *Screen) combine(r rune) {
	x := s.cx
	if !s.pendingWrap {
		x--
	}
	if x < 0 {
		return
	}
	line := s.lines[s.cy]
	if line.Cells[x].Width == 0 && x > 0 {
		x--
	}
	c := &line.Cells[x]
	if len(c.Comb) < maxCombining {
		c.Comb = append(c.Comb, r)
	}
}

// MoveTo places the cursor at column x, row y. Rows are relative to the
// scroll region in origin mode.
func (s *Screen) MoveTo(x, y int) {
	minY, maxY := 0, s.rows-1
	if s.originMode {
		y += s.top
		minY, maxY = s.top, s.bottom
	}
	s.cx = clamp(x, 0, s.cols-1)
	s.cy = clamp(y, minY, maxY)
	s.pendingWrap = false
}

// MoveRelative moves the cursor by dx, dy. Vertical movement stops at the
// scroll region edge when the cursor starts inside it.
func (s *Screen) MoveRelative(dx, dy int) {
	minY, maxY := 0, s.rows-1
	if s.cy >= s.top && s.cy <= s.bottom {
		minY, maxY = s.top, s.bottom
	}
	s.cx = clamp(s.cx+dx, 0, s.cols-1)
	s.cy = clamp(s.cy+dy, minY, maxY)
	s.pendingWrap = false
}

// SetColumn moves the cursor to column x on the current row.
func (s *Screen) SetColumn(x int) {
	s.cx = clamp(x, 0, s.cols-1)
	s.pendingWrap = false
}

// SetRow moves the cursor to row y, honoring origin mode.
func (s *Screen) SetRow(y int) {
	s.MoveTo(s.cx, y)
}

// CarriageReturn moves the cursor to column 0.
func (s *Screen) CarriageReturn() {
	s.cx = 0
	s.pendingWrap = false
}

// Backspace moves the cursor one column left.
func (s *Screen) Backspace() {
	if s.pendingWrap {
		s.pendingWrap = false
		return
	}
	if s.cx > 0 {
		s.cx--
	}
}

// Index moves the cursor down, scrolling at the bottom of the region.
func (s *Screen) Index() {
	switch {
	case s.cy == s.bottom:
		s.ScrollUp(1)
	case s.cy < s.rows-1:
		s.cy++
	}
	s.pendingWrap = false
}

// ReverseIndex moves the cursor up, scrolling at the top of the region.
func (s *Screen) ReverseIndex() {
	switch {
	case s.cy == s.top:
		s.ScrollDown(1)
	case s.cy > 0:
		s.cy--
	}
	s.pendingWrap = false
}

// Tab advances to the n-th next tab stop.
func (s *Screen) Tab(n int) {
	for ; n > 0 && s.cx < s.cols-1; n-- {
		s.cx++
		for s.cx < s.cols-1 && !s.tabs[s.cx] {
			s.cx++
		}
	}
	s.pendingWrap = false
}

// BackTab moves back to the n-th previous tab stop.
func (s *Screen) BackTab(n int) {
	for ; n > 0 && s.cx > 0; n-- {
		s.cx--
		for s.cx > 0 && !s.tabs[s.cx] {
			s.cx--
		}
	}
	s.pendingWrap = false
}

// SetTabStop sets a tab stop at the cursor column.
func (s *Screen) SetTabStop() {
	s.tabs[s.cx] = true
}

// ClearTabStop clears the stop at the cursor, or every stop when all is
// set.
func (s *Screen) ClearTabStop(all bool) {
	if !all {
		s.tabs[s.cx] = false
		return
	}
	for i := range s.tabs {
		s.tabs[i] = false
	}
}

func (s *Screen) resetTabs() {
	s.tabs = make([]bool, s.cols)
	for i := tabWidth; i < s.cols; i += tabWidth {
		s.tabs[i] = true
	}
}

// ScrollUp scrolls the region up n lines. Lines leaving the top of a full
// screen region go to history.
func (s *Screen) ScrollUp(n int) {
	region := s.lines[s.top : s.bottom+1]
	n = clamp(n, 0, len(region))
	if n == 0 {
		return
	}
	if s.history != nil && s.top == 0 && s.bottom == s.rows-1 {
		for _, l := range region[:n] {
			s.history.Push(l)
		}
		if s.viewOffset > 0 {
			s.ScrollView(n)
		}
	}
	copy(region, region[n:])
	for i := len(region) - n; i < len(region); i++ {
		region[i] = newLine(s.cols, s.pen)
	}
}

// ScrollDown scrolls the region down n lines.
func (s *Screen) ScrollDown(n int) {
	region := s.lines[s.top : s.bottom+1]
	n = clamp(n, 0, len(region))
	if n == 0 {
		return
	}
	copy(region[n:], region)
	for i := 0; i < n; i++ {
		region[i] = newLine(s.cols, s.pen)
	}
}

// SetScrollRegion sets the inclusive scroll region and homes the cursor.
// Regions of fewer than two rows are ignored.
func (s *Screen) SetScrollRegion(top, bottom int) {
	top = clamp(top, 0, s.rows-1)
	bottom = clamp(bottom, 0, s.rows-1)
	if top >= bottom {
		return
	}
	s.top, s.bottom = top, bottom
	s.MoveTo(0, 0)
}

// EraseDisplay implements ED: 0 below, 1 above, 2 all, 3 scrollback.
func (s *Screen) EraseDisplay(mode int) {
	switch mode {
	case 0:
		s.EraseLine(0)
		for y := s.cy + 1; y < s.rows; y++ {
			s.lines[y] = newLine(s.cols, s.pen)
		}
	case 1:
		s.EraseLine(1)
		for y := 0; y < s.cy; y++ {
			s.lines[y] = newLine(s.cols, s.pen)
		}
	case 2:
		for y := range s.lines {
			s.lines[y] = newLine(s.cols, s.pen)
		}
	case 3:
		if s.history != nil {
			s.history.Clear()
			s.viewOffset = 0
		}
	}
}

// EraseLine implements EL: 0 right of cursor, 1 left, 2 whole line.
func (s *Screen) EraseLine(mode int) {
	l := s.lines[s.cy]
	switch mode {
	case 0:
		l.fill(s.cx, s.cols, s.pen)
		l.Wrapped = false
	case 1:
		l.fill(0, s.cx+1, s.pen)
	case 2:
		l.fill(0, s.cols, s.pen)
		l.Wrapped = false
	}
}

// InsertLines inserts n blank lines at the cursor row within the region.
func (s *Screen) InsertLines(n int) {
	if s.cy < s.top || s.cy > s.bottom {
		return
	}
	top := s.top
	s.top = s.cy
	s.ScrollDown(n)
	s.top = top
	s.CarriageReturn()
}

// DeleteLines deletes n lines at the cursor row within the region.
func (s *Screen) DeleteLines(n int) {
	if s.cy < s.top || s.cy > s.bottom {
		return
	}
	top, hist := s.top, s.history
	s.top, s.history = s.cy, nil
	s.ScrollUp(n)
	s.top, s.history = top, hist
	s.CarriageReturn()
}

// InsertChars shifts the rest of the line right by n blanks.
func (s *Screen) InsertChars(n int) {
	s.insertCells(s.lines[s.cy], s.cx, n)
	s.pendingWrap = false
}

func (s *Screen) insertCells(l *Line, x, n int) {
	n = clamp(n, 0, s.cols-x)
	if n == 0 {
		return
	}
	copy(l.Cells[x+n:], l.Cells[x:])
	c := blank(s.pen)
	for i := x; i < x+n; i++ {
		l.Cells[i] = c
	}
	l.repair()
}

// DeleteChars removes n cells at the cursor, shifting the rest left.
func (s *Screen) DeleteChars(n int) {
	l := s.lines[s.cy]
	n = clamp(n, 0, s.cols-s.cx)
	if n == 0 {
		return
	}
	copy(l.Cells[s.cx:], l.Cells[s.cx+n:])
	l.fill(s.cols-n, s.cols, s.pen)
	s.pendingWrap = false
}

// EraseChars blanks n cells from the cursor without moving it.
func (s *Screen) EraseChars(n int) {
	s.lines[s.cy].fill(s.cx, s.cx+max(n, 1), s.pen)
	s.pendingWrap = false
}

// SaveCursor records the cursor position, pen and origin mode.
func (s *Screen) SaveCursor() {
	s.saved = savedCursor{
		set:         true,
		x:           s.cx,
		y:           s.cy,
		pen:         s.pen,
		originMode:  s.originMode,
		pendingWrap: s.pendingWrap,
	}
}

// RestoreCursor restores the state recorded by SaveCursor. Without a
// saved state the cursor goes home with the default pen.
func (s *Screen) RestoreCursor() {
	if !s.saved.set {
		s.pen = Style{}
		s.originMode = false
		s.MoveTo(0, 0)
		return
	}
	s.pen = s.saved.pen
	s.originMode = s.saved.originMode
	s.cx = clamp(s.saved.x, 0, s.cols-1)
	s.cy = clamp(s.saved.y, 0, s.rows-1)
	s.pendingWrap = s.saved.pendingWrap && s.cx == s.cols-1
}

// SetOriginMode switches origin mode and homes the cursor.
func (s *Screen) SetOriginMode(on bool) {
	s.originMode = on
	s.MoveTo(0, 0)
}

// SetAutoWrap switches autowrap.
func (s *Screen) SetAutoWrap(on bool) {
	s.autoWrap = on
	if !on {
		s.pendingWrap = false
	}
}

// AutoWrap reports whether autowrap is on.
func (s *Screen) AutoWrap() bool {
	return s.autoWrap
}

// SetInsertMode switches IRM.
func (s *Screen) SetInsertMode(on bool) {
	s.insertMode = on
}

// SetCursorVisible shows or hides the cursor.
func (s *Screen) SetCursorVisible(on bool) {
	s.cursorVisible = on
}

// SetCursorStyle sets the DECSCUSR shape.
func (s *Screen) SetCursorStyle(style int) {
	s.cursorStyle = clamp(style, CursorDefault, CursorSteadyBar)
}

// SetPen replaces the current pen.
func (s *Screen) SetPen(pen Style) {
	s.pen = pen
}

// AlignmentTest fills the screen with 'E' (DECALN).
func (s *Screen) AlignmentTest() {
	s.top, s.bottom = 0, s.rows-1
	for _, l := range s.lines {
		for i := range l.Cells {
			l.Cells[i] = Cell{Rune: 'E', Width: 1}
		}
		l.Wrapped = false
	}
	s.MoveTo(0, 0)
}

// Reset clears the screen and restores every setting to its initial
// value. History is kept.
func (s *Screen) Reset() {
	s.pen = Style{}
	for i := range s.lines {
		s.lines[i] = newLine(s.cols, s.pen)
	}
	s.top, s.bottom = 0, s.rows-1
	s.cx, s.cy = 0, 0
	s.pendingWrap = false
	s.cursorVisible = true
	s.cursorStyle = CursorDefault
	s.originMode = false
	s.autoWrap = true
	s.insertMode = false
	s.saved = savedCursor{}
	s.viewOffset = 0
	s.resetTabs()
}

// Resize changes the screen size. Rows and columns are clipped or padded
// without re-wrapping. When shrinking would leave the cursor below the
// last row, lines are pushed off the top into history so the cursor keeps
// its content. The scroll region resets to the full screen.
func (s *Screen) Resize(cols, rows int) {
	cols = max(cols, 1)
	rows = max(rows, 1)
	if cols == s.cols && rows == s.rows {
		return
	}

	if rows < s.rows {
		if over := s.cy - (rows - 1); over > 0 {
			for _, l := range s.lines[:over] {
				if s.history != nil {
					s.history.Push(l)
				}
			}
			s.lines = s.lines[over:]
			s.cy -= over
			s.saved.y -= over
		}
		s.lines = s.lines[:rows]
	}
	for len(s.lines) < rows {
		s.lines = append(s.lines, newLine(s.cols, Style{}))
	}
	if cols != s.cols {
		for _, l := range s.lines {
			l.resize(cols)
		}
	}

	s.cols, s.rows = cols, rows
	s.top, s.bottom = 0, rows-1
	s.cx = clamp(s.cx, 0, cols-1)
	s.cy = clamp(s.cy, 0, rows-1)
	s.saved.x = clamp(s.saved.x, 0, cols-1)
	s.saved.y = clamp(s.saved.y, 0, rows-1)
	if s.cx < cols-1 {
		s.pendingWrap = false
	}
	s.ScrollView(0)

	old := s.tabs
	s.resetTabs()
	copy(s.tabs, old)
}
