package terminal

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/mattn/go-runewidth"
)

// MouseTracking is the set of mouse events the application asked for.
type MouseTracking uint8

const (
	MouseTrackOff MouseTracking = iota
	// MouseTrackX10 reports presses only.
	MouseTrackX10
	// MouseTrackNormal reports presses, releases and the wheel.
	MouseTrackNormal
	// MouseTrackButton also reports motion while a button is held.
	MouseTrackButton
	// MouseTrackAny reports all motion.
	MouseTrackAny
)

// MouseEncoding is the wire format of mouse reports.
type MouseEncoding uint8

const (
	MouseEncodingLegacy MouseEncoding = iota
	MouseEncodingUTF8
	MouseEncodingSGR
	MouseEncodingURXVT
)

func (m MouseEncoding) String() string {
	switch m {
	case MouseEncodingUTF8:
		return "utf8"
	case MouseEncodingSGR:
		return "sgr"
	case MouseEncodingURXVT:
		return "urxvt"
	default:
		return "legacy"
	}
}

// Modes are the terminal modes set by the application.
type Modes struct {
	AppCursor      bool
	AppKeypad      bool
	BracketedPaste bool
	AltScreen      bool
	ReverseVideo   bool
	Newline        bool
	MouseTracking  MouseTracking
	MouseEncoding  MouseEncoding
}

type charset uint8

const (
	charsetASCII charset = iota
	charsetDECGraphics
)

// decGraphics maps 0x5f..0x7e to the DEC special graphics set.
var decGraphics = []rune(" ◆▒␉␌␍␊°±␤␋┘┐┌└┼⎺⎻─⎼⎽├┤┴┬│≤≥π≠£·")

var widths = &runewidth.Condition{StrictEmojiNeutral: true}

// Options configures an Emulator.
type Options struct {
	// Cols and Rows are the initial size (default 80x24).
	Cols, Rows int

	// HistoryLimit is the scrollback length of the main screen.
	HistoryLimit int

	// Upstream receives replies for the application (DSR, DA) and
	// encoded mouse reports. It may be nil.
	Upstream func([]byte)

	// OnBell is called on BEL.
	OnBell func()

	// OnTitle is called when the title changes.
	OnTitle func(title string)

	// OnOSC is called for OSC commands other than the title.
	OnOSC func(cmd int, data string)
}

// Emulator turns a pty output stream into screen state.
//
// It keeps a main screen with history and, while the application has the
// alternate screen active, a second screen with its own cursor. An
// Emulator is not safe for concurrent use.
type Emulator struct {
	parser *Parser

	main   *Screen
	alt    *Screen
	screen *Screen

	modes    Modes
	title    string
	charsets [2]charset
	gl       int
	lastRune rune

	upstream func([]byte)
	onBell   func()
	onTitle  func(string)
	onOSC    func(int, string)
}

// New creates an emulator.
func New(opts Options) *Emulator {
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	e := &Emulator{
		upstream: opts.Upstream,
		onBell:   opts.OnBell,
		onTitle:  opts.OnTitle,
		onOSC:    opts.OnOSC,
	}
	e.main = NewScreen(opts.Cols, opts.Rows, NewHistory(opts.HistoryLimit))
	e.screen = e.main
	e.parser = newParser(e)
	return e
}

// Feed parses output from the application.
func (e *Emulator) Feed(data []byte) {
	e.parser.Feed(data)
}

// Write implements io.Writer on top of Feed.
func (e *Emulator) Write(p []byte) (int, error) {
	e.Feed(p)
	return len(p), nil
}

// Screen returns the active screen.
func (e *Emulator) Screen() *Screen {
	return e.screen
}

// MainScreen returns the main screen, which owns the history.
func (e *Emulator) MainScreen() *Screen {
	return e.main
}

// Size returns the emulator size.
func (e *Emulator) Size() (cols, rows int) {
	return e.main.Size()
}

// Modes returns the current modes.
func (e *Emulator) Modes() Modes {
	return e.modes
}

// Title returns the last title set by the application.
func (e *Emulator) Title() string {
	return e.title
}

// SetUpstream replaces the reply writer.
func (e *Emulator) SetUpstream(fn func([]byte)) {
	e.upstream = fn
}

// SetHistoryLimit changes the scrollback length.
func (e *Emulator) SetHistoryLimit(n int) {
	e.main.History().SetLimit(n)
}

// Resize resizes both screens.
func (e *Emulator) Resize(cols, rows int) {
	e.main.Resize(cols, rows)
	if e.alt != nil {
		e.alt.Resize(cols, rows)
	}
}

// Reset performs a full reset (RIS). History is kept.
func (e *Emulator) Reset() {
	e.exitAltScreen(false)
	e.main.Reset()
	e.modes = Modes{}
	e.charsets = [2]charset{}
	e.gl = 0
	e.lastRune = 0
}

func (e *Emulator) reply(format string, args ...any) {
	if e.upstream == nil {
		return
	}
	e.upstream([]byte(fmt.Sprintf(format, args...)))
}

func (e *Emulator) print(r rune) {
	if e.charsets[e.gl] == charsetDECGraphics && r >= 0x5f && r <= 0x7e {
		r = decGraphics[r-0x5f]
	}
	e.screen.Put(r, widths.RuneWidth(r))
	e.lastRune = r
}

func (e *Emulator) execute(b byte) {
	s := e.screen
	switch b {
	case 0x07:
		if e.onBell != nil {
			e.onBell()
		}
	case 0x08:
		s.Backspace()
	case 0x09:
		s.Tab(1)
	case 0x0A, 0x0B, 0x0C:
		if e.modes.Newline {
			s.CarriageReturn()
		}
		s.Index()
	case 0x0D:
		s.CarriageReturn()
	case 0x0E:
		e.gl = 1
	case 0x0F:
		e.gl = 0
	}
}

func (e *Emulator) escDispatch(inter []byte, final byte) {
	s := e.screen
	if len(inter) > 0 {
		switch inter[0] {
		case '(', ')':
			cs := charsetASCII
			if final == '0' {
				cs = charsetDECGraphics
			}
			e.charsets[inter[0]-'('] = cs
		case '#':
			if final == '8' {
				s.AlignmentTest()
			}
		}
		return
	}

	switch final {
	case '7':
		s.SaveCursor()
	case '8':
		s.RestoreCursor()
	case 'D':
		s.Index()
	case 'E':
		s.CarriageReturn()
		s.Index()
	case 'M':
		s.ReverseIndex()
	case 'H':
		s.SetTabStop()
	case 'c':
		e.Reset()
	case '=':
		e.modes.AppKeypad = true
	case '>':
		e.modes.AppKeypad = false
	case 'Z':
		e.reply("\x1b[?1;2c")
	}
}

func (e *Emulator) oscDispatch(kind byte, data []byte) {
	if kind == 'k' {
		e.setTitle(string(data))
		return
	}
	num, rest, _ := bytes.Cut(data, []byte{';'})
	cmd, err := strconv.Atoi(string(num))
	if err != nil {
		return
	}
	switch cmd {
	case 0, 2:
		e.setTitle(string(rest))
	case 1:
	default:
		if e.onOSC != nil {
			e.onOSC(cmd, string(rest))
		}
	}
}

func (e *Emulator) setTitle(t string) {
	e.title = t
	if e.onTitle != nil {
		e.onTitle(t)
	}
}

func (e *Emulator) csiDispatch(marker byte, params []int, inter []byte, final byte) {
	switch marker {
	case '?':
		if final == 'h' || final == 'l' {
			for _, mode := range params {
				e.setPrivateMode(mode, final == 'h')
			}
		}
		return
	case '>':
		if final == 'c' {
			e.reply("\x1b[>1;10;0c")
		}
		return
	case 0:
	default:
		return
	}

	if len(inter) > 0 {
		switch {
		case inter[0] == ' ' && final == 'q':
			e.screen.SetCursorStyle(param(params, 0, 0))
		case inter[0] == '!' && final == 'p':
			e.softReset()
		}
		return
	}

	s := e.screen
	n := param(params, 0, 1)
	x, y := s.Cursor()
	switch final {
	case 'A':
		s.MoveRelative(0, -n)
	case 'B', 'e':
		s.MoveRelative(0, n)
	case 'C', 'a':
		s.MoveRelative(n, 0)
	case 'D':
		s.MoveRelative(-n, 0)
	case 'E':
		s.MoveRelative(0, n)
		s.CarriageReturn()
	case 'F':
		s.MoveRelative(0, -n)
		s.CarriageReturn()
	case 'G', '`':
		s.SetColumn(n - 1)
	case 'H', 'f':
		s.MoveTo(param(params, 1, 1)-1, n-1)
	case 'd':
		s.SetRow(n - 1)
	case 'I':
		s.Tab(n)
	case 'Z':
		s.BackTab(n)
	case 'J':
		s.EraseDisplay(param(params, 0, 0))
	case 'K':
		s.EraseLine(param(params, 0, 0))
	case 'L':
		s.InsertLines(n)
	case 'M':
		s.DeleteLines(n)
	case '@':
		s.InsertChars(n)
	case 'P':
		s.DeleteChars(n)
	case 'X':
		s.EraseChars(n)
	case 'S':
		s.ScrollUp(n)
	case 'T':
		s.ScrollDown(n)
	case 'b':
		if e.lastRune != 0 {
			for i := 0; i < min(n, 1024); i++ {
				e.print(e.lastRune)
			}
		}
	case 'g':
		switch param(params, 0, 0) {
		case 0:
			s.ClearTabStop(false)
		case 3:
			s.ClearTabStop(true)
		}
	case 'h', 'l':
		for _, mode := range params {
			e.setMode(mode, final == 'h')
		}
	case 'm':
		e.sgr(params)
	case 'n':
		switch param(params, 0, 0) {
		case 5:
			e.reply("\x1b[0n")
		case 6:
			if s.originMode {
				y -= s.top
			}
			e.reply("\x1b[%d;%dR", y+1, x+1)
		}
	case 'c':
		if param(params, 0, 0) == 0 {
			e.reply("\x1b[?1;2c")
		}
	case 'r':
		_, rows := s.Size()
		s.SetScrollRegion(n-1, param(params, 1, rows)-1)
	case 's':
		s.SaveCursor()
	case 'u':
		s.RestoreCursor()
	}
}

func (e *Emulator) setMode(mode int, on bool) {
	switch mode {
	case 4:
		e.screen.SetInsertMode(on)
	case 20:
		e.modes.Newline = on
	}
}

func (e *Emulator) setPrivateMode(mode int, on bool) {
	s := e.screen
	switch mode {
	case 1:
		e.modes.AppCursor = on
	case 5:
		e.modes.ReverseVideo = on
	case 6:
		s.SetOriginMode(on)
	case 7:
		s.SetAutoWrap(on)
	case 25:
		s.SetCursorVisible(on)
	case 47, 1047:
		if on {
			e.enterAltScreen()
		} else {
			e.exitAltScreen(false)
		}
	case 1048:
		if on {
			s.SaveCursor()
		} else {
			s.RestoreCursor()
		}
	case 1049:
		if on {
			e.main.SaveCursor()
			e.enterAltScreen()
		} else {
			e.exitAltScreen(true)
		}
	case 9:
		e.setTracking(MouseTrackX10, on)
	case 1000:
		e.setTracking(MouseTrackNormal, on)
	case 1002:
		e.setTracking(MouseTrackButton, on)
	case 1003:
		e.setTracking(MouseTrackAny, on)
	case 1005:
		e.setEncoding(MouseEncodingUTF8, on)
	case 1006:
		e.setEncoding(MouseEncodingSGR, on)
	case 1015:
		e.setEncoding(MouseEncodingURXVT, on)
	case 2004:
		e.modes.BracketedPaste = on
	}
}

func (e *Emulator) setTracking(t MouseTracking, on bool) {
	if on {
		e.modes.MouseTracking = t
	} else {
		e.modes.MouseTracking = MouseTrackOff
	}
}

func (e *Emulator) setEncoding(enc MouseEncoding, on bool) {
	if on {
		e.modes.MouseEncoding = enc
	} else if e.modes.MouseEncoding == enc {
		e.modes.MouseEncoding = MouseEncodingLegacy
	}
}

func (e *Emulator) enterAltScreen() {
	if e.alt != nil {
		return
	}
	cols, rows := e.main.Size()
	e.alt = NewScreen(cols, rows, nil)
	e.alt.SetPen(e.main.Pen())
	x, y := e.main.Cursor()
	e.alt.MoveTo(x, y)
	e.screen = e.alt
	e.modes.AltScreen = true
}

func (e *Emulator) exitAltScreen(restoreCursor bool) {
	if e.alt != nil {
		e.alt = nil
		e.screen = e.main
		e.modes.AltScreen = false
	}
	if restoreCursor {
		e.main.RestoreCursor()
	}
}

// softReset implements DECSTR.
func (e *Emulator) softReset() {
	s := e.screen
	s.SetCursorVisible(true)
	s.SetInsertMode(false)
	s.SetOriginMode(false)
	s.SetAutoWrap(true)
	s.SetPen(Style{})
	_, rows := s.Size()
	s.SetScrollRegion(0, rows-1)
	s.saved = savedCursor{}
	e.modes.AppCursor = false
	e.modes.AppKeypad = false
	e.charsets = [2]charset{}
	e.gl = 0
}

var sgrSet = map[int]Attr{
	1: AttrBold, 2: AttrDim, 3: AttrItalic, 4: AttrUnderline,
	5: AttrBlink, 6: AttrBlink, 7: AttrReverse, 8: AttrHidden,
	9: AttrStrike, 21: AttrUnderline,
}

var sgrClear = map[int]Attr{
	22: AttrBold | AttrDim, 23: AttrItalic, 24: AttrUnderline,
	25: AttrBlink, 27: AttrReverse, 28: AttrHidden, 29: AttrStrike,
}

func (e *Emulator) sgr(params []int) {
	pen := e.screen.Pen()
	if len(params) == 0 {
		params = []int{0}
	}
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			pen = Style{}
		case sgrSet[p] != 0:
			pen.Attrs |= sgrSet[p]
		case sgrClear[p] != 0:
			pen.Attrs &^= sgrClear[p]
		case p >= 30 && p <= 37:
			pen.Fg = IndexedColor(p - 30)
		case p == 38:
			pen.Fg, i = extendedColor(params, i, pen.Fg)
		case p == 39:
			pen.Fg = DefaultColor
		case p >= 40 && p <= 47:
			pen.Bg = IndexedColor(p - 40)
		case p == 48:
			pen.Bg, i = extendedColor(params, i, pen.Bg)
		case p == 49:
			pen.Bg = DefaultColor
		case p >= 90 && p <= 97:
			pen.Fg = IndexedColor(p - 90 + 8)
		case p >= 100 && p <= 107:
			pen.Bg = IndexedColor(p - 100 + 8)
		}
	}
	e.screen.SetPen(pen)
}

// extendedColor parses "5;n" or "2;r;g;b" after a 38 or 48 at params[i]
// and returns the color and the index of the last consumed parameter.
func extendedColor(params []int, i int, cur Color) (Color, int) {
	if i+1 >= len(params) {
		return cur, i
	}
	switch params[i+1] {
	case 5:
		if i+2 < len(params) {
			return IndexedColor(params[i+2]), i + 2
		}
	case 2:
		if i+4 < len(params) {
			r := uint8(clamp(params[i+2], 0, 255))
			g := uint8(clamp(params[i+3], 0, 255))
			b := uint8(clamp(params[i+4], 0, 255))
			return RGBColor(r, g, b), i + 4
		}
	}
	return cur, len(params) - 1
}
