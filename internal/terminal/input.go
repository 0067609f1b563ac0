package terminal

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// MouseButton identifies the button of a mouse event.
type MouseButton uint8

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
	// MouseNone is motion without a button held.
	MouseNone
	MouseWheelUp
	MouseWheelDown
)

// MouseEvent is a mouse event in pane coordinates, 0-based.
type MouseEvent struct {
	Button MouseButton
	X, Y   int
	// Press is false for a release.
	Press  bool
	Motion bool
	Shift  bool
	Meta   bool
	Ctrl   bool
}

// WantsMouse reports whether the application enabled mouse reporting.
func (e *Emulator) WantsMouse() bool {
	return e.modes.MouseTracking != MouseTrackOff
}

// EncodeMouse formats ev for the application according to the active
// tracking level and encoding. It returns nil when the event is not
// reported.
func (e *Emulator) EncodeMouse(ev MouseEvent) []byte {
	m := e.modes
	switch m.MouseTracking {
	case MouseTrackOff:
		return nil
	case MouseTrackX10:
		if !ev.Press || ev.Motion || ev.Button > MouseRight {
			return nil
		}
	case MouseTrackNormal:
		if ev.Motion {
			return nil
		}
	case MouseTrackButton:
		if ev.Motion && ev.Button == MouseNone {
			return nil
		}
	}

	var cb int
	switch ev.Button {
	case MouseWheelUp:
		cb = 64
	case MouseWheelDown:
		cb = 65
	case MouseNone:
		cb = 3
	default:
		cb = int(ev.Button)
	}
	if ev.Motion {
		cb += 32
	}
	if m.MouseTracking != MouseTrackX10 {
		if ev.Shift {
			cb += 4
		}
		if ev.Meta {
			cb += 8
		}
		if ev.Ctrl {
			cb += 16
		}
	}

	x, y := ev.X+1, ev.Y+1
	if m.MouseEncoding == MouseEncodingSGR {
		final := 'M'
		if !ev.Press && !ev.Motion {
			final = 'm'
		}
		return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", cb, x, y, final))
	}

	// The remaining encodings cannot tell which button was released.
	if !ev.Press && !ev.Motion && ev.Button <= MouseRight {
		cb = cb&^3 | 3
	}
	switch m.MouseEncoding {
	case MouseEncodingURXVT:
		return []byte(fmt.Sprintf("\x1b[%d;%d;%dM", cb+32, x, y))
	case MouseEncodingUTF8:
		if x > 2015-32 || y > 2015-32 {
			return nil
		}
		out := []byte("\x1b[M")
		for _, v := range []int{cb + 32, x + 32, y + 32} {
			out = utf8.AppendRune(out, rune(v))
		}
		return out
	default:
		if x > 255-32 || y > 255-32 {
			return nil
		}
		return []byte{0x1b, '[', 'M', byte(cb + 32), byte(x + 32), byte(y + 32)}
	}
}

// SendMouse encodes ev and writes it upstream. It reports whether the
// event was sent.
func (e *Emulator) SendMouse(ev MouseEvent) bool {
	b := e.EncodeMouse(ev)
	if b == nil || e.upstream == nil {
		return false
	}
	e.upstream(b)
	return true
}

// EncodeKey rewrites a cursor key sequence (CSI or SS3 A, B, C, D, H or F)
// into the form expected by the application's cursor key mode. Other
// input is returned unchanged.
func (e *Emulator) EncodeKey(seq []byte) []byte {
	if len(seq) != 3 || seq[0] != 0x1b || (seq[1] != '[' && seq[1] != 'O') {
		return seq
	}
	switch seq[2] {
	case 'A', 'B', 'C', 'D', 'H', 'F':
	default:
		return seq
	}
	intro := byte('[')
	if e.modes.AppCursor {
		intro = 'O'
	}
	return []byte{0x1b, intro, seq[2]}
}

var (
	pasteStart = []byte("\x1b[200~")
	pasteEnd   = []byte("\x1b[201~")
)

// WrapPaste wraps p in bracketed paste markers when the application
// enabled bracketed paste. Embedded end markers are removed so the paste
// cannot terminate early.
func (e *Emulator) WrapPaste(p []byte) []byte {
	if !e.modes.BracketedPaste {
		return p
	}
	body := bytes.ReplaceAll(p, pasteEnd, nil)
	out := make([]byte, 0, len(body)+len(pasteStart)+len(pasteEnd))
	out = append(out, pasteStart...)
	out = append(out, body...)
	return append(out, pasteEnd...)
}
