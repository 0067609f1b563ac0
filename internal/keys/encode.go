package keys

import (
	"strconv"
	"unicode/utf8"
)

// tildeCodes are the parameters of keys sent as CSI n ~.
var tildeCodes = map[Key]int{
	KeyInsert:   2,
	KeyDelete:   3,
	KeyPageUp:   5,
	KeyPageDown: 6,
	KeyF5:       15,
	KeyF6:       17,
	KeyF7:       18,
	KeyF8:       19,
	KeyF9:       20,
	KeyF10:      21,
	KeyF11:      23,
	KeyF12:      24,
}

// letterCodes are the finals of keys sent as CSI x or SS3 x.
var letterCodes = map[Key]byte{
	KeyUp:    'A',
	KeyDown:  'B',
	KeyRight: 'C',
	KeyLeft:  'D',
	KeyHome:  'H',
	KeyEnd:   'F',
	KeyF1:    'P',
	KeyF2:    'Q',
	KeyF3:    'R',
	KeyF4:    'S',
}

// Encode returns the bytes an xterm-compatible terminal sends for e.
// appCursor selects SS3 cursor keys. Paste and unknown events return their
// raw bytes; mouse events return nil.
func Encode(e Event, appCursor bool) []byte {
	switch e.Key {
	case KeyNone, KeyMouse:
		return nil
	case KeyPaste, KeyUnknown:
		return e.Raw
	case KeyRune:
		return encodeRune(e.Rune, e.Mod)
	}

	var out []byte
	meta := e.Mod.Has(ModMeta)
	switch e.Key {
	case KeyEscape:
		out = []byte{0x1b}
	case KeyEnter:
		out = []byte{'\r'}
	case KeyTab:
		if e.Mod.Has(ModShift) {
			return []byte("\x1b[Z")
		}
		out = []byte{'\t'}
	case KeyBacktab:
		out = []byte("\x1b[Z")
	case KeyBackspace:
		out = []byte{0x7f}
	default:
		mod := e.Mod.xterm()
		if c, ok := tildeCodes[e.Key]; ok {
			out = []byte("\x1b[" + strconv.Itoa(c))
			if mod > 1 {
				out = append(out, ';')
				out = strconv.AppendInt(out, int64(mod), 10)
			}
			return append(out, '~')
		}
		if c, ok := letterCodes[e.Key]; ok {
			if mod > 1 {
				return []byte("\x1b[1;" + strconv.Itoa(mod) + string(c))
			}
			if e.Key.IsFunction() || (appCursor && (e.Key.IsArrow() || e.Key == KeyHome || e.Key == KeyEnd)) {
				return []byte{0x1b, 'O', c}
			}
			return []byte{0x1b, '[', c}
		}
		return nil
	}
	if meta {
		out = append([]byte{0x1b}, out...)
	}
	return out
}

func encodeRune(r rune, mod Modifier) []byte {
	var out []byte
	if mod.Has(ModMeta) {
		out = append(out, 0x1b)
	}
	if mod.Has(ModCtrl) {
		if c, ok := ctrlByte(r); ok {
			return append(out, c)
		}
	}
	return utf8.AppendRune(out, r)
}

// ctrlByte maps a character to its C0 control code.
func ctrlByte(r rune) (byte, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r - 'a' + 1), true
	case r >= '@' && r <= '_':
		return byte(r - '@'), true
	case r == ' ' || r == '2':
		return 0, true
	case r == '?':
		return 0x7f, true
	}
	return 0, false
}
