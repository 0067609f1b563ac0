package keys

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

var (
	pasteStart = []byte("\x1b[200~")
	pasteEnd   = []byte("\x1b[201~")
)

// Decoder splits terminal input into events. Sequences cut off at the end
// of a chunk are kept until the next Feed. A lone ESC at the end of a
// chunk is taken as the Escape key.
type Decoder struct {
	buf []byte
}

// Feed decodes as many events as data completes.
func (d *Decoder) Feed(data []byte) []Event {
	d.buf = append(d.buf, data...)
	var events []Event
	for len(d.buf) > 0 {
		ev, n := decode(d.buf)
		if n == 0 {
			break
		}
		ev.Raw = append([]byte(nil), d.buf[:n]...)
		if ev.Key == KeyPaste {
			ev.Raw = ev.Raw[len(pasteStart) : n-len(pasteEnd)]
		}
		events = append(events, ev)
		d.buf = d.buf[n:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Pending returns the number of buffered bytes.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// decode returns the first event in b and its length, or 0 when b holds
// an incomplete sequence.
func decode(b []byte) (Event, int) {
	c := b[0]
	if c == 0x1b {
		return decodeEscape(b)
	}
	if c < 0x80 {
		return decodeByte(c), 1
	}
	if !utf8.FullRune(b) {
		return Event{}, 0
	}
	r, n := utf8.DecodeRune(b)
	return NewRune(r, ModNone), n
}

// decodeByte maps a single ASCII byte to a key.
func decodeByte(c byte) Event {
	switch c {
	case '\r', '\n':
		return NewSpecial(KeyEnter, ModNone)
	case '\t':
		return NewSpecial(KeyTab, ModNone)
	case 0x7f, 0x08:
		return NewSpecial(KeyBackspace, ModNone)
	case 0:
		return NewRune(' ', ModCtrl)
	}
	switch {
	case c >= 1 && c <= 26:
		return NewRune(rune('a'+c-1), ModCtrl)
	case c >= 0x1c && c <= 0x1f:
		return NewRune(rune('@'+c), ModCtrl)
	}
	return NewRune(rune(c), ModNone)
}

func decodeEscape(b []byte) (Event, int) {
	if len(b) == 1 {
		return NewSpecial(KeyEscape, ModNone), 1
	}
	switch b[1] {
	case '[':
		return decodeCSI(b)
	case 'O':
		if len(b) < 3 {
			return Event{}, 0
		}
		if k := ss3Key(b[2]); k != KeyNone {
			return NewSpecial(k, ModNone), 3
		}
		return Event{Key: KeyUnknown}, 3
	case 0x1b:
		return NewSpecial(KeyEscape, ModNone), 1
	}

	// ESC followed by a key is that key with Meta.
	ev, n := decode(b[1:])
	if n == 0 {
		return Event{}, 0
	}
	ev.Mod |= ModMeta
	return ev, n + 1
}

func ss3Key(c byte) Key {
	switch c {
	case 'A':
		return KeyUp
	case 'B':
		return KeyDown
	case 'C':
		return KeyRight
	case 'D':
		return KeyLeft
	case 'H':
		return KeyHome
	case 'F':
		return KeyEnd
	case 'P':
		return KeyF1
	case 'Q':
		return KeyF2
	case 'R':
		return KeyF3
	case 'S':
		return KeyF4
	}
	return KeyNone
}

func decodeCSI(b []byte) (Event, int) {
	if bytes.HasPrefix(b, pasteStart) {
		end := bytes.Index(b[len(pasteStart):], pasteEnd)
		if end < 0 {
			return Event{}, 0
		}
		return Event{Key: KeyPaste}, len(pasteStart) + end + len(pasteEnd)
	}
	if len(b) < 3 {
		return Event{}, 0
	}

	// X10 mouse: ESC [ M cb cx cy.
	if b[2] == 'M' {
		if len(b) < 6 {
			return Event{}, 0
		}
		m := Mouse{Code: int(b[3]) - 32, X: int(b[4]) - 33, Y: int(b[5]) - 33}
		if m.Button() == 3 {
			m.Release = true
		}
		return Event{Key: KeyMouse, Mouse: m}, 6
	}

	i := 2
	for i < len(b) && b[i] >= 0x20 && b[i] <= 0x3f {
		i++
	}
	if i == len(b) {
		return Event{}, 0
	}
	final := b[i]
	if final < 0x40 || final > 0x7e {
		// Not a valid CSI; drop the introducer.
		return Event{Key: KeyUnknown}, 2
	}
	n := i + 1
	params := string(b[2:i])

	if len(params) > 0 && params[0] == '<' && (final == 'M' || final == 'm') {
		f := splitParams(params[1:])
		if len(f) != 3 {
			return Event{Key: KeyUnknown}, n
		}
		m := Mouse{Code: f[0], X: f[1] - 1, Y: f[2] - 1, Release: final == 'm'}
		return Event{Key: KeyMouse, Mouse: m}, n
	}

	f := splitParams(params)
	mod := ModNone
	if len(f) >= 2 && f[1] > 1 {
		mod = modFromXterm(f[1])
	}
	switch final {
	case 'A', 'B', 'C', 'D', 'H', 'F', 'P', 'Q', 'R', 'S':
		return NewSpecial(ss3Key(final), mod), n
	case 'Z':
		return NewSpecial(KeyBacktab, ModNone), n
	case '~':
		if len(f) > 0 {
			if k := tildeKey(f[0]); k != KeyNone {
				return NewSpecial(k, mod), n
			}
		}
	}
	return Event{Key: KeyUnknown}, n
}

func tildeKey(code int) Key {
	switch code {
	case 1, 7:
		return KeyHome
	case 4, 8:
		return KeyEnd
	case 11, 12, 13, 14:
		return KeyF1 + Key(code-11)
	}
	for k, c := range tildeCodes {
		if c == code {
			return k
		}
	}
	return KeyNone
}

// splitParams parses "1;5" into [1 5]. Empty fields are 0.
func splitParams(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range bytes.Split([]byte(s), []byte{';'}) {
		n, _ := strconv.Atoi(string(part))
		out = append(out, n)
	}
	return out
}
