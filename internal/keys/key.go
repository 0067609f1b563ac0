// Package keys names, parses, encodes and decodes terminal keys.
//
// Key names follow tmux: "C-b", "M-x", "S-Up", "F1", "BSpace", "PPage".
// An Event's String form is canonical, so bindings can be looked up by
// name and decoded input compared against them directly.
package keys

import (
	"fmt"
	"strings"
)

// Key identifies a key. Character keys use KeyRune with Event.Rune set.
type Key uint16

const (
	// KeyNone represents no key.
	KeyNone Key = iota
	KeyRune

	KeyEscape
	KeyEnter
	KeyTab
	KeyBacktab
	KeyBackspace
	KeyDelete
	KeyInsert
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown

	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12

	// KeyMouse is a mouse report; Event.Mouse holds it.
	KeyMouse
	// KeyPaste is a bracketed paste; Event.Raw holds the pasted text
	// without the markers.
	KeyPaste
	// KeyUnknown is a sequence that was recognized as complete but not
	// understood. It is passed through as Event.Raw.
	KeyUnknown
)

// names are the canonical names of special keys.
var names = map[Key]string{
	KeyEscape:    "Escape",
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyBacktab:   "BTab",
	KeyBackspace: "BSpace",
	KeyDelete:    "DC",
	KeyInsert:    "IC",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyPageUp:    "PPage",
	KeyPageDown:  "NPage",
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyMouse:     "Mouse",
	KeyPaste:     "Paste",
	KeyUnknown:   "Unknown",
}

// aliases maps lowercase names, including alternative spellings, to keys.
var aliases = map[string]Key{
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"cr":        KeyEnter,
	"tab":       KeyTab,
	"btab":      KeyBacktab,
	"bspace":    KeyBackspace,
	"backspace": KeyBackspace,
	"bs":        KeyBackspace,
	"dc":        KeyDelete,
	"delete":    KeyDelete,
	"del":       KeyDelete,
	"ic":        KeyInsert,
	"insert":    KeyInsert,
	"home":      KeyHome,
	"end":       KeyEnd,
	"ppage":     KeyPageUp,
	"pageup":    KeyPageUp,
	"pgup":      KeyPageUp,
	"npage":     KeyPageDown,
	"pagedown":  KeyPageDown,
	"pgdn":      KeyPageDown,
	"up":        KeyUp,
	"down":      KeyDown,
	"left":      KeyLeft,
	"right":     KeyRight,
}

func init() {
	for i := 0; i < 12; i++ {
		k := KeyF1 + Key(i)
		names[k] = fmt.Sprintf("F%d", i+1)
		aliases[strings.ToLower(names[k])] = k
	}
}

// String returns the canonical name of k.
func (k Key) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	switch k {
	case KeyNone:
		return "None"
	case KeyRune:
		return "Rune"
	}
	return fmt.Sprintf("Key(%d)", k)
}

// IsArrow reports whether k is a cursor key.
func (k Key) IsArrow() bool {
	return k >= KeyUp && k <= KeyRight
}

// IsFunction reports whether k is F1 to F12.
func (k Key) IsFunction() bool {
	return k >= KeyF1 && k <= KeyF12
}

// Modifier is a set of modifier keys.
type Modifier uint8

const (
	// ModNone indicates no modifiers.
	ModNone  Modifier = 0
	ModShift Modifier = 1 << iota
	ModMeta
	ModCtrl
)

// Has reports whether m contains mod.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// With returns m with mod added.
func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

// prefix returns the tmux-style prefix of m, such as "C-M-".
func (m Modifier) prefix() string {
	var b strings.Builder
	if m.Has(ModCtrl) {
		b.WriteString("C-")
	}
	if m.Has(ModMeta) {
		b.WriteString("M-")
	}
	if m.Has(ModShift) {
		b.WriteString("S-")
	}
	return b.String()
}

// xterm returns the xterm modifier parameter for m (1 is none).
func (m Modifier) xterm() int {
	n := 1
	if m.Has(ModShift) {
		n++
	}
	if m.Has(ModMeta) {
		n += 2
	}
	if m.Has(ModCtrl) {
		n += 4
	}
	return n
}

func modFromXterm(n int) Modifier {
	n--
	var m Modifier
	if n&1 != 0 {
		m |= ModShift
	}
	if n&2 != 0 {
		m |= ModMeta
	}
	if n&4 != 0 {
		m |= ModCtrl
	}
	return m
}

// Mouse is a decoded SGR or X10 mouse report in 0-based cell coordinates.
type Mouse struct {
	// Code is the button code with the modifier and motion bits.
	Code    int
	X, Y    int
	Release bool
}

// Button returns the button number: 0 to 2 for buttons, 3 for none, 64
// and 65 for the wheel.
func (m Mouse) Button() int {
	return m.Code &^ (4 | 8 | 16 | 32)
}

// Motion reports whether the report is a drag or move.
func (m Mouse) Motion() bool {
	return m.Code&32 != 0
}

// Event is one key press, mouse report or paste.
type Event struct {
	Key   Key
	Rune  rune
	Mod   Modifier
	Mouse Mouse

	// Raw holds the bytes the event was decoded from. It is nil for
	// parsed events.
	Raw []byte
}

// NewRune returns an event for a character.
func NewRune(r rune, mod Modifier) Event {
	return Event{Key: KeyRune, Rune: r, Mod: mod}
}

// NewSpecial returns an event for a named key.
func NewSpecial(k Key, mod Modifier) Event {
	return Event{Key: k, Mod: mod}
}

// String returns the canonical tmux name, for example "C-b" or "M-Up".
func (e Event) String() string {
	if e.Key != KeyRune {
		return e.Mod.prefix() + e.Key.String()
	}
	switch e.Rune {
	case ' ':
		return e.Mod.prefix() + "Space"
	case 0:
		return "None"
	}
	return e.Mod.prefix() + string(e.Rune)
}

// Equals reports whether two events are the same key press.
func (e Event) Equals(o Event) bool {
	return e.Key == o.Key && e.Rune == o.Rune && e.Mod == o.Mod
}

// Parse parses a key name such as "C-b", "M-Left", "^A", "F5" or "x".
func Parse(name string) (Event, error) {
	spec := strings.TrimSpace(name)
	if spec == "" {
		return Event{}, fmt.Errorf("empty key name")
	}

	var mod Modifier
	for len(spec) > 2 && spec[1] == '-' {
		switch spec[0] {
		case 'C', 'c':
			mod |= ModCtrl
		case 'M', 'm':
			mod |= ModMeta
		case 'S', 's':
			mod |= ModShift
		default:
			return Event{}, fmt.Errorf("unknown modifier in key %q", name)
		}
		spec = spec[2:]
	}
	if len(spec) == 2 && spec[0] == '^' {
		mod |= ModCtrl
		spec = spec[1:]
	}

	if k, ok := aliases[strings.ToLower(spec)]; ok {
		return NewSpecial(k, mod), nil
	}
	if strings.EqualFold(spec, "space") {
		return NewRune(' ', mod), nil
	}

	runes := []rune(spec)
	if len(runes) != 1 {
		return Event{}, fmt.Errorf("unknown key %q", name)
	}
	r := runes[0]
	if mod.Has(ModCtrl) && r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	return NewRune(r, mod), nil
}

// MustParse is Parse for names known to be valid.
func MustParse(name string) Event {
	e, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return e
}
