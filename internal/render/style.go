package render

import (
	"github.com/gdamore/tcell/v2"

	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/terminal"
)

// ParseStyle parses a style option such as "bg=green,fg=#ff8800,bold"
// into a tcell style.
func ParseStyle(s string) (tcell.Style, error) {
	st, err := config.ParseStyle(s)
	if err != nil {
		return tcell.StyleDefault, err
	}
	return ApplyStyle(tcell.StyleDefault, st), nil
}

// ApplyStyle returns base with the colors and attributes of st applied.
// Unset colors keep base's.
func ApplyStyle(base tcell.Style, st config.Style) tcell.Style {
	if c, ok := optionColor(st.Fg); ok {
		base = base.Foreground(c)
	}
	if c, ok := optionColor(st.Bg); ok {
		base = base.Background(c)
	}
	for _, a := range []struct {
		attr config.Attr
		set  func(tcell.Style, bool) tcell.Style
	}{
		{config.AttrBold, tcell.Style.Bold},
		{config.AttrDim, tcell.Style.Dim},
		{config.AttrItalic, tcell.Style.Italic},
		{config.AttrUnderline, func(s tcell.Style, on bool) tcell.Style { return s.Underline(on) }},
		{config.AttrBlink, tcell.Style.Blink},
		{config.AttrReverse, tcell.Style.Reverse},
		{config.AttrStrike, tcell.Style.StrikeThrough},
	} {
		switch {
		case st.Attrs&a.attr != 0:
			base = a.set(base, true)
		case st.Clear&a.attr != 0:
			base = a.set(base, false)
		}
	}
	return base
}

func optionColor(c config.StyleColor) (tcell.Color, bool) {
	switch c.Kind {
	case config.ColorDefault:
		return tcell.ColorDefault, true
	case config.ColorIndexed:
		return tcell.PaletteColor(c.Index), true
	case config.ColorRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B)), true
	default:
		return tcell.ColorDefault, false
	}
}

func cellColor(c terminal.Color) tcell.Color {
	switch c.Kind {
	case terminal.ColorIndexed:
		return tcell.PaletteColor(int(c.Index))
	case terminal.ColorRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
	default:
		return tcell.ColorDefault
	}
}

// CellStyle converts the style of an emulator cell. reverse is set while
// the pane's application has reverse video on.
func CellStyle(s terminal.Style, reverse bool) tcell.Style {
	st := tcell.StyleDefault.
		Foreground(cellColor(s.Fg)).
		Background(cellColor(s.Bg)).
		Bold(s.Attrs.Has(terminal.AttrBold)).
		Dim(s.Attrs.Has(terminal.AttrDim)).
		Italic(s.Attrs.Has(terminal.AttrItalic)).
		Blink(s.Attrs.Has(terminal.AttrBlink)).
		StrikeThrough(s.Attrs.Has(terminal.AttrStrike)).
		Reverse(s.Attrs.Has(terminal.AttrReverse) != reverse)
	if s.Attrs.Has(terminal.AttrUnderline) {
		st = st.Underline(true)
	}
	return st
}

// styleCache memoizes parsed style options. Options are validated when
// set, so a failure here falls back to the default style.
type styleCache map[string]tcell.Style

func (c styleCache) get(s string) tcell.Style {
	if st, ok := c[s]; ok {
		return st
	}
	st, err := ParseStyle(s)
	if err != nil {
		st = tcell.StyleDefault
	}
	c[s] = st
	return st
}
