package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorKind says how a StyleColor is specified.
type ColorKind uint8

const (
	// ColorUnset leaves the color as it was.
	ColorUnset ColorKind = iota
	// ColorDefault is the terminal's default color.
	ColorDefault
	// ColorIndexed is a palette index from 0 to 255.
	ColorIndexed
	// ColorRGB is a 24-bit color.
	ColorRGB
)

// StyleColor is one side of a style.
type StyleColor struct {
	Kind    ColorKind
	Index   int
	R, G, B uint8
}

// Attr is a set of text attributes.
type Attr uint16

const (
	AttrBold Attr = 1 << iota
	AttrDim
	AttrItalic
	AttrUnderline
	AttrBlink
	AttrReverse
	AttrHidden
	AttrStrike
)

var attrNames = map[string]Attr{
	"bold":          AttrBold,
	"bright":        AttrBold,
	"dim":           AttrDim,
	"italics":       AttrItalic,
	"italic":        AttrItalic,
	"underscore":    AttrUnderline,
	"underline":     AttrUnderline,
	"blink":         AttrBlink,
	"reverse":       AttrReverse,
	"hidden":        AttrHidden,
	"strikethrough": AttrStrike,
	"strike":        AttrStrike,
}

var colorNames = map[string]int{
	"black":   0,
	"red":     1,
	"green":   2,
	"yellow":  3,
	"blue":    4,
	"magenta": 5,
	"cyan":    6,
	"white":   7,
}

// Style is a parsed style string such as "bg=green,fg=#ff8800,bold".
type Style struct {
	Fg, Bg StyleColor
	// Attrs are switched on and Clear switched off ("nobold").
	Attrs, Clear Attr
}

// ParseStyle parses a comma or space separated style string. Tokens are
// fg=COLOR, bg=COLOR, "default", "none" and attribute names optionally
// prefixed with "no". Colors are names, brightNAME, colourN, colorN,
// #rrggbb or "default".
func ParseStyle(s string) (Style, error) {
	var st Style
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	for _, f := range fields {
		tok := strings.ToLower(f)
		switch {
		case tok == "default":
			st.Fg = StyleColor{Kind: ColorDefault}
			st.Bg = StyleColor{Kind: ColorDefault}
		case tok == "none":
			st.Clear = AttrBold | AttrDim | AttrItalic | AttrUnderline | AttrBlink | AttrReverse | AttrHidden | AttrStrike
			st.Attrs = 0
		case strings.HasPrefix(tok, "fg="):
			c, err := ParseColor(f[3:])
			if err != nil {
				return Style{}, err
			}
			st.Fg = c
		case strings.HasPrefix(tok, "bg="):
			c, err := ParseColor(f[3:])
			if err != nil {
				return Style{}, err
			}
			st.Bg = c
		default:
			neg := strings.HasPrefix(tok, "no")
			name := tok
			if neg {
				name = tok[2:]
			}
			a, ok := attrNames[name]
			if !ok {
				return Style{}, fmt.Errorf("unknown style token %q", f)
			}
			if neg {
				st.Clear |= a
				st.Attrs &^= a
			} else {
				st.Attrs |= a
				st.Clear &^= a
			}
		}
	}
	return st, nil
}

// ParseColor parses a single color.
func ParseColor(s string) (StyleColor, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "default" || name == "terminal" {
		return StyleColor{Kind: ColorDefault}, nil
	}
	if strings.HasPrefix(name, "#") {
		c, err := colorful.Hex(name)
		if err != nil {
			return StyleColor{}, fmt.Errorf("bad color %q: %w", s, err)
		}
		r, g, b := c.RGB255()
		return StyleColor{Kind: ColorRGB, R: r, G: g, B: b}, nil
	}
	for _, prefix := range []string{"colour", "color"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 || n > 255 {
				return StyleColor{}, fmt.Errorf("bad color %q", s)
			}
			return StyleColor{Kind: ColorIndexed, Index: n}, nil
		}
	}
	if rest, ok := strings.CutPrefix(name, "bright"); ok {
		if n, ok := colorNames[rest]; ok {
			return StyleColor{Kind: ColorIndexed, Index: n + 8}, nil
		}
	}
	if n, ok := colorNames[name]; ok {
		return StyleColor{Kind: ColorIndexed, Index: n}, nil
	}
	return StyleColor{}, fmt.Errorf("unknown color %q", s)
}
