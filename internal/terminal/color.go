package terminal

// ColorKind distinguishes the three ways a cell color can be specified.
type ColorKind uint8

const (
	// ColorDefault uses the attached terminal's default fg or bg.
	ColorDefault ColorKind = iota
	// ColorIndexed is one of the 256 palette entries.
	ColorIndexed
	// ColorRGB is a 24-bit color.
	ColorRGB
)

// Color is a foreground or background color of a cell.
// The zero value is the default color.
type Color struct {
	Kind    ColorKind
	Index   uint8
	R, G, B uint8
}

// DefaultColor is the terminal's default color.
var DefaultColor = Color{}

// Palette indices of the eight standard colors.
const (
	Black = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
)

// IndexedColor returns a palette color. Out of range indices are clamped.
func IndexedColor(index int) Color {
	return Color{Kind: ColorIndexed, Index: uint8(clamp(index, 0, 255))}
}

// RGBColor returns a 24-bit color.
func RGBColor(r, g, b uint8) Color {
	return Color{Kind: ColorRGB, R: r, G: g, B: b}
}

// IsDefault reports whether c is the default color.
func (c Color) IsDefault() bool {
	return c.Kind == ColorDefault
}

// ansi16 is the xterm rendition of the 16 base colors.
var ansi16 = [16][3]uint8{
	{0, 0, 0}, {205, 0, 0}, {0, 205, 0}, {205, 205, 0},
	{0, 0, 238}, {205, 0, 205}, {0, 205, 205}, {229, 229, 229},
	{127, 127, 127}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
	{92, 92, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
}

// RGB returns the 24-bit value of c. Palette entries resolve through the
// xterm 256 color table. The default color reports ok=false.
func (c Color) RGB() (r, g, b uint8, ok bool) {
	switch c.Kind {
	case ColorRGB:
		return c.R, c.G, c.B, true
	case ColorIndexed:
		i := int(c.Index)
		switch {
		case i < 16:
			v := ansi16[i]
			return v[0], v[1], v[2], true
		case i < 232:
			i -= 16
			return cube(i / 36), cube((i / 6) % 6), cube(i % 6), true
		default:
			gray := uint8((i-232)*10 + 8)
			return gray, gray, gray, true
		}
	}
	return 0, 0, 0, false
}

func cube(v int) uint8 {
	if v == 0 {
		return 0
	}
	return uint8(55 + v*40)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
