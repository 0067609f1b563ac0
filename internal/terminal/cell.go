package terminal

import "strings"

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

	AttrNone Attr = 0
)

// Has reports whether every attribute in mask is set.
func (a Attr) Has(mask Attr) bool {
	return a&mask == mask
}

// Style is the rendition applied to a cell.
type Style struct {
	Fg    Color
	Bg    Color
	Attrs Attr
}

// maxCombining bounds the combining runes kept per cell.
const maxCombining = 8

// Cell is one grid position.
//
// A wide glyph stores its rune in the left cell with Width 2; the cell to
// its right is a continuation with Width 0 and no rune.
type Cell struct {
	Rune  rune
	Comb  []rune
	Width uint8
	Style Style
}

// EmptyCell returns a blank cell in the default style.
func EmptyCell() Cell {
	return Cell{Rune: ' ', Width: 1}
}

// blank is an erased cell. Erasure keeps the background of the pen.
func blank(pen Style) Cell {
	return Cell{Rune: ' ', Width: 1, Style: Style{Bg: pen.Bg}}
}

// IsContinuation reports whether c is the right half of a wide glyph.
func (c Cell) IsContinuation() bool {
	return c.Width == 0
}

// String returns the cell's glyph including combining runes.
func (c Cell) String() string {
	if c.Width == 0 {
		return ""
	}
	if len(c.Comb) == 0 {
		return string(c.Rune)
	}
	var b strings.Builder
	b.WriteRune(c.Rune)
	for _, r := range c.Comb {
		b.WriteRune(r)
	}
	return b.String()
}

// Line is one row of cells.
type Line struct {
	Cells []Cell
	// Wrapped is set when printing continued onto the next row.
	Wrapped bool
}

func newLine(cols int, pen Style) *Line {
	l := &Line{Cells: make([]Cell, cols)}
	c := blank(pen)
	for i := range l.Cells {
		l.Cells[i] = c
	}
	return l
}

// Text returns the line's glyphs with trailing blanks removed.
func (l *Line) Text() string {
	var b strings.Builder
	for _, c := range l.Cells {
		b.WriteString(c.String())
	}
	return strings.TrimRight(b.String(), " ")
}

// resize pads or clips the line to cols.
func (l *Line) resize(cols int) {
	switch {
	case cols < len(l.Cells):
		l.Cells = l.Cells[:cols]
		if cols > 0 && l.Cells[cols-1].Width == 2 {
			l.Cells[cols-1] = EmptyCell()
		}
	case cols > len(l.Cells):
		for len(l.Cells) < cols {
			l.Cells = append(l.Cells, EmptyCell())
		}
	}
}

// fill blanks cells [from, to).
func (l *Line) fill(from, to int, pen Style) {
	from = clamp(from, 0, len(l.Cells))
	to = clamp(to, 0, len(l.Cells))
	c := blank(pen)
	for i := from; i < to; i++ {
		l.Cells[i] = c
	}
	l.repair()
}

// repair blanks halves of wide glyphs whose partner was overwritten.
func (l *Line) repair() {
	for i := range l.Cells {
		c := l.Cells[i]
		switch {
		case c.Width == 2 && (i+1 >= len(l.Cells) || l.Cells[i+1].Width != 0):
			l.Cells[i] = Cell{Rune: ' ', Width: 1, Style: c.Style}
		case c.Width == 0 && (i == 0 || l.Cells[i-1].Width != 2):
			l.Cells[i] = Cell{Rune: ' ', Width: 1, Style: c.Style}
		}
	}
}
