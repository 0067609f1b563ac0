package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScreenMinimumSize(t *testing.T) {
	s := NewScreen(0, -3, nil)
	cols, rows := s.Size()
	if cols != 1 || rows != 1 {
		t.Errorf("expected 1x1, got %dx%d", cols, rows)
	}
}

func TestScreenCellOutOfRange(t *testing.T) {
	s := NewScreen(4, 2, nil)
	assert.Equal(t, EmptyCell(), s.Cell(10, 10))
	assert.Equal(t, EmptyCell(), s.Cell(-1, 0))
	assert.Nil(t, s.Line(2))
}

func TestScreenResizeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		x, y       int
		cols, rows int
	}{
		{"shrink both", 5, 3, 40, 10},
		{"grow both", 5, 3, 120, 50},
		{"narrow only", 10, 20, 20, 24},
		{"short only", 70, 2, 80, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScreen(80, 24, NewHistory(100))
			s.MoveTo(tt.x, tt.y)
			s.Put('x', 1)
			s.MoveTo(tt.x, tt.y)

			s.Resize(tt.cols, tt.rows)
			s.Resize(80, 24)

			x, y := s.Cursor()
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
			assert.Equal(t, 'x', s.Cell(tt.x, tt.y).Rune)
		})
	}
}

func TestScreenResizeKeepsCursorRow(t *testing.T) {
	s := NewScreen(10, 10, NewHistory(100))
	for i := 0; i < 9; i++ {
		s.Put(rune('0'+i), 1)
		s.CarriageReturn()
		s.Index()
	}
	s.Put('9', 1)

	s.Resize(10, 5)

	_, y := s.Cursor()
	assert.Equal(t, 4, y)
	assert.Equal(t, '9', s.Cell(0, 4).Rune)
	require.Equal(t, 5, s.History().Len())
	assert.Equal(t, "0", s.History().Line(0).Text())
}

func TestScreenResizeClipsWideGlyph(t *testing.T) {
	s := NewScreen(10, 1, nil)
	s.MoveTo(8, 0)
	s.Put('世', 2)

	s.Resize(9, 1)
	assert.Equal(t, ' ', s.Cell(8, 0).Rune)
	assert.EqualValues(t, 1, s.Cell(8, 0).Width)
}

func TestScreenResizeResetsScrollRegion(t *testing.T) {
	s := NewScreen(10, 10, nil)
	s.SetScrollRegion(2, 5)
	s.Resize(10, 8)

	top, bottom := s.ScrollRegion()
	assert.Equal(t, 0, top)
	assert.Equal(t, 7, bottom)
}

func TestScreenViewOffset(t *testing.T) {
	s := NewScreen(5, 2, NewHistory(10))
	for _, r := range "abcd" {
		s.Put(r, 1)
		s.CarriageReturn()
		s.Index()
	}
	// History: a, b, c. Screen: d, blank.
	require.Equal(t, 3, s.History().Len())

	s.ScrollView(100)
	assert.Equal(t, 3, s.ViewOffset())
	assert.Equal(t, "a", s.VisibleLine(0).Text())
	assert.Equal(t, "b", s.VisibleLine(1).Text())

	s.ScrollView(-2)
	assert.Equal(t, "c", s.VisibleLine(0).Text())
	assert.Equal(t, "d", s.VisibleLine(1).Text())

	s.ResetView()
	assert.Equal(t, "d", s.VisibleLine(0).Text())
}

func TestScreenRestoreWithoutSave(t *testing.T) {
	s := NewScreen(10, 5, nil)
	s.SetPen(Style{Attrs: AttrBold})
	s.MoveTo(3, 3)
	s.RestoreCursor()

	x, y := s.Cursor()
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
	assert.Equal(t, Style{}, s.Pen())
}

func TestHistoryLimit(t *testing.T) {
	h := NewHistory(3)
	for _, r := range "abcde" {
		l := newLine(1, Style{})
		l.Cells[0].Rune = r
		h.Push(l)
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "c\nd\ne", h.Text())
	assert.Nil(t, h.Line(3))

	h.SetLimit(1)
	assert.Equal(t, "e", h.Text())

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, DefaultHistoryLimit, NewHistory(0).Limit())
}

func TestColorRGB(t *testing.T) {
	tests := []struct {
		c       Color
		r, g, b uint8
		ok      bool
	}{
		{DefaultColor, 0, 0, 0, false},
		{IndexedColor(Red), 205, 0, 0, true},
		{IndexedColor(16), 0, 0, 0, true},
		{IndexedColor(196), 255, 0, 0, true},
		{IndexedColor(232), 8, 8, 8, true},
		{IndexedColor(500), 238, 238, 238, true},
		{RGBColor(1, 2, 3), 1, 2, 3, true},
	}
	for _, tt := range tests {
		r, g, b, ok := tt.c.RGB()
		assert.Equal(t, tt.ok, ok, "%+v", tt.c)
		assert.Equal(t, [3]uint8{tt.r, tt.g, tt.b}, [3]uint8{r, g, b}, "%+v", tt.c)
	}
}
