package render

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/muxstorm/internal/arrange"
)

// clockFont holds 3x5 glyphs for the digits and the colon.
var clockFont = map[rune][5]string{
	'0': {"###", "# #", "# #", "# #", "###"},
	'1': {"  #", "  #", "  #", "  #", "  #"},
	'2': {"###", "  #", "###", "#  ", "###"},
	'3': {"###", "  #", "###", "  #", "###"},
	'4': {"# #", "# #", "###", "  #", "  #"},
	'5': {"###", "#  ", "###", "  #", "###"},
	'6': {"###", "#  ", "###", "# #", "###"},
	'7': {"###", "  #", "  #", "  #", "  #"},
	'8': {"###", "# #", "###", "# #", "###"},
	'9': {"###", "# #", "###", "  #", "###"},
	':': {" ", "#", " ", "#", " "},
}

// Each font pixel is two cells wide, and glyphs are one pixel apart.
const (
	clockPixel = 2
	clockGap   = 1
)

// clockWidth returns the width in cells of text drawn in clockFont.
func clockWidth(text string) int {
	w := 0
	for i, r := range text {
		if i > 0 {
			w += clockGap * clockPixel
		}
		w += len(clockFont[r][0]) * clockPixel
	}
	return w
}

// drawClock fills box with the time in large digits, or as plain text
// centered in the box when it does not fit.
func drawClock(s tcell.Screen, box arrange.Box, accent tcell.Style, now time.Time) {
	text := now.Format("15:04")
	w := clockWidth(text)
	if w > box.W || box.H < 5 {
		x := box.X + max(0, (box.W-len(text))/2)
		drawText(s, x, box.Y+box.H/2, box.X+box.W, text, accent)
		return
	}

	pixel := accent.Reverse(true)
	x0 := box.X + (box.W-w)/2
	y0 := box.Y + (box.H-5)/2
	for _, r := range text {
		glyph := clockFont[r]
		for row, bits := range glyph {
			for col, b := range bits {
				if b != '#' {
					continue
				}
				for k := 0; k < clockPixel; k++ {
					s.SetContent(x0+col*clockPixel+k, y0+row, ' ', nil, pixel)
				}
			}
		}
		x0 += (len(glyph[0]) + clockGap) * clockPixel
	}
}
