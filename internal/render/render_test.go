package render

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/process"
)

func newSim(t *testing.T, cols, rows int) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, s.Init())
	s.SetSize(cols, rows)
	t.Cleanup(s.Fini)
	return s
}

func rowText(s tcell.Screen, y int) string {
	w, _ := s.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, comb, _, width := s.GetContent(x, y)
		if width == 0 {
			continue
		}
		b.WriteRune(r)
		for _, c := range comb {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// twoPanes builds a window of 81 columns split side by side.
func twoPanes() (*arrange.Arrangement, *pane.Pane, *pane.Pane) {
	a := arrange.New()
	left := pane.NewDetached(1, 40, 23)
	right := pane.NewDetached(2, 40, 23)
	w := a.NewWindow(left, "one")
	if err := a.AddPane(w.ID(), 0, right, arrange.Horizontal); err != nil {
		panic(err)
	}
	return a, left, right
}

func TestDrawSplit(t *testing.T) {
	s := newSim(t, 81, 24)
	a, left, right := twoPanes()
	left.Feed([]byte("hello"))
	right.Feed([]byte("world"))

	NewCompositor().Draw(s, a, config.Default(), Status{Session: "muxstorm"})
	s.Show()

	geo := a.Geometry()
	assert.Equal(t, arrange.Box{X: 0, Y: 0, W: 40, H: 23}, geo.Panes[1])
	assert.Equal(t, arrange.Box{X: 41, Y: 0, W: 40, H: 23}, geo.Panes[2])

	assert.True(t, strings.HasPrefix(rowText(s, 0), "hello"))
	assert.Equal(t, "world", strings.TrimSpace(string([]rune(rowText(s, 0))[41:])))
	for y := 0; y < 23; y++ {
		r, _, _, _ := s.GetContent(40, y)
		assert.Equal(t, '│', r, "row %d", y)
	}

	status := rowText(s, 23)
	assert.True(t, strings.HasPrefix(status, "[muxstorm] 0:one*"), status)

	x, y, visible := s.GetCursor()
	assert.True(t, visible)
	assert.Equal(t, 46, x)
	assert.Equal(t, 0, y)
}

func TestDrawBorderJunctions(t *testing.T) {
	s := newSim(t, 81, 24)
	a, _, _ := twoPanes()
	w := a.ActiveWindow()
	third := pane.NewDetached(3, 40, 11)
	require.NoError(t, a.AddPane(w.ID(), 2, third, arrange.Vertical))

	NewCompositor().Draw(s, a, config.Default(), Status{})

	geo := a.Geometry()
	b := geo.Panes[2]
	r, _, _, _ := s.GetContent(40, b.Y+b.H)
	assert.Equal(t, '├', r)
	r, _, _, _ = s.GetContent(60, b.Y+b.H)
	assert.Equal(t, '─', r)
}

func TestActiveBorderStyle(t *testing.T) {
	s := newSim(t, 81, 24)
	a, _, _ := twoPanes()
	opts := config.Default()
	require.NoError(t, opts.Set("pane-active-border-style", "fg=red"))

	NewCompositor().Draw(s, a, opts, Status{})

	_, _, style, _ := s.GetContent(40, 3)
	fg, _, _ := style.Decompose() //nolint:staticcheck // inspecting the drawn color
	assert.Equal(t, tcell.PaletteColor(1), fg)
}

func TestDrawWideGlyph(t *testing.T) {
	s := newSim(t, 20, 5)
	a := arrange.New()
	p := pane.NewDetached(1, 20, 4)
	a.NewWindow(p, "")
	p.Feed([]byte("中A"))

	NewCompositor().Draw(s, a, config.Default(), Status{})

	r, _, _, width := s.GetContent(0, 0)
	assert.Equal(t, '中', r)
	assert.Equal(t, 2, width)
	r, _, _, _ = s.GetContent(2, 0)
	assert.Equal(t, 'A', r)
}

func TestDrawTooSmall(t *testing.T) {
	s := newSim(t, 8, 1)
	a, _, _ := twoPanes()
	NewCompositor().Draw(s, a, config.Default(), Status{})
	assert.Equal(t, "need big", rowText(s, 0))
}

func TestDrawUsesSharedSize(t *testing.T) {
	s := newSim(t, 100, 30)
	a, _, _ := twoPanes()
	NewCompositor().Draw(s, a, config.Default(), Status{Cols: 81, Rows: 24})

	assert.Equal(t, arrange.Box{W: 81, H: 23}, a.Geometry().Body)
	assert.Equal(t, "", strings.TrimSpace(rowText(s, 29)))
	assert.NotEqual(t, "", strings.TrimSpace(rowText(s, 23)))
}

func TestStatusMessageAndPrompt(t *testing.T) {
	s := newSim(t, 40, 10)
	a := arrange.New()
	a.NewWindow(pane.NewDetached(1, 40, 9), "")
	c := NewCompositor()

	c.Draw(s, a, config.Default(), Status{Message: "no such pane"})
	assert.Equal(t, "no such pane", strings.TrimSpace(rowText(s, 9)))

	c.Draw(s, a, config.Default(), Status{Message: "line one\nline two"})
	assert.Equal(t, "line one", strings.TrimSpace(rowText(s, 0)))
	assert.Equal(t, "line two", strings.TrimSpace(rowText(s, 1)))

	c.Draw(s, a, config.Default(), Status{Prompting: true, Prompt: ":", Input: "split"})
	s.Show()
	assert.Equal(t, ":split", strings.TrimSpace(rowText(s, 9)))
	x, y, _ := s.GetCursor()
	assert.Equal(t, 6, x)
	assert.Equal(t, 9, y)
}

func TestStatusTopAndOff(t *testing.T) {
	s := newSim(t, 40, 10)
	a := arrange.New()
	p := pane.NewDetached(1, 40, 9)
	a.NewWindow(p, "w")
	p.Feed([]byte("top"))

	opts := config.Default()
	require.NoError(t, opts.Set("status-position", "top"))
	NewCompositor().Draw(s, a, opts, Status{Session: "s"})
	assert.True(t, strings.HasPrefix(rowText(s, 0), "[s]"))
	assert.True(t, strings.HasPrefix(rowText(s, 1), "top"))

	require.NoError(t, opts.Set("status", "off"))
	NewCompositor().Draw(s, a, opts, Status{})
	assert.Equal(t, arrange.Box{W: 40, H: 10}, a.Geometry().Body)
}

func TestDrawClockAndDeadPane(t *testing.T) {
	s := newSim(t, 40, 10)
	a := arrange.New()
	p := pane.NewDetached(1, 40, 9)
	a.NewWindow(p, "")
	p.Feed([]byte("hidden"))
	p.ClockMode = true

	now := time.Date(2024, 1, 1, 12, 34, 0, 0, time.UTC)
	NewCompositor().Draw(s, a, config.Default(), Status{Now: now})
	assert.False(t, strings.HasPrefix(rowText(s, 0), "hidden"))
	_, _, visible := s.GetCursor()
	assert.False(t, visible)

	p.ClockMode = false
	p.MarkDead(process.ExitStatus{Code: 3})
	NewCompositor().Draw(s, a, config.Default(), Status{})
	assert.Contains(t, rowText(s, 8), "Pane is dead (exit status 3)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab中", 3))
	assert.Equal(t, "éx", Truncate("éxyz", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestParseStyle(t *testing.T) {
	st, err := ParseStyle("bg=green,fg=#ff8800,bold")
	require.NoError(t, err)
	fg, bg, attrs := st.Decompose() //nolint:staticcheck // inspecting the parsed style
	assert.Equal(t, tcell.NewRGBColor(0xff, 0x88, 0x00), fg)
	assert.Equal(t, tcell.PaletteColor(2), bg)
	assert.NotZero(t, attrs&tcell.AttrBold)

	_, err = ParseStyle("fg=nope")
	assert.Error(t, err)
}

type sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *sink) write(b []byte) {
	s.mu.Lock()
	s.buf.Write(b)
	s.mu.Unlock()
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestScreenOverTty(t *testing.T) {
	out := &sink{}
	tty := NewTty(40, 10, out.write)
	s, err := NewScreen(tty, "no-such-terminal", false)
	require.NoError(t, err)

	w, h := s.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 10, h)

	drawText(s, 0, 0, 40, "marker", tcell.StyleDefault)
	s.Show()
	assert.Contains(t, out.String(), "marker")

	tty.SetSize(60, 20)
	s.Sync()
	w, h = s.Size()
	assert.Equal(t, 60, w)
	assert.Equal(t, 20, h)

	s.Fini()
	_, err = tty.Write([]byte("late"))
	assert.Error(t, err)
}

func TestTtyReadBlocksUntilStop(t *testing.T) {
	tty := NewTty(80, 24, func([]byte) {})
	require.NoError(t, tty.Start())

	done := make(chan error, 1)
	go func() {
		_, err := tty.Read(make([]byte, 8))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Read returned before Stop")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, tty.Stop())
	select {
	case err := <-done:
		assert.Equal(t, io.EOF, err)
	case <-time.After(time.Second):
		t.Fatal("Read still blocked after Stop")
	}

	// Start again after a stop, as a resumed screen does.
	require.NoError(t, tty.Start())
	require.NoError(t, tty.Close())
	assert.Error(t, tty.Start())
}
