package arrange

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
)

func newPane(id pane.ID) *pane.Pane {
	return pane.NewDetached(id, 80, 24)
}

// setup creates one window holding pane 1.
func setup(t *testing.T) (*Arrangement, *Window) {
	t.Helper()
	a := New()
	w := a.NewWindow(newPane(1), "")
	require.NoError(t, a.CheckInvariants())
	return a, w
}

func split(t *testing.T, a *Arrangement, w *Window, target, id pane.ID, o Orientation) {
	t.Helper()
	require.NoError(t, a.AddPane(w.ID(), target, newPane(id), o))
	require.NoError(t, a.CheckInvariants())
}

func TestSplitThenFocus(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	assert.Equal(t, pane.ID(2), w.ActivePane())

	geo := Layout(w, Box{W: 81, H: 24})
	assert.Equal(t, Box{X: 0, Y: 0, W: 40, H: 24}, geo.Panes[1])
	assert.Equal(t, Box{X: 41, Y: 0, W: 40, H: 24}, geo.Panes[2])
	a.SetGeometry(geo)

	assert.True(t, a.MoveFocus(Left, a.Geometry()))
	assert.Equal(t, pane.ID(1), w.ActivePane())
	assert.False(t, a.MoveFocus(Left, a.Geometry()), "nothing left of the leftmost pane")
	assert.False(t, a.MoveFocus(Up, a.Geometry()))
	assert.True(t, a.MoveFocus(Right, a.Geometry()))
	assert.Equal(t, pane.ID(2), w.ActivePane())
}

func TestSplitVerticalStacks(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Vertical)

	geo := Layout(w, Box{W: 80, H: 25})
	assert.Equal(t, Box{X: 0, Y: 0, W: 80, H: 12}, geo.Panes[1])
	assert.Equal(t, Box{X: 0, Y: 13, W: 80, H: 12}, geo.Panes[2])

	assert.True(t, a.MoveFocus(Up, geo))
	assert.Equal(t, pane.ID(1), w.ActivePane())
	assert.True(t, a.MoveFocus(Down, geo))
	assert.Equal(t, pane.ID(2), w.ActivePane())
}

func TestAddPaneSameOrientationInsertsAfterTarget(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 1, 3, Horizontal)

	assert.Equal(t, []pane.ID{1, 3, 2}, w.Panes())
	root := w.Root()
	require.Len(t, root.Children(), 3)

	// Pane 1's half is split again; pane 2 keeps its half.
	geo := Layout(w, Box{W: 80, H: 10})
	assert.Equal(t, 19, geo.Panes[1].W)
	assert.Equal(t, 19, geo.Panes[3].W)
	assert.Equal(t, 40, geo.Panes[2].W)
	assert.Equal(t, 40, geo.Panes[2].X)
}

func TestSplitKeepsResizedSiblings(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	body := Box{W: 81, H: 24}
	a.SetGeometry(Layout(w, body))
	require.NoError(t, a.ResizeActivePane(0, 0, 10, 0))
	a.SetGeometry(Layout(w, body))
	require.Equal(t, 50, a.Geometry().Panes[2].W)

	split(t, a, w, 1, 3, Horizontal)
	geo := Layout(w, body)
	assert.Equal(t, 50, geo.Panes[2].W, "untouched sibling keeps its size")
	assert.Equal(t, 15, geo.Panes[1].W)
	assert.Equal(t, 14, geo.Panes[3].W)
	assert.Equal(t, 31, geo.Panes[2].X)
}

func TestRemoveBeforeFirstDrawKeepsEvenSplit(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 0, 3, Horizontal)
	require.NoError(t, a.SelectLayout(w.ID(), "even-horizontal"))

	assert.False(t, a.RemovePane(2))
	require.NoError(t, a.CheckInvariants())
	geo := Layout(w, Box{W: 81, H: 24})
	assert.Equal(t, 40, geo.Panes[1].W)
	assert.Equal(t, 40, geo.Panes[3].W)
}

func TestRemoveAfterDrawGivesCellsToNeighbor(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 0, 3, Horizontal)
	require.NoError(t, a.SelectLayout(w.ID(), "even-horizontal"))
	body := Box{W: 80, H: 24}
	a.SetGeometry(Layout(w, body))

	assert.False(t, a.RemovePane(2))
	geo := Layout(w, body)
	assert.Equal(t, 53, geo.Panes[1].W)
	assert.Equal(t, 26, geo.Panes[3].W)
	assert.Equal(t, 54, geo.Panes[3].X)
}

func TestAddPaneErrors(t *testing.T) {
	a, w := setup(t)
	assert.ErrorIs(t, a.AddPane(99, 0, newPane(2), Horizontal), muxerr.ErrNoSuchWindow)
	assert.ErrorIs(t, a.AddPane(w.ID(), 42, newPane(2), Horizontal), muxerr.ErrNoSuchPane)
	assert.Error(t, a.AddPane(w.ID(), 0, newPane(1), Horizontal))
	require.NoError(t, a.CheckInvariants())
}

func TestRemovePaneCollapses(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 2, 3, Vertical)
	split(t, a, w, 3, 4, Horizontal)
	// H[1, V[2, H[3, 4]]]

	assert.False(t, a.RemovePane(2))
	require.NoError(t, a.CheckInvariants())
	assert.Equal(t, []pane.ID{1, 3, 4}, w.Panes())
	assert.Len(t, w.Root().Children(), 3, "nested split of the same orientation is merged")
	assert.Equal(t, Horizontal, w.Root().Orientation())

	assert.False(t, a.RemovePane(1))
	assert.False(t, a.RemovePane(3))
	require.NoError(t, a.CheckInvariants())
	assert.True(t, w.Root().IsLeaf())
	assert.Equal(t, pane.ID(4), w.ActivePane())
	assert.False(t, a.RemovePane(99))
}

func TestRemoveActivePaneFocusesLast(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 1, 3, Vertical)
	require.NoError(t, a.FocusPane(2))
	require.NoError(t, a.FocusPane(3))

	a.RemovePane(3)
	assert.Equal(t, pane.ID(2), w.ActivePane(), "previously active pane regains focus")

	a.RemovePane(2)
	assert.Equal(t, pane.ID(1), w.ActivePane(), "first leaf without a last pane")
	require.NoError(t, a.CheckInvariants())
}

func TestRemoveLastPaneRemovesWindow(t *testing.T) {
	a := New()
	w1 := a.NewWindow(newPane(1), "one")
	w2 := a.NewWindow(newPane(2), "two")
	w3 := a.NewWindow(newPane(3), "three")
	assert.Equal(t, w3, a.ActiveWindow())
	assert.Equal(t, w2.ID(), a.PreviousWindowID())

	assert.True(t, a.RemovePane(3))
	assert.Equal(t, w2, a.ActiveWindow(), "previous window becomes active")
	require.NoError(t, a.CheckInvariants())

	assert.True(t, a.RemovePane(2))
	assert.Equal(t, w1, a.ActiveWindow(), "remaining window becomes active")

	assert.True(t, a.RemovePane(1))
	assert.True(t, a.Empty())
	assert.Nil(t, a.ActiveWindow())
	assert.Nil(t, a.ActivePane())
	require.NoError(t, a.CheckInvariants())
}

func TestResizeActivePane(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	body := Box{W: 81, H: 24}
	a.SetGeometry(Layout(w, body))

	require.NoError(t, a.ResizeActivePane(0, 0, 5, 0))
	geo := Layout(w, body)
	assert.Equal(t, 35, geo.Panes[1].W)
	assert.Equal(t, Box{X: 36, Y: 0, W: 45, H: 24}, geo.Panes[2])

	// The rightmost pane has no right neighbor, so its left border moves.
	require.NoError(t, a.ResizeActivePane(0, 0, 0, 5))
	geo = Layout(w, body)
	assert.Equal(t, 40, geo.Panes[1].W)
	assert.Equal(t, 40, geo.Panes[2].W)

	require.NoError(t, a.ResizeActivePane(0, 0, 100, 0))
	geo = Layout(w, body)
	assert.Equal(t, 1, geo.Panes[1].W, "neighbor keeps one cell")
	assert.Equal(t, 79, geo.Panes[2].W)

	// No vertical split: nothing to move.
	require.NoError(t, a.ResizeActivePane(3, 3, 0, 0))
	assert.Equal(t, geo, Layout(w, body))
	assert.Equal(t, LayoutCustom, w.Layout())
}

func TestResizeWalksUpToMatchingSplit(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 2, 3, Vertical)
	// H[1, V[2, 3]] with 3 active.
	body := Box{W: 81, H: 25}
	a.SetGeometry(Layout(w, body))

	require.NoError(t, a.ResizeActivePane(0, 0, 10, 0))
	geo := Layout(w, body)
	assert.Equal(t, 30, geo.Panes[1].W)
	assert.Equal(t, 50, geo.Panes[2].W)
	assert.Equal(t, 50, geo.Panes[3].W)

	require.NoError(t, a.ResizeActivePane(2, 0, 0, 0))
	geo = Layout(w, body)
	assert.Equal(t, 10, geo.Panes[2].H)
	assert.Equal(t, 14, geo.Panes[3].H)
}

func TestSelectLayout(t *testing.T) {
	a, w := setup(t)
	for id := pane.ID(2); id <= 5; id++ {
		split(t, a, w, 0, id, Vertical)
	}
	body := Box{W: 79, H: 24}

	require.NoError(t, a.SelectLayout(w.ID(), "tiled"))
	require.NoError(t, a.CheckInvariants())
	assert.Equal(t, LayoutTiled, w.Layout())
	root := w.Root()
	assert.Equal(t, Vertical, root.Orientation())
	require.Len(t, root.Children(), 2)
	assert.Len(t, root.Children()[0].Children(), 3)
	assert.Len(t, root.Children()[1].Children(), 2)
	assert.Equal(t, []pane.ID{1, 2, 3, 4, 5}, w.Panes())

	require.NoError(t, a.SelectLayout(w.ID(), "even-horizontal"))
	geo := Layout(w, body)
	for _, id := range w.Panes() {
		assert.Equal(t, 15, geo.Panes[id].W)
	}

	active := w.ActivePane()
	err := a.SelectLayout(w.ID(), "diagonal")
	assert.True(t, muxerr.IsCommandError(err))
	assert.Equal(t, active, w.ActivePane())
}

func TestMainVerticalLayout(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 0, 3, Horizontal)
	require.NoError(t, a.SelectLayout(w.ID(), "main-vertical"))
	require.NoError(t, a.CheckInvariants())

	geo := Layout(w, Box{W: 80, H: 24})
	assert.Equal(t, Box{X: 0, Y: 0, W: 52, H: 24}, geo.Panes[1])
	assert.Equal(t, Box{X: 53, Y: 0, W: 27, H: 11}, geo.Panes[2])
	assert.Equal(t, Box{X: 53, Y: 12, W: 27, H: 12}, geo.Panes[3])
}

func TestCycleLayouts(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)

	require.NoError(t, a.NextLayout(w.ID()))
	assert.Equal(t, LayoutEvenHorizontal, w.Layout())
	require.NoError(t, a.NextLayout(w.ID()))
	assert.Equal(t, LayoutEvenVertical, w.Layout())
	require.NoError(t, a.PreviousLayout(w.ID()))
	require.NoError(t, a.PreviousLayout(w.ID()))
	assert.Equal(t, LayoutTiled, w.Layout())
	assert.Equal(t, "tiled", w.Layout().String())
	assert.Equal(t, "custom", LayoutCustom.String())
	assert.Len(t, LayoutNames(), 5)
}

func TestRotate(t *testing.T) {
	a, w := setup(t)
	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 0, 3, Horizontal)
	body := Box{W: 82, H: 10}
	a.SetGeometry(Layout(w, body))
	require.NoError(t, a.FocusPane(1))
	require.NoError(t, a.ResizeActivePane(0, 0, 0, 6))
	before := Layout(w, body)

	require.NoError(t, a.Rotate(w.ID(), false))
	assert.Equal(t, []pane.ID{2, 3, 1}, w.Panes())
	assert.Equal(t, pane.ID(1), w.ActivePane())
	after := Layout(w, body)
	assert.Equal(t, before.Panes[1].W, after.Panes[1].W, "weights travel with panes")

	require.NoError(t, a.Rotate(w.ID(), true))
	assert.Equal(t, []pane.ID{1, 2, 3}, w.Panes())

	single, _ := setup(t)
	require.NoError(t, single.Rotate(single.ActiveWindow().ID(), false))
	assert.ErrorIs(t, a.Rotate(77, false), muxerr.ErrNoSuchWindow)
}

func TestToggleZoom(t *testing.T) {
	a, w := setup(t)
	require.NoError(t, a.ToggleZoom(w.ID()))
	assert.False(t, w.Zoomed(), "a single pane is never zoomed")

	split(t, a, w, 0, 2, Horizontal)
	require.NoError(t, a.ToggleZoom(w.ID()))
	assert.True(t, w.Zoomed())
	assert.Equal(t, "*Z", a.Flags(w))

	body := Box{W: 80, H: 23}
	geo := Layout(w, body)
	assert.Equal(t, map[pane.ID]Box{2: body}, geo.Panes)
	assert.False(t, a.MoveFocus(Left, geo))

	require.NoError(t, a.ToggleZoom(w.ID()))
	assert.Len(t, Layout(w, body).Panes, 2)

	require.NoError(t, a.ToggleZoom(w.ID()))
	split(t, a, w, 0, 3, Vertical)
	assert.False(t, w.Zoomed(), "splitting unzooms")
}

func TestWindowNavigation(t *testing.T) {
	a := New()
	w1 := a.NewWindow(newPane(1), "")
	w2 := a.NewWindow(newPane(2), "")
	w3 := a.NewWindow(newPane(3), "")

	require.NoError(t, a.SelectWindow(0))
	assert.Equal(t, w1, a.ActiveWindow())
	assert.Equal(t, "*", a.Flags(w1))
	assert.Equal(t, "-", a.Flags(w3))
	assert.Equal(t, "", a.Flags(w2))

	require.NoError(t, a.LastWindow())
	assert.Equal(t, w3, a.ActiveWindow())

	a.NextWindow()
	assert.Equal(t, w1, a.ActiveWindow())
	a.PreviousWindow()
	assert.Equal(t, w3, a.ActiveWindow())
	a.PreviousWindow()
	assert.Equal(t, w2, a.ActiveWindow())

	a.BaseIndex = 1
	assert.ErrorIs(t, a.SelectWindow(0), muxerr.ErrNoSuchWindow)
	require.NoError(t, a.SelectWindow(1))
	assert.Equal(t, w1, a.ActiveWindow())
	assert.Equal(t, 3, a.Index(w3))
}

func TestLastWindowWithoutPrevious(t *testing.T) {
	a, _ := setup(t)
	assert.True(t, muxerr.IsCommandError(a.LastWindow()))
}

func TestNaming(t *testing.T) {
	a, w := setup(t)
	assert.True(t, w.SetAutoName("bash"))
	assert.False(t, w.SetAutoName("bash"))
	assert.Equal(t, "bash", w.Name())

	require.NoError(t, a.RenameWindow(w.ID(), "editor"))
	w.SetAutoName("vim")
	assert.Equal(t, "editor", w.Name())
	require.NoError(t, a.RenameWindow(w.ID(), ""))
	assert.Equal(t, "vim", w.Name())
	assert.ErrorIs(t, a.RenameWindow(9, "x"), muxerr.ErrNoSuchWindow)

	require.NoError(t, a.RenamePane(1, "logs"))
	assert.Equal(t, "logs", a.Pane(1).Name())
	assert.ErrorIs(t, a.RenamePane(9, "x"), muxerr.ErrNoSuchPane)
}

func TestLastPaneAndFocusNext(t *testing.T) {
	a, w := setup(t)
	assert.True(t, muxerr.IsCommandError(a.LastPane()))

	split(t, a, w, 0, 2, Horizontal)
	split(t, a, w, 0, 3, Horizontal)
	require.NoError(t, a.LastPane())
	assert.Equal(t, pane.ID(2), w.ActivePane())
	require.NoError(t, a.LastPane())
	assert.Equal(t, pane.ID(3), w.ActivePane())

	a.FocusNext()
	assert.Equal(t, pane.ID(1), w.ActivePane())
	a.FocusNext()
	assert.Equal(t, pane.ID(2), w.ActivePane())
}

func TestFocusPaneSwitchesWindow(t *testing.T) {
	a := New()
	w1 := a.NewWindow(newPane(1), "")
	a.NewWindow(newPane(2), "")

	require.NoError(t, a.FocusPane(1))
	assert.Equal(t, w1, a.ActiveWindow())
	assert.Equal(t, w1, a.WindowOf(1))
	assert.ErrorIs(t, a.FocusPane(5), muxerr.ErrNoSuchPane)

	ids := make([]pane.ID, 0, 2)
	for _, p := range a.Panes() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []pane.ID{1, 2}, ids)
	assert.Len(t, a.Windows(), 2)
}

func TestMoveFocusIgnoresOtherWindows(t *testing.T) {
	a := New()
	w1 := a.NewWindow(newPane(1), "")
	w2 := a.NewWindow(newPane(2), "")
	require.NoError(t, a.SelectWindow(0))

	// Stale geometry from window 2 placing its pane right of pane 1.
	geo := Geometry{Window: w2.ID(), Panes: map[pane.ID]Box{
		1: {X: 0, Y: 0, W: 40, H: 24},
		2: {X: 41, Y: 0, W: 40, H: 24},
	}}
	assert.False(t, a.MoveFocus(Right, geo))
	assert.Equal(t, w1, a.ActiveWindow())
	assert.Equal(t, pane.ID(1), w1.ActivePane())
}

func TestMoveFocusTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dirs := []Direction{Left, Right, Up, Down}

	for round := 0; round < 200; round++ {
		a, w := setup(t)
		next := pane.ID(2)
		for i := rng.Intn(12); i > 0; i-- {
			ids := w.Panes()
			target := ids[rng.Intn(len(ids))]
			o := Orientation(rng.Intn(2))
			split(t, a, w, target, next, o)
			next++
			if rng.Intn(5) == 0 && len(w.Panes()) > 1 {
				ids = w.Panes()
				a.RemovePane(ids[rng.Intn(len(ids))])
				require.NoError(t, a.CheckInvariants())
			}
		}

		body := Box{W: 10 + rng.Intn(190), H: 5 + rng.Intn(55)}
		geo := Layout(w, body)
		a.SetGeometry(geo)
		fits := body.W >= w.Root().minExtent(Horizontal) && body.H >= w.Root().minExtent(Vertical)

		if fits {
			boxes := make([]Box, 0, len(geo.Panes))
			for _, b := range geo.Panes {
				assert.False(t, b.Empty(), "round %d: empty box in %v", round, body)
				assert.True(t, b.X >= 0 && b.Y >= 0 && b.X+b.W <= body.W && b.Y+b.H <= body.H,
					"round %d: box %v outside body %v", round, b, body)
				for _, o := range boxes {
					overlap := b.X < o.X+o.W && o.X < b.X+b.W && b.Y < o.Y+o.H && o.Y < b.Y+b.H
					assert.False(t, overlap, "round %d: %v overlaps %v", round, b, o)
				}
				boxes = append(boxes, b)
			}
		}

		for step := 0; step < 20; step++ {
			dir := dirs[rng.Intn(len(dirs))]
			from := geo.Panes[w.ActivePane()]
			moved := a.MoveFocus(dir, geo)
			require.NoError(t, a.CheckInvariants())
			require.True(t, w.Contains(w.ActivePane()))
			if !moved || !fits {
				continue
			}
			to := geo.Panes[w.ActivePane()]
			switch dir {
			case Left:
				assert.Less(t, to.X, from.X)
			case Right:
				assert.Greater(t, to.X, from.X)
			case Up:
				assert.Less(t, to.Y, from.Y)
			case Down:
				assert.Greater(t, to.Y, from.Y)
			}
		}
	}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		weights []int
		mins    []int
		want    []int
	}{
		{"even", 80, []int{1, 1}, []int{1, 1}, []int{40, 40}},
		{"remainder to last", 10, []int{1, 1, 1}, []int{1, 1, 1}, []int{3, 3, 4}},
		{"proportional", 30, []int{2, 1}, []int{1, 1}, []int{20, 10}},
		{"minimum honored", 10, []int{100, 1}, []int{1, 3}, []int{7, 3}},
		{"no room", 0, []int{1, 1}, []int{1, 1}, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, distribute(tt.total, tt.weights, tt.mins))
		})
	}
}
