// Package arrange keeps the windows of a session and the split tree of
// each window.
//
// The package is pure state: panes are created and destroyed by the
// caller, and geometry is computed from plain boxes, so everything here
// can be tested without a pty or a screen.
package arrange

import (
	"fmt"

	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
)

// Direction is a focus or resize direction.
type Direction uint8

const (
	Left Direction = iota
	Right
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	default:
		return "down"
	}
}

// Arrangement is the set of windows of a session and the panes they hold.
// It is not safe for concurrent use.
type Arrangement struct {
	windows  []*Window
	active   WindowID
	previous WindowID
	nextID   WindowID

	panes map[pane.ID]*pane.Pane
	owner map[pane.ID]*Window

	geometry Geometry

	// BaseIndex is the number of the first window.
	BaseIndex int
}

// New creates an empty arrangement.
func New() *Arrangement {
	return &Arrangement{
		panes: make(map[pane.ID]*pane.Pane),
		owner: make(map[pane.ID]*Window),
	}
}

// Empty reports whether there are no windows left.
func (a *Arrangement) Empty() bool {
	return len(a.windows) == 0
}

// NewWindow creates a window holding p and makes it active.
func (a *Arrangement) NewWindow(p *pane.Pane, name string) *Window {
	a.nextID++
	w := &Window{id: a.nextID, layout: LayoutCustom, name: name}
	w.split(0, p.ID(), Horizontal)
	a.windows = append(a.windows, w)
	a.panes[p.ID()] = p
	a.owner[p.ID()] = w
	a.setActiveWindow(w.id)
	return w
}

// AddPane splits target (the active pane when 0) in window win and places
// p after it. Horizontal puts the two side by side. The new pane becomes
// active.
func (a *Arrangement) AddPane(win WindowID, target pane.ID, p *pane.Pane, o Orientation) error {
	w := a.Window(win)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	if target != 0 && !w.Contains(target) {
		return fmt.Errorf("split %s: %w", target, muxerr.ErrNoSuchPane)
	}
	if _, dup := a.panes[p.ID()]; dup {
		return fmt.Errorf("pane %s already arranged", p.ID())
	}
	w.split(target, p.ID(), o)
	a.panes[p.ID()] = p
	a.owner[p.ID()] = w
	return nil
}

// RemovePane takes id out of its window. A window left without panes is
// removed and the previous window, or a neighbor, becomes active. It
// reports whether a window was removed.
func (a *Arrangement) RemovePane(id pane.ID) bool {
	w := a.owner[id]
	if w == nil {
		return false
	}
	delete(a.panes, id)
	delete(a.owner, id)
	w.remove(id)
	if w.root != nil {
		return false
	}
	a.removeWindow(w)
	return true
}

func (a *Arrangement) removeWindow(w *Window) {
	i := a.windowIndex(w.id)
	if i < 0 {
		return
	}
	a.windows = append(a.windows[:i], a.windows[i+1:]...)
	if a.previous == w.id {
		a.previous = 0
	}
	if a.active != w.id {
		return
	}
	a.active = 0
	switch {
	case a.previous != 0:
		a.active, a.previous = a.previous, 0
	case len(a.windows) > 0:
		a.active = a.windows[min(i, len(a.windows)-1)].id
	}
}

// Pane returns a pane by id.
func (a *Arrangement) Pane(id pane.ID) *pane.Pane {
	return a.panes[id]
}

// Panes returns every pane, window by window in tree order.
func (a *Arrangement) Panes() []*pane.Pane {
	out := make([]*pane.Pane, 0, len(a.panes))
	for _, w := range a.windows {
		for _, id := range w.Panes() {
			out = append(out, a.panes[id])
		}
	}
	return out
}

// WindowOf returns the window holding id.
func (a *Arrangement) WindowOf(id pane.ID) *Window {
	return a.owner[id]
}

// Windows returns the windows in display order.
func (a *Arrangement) Windows() []*Window {
	out := make([]*Window, len(a.windows))
	copy(out, a.windows)
	return out
}

// Window returns a window by id.
func (a *Arrangement) Window(id WindowID) *Window {
	if i := a.windowIndex(id); i >= 0 {
		return a.windows[i]
	}
	return nil
}

func (a *Arrangement) windowIndex(id WindowID) int {
	for i, w := range a.windows {
		if w.id == id {
			return i
		}
	}
	return -1
}

// Index returns the displayed number of w, counting from BaseIndex.
func (a *Arrangement) Index(w *Window) int {
	return a.windowIndex(w.id) + a.BaseIndex
}

// ActiveWindow returns the active window, or nil when there is none.
func (a *Arrangement) ActiveWindow() *Window {
	return a.Window(a.active)
}

// PreviousWindowID returns the previously active window, or 0.
func (a *Arrangement) PreviousWindowID() WindowID {
	return a.previous
}

// ActivePane returns the active pane of the active window.
func (a *Arrangement) ActivePane() *pane.Pane {
	w := a.ActiveWindow()
	if w == nil {
		return nil
	}
	return a.panes[w.active]
}

func (a *Arrangement) setActiveWindow(id WindowID) {
	if id == a.active {
		return
	}
	a.previous = a.active
	a.active = id
}

// FocusPane makes id the active pane and its window the active window.
func (a *Arrangement) FocusPane(id pane.ID) error {
	w := a.owner[id]
	if w == nil {
		return muxerr.ErrNoSuchPane
	}
	a.setActiveWindow(w.id)
	w.focus(id)
	return nil
}

// SelectWindow activates the window numbered index.
func (a *Arrangement) SelectWindow(index int) error {
	i := index - a.BaseIndex
	if i < 0 || i >= len(a.windows) {
		return fmt.Errorf("window %d: %w", index, muxerr.ErrNoSuchWindow)
	}
	a.setActiveWindow(a.windows[i].id)
	return nil
}

// NextWindow activates the window after the active one, wrapping around.
func (a *Arrangement) NextWindow() {
	a.cycleWindow(1)
}

// PreviousWindow activates the window before the active one, wrapping
// around.
func (a *Arrangement) PreviousWindow() {
	a.cycleWindow(-1)
}

func (a *Arrangement) cycleWindow(delta int) {
	n := len(a.windows)
	if n < 2 {
		return
	}
	i := a.windowIndex(a.active)
	a.setActiveWindow(a.windows[((i+delta)%n+n)%n].id)
}

// LastWindow switches to the previously active window.
func (a *Arrangement) LastWindow() error {
	if a.previous == 0 || a.Window(a.previous) == nil {
		return muxerr.NewCommandError("last-window", "no last window")
	}
	a.setActiveWindow(a.previous)
	return nil
}

// RenameWindow names a window. An empty name restores automatic naming.
func (a *Arrangement) RenameWindow(id WindowID, name string) error {
	w := a.Window(id)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	w.name = name
	return nil
}

// RenamePane names a pane.
func (a *Arrangement) RenamePane(id pane.ID, name string) error {
	p := a.panes[id]
	if p == nil {
		return muxerr.ErrNoSuchPane
	}
	p.SetName(name)
	return nil
}

// LastPane switches the active window to its previously active pane.
func (a *Arrangement) LastPane() error {
	w := a.ActiveWindow()
	if w == nil {
		return muxerr.ErrNoWindows
	}
	if w.last == 0 || !w.Contains(w.last) {
		return muxerr.NewCommandError("last-pane", "no last pane")
	}
	w.focus(w.last)
	return nil
}

// FocusNext moves focus to the next pane of the active window in tree
// order, wrapping around.
func (a *Arrangement) FocusNext() {
	w := a.ActiveWindow()
	if w == nil {
		return
	}
	ids := w.Panes()
	for i, id := range ids {
		if id == w.active {
			w.focus(ids[(i+1)%len(ids)])
			return
		}
	}
}

// ResizeActivePane moves the borders of the active pane by the given
// number of cells in each direction.
func (a *Arrangement) ResizeActivePane(up, down, left, right int) error {
	w := a.ActiveWindow()
	if w == nil {
		return muxerr.ErrNoWindows
	}
	w.resize(Horizontal, true, left)
	w.resize(Horizontal, false, right)
	w.resize(Vertical, true, up)
	w.resize(Vertical, false, down)
	return nil
}

// Rotate cycles the top-level panes of a window.
func (a *Arrangement) Rotate(id WindowID, reverse bool) error {
	w := a.Window(id)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	w.rotate(reverse)
	return nil
}

// SelectLayout rebuilds a window's tree in the named preset layout.
func (a *Arrangement) SelectLayout(id WindowID, name string) error {
	w := a.Window(id)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	l, err := ParseLayout(name)
	if err != nil {
		return err
	}
	w.rebuild(l)
	return nil
}

// NextLayout applies the preset after the window's current one.
func (a *Arrangement) NextLayout(id WindowID) error {
	return a.stepLayout(id, 1)
}

// PreviousLayout applies the preset before the window's current one.
func (a *Arrangement) PreviousLayout(id WindowID) error {
	return a.stepLayout(id, -1)
}

func (a *Arrangement) stepLayout(id WindowID, delta int) error {
	w := a.Window(id)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	n := len(layoutNames)
	next := LayoutEvenHorizontal
	if w.layout != LayoutCustom {
		next = LayoutName(((int(w.layout)+delta)%n + n) % n)
	} else if delta < 0 {
		next = LayoutTiled
	}
	w.rebuild(next)
	return nil
}

// ToggleZoom shows only the active pane of a window, or undoes that.
func (a *Arrangement) ToggleZoom(id WindowID) error {
	w := a.Window(id)
	if w == nil {
		return muxerr.ErrNoSuchWindow
	}
	if w.root != nil && !w.root.IsLeaf() {
		w.zoomed = !w.zoomed
	} else {
		w.zoomed = false
	}
	return nil
}

// Geometry returns the geometry stored by the last SetGeometry.
func (a *Arrangement) Geometry() Geometry {
	return a.geometry
}

// SetGeometry records the geometry of the last draw and rewrites the
// window's weights to cells.
func (a *Arrangement) SetGeometry(geo Geometry) {
	a.geometry = geo
	if w := a.Window(geo.Window); w != nil {
		normalize(w, geo.Body)
	}
}

// MoveFocus activates the pane next to the active pane in direction dir,
// using geo to find it. It reports whether focus changed. Panes outside
// the active window are never selected.
func (a *Arrangement) MoveFocus(dir Direction, geo Geometry) bool {
	w := a.ActiveWindow()
	if w == nil || w.zoomed {
		return false
	}
	box, ok := geo.Panes[w.active]
	if !ok {
		return false
	}

	var x, y int
	switch dir {
	case Left:
		x, y = box.X-2, box.Y+box.H/2
	case Right:
		x, y = box.X+box.W+1, box.Y+box.H/2
	case Up:
		x, y = box.X+box.W/2, box.Y-2
	case Down:
		x, y = box.X+box.W/2, box.Y+box.H+1
	}

	for _, id := range w.Panes() {
		if id == w.active {
			continue
		}
		if b, ok := geo.Panes[id]; ok && b.Contains(x, y) {
			w.focus(id)
			return true
		}
	}
	return false
}

// Flags returns the status flags of w: "*" for the active window, "-"
// for the previous one and "Z" when zoomed.
func (a *Arrangement) Flags(w *Window) string {
	var f string
	switch w.id {
	case a.active:
		f = "*"
	case a.previous:
		f = "-"
	}
	if w.zoomed {
		f += "Z"
	}
	return f
}

// CheckInvariants verifies the tree and focus invariants of every window.
func (a *Arrangement) CheckInvariants() error {
	if len(a.windows) == 0 {
		if a.active != 0 || len(a.panes) != 0 {
			return fmt.Errorf("empty arrangement with active window %d and %d panes", a.active, len(a.panes))
		}
		return nil
	}
	if a.ActiveWindow() == nil {
		return fmt.Errorf("active window %d does not exist", a.active)
	}
	seen := make(map[pane.ID]bool)
	for _, w := range a.windows {
		if w.root == nil {
			return fmt.Errorf("window %d has no panes", w.id)
		}
		if w.root.parent != nil {
			return fmt.Errorf("window %d root has a parent", w.id)
		}
		if err := w.root.check(seen); err != nil {
			return fmt.Errorf("window %d: %w", w.id, err)
		}
		if !w.Contains(w.active) {
			return fmt.Errorf("window %d active pane %s not in window", w.id, w.active)
		}
		for _, id := range w.Panes() {
			if a.owner[id] != w || a.panes[id] == nil {
				return fmt.Errorf("pane %s not registered to window %d", id, w.id)
			}
		}
	}
	if len(seen) != len(a.panes) {
		return fmt.Errorf("%d panes in trees, %d registered", len(seen), len(a.panes))
	}
	return nil
}
