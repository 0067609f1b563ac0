package arrange

import (
	"github.com/dshills/muxstorm/internal/pane"
)

// WindowID identifies a window for the lifetime of the server.
type WindowID uint32

// Window is a tree of panes shown together.
type Window struct {
	id       WindowID
	root     *Split
	active   pane.ID
	last     pane.ID
	zoomed   bool
	layout   LayoutName
	name     string
	autoName string
}

// ID returns the window id.
func (w *Window) ID() WindowID { return w.id }

// Root returns the layout tree.
func (w *Window) Root() *Split { return w.root }

// ActivePane returns the focused pane.
func (w *Window) ActivePane() pane.ID { return w.active }

// LastPane returns the previously focused pane, or 0.
func (w *Window) LastPane() pane.ID { return w.last }

// Zoomed reports whether only the active pane is shown.
func (w *Window) Zoomed() bool { return w.zoomed }

// Layout returns the last preset applied, or LayoutCustom.
func (w *Window) Layout() LayoutName { return w.layout }

// Name returns the name given with rename-window or, when there is none,
// the automatic name.
func (w *Window) Name() string {
	if w.name != "" {
		return w.name
	}
	return w.autoName
}

// SetAutoName sets the name derived from the active pane's foreground
// process. It reports whether the name changed.
func (w *Window) SetAutoName(name string) bool {
	if w.autoName == name {
		return false
	}
	w.autoName = name
	return true
}

// Panes returns the window's panes in tree order.
func (w *Window) Panes() []pane.ID {
	if w.root == nil {
		return nil
	}
	return w.root.leaves(nil)
}

// Contains reports whether id is in w.
func (w *Window) Contains(id pane.ID) bool {
	return w.root != nil && w.root.find(id) != nil
}

func (w *Window) focus(id pane.ID) {
	if id == w.active {
		return
	}
	w.last = w.active
	w.active = id
}

// split adds a leaf for id next to target.
func (w *Window) split(target, id pane.ID, o Orientation) {
	leaf := newLeaf(id)
	if w.root == nil {
		w.root = leaf
		w.active = id
		return
	}
	t := w.root.find(target)
	if t == nil {
		t = w.root.find(w.active)
	}

	if p := t.parent; p != nil && p.orient == o {
		i := t.index()
		p.children = append(p.children, nil)
		copy(p.children[i+2:], p.children[i+1:])
		p.children[i+1] = leaf
		leaf.parent = p
		if p.cells {
			// The new border comes out of the target's cells.
			free := t.weight - 1
			leaf.weight = max(1, free/2)
			t.weight = max(1, free-leaf.weight)
		} else {
			for _, c := range p.children {
				c.weight *= 2
			}
			t.weight /= 2
			leaf.weight = t.weight
		}
	} else {
		node := &Split{orient: o}
		if p == nil {
			node.weight = 1
			w.root = node
		} else {
			p.replace(t, node)
		}
		t.weight, leaf.weight = 1, 1
		t.parent, leaf.parent = node, node
		node.children = []*Split{t, leaf}
	}
	w.layout = LayoutCustom
	w.zoomed = false
	w.focus(id)
}

// remove deletes the leaf for id and collapses the tree. It reports
// whether id was found.
func (w *Window) remove(id pane.ID) bool {
	if w.root == nil {
		return false
	}
	leaf := w.root.find(id)
	if leaf == nil {
		return false
	}

	p := leaf.parent
	if p == nil {
		w.root = nil
	} else {
		i := leaf.index()
		// The freed cells and the border go to a neighbor. Relative weights
		// keep the remaining ratios instead.
		if p.cells {
			n := i - 1
			if n < 0 {
				n = 1
			}
			p.children[n].weight += leaf.weight + 1
		}
		p.children = append(p.children[:i], p.children[i+1:]...)
		w.collapse(p)
	}

	if w.last == id {
		w.last = 0
	}
	if w.active == id {
		w.active = 0
		if w.last != 0 && w.Contains(w.last) {
			w.active, w.last = w.last, 0
		} else if w.root != nil {
			w.active = w.root.leaves(nil)[0]
		}
		w.zoomed = false
	}
	return true
}

// collapse removes single-child node s, moving its child up, and merges
// the child into the grandparent when both share an orientation.
func (w *Window) collapse(s *Split) {
	if len(s.children) != 1 {
		return
	}
	child := s.children[0]
	gp := s.parent
	if gp == nil {
		child.parent = nil
		child.weight = 1
		w.root = child
		return
	}
	gp.replace(s, child)
	if child.IsLeaf() || child.orient != gp.orient {
		return
	}
	i := child.index()
	merged := make([]*Split, 0, len(gp.children)+len(child.children)-1)
	merged = append(merged, gp.children[:i]...)
	for _, c := range child.children {
		c.parent = gp
		merged = append(merged, c)
	}
	merged = append(merged, gp.children[i+1:]...)
	gp.children = merged
	gp.cells = gp.cells && child.cells
}

// rebuild replaces the tree with a preset layout of the same panes.
func (w *Window) rebuild(l LayoutName) {
	w.root = build(l, w.Panes())
	w.layout = l
}

// rotate cycles the children of the root along with their weights.
func (w *Window) rotate(reverse bool) {
	if w.root == nil || w.root.IsLeaf() {
		return
	}
	c := w.root.children
	if reverse {
		last := c[len(c)-1]
		copy(c[1:], c[:len(c)-1])
		c[0] = last
	} else {
		first := c[0]
		copy(c, c[1:])
		c[len(c)-1] = first
	}
}

// resize moves amount cells between the active pane's subtree and its
// neighbor on one side. before selects the left or top neighbor. When the
// active pane has no neighbor on that side the opposite border moves
// instead.
func (w *Window) resize(o Orientation, before bool, amount int) {
	if amount == 0 || w.root == nil {
		return
	}
	node, neighbor := w.neighbor(o, before)
	if node == nil {
		node, neighbor = w.neighbor(o, !before)
		if node == nil {
			return
		}
		amount = -amount
	}

	// Keep both sides at their minimum.
	if amount > 0 {
		amount = min(amount, max(0, neighbor.weight-neighbor.minExtent(o)))
	} else {
		amount = -min(-amount, max(0, node.weight-node.minExtent(o)))
	}
	if amount == 0 {
		return
	}
	node.weight += amount
	neighbor.weight -= amount
	w.layout = LayoutCustom
}

// neighbor finds the nearest ancestor of the active leaf (or the leaf
// itself) inside a split of orientation o that has a sibling on the
// requested side, and returns it with that sibling.
func (w *Window) neighbor(o Orientation, before bool) (node, sibling *Split) {
	n := w.root.find(w.active)
	for n != nil && n.parent != nil {
		p := n.parent
		if p.orient == o {
			i := n.index()
			if before && i > 0 {
				return n, p.children[i-1]
			}
			if !before && i < len(p.children)-1 {
				return n, p.children[i+1]
			}
		}
		n = p
	}
	return nil, nil
}
