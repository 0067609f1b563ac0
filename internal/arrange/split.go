package arrange

import (
	"fmt"

	"github.com/dshills/muxstorm/internal/pane"
)

// Orientation is the direction in which a split lays out its children.
type Orientation uint8

const (
	// Horizontal places children side by side, left to right.
	Horizontal Orientation = iota
	// Vertical stacks children top to bottom.
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Split is a node of a window's layout tree: either a leaf holding a pane
// or an internal node with at least two children.
//
// Weights are relative within a parent. After each draw they are rewritten
// to the cell extent of each child, so resizing moves whole cells.
type Split struct {
	parent   *Split
	pane     pane.ID
	orient   Orientation
	children []*Split
	weight   int
	// cells is set once the children's weights are cell extents.
	cells bool
}

func newLeaf(id pane.ID) *Split {
	return &Split{pane: id, weight: 1}
}

func newNode(o Orientation, children ...*Split) *Split {
	s := &Split{orient: o, weight: 1}
	for _, c := range children {
		c.parent = s
	}
	s.children = children
	return s
}

// IsLeaf reports whether s holds a pane.
func (s *Split) IsLeaf() bool { return len(s.children) == 0 }

// Pane returns the pane of a leaf.
func (s *Split) Pane() pane.ID { return s.pane }

// Orientation returns the orientation of an internal node.
func (s *Split) Orientation() Orientation { return s.orient }

// Children returns the children of an internal node.
func (s *Split) Children() []*Split { return s.children }

// Weight returns the node's weight within its parent.
func (s *Split) Weight() int { return s.weight }

func (s *Split) index() int {
	if s.parent == nil {
		return -1
	}
	for i, c := range s.parent.children {
		if c == s {
			return i
		}
	}
	return -1
}

// leaves appends the pane ids under s in tree order.
func (s *Split) leaves(out []pane.ID) []pane.ID {
	if s.IsLeaf() {
		return append(out, s.pane)
	}
	for _, c := range s.children {
		out = c.leaves(out)
	}
	return out
}

func (s *Split) find(id pane.ID) *Split {
	if s.IsLeaf() {
		if s.pane == id {
			return s
		}
		return nil
	}
	for _, c := range s.children {
		if f := c.find(id); f != nil {
			return f
		}
	}
	return nil
}

// minExtent is the smallest extent s can take along o with one cell per
// leaf and one border cell between siblings.
func (s *Split) minExtent(o Orientation) int {
	if s.IsLeaf() {
		return 1
	}
	if s.orient == o {
		n := len(s.children) - 1
		for _, c := range s.children {
			n += c.minExtent(o)
		}
		return n
	}
	m := 1
	for _, c := range s.children {
		m = max(m, c.minExtent(o))
	}
	return m
}

// replace puts repl where old was in s's children.
func (s *Split) replace(old, repl *Split) {
	for i, c := range s.children {
		if c == old {
			repl.parent = s
			repl.weight = old.weight
			s.children[i] = repl
			return
		}
	}
}

// check verifies the structural invariants below s.
func (s *Split) check(seen map[pane.ID]bool) error {
	if s.IsLeaf() {
		if seen[s.pane] {
			return fmt.Errorf("pane %s appears twice", s.pane)
		}
		seen[s.pane] = true
		return nil
	}
	if len(s.children) < 2 {
		return fmt.Errorf("%s split with %d children", s.orient, len(s.children))
	}
	for _, c := range s.children {
		if c.parent != s {
			return fmt.Errorf("child of %s split has wrong parent", s.orient)
		}
		if c.weight < 1 {
			return fmt.Errorf("child weight %d below 1", c.weight)
		}
		if err := c.check(seen); err != nil {
			return err
		}
	}
	return nil
}

// Box is a rectangle in screen cells.
type Box struct {
	X, Y, W, H int
}

// Contains reports whether the cell (x, y) lies inside b.
func (b Box) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.W && y >= b.Y && y < b.Y+b.H
}

// Empty reports whether b has no cells.
func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

// Geometry is the result of laying out one window.
type Geometry struct {
	Window WindowID
	Body   Box
	Panes  map[pane.ID]Box
}

// extent returns the box's size along o.
func (b Box) extent(o Orientation) int {
	if o == Horizontal {
		return b.W
	}
	return b.H
}

// distribute divides total cells among weights. Remainder cells go to the
// last entries. When possible every entry gets at least its minimum.
func distribute(total int, weights, mins []int) []int {
	n := len(weights)
	sizes := make([]int, n)
	if total <= 0 || n == 0 {
		return sizes
	}
	sum := 0
	for _, w := range weights {
		sum += w
	}
	used := 0
	for i, w := range weights {
		sizes[i] = total * w / sum
		used += sizes[i]
	}
	for i := n - 1; used < total; i-- {
		if i < 0 {
			i = n - 1
		}
		sizes[i]++
		used++
	}

	// Take from the largest entries for any that fell below their minimum.
	for i := range sizes {
		for sizes[i] < mins[i] {
			donor := -1
			for j := range sizes {
				if j != i && sizes[j] > mins[j] && (donor < 0 || sizes[j] > sizes[donor]) {
					donor = j
				}
			}
			if donor < 0 {
				break
			}
			sizes[donor]--
			sizes[i]++
		}
	}
	return sizes
}

// layoutSplit calls visit for every node under s with the box it covers.
func layoutSplit(s *Split, box Box, visit func(*Split, Box)) {
	visit(s, box)
	if s.IsLeaf() {
		return
	}
	n := len(s.children)
	weights := make([]int, n)
	mins := make([]int, n)
	for i, c := range s.children {
		weights[i] = c.weight
		mins[i] = c.minExtent(s.orient)
	}
	sizes := distribute(box.extent(s.orient)-(n-1), weights, mins)

	pos := 0
	for i, c := range s.children {
		child := box
		if s.orient == Horizontal {
			child.X = box.X + pos
			child.W = sizes[i]
		} else {
			child.Y = box.Y + pos
			child.H = sizes[i]
		}
		layoutSplit(c, child, visit)
		pos += sizes[i] + 1
	}
}

// Layout computes the boxes of the visible panes of w inside body. A
// zoomed window shows only its active pane.
func Layout(w *Window, body Box) Geometry {
	geo := Geometry{Window: w.id, Body: body, Panes: make(map[pane.ID]Box)}
	if w.root == nil {
		return geo
	}
	if w.zoomed {
		geo.Panes[w.active] = body
		return geo
	}
	layoutSplit(w.root, body, func(s *Split, b Box) {
		if s.IsLeaf() {
			geo.Panes[s.pane] = b
		}
	})
	return geo
}

// normalize rewrites the weights under w's root to the cell extents they
// take inside body.
func normalize(w *Window, body Box) {
	if w.root == nil || w.zoomed {
		return
	}
	layoutSplit(w.root, body, func(s *Split, b Box) {
		if !s.IsLeaf() {
			s.cells = true
		}
		if s.parent == nil {
			return
		}
		if e := b.extent(s.parent.orient); e > 0 {
			s.weight = e
		}
	})
}
