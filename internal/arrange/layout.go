package arrange

import (
	"math"

	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
)

// LayoutName is one of the preset layouts.
type LayoutName int

const (
	// LayoutCustom is a layout built by splitting and resizing.
	LayoutCustom LayoutName = iota - 1
	LayoutEvenHorizontal
	LayoutEvenVertical
	LayoutMainHorizontal
	LayoutMainVertical
	LayoutTiled
)

var layoutNames = []string{
	"even-horizontal",
	"even-vertical",
	"main-horizontal",
	"main-vertical",
	"tiled",
}

// mainWeight is the share of the main pane against the rest in the main-*
// layouts.
const mainWeight = 2

func (l LayoutName) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return "custom"
	}
	return layoutNames[l]
}

// LayoutNames returns the preset layouts in cycling order.
func LayoutNames() []string {
	out := make([]string, len(layoutNames))
	copy(out, layoutNames)
	return out
}

// ParseLayout looks up a preset layout by name.
func ParseLayout(name string) (LayoutName, error) {
	for i, n := range layoutNames {
		if n == name {
			return LayoutName(i), nil
		}
	}
	return LayoutCustom, muxerr.NewCommandError("select-layout", "unknown layout: %s", name)
}

// build makes a fresh tree for ids in the given layout.
func build(l LayoutName, ids []pane.ID) *Split {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) == 1 {
		return newLeaf(ids[0])
	}
	switch l {
	case LayoutEvenVertical:
		return row(Vertical, ids)
	case LayoutMainHorizontal, LayoutMainVertical:
		outer, inner := Vertical, Horizontal
		if l == LayoutMainVertical {
			outer, inner = Horizontal, Vertical
		}
		main := newLeaf(ids[0])
		main.weight = mainWeight
		return newNode(outer, main, row(inner, ids[1:]))
	case LayoutTiled:
		return tiled(ids)
	default:
		return row(Horizontal, ids)
	}
}

// row lays ids out evenly in one direction. A single id is a leaf.
func row(o Orientation, ids []pane.ID) *Split {
	if len(ids) == 1 {
		return newLeaf(ids[0])
	}
	children := make([]*Split, len(ids))
	for i, id := range ids {
		children[i] = newLeaf(id)
	}
	return newNode(o, children...)
}

// tiled arranges ids in a grid of rows, filling each row before the next.
func tiled(ids []pane.ID) *Split {
	cols := int(math.Ceil(math.Sqrt(float64(len(ids)))))
	var rows []*Split
	for start := 0; start < len(ids); start += cols {
		end := min(start+cols, len(ids))
		rows = append(rows, row(Horizontal, ids[start:end]))
	}
	if len(rows) == 1 {
		return rows[0]
	}
	return newNode(Vertical, rows...)
}
