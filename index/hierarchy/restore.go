package hierarchy

import (
	"fmt"
	"slices"
)

// Level is the ordered children list of one parent.
type Level struct {
	Parent   int32
	Children []int32
}

// Restore rebuilds an index from its node placements. Roots, levels and
// orphans are derived.
func Restore(nodes []Node) (*Index, error) {
	x := New()
	for _, n := range nodes {
		if n.ID < 0 || (n.Parent < 0 && n.Parent != NoParent) {
			return nil, fmt.Errorf("%w: invalid node %d with parent %d", ErrCorrupted, n.ID, n.Parent)
		}
		if _, dup := x.items[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %d", ErrCorrupted, n.ID)
		}
		if n.Parent == n.ID {
			return nil, fmt.Errorf("%w: node %d is its own parent", ErrCorrupted, n.ID)
		}
		x.items[n.ID] = item{parent: n.Parent, order: n.Order}
	}
	for id := range x.items {
		if x.isAncestorOrSelf(id, x.items[id].parent) {
			return nil, fmt.Errorf("%w: node %d is part of a cycle", ErrCorrupted, id)
		}
	}
	for id := range x.items {
		x.place(id)
	}
	return x, nil
}

// Verify checks stored derived state against the state derived from the
// node placements.
func (x *Index) Verify(roots []int32, levels []Level, orphans []int32) error {
	if !slices.Equal(roots, x.roots) {
		return fmt.Errorf("%w: stored roots %v differ from derived %v", ErrCorrupted, roots, x.roots)
	}
	if !slices.Equal(orphans, x.orphans) {
		return fmt.Errorf("%w: stored orphans %v differ from derived %v", ErrCorrupted, orphans, x.orphans)
	}
	derived := x.Levels()
	if len(levels) != len(derived) {
		return fmt.Errorf("%w: stored %d levels, derived %d", ErrCorrupted, len(levels), len(derived))
	}
	for i, l := range levels {
		if l.Parent != derived[i].Parent || !slices.Equal(l.Children, derived[i].Children) {
			return fmt.Errorf("%w: children of %d differ", ErrCorrupted, l.Parent)
		}
	}
	return nil
}
