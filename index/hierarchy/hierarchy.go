// Package hierarchy maintains the parent/child tree of hierarchical
// entities.
//
// A node whose parent is not (yet) present is an orphan. Orphan status only
// looks at the direct parent: children of an orphan stay attached to it and
// are not orphans themselves. Whenever a node is placed, orphans waiting for
// it are adopted; whenever a node is removed, its direct children become
// orphans.
package hierarchy

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/idxstore/bitmap"
)

// NoParent marks root nodes.
const NoParent int32 = -1

var (
	// ErrCorrupted is returned when restored state breaks tree invariants.
	ErrCorrupted = errors.New("corrupted hierarchy index")
	// ErrUnknownNode is returned for nodes not present in the index.
	ErrUnknownNode = errors.New("unknown hierarchy node")
	// ErrCycle is returned when a placement would make a node its own ancestor.
	ErrCycle = errors.New("hierarchy cycle")
)

// Node is the placement of one entity.
type Node struct {
	ID     int32
	Parent int32
	Order  int32
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool { return n.Parent == NoParent }

type item struct {
	parent int32
	order  int32
}

// Index is the hierarchy of one entity collection. It is not safe for
// concurrent mutation.
type Index struct {
	items    map[int32]item
	children map[int32][]int32
	roots    []int32
	orphans  []int32
}

// New creates an empty hierarchy.
func New() *Index {
	return &Index{
		items:    make(map[int32]item),
		children: make(map[int32][]int32),
	}
}

// SetParent places node under parent (nil for a root) at the given order
// among its siblings. An existing placement is replaced; the node keeps its
// own children.
func (x *Index) SetParent(node int32, parent *int32, order int32) error {
	if node < 0 {
		return fmt.Errorf("hierarchy: negative node id %d", node)
	}
	p := NoParent
	if parent != nil {
		p = *parent
		if p < 0 {
			return fmt.Errorf("hierarchy: negative parent id %d", p)
		}
		if x.isAncestorOrSelf(node, p) {
			return fmt.Errorf("%w: %d cannot be placed under %d", ErrCycle, node, p)
		}
	}
	if _, ok := x.items[node]; ok {
		x.unplace(node)
	}
	x.items[node] = item{parent: p, order: order}
	x.place(node)
	x.adopt(node)
	return nil
}

// Remove deletes node. Its direct children become orphans.
func (x *Index) Remove(node int32) error {
	if _, ok := x.items[node]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, node)
	}
	x.unplace(node)
	delete(x.items, node)
	for _, child := range x.children[node] {
		x.orphans = insertSorted(x.orphans, child, cmp.Compare[int32])
	}
	delete(x.children, node)
	return nil
}

// Contains reports whether node is present.
func (x *Index) Contains(node int32) bool {
	_, ok := x.items[node]
	return ok
}

// Node returns the placement of id.
func (x *Index) Node(id int32) (Node, bool) {
	it, ok := x.items[id]
	if !ok {
		return Node{}, false
	}
	return Node{ID: id, Parent: it.parent, Order: it.order}, true
}

// Children returns the direct children of node ordered by order, then id.
func (x *Index) Children(node int32) []int32 {
	return slices.Clone(x.children[node])
}

// Roots returns the nodes without parent ordered by order, then id.
func (x *Index) Roots() []int32 {
	return slices.Clone(x.roots)
}

// Orphans returns the nodes whose parent is absent, ordered by id.
func (x *Index) Orphans() []int32 {
	return slices.Clone(x.orphans)
}

// IsOrphan reports whether node waits for its parent.
func (x *Index) IsOrphan(node int32) bool {
	_, found := slices.BinarySearch(x.orphans, node)
	return found
}

// Size returns the number of nodes reachable from the roots.
func (x *Index) Size() int {
	return x.NodesFromRoot().Cardinality()
}

// SizeIncludingOrphans returns the number of nodes.
func (x *Index) SizeIncludingOrphans() int {
	return len(x.items)
}

// IsEmpty reports whether the index holds no node.
func (x *Index) IsEmpty() bool {
	return len(x.items) == 0
}

// NodesFromRoot returns all nodes reachable from the roots, skipping the
// excluded subtrees.
func (x *Index) NodesFromRoot(excluded ...int32) *bitmap.Bitmap {
	out := bitmap.New()
	skip := newVisited(excluded)
	for _, r := range x.roots {
		x.collect(out, skip, r, -1, true)
	}
	return out
}

// Descendants returns the nodes below parent down to the given number of
// levels (negative for unlimited), skipping the excluded subtrees.
func (x *Index) Descendants(parent int32, levels int, excluded ...int32) (*bitmap.Bitmap, error) {
	if _, ok := x.items[parent]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, parent)
	}
	out := bitmap.New()
	skip := newVisited(excluded)
	if skip.Test(uint(parent)) {
		return out, nil
	}
	skip.Set(uint(parent))
	if levels == 0 {
		return out, nil
	}
	for _, c := range x.children[parent] {
		x.collect(out, skip, c, levels-1, true)
	}
	return out, nil
}

// PathToRoot returns the ancestors of node from the topmost one down to its
// direct parent. The path stops at the first missing ancestor.
func (x *Index) PathToRoot(node int32) ([]int32, error) {
	it, ok := x.items[node]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, node)
	}
	var path []int32
	for p := it.parent; p != NoParent && len(path) <= len(x.items); {
		parent, ok := x.items[p]
		if !ok {
			break
		}
		path = append(path, p)
		p = parent.parent
	}
	slices.Reverse(path)
	return path, nil
}

// Visitor is called for every node in depth-first order. Returning false
// skips the children of the node.
type Visitor func(n Node, depth int) bool

// Traverse walks the tree from the roots in sibling order.
func (x *Index) Traverse(visit Visitor) {
	seen := bitset.New(uint(len(x.items)))
	var walk func(id int32, depth int)
	walk = func(id int32, depth int) {
		if seen.Test(uint(id)) {
			return
		}
		seen.Set(uint(id))
		n, _ := x.Node(id)
		if !visit(n, depth) {
			return
		}
		for _, c := range x.children[id] {
			walk(c, depth+1)
		}
	}
	for _, r := range x.roots {
		walk(r, 0)
	}
}

// Nodes returns every node ordered by id.
func (x *Index) Nodes() []Node {
	out := make([]Node, 0, len(x.items))
	for id, it := range x.items {
		out = append(out, Node{ID: id, Parent: it.parent, Order: it.order})
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Levels returns the children lists of every node that has children,
// ordered by parent id.
func (x *Index) Levels() []Level {
	out := make([]Level, 0, len(x.children))
	for p, c := range x.children {
		out = append(out, Level{Parent: p, Children: slices.Clone(c)})
	}
	slices.SortFunc(out, func(a, b Level) int { return cmp.Compare(a.Parent, b.Parent) })
	return out
}

// Clone returns a copy that can be mutated independently.
func (x *Index) Clone() *Index {
	c := &Index{
		items:    make(map[int32]item, len(x.items)),
		children: make(map[int32][]int32, len(x.children)),
		roots:    slices.Clone(x.roots),
		orphans:  slices.Clone(x.orphans),
	}
	for k, v := range x.items {
		c.items[k] = v
	}
	for k, v := range x.children {
		c.children[k] = slices.Clone(v)
	}
	return c
}

// Equals reports whether both indexes hold the same placements.
func (x *Index) Equals(other *Index) bool {
	return slices.Equal(x.Nodes(), other.Nodes())
}

func (x *Index) siblingOrder(a, b int32) int {
	ia, ib := x.items[a], x.items[b]
	if c := cmp.Compare(ia.order, ib.order); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// place links an already registered node into roots, its parent's children
// or the orphans.
func (x *Index) place(node int32) {
	p := x.items[node].parent
	switch {
	case p == NoParent:
		x.roots = insertSorted(x.roots, node, x.siblingOrder)
	case x.Contains(p):
		x.children[p] = insertSorted(x.children[p], node, x.siblingOrder)
	default:
		x.orphans = insertSorted(x.orphans, node, cmp.Compare[int32])
	}
}

// unplace unlinks node while its item is still registered.
func (x *Index) unplace(node int32) {
	p := x.items[node].parent
	switch {
	case p == NoParent:
		x.roots = removeSorted(x.roots, node, x.siblingOrder)
	case x.IsOrphan(node):
		x.orphans = removeSorted(x.orphans, node, cmp.Compare[int32])
	default:
		x.children[p] = removeSorted(x.children[p], node, x.siblingOrder)
		if len(x.children[p]) == 0 {
			delete(x.children, p)
		}
	}
}

// adopt moves orphans waiting for node under it.
func (x *Index) adopt(node int32) {
	kept := x.orphans[:0]
	var adopted []int32
	for _, o := range x.orphans {
		if x.items[o].parent == node {
			adopted = append(adopted, o)
			continue
		}
		kept = append(kept, o)
	}
	x.orphans = kept
	for _, o := range adopted {
		x.children[node] = insertSorted(x.children[node], o, x.siblingOrder)
	}
}

func (x *Index) isAncestorOrSelf(node, candidate int32) bool {
	for cur, steps := candidate, 0; cur != NoParent && steps <= len(x.items); steps++ {
		if cur == node {
			return true
		}
		it, ok := x.items[cur]
		if !ok {
			return false
		}
		cur = it.parent
	}
	return false
}

func (x *Index) collect(out *bitmap.Bitmap, skip *bitset.BitSet, id int32, levels int, include bool) {
	if skip.Test(uint(id)) {
		return
	}
	skip.Set(uint(id))
	if include {
		out.Add(id)
	}
	if levels == 0 {
		return
	}
	for _, c := range x.children[id] {
		x.collect(out, skip, c, levels-1, true)
	}
}

func newVisited(ids []int32) *bitset.BitSet {
	b := bitset.New(0)
	for _, id := range ids {
		if id >= 0 {
			b.Set(uint(id))
		}
	}
	return b
}

func insertSorted(s []int32, v int32, cmpFn func(a, b int32) int) []int32 {
	i, _ := slices.BinarySearchFunc(s, v, cmpFn)
	return slices.Insert(s, i, v)
}

func removeSorted(s []int32, v int32, cmpFn func(a, b int32) int) []int32 {
	if i, ok := slices.BinarySearchFunc(s, v, cmpFn); ok {
		return slices.Delete(s, i, i+1)
	}
	return s
}
