package codec

import (
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodeHierarchy(p storagepart.Part, _ *Context) ([]byte, error) {
	hp := p.(*storagepart.Hierarchy)
	x := hp.Index
	nodes := x.Nodes()

	w := wire.NewWriter(16 + 12*len(nodes))
	writeHeader(w, hp)
	writeNodes(w, nodes)
	w.WriteInt32s(x.Roots())
	levels := x.Levels()
	w.WriteCount(len(levels))
	for _, l := range levels {
		w.WriteVarint(l.Parent)
		w.WriteInt32s(l.Children)
	}
	w.WriteInt32s(x.Orphans())
	return encoded(w)
}

func decodeHierarchy(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	nodes := readNodes(r)
	roots := r.ReadInt32s()
	n := readLen(r)
	levels := make([]hierarchy.Level, 0, n)
	for range n {
		levels = append(levels, hierarchy.Level{Parent: r.ReadVarint(), Children: r.ReadInt32s()})
	}
	orphans := r.ReadInt32s()
	if err := finish(r); err != nil {
		return nil, err
	}
	x, err := hierarchy.Restore(nodes)
	if err != nil {
		return nil, err
	}
	if err := x.Verify(roots, levels, orphans); err != nil {
		return nil, err
	}
	return &storagepart.Hierarchy{Header: h, Index: x}, nil
}

// decodeHierarchyV1 reads hierarchy parts that persisted only node
// placements. Roots, levels and orphans are derived.
func decodeHierarchyV1(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	nodes := readNodes(r)
	if err := finish(r); err != nil {
		return nil, err
	}
	x, err := hierarchy.Restore(nodes)
	if err != nil {
		return nil, err
	}
	return &storagepart.Hierarchy{Header: h, Index: x}, nil
}

func writeNodes(w *wire.Writer, nodes []hierarchy.Node) {
	w.WriteCount(len(nodes))
	for _, n := range nodes {
		w.WriteVarint(n.ID)
		w.WriteVarint(n.Parent)
		w.WriteVarint(n.Order)
	}
}

func readNodes(r *wire.Reader) []hierarchy.Node {
	n := readLen(r)
	nodes := make([]hierarchy.Node, 0, n)
	for range n {
		nodes = append(nodes, hierarchy.Node{ID: r.ReadVarint(), Parent: r.ReadVarint(), Order: r.ReadVarint()})
	}
	return nodes
}
