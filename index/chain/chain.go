// Package chain implements manually ordered record chains.
//
// Each record knows its predecessor, its successor and the head of the
// chain it belongs to. The element states are the source of truth; the list
// of chains is derived from them on demand and cached until the next
// mutation.
package chain

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Head is passed to InsertAfter to start a new chain and marks "no
// predecessor" or "no successor" in element states.
const Head int32 = -1

var (
	// ErrCorrupted is returned when element states and chains disagree.
	ErrCorrupted = errors.New("corrupted chain index")
	// ErrUnknownPredecessor is returned when inserting after a record that is not indexed.
	ErrUnknownPredecessor = errors.New("unknown predecessor")
	// ErrUnknownRecord is returned when removing a record that is not indexed.
	ErrUnknownRecord = errors.New("record not in chain index")
	// ErrSelfReference is returned when a record is inserted after itself.
	ErrSelfReference = errors.New("record cannot follow itself")
)

// State is the position of an element within its chain.
type State uint8

const (
	StateSingle State = iota
	StateHead
	StateMiddle
	StateTail
)

func (s State) String() string {
	switch s {
	case StateSingle:
		return "SINGLE"
	case StateHead:
		return "HEAD"
	case StateMiddle:
		return "MIDDLE"
	case StateTail:
		return "TAIL"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Element is the persisted state of one record.
type Element struct {
	Record      int32
	Head        int32
	Predecessor int32
	State       State
}

type node struct {
	head  int32
	pred  int32
	succ  int32
	state State
}

func (n *node) classify() {
	switch {
	case n.pred == Head && n.succ == Head:
		n.state = StateSingle
	case n.pred == Head:
		n.state = StateHead
	case n.succ == Head:
		n.state = StateTail
	default:
		n.state = StateMiddle
	}
}

// Index holds the chains of one attribute. It is not safe for concurrent
// mutation.
type Index struct {
	nodes  map[int32]*node
	chains [][]int32
}

// New creates an empty chain index.
func New() *Index {
	return &Index{nodes: make(map[int32]*node)}
}

// Len returns the number of records.
func (x *Index) Len() int { return len(x.nodes) }

// IsEmpty reports whether the index holds no record.
func (x *Index) IsEmpty() bool { return len(x.nodes) == 0 }

// Contains reports whether record is part of a chain.
func (x *Index) Contains(record int32) bool {
	_, ok := x.nodes[record]
	return ok
}

// InsertAfter places record directly after the given predecessor. Passing
// Head starts a new chain. An indexed record is moved.
func (x *Index) InsertAfter(record, after int32) error {
	if record < 0 {
		return fmt.Errorf("chain: negative record id %d", record)
	}
	if record == after {
		return fmt.Errorf("%w: %d", ErrSelfReference, record)
	}
	if after != Head {
		if _, ok := x.nodes[after]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownPredecessor, after)
		}
	}
	if n, ok := x.nodes[record]; ok {
		if n.pred == after {
			return nil
		}
		x.detach(record)
	}
	x.attach(record, after)
	x.chains = nil
	return nil
}

// Remove takes record out of its chain and links its neighbours.
func (x *Index) Remove(record int32) error {
	if _, ok := x.nodes[record]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, record)
	}
	x.detach(record)
	x.chains = nil
	return nil
}

// State returns the element state of record.
func (x *Index) State(record int32) (Element, bool) {
	n, ok := x.nodes[record]
	if !ok {
		return Element{}, false
	}
	return Element{Record: record, Head: n.head, Predecessor: n.pred, State: n.state}, true
}

// Elements returns all element states ordered by record.
func (x *Index) Elements() []Element {
	out := make([]Element, 0, len(x.nodes))
	for rec, n := range x.nodes {
		out = append(out, Element{Record: rec, Head: n.head, Predecessor: n.pred, State: n.state})
	}
	slices.SortFunc(out, func(a, b Element) int { return cmp.Compare(a.Record, b.Record) })
	return out
}

// Chains returns every chain from head to tail. Longer chains come first;
// chains of equal length are ordered by head. The result is cached and
// must not be modified.
func (x *Index) Chains() [][]int32 {
	if x.chains == nil {
		x.chains = x.walk()
	}
	return x.chains
}

// SortedRecords returns all records in chain order.
func (x *Index) SortedRecords() []int32 {
	out := make([]int32, 0, len(x.nodes))
	for _, c := range x.Chains() {
		out = append(out, c...)
	}
	return out
}

// Verify checks that every record is reachable from its declared head and
// that stored states match the links.
func (x *Index) Verify() error {
	seen := 0
	for rec, n := range x.nodes {
		if n.pred == Head {
			continue
		}
		p, ok := x.nodes[n.pred]
		if !ok {
			return fmt.Errorf("%w: %d follows missing record %d", ErrCorrupted, rec, n.pred)
		}
		if p.succ != rec {
			return fmt.Errorf("%w: %d follows %d whose successor is %d", ErrCorrupted, rec, n.pred, p.succ)
		}
	}
	for rec, n := range x.nodes {
		if n.pred != Head {
			continue
		}
		for cur := rec; cur != Head; {
			c := x.nodes[cur]
			if c == nil {
				return fmt.Errorf("%w: chain of %d links to missing record %d", ErrCorrupted, rec, cur)
			}
			if c.head != rec {
				return fmt.Errorf("%w: %d declares head %d but is reached from %d", ErrCorrupted, cur, c.head, rec)
			}
			want := *c
			want.classify()
			if want.state != c.state {
				return fmt.Errorf("%w: %d has state %s, links say %s", ErrCorrupted, cur, c.state, want.state)
			}
			seen++
			if seen > len(x.nodes) {
				return fmt.Errorf("%w: cycle in chain of %d", ErrCorrupted, rec)
			}
			cur = c.succ
		}
	}
	if seen != len(x.nodes) {
		return fmt.Errorf("%w: %d of %d records unreachable from any head", ErrCorrupted, len(x.nodes)-seen, len(x.nodes))
	}
	return nil
}

// Clone returns a copy that can be mutated independently.
func (x *Index) Clone() *Index {
	c := &Index{nodes: make(map[int32]*node, len(x.nodes)), chains: x.chains}
	for rec, n := range x.nodes {
		cp := *n
		c.nodes[rec] = &cp
	}
	return c
}

// Equals reports whether both indexes hold the same chains.
func (x *Index) Equals(other *Index) bool {
	return slices.EqualFunc(x.Chains(), other.Chains(), slices.Equal[[]int32])
}

func (x *Index) attach(record, after int32) {
	if after == Head {
		x.nodes[record] = &node{head: record, pred: Head, succ: Head, state: StateSingle}
		return
	}
	p := x.nodes[after]
	n := &node{head: p.head, pred: after, succ: p.succ}
	if s, ok := x.nodes[p.succ]; ok {
		s.pred = record
		s.classify()
	}
	p.succ = record
	p.classify()
	n.classify()
	x.nodes[record] = n
}

func (x *Index) detach(record int32) {
	n := x.nodes[record]
	delete(x.nodes, record)

	p, hasPred := x.nodes[n.pred]
	s, hasSucc := x.nodes[n.succ]
	if hasPred {
		p.succ = n.succ
		p.classify()
	}
	if hasSucc {
		s.pred = n.pred
		s.classify()
		if !hasPred {
			// successor takes over as head
			for cur := n.succ; cur != Head; cur = x.nodes[cur].succ {
				x.nodes[cur].head = n.succ
			}
		}
	}
}

func (x *Index) walk() [][]int32 {
	out := make([][]int32, 0)
	for rec, n := range x.nodes {
		if n.pred != Head {
			continue
		}
		var c []int32
		for cur := rec; cur != Head && len(c) <= len(x.nodes); cur = x.nodes[cur].succ {
			c = append(c, cur)
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b []int32) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a[0], b[0])
	})
	return out
}
