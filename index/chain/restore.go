package chain

import (
	"cmp"
	"fmt"
	"slices"
)

// Restore rebuilds an index from persisted element states. When chains is
// non-nil it must match the chains obtained by walking the states.
func Restore(elements []Element, chains [][]int32) (*Index, error) {
	x := New()
	for _, e := range elements {
		if e.Record < 0 {
			return nil, fmt.Errorf("%w: negative record %d", ErrCorrupted, e.Record)
		}
		if _, dup := x.nodes[e.Record]; dup {
			return nil, fmt.Errorf("%w: record %d stored twice", ErrCorrupted, e.Record)
		}
		if e.State > StateTail {
			return nil, fmt.Errorf("%w: record %d has invalid state %d", ErrCorrupted, e.Record, e.State)
		}
		x.nodes[e.Record] = &node{head: e.Head, pred: e.Predecessor, succ: Head, state: e.State}
	}
	for _, e := range elements {
		if e.Predecessor == Head {
			continue
		}
		p, ok := x.nodes[e.Predecessor]
		if !ok {
			return nil, fmt.Errorf("%w: %d follows missing record %d", ErrCorrupted, e.Record, e.Predecessor)
		}
		if p.succ != Head {
			return nil, fmt.Errorf("%w: %d and %d both follow %d", ErrCorrupted, p.succ, e.Record, e.Predecessor)
		}
		p.succ = e.Record
	}
	if err := x.Verify(); err != nil {
		return nil, err
	}

	walked := x.walk()
	if chains != nil {
		stored := slices.Clone(chains)
		slices.SortFunc(stored, func(a, b []int32) int {
			if c := cmp.Compare(len(b), len(a)); c != 0 {
				return c
			}
			if len(a) == 0 {
				return 0
			}
			return cmp.Compare(a[0], b[0])
		})
		if !slices.EqualFunc(walked, stored, slices.Equal[[]int32]) {
			return nil, fmt.Errorf("%w: stored chains differ from element states", ErrCorrupted)
		}
	}
	x.chains = walked
	return x, nil
}
