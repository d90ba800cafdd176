// Package migration upgrades keys and structures decoded from legacy
// layouts into their current shapes.
package migration

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/value"
)

// ErrConflict is returned when an upgraded key collides with a key that is
// already present under a different id.
var ErrConflict = errors.New("conflicting key upgrade")

// UpgradeKey converts legacy keys into their current form. Keys that are
// already current are returned unchanged with false.
func UpgradeKey(k keys.Key) (keys.Key, bool) {
	if ak, ok := k.(keys.AttributeKey); ok {
		return keys.AttributeIndexKey{AttributeName: ak.Name, Locale: ak.Locale}, true
	}
	return k, false
}

// UpgradeEntries upgrades the keys of a legacy dictionary. Ids are kept so
// parts that reference them stay valid. It returns the number of upgraded
// entries.
func UpgradeEntries(entries []keys.Entry) ([]keys.Entry, int, error) {
	out := make([]keys.Entry, len(entries))
	owner := make(map[keys.Key]int32, len(entries))
	upgraded := 0
	for i, e := range entries {
		k, changed := UpgradeKey(e.Key)
		if changed {
			upgraded++
		}
		if prev, ok := owner[k]; ok && prev != e.ID {
			return nil, 0, fmt.Errorf("%w: %s maps to ids %d and %d", ErrConflict, k, prev, e.ID)
		}
		owner[k] = e.ID
		out[i] = keys.Entry{ID: e.ID, Key: k}
	}
	return out, upgraded, nil
}

// AttributeKeyID resolves the current id of a legacy bare attribute key,
// registering the upgraded key when it is new.
func AttributeKeyID(c *keys.Compressor, legacy keys.AttributeKey) int32 {
	k, _ := UpgradeKey(legacy)
	return c.ID(k)
}

// LegacySortAxis is the comparator of single-attribute sort indexes
// written before composite sorting existed: ascending with absent values
// last.
func LegacySortAxis(t value.Type) attribute.SortAxis {
	return attribute.SortAxis{Type: t, Direction: attribute.Ascending, Nulls: attribute.NullsLast}
}

// ChainFromSequences rebuilds a chain index from ordered record sequences,
// the layout used before element states were persisted.
func ChainFromSequences(seqs [][]int32) (*chain.Index, error) {
	x := chain.New()
	for _, seq := range seqs {
		after := chain.Head
		for _, rec := range seq {
			if x.Contains(rec) {
				return nil, fmt.Errorf("%w: record %d appears twice", chain.ErrCorrupted, rec)
			}
			if err := x.InsertAfter(rec, after); err != nil {
				return nil, fmt.Errorf("%w: %v", chain.ErrCorrupted, err)
			}
			after = rec
		}
	}
	return x, nil
}
