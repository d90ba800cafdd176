package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/store"
)

type encodedPart struct {
	id      storagepart.ID
	part    storagepart.Part
	version uint16
	data    []byte
	sum     uint64
}

type commitStats struct {
	appended int
	skipped  int
	deleted  int
	bytes    int64
}

// persistDictionary appends the key dictionary when keys were assigned
// since it was last written, or when force is set.
func (c *Catalog) persistDictionary(ctx context.Context, force bool) (int64, error) {
	c.dictMu.Lock()
	defer c.dictMu.Unlock()

	entries := c.keys.Entries()
	if !force && len(entries) <= c.persistedKeys {
		return 0, nil
	}
	p := storagepart.NewKeyDictionary(entries)
	version, data, err := c.registry.Encode(p, c.codecCtx)
	if err != nil {
		return 0, err
	}
	off, err := c.store.Append(ctx, dictionaryID, version, data)
	if err != nil {
		return 0, fmt.Errorf("append key dictionary: %w", err)
	}
	c.dictLoc = store.Location{Key: dictionaryID, Version: version, Offset: off, Size: len(data)}
	c.persistedKeys = len(entries)
	c.keys.MarkClean()
	return int64(len(data)), nil
}

func (c *Catalog) encode(ctx context.Context, touched map[storagepart.ID]storagepart.Part) ([]encodedPart, error) {
	ids := slices.SortedFunc(maps.Keys(touched), store.CompareIDs)
	out := make([]encodedPart, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		p := touched[id]
		g.Go(func() error {
			if err := c.rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer c.rc.ReleaseWorker()

			start := time.Now()
			version, data, err := c.registry.Encode(p, c.codecCtx)
			c.metrics.OnEncode(id.Type, time.Since(start), len(data), err)
			if err != nil {
				return err
			}
			out[i] = encodedPart{id: id, part: p, version: version, data: data, sum: xxhash.Sum64(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// commit writes touched and deleted parts of sc on top of base and returns
// the snapshot to publish. The base snapshot is left untouched.
func (c *Catalog) commit(ctx context.Context, sc *Scope, base *Snapshot, touched map[storagepart.ID]storagepart.Part, deleted map[storagepart.ID]struct{}) (*Snapshot, commitStats, error) {
	var stats commitStats

	n, err := c.persistDictionary(ctx, false)
	if err != nil {
		return nil, stats, err
	}
	stats.bytes += n

	encoded, err := c.encode(ctx, touched)
	if err != nil {
		return nil, stats, err
	}

	next := base.next()
	for _, ep := range encoded {
		prev, had := base.parts[ep.id]
		if had && unchanged(c, prev, ep) {
			stats.skipped++
			continue
		}
		off, err := c.store.Append(ctx, ep.id, ep.version, ep.data)
		if err != nil {
			return nil, stats, fmt.Errorf("append %s: %w", ep.id, err)
		}
		stats.appended++
		stats.bytes += int64(len(ep.data))
		loc := store.Location{Key: ep.id, Version: ep.version, Offset: off, Size: len(ep.data)}
		c.cache.Add(off, cachedPart{part: ep.part, sum: ep.sum})
		next.parts[ep.id] = &entry{loc: loc, sum: ep.sum}

		if had {
			for _, stale := range prev.stale {
				if err := c.store.Delete(ctx, stale); err != nil {
					return nil, stats, fmt.Errorf("delete %s: %w", stale, err)
				}
			}
		}
	}

	for _, id := range slices.SortedFunc(maps.Keys(deleted), store.CompareIDs) {
		prev, had := base.parts[id]
		if !had {
			continue
		}
		for _, stale := range prev.stale {
			if err := c.store.Delete(ctx, stale); err != nil {
				return nil, stats, fmt.Errorf("delete %s: %w", stale, err)
			}
		}
		if prev.persisted() {
			if err := c.store.Delete(ctx, id); err != nil {
				return nil, stats, fmt.Errorf("delete %s: %w", id, err)
			}
		}
		delete(next.parts, id)
		stats.deleted++
	}
	return next, stats, nil
}

// unchanged reports whether ep encodes to the bytes already stored for prev.
func unchanged(c *Catalog, prev *entry, ep encodedPart) bool {
	if !prev.persisted() || prev.dirty || len(prev.stale) > 0 || prev.loc.Version != ep.version {
		return false
	}
	sum, ok := c.fingerprint(prev)
	return ok && sum == ep.sum
}
