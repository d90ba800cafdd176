package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/internal/resource"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/store"
)

var dictionaryID = storagepart.IDOf(storagepart.NewKeyDictionary(nil))

type cachedPart struct {
	part storagepart.Part
	sum  uint64
}

// Catalog owns the key compressor, the codec registry, the store and the
// scopes of one catalog.
type Catalog struct {
	store    store.Store
	registry *codec.Registry
	keys     *keys.Compressor
	codecCtx *codec.Context
	cache    *lru.Cache[int64, cachedPart]
	rc       *resource.Controller
	logger   *slog.Logger
	metrics  MetricsObserver

	mu           sync.RWMutex
	scopes       map[int32]*Scope
	catalogScope *Scope

	// dictMu serializes key dictionary appends.
	dictMu        sync.Mutex
	dictLoc       store.Location
	persistedKeys int

	closed atomic.Bool
}

// Open loads a catalog from st. Catalog wide parts are read eagerly, entity
// scope parts on first access.
func Open(ctx context.Context, st store.Store, optFns ...Option) (*Catalog, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.registry == nil {
		opts.registry = codec.Default()
	}
	if opts.cacheSize <= 0 {
		opts.cacheSize = DefaultCacheSize
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.DiscardHandler)
	}
	if opts.metrics == nil {
		opts.metrics = NoopMetricsObserver{}
	}
	if opts.rc == nil {
		opts.rc = resource.NewController(resource.Config{})
	}
	cache, err := lru.New[int64, cachedPart](opts.cacheSize)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		store:    st,
		registry: opts.registry,
		cache:    cache,
		rc:       opts.rc,
		logger:   opts.logger,
		metrics:  opts.metrics,
		scopes:   make(map[int32]*Scope),
	}

	start := time.Now()
	if err := c.load(ctx); err != nil {
		c.logger.Error("catalog load failed", "error", err)
		return nil, err
	}
	c.logger.Info("catalog loaded",
		"scopes", len(c.scopes),
		"keys", c.keys.Len(),
		"duration", time.Since(start),
	)
	if n := c.PendingMigration(); n > 0 {
		c.logger.Warn("catalog holds parts in legacy layouts", "pending_migration", n)
	}
	return c, nil
}

func (c *Catalog) load(ctx context.Context) error {
	byScope := make(map[int32][]store.Location)
	var dict *store.Location
	err := c.store.Scan(ctx, func(loc store.Location) error {
		if loc.Key == dictionaryID {
			dict = &loc
			return nil
		}
		scope, _ := storagepart.SplitPK(loc.Key.PK)
		byScope[scope] = append(byScope[scope], loc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}

	if err := c.loadDictionary(ctx, dict); err != nil {
		return err
	}

	c.catalogScope = newScope(c, entity.ScopeRef{ScopeID: storagepart.CatalogScope})
	catSnap := c.buildSnapshot(ctx, c.catalogScope, byScope[storagepart.CatalogScope])
	if err := c.catalogScope.Err(); err != nil {
		return fmt.Errorf("catalog scope: %w", err)
	}
	registry, err := catSnap.Catalog(ctx)
	if errors.Is(err, ErrPartNotFound) {
		registry = entity.NewCatalog()
	} else if err != nil {
		return err
	}
	c.catalogScope.current.Store(catSnap)

	for _, ref := range registry.Scopes() {
		sc := newScope(c, ref)
		snap := c.buildSnapshot(ctx, sc, byScope[ref.ScopeID])
		sc.current.Store(snap)
		c.scopes[ref.ScopeID] = sc
		delete(byScope, ref.ScopeID)
	}
	delete(byScope, storagepart.CatalogScope)
	for scope, locs := range byScope {
		c.logger.Warn("ignoring parts of unregistered scope", "scope", scope, "parts", len(locs))
	}
	return nil
}

func (c *Catalog) loadDictionary(ctx context.Context, loc *store.Location) error {
	c.codecCtx = &codec.Context{}
	if loc == nil {
		c.keys = keys.NewCompressor()
		c.codecCtx.Keys = c.keys
		return nil
	}
	p, _, err := c.read(ctx, *loc)
	if err != nil {
		return fmt.Errorf("key dictionary: %w", err)
	}
	d, ok := p.(*storagepart.KeyDictionary)
	if !ok {
		return fmt.Errorf("key dictionary: unexpected %T", p)
	}
	comp, err := keys.Restore(d.Entries)
	if err != nil {
		return fmt.Errorf("key dictionary: %w", err)
	}
	c.keys = comp
	c.codecCtx.Keys = comp
	c.dictLoc = *loc
	if !c.registry.IsLegacy(loc.Key.Type, loc.Version) {
		c.persistedKeys = len(d.Entries)
	}
	return nil
}

// buildSnapshot creates the initial snapshot of sc. Legacy parts are
// decoded right away because their identity may change on upgrade.
func (c *Catalog) buildSnapshot(ctx context.Context, sc *Scope, locs []store.Location) *Snapshot {
	parts := make(map[storagepart.ID]*entry, len(locs))
	type rekey struct{ from, to storagepart.ID }
	var rekeyed []rekey

	for _, loc := range locs {
		if !c.registry.IsLegacy(loc.Key.Type, loc.Version) {
			parts[loc.Key] = &entry{loc: loc}
			continue
		}
		p, sum, err := c.read(ctx, loc)
		if err != nil {
			sc.fail(fmt.Errorf("load %s: %w", loc.Key, err))
			continue
		}
		c.cache.Add(loc.Offset, cachedPart{part: p, sum: sum})
		id := storagepart.IDOf(p)
		e := &entry{loc: loc, sum: sum, dirty: true}
		if id != loc.Key {
			e.stale = []storagepart.ID{loc.Key}
			rekeyed = append(rekeyed, rekey{from: loc.Key, to: id})
		}
		parts[id] = e
	}

	snap := newSnapshot(sc, 0, parts)
	if len(rekeyed) == 0 || sc.IsCatalog() || sc.Err() != nil {
		return snap
	}

	// Registrations of the entity index still name the legacy keys.
	eid := sc.partID(storagepart.TypeEntityIndex, keys.NoKey)
	x, err := snap.EntityIndex(ctx)
	if err != nil {
		if !errors.Is(err, ErrPartNotFound) {
			sc.fail(err)
		}
		return snap
	}
	x = x.Clone()
	for _, rk := range rekeyed {
		kind, ok := registrationKind(rk.from.Type)
		if !ok {
			continue
		}
		_, from := storagepart.SplitPK(rk.from.PK)
		_, to := storagepart.SplitPK(rk.to.PK)
		x.Unregister(kind, from)
		x.Register(kind, to)
	}
	base := parts[eid]
	parts[eid] = &entry{loc: base.loc, part: storagepart.NewEntityIndex(x), dirty: true}
	c.logger.Info("legacy parts rekeyed", "scope", sc.String(), "parts", len(rekeyed))
	return snap
}

// read fetches and decodes the record at loc.
func (c *Catalog) read(ctx context.Context, loc store.Location) (storagepart.Part, uint64, error) {
	rec, err := c.store.Read(ctx, loc.Offset)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	p, err := c.registry.Decode(rec.Key.Type, rec.Version, rec.Data, c.codecCtx)
	c.metrics.OnDecode(rec.Key.Type, rec.Version, time.Since(start), err)
	if err != nil {
		return nil, 0, err
	}
	return p, xxhash.Sum64(rec.Data), nil
}

// materialize returns the part of e, reading it through the cache.
func (c *Catalog) materialize(ctx context.Context, sc *Scope, id storagepart.ID, e *entry) (storagepart.Part, error) {
	if e.part != nil {
		return e.part, nil
	}
	if v, ok := c.cache.Get(e.loc.Offset); ok {
		return v.part, nil
	}
	p, sum, err := c.read(ctx, e.loc)
	if err == nil && storagepart.IDOf(p) != id {
		err = &codec.CorruptionError{
			Type:    id.Type,
			Version: e.loc.Version,
			Err:     fmt.Errorf("%w: record holds %s", codec.ErrPartMismatch, storagepart.IDOf(p)),
		}
	}
	if err != nil {
		if IsCorruption(err) {
			sc.fail(fmt.Errorf("load %s: %w", id, err))
			return nil, sc.usable()
		}
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	c.cache.Add(e.loc.Offset, cachedPart{part: p, sum: sum})
	return p, nil
}

// fingerprint returns the xxhash of the stored bytes of e if known.
func (c *Catalog) fingerprint(e *entry) (uint64, bool) {
	if e.sum != 0 {
		return e.sum, true
	}
	if v, ok := c.cache.Peek(e.loc.Offset); ok {
		return v.sum, true
	}
	return 0, false
}

// IsCorruption reports whether err means persisted data cannot be trusted.
func IsCorruption(err error) bool {
	var ce *codec.CorruptionError
	return errors.As(err, &ce) ||
		errors.Is(err, codec.ErrUnknownVersion) ||
		errors.Is(err, store.ErrCorrupted)
}

// Keys returns the key compressor shared by all scopes.
func (c *Catalog) Keys() *keys.Compressor { return c.keys }

// Registry returns the codec registry.
func (c *Catalog) Registry() *codec.Registry { return c.registry }

// Store returns the underlying store.
func (c *Catalog) Store() store.Store { return c.store }

// CatalogScope returns the scope holding catalog wide parts.
func (c *Catalog) CatalogScope() *Scope { return c.catalogScope }

// Scope returns the scope of entityType and d.
func (c *Catalog) Scope(entityType string, d entity.Discriminator) (*Scope, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sc := range c.scopes {
		if sc.ref.EntityType == entityType && sc.ref.Discriminator == d {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrScopeNotFound, entityType, d)
}

// ScopeByID returns the scope with the given id. Id 0 is the catalog scope.
func (c *Catalog) ScopeByID(id int32) (*Scope, error) {
	if id == storagepart.CatalogScope {
		return c.catalogScope, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.scopes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrScopeNotFound, id)
	}
	return sc, nil
}

// Scopes returns the entity scopes ordered by id.
func (c *Catalog) Scopes() []*Scope {
	c.mu.RLock()
	out := make([]*Scope, 0, len(c.scopes))
	for _, sc := range c.scopes {
		out = append(out, sc)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Scope) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// CreateScope returns the scope of entityType and d, registering a new one
// if none exists.
func (c *Catalog) CreateScope(ctx context.Context, entityType string, d entity.Discriminator) (*Scope, error) {
	if sc, err := c.Scope(entityType, d); err == nil {
		return sc, nil
	}
	cat, err := c.catalogScope.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cat.Discard()

	// Re-check under the catalog writer slot.
	if sc, err := c.Scope(entityType, d); err == nil {
		return sc, nil
	}
	registry, err := cat.catalogIndex(ctx)
	if err != nil {
		return nil, err
	}
	ref := registry.Allocate(entityType, d)

	sc := newScope(c, ref)
	sess, err := sc.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := sess.EntityIndex(ctx); err != nil {
		sess.Discard()
		return nil, err
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	if err := cat.Commit(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.scopes[ref.ScopeID] = sc
	c.mu.Unlock()
	c.logger.Info("scope created", "scope", sc.String())
	return sc, nil
}

// DropScope unregisters a scope and deletes its parts from the store.
func (c *Catalog) DropScope(ctx context.Context, id int32) error {
	sc, err := c.ScopeByID(id)
	if err != nil {
		return err
	}
	if sc.IsCatalog() {
		return fmt.Errorf("%w: the catalog scope cannot be dropped", ErrWrongScope)
	}
	if err := sc.acquire(ctx); err != nil {
		return err
	}
	defer sc.release()

	cat, err := c.catalogScope.Begin(ctx)
	if err != nil {
		return err
	}
	defer cat.Discard()
	registry, err := cat.catalogIndex(ctx)
	if err != nil {
		return err
	}
	registry.Drop(id)
	if err := cat.Commit(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.scopes, id)
	c.mu.Unlock()
	sc.fail(fmt.Errorf("%w: scope %d dropped", ErrScopeNotFound, id))

	snap := sc.current.Load()
	for _, pid := range snap.IDs() {
		e := snap.parts[pid]
		for _, stale := range e.stale {
			if err := c.store.Delete(ctx, stale); err != nil {
				return err
			}
		}
		if e.persisted() {
			if err := c.store.Delete(ctx, pid); err != nil {
				return err
			}
		}
	}
	c.logger.Info("scope dropped", "scope", id, "parts", snap.Len())
	return nil
}

// Close closes the catalog and its store.
func (c *Catalog) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cache.Purge()
	return c.store.Close()
}
