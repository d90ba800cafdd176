package codec

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/idxstore/storagepart"
)

// ErrInvalidRegistration is returned for conflicting codec registrations.
var ErrInvalidRegistration = errors.New("invalid codec registration")

type codecKey struct {
	typ     storagepart.Type
	version uint16
}

// Registry selects codecs by part type and format version.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	current map[storagepart.Type]Codec
	codecs  map[codecKey]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		current: make(map[storagepart.Type]Codec),
		codecs:  make(map[codecKey]Codec),
	}
}

// Register adds c. A current codec replaces the write path of its type and
// must not be legacy or older than a registered version.
func (r *Registry) Register(c Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := codecKey{typ: c.Type(), version: c.Version()}
	if _, dup := r.codecs[k]; dup {
		return fmt.Errorf("%w: %s version %d registered twice", ErrInvalidRegistration, k.typ, k.version)
	}
	if !c.Legacy() {
		if prev, ok := r.current[k.typ]; ok {
			return fmt.Errorf("%w: %s already has current version %d", ErrInvalidRegistration, k.typ, prev.Version())
		}
		for other := range r.codecs {
			if other.typ == k.typ && other.version > k.version {
				return fmt.Errorf("%w: %s version %d is older than registered version %d", ErrInvalidRegistration, k.typ, k.version, other.version)
			}
		}
		r.current[k.typ] = c
	} else if cur, ok := r.current[k.typ]; ok && cur.Version() < k.version {
		return fmt.Errorf("%w: legacy %s version %d is newer than current %d", ErrInvalidRegistration, k.typ, k.version, cur.Version())
	}
	r.codecs[k] = c
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(cs ...Codec) *Registry {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// CurrentVersion returns the version new parts of type t are written in.
func (r *Registry) CurrentVersion(t storagepart.Type) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.current[t]
	if !ok {
		return 0, false
	}
	return c.Version(), true
}

// IsLegacy reports whether version of t is decoded by a legacy codec.
func (r *Registry) IsLegacy(t storagepart.Type, version uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[codecKey{typ: t, version: version}]
	return ok && c.Legacy()
}

// Codecs lists all registered codecs ordered by type and version.
func (r *Registry) Codecs() []Codec {
	r.mu.RLock()
	out := make([]Codec, 0, len(r.codecs))
	for _, c := range r.codecs {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Codec) int {
		if c := cmp.Compare(a.Type(), b.Type()); c != 0 {
			return c
		}
		return cmp.Compare(a.Version(), b.Version())
	})
	return out
}

// Encode serializes p with the current codec of its type.
func (r *Registry) Encode(p storagepart.Part, ctx *Context) (uint16, []byte, error) {
	r.mu.RLock()
	c, ok := r.current[p.Type()]
	r.mu.RUnlock()
	if !ok {
		return 0, nil, fmt.Errorf("%w: no current codec for %s", ErrUnknownVersion, p.Type())
	}
	data, err := c.Encode(p, ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("codec: encode %s: %w", storagepart.IDOf(p), err)
	}
	return c.Version(), data, nil
}

// Decode deserializes data declared as version of type t. Legacy layouts
// are upgraded to current structures.
func (r *Registry) Decode(t storagepart.Type, version uint16, data []byte, ctx *Context) (storagepart.Part, error) {
	r.mu.RLock()
	c, ok := r.codecs[codecKey{typ: t, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s version %d", ErrUnknownVersion, t, version)
	}
	p, err := decodeSafely(c, data, ctx)
	if err != nil {
		var ce *CorruptionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CorruptionError{Type: t, Version: version, Err: err}
	}
	if p.Type() != t {
		return nil, &CorruptionError{Type: t, Version: version, Err: fmt.Errorf("%w: decoded %s", ErrPartMismatch, p.Type())}
	}
	return p, nil
}

func decodeSafely(c Codec, data []byte, ctx *Context) (p storagepart.Part, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("decoder panic: %v", rec)
		}
	}()
	return c.Decode(data, ctx)
}

// Format versions of the built-in codecs.
const (
	Version1 uint16 = 1
	Version2 uint16 = 2
)

// Default returns a registry with all built-in codecs.
func Default() *Registry {
	return NewRegistry().MustRegister(
		Current(storagepart.TypeKeyDictionary, Version2, encodeKeyDictionary, decodeKeyDictionary),
		Legacy(storagepart.TypeKeyDictionary, Version1, decodeKeyDictionaryV1),
		Current(storagepart.TypeCatalogIndex, Version1, encodeCatalogIndex, decodeCatalogIndex),
		Current(storagepart.TypeEntityIndex, Version1, encodeEntityIndex, decodeEntityIndex),
		Current(storagepart.TypeFilter, Version2, encodeFilter, decodeFilter),
		Legacy(storagepart.TypeFilter, Version1, decodeFilterV1),
		Current(storagepart.TypeSort, Version2, encodeSort, decodeSort),
		Legacy(storagepart.TypeSort, Version1, decodeSortV1),
		Current(storagepart.TypeUnique, Version1, encodeUnique, decodeUnique),
		Current(storagepart.TypeGlobalUnique, Version1, encodeGlobalUnique, decodeGlobalUnique),
		Current(storagepart.TypeChain, Version2, encodeChain, decodeChain),
		Legacy(storagepart.TypeChain, Version1, decodeChainV1),
		Current(storagepart.TypeAttributeCardinality, Version1, encodeAttributeCardinality, decodeAttributeCardinality),
		Current(storagepart.TypeReferenceCardinality, Version1, encodeReferenceCardinality, decodeReferenceCardinality),
		Current(storagepart.TypeHierarchy, Version2, encodeHierarchy, decodeHierarchy),
		Legacy(storagepart.TypeHierarchy, Version1, decodeHierarchyV1),
		Current(storagepart.TypeFacet, Version1, encodeFacet, decodeFacet),
		Current(storagepart.TypePrice, Version1, encodePrice, decodePrice),
	)
}
