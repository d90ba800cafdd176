package keys

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnknownKeyID is returned when an id has no registered key.
	ErrUnknownKeyID = errors.New("unknown key id")
	// ErrInvalidDictionary is returned when restored entries are not a bijection.
	ErrInvalidDictionary = errors.New("invalid key dictionary")
)

// NoKey is the id of "no key". Assigned ids start at 1.
const NoKey int32 = 0

// Entry is one dictionary mapping.
type Entry struct {
	ID  int32
	Key Key
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithOnNewKey registers a hook invoked after a key is assigned an id.
// The hook runs while id assignment is serialized and must not call back
// into the compressor.
func WithOnNewKey(fn func(Key, int32)) Option {
	return func(c *Compressor) {
		c.onNewKey = fn
	}
}

// Compressor is a bidirectional dictionary of keys and ids shared by all
// scopes of a catalog. Lookups are lock free; assignment of new ids is
// serialized so ids form a single monotonic sequence.
type Compressor struct {
	mu   sync.Mutex
	next int32

	byKey *xsync.MapOf[Key, int32]
	byID  *xsync.MapOf[int32, Key]

	dirty    atomic.Bool
	onNewKey func(Key, int32)
}

// NewCompressor creates an empty compressor.
func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		next:  NoKey + 1,
		byKey: xsync.NewMapOf[Key, int32](),
		byID:  xsync.NewMapOf[int32, Key](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore rebuilds a compressor from persisted entries.
func Restore(entries []Entry, opts ...Option) (*Compressor, error) {
	c := NewCompressor(opts...)
	for _, e := range entries {
		if e.ID <= NoKey || e.Key == nil {
			return nil, fmt.Errorf("%w: entry %d", ErrInvalidDictionary, e.ID)
		}
		if _, loaded := c.byKey.LoadOrStore(e.Key, e.ID); loaded {
			return nil, fmt.Errorf("%w: key %s mapped twice", ErrInvalidDictionary, e.Key)
		}
		if _, loaded := c.byID.LoadOrStore(e.ID, e.Key); loaded {
			return nil, fmt.Errorf("%w: id %d mapped twice", ErrInvalidDictionary, e.ID)
		}
		c.next = max(c.next, e.ID+1)
	}
	return c, nil
}

// ID returns the id of k, assigning the next free id on first use.
func (c *Compressor) ID(k Key) int32 {
	if id, ok := c.byKey.Load(k); ok {
		return id
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byKey.Load(k); ok {
		return id
	}
	id := c.next
	c.next++
	c.byID.Store(id, k)
	c.byKey.Store(k, id)
	c.dirty.Store(true)
	if c.onNewKey != nil {
		c.onNewKey(k, id)
	}
	return id
}

// IDIfExists returns the id of k without assigning one.
func (c *Compressor) IDIfExists(k Key) (int32, bool) {
	return c.byKey.Load(k)
}

// KeyForID returns the key registered under id.
func (c *Compressor) KeyForID(id int32) (Key, error) {
	k, ok := c.byID.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, id)
	}
	return k, nil
}

// Len returns the number of registered keys.
func (c *Compressor) Len() int {
	return c.byID.Size()
}

// Dirty reports whether keys were assigned since the last MarkClean.
func (c *Compressor) Dirty() bool {
	return c.dirty.Load()
}

// MarkClean clears the dirty flag after the dictionary was persisted.
func (c *Compressor) MarkClean() {
	c.dirty.Store(false)
}

// Entries returns all mappings ordered by id.
func (c *Compressor) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.byID.Size())
	c.byID.Range(func(id int32, k Key) bool {
		out = append(out, Entry{ID: id, Key: k})
		return true
	})
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
