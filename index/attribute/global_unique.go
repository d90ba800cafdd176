package attribute

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/value"
)

// NoLocale is the locale id of values that are not locale specific.
const NoLocale int32 = -1

// GlobalRecord identifies the owner of a catalog wide unique value.
type GlobalRecord struct {
	EntityType int32
	PK         int32
	LocaleID   int32
}

func (r GlobalRecord) String() string {
	return fmt.Sprintf("entity %d/%d (locale %d)", r.EntityType, r.PK, r.LocaleID)
}

// GlobalEntry is one value with its owner.
type GlobalEntry struct {
	Value  any
	Record GlobalRecord
}

// GlobalUniqueIndex maps values unique across the whole catalog to the
// owning entity. Locales are stored as small ids assigned on first use.
type GlobalUniqueIndex struct {
	name       string
	valueType  value.Type
	byValue    map[string]GlobalEntry
	locales    map[int32]value.Locale
	localeIDs  map[value.Locale]int32
	nextLocale int32
}

// NewGlobalUniqueIndex creates an empty global unique index.
func NewGlobalUniqueIndex(name string, t value.Type) *GlobalUniqueIndex {
	return &GlobalUniqueIndex{
		name:       name,
		valueType:  t,
		byValue:    make(map[string]GlobalEntry),
		locales:    make(map[int32]value.Locale),
		localeIDs:  make(map[value.Locale]int32),
		nextLocale: 1,
	}
}

// RestoreGlobalUniqueIndex rebuilds an index from decoded state.
func RestoreGlobalUniqueIndex(name string, t value.Type, entries []GlobalEntry, locales map[int32]value.Locale) (*GlobalUniqueIndex, error) {
	g := NewGlobalUniqueIndex(name, t)
	for id, l := range locales {
		if id <= 0 {
			return nil, fmt.Errorf("%w: locale id %d", ErrInconsistent, id)
		}
		if _, dup := g.localeIDs[l]; dup {
			return nil, fmt.Errorf("%w: locale %s stored twice", ErrInconsistent, l)
		}
		g.locales[id] = l
		g.localeIDs[l] = id
		g.nextLocale = max(g.nextLocale, id+1)
	}
	for _, e := range entries {
		if err := checkType(t, e.Value); err != nil {
			return nil, err
		}
		if e.Record.LocaleID != NoLocale {
			if _, ok := g.locales[e.Record.LocaleID]; !ok {
				return nil, fmt.Errorf("%w: unknown locale id %d", ErrInconsistent, e.Record.LocaleID)
			}
		}
		key := value.Key(t, e.Value)
		if _, dup := g.byValue[key]; dup {
			return nil, fmt.Errorf("%w: value %v stored twice", ErrInconsistent, e.Value)
		}
		g.byValue[key] = e
	}
	return g, nil
}

// Name returns the attribute name.
func (g *GlobalUniqueIndex) Name() string { return g.name }

// ValueType returns the type of the indexed values.
func (g *GlobalUniqueIndex) ValueType() value.Type { return g.valueType }

// Len returns the number of values.
func (g *GlobalUniqueIndex) Len() int { return len(g.byValue) }

// Register maps every value in vs to the entity. An empty locale means the
// values are not locale specific.
func (g *GlobalUniqueIndex) Register(entityType, pk int32, locale value.Locale, vs ...any) error {
	for _, v := range vs {
		if err := checkType(g.valueType, v); err != nil {
			return err
		}
		e, ok := g.byValue[value.Key(g.valueType, v)]
		if ok && (e.Record.EntityType != entityType || e.Record.PK != pk || g.locales[e.Record.LocaleID] != locale) {
			return &UniqueViolationError{
				Attribute: g.name,
				Value:     v,
				Existing:  fmt.Sprintf("entity %d/%d (locale %q)", e.Record.EntityType, e.Record.PK, g.locales[e.Record.LocaleID]),
				Requested: fmt.Sprintf("entity %d/%d (locale %q)", entityType, pk, locale),
			}
		}
	}
	want := GlobalRecord{EntityType: entityType, PK: pk, LocaleID: g.localeID(locale)}
	for _, v := range vs {
		g.byValue[value.Key(g.valueType, v)] = GlobalEntry{Value: v, Record: want}
	}
	return nil
}

// Unregister unmaps every value in vs, which must all belong to the entity.
func (g *GlobalUniqueIndex) Unregister(entityType, pk int32, locale value.Locale, vs ...any) error {
	want := GlobalRecord{EntityType: entityType, PK: pk, LocaleID: NoLocale}
	if locale != "" {
		id, ok := g.localeIDs[locale]
		if !ok {
			return fmt.Errorf("%w: unknown locale %s", ErrRecordNotFound, locale)
		}
		want.LocaleID = id
	}
	for _, v := range vs {
		if err := checkType(g.valueType, v); err != nil {
			return err
		}
		e, ok := g.byValue[value.Key(g.valueType, v)]
		if !ok {
			return fmt.Errorf("%w: no entity holds %v", ErrRecordNotFound, v)
		}
		if e.Record != want {
			return fmt.Errorf("%w: %v belongs to %s, not %s", ErrNotOwner, v, e.Record, want)
		}
	}
	for _, v := range vs {
		delete(g.byValue, value.Key(g.valueType, v))
	}
	return nil
}

// Lookup returns the owner of v and its locale.
func (g *GlobalUniqueIndex) Lookup(v any) (GlobalRecord, value.Locale, bool) {
	e, ok := g.byValue[value.Key(g.valueType, v)]
	if !ok {
		return GlobalRecord{}, "", false
	}
	return e.Record, g.locales[e.Record.LocaleID], true
}

// Entries returns all mappings ordered by value.
func (g *GlobalUniqueIndex) Entries() []GlobalEntry {
	out := make([]GlobalEntry, 0, len(g.byValue))
	for _, e := range g.byValue {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b GlobalEntry) int { return value.Compare(a.Value, b.Value) })
	return out
}

// LocaleIndex returns a copy of the id to locale table.
func (g *GlobalUniqueIndex) LocaleIndex() map[int32]value.Locale {
	return maps.Clone(g.locales)
}

// Clone returns a copy that can be mutated independently.
func (g *GlobalUniqueIndex) Clone() *GlobalUniqueIndex {
	return &GlobalUniqueIndex{
		name:       g.name,
		valueType:  g.valueType,
		byValue:    maps.Clone(g.byValue),
		locales:    maps.Clone(g.locales),
		localeIDs:  maps.Clone(g.localeIDs),
		nextLocale: g.nextLocale,
	}
}

// Equals reports whether both indexes hold the same owners and locales.
func (g *GlobalUniqueIndex) Equals(other *GlobalUniqueIndex) bool {
	if g.valueType != other.valueType || len(g.byValue) != len(other.byValue) {
		return false
	}
	for k, e := range g.byValue {
		o, ok := other.byValue[k]
		if !ok || o.Record.EntityType != e.Record.EntityType || o.Record.PK != e.Record.PK {
			return false
		}
		if g.locales[e.Record.LocaleID] != other.locales[o.Record.LocaleID] {
			return false
		}
	}
	return true
}

func (g *GlobalUniqueIndex) localeID(l value.Locale) int32 {
	if l == "" {
		return NoLocale
	}
	if id, ok := g.localeIDs[l]; ok {
		return id
	}
	id := g.nextLocale
	g.nextLocale++
	g.locales[id] = l
	g.localeIDs[l] = id
	return id
}
