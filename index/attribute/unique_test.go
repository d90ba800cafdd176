package attribute

import (
	"testing"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueIndexInsertLookupRemove(t *testing.T) {
	u := NewUniqueIndex("code", value.TypeString)
	require.NoError(t, u.Insert(1, "abc"))
	require.NoError(t, u.Insert(2, "def", "ghi"))
	require.NoError(t, u.Insert(1, "abc"))

	rec, ok := u.Lookup("ghi")
	require.True(t, ok)
	assert.Equal(t, int32(2), rec)
	assert.Equal(t, 3, u.Len())
	assert.Equal(t, []int32{1, 2}, u.Records().ToArray())

	require.NoError(t, u.Remove(2, "def"))
	assert.Equal(t, []int32{1, 2}, u.Records().ToArray())
	require.NoError(t, u.Remove(2, "ghi"))
	assert.Equal(t, []int32{1}, u.Records().ToArray())

	_, ok = u.Lookup("ghi")
	assert.False(t, ok)
}

func TestUniqueIndexViolationDoesNotMutate(t *testing.T) {
	u := NewUniqueIndex("code", value.TypeString)
	require.NoError(t, u.Insert(1, "abc"))

	err := u.Insert(2, "new", "abc")
	var violation *UniqueViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "abc", violation.Value)
	assert.Equal(t, "code", violation.Attribute)

	_, ok := u.Lookup("new")
	assert.False(t, ok)
	assert.Equal(t, []int32{1}, u.Records().ToArray())
}

func TestUniqueIndexNegativeRecord(t *testing.T) {
	u := NewUniqueIndex("code", value.TypeString)
	require.ErrorIs(t, u.Insert(-1, "abc"), bitmap.ErrNegativeID)
	assert.Zero(t, u.Len())
	assert.True(t, u.Records().IsEmpty())
}

func TestUniqueIndexRemoveOwnership(t *testing.T) {
	u := NewUniqueIndex("code", value.TypeString)
	require.NoError(t, u.Insert(1, "abc"))

	require.ErrorIs(t, u.Remove(2, "abc"), ErrNotOwner)
	require.ErrorIs(t, u.Remove(1, "zzz"), ErrRecordNotFound)
	require.ErrorIs(t, u.Remove(1, "abc", "zzz"), ErrRecordNotFound)

	rec, ok := u.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, int32(1), rec)
}

func TestRestoreUniqueIndex(t *testing.T) {
	u := NewUniqueIndex("ean", value.TypeInt)
	require.NoError(t, u.Insert(1, int64(10)))
	require.NoError(t, u.Insert(2, int64(5)))

	entries := u.Entries()
	assert.Equal(t, []UniqueEntry{{Value: int64(5), Record: 2}, {Value: int64(10), Record: 1}}, entries)

	restored, err := RestoreUniqueIndex("ean", value.TypeInt, entries)
	require.NoError(t, err)
	assert.True(t, u.Equals(restored))

	_, err = RestoreUniqueIndex("ean", value.TypeInt, append(entries, UniqueEntry{Value: int64(5), Record: 3}))
	require.ErrorIs(t, err, ErrInconsistent)
}

func TestGlobalUniqueIndex(t *testing.T) {
	g := NewGlobalUniqueIndex("url", value.TypeString)
	require.NoError(t, g.Register(1, 10, "en", "/en/phone"))
	require.NoError(t, g.Register(1, 10, "cs", "/cs/telefon"))
	require.NoError(t, g.Register(2, 10, "", "/brand"))

	rec, locale, ok := g.Lookup("/cs/telefon")
	require.True(t, ok)
	assert.Equal(t, int32(1), rec.EntityType)
	assert.Equal(t, int32(10), rec.PK)
	assert.Equal(t, value.Locale("cs"), locale)

	rec, locale, ok = g.Lookup("/brand")
	require.True(t, ok)
	assert.Equal(t, NoLocale, rec.LocaleID)
	assert.Equal(t, value.Locale(""), locale)

	assert.Equal(t, map[int32]value.Locale{1: "en", 2: "cs"}, g.LocaleIndex())

	var violation *UniqueViolationError
	require.ErrorAs(t, g.Register(2, 11, "en", "/en/phone"), &violation)
	require.ErrorAs(t, g.Register(1, 10, "cs", "/en/phone"), &violation)

	require.ErrorIs(t, g.Unregister(1, 10, "cs", "/en/phone"), ErrNotOwner)
	require.NoError(t, g.Unregister(1, 10, "en", "/en/phone"))
	_, _, ok = g.Lookup("/en/phone")
	assert.False(t, ok)
}

func TestGlobalUniqueIndexLocaleChange(t *testing.T) {
	g := NewGlobalUniqueIndex("url", value.TypeString)
	require.NoError(t, g.Register(1, 10, "", "abc"))

	// "en" has no id yet; the owner's locale still differs.
	var violation *UniqueViolationError
	require.ErrorAs(t, g.Register(1, 10, "en", "abc"), &violation)
	assert.Empty(t, g.LocaleIndex())

	rec, locale, ok := g.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, NoLocale, rec.LocaleID)
	assert.Equal(t, value.Locale(""), locale)

	require.NoError(t, g.Register(1, 11, "en", "def"))
	require.ErrorAs(t, g.Register(1, 10, "en", "abc"), &violation)
	require.ErrorAs(t, g.Register(1, 11, "", "def"), &violation)

	// Same owner and locale is idempotent.
	require.NoError(t, g.Register(1, 10, "", "abc"))
	require.NoError(t, g.Register(1, 11, "en", "def"))
}

func TestRestoreGlobalUniqueIndex(t *testing.T) {
	g := NewGlobalUniqueIndex("url", value.TypeString)
	require.NoError(t, g.Register(1, 10, "en", "/a"))
	require.NoError(t, g.Register(1, 11, "", "/b"))

	restored, err := RestoreGlobalUniqueIndex("url", value.TypeString, g.Entries(), g.LocaleIndex())
	require.NoError(t, err)
	assert.True(t, g.Equals(restored))

	// new locales continue after the restored ones
	require.NoError(t, restored.Register(1, 12, "de", "/c"))
	assert.Equal(t, value.Locale("de"), restored.LocaleIndex()[2])

	_, err = RestoreGlobalUniqueIndex("url", value.TypeString, g.Entries(), nil)
	require.ErrorIs(t, err, ErrInconsistent)
}
