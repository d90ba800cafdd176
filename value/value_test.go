package value

import (
	"math"
	"testing"
	"time"

	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		in   any
		want any
	}{
		{"int from int", TypeInt, 5, int64(5)},
		{"int from uint8", TypeInt, uint8(7), int64(7)},
		{"float from int", TypeFloat, 3, float64(3)},
		{"float32", TypeFloat, float32(1.5), float64(1.5)},
		{"string", TypeString, "abc", "abc"},
		{"bool", TypeBool, true, true},
		{"enum from string", TypeEnum, "RED", Enum("RED")},
		{"locale from string", TypeLocale, "cs-CZ", Locale("cs-CZ")},
		{"range", TypeRange, Range{From: 1, To: 3}, Range{From: 1, To: 3}},
		{"nil", TypeInt, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize(TypeInt, "x")
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeRange, Range{From: 5, To: 1})
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(Type(99), 1)
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Normalize(TypeFloat, math.NaN())
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Normalize(TypeFloat, float32(math.NaN()))
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNegativeZero(t *testing.T) {
	negZero := math.Copysign(0, -1)

	got, err := Normalize(TypeFloat, negZero)
	require.NoError(t, err)
	assert.False(t, math.Signbit(got.(float64)))

	got, err = Normalize(TypeFloat, float32(negZero))
	require.NoError(t, err)
	assert.False(t, math.Signbit(got.(float64)))

	types := []Type{TypeFloat}
	assert.Equal(t, TupleKey(types, Tuple{0.0}), TupleKey(types, Tuple{negZero}))
	assert.Equal(t, Key(TypeFloat, 0.0), Key(TypeFloat, negZero))
}

func TestNormalizeDate(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2024, 3, 1, 12, 0, 0, 0, loc)

	got, err := Normalize(TypeDate, in)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.(time.Time).Location())
	assert.True(t, in.Equal(got.(time.Time)))
}

func TestNormalizeAnyUsesCodec(t *testing.T) {
	a, err := Normalize(TypeAny, map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := Normalize(TypeAny, map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	decoded, err := DefaultCodec.DecodeValue(a.(Opaque).Bytes(), TypeAny)
	require.NoError(t, err)
	assert.EqualValues(t, 2, decoded.(map[string]any)["a"])
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(int64(1), int64(2)))
	assert.Zero(t, Compare("a", "a"))
	assert.Positive(t, Compare(Range{From: 1, To: 5}, Range{From: 1, To: 3}))
	assert.Negative(t, Compare(false, true))
	assert.Negative(t, Compare(nil, int64(0)))
	assert.Positive(t, Compare(int64(0), nil))
	assert.Zero(t, Compare(nil, nil))
	assert.Negative(t, Compare(Tuple{int64(1), nil}, Tuple{int64(1), "a"}))
	assert.True(t, Equal(Enum("A"), Enum("A")))
	assert.False(t, Equal(Enum("A"), Locale("A")))
}

func TestWriteReadAllTypes(t *testing.T) {
	date := time.Date(2023, 5, 17, 8, 30, 0, 123, time.UTC)
	values := []struct {
		typ Type
		v   any
	}{
		{TypeInt, int64(-42)},
		{TypeFloat, 2.5},
		{TypeString, "zlutoucky kun"},
		{TypeBool, true},
		{TypeDate, date},
		{TypeEnum, Enum("GREEN")},
		{TypeRange, Range{From: -10, To: 10}},
		{TypeLocale, Locale("en")},
		{TypeAny, Opaque("\x81\xa1a\x01")},
	}

	w := wire.NewWriter(64)
	for _, tv := range values {
		WriteType(w, tv.typ)
		Write(w, tv.typ, tv.v)
	}
	require.NoError(t, w.Err())

	r := wire.NewReader(w.Bytes())
	for _, tv := range values {
		typ := ReadType(r)
		assert.Equal(t, tv.typ, typ)
		assert.Equal(t, tv.v, Read(r, typ))
	}
	r.ExpectEnd()
	require.NoError(t, r.Err())
}

func TestWriteMismatchFails(t *testing.T) {
	w := wire.NewWriter(8)
	Write(w, TypeInt, "nope")
	require.ErrorIs(t, w.Err(), ErrTypeMismatch)
}

func TestReadTypeRejectsUnknownTag(t *testing.T) {
	r := wire.NewReader([]byte{0x7F})
	assert.Equal(t, TypeUnknown, ReadType(r))
	require.ErrorIs(t, r.Err(), wire.ErrCorrupted)
}

func TestTupleRoundTrip(t *testing.T) {
	types := []Type{TypeString, TypeInt}
	tuple := Tuple{nil, int64(3)}

	w := wire.NewWriter(16)
	WriteTuple(w, types, tuple)
	require.NoError(t, w.Err())

	r := wire.NewReader(w.Bytes())
	assert.Equal(t, tuple, ReadTuple(r, types))
	require.NoError(t, r.Err())

	assert.Equal(t, TupleKey(types, tuple), TupleKey(types, Tuple{nil, int64(3)}))
	assert.NotEqual(t, TupleKey(types, tuple), TupleKey(types, Tuple{"", int64(3)}))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("range")
	require.NoError(t, err)
	assert.Equal(t, TypeRange, typ)
	assert.Equal(t, "range", typ.String())

	_, err = ParseType("unknown")
	require.ErrorIs(t, err, ErrUnknownType)
}
