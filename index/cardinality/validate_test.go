package cardinality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExactlyOne(t *testing.T) {
	tests := []struct {
		name       string
		referenced []int32
		violated   bool
	}{
		{"none", nil, true},
		{"one", []int32{7}, false},
		{"two", []int32{7, 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("product", 1, []Usage{{Reference: "brand", Cardinality: ExactlyOne, Referenced: tt.referenced}})
			if !tt.violated {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrCardinalityViolated)
			violations := Violations(err)
			require.Len(t, violations, 1)
			assert.Equal(t, len(tt.referenced), violations[0].Count)
			assert.Equal(t, ExactlyOne, violations[0].Cardinality)
		})
	}
}

func TestValidateAllowsMatrix(t *testing.T) {
	tests := []struct {
		c     Cardinality
		count int
		ok    bool
	}{
		{ZeroOrOne, 0, true},
		{ZeroOrOne, 2, false},
		{ZeroOrMore, 0, true},
		{ZeroOrMore, 5, true},
		{OneOrMore, 0, false},
		{OneOrMore, 3, true},
		{OneOrMoreWithDuplicates, 0, false},
		{ZeroOrMoreWithDuplicates, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.c.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.c.Allows(tt.count))
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	err := Validate("product", 42, []Usage{
		{Reference: "brand", Cardinality: ExactlyOne},
		{Reference: "tags", Cardinality: ZeroOrMore, Referenced: []int32{1, 2, 1, 3, 2}},
		{Reference: "stock", Cardinality: OneOrMoreWithDuplicates, Referenced: []int32{5, 5}},
		{Reference: "category", Cardinality: ZeroOrOne, Referenced: []int32{1, 2}},
	})
	require.Error(t, err)

	violations := Violations(err)
	require.Len(t, violations, 3)
	assert.Equal(t, "brand", violations[0].Reference)
	assert.Equal(t, "tags", violations[1].Reference)
	assert.Equal(t, []int32{1, 2}, violations[1].Duplicates)
	assert.Equal(t, "category", violations[2].Reference)
	assert.Contains(t, err.Error(), "EXACTLY_ONE")
}

func TestValidateNoUsages(t *testing.T) {
	require.NoError(t, Validate("product", 1, nil))
	assert.Nil(t, Violations(nil))
}
