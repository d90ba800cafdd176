package cardinality

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// ErrCardinalityViolated matches every *ViolationError.
var ErrCardinalityViolated = errors.New("reference cardinality violated")

// Cardinality is the declared number of references an entity may hold.
type Cardinality uint8

const (
	ZeroOrOne Cardinality = iota
	ExactlyOne
	ZeroOrMore
	OneOrMore
	ZeroOrMoreWithDuplicates
	OneOrMoreWithDuplicates
)

func (c Cardinality) String() string {
	switch c {
	case ZeroOrOne:
		return "ZERO_OR_ONE"
	case ExactlyOne:
		return "EXACTLY_ONE"
	case ZeroOrMore:
		return "ZERO_OR_MORE"
	case OneOrMore:
		return "ONE_OR_MORE"
	case ZeroOrMoreWithDuplicates:
		return "ZERO_OR_MORE_WITH_DUPLICATES"
	case OneOrMoreWithDuplicates:
		return "ONE_OR_MORE_WITH_DUPLICATES"
	}
	return fmt.Sprintf("Cardinality(%d)", uint8(c))
}

// AllowsDuplicates reports whether the same entity may be referenced twice.
func (c Cardinality) AllowsDuplicates() bool {
	return c == ZeroOrMoreWithDuplicates || c == OneOrMoreWithDuplicates
}

// Allows reports whether count references satisfy the cardinality.
func (c Cardinality) Allows(count int) bool {
	switch c {
	case ZeroOrOne:
		return count <= 1
	case ExactlyOne:
		return count == 1
	case OneOrMore, OneOrMoreWithDuplicates:
		return count >= 1
	}
	return true
}

// Usage lists the entities one reference type points to, duplicates
// included.
type Usage struct {
	Reference   string
	Cardinality Cardinality
	Referenced  []int32
}

// ViolationError reports one reference breaking its cardinality.
type ViolationError struct {
	EntityType  string
	PK          int32
	Reference   string
	Cardinality Cardinality
	Count       int
	Duplicates  []int32
}

func (e *ViolationError) Error() string {
	if len(e.Duplicates) > 0 {
		return fmt.Sprintf("%s %d: reference %q (%s) points to %v more than once",
			e.EntityType, e.PK, e.Reference, e.Cardinality, e.Duplicates)
	}
	return fmt.Sprintf("%s %d: reference %q expects %s but has %d",
		e.EntityType, e.PK, e.Reference, e.Cardinality, e.Count)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrCardinalityViolated
}

// Validate checks every usage and returns all violations in one
// *multierror.Error, or nil.
func Validate(entityType string, pk int32, usages []Usage) error {
	var result *multierror.Error
	for _, u := range usages {
		count := len(u.Referenced)
		if !u.Cardinality.Allows(count) {
			result = multierror.Append(result, &ViolationError{
				EntityType:  entityType,
				PK:          pk,
				Reference:   u.Reference,
				Cardinality: u.Cardinality,
				Count:       count,
			})
			continue
		}
		if u.Cardinality.AllowsDuplicates() {
			continue
		}
		if dups := duplicates(u.Referenced); len(dups) > 0 {
			result = multierror.Append(result, &ViolationError{
				EntityType:  entityType,
				PK:          pk,
				Reference:   u.Reference,
				Cardinality: u.Cardinality,
				Count:       count,
				Duplicates:  dups,
			})
		}
	}
	return result.ErrorOrNil()
}

// Violations extracts the individual violations from an error returned by
// Validate.
func Violations(err error) []*ViolationError {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var v *ViolationError
		if errors.As(err, &v) {
			return []*ViolationError{v}
		}
		return nil
	}
	out := make([]*ViolationError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var v *ViolationError
		if errors.As(e, &v) {
			out = append(out, v)
		}
	}
	return out
}

func duplicates(ids []int32) []int32 {
	seen := make(map[int32]int, len(ids))
	var out []int32
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
