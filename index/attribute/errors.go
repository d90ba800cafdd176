package attribute

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/value"
)

var (
	// ErrInconsistent is returned when restored state breaks an index invariant.
	ErrInconsistent = errors.New("inconsistent index state")
	// ErrNoRangeIndex is returned for interval queries on non range attributes.
	ErrNoRangeIndex = errors.New("attribute has no range index")
	// ErrRecordNotFound is returned when removing a value the record does not hold.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when a record is inserted twice into a sort index.
	ErrDuplicateRecord = errors.New("record already indexed")
	// ErrNotOwner is returned when unregistering a unique value held by another record.
	ErrNotOwner = errors.New("unique value owned by another record")
)

// UniqueViolationError reports a value that is already mapped to another record.
type UniqueViolationError struct {
	Attribute string
	Value     any
	Existing  string
	Requested string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique value %v of attribute %q is already used by %s, cannot assign it to %s",
		e.Value, e.Attribute, e.Existing, e.Requested)
}

func checkType(want value.Type, v any) error {
	if got := value.TypeOf(v); got != want {
		return fmt.Errorf("%w: %T is not %s", value.ErrTypeMismatch, v, want)
	}
	return nil
}
