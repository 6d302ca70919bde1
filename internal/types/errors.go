package types

import "errors"

// Sentinel errors for SegmentKeeper operations.
var (
	// ErrUnknownField indicates a field key outside the field catalog.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidOperator indicates an operator not allowed for the field.
	ErrInvalidOperator = errors.New("invalid operator for field type")

	// ErrInvalidLogic indicates a logic operator other than AND/OR.
	ErrInvalidLogic = errors.New("invalid logic operator")

	// ErrCoercionFailed indicates a value does not satisfy the field's value type.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrEmptyGroup indicates a group with no conditions.
	ErrEmptyGroup = errors.New("group has no conditions")

	// ErrEmptyTree indicates a tree with no groups.
	ErrEmptyTree = errors.New("tree has no groups")

	// ErrDuplicateID indicates two groups or conditions share an id.
	ErrDuplicateID = errors.New("duplicate id in tree")

	// ErrTooManyGroups indicates a tree exceeds MaxGroups.
	ErrTooManyGroups = errors.New("tree has too many groups")

	// ErrTooManyConditions indicates a group exceeds MaxConditionsPerGroup.
	ErrTooManyConditions = errors.New("group has too many conditions")

	// ErrTooManyInValues indicates an in/notIn list exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrEmptyFilter indicates a query with no complete conditions.
	ErrEmptyFilter = errors.New("filter has no complete conditions")

	// ErrSegmentNotFound indicates no segment with the id exists for the shop.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrInvalidSegment indicates a segment failed validation (name, filters).
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrStorage wraps database failures so callers can map them to
	// "unavailable" without inspecting driver errors.
	ErrStorage = errors.New("database error")
)
