// internal/filter/validate.go
package filter

import (
	"fmt"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/types"
)

// Validate checks the structural and type invariants of a tree built by hand
// rather than through the editing operations.
//
// Checks, in order:
//   - tree logic is AND or OR
//   - 1..MaxGroups groups, each with 1..MaxConditionsPerGroup conditions
//   - group and condition ids are non-empty and unique across the tree
//   - every field is registered and every operator is allowed for it
//   - every non-empty value coerces to the field's value type
//
// Incomplete conditions are valid; they are simply not evaluated.
func Validate(t Tree) error {
	if !t.Logic.Valid() {
		return fmt.Errorf("tree: %w: %q", types.ErrInvalidLogic, t.Logic)
	}
	if len(t.Groups) == 0 {
		return types.ErrEmptyTree
	}
	if len(t.Groups) > types.MaxGroups {
		return fmt.Errorf("%w: %d > %d", types.ErrTooManyGroups, len(t.Groups), types.MaxGroups)
	}

	seen := make(map[string]struct{})
	checkID := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s: %w: empty id", kind, types.ErrDuplicateID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s %s: %w", kind, id, types.ErrDuplicateID)
		}
		seen[id] = struct{}{}
		return nil
	}

	for gi, g := range t.Groups {
		if err := checkID("group", g.ID); err != nil {
			return err
		}
		if !g.Logic.Valid() {
			return fmt.Errorf("group %d: %w: %q", gi, types.ErrInvalidLogic, g.Logic)
		}
		if len(g.Conditions) == 0 {
			return fmt.Errorf("group %d: %w", gi, types.ErrEmptyGroup)
		}
		if len(g.Conditions) > types.MaxConditionsPerGroup {
			return fmt.Errorf("group %d: %w: %d > %d", gi, types.ErrTooManyConditions,
				len(g.Conditions), types.MaxConditionsPerGroup)
		}
		for ci, c := range g.Conditions {
			if err := checkID("condition", c.ID); err != nil {
				return err
			}
			if err := validateCondition(c); err != nil {
				return fmt.Errorf("group %d condition %d: %w", gi, ci, err)
			}
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	def, err := fields.Lookup(c.Field)
	if err != nil {
		return err
	}
	if !def.Allows(c.Operator) {
		return fmt.Errorf("%w: %s on %s", types.ErrInvalidOperator, c.Operator, c.Field)
	}
	if c.Operator.IsNullary() || fields.IsEmptyValue(c.Value) {
		return nil
	}
	if _, err := def.Coerce(c.Value); err != nil {
		return fmt.Errorf("field %s: %w", c.Field, err)
	}
	return nil
}
