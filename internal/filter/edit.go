// internal/filter/edit.go
package filter

import (
	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/types"
)

/*
 * Tree editing operations.
 *
 * Every operation is a pure function: it returns a new tree and leaves its
 * input untouched. Operations that would break an invariant return the input
 * unchanged instead of failing, so calling them repeatedly is a no-op:
 *   - a group never loses its last condition
 *   - a tree never loses its last group
 *   - an operator outside the field's allowed set is ignored
 *   - unknown group/condition ids are ignored
 *
 * Condition-level operations (WithField, WithOperator, WithValue) hold the
 * field/operator/value rules; tree-level operations locate a condition by id
 * and apply them to a copy.
 */

// WithField switches the condition to key and resets operator and value to
// the field defaults. Unknown keys leave the condition unchanged.
func (c Condition) WithField(key string) Condition {
	def, err := fields.Lookup(key)
	if err != nil {
		return c
	}
	c.Field = def.Key
	c.Operator = def.DefaultOperator()
	c.Value = def.DefaultValue()
	return c
}

// WithOperator switches the operator when it is allowed for the field.
// The value is kept: switching into a nullary operator ignores it and
// switching back restores it.
func (c Condition) WithOperator(op fields.Operator) Condition {
	if !fields.Allows(c.Field, op) {
		return c
	}
	c.Operator = op
	return c
}

// WithValue stores value after coercing it to the field's value type.
// Values that fail coercion are stored as the empty sentinel.
func (c Condition) WithValue(value any) Condition {
	def := fields.DefinitionOf(c.Field)
	coerced, err := def.Coerce(value)
	if err != nil {
		coerced = nil
	}
	c = c.clone()
	c.Value = coerced
	return c
}

// SetField applies WithField to the condition with id.
func SetField(t Tree, conditionID, key string) Tree {
	return updateCondition(t, conditionID, func(c Condition) Condition {
		return c.WithField(key)
	})
}

// SetOperator applies WithOperator to the condition with id.
func SetOperator(t Tree, conditionID string, op fields.Operator) Tree {
	return updateCondition(t, conditionID, func(c Condition) Condition {
		return c.WithOperator(op)
	})
}

// SetValue applies WithValue to the condition with id.
func SetValue(t Tree, conditionID string, value any) Tree {
	return updateCondition(t, conditionID, func(c Condition) Condition {
		return c.WithValue(value)
	})
}

// AddCondition appends a default condition to the group with id.
// Groups at MaxConditionsPerGroup are left unchanged.
func AddCondition(t Tree, groupID string) Tree {
	return updateGroup(t, groupID, func(g Group) Group {
		if len(g.Conditions) >= types.MaxConditionsPerGroup {
			return g
		}
		g.Conditions = append(g.Conditions, NewCondition())
		return g
	})
}

// RemoveCondition removes the condition with id from the group with id.
// Removing a group's last condition is a no-op.
func RemoveCondition(t Tree, groupID, conditionID string) Tree {
	return updateGroup(t, groupID, func(g Group) Group {
		if len(g.Conditions) <= 1 {
			return g
		}
		kept := lo.Reject(g.Conditions, func(c Condition, _ int) bool {
			return c.ID == conditionID
		})
		if len(kept) == 0 {
			return g
		}
		g.Conditions = kept
		return g
	})
}

// AddGroup appends a group holding one default condition.
// Trees at MaxGroups are left unchanged.
func AddGroup(t Tree) Tree {
	if len(t.Groups) >= types.MaxGroups {
		return t
	}
	out := t.Clone()
	out.Groups = append(out.Groups, NewGroup())
	return out
}

// RemoveGroup removes the group with id. Removing the last group is a no-op.
func RemoveGroup(t Tree, groupID string) Tree {
	if len(t.Groups) <= 1 {
		return t
	}
	if _, ok := t.FindGroup(groupID); !ok {
		return t
	}
	kept := lo.Reject(t.Groups, func(g Group, _ int) bool {
		return g.ID == groupID
	})
	if len(kept) == 0 {
		return t
	}
	return Tree{Logic: t.Logic, Groups: kept}.Clone()
}

// SetGroupLogic replaces the logic of the group with id.
func SetGroupLogic(t Tree, groupID string, logic Logic) Tree {
	if !logic.Valid() {
		return t
	}
	return updateGroup(t, groupID, func(g Group) Group {
		g.Logic = logic
		return g
	})
}

// SetTreeLogic replaces the top-level logic.
func SetTreeLogic(t Tree, logic Logic) Tree {
	if !logic.Valid() {
		return t
	}
	out := t.Clone()
	out.Logic = logic
	return out
}

// updateGroup applies fn to a copy of the group with id.
// Returns t itself when no group matches.
func updateGroup(t Tree, groupID string, fn func(Group) Group) Tree {
	idx := lo.IndexOf(lo.Map(t.Groups, func(g Group, _ int) string { return g.ID }), groupID)
	if idx < 0 {
		return t
	}
	out := t.Clone()
	out.Groups[idx] = fn(out.Groups[idx])
	return out
}

// updateCondition applies fn to a copy of the condition with id.
// Returns t itself when no condition matches.
func updateCondition(t Tree, conditionID string, fn func(Condition) Condition) Tree {
	for gi, g := range t.Groups {
		for ci, c := range g.Conditions {
			if c.ID != conditionID {
				continue
			}
			out := t.Clone()
			out.Groups[gi].Conditions[ci] = fn(out.Groups[gi].Conditions[ci])
			return out
		}
	}
	return t
}
