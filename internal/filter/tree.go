// Package filter provides the in-memory segment definition: a top-level
// logic operator over groups, each group a logic operator over conditions.
//
// Trees are values. Editing operations in edit.go return new trees and never
// mutate their input, so a tree handed to the preview session or the codec
// cannot change underneath it.
package filter

import (
	"strings"

	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/types"
)

// Logic combines conditions or groups.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Valid reports whether l is AND or OR.
func (l Logic) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// ParseLogic accepts AND/OR in any case.
// Returns false for anything else.
func ParseLogic(s string) (Logic, bool) {
	l := Logic(strings.ToUpper(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Condition is a single `field operator value` predicate.
// Value is nil (empty), float64, string, bool, or []any for list operators.
type Condition struct {
	ID       string          `json:"id"`
	Field    string          `json:"field"`
	Operator fields.Operator `json:"operator"`
	Value    any             `json:"value,omitempty"`
}

// Group is a non-empty ordered list of conditions combined by Logic.
type Group struct {
	ID         string      `json:"id"`
	Logic      Logic       `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// Tree is a non-empty ordered list of groups combined by Logic.
type Tree struct {
	Logic  Logic   `json:"logic"`
	Groups []Group `json:"groups"`
}

// NewCondition returns a condition on the default field with its default
// operator and value.
func NewCondition() Condition {
	return NewConditionFor(fields.DefaultField().Key)
}

// NewConditionFor returns a condition on key with the field's defaults.
// Unknown keys fall back to the default field.
func NewConditionFor(key string) Condition {
	def := fields.DefinitionOf(key)
	return Condition{
		ID:       types.NewNodeID(),
		Field:    def.Key,
		Operator: def.DefaultOperator(),
		Value:    def.DefaultValue(),
	}
}

// NewGroup returns an AND group holding one default condition.
func NewGroup() Group {
	return Group{
		ID:         types.NewNodeID(),
		Logic:      LogicAnd,
		Conditions: []Condition{NewCondition()},
	}
}

// New returns the canonical empty tree: AND over one group holding one
// default (incomplete) condition.
func New() Tree {
	return Tree{
		Logic:  LogicAnd,
		Groups: []Group{NewGroup()},
	}
}

// EffectiveValue returns the value as the operator consumes it.
// Nullary operators consume nothing. List operators wrap a scalar into a
// one-element list; scalar operators take the first element of a list.
// Empty values yield nil.
func (c Condition) EffectiveValue() any {
	if c.Operator.IsNullary() || fields.IsEmptyValue(c.Value) {
		return nil
	}

	list, isList := c.Value.([]any)
	if c.Operator.IsList() {
		if isList {
			items := lo.Reject(list, func(v any, _ int) bool { return fields.IsEmptyValue(v) })
			if len(items) == 0 {
				return nil
			}
			return items
		}
		return []any{c.Value}
	}

	if isList {
		first, ok := lo.Find(list, func(v any) bool { return !fields.IsEmptyValue(v) })
		if !ok {
			return nil
		}
		return first
	}
	return c.Value
}

// IsComplete reports whether the condition takes part in evaluation: the
// field is known, the operator is legal for it, and a non-nullary operator
// has a non-empty value.
func (c Condition) IsComplete() bool {
	if !fields.Allows(c.Field, c.Operator) {
		return false
	}
	if c.Operator.IsNullary() {
		return true
	}
	return c.EffectiveValue() != nil
}

// Clone returns a deep copy of the tree. List values are copied too.
func (t Tree) Clone() Tree {
	out := Tree{Logic: t.Logic, Groups: make([]Group, len(t.Groups))}
	for i, g := range t.Groups {
		out.Groups[i] = g.clone()
	}
	return out
}

func (g Group) clone() Group {
	out := Group{ID: g.ID, Logic: g.Logic, Conditions: make([]Condition, len(g.Conditions))}
	for i, c := range g.Conditions {
		out.Conditions[i] = c.clone()
	}
	return out
}

func (c Condition) clone() Condition {
	if list, ok := c.Value.([]any); ok {
		c.Value = append([]any(nil), list...)
	}
	return c
}

// Conditions returns every condition in group order.
func (t Tree) Conditions() []Condition {
	return lo.FlatMap(t.Groups, func(g Group, _ int) []Condition {
		return g.Conditions
	})
}

// CompleteConditions returns the complete conditions in group order.
func (t Tree) CompleteConditions() []Condition {
	return lo.Filter(t.Conditions(), func(c Condition, _ int) bool {
		return c.IsComplete()
	})
}

// IsEmpty reports whether no condition in the tree is complete.
// Empty trees are never evaluated or submitted.
func (t Tree) IsEmpty() bool {
	return !lo.SomeBy(t.Conditions(), func(c Condition) bool {
		return c.IsComplete()
	})
}

// FindGroup returns the group with id.
func (t Tree) FindGroup(id string) (Group, bool) {
	return lo.Find(t.Groups, func(g Group) bool { return g.ID == id })
}

// FindCondition returns the condition with id and the id of its group.
func (t Tree) FindCondition(id string) (Condition, string, bool) {
	for _, g := range t.Groups {
		if c, ok := lo.Find(g.Conditions, func(c Condition) bool { return c.ID == id }); ok {
			return c, g.ID, true
		}
	}
	return Condition{}, "", false
}
