// Package fields provides the catalog of filterable customer fields.
//
// The catalog is a fixed contract with the matching backend: adding a field
// means updating the registry and the backend column mapping together.
package fields

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/types"
)

// EnumValue is one selectable value of an enum field.
type EnumValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Definition describes one filterable field. Immutable once registered.
type Definition struct {
	Key              string      `json:"key"`
	Label            string      `json:"label"`
	ValueType        ValueType   `json:"valueType"`
	AllowedOperators []Operator  `json:"allowedOperators"`
	EnumValues       []EnumValue `json:"enumValues,omitempty"`
	Placeholder      string      `json:"placeholder,omitempty"`
	Min              *float64    `json:"min,omitempty"` // inclusive bound for number fields
	Max              *float64    `json:"max,omitempty"`
}

// Allows reports whether op is in the definition's allowed operators.
func (d Definition) Allows(op Operator) bool {
	return lo.Contains(d.AllowedOperators, op)
}

// DefaultOperator returns the first allowed operator.
func (d Definition) DefaultOperator() Operator {
	return d.AllowedOperators[0]
}

// DefaultValue returns true for boolean fields and the empty sentinel (nil)
// for every other type.
func (d Definition) DefaultValue() any {
	if d.ValueType == TypeBoolean {
		return true
	}
	return nil
}

// HasEnumValue reports whether v is one of the enum values.
func (d Definition) HasEnumValue(v string) bool {
	return lo.ContainsBy(d.EnumValues, func(ev EnumValue) bool {
		return ev.Value == v
	})
}

// Registry is an ordered, immutable set of field definitions.
// The first definition is the default field for new conditions.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry validates definitions and builds a registry.
// Rejects duplicate keys, empty operator sets, operators incompatible with
// the value type, and enum fields without values.
func NewRegistry(defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("registry requires at least one field")
	}

	r := &Registry{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("field key cannot be empty")
		}
		if _, dup := r.index[d.Key]; dup {
			return nil, fmt.Errorf("duplicate field key %q", d.Key)
		}
		if len(d.AllowedOperators) == 0 {
			return nil, fmt.Errorf("field %q: allowed operators cannot be empty", d.Key)
		}
		if len(lo.FindDuplicates(d.AllowedOperators)) > 0 {
			return nil, fmt.Errorf("field %q: duplicate allowed operators", d.Key)
		}
		for _, op := range d.AllowedOperators {
			if !Compatible(d.ValueType, op) {
				return nil, fmt.Errorf("field %q: %w: %s on %s", d.Key, types.ErrInvalidOperator, op, d.ValueType)
			}
		}
		if d.ValueType == TypeEnum && len(d.EnumValues) == 0 {
			return nil, fmt.Errorf("field %q: enum field requires values", d.Key)
		}
		if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
			return nil, fmt.Errorf("field %q: min %v exceeds max %v", d.Key, *d.Min, *d.Max)
		}

		// Copy slices so callers cannot mutate registered definitions
		d.AllowedOperators = append([]Operator(nil), d.AllowedOperators...)
		d.EnumValues = append([]EnumValue(nil), d.EnumValues...)

		r.index[d.Key] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on invalid definitions.
// Intended for package-level catalogs built from literals.
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the definition for key.
// Returns types.ErrUnknownField for keys outside the registry.
func (r *Registry) Lookup(key string) (Definition, error) {
	i, ok := r.index[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", types.ErrUnknownField, key)
	}
	return r.defs[i], nil
}

// DefinitionOf returns the definition for key, falling back to the default
// field for unknown keys. Decoders of untrusted input use this instead of Lookup.
func (r *Registry) DefinitionOf(key string) Definition {
	if d, err := r.Lookup(key); err == nil {
		return d
	}
	return r.defs[0]
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Default returns the first registered definition.
func (r *Registry) Default() Definition {
	return r.defs[0]
}

// DefaultOperatorFor returns the first allowed operator of key's definition.
func (r *Registry) DefaultOperatorFor(key string) Operator {
	return r.DefinitionOf(key).DefaultOperator()
}

// DefaultValueFor returns the default value for key's definition.
func (r *Registry) DefaultValueFor(key string) any {
	return r.DefinitionOf(key).DefaultValue()
}

// Allows reports whether op is legal for key. Unknown keys allow nothing.
func (r *Registry) Allows(key string, op Operator) bool {
	d, err := r.Lookup(key)
	if err != nil {
		return false
	}
	return d.Allows(op)
}

// Keys returns field keys in registry order.
func (r *Registry) Keys() []string {
	return lo.Map(r.defs, func(d Definition, _ int) string { return d.Key })
}

// All returns every definition in registry order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}
