// internal/fields/operators.go
package fields

import "github.com/samber/lo"

/*
 * Operator and value type vocabulary.
 *
 * Operators are the wire names shared with the matching backend, so they are
 * strings rather than an int enum. Nullary operators (isNull, isNotNull) take
 * no value; list operators (in, notIn) take a list; the rest take a scalar.
 *
 * Compatibility table: a field's allowed operators must be a subset of the
 * operators compatible with its value type. Booleans only support eq because
 * ne on a two-valued field is eq with the other value.
 */

// Operator is a comparison operator name as it appears on the wire.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpIsNull     Operator = "isNull"
	OpIsNotNull  Operator = "isNotNull"
)

// Operators lists every operator in canonical order.
var Operators = []Operator{
	OpEq, OpNe, OpGt, OpLt, OpGte, OpLte,
	OpIn, OpNotIn,
	OpContains, OpStartsWith, OpEndsWith,
	OpIsNull, OpIsNotNull,
}

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	return lo.Contains(Operators, op)
}

// IsNullary reports whether op takes no value.
func (op Operator) IsNullary() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// IsList reports whether op takes a list of values.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// ValueType is the type of value a field holds.
type ValueType string

const (
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeBoolean ValueType = "boolean"
	TypeEnum    ValueType = "enum"
	TypeDate    ValueType = "date"
)

// compatibleOperators maps each value type to the operators it can support.
var compatibleOperators = map[ValueType][]Operator{
	TypeNumber:  {OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpIn, OpNotIn, OpIsNull, OpIsNotNull},
	TypeString:  {OpEq, OpNe, OpContains, OpStartsWith, OpEndsWith, OpIn, OpNotIn, OpIsNull, OpIsNotNull},
	TypeBoolean: {OpEq},
	TypeEnum:    {OpEq, OpNe, OpIn, OpNotIn},
	TypeDate:    {OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpIsNull, OpIsNotNull},
}

// CompatibleOperators returns the operators a value type can support.
// Returns nil for unknown value types.
func CompatibleOperators(vt ValueType) []Operator {
	ops := compatibleOperators[vt]
	out := make([]Operator, len(ops))
	copy(out, ops)
	return out
}

// Compatible reports whether op can be used with values of type vt.
func Compatible(vt ValueType, op Operator) bool {
	return lo.Contains(compatibleOperators[vt], op)
}
