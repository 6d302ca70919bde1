// Package customers evaluates encoded segment queries against the stored
// customer table.
package customers

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

/*
 * Query compilation.
 *
 * A wire query compiles to one WHERE fragment with ? placeholders; callers
 * Rebind for the driver. Every condition is re-checked against the field
 * catalog here because queries arrive from the network.
 *
 * Operator mapping:
 *   eq/ne/gt/lt/gte/lte  -> col = ? / col <> ? / ...  (numbers CAST to double)
 *   in/notIn             -> col IN (?, ...) / col NOT IN (?, ...)
 *   contains/starts/ends -> LOWER(col) LIKE ? ESCAPE '\' (case-insensitive)
 *   isNull/isNotNull     -> col IS NULL / col IS NOT NULL
 *
 * Conditions join with the query's single logic operator. An empty query
 * compiles to an error; matching every customer is never implied.
 */

// columns maps field keys to customer table columns. Must list every key of
// fields.Catalog.
var columns = map[string]string{
	"totalSpent":         "total_spent",
	"ordersCount":        "orders_count",
	"avgOrderValue":      "avg_order_value",
	"daysSinceLastOrder": "days_since_last_order",
	"rfmSegment":         "rfm_segment",
	"recencyScore":       "recency_score",
	"frequencyScore":     "frequency_score",
	"monetaryScore":      "monetary_score",
	"isHighValue":        "is_high_value",
	"isChurnRisk":        "is_churn_risk",
	"email":              "email",
}

// Column returns the column backing a field key.
func Column(key string) (string, bool) {
	col, ok := columns[key]
	return col, ok
}

// Compile translates q into a WHERE fragment and its arguments.
func Compile(q wire.Query) (string, []any, error) {
	if q.IsEmpty() {
		return "", nil, types.ErrEmptyFilter
	}
	if len(q.Conditions) > types.MaxGroups*types.MaxConditionsPerGroup {
		return "", nil, fmt.Errorf("%w: %d conditions", types.ErrTooManyConditions, len(q.Conditions))
	}

	joiner := " AND "
	switch q.Logic {
	case filter.LogicAnd:
	case filter.LogicOr:
		joiner = " OR "
	default:
		return "", nil, fmt.Errorf("%w: %q", types.ErrInvalidLogic, q.Logic)
	}

	parts := make([]string, 0, len(q.Conditions))
	var args []any
	for i, c := range q.Conditions {
		frag, condArgs, err := compileCondition(c)
		if err != nil {
			return "", nil, fmt.Errorf("condition %d: %w", i, err)
		}
		parts = append(parts, frag)
		args = append(args, condArgs...)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func compileCondition(c wire.Condition) (string, []any, error) {
	def, err := fields.Lookup(c.Field)
	if err != nil {
		return "", nil, err
	}
	col, ok := Column(def.Key)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q has no column", types.ErrUnknownField, def.Key)
	}
	if !def.Allows(c.Operator) {
		return "", nil, fmt.Errorf("%w: %s on %s", types.ErrInvalidOperator, c.Operator, def.Key)
	}

	switch c.Operator {
	case fields.OpIsNull:
		return col + " IS NULL", nil, nil
	case fields.OpIsNotNull:
		return col + " IS NOT NULL", nil, nil
	}

	value, err := def.Coerce(c.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", def.Key, err)
	}
	if fields.IsEmptyValue(value) {
		return "", nil, fmt.Errorf("field %s: %w: missing value", def.Key, types.ErrCoercionFailed)
	}

	// numbers bind as DOUBLE PRECISION so fractional bounds compare against
	// integer columns on PostgreSQL
	ph := "?"
	if def.ValueType == fields.TypeNumber {
		ph = "CAST(? AS DOUBLE PRECISION)"
	}

	if c.Operator.IsList() {
		list, ok := value.([]any)
		if !ok {
			list = []any{value}
		}
		placeholders := strings.Join(lo.Times(len(list), func(int) string { return ph }), ", ")
		if c.Operator == fields.OpIn {
			return fmt.Sprintf("%s IN (%s)", col, placeholders), list, nil
		}
		return fmt.Sprintf("%s NOT IN (%s)", col, placeholders), list, nil
	}

	if list, ok := value.([]any); ok {
		value = list[0]
	}

	switch c.Operator {
	case fields.OpEq:
		return col + " = " + ph, []any{value}, nil
	case fields.OpNe:
		return col + " <> " + ph, []any{value}, nil
	case fields.OpGt:
		return col + " > " + ph, []any{value}, nil
	case fields.OpLt:
		return col + " < " + ph, []any{value}, nil
	case fields.OpGte:
		return col + " >= " + ph, []any{value}, nil
	case fields.OpLte:
		return col + " <= " + ph, []any{value}, nil
	case fields.OpContains, fields.OpStartsWith, fields.OpEndsWith:
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("field %s: %w: pattern must be text", def.Key, types.ErrCoercionFailed)
		}
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col), []any{likePattern(c.Operator, s)}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", types.ErrInvalidOperator, c.Operator)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern lowercases and escapes s and wraps it for the operator.
func likePattern(op fields.Operator, s string) string {
	s = likeEscaper.Replace(strings.ToLower(s))
	switch op {
	case fields.OpStartsWith:
		return s + "%"
	case fields.OpEndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

// unmappedFields returns catalog keys with no column. Empty in a correct build.
func unmappedFields() []string {
	return lo.Reject(fields.Catalog.Keys(), func(k string, _ int) bool {
		_, ok := columns[k]
		return ok
	})
}
