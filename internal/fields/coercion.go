// internal/fields/coercion.go
package fields

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/segmentkeeper/internal/types"
)

/*
 * Value coercion for condition literals.
 *
 * Every value entering a filter tree passes through Coerce, so a stored value
 * always satisfies its field's value type or is the empty sentinel (nil).
 *
 * Type modes:
 *   - number: Strict - numeric types and numeric strings to float64, reject
 *     booleans, NaN and infinities; honour Min/Max bounds
 *   - string: Lenient - auto-coerce scalars to string
 *   - boolean: bool plus the strings "true"/"false"; numbers rejected
 *   - enum: value formatted as string must be one of EnumValues
 *   - date: string parsing as 2006-01-02 or RFC3339, kept as given
 *
 * Lists (for in/notIn) coerce element-wise; any failing element fails the list.
 *
 * Empty input (nil, whitespace-only string for non-string types) coerces to
 * the empty sentinel without error: an empty value is incomplete, not invalid.
 */

// DateLayout is the calendar date format accepted for date fields.
const DateLayout = "2006-01-02"

// Coerce converts value to the canonical representation for d.
// Returns (nil, nil) for empty input and types.ErrCoercionFailed for values
// that cannot satisfy the value type.
func (d Definition) Coerce(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case []any:
		return d.coerceList(v)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return d.coerceList(items)
	case []float64:
		items := make([]any, len(v))
		for i, f := range v {
			items[i] = f
		}
		return d.coerceList(items)
	}

	return d.coerceScalar(value)
}

// coerceList coerces each element; empty elements are dropped.
// Returns nil for lists that end up empty.
func (d Definition) coerceList(items []any) (any, error) {
	if len(items) > types.MaxInOperatorValues {
		return nil, types.ErrTooManyInValues
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		c, err := d.coerceScalar(item)
		if err != nil {
			return nil, err
		}
		if IsEmptyValue(c) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (d Definition) coerceScalar(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch d.ValueType {
	case TypeNumber:
		return d.coerceNumber(value)
	case TypeString:
		return coerceString(value)
	case TypeBoolean:
		return coerceBoolean(value)
	case TypeEnum:
		return d.coerceEnum(value)
	case TypeDate:
		return coerceDate(value)
	default:
		return nil, types.ErrCoercionFailed
	}
}

// coerceNumber converts value to float64.
// Whitespace-only strings are empty, not failures.
func (d Definition) coerceNumber(value any) (any, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, types.ErrCoercionFailed
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, types.ErrCoercionFailed
		}
		f = parsed
	default:
		// Strict mode: booleans and composites are not numbers
		return nil, types.ErrCoercionFailed
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, types.ErrCoercionFailed
	}
	if d.Min != nil && f < *d.Min {
		return nil, types.ErrCoercionFailed
	}
	if d.Max != nil && f > *d.Max {
		return nil, types.ErrCoercionFailed
	}
	return f, nil
}

// coerceString converts scalars to their string representation.
func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return nil, types.ErrCoercionFailed
	}
}

// coerceBoolean accepts bool and the literal strings "true"/"false".
// Numbers are rejected to avoid "1" vs true ambiguity.
func coerceBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
			return nil, nil
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, types.ErrCoercionFailed
}

// coerceEnum formats the value as string and checks membership.
func (d Definition) coerceEnum(value any) (any, error) {
	s, err := coerceString(value)
	if err != nil {
		return nil, err
	}
	str := strings.TrimSpace(s.(string))
	if str == "" {
		return nil, nil
	}
	if !d.HasEnumValue(str) {
		return nil, types.ErrCoercionFailed
	}
	return str, nil
}

// coerceDate validates a calendar date or RFC3339 timestamp string.
func coerceDate(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, types.ErrCoercionFailed
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(DateLayout, s); err == nil {
		return s, nil
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return s, nil
	}
	return nil, types.ErrCoercionFailed
}

// IsEmptyValue reports whether v is the empty sentinel: nil, an empty or
// whitespace-only string, or an empty list.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}
