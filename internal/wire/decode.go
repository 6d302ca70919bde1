// internal/wire/decode.go
package wire

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/types"
)

/*
 * Tolerant decoding of stored and submitted filters.
 *
 * Three shapes have been written over time:
 *   - groups: {"logic": ..., "groups": [{"id", "logic", "conditions": [...]}]}
 *   - flat:   {"logic": ..., "conditions": [...]}    (one synthetic AND group)
 *   - array:  [{"field", "operator", "value"}, ...]  (tree logic AND)
 *
 * Classify narrows the raw JSON into a Shape before anything is read from it;
 * the decoders below only see the slice they need.
 *
 * Degradation rules, applied per node so one bad node never fails the tree:
 *   - non-object condition, or missing/unknown field -> default condition
 *   - missing or illegal operator -> field's default operator
 *   - missing value -> field's default value; bad value -> empty sentinel
 *   - missing, empty or duplicate id -> generated id
 *   - missing/invalid logic -> AND
 *   - group with no conditions -> one default condition
 *   - groups and conditions beyond the limits are dropped
 *   - anything else -> canonical empty tree
 */

// ShapeKind tags the legacy shape of an encoded filter.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	ShapeGroups
	ShapeFlat
	ShapeArray
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeGroups:
		return "groups"
	case ShapeFlat:
		return "flat"
	case ShapeArray:
		return "array"
	default:
		return "unknown"
	}
}

// Shape is raw decoded JSON narrowed to one of the known legacy shapes.
// Only the fields matching Kind are set.
type Shape struct {
	Kind       ShapeKind
	Logic      any   // raw top-level logic; absent for ShapeArray
	Groups     []any // ShapeGroups
	Conditions []any // ShapeFlat and ShapeArray
}

// Classify narrows a raw JSON value (as produced by unmarshalling into any)
// to a Shape. Objects carrying both keys are read as groups.
func Classify(raw any) Shape {
	switch v := raw.(type) {
	case []any:
		return Shape{Kind: ShapeArray, Conditions: v}
	case map[string]any:
		if groups, ok := v["groups"].([]any); ok {
			return Shape{Kind: ShapeGroups, Logic: v["logic"], Groups: groups}
		}
		if conds, ok := v["conditions"].([]any); ok {
			return Shape{Kind: ShapeFlat, Logic: v["logic"], Conditions: conds}
		}
	}
	return Shape{Kind: ShapeUnknown}
}

// Decode parses data in any known shape into a filter tree. It never fails:
// invalid JSON or an unknown shape yields filter.New().
func Decode(data []byte) filter.Tree {
	var raw any
	if err := jsoniterForWire.Unmarshal(data, &raw); err != nil {
		return filter.New()
	}
	return DecodeValue(raw)
}

// DecodeValue is Decode for an already-unmarshalled JSON value.
func DecodeValue(raw any) filter.Tree {
	d := &decoder{seen: make(map[string]struct{})}
	shape := Classify(raw)

	switch shape.Kind {
	case ShapeGroups:
		return d.tree(parseLogic(shape.Logic), shape.Groups)
	case ShapeFlat:
		return d.tree(parseLogic(shape.Logic), []any{
			map[string]any{"logic": string(filter.LogicAnd), "conditions": shape.Conditions},
		})
	case ShapeArray:
		return d.tree(filter.LogicAnd, []any{
			map[string]any{"logic": string(filter.LogicAnd), "conditions": shape.Conditions},
		})
	default:
		return filter.New()
	}
}

// DecodeString is Decode for JSON text.
func DecodeString(s string) filter.Tree {
	return Decode([]byte(s))
}

// decoder carries the ids already handed out so decoded trees keep unique ids.
type decoder struct {
	seen map[string]struct{}
}

func (d *decoder) tree(logic filter.Logic, rawGroups []any) filter.Tree {
	groups := lo.FilterMap(rawGroups, func(raw any, _ int) (filter.Group, bool) {
		m, ok := raw.(map[string]any)
		if !ok {
			return filter.Group{}, false
		}
		return d.group(m), true
	})
	if len(groups) == 0 {
		t := filter.New()
		t.Logic = logic
		return t
	}
	if len(groups) > types.MaxGroups {
		groups = groups[:types.MaxGroups]
	}
	return filter.Tree{Logic: logic, Groups: groups}
}

func (d *decoder) group(m map[string]any) filter.Group {
	g := filter.Group{
		ID:    d.id(m["id"]),
		Logic: parseLogic(m["logic"]),
	}
	rawConds, _ := m["conditions"].([]any)
	if len(rawConds) > types.MaxConditionsPerGroup {
		rawConds = rawConds[:types.MaxConditionsPerGroup]
	}
	g.Conditions = lo.Map(rawConds, func(raw any, _ int) filter.Condition {
		return d.condition(raw)
	})
	if len(g.Conditions) == 0 {
		g.Conditions = []filter.Condition{d.fresh(filter.NewCondition())}
	}
	return g
}

func (d *decoder) condition(raw any) filter.Condition {
	m, ok := raw.(map[string]any)
	if !ok {
		return d.fresh(filter.NewCondition())
	}
	key, _ := m["field"].(string)
	def, err := fields.Lookup(key)
	if err != nil {
		c := filter.NewCondition()
		c.ID = d.id(m["id"])
		return c
	}

	c := filter.Condition{
		ID:       d.id(m["id"]),
		Field:    def.Key,
		Operator: def.DefaultOperator(),
		Value:    def.DefaultValue(),
	}
	if op, ok := m["operator"].(string); ok && def.Allows(fields.Operator(op)) {
		c.Operator = fields.Operator(op)
	}
	if rawValue, present := m["value"]; present {
		value, err := def.Coerce(rawValue)
		if err != nil {
			value = nil
		}
		c.Value = value
	}
	return c
}

// id returns raw when it is a fresh non-empty string, otherwise a new id.
func (d *decoder) id(raw any) string {
	id := ""
	switch v := raw.(type) {
	case string:
		id = v
	case float64:
		// legacy clients used numeric timestamps as ids
		id = fmt.Sprintf("%.0f", v)
	}
	if _, dup := d.seen[id]; id == "" || dup {
		id = types.NewNodeID()
	}
	d.seen[id] = struct{}{}
	return id
}

// fresh registers a generated condition id with the decoder.
func (d *decoder) fresh(c filter.Condition) filter.Condition {
	d.seen[c.ID] = struct{}{}
	return c
}

func parseLogic(raw any) filter.Logic {
	s, _ := raw.(string)
	if l, ok := filter.ParseLogic(s); ok {
		return l
	}
	return filter.LogicAnd
}
