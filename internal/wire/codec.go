// Package wire converts filter trees to and from the flat query format the
// matching backend and segment storage exchange.
//
// Encoding is lossy by contract: group boundaries and group logic are dropped
// and only the tree logic survives, applied across every complete condition.
// Decoding never fails; malformed input degrades to the canonical empty tree.
package wire

import (
	"database/sql/driver"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
)

// sorted map keys keep encoded queries byte-stable for storage and tests
var jsoniterForWire = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Condition is one encoded `field operator value` predicate.
// Value is omitted for nullary operators.
type Condition struct {
	Field    string          `json:"field"`
	Operator fields.Operator `json:"operator"`
	Value    any             `json:"value,omitempty"`
}

// Query is the flat encoded form of a filter tree.
type Query struct {
	Logic      filter.Logic `json:"logic"`
	Conditions []Condition  `json:"conditions"`
}

// Encode flattens t into a Query. Incomplete conditions are dropped and list
// operators always carry a list value.
func Encode(t filter.Tree) Query {
	logic := t.Logic
	if !logic.Valid() {
		logic = filter.LogicAnd
	}
	conds := lo.FilterMap(t.Conditions(), func(c filter.Condition, _ int) (Condition, bool) {
		if !c.IsComplete() {
			return Condition{}, false
		}
		return Condition{Field: c.Field, Operator: c.Operator, Value: c.EffectiveValue()}, true
	})
	if conds == nil {
		conds = []Condition{}
	}
	return Query{Logic: logic, Conditions: conds}
}

// IsEmpty reports whether q has no conditions.
func (q Query) IsEmpty() bool {
	return len(q.Conditions) == 0
}

// Tree rebuilds a single-group filter tree from q.
func (q Query) Tree() filter.Tree {
	data, err := jsoniterForWire.Marshal(q)
	if err != nil {
		return filter.New()
	}
	return Decode(data)
}

// Marshal encodes q as JSON.
func (q Query) Marshal() ([]byte, error) {
	if q.Conditions == nil {
		q.Conditions = []Condition{}
	}
	return jsoniterForWire.Marshal(q)
}

// UnmarshalJSON accepts every shape Decode accepts and normalises it, so
// request bodies and stored rows in legacy shapes read as flat queries.
func (q *Query) UnmarshalJSON(data []byte) error {
	*q = Encode(Decode(data))
	return nil
}

// Value implements driver.Valuer; queries are stored as JSON text.
func (q Query) Value() (driver.Value, error) {
	data, err := q.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON text or bytes columns.
func (q *Query) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*q = Encode(filter.New())
	case []byte:
		*q = Encode(Decode(v))
	case string:
		*q = Encode(Decode([]byte(v)))
	default:
		return fmt.Errorf("scan query: unsupported type %T", src)
	}
	return nil
}
