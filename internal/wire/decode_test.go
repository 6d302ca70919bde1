// internal/wire/decode_test.go
package wire

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/types"
)

func TestDecode_LegacyFlat(t *testing.T) {
	tree := DecodeString(`{"conditions":[{"field":"totalSpent","operator":"gte","value":500}],"logic":"AND"}`)

	if tree.Logic != filter.LogicAnd {
		t.Errorf("Logic = %v, want AND", tree.Logic)
	}
	if len(tree.Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(tree.Groups))
	}
	if len(tree.Groups[0].Conditions) != 1 {
		t.Fatalf("len(Conditions) = %d, want 1", len(tree.Groups[0].Conditions))
	}
	c := tree.Groups[0].Conditions[0]
	if c.Field != "totalSpent" || c.Operator != fields.OpGte || c.Value != 500.0 {
		t.Errorf("condition = %+v, want totalSpent gte 500", c)
	}
	if c.ID == "" {
		t.Error("condition id not generated")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want ShapeKind
	}{
		{"groups", map[string]any{"groups": []any{}}, ShapeGroups},
		{"groups wins over conditions", map[string]any{"groups": []any{}, "conditions": []any{}}, ShapeGroups},
		{"flat", map[string]any{"conditions": []any{}, "logic": "OR"}, ShapeFlat},
		{"array", []any{}, ShapeArray},
		{"groups not a list", map[string]any{"groups": "x"}, ShapeUnknown},
		{"empty object", map[string]any{}, ShapeUnknown},
		{"string", "AND", ShapeUnknown},
		{"nil", nil, ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.raw).Kind; got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantLogic  filter.Logic
		wantGroups []int // conditions per group
	}{
		{
			name:       "groups",
			input:      `{"logic":"or","groups":[{"id":"g1","logic":"OR","conditions":[{"id":"c1","field":"email","operator":"isNull"},{"field":"ordersCount","operator":"gt","value":2}]},{"conditions":[]}]}`,
			wantLogic:  filter.LogicOr,
			wantGroups: []int{2, 1},
		},
		{
			name:       "flat keeps tree logic",
			input:      `{"logic":"OR","conditions":[{"field":"isHighValue","operator":"eq","value":true},{"field":"isChurnRisk","operator":"eq","value":false}]}`,
			wantLogic:  filter.LogicOr,
			wantGroups: []int{2},
		},
		{
			name:       "flat without logic",
			input:      `{"conditions":[{"field":"isHighValue","operator":"eq","value":true}]}`,
			wantLogic:  filter.LogicAnd,
			wantGroups: []int{1},
		},
		{
			name:       "bare array",
			input:      `[{"field":"rfmSegment","operator":"in","value":["champions","loyal"]}]`,
			wantLogic:  filter.LogicAnd,
			wantGroups: []int{1},
		},
		{"empty array", `[]`, filter.LogicAnd, []int{1}},
		{"groups all invalid", `{"logic":"OR","groups":[1,"x",null]}`, filter.LogicOr, []int{1}},
		{"unknown shape", `{"filters":[]}`, filter.LogicAnd, []int{1}},
		{"scalar", `42`, filter.LogicAnd, []int{1}},
		{"invalid json", `{"conditions":[`, filter.LogicAnd, []int{1}},
		{"empty input", ``, filter.LogicAnd, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := DecodeString(tt.input)
			if tree.Logic != tt.wantLogic {
				t.Errorf("Logic = %v, want %v", tree.Logic, tt.wantLogic)
			}
			got := make([]int, len(tree.Groups))
			for i, g := range tree.Groups {
				got[i] = len(g.Conditions)
			}
			if !reflect.DeepEqual(got, tt.wantGroups) {
				t.Errorf("conditions per group = %v, want %v", got, tt.wantGroups)
			}
			if err := filter.Validate(tree); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestDecode_ConditionDegradation(t *testing.T) {
	def := fields.DefaultField()
	tests := []struct {
		name  string
		input string
		want  filter.Condition // ID ignored
	}{
		{"unknown field", `[{"field":"lifetimeValue","operator":"gt","value":3}]`,
			filter.Condition{Field: def.Key, Operator: def.DefaultOperator()}},
		{"missing field", `[{"operator":"gt","value":3}]`,
			filter.Condition{Field: def.Key, Operator: def.DefaultOperator()}},
		{"not an object", `["totalSpent"]`,
			filter.Condition{Field: def.Key, Operator: def.DefaultOperator()}},
		{"illegal operator", `[{"field":"isHighValue","operator":"ne","value":false}]`,
			filter.Condition{Field: "isHighValue", Operator: fields.OpEq, Value: false}},
		{"missing operator", `[{"field":"email","value":"x"}]`,
			filter.Condition{Field: "email", Operator: fields.OpContains, Value: "x"}},
		{"missing boolean value", `[{"field":"isChurnRisk","operator":"eq"}]`,
			filter.Condition{Field: "isChurnRisk", Operator: fields.OpEq, Value: true}},
		{"bad number", `[{"field":"totalSpent","operator":"gt","value":"lots"}]`,
			filter.Condition{Field: "totalSpent", Operator: fields.OpGt}},
		{"numeric string", `[{"field":"totalSpent","operator":"gt","value":"99.5"}]`,
			filter.Condition{Field: "totalSpent", Operator: fields.OpGt, Value: 99.5}},
		{"bad enum", `[{"field":"rfmSegment","operator":"eq","value":"vip"}]`,
			filter.Condition{Field: "rfmSegment", Operator: fields.OpEq}},
		{"null value", `[{"field":"recencyScore","operator":"eq","value":null}]`,
			filter.Condition{Field: "recencyScore", Operator: fields.OpEq}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := DecodeString(tt.input)
			got := tree.Groups[0].Conditions[0]
			got.ID = ""
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("condition = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_IDs(t *testing.T) {
	tree := DecodeString(`{"groups":[
		{"id":"g1","conditions":[{"id":"c1","field":"email","operator":"isNull"},{"id":"c1","field":"email","operator":"isNotNull"}]},
		{"id":"g1","conditions":[{"id":1700000000000,"field":"email","operator":"isNull"}]}
	]}`)

	if tree.Groups[0].ID != "g1" {
		t.Errorf("group id = %q, want g1", tree.Groups[0].ID)
	}
	if tree.Groups[1].ID == "g1" || tree.Groups[1].ID == "" {
		t.Errorf("duplicate group id kept: %q", tree.Groups[1].ID)
	}
	conds := tree.Groups[0].Conditions
	if conds[0].ID != "c1" || conds[1].ID == "c1" {
		t.Errorf("condition ids = %q, %q; want c1 then a fresh id", conds[0].ID, conds[1].ID)
	}
	if got := tree.Groups[1].Conditions[0].ID; got != "1700000000000" {
		t.Errorf("numeric id = %q, want 1700000000000", got)
	}
	if err := filter.Validate(tree); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestDecode_Limits(t *testing.T) {
	raw := make([]any, 0, types.MaxConditionsPerGroup+10)
	for i := 0; i < types.MaxConditionsPerGroup+10; i++ {
		raw = append(raw, map[string]any{"field": "ordersCount", "operator": "gt", "value": float64(i)})
	}
	tree := DecodeValue(raw)
	if n := len(tree.Groups[0].Conditions); n != types.MaxConditionsPerGroup {
		t.Errorf("len(Conditions) = %d, want %d", n, types.MaxConditionsPerGroup)
	}

	groups := make([]any, types.MaxGroups+2)
	for i := range groups {
		groups[i] = map[string]any{"conditions": []any{}}
	}
	tree = DecodeValue(map[string]any{"groups": groups})
	if n := len(tree.Groups); n != types.MaxGroups {
		t.Errorf("len(Groups) = %d, want %d", n, types.MaxGroups)
	}
}

// Group logic is dropped by Encode; decode(encode) of a two-group tree with
// differing group logic keeps conditions but not the grouping.
func TestCodec_GroupLogicIsFlattened(t *testing.T) {
	tree := DecodeString(`{"logic":"AND","groups":[
		{"logic":"OR","conditions":[{"field":"isHighValue","operator":"eq","value":true},{"field":"isChurnRisk","operator":"eq","value":true}]},
		{"logic":"AND","conditions":[{"field":"ordersCount","operator":"gte","value":2}]}
	]}`)
	round := Decode(mustMarshal(t, Encode(tree)))

	if len(round.Groups) != 1 || round.Groups[0].Logic != filter.LogicAnd {
		t.Fatalf("round trip groups = %+v, want one AND group", round.Groups)
	}
	if len(round.Groups[0].Conditions) != 3 {
		t.Errorf("len(Conditions) = %d, want 3", len(round.Groups[0].Conditions))
	}
}

func mustMarshal(t *testing.T, q Query) []byte {
	t.Helper()
	data, err := q.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return data
}

// Property-based test: decoding never panics and always yields a valid tree
func TestDecode_PropertyNeverFails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fragments := []string{
		`{`, `}`, `[`, `]`, `,`, `:`, `"groups"`, `"conditions"`, `"logic"`, `"OR"`,
		`"field"`, `"operator"`, `"value"`, `"totalSpent"`, `"eq"`, `"in"`, `1`, `null`, `true`, `"x"`,
	}

	properties.Property("any input decodes to a valid tree", prop.ForAll(
		func(picks []int) bool {
			var input []byte
			for _, p := range picks {
				input = append(input, fragments[p%len(fragments)]...)
			}
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Decode(%s) panicked: %v", input, r)
				}
			}()
			return filter.Validate(Decode(input)) == nil
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
