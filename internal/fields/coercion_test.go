package fields

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/solatis/segmentkeeper/internal/types"
)

func TestCoerce(t *testing.T) {
	dateField := Definition{Key: "lastOrderDate", ValueType: TypeDate, AllowedOperators: []Operator{OpEq}}

	tests := []struct {
		name    string
		def     Definition
		value   any
		want    any
		wantErr error
	}{
		// number
		{name: "number: float64 passthrough", def: DefinitionOf("totalSpent"), value: 42.5, want: 42.5},
		{name: "number: int to float64", def: DefinitionOf("totalSpent"), value: 100, want: 100.0},
		{name: "number: string to float64", def: DefinitionOf("totalSpent"), value: " 25 ", want: 25.0},
		{name: "number: json.Number", def: DefinitionOf("totalSpent"), value: json.Number("7.5"), want: 7.5},
		{name: "number: empty string is empty", def: DefinitionOf("totalSpent"), value: "  ", want: nil},
		{name: "number: garbage fails", def: DefinitionOf("totalSpent"), value: "abc", wantErr: types.ErrCoercionFailed},
		{name: "number: NaN string fails", def: DefinitionOf("totalSpent"), value: "NaN", wantErr: types.ErrCoercionFailed},
		{name: "number: NaN float fails", def: DefinitionOf("totalSpent"), value: math.NaN(), wantErr: types.ErrCoercionFailed},
		{name: "number: bool fails", def: DefinitionOf("totalSpent"), value: true, wantErr: types.ErrCoercionFailed},
		{name: "number: below min fails", def: DefinitionOf("totalSpent"), value: -1, wantErr: types.ErrCoercionFailed},
		{name: "number: score above max fails", def: DefinitionOf("recencyScore"), value: 6, wantErr: types.ErrCoercionFailed},
		{name: "number: score in range", def: DefinitionOf("recencyScore"), value: "4", want: 4.0},

		// string
		{name: "string: passthrough", def: DefinitionOf("email"), value: "a@b.com", want: "a@b.com"},
		{name: "string: number formatted", def: DefinitionOf("email"), value: 12.0, want: "12"},
		{name: "string: empty kept", def: DefinitionOf("email"), value: "", want: ""},

		// boolean
		{name: "boolean: bool", def: DefinitionOf("isHighValue"), value: false, want: false},
		{name: "boolean: string true", def: DefinitionOf("isHighValue"), value: "TRUE", want: true},
		{name: "boolean: number fails", def: DefinitionOf("isHighValue"), value: 1, wantErr: types.ErrCoercionFailed},
		{name: "boolean: other string fails", def: DefinitionOf("isHighValue"), value: "yes", wantErr: types.ErrCoercionFailed},

		// enum
		{name: "enum: known value", def: DefinitionOf("rfmSegment"), value: "champions", want: "champions"},
		{name: "enum: unknown value fails", def: DefinitionOf("rfmSegment"), value: "whales", wantErr: types.ErrCoercionFailed},
		{name: "enum: empty is empty", def: DefinitionOf("rfmSegment"), value: "", want: nil},

		// date
		{name: "date: calendar date", def: dateField, value: "2024-03-01", want: "2024-03-01"},
		{name: "date: RFC3339", def: dateField, value: "2024-03-01T10:00:00Z", want: "2024-03-01T10:00:00Z"},
		{name: "date: garbage fails", def: dateField, value: "yesterday", wantErr: types.ErrCoercionFailed},
		{name: "date: number fails", def: dateField, value: 20240301, wantErr: types.ErrCoercionFailed},

		// lists
		{name: "list: enum values", def: DefinitionOf("rfmSegment"), value: []any{"loyal", "", "lost"}, want: []any{"loyal", "lost"}},
		{name: "list: strings to numbers", def: DefinitionOf("recencyScore"), value: []string{"1", "2"}, want: []any{1.0, 2.0}},
		{name: "list: all empty is empty", def: DefinitionOf("rfmSegment"), value: []any{""}, want: nil},
		{name: "list: bad element fails", def: DefinitionOf("rfmSegment"), value: []any{"loyal", "whales"}, wantErr: types.ErrCoercionFailed},

		{name: "nil is empty", def: DefinitionOf("totalSpent"), value: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.Coerce(tt.value)
			if err != tt.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Coerce() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCoerce_TooManyInValues(t *testing.T) {
	values := make([]any, types.MaxInOperatorValues+1)
	for i := range values {
		values[i] = "loyal"
	}
	if _, err := DefinitionOf("rfmSegment").Coerce(values); err != types.ErrTooManyInValues {
		t.Errorf("Coerce() error = %v, want ErrTooManyInValues", err)
	}
}

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, true},
		{"", true},
		{"   ", true},
		{[]any{}, true},
		{"x", false},
		{0.0, false},
		{false, false},
		{[]any{"a"}, false},
	}
	for _, tt := range tests {
		if got := IsEmptyValue(tt.value); got != tt.want {
			t.Errorf("IsEmptyValue(%#v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
