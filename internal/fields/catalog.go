package fields

// Catalog is the fixed set of customer fields understood by the matching backend.
var Catalog = MustRegistry(
	Definition{
		Key:              "totalSpent",
		Label:            "Total spent",
		ValueType:        TypeNumber,
		AllowedOperators: []Operator{OpGte, OpLte, OpGt, OpLt, OpEq, OpNe},
		Placeholder:      "e.g. 500",
		Min:              bound(0),
	},
	Definition{
		Key:              "ordersCount",
		Label:            "Number of orders",
		ValueType:        TypeNumber,
		AllowedOperators: []Operator{OpGte, OpLte, OpGt, OpLt, OpEq, OpNe},
		Placeholder:      "e.g. 3",
		Min:              bound(0),
	},
	Definition{
		Key:              "avgOrderValue",
		Label:            "Average order value",
		ValueType:        TypeNumber,
		AllowedOperators: []Operator{OpGte, OpLte, OpGt, OpLt, OpEq, OpNe},
		Placeholder:      "e.g. 75",
		Min:              bound(0),
	},
	Definition{
		Key:              "daysSinceLastOrder",
		Label:            "Days since last order",
		ValueType:        TypeNumber,
		AllowedOperators: []Operator{OpLte, OpGte, OpGt, OpLt, OpEq, OpIsNull, OpIsNotNull},
		Placeholder:      "e.g. 90",
		Min:              bound(0),
	},
	Definition{
		Key:              "rfmSegment",
		Label:            "RFM segment",
		ValueType:        TypeEnum,
		AllowedOperators: []Operator{OpEq, OpNe, OpIn, OpNotIn},
		EnumValues: []EnumValue{
			{Value: "champions", Label: "Champions"},
			{Value: "loyal", Label: "Loyal"},
			{Value: "potential_loyalist", Label: "Potential loyalist"},
			{Value: "new_customers", Label: "New customers"},
			{Value: "promising", Label: "Promising"},
			{Value: "need_attention", Label: "Need attention"},
			{Value: "about_to_sleep", Label: "About to sleep"},
			{Value: "at_risk", Label: "At risk"},
			{Value: "cannot_lose", Label: "Cannot lose them"},
			{Value: "hibernating", Label: "Hibernating"},
			{Value: "lost", Label: "Lost"},
		},
	},
	scoreField("recencyScore", "Recency score"),
	scoreField("frequencyScore", "Frequency score"),
	scoreField("monetaryScore", "Monetary score"),
	Definition{
		Key:              "isHighValue",
		Label:            "High value customer",
		ValueType:        TypeBoolean,
		AllowedOperators: []Operator{OpEq},
	},
	Definition{
		Key:              "isChurnRisk",
		Label:            "Churn risk",
		ValueType:        TypeBoolean,
		AllowedOperators: []Operator{OpEq},
	},
	Definition{
		Key:              "email",
		Label:            "Email",
		ValueType:        TypeString,
		AllowedOperators: []Operator{OpContains, OpEq, OpNe, OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull},
		Placeholder:      "e.g. @gmail.com",
	},
)

// scoreField builds an RFM score field; scores are integers 1 through 5.
func scoreField(key, label string) Definition {
	return Definition{
		Key:              key,
		Label:            label,
		ValueType:        TypeNumber,
		AllowedOperators: []Operator{OpEq, OpGte, OpLte, OpGt, OpLt, OpNe, OpIn, OpNotIn},
		Placeholder:      "1-5",
		Min:              bound(1),
		Max:              bound(5),
	}
}

func bound(v float64) *float64 {
	return &v
}

// Lookup returns the catalog definition for key.
func Lookup(key string) (Definition, error) {
	return Catalog.Lookup(key)
}

// DefinitionOf returns the catalog definition for key or the default field.
func DefinitionOf(key string) Definition {
	return Catalog.DefinitionOf(key)
}

// DefaultField returns the first catalog field.
func DefaultField() Definition {
	return Catalog.Default()
}

// DefaultOperatorFor returns the first allowed operator of a catalog field.
func DefaultOperatorFor(key string) Operator {
	return Catalog.DefaultOperatorFor(key)
}

// DefaultValueFor returns the default value of a catalog field.
func DefaultValueFor(key string) any {
	return Catalog.DefaultValueFor(key)
}

// Allows reports whether op is legal for the catalog field key.
func Allows(key string, op Operator) bool {
	return Catalog.Allows(key, op)
}
