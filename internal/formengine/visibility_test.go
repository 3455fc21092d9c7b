package formengine

import "testing"

func rule(join Join, conds ...Condition) *VisibilityRule {
	return &VisibilityRule{Join: join, Conditions: conds}
}

func TestIsVisible(t *testing.T) {
	tests := []struct {
		name    string
		rule    *VisibilityRule
		answers Answers
		want    bool
	}{
		{"no rule", nil, Answers{}, true},
		{"equals hit", rule(JoinAll, Condition{"a", OpEquals, "x"}), Answers{"a": "x"}, true},
		{"equals miss", rule(JoinAll, Condition{"a", OpEquals, "x"}), Answers{"a": "y"}, false},
		{"equals unanswered", rule(JoinAll, Condition{"a", OpEquals, "x"}), Answers{}, false},
		{"equals number and string", rule(JoinAll, Condition{"n", OpEquals, "5"}), Answers{"n": float64(5)}, true},
		{"equals bool", rule(JoinAll, Condition{"c", OpEquals, true}), Answers{"c": true}, true},
		{"notEquals unanswered", rule(JoinAll, Condition{"a", OpNotEquals, "x"}), Answers{}, true},
		{"notEquals same", rule(JoinAll, Condition{"a", OpNotEquals, "x"}), Answers{"a": "x"}, false},
		{"in", rule(JoinAll, Condition{"a", OpIn, []any{"x", "y"}}), Answers{"a": "y"}, true},
		{"in miss", rule(JoinAll, Condition{"a", OpIn, []any{"x", "y"}}), Answers{"a": "z"}, false},
		{"notIn", rule(JoinAll, Condition{"a", OpNotIn, []any{"x"}}), Answers{"a": "z"}, true},
		{"isEmpty blank", rule(JoinAll, Condition{"a", OpIsEmpty, nil}), Answers{"a": "  "}, true},
		{"isEmpty empty list", rule(JoinAll, Condition{"a", OpIsEmpty, nil}), Answers{"a": []any{}}, true},
		{"isEmpty false is a value", rule(JoinAll, Condition{"a", OpIsEmpty, nil}), Answers{"a": false}, false},
		{"isNotEmpty", rule(JoinAll, Condition{"a", OpIsNotEmpty, nil}), Answers{"a": "v"}, true},
		{"group contains", rule(JoinAll, Condition{"g", OpEquals, "b"}), Answers{"g": []string{"a", "b"}}, true},
		{"all needs every", rule(JoinAll,
			Condition{"a", OpEquals, "x"}, Condition{"b", OpEquals, "y"}), Answers{"a": "x"}, false},
		{"any needs one", rule(JoinAny,
			Condition{"a", OpEquals, "x"}, Condition{"b", OpEquals, "y"}), Answers{"b": "y"}, true},
		{"unknown operator hides", rule(JoinAll, Condition{"a", "like", "x"}), Answers{"a": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVisible(Input{Name: "f", Visibility: tt.rule}, tt.answers)
			if got != tt.want {
				t.Errorf("IsVisible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsVisible_IgnoresUnrelatedAnswers(t *testing.T) {
	in := Input{Name: "f", Visibility: rule(JoinAll, Condition{"a", OpEquals, "x"})}
	base := Answers{"a": "x"}
	before := IsVisible(in, base)
	base["unrelated"] = "anything"
	base["other"] = []any{"1", "2"}
	if IsVisible(in, base) != before {
		t.Error("visibility changed after adding answers the rule does not read")
	}
}

func TestDecodeVisibility(t *testing.T) {
	r, err := DecodeVisibility([]byte(`{"join":"ANY","conditions":[{"field":"a","operator":"in","value":["x"]}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Join != JoinAny || len(r.Conditions) != 1 || r.Conditions[0].Operator != OpIn {
		t.Errorf("rule = %+v", r)
	}

	r, err = DecodeVisibility([]byte(`{"conditions":[{"field":"a","operator":"isEmpty"}]}`))
	if err != nil || r.Join != JoinAll {
		t.Errorf("default join: rule=%+v err=%v", r, err)
	}

	for _, raw := range []string{"", "null", "{}"} {
		r, err := DecodeVisibility([]byte(raw))
		if err != nil || r != nil {
			t.Errorf("DecodeVisibility(%q) = %v, %v; want nil, nil", raw, r, err)
		}
	}

	if _, err := DecodeVisibility([]byte(`{"conditions":"nope"}`)); err == nil {
		t.Error("expected error for malformed rule")
	}
}

func TestSchemaIsVisible_SubField(t *testing.T) {
	form := Form{Fields: []Field{
		{Input: Input{Name: "has_address", Type: TypeCheckbox, Order: 1}},
		{
			Input: Input{Name: "address", Type: TypeCompound, Order: 2, Visibility: rule(JoinAll,
				Condition{"has_address", OpEquals, true})},
			SubFields: []Input{
				{Name: "country", Type: TypeText, Order: 1},
				{Name: "district", Type: TypeText, Order: 2, Visibility: rule(JoinAll,
					Condition{"country", OpEquals, "UG"})},
			},
		},
	}}
	s := NewSchema(form)
	if len(s.Issues()) != 0 {
		t.Fatalf("unexpected issues: %v", s.Issues())
	}

	answers := Answers{"has_address": true, "address": map[string]any{"country": "UG"}}
	if !s.IsVisible("address.district", answers) {
		t.Error("district should be visible for UG")
	}
	answers["has_address"] = false
	if s.IsVisible("address.district", answers) {
		t.Error("sub-field of a hidden compound must be hidden")
	}
	if s.IsVisible("address.nope", answers) {
		t.Error("unknown path must not be visible")
	}
}
