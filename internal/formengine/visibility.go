package formengine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "notEquals"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpIsEmpty    Operator = "isEmpty"
	OpIsNotEmpty Operator = "isNotEmpty"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

type Join string

const (
	JoinAll Join = "all"
	JoinAny Join = "any"
)

// Condition compares the answer of Field against Value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// VisibilityRule shows a field only when its conditions hold. Join defaults
// to JoinAll.
type VisibilityRule struct {
	Join       Join        `json:"join,omitempty"`
	Conditions []Condition `json:"conditions"`
}

// DecodeVisibility parses a stored visibility rule. Empty or null input
// yields nil. Join is normalised to lower case.
func DecodeVisibility(raw []byte) (*VisibilityRule, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	var r VisibilityRule
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("visibility rule: %w", err)
	}
	r.Join = Join(strings.ToLower(string(r.Join)))
	if r.Join == "" {
		r.Join = JoinAll
	}
	return &r, nil
}

// IsVisible evaluates a field's visibility rule against the answers given so
// far. A field without a rule is always visible. It does not know about
// display order; Schema.IsVisible additionally hides fields whose rule is
// misconfigured.
func IsVisible(f Input, answers Answers) bool {
	return evalVisibility(f.Visibility, answers)
}

func evalVisibility(r *VisibilityRule, answers Answers) bool {
	if r == nil || len(r.Conditions) == 0 {
		return true
	}
	if r.Join == JoinAny {
		for _, c := range r.Conditions {
			if evalCondition(c, answers) {
				return true
			}
		}
		return false
	}
	for _, c := range r.Conditions {
		if !evalCondition(c, answers) {
			return false
		}
	}
	return true
}

func evalCondition(c Condition, answers Answers) bool {
	actual := answers[c.Field]
	switch c.Operator {
	case OpEquals:
		return matchesAny(actual, []any{c.Value})
	case OpNotEquals:
		return !matchesAny(actual, []any{c.Value})
	case OpIn:
		return matchesAny(actual, asList(c.Value))
	case OpNotIn:
		return !matchesAny(actual, asList(c.Value))
	case OpIsEmpty:
		return isEmpty(actual)
	case OpIsNotEmpty:
		return !isEmpty(actual)
	}
	return false
}

// matchesAny reports whether the answer equals one of the expected values.
// A multi-valued answer (checkbox_group) matches when any of its elements
// does.
func matchesAny(actual any, expected []any) bool {
	if isEmpty(actual) {
		return false
	}
	for _, a := range asList(actual) {
		as, ok := scalarString(a)
		if !ok {
			continue
		}
		for _, e := range expected {
			if es, ok := scalarString(e); ok && es == as {
				return true
			}
		}
	}
	return false
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// scalarString renders a scalar the same way regardless of whether it came
// in as a JSON string, number or boolean, so "5" and 5 compare equal.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		for _, sub := range t {
			if !isEmpty(sub) {
				return false
			}
		}
		return true
	case Answers:
		return isEmpty(map[string]any(t))
	}
	return false
}
