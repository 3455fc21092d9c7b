package formengine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rules is the static validation rule set of a field. Each field type family
// has its own variant; DecodeRules only ever produces the variant that
// matches the field type.
type Rules interface {
	rulesFor() []FieldType
}

// TextRules apply to text, textarea, email and tel.
type TextRules struct {
	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// NumericRules apply to number.
type NumericRules struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Integer bool     `json:"integer,omitempty"`
}

// DateRules apply to date. Bounds are ISO dates (2006-01-02), inclusive.
type DateRules struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

// SelectionRules apply to select, radio and checkbox_group. The selection
// bounds are only checked for checkbox_group.
type SelectionRules struct {
	MinSelected *int `json:"min_selected,omitempty"`
	MaxSelected *int `json:"max_selected,omitempty"`
}

// FileRules apply to file. Accept lists allowed extensions (".pdf").
type FileRules struct {
	Accept []string `json:"accept,omitempty"`
}

func (TextRules) rulesFor() []FieldType {
	return []FieldType{TypeText, TypeTextarea, TypeEmail, TypeTel}
}
func (NumericRules) rulesFor() []FieldType { return []FieldType{TypeNumber} }
func (DateRules) rulesFor() []FieldType { return []FieldType{TypeDate} }
func (SelectionRules) rulesFor() []FieldType { return []FieldType{TypeSelect, TypeRadio, TypeCheckboxGroup} }
func (FileRules) rulesFor() []FieldType { return []FieldType{TypeFile} }

// DecodeRules parses a stored rule blob for a field of type t. Empty or null
// input yields nil. Keys that do not belong to the type's variant are
// rejected. checkbox and compound carry no rules; anything stored for them is
// ignored.
func DecodeRules(t FieldType, raw []byte) (Rules, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	var (
		r   Rules
		err error
	)
	switch t {
	case TypeText, TypeTextarea, TypeEmail, TypeTel:
		var v TextRules
		err = strictUnmarshal(raw, &v)
		r = v
	case TypeNumber:
		var v NumericRules
		err = strictUnmarshal(raw, &v)
		r = v
	case TypeDate:
		var v DateRules
		err = strictUnmarshal(raw, &v)
		r = v
	case TypeSelect, TypeRadio, TypeCheckboxGroup:
		var v SelectionRules
		err = strictUnmarshal(raw, &v)
		r = v
	case TypeFile:
		var v FileRules
		err = strictUnmarshal(raw, &v)
		r = v
	case TypeCheckbox, TypeCompound:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("validation rules for %s: %w", t, err)
	}
	return r, nil
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func rulesMatch(r Rules, t FieldType) bool {
	if r == nil {
		return true
	}
	for _, ft := range r.rulesFor() {
		if ft == t {
			return true
		}
	}
	return false
}

func isNullJSON(raw []byte) bool {
	s := string(raw)
	return len(raw) == 0 || s == "null" || s == "{}"
}
