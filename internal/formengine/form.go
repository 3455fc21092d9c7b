// Package formengine holds the dynamic form model and the pure evaluation code
// that runs against it: conditional visibility, dynamic option resolution,
// compound sub-field expansion and submission validation.
//
// Nothing in this package touches storage or the network. Callers build a
// Form from whatever they persisted, wrap it with NewSchema and evaluate
// answers against that snapshot.
package formengine

import (
	"encoding/json"
	"sort"
)

type FieldType string

const (
	TypeText          FieldType = "text"
	TypeEmail         FieldType = "email"
	TypeTel           FieldType = "tel"
	TypeNumber        FieldType = "number"
	TypeDate          FieldType = "date"
	TypeTextarea      FieldType = "textarea"
	TypeSelect        FieldType = "select"
	TypeRadio         FieldType = "radio"
	TypeCheckbox      FieldType = "checkbox"
	TypeCheckboxGroup FieldType = "checkbox_group"
	TypeFile          FieldType = "file"
	TypeCompound      FieldType = "compound"
)

var knownTypes = map[FieldType]bool{
	TypeText: true, TypeEmail: true, TypeTel: true, TypeNumber: true,
	TypeDate: true, TypeTextarea: true, TypeSelect: true, TypeRadio: true,
	TypeCheckbox: true, TypeCheckboxGroup: true, TypeFile: true, TypeCompound: true,
}

func (t FieldType) Valid() bool { return knownTypes[t] }

// Selectable reports whether values of this type must come from an option set.
func (t FieldType) Selectable() bool {
	return t == TypeSelect || t == TypeRadio || t == TypeCheckboxGroup
}

// Option is one entry of an option set.
type Option struct {
	ID          uint   `json:"id,omitempty"`
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	IsDefault   bool   `json:"is_default,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Input is everything a field carries except sub-fields. A compound's
// sub-fields are Inputs, so a sub-field cannot itself hold sub-fields.
type Input struct {
	ID           uint              `json:"id,omitempty"`
	Name         string            `json:"name"`
	Label        string            `json:"label"`
	Type         FieldType         `json:"type"`
	Placeholder  string            `json:"placeholder,omitempty"`
	HelpText     string            `json:"help_text,omitempty"`
	DefaultValue string            `json:"default_value,omitempty"`
	Required     bool              `json:"required"`
	Order        int               `json:"order"`
	CSSClasses   string            `json:"css_classes,omitempty"`
	Grid         json.RawMessage   `json:"grid,omitempty"`
	Rules        Rules             `json:"validation_rules,omitempty"`
	Options      []Option          `json:"options,omitempty"`
	Visibility   *VisibilityRule   `json:"visibility_rule,omitempty"`
	OptionSource *OptionSourceRule `json:"option_source,omitempty"`
}

// Field is a top-level form field. SubFields is only meaningful for
// TypeCompound.
type Field struct {
	Input
	SubFields []Input `json:"sub_fields,omitempty"`
}

// Form is a form definition snapshot.
type Form struct {
	ID             uint    `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Slug           string  `json:"slug"`
	SuccessMessage string  `json:"success_message"`
	SubmitLabel    string  `json:"submit_label"`
	Fields         []Field `json:"fields"`
}

// Answers maps field names to submitted values. Compound fields hold a nested
// map keyed by sub-field name.
type Answers map[string]any

// SubPath addresses a compound sub-field as "parent.sub".
func SubPath(parent, sub string) string { return parent + "." + sub }

// sortedFields returns the fields in display order. Ties keep their
// original relative position.
func sortedFields(in []Field) []Field {
	out := make([]Field, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].SubFields = sortedInputs(out[i].SubFields)
	}
	return out
}

func sortedInputs(in []Input) []Input {
	if in == nil {
		return nil
	}
	out := make([]Input, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
