package services

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/models"
)

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position asc, id asc")
}

// preloadForm loads the top-level fields of a form with their options and
// sub-fields, all in display order.
func preloadForm(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return byPosition(db.Where("parent_id IS NULL"))
		}).
		Preload("Fields.Options", byPosition).
		Preload("Fields.SubFields", byPosition).
		Preload("Fields.SubFields.Options", byPosition)
}

// engineForm converts a preloaded form row. Inactive fields and sub-fields
// are left out; inactive options are kept so the resolver can filter them.
func engineForm(f *models.Form) (formengine.Form, error) {
	out := formengine.Form{
		ID:             f.ID,
		Title:          f.Title,
		Description:    f.Description,
		Slug:           f.Slug,
		SuccessMessage: f.SuccessMessage,
		SubmitLabel:    f.SubmitLabel,
		Fields:         make([]formengine.Field, 0, len(f.Fields)),
	}
	for i := range f.Fields {
		row := &f.Fields[i]
		if !row.IsActive {
			continue
		}
		in, err := engineInput(row)
		if err != nil {
			return formengine.Form{}, err
		}
		field := formengine.Field{Input: in}
		for j := range row.SubFields {
			sub := &row.SubFields[j]
			if !sub.IsActive {
				continue
			}
			sin, err := engineInput(sub)
			if err != nil {
				return formengine.Form{}, err
			}
			field.SubFields = append(field.SubFields, sin)
		}
		out.Fields = append(out.Fields, field)
	}
	return out, nil
}

func engineInput(row *models.FormField) (formengine.Input, error) {
	t := formengine.FieldType(row.Type)
	in := formengine.Input{
		ID:           row.ID,
		Name:         row.Name,
		Label:        row.Label,
		Type:         t,
		Placeholder:  row.Placeholder,
		HelpText:     row.HelpText,
		DefaultValue: row.DefaultValue,
		Required:     row.Required,
		Order:        row.Position,
		CSSClasses:   row.CSSClasses,
	}
	if len(row.Grid) > 0 {
		in.Grid = json.RawMessage(row.Grid)
	}

	var err error
	if t.Valid() {
		if in.Rules, err = formengine.DecodeRules(t, row.Rules); err != nil {
			return in, fmt.Errorf("field %d: %w", row.ID, err)
		}
	}
	if in.Visibility, err = formengine.DecodeVisibility(row.Visibility); err != nil {
		return in, fmt.Errorf("field %d: %w", row.ID, err)
	}
	if in.OptionSource, err = formengine.DecodeOptionSource(row.OptionSource); err != nil {
		return in, fmt.Errorf("field %d: %w", row.ID, err)
	}
	for _, o := range row.Options {
		in.Options = append(in.Options, formengine.Option{
			ID:          o.ID,
			Value:       o.Value,
			Label:       o.Label,
			Description: o.Description,
			Order:       o.Position,
			IsDefault:   o.IsDefault,
			IsActive:    o.IsActive,
		})
	}
	return in, nil
}

// blocking lists the configuration problems that make a definition
// unusable. They are rejected when written; the remaining problems are
// reported as warnings because they can be fixed by later edits (adding the
// referenced field, adding sub-fields to a new compound).
var blocking = map[string]bool{
	formengine.ConfigMissingName:       true,
	formengine.ConfigDuplicateName:     true,
	formengine.ConfigUnknownType:       true,
	formengine.ConfigSubFieldsOnSimple: true,
	formengine.ConfigNestedCompound:    true,
	formengine.ConfigUnknownOperator:   true,
	formengine.ConfigInvalidJoin:       true,
	formengine.ConfigSourceOnSimple:    true,
	formengine.ConfigInvalidPattern:    true,
	formengine.ConfigRulesMismatch:     true,
}

func splitIssues(issues formengine.ConfigErrors) (block, warn formengine.ConfigErrors) {
	for _, ce := range issues {
		if blocking[ce.Reason] {
			block = append(block, ce)
		} else {
			warn = append(warn, ce)
		}
	}
	return block, warn
}
