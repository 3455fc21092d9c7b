package services

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/models"
)

type FieldInput struct {
	ParentID     *uint           `json:"parent_id"`
	Name         string          `json:"name"`
	Label        string          `json:"label"`
	Type         string          `json:"type"`
	Placeholder  string          `json:"placeholder"`
	HelpText     string          `json:"help_text"`
	DefaultValue string          `json:"default_value"`
	Required     bool            `json:"required"`
	IsActive     *bool           `json:"is_active"`
	Position     int             `json:"display_order"`
	CSSClasses   string          `json:"css_classes"`
	Grid         json.RawMessage `json:"grid"`
	Rules        json.RawMessage `json:"validation_rules"`
	Visibility   json.RawMessage `json:"visibility_rule"`
	OptionSource json.RawMessage `json:"option_source"`
	Options      []OptionInput   `json:"options"`
	SubFields    []FieldInput    `json:"sub_fields"`
}

// FieldPatch changes the non-nil members of a field. A rule blob set to
// JSON null is cleared.
type FieldPatch struct {
	Name         *string         `json:"name"`
	Label        *string         `json:"label"`
	Type         *string         `json:"type"`
	Placeholder  *string         `json:"placeholder"`
	HelpText     *string         `json:"help_text"`
	DefaultValue *string         `json:"default_value"`
	Required     *bool           `json:"required"`
	IsActive     *bool           `json:"is_active"`
	Position     *int            `json:"display_order"`
	CSSClasses   *string         `json:"css_classes"`
	Grid         json.RawMessage `json:"grid"`
	Rules        json.RawMessage `json:"validation_rules"`
	Visibility   json.RawMessage `json:"visibility_rule"`
	OptionSource json.RawMessage `json:"option_source"`
}

type OptionInput struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Position    int    `json:"display_order"`
	IsDefault   bool   `json:"is_default"`
	IsActive    *bool  `json:"is_active"`
}

type OptionPatch struct {
	Value       *string `json:"value"`
	Label       *string `json:"label"`
	Description *string `json:"description"`
	Position    *int    `json:"display_order"`
	IsDefault   *bool   `json:"is_default"`
	IsActive    *bool   `json:"is_active"`
}

// FieldOrder moves one field to a new display position.
type FieldOrder struct {
	ID       uint `json:"id"`
	Position int  `json:"display_order"`
}

// ListFields returns the top-level fields of a form with sub-fields and
// options, in display order.
func (f *Forms) ListFields(ctx context.Context, formID uint) ([]models.FormField, error) {
	form, err := f.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	return form.Fields, nil
}

// CreateField adds a field (with its options and sub-fields) to a form.
// A ParentID makes it a sub-field of that compound field.
func (f *Forms) CreateField(ctx context.Context, actor audit.Actor, formID uint, in FieldInput) (*models.FormField, formengine.ConfigErrors, error) {
	var (
		row      *models.FormField
		warnings formengine.ConfigErrors
	)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var form models.Form
		if err := tx.First(&form, formID).Error; err != nil {
			return notFound(err, "form")
		}
		if in.ParentID != nil {
			var parent models.FormField
			if err := tx.First(&parent, *in.ParentID).Error; err != nil {
				return notFound(err, "parent field")
			}
			if parent.FormID != formID || parent.ParentID != nil || parent.Type != string(formengine.TypeCompound) {
				return invalidf("parent_id must name a top-level compound field of this form")
			}
		}
		if in.Position == 0 {
			next, err := nextPosition(tx, formID, in.ParentID)
			if err != nil {
				return err
			}
			in.Position = next
		}
		var err error
		if row, err = insertFieldTx(tx, formID, in.ParentID, in); err != nil {
			return err
		}
		if _, warnings, err = checkFormTx(tx, formID); err != nil {
			return err
		}
		return tx.Preload("Options", byPosition).Preload("SubFields", byPosition).First(row, row.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "field.create", Entity: "field", EntityID: row.ID, After: row})
	return row, warnings, nil
}

func (f *Forms) UpdateField(ctx context.Context, actor audit.Actor, id uint, p FieldPatch) (*models.FormField, formengine.ConfigErrors, error) {
	var (
		before, after models.FormField
		warnings      formengine.ConfigErrors
	)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "field")
		}
		after = before
		if p.Name != nil {
			after.Name = strings.TrimSpace(*p.Name)
		}
		if p.Label != nil {
			after.Label = *p.Label
		}
		if p.Type != nil {
			after.Type = strings.TrimSpace(*p.Type)
		}
		if p.Placeholder != nil {
			after.Placeholder = *p.Placeholder
		}
		if p.HelpText != nil {
			after.HelpText = *p.HelpText
		}
		if p.DefaultValue != nil {
			after.DefaultValue = *p.DefaultValue
		}
		if p.Required != nil {
			after.Required = *p.Required
		}
		if p.IsActive != nil {
			after.IsActive = *p.IsActive
		}
		if p.Position != nil {
			after.Position = *p.Position
		}
		if p.CSSClasses != nil {
			after.CSSClasses = *p.CSSClasses
		}
		if p.Grid != nil {
			after.Grid = jsonColumn(p.Grid)
		}
		if p.Rules != nil {
			after.Rules = jsonColumn(p.Rules)
		}
		if p.Visibility != nil {
			after.Visibility = jsonColumn(p.Visibility)
		}
		if p.OptionSource != nil {
			after.OptionSource = jsonColumn(p.OptionSource)
		}
		if err := checkBlobs(&after); err != nil {
			return err
		}
		if after.ParentID != nil && after.Type == string(formengine.TypeCompound) {
			return invalidf("compound fields cannot be nested")
		}
		if err := tx.Save(&after).Error; err != nil {
			return err
		}
		var err error
		_, warnings, err = checkFormTx(tx, after.FormID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "field.update", Entity: "field", EntityID: id, Before: before, After: after})
	return &after, warnings, nil
}

// DeleteField removes a field, its sub-fields and all of their options.
func (f *Forms) DeleteField(ctx context.Context, actor audit.Actor, id uint) error {
	var before models.FormField
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "field")
		}
		return deleteFieldTx(tx, id)
	})
	if err != nil {
		return err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "field.delete", Entity: "field", EntityID: id, Before: before})
	return nil
}

// ReorderFields sets the display position of several fields of one form.
func (f *Forms) ReorderFields(ctx context.Context, actor audit.Actor, formID uint, order []FieldOrder) (formengine.ConfigErrors, error) {
	if len(order) == 0 {
		return nil, invalidf("no fields to reorder")
	}
	var warnings formengine.ConfigErrors
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range order {
			res := tx.Model(&models.FormField{}).
				Where("id = ? AND form_id = ?", o.ID, formID).
				Update("position", o.Position)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return notFound(gorm.ErrRecordNotFound, "field")
			}
		}
		var err error
		_, warnings, err = checkFormTx(tx, formID)
		return err
	})
	if err != nil {
		return nil, err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "field.reorder", Entity: "form", EntityID: formID,
		Detail: map[string]any{"order": order}})
	return warnings, nil
}

func (f *Forms) ListOptions(ctx context.Context, fieldID uint) ([]models.FieldOption, error) {
	var field models.FormField
	if err := f.db.WithContext(ctx).First(&field, fieldID).Error; err != nil {
		return nil, notFound(err, "field")
	}
	var out []models.FieldOption
	err := byPosition(f.db.WithContext(ctx).Where("field_id = ?", fieldID)).Find(&out).Error
	return out, err
}

func (f *Forms) CreateOption(ctx context.Context, actor audit.Actor, fieldID uint, in OptionInput) (*models.FieldOption, error) {
	var row models.FieldOption
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.FormField
		if err := tx.First(&field, fieldID).Error; err != nil {
			return notFound(err, "field")
		}
		if !formengine.FieldType(field.Type).Selectable() {
			return invalidf("%s fields do not take options", field.Type)
		}
		if in.Position == 0 {
			var max int
			if err := tx.Model(&models.FieldOption{}).Where("field_id = ?", fieldID).
				Select("COALESCE(MAX(position), 0)").Scan(&max).Error; err != nil {
				return err
			}
			in.Position = max + 1
		}
		var err error
		row, err = newOption(fieldID, in)
		if err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "option.create", Entity: "option", EntityID: row.ID, After: row})
	return &row, nil
}

func (f *Forms) UpdateOption(ctx context.Context, actor audit.Actor, id uint, p OptionPatch) (*models.FieldOption, error) {
	var before, after models.FieldOption
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "option")
		}
		after = before
		if p.Value != nil {
			after.Value = strings.TrimSpace(*p.Value)
			if after.Value == "" {
				return invalidf("option value is required")
			}
		}
		if p.Label != nil {
			after.Label = *p.Label
		}
		if p.Description != nil {
			after.Description = *p.Description
		}
		if p.Position != nil {
			after.Position = *p.Position
		}
		if p.IsDefault != nil {
			after.IsDefault = *p.IsDefault
		}
		if p.IsActive != nil {
			after.IsActive = *p.IsActive
		}
		return tx.Save(&after).Error
	})
	if err != nil {
		return nil, err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "option.update", Entity: "option", EntityID: id, Before: before, After: after})
	return &after, nil
}

func (f *Forms) DeleteOption(ctx context.Context, actor audit.Actor, id uint) error {
	var before models.FieldOption
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "option")
		}
		return tx.Delete(&models.FieldOption{}, id).Error
	})
	if err != nil {
		return err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "option.delete", Entity: "option", EntityID: id, Before: before})
	return nil
}

// insertFieldTx writes one field, its options and its sub-fields.
func insertFieldTx(tx *gorm.DB, formID uint, parentID *uint, in FieldInput) (*models.FormField, error) {
	active := in.IsActive == nil || *in.IsActive
	row := models.FormField{
		FormID:       formID,
		ParentID:     parentID,
		Name:         strings.TrimSpace(in.Name),
		Label:        in.Label,
		Type:         strings.TrimSpace(in.Type),
		Placeholder:  in.Placeholder,
		HelpText:     in.HelpText,
		DefaultValue: in.DefaultValue,
		Required:     in.Required,
		IsActive:     active,
		Position:     in.Position,
		CSSClasses:   in.CSSClasses,
		Grid:         jsonColumn(in.Grid),
		Rules:        jsonColumn(in.Rules),
		Visibility:   jsonColumn(in.Visibility),
		OptionSource: jsonColumn(in.OptionSource),
	}
	if row.Label == "" {
		row.Label = row.Name
	}
	if err := checkBlobs(&row); err != nil {
		return nil, err
	}
	if parentID != nil && len(in.SubFields) > 0 {
		return nil, invalidf("compound fields cannot be nested")
	}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}
	for i, oi := range in.Options {
		if oi.Position == 0 {
			oi.Position = i + 1
		}
		opt, err := newOption(row.ID, oi)
		if err != nil {
			return nil, err
		}
		if err := tx.Create(&opt).Error; err != nil {
			return nil, err
		}
	}
	for i, sub := range in.SubFields {
		if sub.Position == 0 {
			sub.Position = i + 1
		}
		if _, err := insertFieldTx(tx, formID, &row.ID, sub); err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func deleteFieldTx(tx *gorm.DB, id uint) error {
	subIDs := tx.Model(&models.FormField{}).Select("id").Where("parent_id = ?", id)
	if err := tx.Where("field_id IN (?)", subIDs).Delete(&models.FieldOption{}).Error; err != nil {
		return err
	}
	if err := tx.Where("field_id = ?", id).Delete(&models.FieldOption{}).Error; err != nil {
		return err
	}
	if err := tx.Where("parent_id = ?", id).Delete(&models.FormField{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.FormField{}, id).Error
}

func nextPosition(tx *gorm.DB, formID uint, parentID *uint) (int, error) {
	q := tx.Model(&models.FormField{}).Where("form_id = ?", formID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var max int
	if err := q.Select("COALESCE(MAX(position), 0)").Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}

func newOption(fieldID uint, in OptionInput) (models.FieldOption, error) {
	value := strings.TrimSpace(in.Value)
	if value == "" {
		return models.FieldOption{}, invalidf("option value is required")
	}
	label := in.Label
	if label == "" {
		label = value
	}
	return models.FieldOption{
		FieldID:     fieldID,
		Value:       value,
		Label:       label,
		Description: in.Description,
		Position:    in.Position,
		IsDefault:   in.IsDefault,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}, nil
}

// checkBlobs makes sure the stored rule documents parse for the field's
// type.
func checkBlobs(row *models.FormField) error {
	t := formengine.FieldType(row.Type)
	if !t.Valid() {
		return invalidf("unknown field type %q", row.Type)
	}
	if _, err := formengine.DecodeRules(t, row.Rules); err != nil {
		return invalidf("%v", err)
	}
	if _, err := formengine.DecodeVisibility(row.Visibility); err != nil {
		return invalidf("%v", err)
	}
	if _, err := formengine.DecodeOptionSource(row.OptionSource); err != nil {
		return invalidf("%v", err)
	}
	if len(row.Grid) > 0 && !json.Valid(row.Grid) {
		return invalidf("grid is not valid JSON")
	}
	return nil
}

// jsonColumn turns a raw request document into a column value. Null and
// empty documents clear the column.
func jsonColumn(raw json.RawMessage) datatypes.JSON {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	return datatypes.JSON(s)
}
