package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/cache"
	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/models"
)

const (
	DefaultTitle          = "Untitled Form"
	DefaultSuccessMessage = "Thank you for your submission!"
	DefaultSubmitLabel    = "Submit"
)

// Forms owns form definitions, their fields and option sets.
type Forms struct {
	db    *gorm.DB
	audit audit.Sink
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
	// gen counts schema invalidations; loads started under an older
	// generation do not write to the cache.
	gen atomic.Uint64
}

func NewForms(db *gorm.DB, sink audit.Sink, c cache.Cache, ttl time.Duration, log *logger.Logger) *Forms {
	return &Forms{
		db:    db,
		audit: sink,
		cache: c,
		ttl:   ttl,
		log:   log.With("service", "forms"),
	}
}

type FormInput struct {
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Slug           string       `json:"slug"`
	SuccessMessage string       `json:"success_message"`
	SubmitLabel    string       `json:"submit_label"`
	Fields         []FieldInput `json:"fields"`
}

// FormPatch changes the non-nil members of a form.
type FormPatch struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Slug           *string `json:"slug"`
	SuccessMessage *string `json:"success_message"`
	SubmitLabel    *string `json:"submit_label"`
	IsActive       *bool   `json:"is_active"`
}

// List returns one page of forms, newest first, without their fields.
func (f *Forms) List(ctx context.Context, p Page) ([]models.Form, int64, error) {
	var total int64
	if err := f.db.WithContext(ctx).Model(&models.Form{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Form
	err := p.apply(f.db.WithContext(ctx).Order("created_at desc, id desc")).Find(&out).Error
	return out, total, err
}

// Get loads a form with all of its fields, options and sub-fields,
// inactive ones included.
func (f *Forms) Get(ctx context.Context, id uint) (*models.Form, error) {
	return getFormTx(f.db.WithContext(ctx), id)
}

func getFormTx(tx *gorm.DB, id uint) (*models.Form, error) {
	var form models.Form
	if err := preloadForm(tx).First(&form, id).Error; err != nil {
		return nil, notFound(err, "form")
	}
	return &form, nil
}

// Create replaces every existing form with a new, active one. Existing forms
// are deleted together with their fields, options and submissions. The whole
// replacement is one transaction.
//
// Blocking configuration problems are returned as formengine.ConfigErrors
// and nothing is written; the returned warnings are the remaining problems.
func (f *Forms) Create(ctx context.Context, actor audit.Actor, in FormInput) (*models.Form, formengine.ConfigErrors, error) {
	form := models.Form{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Slug:           Slugify(in.Slug),
		IsActive:       true,
		SuccessMessage: strings.TrimSpace(in.SuccessMessage),
		SubmitLabel:    strings.TrimSpace(in.SubmitLabel),
		CreatedBy:      actor.ID,
		UpdatedBy:      actor.ID,
	}
	if form.Title == "" {
		form.Title = DefaultTitle
	}
	if form.Slug == "" {
		form.Slug = Slugify(form.Title)
	}
	if form.Slug == "" {
		form.Slug = "form"
	}
	if form.SuccessMessage == "" {
		form.SuccessMessage = DefaultSuccessMessage
	}
	if form.SubmitLabel == "" {
		form.SubmitLabel = DefaultSubmitLabel
	}

	var (
		created  *models.Form
		warnings formengine.ConfigErrors
		replaced []uint
	)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForms(tx); err != nil {
			return err
		}
		if err := tx.Model(&models.Form{}).Pluck("id", &replaced).Error; err != nil {
			return err
		}
		for _, id := range replaced {
			if err := deleteFormTx(tx, id); err != nil {
				return err
			}
		}
		if err := tx.Create(&form).Error; err != nil {
			return err
		}
		for i, fi := range in.Fields {
			if fi.Position == 0 {
				fi.Position = i + 1
			}
			if _, err := insertFieldTx(tx, form.ID, nil, fi); err != nil {
				return err
			}
		}
		var err error
		created, warnings, err = checkFormTx(tx, form.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "form.create", Entity: "form", EntityID: created.ID,
		After: created, Detail: map[string]any{"replaced_form_ids": replaced}})
	return created, warnings, nil
}

// Update edits a form in place. Setting is_active to true deactivates every
// other form in the same transaction; setting it to false is a conflict
// because a form is either live or deleted.
func (f *Forms) Update(ctx context.Context, actor audit.Actor, id uint, p FormPatch) (*models.Form, error) {
	if p.IsActive != nil && !*p.IsActive {
		return nil, conflictf("a form cannot be deactivated; create or activate another form instead")
	}

	var before, after models.Form
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForms(tx); err != nil {
			return err
		}
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "form")
		}
		after = before

		if p.Title != nil {
			after.Title = strings.TrimSpace(*p.Title)
			if after.Title == "" {
				after.Title = DefaultTitle
			}
		}
		if p.Description != nil {
			after.Description = *p.Description
		}
		if p.Slug != nil {
			after.Slug = Slugify(*p.Slug)
			if after.Slug == "" {
				return invalidf("slug must contain letters or digits")
			}
			var n int64
			if err := tx.Model(&models.Form{}).Where("slug = ? AND id <> ?", after.Slug, id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return conflictf("slug %q is already used", after.Slug)
			}
		}
		if p.SuccessMessage != nil {
			after.SuccessMessage = *p.SuccessMessage
		}
		if p.SubmitLabel != nil {
			after.SubmitLabel = *p.SubmitLabel
		}
		if p.IsActive != nil && *p.IsActive && !before.IsActive {
			if err := tx.Model(&models.Form{}).Where("id <> ? AND is_active = ?", id, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
			after.IsActive = true
		}
		after.UpdatedBy = actor.ID
		return tx.Save(&after).Error
	})
	if err != nil {
		return nil, err
	}

	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "form.update", Entity: "form", EntityID: id,
		Before: before, After: after})
	return &after, nil
}

// Delete removes a form with its fields, options and submissions.
func (f *Forms) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	var before models.Form
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForms(tx); err != nil {
			return err
		}
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "form")
		}
		return deleteFormTx(tx, id)
	})
	if err != nil {
		return err
	}
	f.invalidate(ctx)
	f.record(ctx, audit.Entry{Actor: actor, Action: "form.delete", Entity: "form", EntityID: id, Before: before})
	return nil
}

// Active returns the live form, fully loaded.
func (f *Forms) Active(ctx context.Context) (*models.Form, error) {
	var form models.Form
	err := preloadForm(f.db.WithContext(ctx)).Where("is_active = ?", true).First(&form).Error
	if err != nil {
		return nil, notFound(err, "no active form")
	}
	return &form, nil
}

// CleanupOrphans deletes fields whose form or parent field no longer
// exists, with their options. It returns the number of fields removed.
func (f *Forms) CleanupOrphans(ctx context.Context, actor audit.Actor) (int64, error) {
	var removed int64
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			var ids []uint
			if err := tx.Model(&models.FormField{}).
				Where("form_id NOT IN (?)", tx.Model(&models.Form{}).Select("id")).
				Or("parent_id IS NOT NULL AND parent_id NOT IN (?)", tx.Model(&models.FormField{}).Select("id")).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			if err := tx.Where("field_id IN ?", ids).Delete(&models.FieldOption{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", ids).Delete(&models.FormField{})
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected
		}
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		f.invalidate(ctx)
	}
	f.record(ctx, audit.Entry{Actor: actor, Action: "field.cleanup", Entity: "field",
		Detail: map[string]any{"removed": removed}})
	return removed, nil
}

// lockForms serialises create, activate and delete against each other and
// against submission inserts. SQLite already runs with a single connection.
func lockForms(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("LOCK TABLE forms IN SHARE ROW EXCLUSIVE MODE").Error
}

// deleteFormTx removes a form and everything it owns, dependants first.
func deleteFormTx(tx *gorm.DB, id uint) error {
	fieldIDs := tx.Model(&models.FormField{}).Select("id").Where("form_id = ?", id)
	if err := tx.Where("field_id IN (?)", fieldIDs).Delete(&models.FieldOption{}).Error; err != nil {
		return err
	}
	if err := tx.Where("form_id = ? AND parent_id IS NOT NULL", id).Delete(&models.FormField{}).Error; err != nil {
		return err
	}
	if err := tx.Where("form_id = ?", id).Delete(&models.FormField{}).Error; err != nil {
		return err
	}
	if err := tx.Where("form_id = ?", id).Delete(&models.FormSubmission{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Form{}, id).Error
}

// checkFormTx reloads a form inside tx and runs the configuration checks.
// Blocking problems abort the transaction.
func checkFormTx(tx *gorm.DB, id uint) (*models.Form, formengine.ConfigErrors, error) {
	form, err := getFormTx(tx, id)
	if err != nil {
		return nil, nil, err
	}
	ef, err := engineForm(form)
	if err != nil {
		return nil, nil, invalidf("%v", err)
	}
	block, warn := splitIssues(formengine.Check(ef))
	if len(block) > 0 {
		return nil, nil, block
	}
	return form, warn, nil
}

func (f *Forms) record(ctx context.Context, e audit.Entry) {
	if err := f.audit.Record(ctx, e); err != nil {
		f.log.Warn("audit record failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}

// IsConfigError reports whether err carries blocking configuration problems.
func IsConfigError(err error) (formengine.ConfigErrors, bool) {
	var ce formengine.ConfigErrors
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
