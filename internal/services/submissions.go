package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/models"
)

// Submissions stores accepted answer sets and their review state.
type Submissions struct {
	db    *gorm.DB
	forms *Forms
	audit audit.Sink
	log   *logger.Logger
}

func NewSubmissions(db *gorm.DB, forms *Forms, sink audit.Sink, log *logger.Logger) *Submissions {
	return &Submissions{db: db, forms: forms, audit: sink, log: log.With("service", "submissions")}
}

// Receipt is returned to a submitter after a successful submission.
type Receipt struct {
	ID             uint   `json:"id"`
	Reference      string `json:"reference"`
	SuccessMessage string `json:"success_message"`
}

// StatusUpdate changes a submission's review state and, when set, its notes.
type StatusUpdate struct {
	Status     string  `json:"status"`
	AdminNotes *string `json:"admin_notes"`
}

// Submit validates answers against the live form with slug and stores the
// cleaned answers. A rejected submission returns formengine.ValidationErrors
// and writes nothing.
func (s *Submissions) Submit(ctx context.Context, slug string, answers formengine.Answers, req audit.RequestContext) (*Receipt, error) {
	schema, err := s.forms.schemaFor(ctx, slug)
	if err != nil {
		return nil, err
	}
	clean, err := schema.Validate(answers)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(clean)
	if err != nil {
		return nil, err
	}

	row := models.FormSubmission{
		Reference: uuid.NewString(),
		FormID:    schema.Form().ID,
		Answers:   datatypes.JSON(doc),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Status:    models.StatusPending,
	}
	if err := s.store(ctx, &row); err != nil {
		return nil, err
	}
	s.log.Info("submission accepted", "form_id", row.FormID, "submission_id", row.ID, "request_id", req.RequestID)
	return &Receipt{ID: row.ID, Reference: row.Reference, SuccessMessage: schema.Form().SuccessMessage}, nil
}

// store inserts row if its form is still the live one. A form replaced or
// deleted after the answers were validated takes the submission with it.
func (s *Submissions) store(ctx context.Context, row *models.FormSubmission) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// blocks while a create or delete holds the forms table on postgres
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("LOCK TABLE forms IN SHARE MODE").Error; err != nil {
				return err
			}
		}
		var live int64
		if err := tx.Model(&models.Form{}).Where("id = ? AND is_active = ?", row.FormID, true).Count(&live).Error; err != nil {
			return err
		}
		if live == 0 {
			return fmt.Errorf("%w: form %d is no longer live", ErrNotFound, row.FormID)
		}
		return tx.Create(row).Error
	})
}

// List returns one page of a form's submissions, newest first. An empty
// status lists every state.
func (s *Submissions) List(ctx context.Context, formID uint, status string, p Page) ([]models.FormSubmission, int64, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, 0, invalidf("unknown status %q", status)
	}
	q := s.db.WithContext(ctx).Model(&models.FormSubmission{}).Where("form_id = ?", formID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.FormSubmission
	err := p.apply(q.Order("created_at desc, id desc")).Find(&out).Error
	return out, total, err
}

// StatusCounts is the number of a form's submissions in each review state.
type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Reviewed  int64 `json:"reviewed"`
	Contacted int64 `json:"contacted"`
	Completed int64 `json:"completed"`
	Total     int64 `json:"total"`
}

// Counts aggregates a form's submissions by status in one query.
func (s *Submissions) Counts(ctx context.Context, formID uint) (StatusCounts, error) {
	var out StatusCounts
	err := s.db.WithContext(ctx).Model(&models.FormSubmission{}).
		Select(`
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS reviewed,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS contacted,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed,
			COUNT(*) AS total`,
			models.StatusPending, models.StatusReviewed, models.StatusContacted, models.StatusCompleted).
		Where("form_id = ?", formID).
		Scan(&out).Error
	return out, err
}

func (s *Submissions) Get(ctx context.Context, id uint) (*models.FormSubmission, error) {
	var row models.FormSubmission
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, notFound(err, "submission")
	}
	return &row, nil
}

func (s *Submissions) ByReference(ctx context.Context, ref string) (*models.FormSubmission, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, errors.Join(ErrNotFound, err)
	}
	var row models.FormSubmission
	if err := s.db.WithContext(ctx).Where("reference = ?", ref).First(&row).Error; err != nil {
		return nil, notFound(err, "submission")
	}
	return &row, nil
}

// UpdateStatus records a review step. The caller becomes the reviewer.
func (s *Submissions) UpdateStatus(ctx context.Context, actor audit.Actor, id uint, u StatusUpdate) (*models.FormSubmission, error) {
	if !models.ValidStatus(u.Status) {
		return nil, invalidf("unknown status %q", u.Status)
	}
	var before, after models.FormSubmission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, id).Error; err != nil {
			return notFound(err, "submission")
		}
		after = before
		now := time.Now().UTC()
		after.Status = u.Status
		after.ReviewedBy = actor.ID
		after.ReviewedAt = &now
		if u.AdminNotes != nil {
			after.AdminNotes = *u.AdminNotes
		}
		return tx.Save(&after).Error
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Entry{Actor: actor, Action: "submission.status", Entity: "submission", EntityID: id,
		Detail: map[string]any{"from": before.Status, "to": after.Status}})
	return &after, nil
}

func (s *Submissions) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.FormSubmission{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "submission")
	}
	s.record(ctx, audit.Entry{Actor: actor, Action: "submission.delete", Entity: "submission", EntityID: id})
	return nil
}

func (s *Submissions) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Record(ctx, e); err != nil {
		s.log.Warn("audit record failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}
