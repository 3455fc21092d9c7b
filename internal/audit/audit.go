// Package audit records who changed form definitions and submissions.
package audit

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/formdesk/internal/models"
)

// RequestContext is the request metadata attached to an entry.
type RequestContext struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Actor identifies the caller performing an action.
type Actor struct {
	ID      string
	Request RequestContext
}

// Entry describes one change. Before and After are the entity states around
// it; either may be nil.
type Entry struct {
	Actor    Actor
	Action   string
	Entity   string
	EntityID uint
	Before   any
	After    any
	Detail   map[string]any
}

// Sink receives audit entries after the change they describe has committed.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// DBSink writes entries to the audit_logs table.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Record(ctx context.Context, e Entry) error {
	row := models.AuditLog{
		Actor:     e.Actor.ID,
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		RequestID: e.Actor.Request.RequestID,
		IPAddress: e.Actor.Request.IPAddress,
		UserAgent: e.Actor.Request.UserAgent,
	}
	detail := make(map[string]any, len(e.Detail)+2)
	for k, v := range e.Detail {
		detail[k] = v
	}
	if e.Before != nil {
		detail["before"] = e.Before
	}
	if e.After != nil {
		detail["after"] = e.After
	}
	if len(detail) > 0 {
		b, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		row.Detail = datatypes.JSON(b)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// List returns the most recent entries for an entity, newest first.
func (s *DBSink) List(ctx context.Context, entity string, entityID uint, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
