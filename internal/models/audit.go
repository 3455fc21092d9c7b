package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one authoring or review action.
type AuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Actor     string `gorm:"index" json:"actor"`
	Action    string `gorm:"not null" json:"action"` // form.create, field.update, submission.status, ...
	Entity    string `gorm:"not null" json:"entity"`
	EntityID  uint   `json:"entity_id"`
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Detail datatypes.JSON `json:"detail,omitempty"`
}
