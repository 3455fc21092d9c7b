package models

import (
	"time"

	"gorm.io/datatypes"
)

// Form is a form definition. At most one row has IsActive set.
type Form struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title          string `gorm:"not null" json:"title"`
	Description    string `json:"description"`
	Slug           string `gorm:"uniqueIndex;not null" json:"slug"`
	IsActive       bool   `gorm:"not null" json:"is_active"`
	SuccessMessage string `json:"success_message"`
	SubmitLabel    string `json:"submit_label"`
	CreatedBy      string `json:"created_by,omitempty"`
	UpdatedBy      string `json:"updated_by,omitempty"`

	Fields []FormField `gorm:"foreignKey:FormID" json:"fields,omitempty"`
}

// FormField is one field definition. Sub-fields of a compound field are
// rows of their own with ParentID set; they are never nested deeper.
type FormField struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FormID   uint  `gorm:"not null;index" json:"form_id"`
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`

	Name         string `gorm:"not null" json:"name"`
	Label        string `json:"label"`
	Type         string `gorm:"not null" json:"type"`
	Placeholder  string `json:"placeholder,omitempty"`
	HelpText     string `json:"help_text,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
	Required     bool   `gorm:"not null" json:"required"`
	IsActive     bool   `gorm:"not null" json:"is_active"`
	Position     int    `gorm:"not null;default:0" json:"position"`
	CSSClasses   string `json:"css_classes,omitempty"`

	Grid         datatypes.JSON `json:"grid,omitempty"`
	Rules        datatypes.JSON `json:"validation_rules,omitempty"`
	Visibility   datatypes.JSON `json:"visibility_rule,omitempty"`
	OptionSource datatypes.JSON `json:"option_source,omitempty"`

	Options   []FieldOption `gorm:"foreignKey:FieldID" json:"options,omitempty"`
	SubFields []FormField   `gorm:"foreignKey:ParentID" json:"sub_fields,omitempty"`
}

type FieldOption struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FieldID     uint   `gorm:"not null;index" json:"field_id"`
	Value       string `gorm:"not null" json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Position    int    `gorm:"not null;default:0" json:"position"`
	IsDefault   bool   `gorm:"not null" json:"is_default"`
	IsActive    bool   `gorm:"not null" json:"is_active"`
}

// Submission review states.
const (
	StatusPending   = "pending"
	StatusReviewed  = "reviewed"
	StatusContacted = "contacted"
	StatusCompleted = "completed"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReviewed, StatusContacted, StatusCompleted:
		return true
	}
	return false
}

// FormSubmission holds cleaned answers only.
type FormSubmission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference string         `gorm:"uniqueIndex;not null" json:"reference"`
	FormID    uint           `gorm:"not null;index" json:"form_id"`
	Answers   datatypes.JSON `gorm:"not null" json:"answers"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`

	Status     string     `gorm:"not null;index" json:"status"`
	AdminNotes string     `json:"admin_notes,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}
