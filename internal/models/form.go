package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionType enumerates the supported answer types.
type QuestionType string

const (
	QuestionText        QuestionType = "text"
	QuestionNumber      QuestionType = "number"
	QuestionBoolean     QuestionType = "boolean"
	QuestionSelect      QuestionType = "select"
	QuestionMultiSelect QuestionType = "multi_select"
	QuestionDate        QuestionType = "date"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionNumber, QuestionBoolean, QuestionSelect, QuestionMultiSelect, QuestionDate:
		return true
	}
	return false
}

// Form is a questionnaire created by an administrator.
type Form struct {
	BaseModel

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	CreatedBy   string `gorm:"type:uuid;index;not null" json:"created_by"`

	Questions []FormQuestion `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// FormQuestion is a typed question on a form.
type FormQuestion struct {
	BaseModel

	FormID   string         `gorm:"type:uuid;index;not null" json:"form_id"`
	Position int            `gorm:"not null;default:0" json:"position"`
	Text     string         `gorm:"type:text;not null" json:"text"`
	Type     QuestionType   `gorm:"type:varchar(32);not null" json:"type"`
	Options  datatypes.JSON `json:"options,omitempty"`
	Required bool           `gorm:"default:false" json:"required"`

	// TracksDaysLost marks numeric questions whose answers feed days-lost reporting.
	TracksDaysLost bool `gorm:"default:false" json:"tracks_days_lost"`
	// NotifyOnAnswer queues a question_answered notification to the form owner.
	NotifyOnAnswer bool `gorm:"default:false" json:"notify_on_answer"`
}

// FormAssignment records that a profile is expected to complete a form.
type FormAssignment struct {
	BaseModel

	FormID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_form_assignment" json:"form_id"`
	ProfileID   string     `gorm:"type:uuid;not null;uniqueIndex:idx_form_assignment" json:"profile_id"`
	AssignedBy  string     `gorm:"type:uuid" json:"assigned_by"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Form *Form `gorm:"constraint:OnDelete:CASCADE" json:"form,omitempty"`
}

// FormResponse is one submission of a form.
type FormResponse struct {
	BaseModel

	FormID      string    `gorm:"type:uuid;index;not null" json:"form_id"`
	SubmittedBy string    `gorm:"type:uuid;index;not null" json:"submitted_by"`
	SubmittedAt time.Time `gorm:"index" json:"submitted_at"`

	Answers []FormAnswer `gorm:"foreignKey:ResponseID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

// FormAnswer stores the JSON-encoded answer to a single question.
type FormAnswer struct {
	BaseModel

	ResponseID string         `gorm:"type:uuid;index;not null" json:"response_id"`
	QuestionID string         `gorm:"type:uuid;index;not null" json:"question_id"`
	Value      datatypes.JSON `json:"value"`
}
