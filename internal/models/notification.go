package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationTypeQuestionAnswered is queued when a tracked form question is answered.
const NotificationTypeQuestionAnswered = "question_answered"

// Notification represents an in-app notification for a profile. ProcessedAt marks
// completion of email dispatch and is independent of the read state.
type Notification struct {
	BaseModel

	RecipientID string         `gorm:"type:uuid;index;not null" json:"recipient_id"`
	Type        string         `gorm:"type:varchar(64);index;not null" json:"type"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Message     string         `gorm:"type:text" json:"message"`
	Data        datatypes.JSON `json:"data"`

	Read        bool       `gorm:"column:is_read;default:false;index" json:"read"`
	ReadAt      *time.Time `json:"read_at"`
	ProcessedAt *time.Time `gorm:"index" json:"processed_at"`
}

// QuestionAnsweredData is the payload stored in Notification.Data for
// NotificationTypeQuestionAnswered.
type QuestionAnsweredData struct {
	FormID       string `json:"form_id"`
	ResponseID   string `json:"response_id"`
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	Answer       any    `json:"answer"`
	SubmittedBy  string `json:"submitted_by,omitempty"`
}
