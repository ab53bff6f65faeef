package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/models"
)

// DaysLostRow is one numeric answer to a days-lost question.
type DaysLostRow struct {
	ResponseID  string
	SubmittedBy string
	SubmittedAt time.Time
	Value       []byte
}

// FormStore persists forms, assignments and responses.
type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	FindByID(ctx context.Context, id string) (*models.Form, error)
	List(ctx context.Context, createdBy string) ([]models.Form, error)
	Assign(ctx context.Context, assignment *models.FormAssignment) error
	FindAssignment(ctx context.Context, formID, profileID string) (*models.FormAssignment, error)
	ListAssignments(ctx context.Context, profileID string) ([]models.FormAssignment, error)
	// SaveResponse stores the response with its answers, completes any matching
	// assignment and queues notifications in a single transaction.
	SaveResponse(ctx context.Context, response *models.FormResponse, notifications []models.Notification) error
	FindResponse(ctx context.Context, id string) (*models.FormResponse, error)
	DaysLostAnswers(ctx context.Context, formID string, from, to time.Time) ([]DaysLostRow, error)
}

type gormFormStore struct {
	db *gorm.DB
}

func (s *gormFormStore) Create(ctx context.Context, form *models.Form) error {
	return translate(s.db.WithContext(ctx).Create(form).Error)
}

func (s *gormFormStore) FindByID(ctx context.Context, id string) (*models.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&form, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &form, nil
}

func (s *gormFormStore) List(ctx context.Context, createdBy string) ([]models.Form, error) {
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if createdBy != "" {
		tx = tx.Where("created_by = ?", createdBy)
	}
	var forms []models.Form
	if err := tx.Find(&forms).Error; err != nil {
		return nil, translate(err)
	}
	return forms, nil
}

func (s *gormFormStore) Assign(ctx context.Context, assignment *models.FormAssignment) error {
	return translate(s.db.WithContext(ctx).Create(assignment).Error)
}

func (s *gormFormStore) FindAssignment(ctx context.Context, formID, profileID string) (*models.FormAssignment, error) {
	var assignment models.FormAssignment
	err := s.db.WithContext(ctx).
		First(&assignment, "form_id = ? AND profile_id = ?", formID, profileID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &assignment, nil
}

func (s *gormFormStore) ListAssignments(ctx context.Context, profileID string) ([]models.FormAssignment, error) {
	var assignments []models.FormAssignment
	err := s.db.WithContext(ctx).
		Preload("Form").
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, translate(err)
	}
	return assignments, nil
}

func (s *gormFormStore) SaveResponse(ctx context.Context, response *models.FormResponse, notifications []models.Notification) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(response).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.FormAssignment{}).
			Where("form_id = ? AND profile_id = ? AND completed_at IS NULL", response.FormID, response.SubmittedBy).
			Update("completed_at", response.SubmittedAt).Error; err != nil {
			return err
		}

		if len(notifications) == 0 {
			return nil
		}
		return tx.Create(&notifications).Error
	}))
}

func (s *gormFormStore) FindResponse(ctx context.Context, id string) (*models.FormResponse, error) {
	var response models.FormResponse
	if err := s.db.WithContext(ctx).Preload("Answers").First(&response, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &response, nil
}

func (s *gormFormStore) DaysLostAnswers(ctx context.Context, formID string, from, to time.Time) ([]DaysLostRow, error) {
	tx := s.db.WithContext(ctx).
		Table("form_answers").
		Select("form_responses.id AS response_id, form_responses.submitted_by, form_responses.submitted_at, form_answers.value").
		Joins("JOIN form_responses ON form_responses.id = form_answers.response_id").
		Joins("JOIN form_questions ON form_questions.id = form_answers.question_id").
		Where("form_responses.form_id = ? AND form_questions.tracks_days_lost = ?", formID, true).
		Order("form_responses.submitted_at ASC")
	if !from.IsZero() {
		tx = tx.Where("form_responses.submitted_at >= ?", from)
	}
	if !to.IsZero() {
		tx = tx.Where("form_responses.submitted_at < ?", to)
	}

	var rows []DaysLostRow
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}
