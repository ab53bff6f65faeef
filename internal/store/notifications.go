package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/models"
)

// NotificationQuery filters a recipient's inbox.
type NotificationQuery struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// NotificationStore persists notifications. Dispatch state (processed_at) and
// read state (is_read, read_at) are written by separate methods that never
// touch each other's columns.
type NotificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	// ListUndispatched returns up to limit notifications of type with a null
	// processed_at, oldest first.
	ListUndispatched(ctx context.Context, notificationType string, limit int) ([]models.Notification, error)
	// MarkProcessed sets processed_at when it is still null. False means the row
	// was already processed.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)
	List(ctx context.Context, query NotificationQuery) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

type gormNotificationStore struct {
	db *gorm.DB
}

func (s *gormNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	return translate(s.db.WithContext(ctx).Create(notification).Error)
}

func (s *gormNotificationStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).First(&notification, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &notification, nil
}

func (s *gormNotificationStore) ListUndispatched(ctx context.Context, notificationType string, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("type = ? AND processed_at IS NULL", notificationType).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, translate(err)
	}
	return notifications, nil
}

func (s *gormNotificationStore) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND processed_at IS NULL", id).
		UpdateColumn("processed_at", at)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormNotificationStore) List(ctx context.Context, query NotificationQuery) ([]models.Notification, error) {
	tx := s.db.WithContext(ctx).
		Where("recipient_id = ?", query.RecipientID).
		Order("created_at DESC").
		Order("id DESC")
	if query.UnreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	if query.Offset > 0 {
		tx = tx.Offset(query.Offset)
	}

	var notifications []models.Notification
	if err := tx.Find(&notifications).Error; err != nil {
		return nil, translate(err)
	}
	return notifications, nil
}

func (s *gormNotificationStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, translate(err)
}

func (s *gormNotificationStore) MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND id IN ? AND is_read = ?", recipientID, ids, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": at})
	return result.RowsAffected, translate(result.Error)
}

func (s *gormNotificationStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": at})
	return result.RowsAffected, translate(result.Error)
}
