package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
)

const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

var (
	// ErrRecipientRequired indicates the inbox call carried no authenticated user.
	ErrRecipientRequired = errors.New("notification: recipient is required")
	// ErrNoNotificationIDs indicates a mark-read request without ids.
	ErrNoNotificationIDs = errors.New("notification: notification ids are required")
	// ErrNotificationInvalid indicates a notification is missing required fields.
	ErrNotificationInvalid = errors.New("notification: invalid notification")
)

// NotificationListInput selects a page of the caller's inbox.
type NotificationListInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Page       int
}

// NotificationPage is one page of an inbox plus the overall unread count.
type NotificationPage struct {
	Notifications []models.Notification
	UnreadCount   int64
	Limit         int
	Page          int
}

// NotificationService manages the in-app inbox. Every mutation is scoped to
// the caller's own notifications.
type NotificationService struct {
	store store.NotificationStore
	now   func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(notifications store.NotificationStore) (*NotificationService, error) {
	if notifications == nil {
		return nil, errors.New("notification service: store is required")
	}
	return &NotificationService{store: notifications, now: time.Now}, nil
}

// Create validates and persists a notification.
func (s *NotificationService) Create(ctx context.Context, notification *models.Notification) error {
	if notification == nil || strings.TrimSpace(notification.RecipientID) == "" ||
		strings.TrimSpace(notification.Type) == "" || strings.TrimSpace(notification.Title) == "" {
		return ErrNotificationInvalid
	}
	if err := s.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("notification service: create: %w", err)
	}
	return nil
}

// List returns a page of the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, in NotificationListInput) (*NotificationPage, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrRecipientRequired
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		limit = MaxNotificationLimit
	}
	page := in.Page
	if page < 1 {
		page = 1
	}

	notifications, err := s.store.List(ctx, store.NotificationQuery{
		RecipientID: in.UserID,
		UnreadOnly:  in.UnreadOnly,
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: list: %w", err)
	}

	unread, err := s.store.CountUnread(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("notification service: count unread: %w", err)
	}

	if notifications == nil {
		notifications = []models.Notification{}
	}
	return &NotificationPage{
		Notifications: notifications,
		UnreadCount:   unread,
		Limit:         limit,
		Page:          page,
	}, nil
}

// MarkRead marks the given notifications read when they belong to userID. Ids
// owned by other users are ignored. Returns the number of rows changed.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrRecipientRequired
	}
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoNotificationIDs
	}
	updated, err := s.store.MarkRead(ctx, userID, ids, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("notification service: mark read: %w", err)
	}
	return updated, nil
}

// MarkAllRead marks every unread notification of userID read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrRecipientRequired
	}
	updated, err := s.store.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", err)
	}
	return updated, nil
}
