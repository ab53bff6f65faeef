package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/models"
)

func newNotificationService(t *testing.T) (*NotificationService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	svc, err := NewNotificationService(env.store.Notifications)
	require.NoError(t, err)
	return svc, env
}

func TestNotificationListPaginationAndUnreadCount(t *testing.T) {
	svc, env := newNotificationService(t)
	ctx := context.Background()
	user := "11111111-1111-1111-1111-111111111111"
	base := env.clock.Now()

	for i := 0; i < 25; i++ {
		require.NoError(t, svc.Create(ctx, &models.Notification{
			BaseModel:   models.BaseModel{CreatedAt: base.Add(time.Duration(i) * time.Second)},
			RecipientID: user,
			Type:        "system",
			Title:       "note",
		}))
	}
	require.NoError(t, svc.Create(ctx, &models.Notification{RecipientID: "someone-else", Type: "system", Title: "other"}))

	page, err := svc.List(ctx, NotificationListInput{UserID: user})
	require.NoError(t, err)
	require.Len(t, page.Notifications, DefaultNotificationLimit)
	require.EqualValues(t, 25, page.UnreadCount)
	require.Equal(t, 1, page.Page)

	second, err := svc.List(ctx, NotificationListInput{UserID: user, Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Notifications, 5)

	clamped, err := svc.List(ctx, NotificationListInput{UserID: user, Limit: 1000, Page: -3})
	require.NoError(t, err)
	require.Equal(t, MaxNotificationLimit, clamped.Limit)
	require.Equal(t, 1, clamped.Page)
	require.Len(t, clamped.Notifications, 25)

	_, err = svc.List(ctx, NotificationListInput{})
	require.ErrorIs(t, err, ErrRecipientRequired)
}

func TestNotificationMarkReadLeavesDispatchStateAlone(t *testing.T) {
	svc, env := newNotificationService(t)
	ctx := context.Background()
	user := "22222222-2222-2222-2222-222222222222"

	target := &models.Notification{RecipientID: user, Type: models.NotificationTypeQuestionAnswered, Title: "a"}
	sibling := &models.Notification{RecipientID: user, Type: models.NotificationTypeQuestionAnswered, Title: "b"}
	foreign := &models.Notification{RecipientID: "33333333-3333-3333-3333-333333333333", Type: "system", Title: "c"}
	for _, n := range []*models.Notification{target, sibling, foreign} {
		require.NoError(t, svc.Create(ctx, n))
	}

	processed := env.clock.Now().Add(-time.Hour)
	marked, err := env.store.Notifications.MarkProcessed(ctx, target.ID, processed)
	require.NoError(t, err)
	require.True(t, marked)

	updated, err := svc.MarkRead(ctx, user, []string{target.ID, target.ID, foreign.ID, " "})
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)

	stored, err := env.store.Notifications.FindByID(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, stored.Read)
	require.NotNil(t, stored.ReadAt)
	require.NotNil(t, stored.ProcessedAt)
	require.True(t, stored.ProcessedAt.Equal(processed))

	other, err := env.store.Notifications.FindByID(ctx, sibling.ID)
	require.NoError(t, err)
	require.False(t, other.Read)
	require.Nil(t, other.ProcessedAt)

	untouched, err := env.store.Notifications.FindByID(ctx, foreign.ID)
	require.NoError(t, err)
	require.False(t, untouched.Read)
}

func TestNotificationMarkAllRead(t *testing.T) {
	svc, _ := newNotificationService(t)
	ctx := context.Background()
	user := "44444444-4444-4444-4444-444444444444"

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Create(ctx, &models.Notification{RecipientID: user, Type: "system", Title: "n"}))
	}

	updated, err := svc.MarkAllRead(ctx, user)
	require.NoError(t, err)
	require.EqualValues(t, 3, updated)

	page, err := svc.List(ctx, NotificationListInput{UserID: user, UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, page.Notifications)
	require.Zero(t, page.UnreadCount)
}

func TestNotificationValidation(t *testing.T) {
	svc, _ := newNotificationService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Create(ctx, &models.Notification{Type: "system", Title: "x"}), ErrNotificationInvalid)

	_, err := svc.MarkRead(ctx, "user", nil)
	require.ErrorIs(t, err, ErrNoNotificationIDs)

	_, err = svc.MarkRead(ctx, "", []string{"id"})
	require.ErrorIs(t, err, ErrRecipientRequired)

	_, err = svc.MarkAllRead(ctx, "")
	require.ErrorIs(t, err, ErrRecipientRequired)
}
