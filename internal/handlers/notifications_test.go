package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/app"
	"github.com/tom2984/aac-sub001/internal/handlers/testutil"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

type inboxPayload struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

type dispatchPayload struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
}

// seedAnswer has employee answer a notify-on-answer question on a form owned by owner.
func seedAnswer(t *testing.T, env *testutil.Env, owner, employee *models.Profile) {
	t.Helper()

	ownerToken := env.Token(owner)
	form := createIncidentForm(t, env, ownerToken)

	assign := env.Request(http.MethodPost, "/api/forms/"+form.Form.ID+"/assignments", map[string]any{
		"profile_id": employee.ID,
	}, ownerToken)
	require.Equal(t, http.StatusCreated, assign.Code, assign.Body.String())

	submit := env.Request(http.MethodPost, "/api/forms/"+form.Form.ID+"/responses", map[string]any{
		"answers": map[string]any{
			form.Form.Questions[0].ID: 1,
			form.Form.Questions[1].ID: true,
		},
	}, env.Token(employee))
	require.Equal(t, http.StatusCreated, submit.Code, submit.Body.String())
}

func TestNotificationInbox(t *testing.T) {
	env := testutil.NewEnv(t)
	manager := env.CreateUser(models.RoleManager, "Passw0rd!")
	employee := env.CreateUser(models.RoleEmployee, "Passw0rd!")
	seedAnswer(t, env, manager, employee)

	token := env.Token(manager)

	w := env.Request(http.MethodGet, "/api/notifications?unread_only=true", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var inbox inboxPayload
	testutil.DecodeJSON(t, w, &inbox)
	require.Len(t, inbox.Notifications, 1)
	require.EqualValues(t, 1, inbox.UnreadCount)
	require.Equal(t, models.NotificationTypeQuestionAnswered, inbox.Notifications[0].Type)
	require.Equal(t, manager.ID, inbox.Notifications[0].RecipientID)

	other := env.Request(http.MethodGet, "/api/notifications", nil, env.Token(employee))
	require.Equal(t, http.StatusOK, other.Code)
	var empty inboxPayload
	testutil.DecodeJSON(t, other, &empty)
	require.Empty(t, empty.Notifications)

	foreign := env.Request(http.MethodPatch, "/api/notifications", map[string]any{
		"notification_ids": []string{inbox.Notifications[0].ID},
	}, env.Token(employee))
	require.Equal(t, http.StatusOK, foreign.Code, foreign.Body.String())
	var foreignUpdate struct {
		Updated int64 `json:"updated"`
	}
	testutil.DecodeJSON(t, foreign, &foreignUpdate)
	require.Zero(t, foreignUpdate.Updated)

	mark := env.Request(http.MethodPatch, "/api/notifications", map[string]any{"mark_all_read": true}, token)
	require.Equal(t, http.StatusOK, mark.Code, mark.Body.String())
	var updated struct {
		Success bool  `json:"success"`
		Updated int64 `json:"updated"`
	}
	testutil.DecodeJSON(t, mark, &updated)
	require.True(t, updated.Success)
	require.EqualValues(t, 1, updated.Updated)

	after := env.Request(http.MethodGet, "/api/notifications?unread_only=true", nil, token)
	var afterInbox inboxPayload
	testutil.DecodeJSON(t, after, &afterInbox)
	require.Empty(t, afterInbox.Notifications)
	require.Zero(t, afterInbox.UnreadCount)

	unauth := env.Request(http.MethodGet, "/api/notifications", nil, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
}

func TestDispatchSendsPendingNotifications(t *testing.T) {
	env := testutil.NewEnv(t)
	manager := env.CreateUser(models.RoleManager, "Passw0rd!")
	employee := env.CreateUser(models.RoleEmployee, "Passw0rd!")
	seedAnswer(t, env, manager, employee)

	w := env.Request(http.MethodPost, "/api/notifications/dispatch", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result dispatchPayload
	testutil.DecodeJSON(t, w, &result)
	require.True(t, result.Success)
	require.Equal(t, 1, result.Processed)
	require.Zero(t, result.Errors)
	require.Equal(t, "Processed 1 notifications", result.Message)

	msg := env.LastMessage(manager.Email)
	require.True(t, strings.Contains(msg.Subject, "Site incident report"), msg.Subject)

	again := env.Request(http.MethodPost, "/api/notifications/dispatch", nil, "")
	require.Equal(t, http.StatusOK, again.Code)
	var second dispatchPayload
	testutil.DecodeJSON(t, again, &second)
	require.Zero(t, second.Processed)
}

func TestDispatchKeepsFailedNotificationsPending(t *testing.T) {
	env := testutil.NewEnv(t)
	manager := env.CreateUser(models.RoleManager, "Passw0rd!")
	employee := env.CreateUser(models.RoleEmployee, "Passw0rd!")
	seedAnswer(t, env, manager, employee)

	env.Mailer.Fail = func(mail.Message) error { return &mail.UpstreamError{Service: "relay", StatusCode: http.StatusServiceUnavailable} }

	w := env.Request(http.MethodPost, "/api/notifications/dispatch", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var failed dispatchPayload
	testutil.DecodeJSON(t, w, &failed)
	require.Zero(t, failed.Processed)
	require.Equal(t, 1, failed.Errors)

	env.Mailer.Fail = nil

	retry := env.Request(http.MethodPost, "/api/notifications/dispatch", nil, "")
	require.Equal(t, http.StatusOK, retry.Code)
	var retried dispatchPayload
	testutil.DecodeJSON(t, retry, &retried)
	require.Equal(t, 1, retried.Processed)
}

func TestDispatchRequiresSecretWhenConfigured(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Dispatch.Secret = "scheduler-secret"
	}))

	missing := env.Request(http.MethodPost, "/api/notifications/dispatch", nil, "")
	require.Equal(t, http.StatusUnauthorized, missing.Code)

	wrong := env.RequestWithHeaders(http.MethodPost, "/api/notifications/dispatch", nil, "", map[string]string{
		middleware.DispatchSecretHeader: "nope",
	})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	ok := env.RequestWithHeaders(http.MethodPost, "/api/notifications/dispatch", nil, "", map[string]string{
		middleware.DispatchSecretHeader: "scheduler-secret",
	})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
}
