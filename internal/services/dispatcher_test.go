package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

type dispatchFixture struct {
	env        *testEnv
	dispatcher *Dispatcher
	owner      *models.Profile
	submitter  *models.Profile
	form       *models.Form
	response   *models.FormResponse
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.seedProfile(t, "owner@example.com", models.RoleAdmin, "Olive")
	submitter := env.seedProfile(t, "worker@example.com", models.RoleEmployee, "Walt")

	form := &models.Form{Title: "Site safety", CreatedBy: owner.ID, Questions: []models.FormQuestion{{Text: "Hazards?", Type: models.QuestionText}}}
	require.NoError(t, env.store.Forms.Create(ctx, form))

	response := &models.FormResponse{FormID: form.ID, SubmittedBy: submitter.ID, SubmittedAt: env.clock.Now()}
	require.NoError(t, env.store.Forms.SaveResponse(ctx, response, nil))

	dispatcher, err := NewDispatcher(env.store.Notifications, env.store.Profiles, env.store.Forms, env.mailer,
		WithDispatcherSiteURL(testSiteURL),
		WithDispatcherClock(env.clock.Now),
	)
	require.NoError(t, err)

	return &dispatchFixture{env: env, dispatcher: dispatcher, owner: owner, submitter: submitter, form: form, response: response}
}

func (f *dispatchFixture) queue(t *testing.T, recipientID string, createdAt time.Time, answer any) *models.Notification {
	t.Helper()
	payload, err := json.Marshal(models.QuestionAnsweredData{
		FormID:       f.form.ID,
		ResponseID:   f.response.ID,
		QuestionID:   f.form.Questions[0].ID,
		QuestionText: "Hazards?",
		Answer:       answer,
	})
	require.NoError(t, err)

	n := &models.Notification{
		BaseModel:   models.BaseModel{CreatedAt: createdAt},
		RecipientID: recipientID,
		Type:        models.NotificationTypeQuestionAnswered,
		Title:       "New answer on Site safety",
		Data:        datatypes.JSON(payload),
	}
	require.NoError(t, f.env.store.Notifications.Create(context.Background(), n))
	return n
}

func (f *dispatchFixture) processedAt(t *testing.T, id string) *time.Time {
	t.Helper()
	n, err := f.env.store.Notifications.FindByID(context.Background(), id)
	require.NoError(t, err)
	return n.ProcessedAt
}

func TestDispatchPendingSendsAndMarksProcessed(t *testing.T) {
	f := newDispatchFixture(t)
	n := f.queue(t, f.owner.ID, f.env.clock.Now(), []string{"ladder", "wet floor"})

	result, err := f.dispatcher.DispatchPending(context.Background(), DefaultDispatchBatchSize)
	require.NoError(t, err)
	require.Equal(t, &DispatchResult{Processed: 1, Errors: 0}, result)
	require.NotNil(t, f.processedAt(t, n.ID))

	messages := f.env.mailer.Messages()
	require.Len(t, messages, 1)
	msg := messages[0]
	require.Equal(t, []string{"owner@example.com"}, msg.To)
	require.Equal(t, "New answer on Site safety", msg.Subject)
	require.Equal(t, "ladder, wet floor", msg.Data["answer"])
	require.Equal(t, "Walt", msg.Data["submitted_by"])
	require.Contains(t, msg.Body, "Walt answered \"Hazards?\" on Site safety")
	require.Contains(t, msg.Body, testSiteURL+"/forms/"+f.form.ID+"/responses/"+f.response.ID)

	again, err := f.dispatcher.DispatchPending(context.Background(), DefaultDispatchBatchSize)
	require.NoError(t, err)
	require.Equal(t, 0, again.Processed)
	require.Len(t, f.env.mailer.Messages(), 1)
}

func TestDispatchPendingFailureIsRetriedNextRun(t *testing.T) {
	f := newDispatchFixture(t)
	base := f.env.clock.Now()
	failing := f.queue(t, f.owner.ID, base, "first")
	ok := f.queue(t, f.owner.ID, base.Add(time.Minute), "second")

	f.env.mailer.Fail = func(msg mail.Message) error {
		if msg.Data["answer"] == "first" {
			return errors.New("smtp 451 try later")
		}
		return nil
	}

	result, err := f.dispatcher.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Errors)
	require.Nil(t, f.processedAt(t, failing.ID))
	require.NotNil(t, f.processedAt(t, ok.ID))

	f.env.mailer.Fail = nil
	result, err = f.dispatcher.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 0, result.Errors)
	require.NotNil(t, f.processedAt(t, failing.ID))
}

func TestDispatchPendingCountsConcurrentlyProcessedAsDuplicate(t *testing.T) {
	f := newDispatchFixture(t)
	n := f.queue(t, f.owner.ID, f.env.clock.Now(), "raced")

	// Another run marks the row while this run's send is in flight.
	f.env.mailer.Fail = func(msg mail.Message) error {
		marked, err := f.env.store.Notifications.MarkProcessed(context.Background(), n.ID, f.env.clock.Now())
		require.NoError(t, err)
		require.True(t, marked)
		return nil
	}

	result, err := f.dispatcher.DispatchPending(context.Background(), DefaultDispatchBatchSize)
	require.NoError(t, err)
	require.Equal(t, &DispatchResult{Processed: 0, Errors: 0, Duplicates: 1}, result)
	require.Len(t, f.env.mailer.Messages(), 1)
	require.NotNil(t, f.processedAt(t, n.ID))
}

func TestDispatchPendingProcessesOldestFirst(t *testing.T) {
	f := newDispatchFixture(t)
	base := f.env.clock.Now()
	t3 := f.queue(t, f.owner.ID, base.Add(2*time.Minute), "t3")
	t1 := f.queue(t, f.owner.ID, base, "t1")
	t2 := f.queue(t, f.owner.ID, base.Add(time.Minute), "t2")

	result, err := f.dispatcher.DispatchPending(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.NotNil(t, f.processedAt(t, t1.ID))
	require.NotNil(t, f.processedAt(t, t2.ID))
	require.Nil(t, f.processedAt(t, t3.ID))

	messages := f.env.mailer.Messages()
	require.Equal(t, "t1", messages[0].Data["answer"])
	require.Equal(t, "t2", messages[1].Data["answer"])

	result, err = f.dispatcher.DispatchPending(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.NotNil(t, f.processedAt(t, t3.ID))
}

func TestDispatchPendingSkipsMissingRecipient(t *testing.T) {
	f := newDispatchFixture(t)
	orphan := f.queue(t, "99999999-9999-9999-9999-999999999999", f.env.clock.Now(), "x")
	good := f.queue(t, f.owner.ID, f.env.clock.Now().Add(time.Second), "y")

	result, err := f.dispatcher.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Errors)
	require.Nil(t, f.processedAt(t, orphan.ID))
	require.NotNil(t, f.processedAt(t, good.ID))
}

func TestDispatchPendingRejectsOverlappingRuns(t *testing.T) {
	f := newDispatchFixture(t)
	f.queue(t, f.owner.ID, f.env.clock.Now(), "slow")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.env.mailer.Fail = func(mail.Message) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.dispatcher.DispatchPending(context.Background(), 10)
		done <- err
	}()

	<-entered
	_, err := f.dispatcher.DispatchPending(context.Background(), 10)
	require.ErrorIs(t, err, ErrDispatchInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestDispatchPendingWithoutMailer(t *testing.T) {
	f := newDispatchFixture(t)
	dispatcher, err := NewDispatcher(f.env.store.Notifications, f.env.store.Profiles, f.env.store.Forms, nil)
	require.NoError(t, err)

	_, err = dispatcher.DispatchPending(context.Background(), 10)
	require.ErrorIs(t, err, mail.ErrNotConfigured)
}

func TestDispatchPendingStopsWhenTransportUnconfigured(t *testing.T) {
	f := newDispatchFixture(t)
	n := f.queue(t, f.owner.ID, f.env.clock.Now(), "x")
	f.env.mailer.Fail = func(mail.Message) error { return mail.ErrNotConfigured }

	result, err := f.dispatcher.DispatchPending(context.Background(), 10)
	require.ErrorIs(t, err, mail.ErrNotConfigured)
	require.Equal(t, 1, result.Errors)
	require.Nil(t, f.processedAt(t, n.ID))
}

func TestNormalizeAnswer(t *testing.T) {
	var object any
	require.NoError(t, json.Unmarshal([]byte(`{"hours":4,"reason":"flu"}`), &object))
	var list any
	require.NoError(t, json.Unmarshal([]byte(`["a",2,true]`), &list))

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"integer", float64(3), "3"},
		{"decimal", 2.5, "2.5"},
		{"bool", true, "true"},
		{"array", list, "a, 2, true"},
		{"strings", []string{"x", "y"}, "x, y"},
		{"object", object, `{"hours":4,"reason":"flu"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeAnswer(tc.in))
		})
	}
	require.True(t, strings.HasPrefix(NormalizeAnswer(object), "{"))
}
