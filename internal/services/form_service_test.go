package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/models"
)

type formFixture struct {
	env      *testEnv
	svc      *FormService
	admin    Actor
	employee Actor
	form     *models.Form
}

func newFormFixture(t *testing.T) *formFixture {
	t.Helper()
	env := newTestEnv(t)
	svc, err := NewFormService(env.store.Forms, env.store.Profiles)
	require.NoError(t, err)
	svc.now = env.clock.Now

	admin := env.seedProfile(t, "admin@example.com", models.RoleAdmin, "Ada")
	employee := env.seedProfile(t, "emp@example.com", models.RoleEmployee, "Eli")

	f := &formFixture{
		env:      env,
		svc:      svc,
		admin:    Actor{ID: admin.ID, Role: admin.Role},
		employee: Actor{ID: employee.ID, Role: employee.Role},
	}

	f.form, err = svc.CreateForm(context.Background(), f.admin, CreateFormInput{
		Title: "Absence report",
		Questions: []QuestionInput{
			{Text: "Days lost", Type: models.QuestionNumber, Required: true, TracksDaysLost: true},
			{Text: "Reason", Type: models.QuestionSelect, Options: []string{"illness", "injury"}, NotifyOnAnswer: true},
			{Text: "Symptoms", Type: models.QuestionMultiSelect, Options: []string{"fever", "cough"}},
			{Text: "First day", Type: models.QuestionDate},
			{Text: "Fit note", Type: models.QuestionBoolean},
		},
	})
	require.NoError(t, err)
	return f
}

func (f *formFixture) question(text string) models.FormQuestion {
	for _, q := range f.form.Questions {
		if q.Text == text {
			return q
		}
	}
	panic("unknown question " + text)
}

func raw(v string) json.RawMessage { return json.RawMessage(v) }

func TestCreateFormValidation(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateForm(ctx, f.employee, CreateFormInput{Title: "x", Questions: []QuestionInput{{Text: "q", Type: models.QuestionText}}})
	require.ErrorIs(t, err, ErrFormForbidden)

	cases := []CreateFormInput{
		{Title: "", Questions: []QuestionInput{{Text: "q", Type: models.QuestionText}}},
		{Title: "no questions"},
		{Title: "bad type", Questions: []QuestionInput{{Text: "q", Type: "slider"}}},
		{Title: "no options", Questions: []QuestionInput{{Text: "q", Type: models.QuestionSelect}}},
		{Title: "days on text", Questions: []QuestionInput{{Text: "q", Type: models.QuestionText, TracksDaysLost: true}}},
	}
	for _, in := range cases {
		_, err := f.svc.CreateForm(ctx, f.admin, in)
		require.ErrorIs(t, err, ErrInvalidForm, in.Title)
	}

	require.Len(t, f.form.Questions, 5)
	require.Equal(t, 0, f.form.Questions[0].Position)
}

func TestFormAccessForEmployees(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetForm(ctx, f.employee, f.form.ID)
	require.ErrorIs(t, err, ErrFormForbidden)

	_, err = f.svc.ListForms(ctx, f.employee)
	require.ErrorIs(t, err, ErrFormForbidden)

	due := f.env.clock.Now().Add(72 * time.Hour)
	assignment, err := f.svc.AssignForm(ctx, f.admin, f.form.ID, AssignInput{ProfileID: f.employee.ID, DueAt: &due})
	require.NoError(t, err)
	require.Equal(t, f.admin.ID, assignment.AssignedBy)

	_, err = f.svc.AssignForm(ctx, f.admin, f.form.ID, AssignInput{ProfileID: f.employee.ID})
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	_, err = f.svc.AssignForm(ctx, f.admin, f.form.ID, AssignInput{ProfileID: "missing"})
	require.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.svc.AssignForm(ctx, f.admin, "missing", AssignInput{ProfileID: f.employee.ID})
	require.ErrorIs(t, err, ErrFormNotFound)

	form, err := f.svc.GetForm(ctx, f.employee, f.form.ID)
	require.NoError(t, err)
	require.Equal(t, "Absence report", form.Title)

	assignments, err := f.svc.ListAssignments(ctx, f.employee)
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	forms, err := f.svc.ListForms(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, forms, 1)
}

func TestSubmitResponseQueuesNotificationForOwner(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	_, err := f.svc.AssignForm(ctx, f.admin, f.form.ID, AssignInput{ProfileID: f.employee.ID})
	require.NoError(t, err)

	response, err := f.svc.SubmitResponse(ctx, f.employee, f.form.ID, SubmitInput{Answers: map[string]json.RawMessage{
		f.question("Days lost").ID: raw(`3`),
		f.question("Reason").ID:    raw(`"illness"`),
		f.question("Symptoms").ID:  raw(`["fever","cough"]`),
		f.question("First day").ID: raw(`"2025-01-10"`),
		f.question("Fit note").ID:  raw(`null`),
	}})
	require.NoError(t, err)
	require.Len(t, response.Answers, 4)

	assignment, err := f.env.store.Forms.FindAssignment(ctx, f.form.ID, f.employee.ID)
	require.NoError(t, err)
	require.NotNil(t, assignment.CompletedAt)

	pending, err := f.env.store.Notifications.ListUndispatched(ctx, models.NotificationTypeQuestionAnswered, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, f.admin.ID, pending[0].RecipientID)

	var data models.QuestionAnsweredData
	require.NoError(t, json.Unmarshal(pending[0].Data, &data))
	require.Equal(t, response.ID, data.ResponseID)
	require.Equal(t, "Reason", data.QuestionText)
	require.Equal(t, "illness", data.Answer)
}

func TestSubmitResponseValidatesAnswers(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	days := f.question("Days lost").ID

	cases := []map[string]json.RawMessage{
		{},
		{days: raw(`"three"`)},
		{days: raw(`-1`)},
		{days: raw(`1`), f.question("Reason").ID: raw(`"holiday"`)},
		{days: raw(`1`), f.question("Symptoms").ID: raw(`["rash"]`)},
		{days: raw(`1`), f.question("First day").ID: raw(`"10/01/2025"`)},
		{days: raw(`1`), f.question("Fit note").ID: raw(`"yes"`)},
		{days: raw(`1`), "not-a-question": raw(`1`)},
	}
	for i, answers := range cases {
		_, err := f.svc.SubmitResponse(ctx, f.admin, f.form.ID, SubmitInput{Answers: answers})
		require.ErrorIs(t, err, ErrInvalidAnswer, "case %d", i)
	}

	_, err := f.svc.SubmitResponse(ctx, f.employee, f.form.ID, SubmitInput{Answers: map[string]json.RawMessage{days: raw(`1`)}})
	require.ErrorIs(t, err, ErrFormForbidden)
}

func TestDaysLostReport(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	days := f.question("Days lost").ID
	second := f.env.seedProfile(t, "second@example.com", models.RoleEmployee, "Sam")
	secondActor := Actor{ID: second.ID, Role: second.Role}

	for _, actor := range []Actor{f.employee, secondActor} {
		_, err := f.svc.AssignForm(ctx, f.admin, f.form.ID, AssignInput{ProfileID: actor.ID})
		require.NoError(t, err)
	}

	submit := func(actor Actor, value string) {
		_, err := f.svc.SubmitResponse(ctx, actor, f.form.ID, SubmitInput{Answers: map[string]json.RawMessage{days: raw(value)}})
		require.NoError(t, err)
	}

	submit(f.employee, `2`)
	f.env.clock.Advance(40 * 24 * time.Hour)
	submit(f.employee, `1.5`)
	submit(secondActor, `5`)

	report, err := f.svc.DaysLost(ctx, f.admin, f.form.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 8.5, report.Total, 1e-9)
	require.Equal(t, 3, report.Responses)
	require.Equal(t, []MonthTotal{{Month: "2025-01", Days: 2}, {Month: "2025-02", Days: 6.5}}, report.ByMonth)
	require.Len(t, report.ByEmployee, 2)
	require.Equal(t, "Sam", report.ByEmployee[0].Name)
	require.InDelta(t, 5, report.ByEmployee[0].Days, 1e-9)
	require.InDelta(t, 3.5, report.ByEmployee[1].Days, 1e-9)

	windowed, err := f.svc.DaysLost(ctx, f.admin, f.form.ID, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 6.5, windowed.Total, 1e-9)

	_, err = f.svc.DaysLost(ctx, f.employee, f.form.ID, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrFormForbidden)
}
