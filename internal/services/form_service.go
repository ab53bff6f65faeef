package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
)

var (
	// ErrFormNotFound indicates the form does not exist.
	ErrFormNotFound = errors.New("form: not found")
	// ErrFormForbidden indicates the actor may not access the form.
	ErrFormForbidden = errors.New("form: access denied")
	// ErrInvalidForm indicates the form definition failed validation.
	ErrInvalidForm = errors.New("form: invalid definition")
	// ErrInvalidAnswer indicates a submitted answer failed validation.
	ErrInvalidAnswer = errors.New("form: invalid answer")
	// ErrAlreadyAssigned indicates the profile already has the form assigned.
	ErrAlreadyAssigned = errors.New("form: already assigned")
	// ErrProfileNotFound indicates the target profile does not exist.
	ErrProfileNotFound = errors.New("form: profile not found")
)

// Actor identifies the authenticated caller of a form operation.
type Actor struct {
	ID   string
	Role models.Role
}

// IsStaff reports whether the actor administers forms.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleManager
}

// QuestionInput defines a question on a new form.
type QuestionInput struct {
	Text           string
	Type           models.QuestionType
	Options        []string
	Required       bool
	TracksDaysLost bool
	NotifyOnAnswer bool
}

// CreateFormInput defines a new form.
type CreateFormInput struct {
	Title       string
	Description string
	Questions   []QuestionInput
}

// AssignInput assigns a form to a profile.
type AssignInput struct {
	ProfileID string
	DueAt     *time.Time
}

// SubmitInput carries raw JSON answers keyed by question id.
type SubmitInput struct {
	Answers map[string]json.RawMessage
}

// MonthTotal is the days-lost sum for one calendar month (YYYY-MM).
type MonthTotal struct {
	Month string  `json:"month"`
	Days  float64 `json:"days"`
}

// EmployeeTotal is the days-lost sum for one employee.
type EmployeeTotal struct {
	ProfileID string  `json:"profile_id"`
	Name      string  `json:"name"`
	Days      float64 `json:"days"`
}

// DaysLostReport aggregates numeric answers to days-lost questions.
type DaysLostReport struct {
	FormID     string          `json:"form_id"`
	Total      float64         `json:"total"`
	Responses  int             `json:"responses"`
	ByMonth    []MonthTotal    `json:"by_month"`
	ByEmployee []EmployeeTotal `json:"by_employee"`
}

// FormService manages forms, assignments and responses.
type FormService struct {
	forms    store.FormStore
	profiles store.ProfileStore
	now      func() time.Time
}

// NewFormService constructs a FormService.
func NewFormService(forms store.FormStore, profiles store.ProfileStore) (*FormService, error) {
	if forms == nil || profiles == nil {
		return nil, errors.New("form service: stores are required")
	}
	return &FormService{forms: forms, profiles: profiles, now: time.Now}, nil
}

// CreateForm validates and stores a new form owned by actor.
func (s *FormService) CreateForm(ctx context.Context, actor Actor, in CreateFormInput) (*models.Form, error) {
	if !actor.IsStaff() {
		return nil, ErrFormForbidden
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidForm)
	}
	if len(in.Questions) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidForm)
	}

	form := &models.Form{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   actor.ID,
	}
	for i, q := range in.Questions {
		question, err := buildQuestion(i, q)
		if err != nil {
			return nil, err
		}
		form.Questions = append(form.Questions, question)
	}

	if err := s.forms.Create(ctx, form); err != nil {
		return nil, fmt.Errorf("form service: create: %w", err)
	}
	return form, nil
}

func buildQuestion(position int, in QuestionInput) (models.FormQuestion, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return models.FormQuestion{}, fmt.Errorf("%w: question %d has no text", ErrInvalidForm, position+1)
	}
	if !in.Type.Valid() {
		return models.FormQuestion{}, fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidForm, position+1, in.Type)
	}
	if in.TracksDaysLost && in.Type != models.QuestionNumber {
		return models.FormQuestion{}, fmt.Errorf("%w: days lost can only be tracked on number questions", ErrInvalidForm)
	}

	question := models.FormQuestion{
		Position:       position,
		Text:           text,
		Type:           in.Type,
		Required:       in.Required,
		TracksDaysLost: in.TracksDaysLost,
		NotifyOnAnswer: in.NotifyOnAnswer,
	}

	if in.Type == models.QuestionSelect || in.Type == models.QuestionMultiSelect {
		options := normaliseIDs(in.Options)
		if len(options) == 0 {
			return models.FormQuestion{}, fmt.Errorf("%w: question %d requires options", ErrInvalidForm, position+1)
		}
		encoded, err := json.Marshal(options)
		if err != nil {
			return models.FormQuestion{}, err
		}
		question.Options = datatypes.JSON(encoded)
	}
	return question, nil
}

// GetForm returns a form with its questions. Staff see every form; employees
// only forms assigned to them.
func (s *FormService) GetForm(ctx context.Context, actor Actor, formID string) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("form service: find: %w", err)
	}
	if err := s.authorizeForm(ctx, actor, form); err != nil {
		return nil, err
	}
	return form, nil
}

// ListForms lists all forms for staff.
func (s *FormService) ListForms(ctx context.Context, actor Actor) ([]models.Form, error) {
	if !actor.IsStaff() {
		return nil, ErrFormForbidden
	}
	forms, err := s.forms.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("form service: list: %w", err)
	}
	return forms, nil
}

// AssignForm assigns formID to a profile.
func (s *FormService) AssignForm(ctx context.Context, actor Actor, formID string, in AssignInput) (*models.FormAssignment, error) {
	if !actor.IsStaff() {
		return nil, ErrFormForbidden
	}
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("form service: find form: %w", err)
	}
	if _, err := s.profiles.FindByID(ctx, in.ProfileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("form service: find profile: %w", err)
	}

	assignment := &models.FormAssignment{
		FormID:     formID,
		ProfileID:  in.ProfileID,
		AssignedBy: actor.ID,
		DueAt:      in.DueAt,
	}
	if err := s.forms.Assign(ctx, assignment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("form service: assign: %w", err)
	}
	return assignment, nil
}

// ListAssignments lists the forms assigned to the actor.
func (s *FormService) ListAssignments(ctx context.Context, actor Actor) ([]models.FormAssignment, error) {
	assignments, err := s.forms.ListAssignments(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("form service: list assignments: %w", err)
	}
	return assignments, nil
}

// SubmitResponse validates answers against question types and stores the
// response. Each answer to a notify_on_answer question queues a
// question_answered notification for the form owner.
func (s *FormService) SubmitResponse(ctx context.Context, actor Actor, formID string, in SubmitInput) (*models.FormResponse, error) {
	form, err := s.GetForm(ctx, actor, formID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.FormQuestion, len(form.Questions))
	for _, q := range form.Questions {
		byID[q.ID] = q
	}
	for questionID := range in.Answers {
		if _, ok := byID[questionID]; !ok {
			return nil, fmt.Errorf("%w: unknown question %s", ErrInvalidAnswer, questionID)
		}
	}

	response := &models.FormResponse{
		BaseModel:   models.BaseModel{ID: uuid.NewString()},
		FormID:      form.ID,
		SubmittedBy: actor.ID,
		SubmittedAt: s.now().UTC(),
	}

	var notifications []models.Notification
	for _, q := range form.Questions {
		raw, ok := in.Answers[q.ID]
		if !ok || isJSONNull(raw) {
			if q.Required {
				return nil, fmt.Errorf("%w: %q is required", ErrInvalidAnswer, q.Text)
			}
			continue
		}

		value, err := validateAnswer(q, raw)
		if err != nil {
			return nil, err
		}

		response.Answers = append(response.Answers, models.FormAnswer{
			ResponseID: response.ID,
			QuestionID: q.ID,
			Value:      datatypes.JSON(raw),
		})

		if q.NotifyOnAnswer {
			payload, err := json.Marshal(models.QuestionAnsweredData{
				FormID:       form.ID,
				ResponseID:   response.ID,
				QuestionID:   q.ID,
				QuestionText: q.Text,
				Answer:       value,
				SubmittedBy:  actor.ID,
			})
			if err != nil {
				return nil, fmt.Errorf("form service: encode notification: %w", err)
			}
			notifications = append(notifications, models.Notification{
				RecipientID: form.CreatedBy,
				Type:        models.NotificationTypeQuestionAnswered,
				Title:       fmt.Sprintf("New answer on %s", form.Title),
				Message:     fmt.Sprintf("%s: %s", q.Text, NormalizeAnswer(value)),
				Data:        datatypes.JSON(payload),
			})
		}
	}

	if err := s.forms.SaveResponse(ctx, response, notifications); err != nil {
		return nil, fmt.Errorf("form service: save response: %w", err)
	}
	return response, nil
}

// DaysLost sums numeric answers to days-lost questions submitted in [from, to),
// grouped by month and by employee. Zero bounds are open.
func (s *FormService) DaysLost(ctx context.Context, actor Actor, formID string, from, to time.Time) (*DaysLostReport, error) {
	if !actor.IsStaff() {
		return nil, ErrFormForbidden
	}
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("form service: find form: %w", err)
	}

	rows, err := s.forms.DaysLostAnswers(ctx, formID, from, to)
	if err != nil {
		return nil, fmt.Errorf("form service: days lost: %w", err)
	}

	report := &DaysLostReport{FormID: formID, ByMonth: []MonthTotal{}, ByEmployee: []EmployeeTotal{}}
	months := map[string]float64{}
	employees := map[string]float64{}
	responses := map[string]struct{}{}
	for _, row := range rows {
		var days float64
		if err := json.Unmarshal(row.Value, &days); err != nil {
			continue
		}
		report.Total += days
		months[row.SubmittedAt.UTC().Format("2006-01")] += days
		employees[row.SubmittedBy] += days
		responses[row.ResponseID] = struct{}{}
	}
	report.Responses = len(responses)

	for month, days := range months {
		report.ByMonth = append(report.ByMonth, MonthTotal{Month: month, Days: days})
	}
	sort.Slice(report.ByMonth, func(i, j int) bool { return report.ByMonth[i].Month < report.ByMonth[j].Month })

	ids := make([]string, 0, len(employees))
	for id := range employees {
		ids = append(ids, id)
	}
	profiles, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("form service: load profiles: %w", err)
	}
	for id, days := range employees {
		name := id
		if p, ok := profiles[id]; ok {
			name = p.DisplayName()
		}
		report.ByEmployee = append(report.ByEmployee, EmployeeTotal{ProfileID: id, Name: name, Days: days})
	}
	sort.Slice(report.ByEmployee, func(i, j int) bool {
		if report.ByEmployee[i].Days != report.ByEmployee[j].Days {
			return report.ByEmployee[i].Days > report.ByEmployee[j].Days
		}
		return report.ByEmployee[i].ProfileID < report.ByEmployee[j].ProfileID
	})
	return report, nil
}

func (s *FormService) authorizeForm(ctx context.Context, actor Actor, form *models.Form) error {
	if actor.IsStaff() || form.CreatedBy == actor.ID {
		return nil
	}
	_, err := s.forms.FindAssignment(ctx, form.ID, actor.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrFormForbidden
	default:
		return fmt.Errorf("form service: find assignment: %w", err)
	}
}

func validateAnswer(q models.FormQuestion, raw json.RawMessage) (any, error) {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %q %s", ErrInvalidAnswer, q.Text, reason)
	}

	switch q.Type {
	case models.QuestionText:
		var v string
		if json.Unmarshal(raw, &v) != nil {
			return nil, invalid("must be text")
		}
		if q.Required && strings.TrimSpace(v) == "" {
			return nil, invalid("is required")
		}
		return v, nil
	case models.QuestionNumber:
		var v float64
		if json.Unmarshal(raw, &v) != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalid("must be a number")
		}
		if q.TracksDaysLost && v < 0 {
			return nil, invalid("cannot be negative")
		}
		return v, nil
	case models.QuestionBoolean:
		var v bool
		if json.Unmarshal(raw, &v) != nil {
			return nil, invalid("must be true or false")
		}
		return v, nil
	case models.QuestionDate:
		var v string
		if json.Unmarshal(raw, &v) != nil {
			return nil, invalid("must be a date")
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			return nil, invalid("must be a YYYY-MM-DD date")
		}
		return v, nil
	case models.QuestionSelect:
		var v string
		if json.Unmarshal(raw, &v) != nil || !slices.Contains(questionOptions(q), v) {
			return nil, invalid("must be one of the options")
		}
		return v, nil
	case models.QuestionMultiSelect:
		var v []string
		if json.Unmarshal(raw, &v) != nil {
			return nil, invalid("must be a list of options")
		}
		options := questionOptions(q)
		for _, choice := range v {
			if !slices.Contains(options, choice) {
				return nil, invalid("must only contain listed options")
			}
		}
		if q.Required && len(v) == 0 {
			return nil, invalid("is required")
		}
		out := make([]any, len(v))
		for i, choice := range v {
			out[i] = choice
		}
		return out, nil
	}
	return nil, invalid("has an unsupported type")
}

func questionOptions(q models.FormQuestion) []string {
	var options []string
	if len(q.Options) > 0 {
		_ = json.Unmarshal(q.Options, &options)
	}
	return options
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
