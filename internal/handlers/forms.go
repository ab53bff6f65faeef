package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/services"
	"github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// FormHandler exposes form authoring, assignment, submission and analytics.
type FormHandler struct {
	forms *services.FormService
}

func NewFormHandler(forms *services.FormService) *FormHandler {
	return &FormHandler{forms: forms}
}

type questionRequest struct {
	Text           string   `json:"text" validate:"required,notblank,max=500"`
	Type           string   `json:"type" validate:"required,oneof=text number boolean select multi_select date"`
	Options        []string `json:"options" validate:"omitempty,dive,notblank"`
	Required       bool     `json:"required"`
	TracksDaysLost bool     `json:"tracks_days_lost"`
	NotifyOnAnswer bool     `json:"notify_on_answer"`
}

type createFormRequest struct {
	Title       string            `json:"title" validate:"required,notblank,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Questions   []questionRequest `json:"questions" validate:"required,min=1,dive"`
}

type assignFormRequest struct {
	ProfileID string     `json:"profile_id" validate:"required,notblank"`
	DueAt     *time.Time `json:"due_at"`
}

type submitResponseRequest struct {
	Answers map[string]json.RawMessage `json:"answers" validate:"required"`
}

// POST /api/forms
func (h *FormHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createFormRequest
	if !bindAndValidate(c, &req) {
		return
	}

	in := services.CreateFormInput{Title: req.Title, Description: req.Description}
	for _, q := range req.Questions {
		in.Questions = append(in.Questions, services.QuestionInput{
			Text:           q.Text,
			Type:           models.QuestionType(q.Type),
			Options:        q.Options,
			Required:       q.Required,
			TracksDaysLost: q.TracksDaysLost,
			NotifyOnAnswer: q.NotifyOnAnswer,
		})
	}

	form, err := h.forms.CreateForm(requestContext(c), actor, in)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"form": form})
}

// GET /api/forms
func (h *FormHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	forms, err := h.forms.ListForms(requestContext(c), actor)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}
	if forms == nil {
		forms = []models.Form{}
	}

	response.Success(c, http.StatusOK, gin.H{"forms": forms})
}

// GET /api/forms/:id
func (h *FormHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	form, err := h.forms.GetForm(requestContext(c), actor, c.Param("id"))
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// POST /api/forms/:id/assignments
func (h *FormHandler) Assign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req assignFormRequest
	if !bindAndValidate(c, &req) {
		return
	}

	assignment, err := h.forms.AssignForm(requestContext(c), actor, c.Param("id"), services.AssignInput{
		ProfileID: strings.TrimSpace(req.ProfileID),
		DueAt:     req.DueAt,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"assignment": assignment})
}

// GET /api/assignments
func (h *FormHandler) ListAssignments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	assignments, err := h.forms.ListAssignments(requestContext(c), actor)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}
	if assignments == nil {
		assignments = []models.FormAssignment{}
	}

	response.Success(c, http.StatusOK, gin.H{"assignments": assignments})
}

// POST /api/forms/:id/responses
func (h *FormHandler) Submit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req submitResponseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	submitted, err := h.forms.SubmitResponse(requestContext(c), actor, c.Param("id"), services.SubmitInput{Answers: req.Answers})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"response": submitted})
}

// GET /api/forms/:id/analytics/days-lost?from=&to=
func (h *FormHandler) DaysLost(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	from, err := parseDateQuery(c, "from")
	if err != nil {
		response.Error(c, errors.NewBadRequest("from must be a date (YYYY-MM-DD) or RFC 3339 timestamp"))
		return
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		response.Error(c, errors.NewBadRequest("to must be a date (YYYY-MM-DD) or RFC 3339 timestamp"))
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		response.Error(c, errors.NewBadRequest("to must be after from"))
		return
	}

	report, err := h.forms.DaysLost(requestContext(c), actor, c.Param("id"), from, to)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// parseDateQuery accepts a calendar date or an RFC 3339 timestamp. Empty values
// yield the zero time.
func parseDateQuery(c *gin.Context, key string) (time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
