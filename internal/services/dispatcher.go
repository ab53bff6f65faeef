package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/logger"
	"github.com/tom2984/aac-sub001/pkg/mail"
	"github.com/tom2984/aac-sub001/pkg/metrics"
)

// DefaultDispatchBatchSize bounds the notifications handled by one run.
const DefaultDispatchBatchSize = 10

var (
	// ErrDispatchInProgress is returned when another run holds the dispatcher.
	ErrDispatchInProgress = errors.New("dispatcher: run already in progress")
	// ErrRecipientUnavailable indicates the recipient has no reachable email address.
	ErrRecipientUnavailable = errors.New("dispatcher: recipient email unavailable")
)

// DispatchResult tallies one run. Errors counts notifications left unprocessed.
// Duplicates counts emails sent for notifications another run had already processed.
type DispatchResult struct {
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
	Duplicates int `json:"duplicates"`
}

// DispatcherOption customises Dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithDispatcherSiteURL sets the public site URL used for response links.
func WithDispatcherSiteURL(siteURL string) DispatcherOption {
	return func(d *Dispatcher) {
		d.siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	}
}

// WithDispatcherAppName sets the product name used in email copy.
func WithDispatcherAppName(name string) DispatcherOption {
	return func(d *Dispatcher) {
		if strings.TrimSpace(name) != "" {
			d.appName = strings.TrimSpace(name)
		}
	}
}

// WithDispatcherClock injects a custom time source.
func WithDispatcherClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.now = clock
		}
	}
}

// Dispatcher turns queued question_answered notifications into emails.
type Dispatcher struct {
	notifications store.NotificationStore
	profiles      store.ProfileStore
	forms         store.FormStore
	mailer        mail.Mailer
	siteURL       string
	appName       string
	now           func() time.Time

	running sync.Mutex
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(notifications store.NotificationStore, profiles store.ProfileStore, forms store.FormStore, mailer mail.Mailer, opts ...DispatcherOption) (*Dispatcher, error) {
	if notifications == nil || profiles == nil || forms == nil {
		return nil, errors.New("dispatcher: stores are required")
	}
	d := &Dispatcher{
		notifications: notifications,
		profiles:      profiles,
		forms:         forms,
		mailer:        mailer,
		appName:       "FormTrack",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DispatchPending emails up to batchSize undispatched notifications, oldest first.
// A failed item stays unprocessed for the next run and does not stop the batch.
// A missing mail transport aborts the run with mail.ErrNotConfigured.
func (d *Dispatcher) DispatchPending(ctx context.Context, batchSize int) (*DispatchResult, error) {
	if !d.running.TryLock() {
		metrics.DispatchRuns.WithLabelValues("busy").Inc()
		return nil, ErrDispatchInProgress
	}
	defer d.running.Unlock()

	if batchSize <= 0 {
		batchSize = DefaultDispatchBatchSize
	}
	if d.mailer == nil {
		metrics.DispatchRuns.WithLabelValues("failed").Inc()
		return nil, mail.ErrNotConfigured
	}

	log := logger.WithModule("dispatch")

	pending, err := d.notifications.ListUndispatched(ctx, models.NotificationTypeQuestionAnswered, batchSize)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("dispatcher: list pending: %w", err)
	}

	result := &DispatchResult{}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			metrics.DispatchRuns.WithLabelValues("failed").Inc()
			return result, err
		}

		notification := &pending[i]
		msg, err := d.compose(ctx, notification)
		if err != nil {
			result.Errors++
			metrics.NotificationsDispatched.WithLabelValues("skipped").Inc()
			log.Warn("notification skipped",
				zap.String("notification_id", notification.ID),
				zap.Error(err),
			)
			continue
		}

		if err := d.mailer.Send(ctx, msg); err != nil {
			result.Errors++
			metrics.NotificationsDispatched.WithLabelValues("send_failed").Inc()
			if errors.Is(err, mail.ErrNotConfigured) {
				metrics.DispatchRuns.WithLabelValues("failed").Inc()
				return result, err
			}
			log.Warn("notification email failed",
				zap.String("notification_id", notification.ID),
				zap.Error(err),
			)
			continue
		}

		marked, err := d.notifications.MarkProcessed(ctx, notification.ID, d.now().UTC())
		if err != nil {
			result.Errors++
			log.Error("notification sent but not marked processed",
				zap.String("notification_id", notification.ID),
				zap.Error(err),
			)
			continue
		}
		if !marked {
			result.Duplicates++
			metrics.NotificationsDispatched.WithLabelValues("duplicate").Inc()
			log.Warn("notification already processed by another run; email sent twice",
				zap.String("notification_id", notification.ID),
			)
			continue
		}
		result.Processed++
		metrics.NotificationsDispatched.WithLabelValues("sent").Inc()
	}

	metrics.DispatchRuns.WithLabelValues("completed").Inc()
	log.Info("dispatch run completed",
		zap.Int("processed", result.Processed),
		zap.Int("errors", result.Errors),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (d *Dispatcher) compose(ctx context.Context, notification *models.Notification) (mail.Message, error) {
	var data models.QuestionAnsweredData
	if len(notification.Data) > 0 {
		if err := json.Unmarshal(notification.Data, &data); err != nil {
			return mail.Message{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	recipient, err := d.profiles.FindByID(ctx, notification.RecipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mail.Message{}, ErrRecipientUnavailable
		}
		return mail.Message{}, fmt.Errorf("find recipient: %w", err)
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return mail.Message{}, ErrRecipientUnavailable
	}

	formTitle := "a form"
	if data.FormID != "" {
		form, err := d.forms.FindByID(ctx, data.FormID)
		switch {
		case err == nil:
			formTitle = form.Title
		case !errors.Is(err, store.ErrNotFound):
			return mail.Message{}, fmt.Errorf("find form: %w", err)
		}
	}

	submitter, err := d.submitterName(ctx, data)
	if err != nil {
		return mail.Message{}, err
	}

	answer := NormalizeAnswer(data.Answer)
	question := data.QuestionText
	if question == "" {
		question = notification.Title
	}

	link := ""
	if data.FormID != "" && data.ResponseID != "" {
		link = fmt.Sprintf("%s/forms/%s/responses/%s", d.siteURL, data.FormID, data.ResponseID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", recipient.DisplayName())
	fmt.Fprintf(&body, "%s answered \"%s\" on %s:\n\n%s\n", submitter, question, formTitle, answer)
	if link != "" {
		fmt.Fprintf(&body, "\nView the response: %s\n", link)
	}
	fmt.Fprintf(&body, "\nYou are receiving this because you track answers to this question in %s.\n", d.appName)

	return mail.Message{
		To:       []string{recipient.Email},
		Subject:  fmt.Sprintf("New answer on %s", formTitle),
		Body:     body.String(),
		Template: models.NotificationTypeQuestionAnswered,
		Data: map[string]any{
			"notification_id": notification.ID,
			"form_id":         data.FormID,
			"form_title":      formTitle,
			"response_id":     data.ResponseID,
			"question_id":     data.QuestionID,
			"question_text":   question,
			"answer":          answer,
			"submitted_by":    submitter,
			"link":            link,
		},
	}, nil
}

func (d *Dispatcher) submitterName(ctx context.Context, data models.QuestionAnsweredData) (string, error) {
	submitterID := data.SubmittedBy
	if data.ResponseID != "" {
		response, err := d.forms.FindResponse(ctx, data.ResponseID)
		switch {
		case err == nil:
			submitterID = response.SubmittedBy
		case !errors.Is(err, store.ErrNotFound):
			return "", fmt.Errorf("find response: %w", err)
		}
	}
	if submitterID == "" {
		return "Someone", nil
	}

	profile, err := d.profiles.FindByID(ctx, submitterID)
	switch {
	case err == nil:
		return profile.DisplayName(), nil
	case errors.Is(err, store.ErrNotFound):
		return "Someone", nil
	default:
		return "", fmt.Errorf("find submitter: %w", err)
	}
}

// NormalizeAnswer renders an answer for display: arrays join with ", ", objects
// render as JSON text and scalars pass through.
func NormalizeAnswer(answer any) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, NormalizeAnswer(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}
