package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/services"
	"github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// NotificationHandler exposes the caller's in-app notification inbox.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type updateNotificationsRequest struct {
	NotificationIDs []string `json:"notification_ids"`
	MarkAllRead     bool     `json:"mark_all_read"`
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	page, err := h.service.List(requestContext(c), services.NotificationListInput{
		UserID:     actor.ID,
		UnreadOnly: parseBoolQuery(c, "unread_only"),
		Limit:      parseIntQuery(c, "limit", services.DefaultNotificationLimit),
		Page:       parseIntQuery(c, "page", 1),
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": page.Notifications,
		"unread_count":  page.UnreadCount,
		"limit":         page.Limit,
		"page":          page.Page,
	})
}

// PATCH /api/notifications
func (h *NotificationHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateNotificationsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var (
		updated int64
		err     error
	)
	if req.MarkAllRead {
		updated, err = h.service.MarkAllRead(requestContext(c), actor.ID)
	} else {
		updated, err = h.service.MarkRead(requestContext(c), actor.ID, req.NotificationIDs)
	}
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// DispatchHandler triggers delivery of pending notification emails. It is called by
// an external scheduler rather than by end users.
type DispatchHandler struct {
	dispatcher *services.Dispatcher
	batchSize  int
}

func NewDispatchHandler(dispatcher *services.Dispatcher, batchSize int) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, batchSize: batchSize}
}

// POST /api/notifications/dispatch
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	result, err := h.dispatcher.DispatchPending(requestContext(c), h.batchSize)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":    fmt.Sprintf("Processed %d notifications", result.Processed),
		"processed":  result.Processed,
		"errors":     result.Errors,
		"duplicates": result.Duplicates,
	})
}
