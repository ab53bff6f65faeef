package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/services"
	appErrors "github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/logger"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// InviteHandler lets administrators invite people into the organisation.
type InviteHandler struct {
	issuer *services.TokenIssuer
}

func NewInviteHandler(issuer *services.TokenIssuer) *InviteHandler {
	return &InviteHandler{issuer: issuer}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,role"`
}

// POST /api/invites
//
// The invite is kept when its email cannot be delivered; the response then carries
// email_sent=false and the delivery error so the link can be shared by hand.
func (h *InviteHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		role = models.RoleEmployee
	}

	issued, err := h.issuer.Issue(requestContext(c), services.IssueInput{
		Email:     req.Email,
		Purpose:   services.PurposeInvite,
		Role:      role,
		InvitedBy: actor.ID,
	})
	if err != nil && (issued == nil || !errors.Is(err, services.ErrDeliveryFailed)) {
		response.Error(c, translateError(err))
		return
	}

	payload := gin.H{
		"id":         issued.ID,
		"email":      issued.Email,
		"role":       issued.Role,
		"token":      issued.Token,
		"link":       issued.Link,
		"expires_at": issued.ExpiresAt,
		"email_sent": err == nil,
	}
	if err != nil {
		appErr := appErrors.FromError(translateError(err))
		log := logger.WithModule("invites").Warn
		if appErr.Code == appErrors.ErrConfiguration.Code {
			log = logger.WithModule("invites").Error
		}
		log("invite email not delivered",
			zap.String("invite_id", issued.ID),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
		payload["delivery_error"] = gin.H{"error": appErr.Message, "code": appErr.Code}
	}

	response.Success(c, http.StatusCreated, payload)
}
