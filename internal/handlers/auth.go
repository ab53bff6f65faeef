package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/services"
	"github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// AuthHandler manages registration, email confirmation and sign-in.
type AuthHandler struct {
	signup      *services.SignupService
	issuer      *services.TokenIssuer
	verifier    *services.TokenVerifier
	provisioner *services.Provisioner
	authn       *iauth.Authenticator
}

func NewAuthHandler(
	signup *services.SignupService,
	issuer *services.TokenIssuer,
	verifier *services.TokenVerifier,
	provisioner *services.Provisioner,
	authn *iauth.Authenticator,
) *AuthHandler {
	return &AuthHandler{
		signup:      signup,
		issuer:      issuer,
		verifier:    verifier,
		provisioner: provisioner,
		authn:       authn,
	}
}

type confirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyTokenRequest struct {
	Token string `json:"token" validate:"required,notblank"`
}

type signupRequest struct {
	Email                 string `json:"email" validate:"required,email"`
	Password              string `json:"password" validate:"required,min=8,max=72"`
	FirstName             string `json:"firstName" validate:"max=128"`
	LastName              string `json:"lastName" validate:"max=128"`
	Role                  string `json:"role" validate:"omitempty,role"`
	InviteToken           string `json:"inviteToken"`
	SkipEmailConfirmation bool   `json:"skipEmailConfirmation"`
	RedirectTo            string `json:"redirectTo" validate:"omitempty,url"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName string `json:"firstName" validate:"required,notblank,max=128"`
	LastName  string `json:"lastName" validate:"required,notblank,max=128"`
}

// POST /api/auth/confirmations
func (h *AuthHandler) RequestConfirmation(c *gin.Context) {
	var req confirmationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.issuer.Issue(requestContext(c), services.IssueInput{
		Email:   req.Email,
		Purpose: services.PurposeConfirmation,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, nil)
}

// POST /api/auth/confirmations/verify
func (h *AuthHandler) VerifyConfirmation(c *gin.Context) {
	var req verifyTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	verified, err := h.verifier.VerifyConfirmation(requestContext(c), strings.TrimSpace(req.Token))
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"email": verified.Email})
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, _ := models.ParseRole(req.Role)
	result, err := h.signup.Signup(requestContext(c), services.SignupInput{
		Email:                 req.Email,
		Password:              req.Password,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Role:                  role,
		InviteToken:           strings.TrimSpace(req.InviteToken),
		SkipEmailConfirmation: req.SkipEmailConfirmation,
		RedirectTo:            req.RedirectTo,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	payload := gin.H{
		"user":               result.User,
		"session":            result.Session,
		"confirmation_sent":  result.ConfirmationSent,
		"profile_incomplete": result.ProfileIncomplete,
	}
	if req.RedirectTo != "" {
		payload["redirect_to"] = req.RedirectTo
	}
	response.Success(c, http.StatusCreated, payload)
}

// POST /api/auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signinRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, session, err := h.authn.SignIn(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user, "session": session})
}

// GET /api/auth/invites/inspect?token=
func (h *AuthHandler) InspectInvite(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, errors.NewBadRequest("token is required"))
		return
	}

	invite, err := h.verifier.InspectInvite(requestContext(c), token)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"email":      invite.Email,
		"role":       invite.Role,
		"expires_at": invite.ExpiresAt,
	})
}

// POST /api/auth/profile
func (h *AuthHandler) CompleteProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req profileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.provisioner.CompleteProfile(requestContext(c), actor.ID, services.ProfileFields{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"profile": profile})
}
