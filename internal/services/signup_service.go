package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/pkg/logger"
)

// ErrInviteEmailMismatch indicates the invite was issued to a different address
// than the one signing up.
var ErrInviteEmailMismatch = errors.New("signup: invite email does not match")

// SignupInput is the self-registration request.
type SignupInput struct {
	Email                 string
	Password              string
	FirstName             string
	LastName              string
	Role                  models.Role
	InviteToken           string
	SkipEmailConfirmation bool
	RedirectTo            string
}

// SignupResult is returned on success. Session is nil when the account still
// has to confirm its email.
type SignupResult struct {
	User              *auth.User
	Session           *auth.Session
	ConfirmationSent  bool
	ProfileIncomplete bool
}

// SignupService orchestrates invite-based and confirmation-based registration.
type SignupService struct {
	verifier    *TokenVerifier
	provisioner *Provisioner
	issuer      *TokenIssuer
	authn       *auth.Authenticator
}

// NewSignupService constructs a SignupService.
func NewSignupService(verifier *TokenVerifier, provisioner *Provisioner, issuer *TokenIssuer, authn *auth.Authenticator) (*SignupService, error) {
	if verifier == nil || provisioner == nil || issuer == nil || authn == nil {
		return nil, errors.New("signup service: dependencies are required")
	}
	return &SignupService{verifier: verifier, provisioner: provisioner, issuer: issuer, authn: authn}, nil
}

// Signup registers a new account. With SkipEmailConfirmation and an invite token
// the account is created pre-confirmed under the invite's role and signed in.
// Otherwise an unconfirmed employee account is created and a confirmation
// token is emailed.
func (s *SignupService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if in.SkipEmailConfirmation && in.InviteToken != "" {
		return s.signupWithInvite(ctx, in)
	}
	return s.signupWithConfirmation(ctx, in)
}

func (s *SignupService) signupWithInvite(ctx context.Context, in SignupInput) (*SignupResult, error) {
	log := logger.WithModule("signup")

	invite, err := s.verifier.InspectInvite(ctx, in.InviteToken)
	if err != nil {
		return nil, err
	}
	if invite.Email != normaliseEmail(in.Email) {
		return nil, ErrInviteEmailMismatch
	}

	invite, err = s.verifier.VerifyInvite(ctx, in.InviteToken)
	if err != nil {
		return nil, err
	}

	provisioned, err := s.provisioner.Provision(ctx, ProvisionInput{
		Email:        invite.Email,
		Password:     in.Password,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         invite.Role,
		InvitedBy:    invite.InvitedBy,
		PreConfirmed: true,
	})
	if err != nil && (provisioned == nil || provisioned.Account == nil) {
		if releaseErr := s.verifier.ReleaseInvite(ctx, invite.TokenID); releaseErr != nil {
			log.Error("failed to release invite after signup failure",
				zap.String("invite_id", invite.TokenID),
				zap.Error(releaseErr),
			)
		}
		return nil, err
	}

	result := &SignupResult{ProfileIncomplete: errors.Is(err, ErrProfileIncomplete)}

	user, session, signInErr := s.authn.SignIn(ctx, invite.Email, in.Password)
	if signInErr != nil {
		return nil, fmt.Errorf("signup: sign in: %w", signInErr)
	}
	result.User = user
	result.Session = session
	return result, nil
}

func (s *SignupService) signupWithConfirmation(ctx context.Context, in SignupInput) (*SignupResult, error) {
	provisioned, err := s.provisioner.Provision(ctx, ProvisionInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      models.RoleEmployee,
	})
	if err != nil && (provisioned == nil || provisioned.Account == nil) {
		return nil, err
	}

	result := &SignupResult{
		User:              auth.NewUser(provisioned.Account, provisioned.Profile),
		ProfileIncomplete: errors.Is(err, ErrProfileIncomplete),
	}

	_, issueErr := s.issuer.Issue(ctx, IssueInput{Email: provisioned.Account.Email, Purpose: PurposeConfirmation})
	switch {
	case issueErr == nil:
		result.ConfirmationSent = true
	case errors.Is(issueErr, ErrDeliveryFailed):
		logger.WithModule("signup").Error("confirmation email not delivered",
			zap.String("account_id", provisioned.Account.ID),
			zap.Error(issueErr),
		)
	default:
		return nil, issueErr
	}

	return result, nil
}
