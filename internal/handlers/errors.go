package handlers

import (
	"errors"
	"net/http"

	iauth "github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/integrations/xero"
	"github.com/tom2984/aac-sub001/internal/services"
	"github.com/tom2984/aac-sub001/internal/store"
	appErrors "github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

var (
	errDispatchInProgress = appErrors.New("DISPATCH_IN_PROGRESS", "A dispatch run is already in progress", http.StatusConflict)
	errEmailNotConfirmed  = appErrors.New("EMAIL_NOT_CONFIRMED", "Email address has not been confirmed", http.StatusForbidden)
)

// translateError maps service sentinel errors onto API errors. Unrecognised errors
// become internal server errors with the original kept for logging.
func translateError(err error) error {
	var (
		mailErr *mail.UpstreamError
		xeroErr *xero.UpstreamError
	)

	switch {
	case err == nil:
		return nil

	case errors.Is(err, services.ErrInvalidToken):
		return appErrors.ErrInvalidToken.WithInternal(err)
	case errors.Is(err, services.ErrTokenAlreadyUsed):
		return appErrors.ErrTokenAlreadyUsed.WithInternal(err)
	case errors.Is(err, services.ErrTokenExpired):
		return appErrors.ErrTokenExpired.WithInternal(err)
	case errors.Is(err, services.ErrInviteEmailMismatch):
		return appErrors.NewBadRequest("Invite was issued to a different email address")

	case errors.Is(err, mail.ErrNotConfigured):
		return appErrors.ErrConfiguration.WithMessage("Email delivery is not configured").WithInternal(err)
	case errors.As(err, &mailErr):
		return appErrors.NewUpstream("Email delivery", mailErr.StatusCode, err)
	case errors.Is(err, services.ErrDeliveryFailed):
		return appErrors.NewUpstream("Email delivery", 0, err)

	case errors.Is(err, xero.ErrNotConfigured):
		return appErrors.ErrConfiguration.WithMessage("Xero integration is not configured").WithInternal(err)
	case errors.As(err, &xeroErr):
		return appErrors.NewUpstream("Xero", xeroErr.Status, err)
	case errors.Is(err, xero.ErrInvalidState), errors.Is(err, xero.ErrCodeRequired):
		return appErrors.NewBadRequest("Invalid authorization callback")
	case errors.Is(err, xero.ErrNoTenant):
		return appErrors.NewBadRequest("No Xero organisation was authorised")

	case errors.Is(err, iauth.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, iauth.ErrEmailNotConfirmed):
		return errEmailNotConfirmed
	case errors.Is(err, iauth.ErrAccountDisabled):
		return appErrors.ErrForbidden.WithMessage("Account is disabled")

	case errors.Is(err, services.ErrAccountExists):
		return appErrors.ErrConflict.WithMessage("An account with this email already exists")
	case errors.Is(err, services.ErrAlreadyAssigned):
		return appErrors.ErrConflict.WithMessage("Form is already assigned to this profile")
	case errors.Is(err, services.ErrDispatchInProgress):
		return errDispatchInProgress

	case errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrPasswordRequired),
		errors.Is(err, services.ErrUnknownPurpose),
		errors.Is(err, services.ErrRecipientRequired),
		errors.Is(err, services.ErrNoNotificationIDs),
		errors.Is(err, services.ErrNotificationInvalid),
		errors.Is(err, services.ErrInvalidForm),
		errors.Is(err, services.ErrInvalidAnswer):
		return appErrors.NewBadRequest(err.Error())

	case errors.Is(err, services.ErrFormForbidden):
		return appErrors.ErrForbidden
	case errors.Is(err, services.ErrFormNotFound):
		return appErrors.ErrNotFound.WithMessage("Form not found")
	case errors.Is(err, services.ErrProfileNotFound), errors.Is(err, services.ErrAccountNotFound):
		return appErrors.ErrNotFound.WithMessage("Profile not found")
	case errors.Is(err, store.ErrNotFound):
		return appErrors.ErrNotFound
	}

	return appErrors.FromError(err)
}
