package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/metrics"
)

var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailNotConfirmed indicates the account has not confirmed its email address yet.
	ErrEmailNotConfirmed = errors.New("auth: email not confirmed")
	// ErrAccountDisabled indicates the profile has been disabled by an administrator.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// User is the public view of an authenticated principal.
type User struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	EmailConfirmedAt *time.Time  `json:"email_confirmed_at"`
	Role             models.Role `json:"role,omitempty"`
	FirstName        string      `json:"first_name,omitempty"`
	LastName         string      `json:"last_name,omitempty"`
}

// NewUser combines an account with its (optional) profile.
func NewUser(account *models.Account, profile *models.Profile) *User {
	if account == nil {
		return nil
	}
	user := &User{
		ID:               account.ID,
		Email:            account.Email,
		EmailConfirmedAt: account.EmailConfirmedAt,
	}
	if profile != nil {
		user.Role = profile.Role
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
	}
	return user
}

// Session is the bearer credential returned after sign-in.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticator verifies credentials and issues sessions.
type Authenticator struct {
	accounts store.AccountStore
	profiles store.ProfileStore
	jwt      *JWTService
	now      func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(accounts store.AccountStore, profiles store.ProfileStore, jwtSvc *JWTService) (*Authenticator, error) {
	if accounts == nil || profiles == nil {
		return nil, errors.New("authenticator: stores are required")
	}
	if jwtSvc == nil {
		return nil, errors.New("authenticator: jwt service is required")
	}
	return &Authenticator{accounts: accounts, profiles: profiles, jwt: jwtSvc, now: time.Now}, nil
}

// SignIn checks the password for email and returns a fresh session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (user *User, session *Session, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.AuthAttempts.WithLabelValues(result).Inc()
	}()

	account, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("authenticator: find account: %w", err)
	}

	if !crypto.VerifyPassword(account.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	if !account.EmailConfirmed() {
		return nil, nil, ErrEmailNotConfirmed
	}

	profile, err := a.profiles.FindByID(ctx, account.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("authenticator: find profile: %w", err)
	}
	if profile != nil && profile.Status == models.ProfileDisabled {
		return nil, nil, ErrAccountDisabled
	}

	session, err = a.IssueSession(account, profile)
	if err != nil {
		return nil, nil, err
	}

	// Best effort; a failed touch must not block sign-in.
	_ = a.accounts.TouchSignIn(ctx, account.ID, a.now().UTC())

	return NewUser(account, profile), session, nil
}

// IssueSession mints an API access token for account.
func (a *Authenticator) IssueSession(account *models.Account, profile *models.Profile) (*Session, error) {
	input := AccessTokenInput{
		UserID:    account.ID,
		SessionID: uuid.NewString(),
		Email:     account.Email,
		Audience:  []string{AudienceAPI},
	}
	if profile != nil {
		input.Role = string(profile.Role)
	}

	token, expiresAt, err := a.jwt.GenerateAccessToken(input)
	if err != nil {
		return nil, fmt.Errorf("authenticator: issue session: %w", err)
	}

	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(a.jwt.TTL().Seconds()),
		ExpiresAt:   expiresAt,
	}, nil
}
