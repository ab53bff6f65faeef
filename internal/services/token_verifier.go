package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/metrics"
)

var (
	// ErrInvalidToken indicates no token matches the provided value.
	ErrInvalidToken = errors.New("token: invalid")
	// ErrTokenAlreadyUsed indicates the token was consumed by an earlier or concurrent call.
	ErrTokenAlreadyUsed = errors.New("token: already used")
	// ErrTokenExpired indicates the token is past its expiry. The row is left unconsumed.
	ErrTokenExpired = errors.New("token: expired")
)

// VerifiedToken carries the identity bound to a successfully verified token.
type VerifiedToken struct {
	TokenID   string
	Email     string
	AccountID string
	Role      models.Role
	InvitedBy string
	ExpiresAt time.Time
}

// VerifierOption customises TokenVerifier behaviour.
type VerifierOption func(*TokenVerifier)

// WithVerifierClock injects a custom time source.
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// TokenVerifier consumes invite and confirmation tokens exactly once.
type TokenVerifier struct {
	invites       store.InviteStore
	confirmations store.ConfirmationStore
	accounts      store.AccountStore
	profiles      store.ProfileStore
	now           func() time.Time
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(invites store.InviteStore, confirmations store.ConfirmationStore, accounts store.AccountStore, profiles store.ProfileStore, opts ...VerifierOption) (*TokenVerifier, error) {
	if invites == nil || confirmations == nil || accounts == nil || profiles == nil {
		return nil, errors.New("token verifier: stores are required")
	}
	verifier := &TokenVerifier{
		invites:       invites,
		confirmations: confirmations,
		accounts:      accounts,
		profiles:      profiles,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(verifier)
	}
	return verifier, nil
}

// VerifyConfirmation consumes a signup confirmation token and confirms the email of
// the matching account, when one exists.
func (v *TokenVerifier) VerifyConfirmation(ctx context.Context, token string) (result *VerifiedToken, err error) {
	defer func() { recordVerification(PurposeConfirmation, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	row, err := v.confirmations.FindByTokenHash(ctx, tokenHash(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("token verifier: find confirmation: %w", err)
	}

	now := v.now().UTC()
	if row.IsExpired(now) {
		return nil, ErrTokenExpired
	}
	if row.Used {
		return nil, ErrTokenAlreadyUsed
	}

	consumed, err := v.confirmations.MarkUsed(ctx, row.ID, now)
	if err != nil {
		return nil, fmt.Errorf("token verifier: consume confirmation: %w", err)
	}
	if !consumed {
		return nil, ErrTokenAlreadyUsed
	}

	result = &VerifiedToken{TokenID: row.ID, Email: row.Email, ExpiresAt: row.ExpiresAt}

	accountID, err := v.confirmAccount(ctx, row.Email, now)
	if err != nil {
		if _, releaseErr := v.confirmations.Release(ctx, row.ID); releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("release confirmation: %w", releaseErr))
		}
		return nil, fmt.Errorf("token verifier: %w", err)
	}
	result.AccountID = accountID
	return result, nil
}

// confirmAccount confirms the email of the matching account and activates its pending
// profile. Both steps are idempotent so a released token can be verified again.
// A missing account or profile is not an error.
func (v *TokenVerifier) confirmAccount(ctx context.Context, email string, now time.Time) (string, error) {
	account, err := v.accounts.ConfirmEmail(ctx, email, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("confirm account: %w", err)
	}

	if _, err := v.profiles.Activate(ctx, account.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("activate profile: %w", err)
	}
	return account.ID, nil
}

// VerifyInvite consumes an invite token, moving it from pending to accepted.
func (v *TokenVerifier) VerifyInvite(ctx context.Context, token string) (result *VerifiedToken, err error) {
	defer func() { recordVerification(PurposeInvite, err) }()

	row, err := v.lookupInvite(ctx, token)
	if err != nil {
		return nil, err
	}

	accepted, err := v.invites.Accept(ctx, row.ID, v.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("token verifier: accept invite: %w", err)
	}
	if !accepted {
		return nil, ErrTokenAlreadyUsed
	}

	return inviteResult(row), nil
}

// InspectInvite validates an invite token without consuming it.
func (v *TokenVerifier) InspectInvite(ctx context.Context, token string) (*VerifiedToken, error) {
	row, err := v.lookupInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	return inviteResult(row), nil
}

// ReleaseInvite returns a consumed invite to pending. Used when signup fails
// before any account exists.
func (v *TokenVerifier) ReleaseInvite(ctx context.Context, tokenID string) error {
	if _, err := v.invites.Release(ctx, tokenID); err != nil {
		return fmt.Errorf("token verifier: release invite: %w", err)
	}
	return nil
}

func (v *TokenVerifier) lookupInvite(ctx context.Context, token string) (*models.InviteToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	row, err := v.invites.FindByTokenHash(ctx, tokenHash(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("token verifier: find invite: %w", err)
	}

	if row.IsExpired(v.now().UTC()) || row.Status == models.InviteExpired {
		return nil, ErrTokenExpired
	}
	if row.IsConsumed() {
		return nil, ErrTokenAlreadyUsed
	}
	return row, nil
}

func inviteResult(row *models.InviteToken) *VerifiedToken {
	return &VerifiedToken{
		TokenID:   row.ID,
		Email:     row.Email,
		Role:      row.Role,
		InvitedBy: row.InvitedBy,
		ExpiresAt: row.ExpiresAt,
	}
}

func recordVerification(purpose TokenPurpose, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidToken):
		result = "invalid"
	case errors.Is(err, ErrTokenAlreadyUsed):
		result = "already_used"
	case errors.Is(err, ErrTokenExpired):
		result = "expired"
	default:
		result = "error"
	}
	metrics.TokenVerifications.WithLabelValues(string(purpose), result).Inc()
}
