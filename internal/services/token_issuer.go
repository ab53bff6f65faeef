package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/logger"
	"github.com/tom2984/aac-sub001/pkg/mail"
	"github.com/tom2984/aac-sub001/pkg/metrics"
)

const defaultTokenExpiry = 24 * time.Hour

var (
	// ErrDeliveryFailed indicates the token was persisted but its email could not be sent.
	ErrDeliveryFailed = errors.New("token issuer: delivery failed")
	// ErrEmailRequired indicates the issue request had no email address.
	ErrEmailRequired = errors.New("token issuer: email is required")
	// ErrUnknownPurpose indicates an unsupported token purpose.
	ErrUnknownPurpose = errors.New("token issuer: unknown purpose")
)

// IssueInput describes the token to issue. Role and InvitedBy apply to invites only.
type IssueInput struct {
	Email     string
	Purpose   TokenPurpose
	Role      models.Role
	InvitedBy string
}

// IssuedToken is the result of a successful issue. The raw token is only ever
// available here; storage keeps its digest.
type IssuedToken struct {
	ID        string
	Token     string
	Link      string
	Email     string
	Purpose   TokenPurpose
	Role      models.Role
	ExpiresAt time.Time
}

// IssuerOption customises TokenIssuer behaviour.
type IssuerOption func(*TokenIssuer)

// WithIssuerSiteURL sets the public site URL used to build links.
func WithIssuerSiteURL(siteURL string) IssuerOption {
	return func(i *TokenIssuer) {
		i.siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	}
}

// WithIssuerExpiry overrides the token lifetime.
func WithIssuerExpiry(d time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if d > 0 {
			i.expiry = d
		}
	}
}

// WithIssuerAppName sets the product name used in email copy.
func WithIssuerAppName(name string) IssuerOption {
	return func(i *TokenIssuer) {
		if strings.TrimSpace(name) != "" {
			i.appName = strings.TrimSpace(name)
		}
	}
}

// WithIssuerClock injects a custom time source.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if clock != nil {
			i.now = clock
		}
	}
}

// TokenIssuer creates invite and signup confirmation tokens and emails their links.
type TokenIssuer struct {
	invites       store.InviteStore
	confirmations store.ConfirmationStore
	mailer        mail.Mailer
	siteURL       string
	appName       string
	expiry        time.Duration
	now           func() time.Time
	generate      func(int) (string, error)
}

// NewTokenIssuer constructs a TokenIssuer. A nil mailer makes every delivery fail
// with mail.ErrNotConfigured.
func NewTokenIssuer(invites store.InviteStore, confirmations store.ConfirmationStore, mailer mail.Mailer, opts ...IssuerOption) (*TokenIssuer, error) {
	if invites == nil || confirmations == nil {
		return nil, errors.New("token issuer: token stores are required")
	}

	issuer := &TokenIssuer{
		invites:       invites,
		confirmations: confirmations,
		mailer:        mailer,
		appName:       "FormTrack",
		expiry:        defaultTokenExpiry,
		now:           time.Now,
		generate:      crypto.RandomString,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue persists a new token and sends its link to the target email. When the
// send fails the token is still returned, together with an error wrapping
// ErrDeliveryFailed and the transport error; the stored row is kept.
func (i *TokenIssuer) Issue(ctx context.Context, in IssueInput) (*IssuedToken, error) {
	email := normaliseEmail(in.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	raw, err := i.generate(TokenLength)
	if err != nil {
		return nil, fmt.Errorf("token issuer: generate token: %w", err)
	}

	now := i.now().UTC()
	issued := &IssuedToken{
		Token:     raw,
		Email:     email,
		Purpose:   in.Purpose,
		ExpiresAt: now.Add(i.expiry),
	}

	switch in.Purpose {
	case PurposeConfirmation:
		row := &models.SignupConfirmationToken{
			TokenHash: tokenHash(raw),
			Email:     email,
			ExpiresAt: issued.ExpiresAt,
		}
		if err := i.confirmations.Create(ctx, row); err != nil {
			return nil, fmt.Errorf("token issuer: persist confirmation: %w", err)
		}
		issued.ID = row.ID
		issued.Link = i.link("/auth/confirm", "token", raw)
	case PurposeInvite:
		role := in.Role
		if role == "" {
			role = models.RoleEmployee
		}
		row := &models.InviteToken{
			TokenHash: tokenHash(raw),
			Email:     email,
			Role:      role,
			Status:    models.InvitePending,
			InvitedBy: strings.TrimSpace(in.InvitedBy),
			ExpiresAt: issued.ExpiresAt,
		}
		if err := i.invites.Create(ctx, row); err != nil {
			return nil, fmt.Errorf("token issuer: persist invite: %w", err)
		}
		if _, err := i.invites.SupersedePending(ctx, email, row.ID); err != nil {
			logger.WithModule("tokens").Warn("failed to supersede older invites",
				zap.String("email", email),
				zap.Error(err),
			)
		}
		issued.ID = row.ID
		issued.Role = role
		issued.Link = i.link("/auth/signup", "invite", raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, in.Purpose)
	}

	if err := i.deliver(ctx, issued); err != nil {
		metrics.TokensIssued.WithLabelValues(string(in.Purpose), "delivery_failed").Inc()
		return issued, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	metrics.TokensIssued.WithLabelValues(string(in.Purpose), "sent").Inc()
	return issued, nil
}

func (i *TokenIssuer) deliver(ctx context.Context, issued *IssuedToken) error {
	if i.mailer == nil {
		return mail.ErrNotConfigured
	}

	msg := mail.Message{
		To:   []string{issued.Email},
		Data: map[string]any{"link": issued.Link, "email": issued.Email, "expires_at": issued.ExpiresAt.Format(time.RFC3339)},
	}
	switch issued.Purpose {
	case PurposeConfirmation:
		msg.Template = "signup_confirmation"
		msg.Subject = fmt.Sprintf("Confirm your %s account", i.appName)
		msg.Body = fmt.Sprintf("Hello,\n\nConfirm your email address to finish creating your %s account:\n%s\n\nThe link expires in %s. If you did not sign up, you can ignore this email.\n",
			i.appName, issued.Link, humanDuration(i.expiry))
	case PurposeInvite:
		msg.Template = "invite"
		msg.Data["role"] = string(issued.Role)
		msg.Subject = fmt.Sprintf("You're invited to %s", i.appName)
		msg.Body = fmt.Sprintf("Hello,\n\nYou have been invited to join %s as %s. Use the following link to create your account:\n%s\n\nThe link expires in %s. If you did not expect this email, you can ignore it.\n",
			i.appName, issued.Role, issued.Link, humanDuration(i.expiry))
	}

	return i.mailer.Send(ctx, msg)
}

func (i *TokenIssuer) link(path, param, token string) string {
	query := url.Values{param: []string{token}}.Encode()
	return fmt.Sprintf("%s%s?%s", i.siteURL, path, query)
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
