package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/logger"
)

var (
	// ErrAccountExists indicates an account with the email already exists.
	ErrAccountExists = errors.New("provisioner: account already exists")
	// ErrPasswordRequired indicates the provision request had no password.
	ErrPasswordRequired = errors.New("provisioner: password is required")
	// ErrProfileIncomplete indicates the account was created but its profile row
	// was not. The account is kept; the caller retries profile creation only.
	ErrProfileIncomplete = errors.New("provisioner: profile creation failed")
	// ErrAccountNotFound indicates no account matches the given id.
	ErrAccountNotFound = errors.New("provisioner: account not found")
)

// ProvisionInput describes a new account and its profile.
type ProvisionInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Role         models.Role
	InvitedBy    string
	PreConfirmed bool
}

// ProfileFields are the user-editable profile attributes.
type ProfileFields struct {
	FirstName string
	LastName  string
}

// Provisioned is the outcome of Provision. Profile is nil when the result
// carries ErrProfileIncomplete.
type Provisioned struct {
	Account *models.Account
	Profile *models.Profile
}

// ProvisionerOption customises Provisioner behaviour.
type ProvisionerOption func(*Provisioner)

// WithProvisionerClock injects a custom time source.
func WithProvisionerClock(clock func() time.Time) ProvisionerOption {
	return func(p *Provisioner) {
		if clock != nil {
			p.now = clock
		}
	}
}

// Provisioner creates accounts and their application profiles.
type Provisioner struct {
	accounts store.AccountStore
	profiles store.ProfileStore
	invites  store.InviteStore
	now      func() time.Time
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(accounts store.AccountStore, profiles store.ProfileStore, invites store.InviteStore, opts ...ProvisionerOption) (*Provisioner, error) {
	if accounts == nil || profiles == nil || invites == nil {
		return nil, errors.New("provisioner: stores are required")
	}
	p := &Provisioner{accounts: accounts, profiles: profiles, invites: invites, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Provision creates the account first and the profile second. When the profile
// insert fails the created account is returned with ErrProfileIncomplete.
func (p *Provisioner) Provision(ctx context.Context, in ProvisionInput) (*Provisioned, error) {
	email := normaliseEmail(in.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if in.Password == "" {
		return nil, ErrPasswordRequired
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("provisioner: hash password: %w", err)
	}

	account := &models.Account{Email: email, PasswordHash: hash}
	status := models.ProfilePending
	if in.PreConfirmed {
		now := p.now().UTC()
		account.EmailConfirmedAt = &now
		status = models.ProfileActive
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("provisioner: create account: %w", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleEmployee
	}
	profile := &models.Profile{
		ID:        account.ID,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      role,
		Status:    status,
	}
	if invitedBy := strings.TrimSpace(in.InvitedBy); invitedBy != "" {
		profile.InvitedBy = &invitedBy
	}

	if err := p.profiles.Create(ctx, profile); err != nil {
		logger.WithModule("provisioner").Error("profile insert failed after account creation",
			zap.String("account_id", account.ID),
			zap.String("email", email),
			zap.Error(err),
		)
		return &Provisioned{Account: account}, fmt.Errorf("%w: %w", ErrProfileIncomplete, err)
	}

	return &Provisioned{Account: account, Profile: profile}, nil
}

// CompleteProfile creates the missing profile for accountID, or updates the name
// fields of an existing one. Role and inviter are recovered from the most recent
// accepted invite for the account's email.
func (p *Provisioner) CompleteProfile(ctx context.Context, accountID string, fields ProfileFields) (*models.Profile, error) {
	account, err := p.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("provisioner: find account: %w", err)
	}

	profile := &models.Profile{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: strings.TrimSpace(fields.FirstName),
		LastName:  strings.TrimSpace(fields.LastName),
		Role:      models.RoleEmployee,
		Status:    models.ProfilePending,
	}
	if account.EmailConfirmed() {
		profile.Status = models.ProfileActive
	}

	invite, err := p.invites.FindLatestAccepted(ctx, account.Email)
	switch {
	case err == nil:
		profile.Role = invite.Role
		if invite.InvitedBy != "" {
			invitedBy := invite.InvitedBy
			profile.InvitedBy = &invitedBy
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("provisioner: find invite: %w", err)
	}

	if err := p.profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("provisioner: save profile: %w", err)
	}

	stored, err := p.profiles.FindByID(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("provisioner: reload profile: %w", err)
	}
	return stored, nil
}
