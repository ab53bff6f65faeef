package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/models"
)

// AccountStore persists authentication accounts.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// ConfirmEmail sets email_confirmed_at for the account with email, leaving an
	// existing confirmation timestamp untouched.
	ConfirmEmail(ctx context.Context, email string, at time.Time) (*models.Account, error)
	TouchSignIn(ctx context.Context, id string, at time.Time) error
}

type gormAccountStore struct {
	db *gorm.DB
}

func (s *gormAccountStore) Create(ctx context.Context, account *models.Account) error {
	account.Email = normaliseEmail(account.Email)
	return translate(s.db.WithContext(ctx).Create(account).Error)
}

func (s *gormAccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *gormAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "email = ?", normaliseEmail(email)).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *gormAccountStore) ConfirmEmail(ctx context.Context, email string, at time.Time) (*models.Account, error) {
	email = normaliseEmail(email)
	err := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("email = ? AND email_confirmed_at IS NULL", email).
		Update("email_confirmed_at", at).Error
	if err != nil {
		return nil, translate(err)
	}
	return s.FindByEmail(ctx, email)
}

func (s *gormAccountStore) TouchSignIn(ctx context.Context, id string, at time.Time) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_sign_in_at", at).Error)
}
