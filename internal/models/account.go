package models

import "time"

// Account is the authentication record: credentials plus email confirmation state.
// Application-level attributes live on Profile, which shares the same ID.
type Account struct {
	BaseModel

	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	LastSignInAt     *time.Time `json:"last_sign_in_at"`
}

// EmailConfirmed reports whether the account's email address has been confirmed.
func (a *Account) EmailConfirmed() bool {
	return a != nil && a.EmailConfirmedAt != nil
}
