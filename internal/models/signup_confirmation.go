package models

import "time"

// SignupConfirmationToken proves control of an email address during account creation.
type SignupConfirmationToken struct {
	BaseModel

	TokenHash string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Email     string     `gorm:"index;not null" json:"email"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	Used      bool       `gorm:"not null;default:false;index" json:"used"`
	UsedAt    *time.Time `json:"used_at"`
}

// IsExpired reports whether the token is past its expiry at now.
func (t *SignupConfirmationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
