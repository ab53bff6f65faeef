package models

import "time"

// InviteStatus enumerates invite token states.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
)

// InviteToken grants an email address permission to self-register under Role.
// Only the SHA-256 digest of the token is persisted.
type InviteToken struct {
	BaseModel

	TokenHash  string       `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Email      string       `gorm:"index;not null" json:"email"`
	Role       Role         `gorm:"type:varchar(16);not null" json:"role"`
	Status     InviteStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	InvitedBy  string       `gorm:"type:uuid;index" json:"invited_by"`
	ExpiresAt  time.Time    `gorm:"index" json:"expires_at"`
	AcceptedAt *time.Time   `json:"accepted_at"`
}

// IsExpired reports whether the token is past its expiry at now.
func (t *InviteToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsConsumed reports whether the invite has left the pending state.
func (t *InviteToken) IsConsumed() bool {
	return t.Status != InvitePending
}
