package models

import (
	"strings"
	"time"
)

// Role enumerates application roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// ParseRole normalises raw into a Role, reporting false for unknown values.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	case RoleEmployee:
		return RoleEmployee, true
	default:
		return "", false
	}
}

// ProfileStatus enumerates the lifecycle states of a profile.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfilePending  ProfileStatus = "pending"
	ProfileDisabled ProfileStatus = "disabled"
)

// Profile is the application-level user record keyed by the account id.
type Profile struct {
	ID        string        `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string        `gorm:"uniqueIndex;not null" json:"email"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Role      Role          `gorm:"type:varchar(16);not null;default:'employee'" json:"role"`
	Status    ProfileStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	InvitedBy *string       `gorm:"type:uuid;index" json:"invited_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the full name, falling back to the email address.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return p.Email
}

// IsAdmin reports whether the profile holds the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
