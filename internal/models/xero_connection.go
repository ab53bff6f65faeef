package models

import "time"

// XeroConnection stores OAuth2 credentials for the accounting integration. Token
// fields hold AES-GCM ciphertext.
type XeroConnection struct {
	BaseModel

	ProfileID    string    `gorm:"type:uuid;uniqueIndex;not null" json:"profile_id"`
	TenantID     string    `json:"tenant_id"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}
