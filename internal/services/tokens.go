package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenPurpose identifies what an issued token grants.
type TokenPurpose string

const (
	// PurposeConfirmation tokens prove control of an email address during signup.
	PurposeConfirmation TokenPurpose = "signup_confirmation"
	// PurposeInvite tokens allow an email address to self-register under a role.
	PurposeInvite TokenPurpose = "invite"
)

// TokenLength is the number of alphanumeric characters in an issued token.
const TokenLength = 32

func tokenHash(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
