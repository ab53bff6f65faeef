package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/models"
)

// InviteStore persists invite tokens. Status transitions are conditional updates
// that report whether this caller performed the transition.
type InviteStore interface {
	Create(ctx context.Context, invite *models.InviteToken) error
	FindByTokenHash(ctx context.Context, hash string) (*models.InviteToken, error)
	// FindLatestAccepted returns the most recently accepted invite for email.
	FindLatestAccepted(ctx context.Context, email string) (*models.InviteToken, error)
	// Accept moves a pending, unexpired invite to accepted. False means another caller
	// won or the invite expired.
	Accept(ctx context.Context, id string, at time.Time) (bool, error)
	// Release returns an accepted invite to pending after a failed signup.
	Release(ctx context.Context, id string) (bool, error)
	// SupersedePending expires pending invites for email other than keepID.
	SupersedePending(ctx context.Context, email, keepID string) (int64, error)
	// ExpireStale flips pending invites whose expiry has passed to expired.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	// PurgeBefore deletes non-pending invites that expired before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfirmationStore persists signup confirmation tokens.
type ConfirmationStore interface {
	Create(ctx context.Context, token *models.SignupConfirmationToken) error
	FindByTokenHash(ctx context.Context, hash string) (*models.SignupConfirmationToken, error)
	// MarkUsed flips used from false to true while the token is unexpired at at.
	// False means another caller won or the token expired.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	// Release returns a used token to unused after its bound action failed.
	Release(ctx context.Context, id string) (bool, error)
	// PurgeBefore deletes tokens that expired before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormInviteStore struct {
	db *gorm.DB
}

func (s *gormInviteStore) Create(ctx context.Context, invite *models.InviteToken) error {
	invite.Email = normaliseEmail(invite.Email)
	if invite.Status == "" {
		invite.Status = models.InvitePending
	}
	return translate(s.db.WithContext(ctx).Create(invite).Error)
}

func (s *gormInviteStore) FindByTokenHash(ctx context.Context, hash string) (*models.InviteToken, error) {
	var invite models.InviteToken
	if err := s.db.WithContext(ctx).First(&invite, "token_hash = ?", hash).Error; err != nil {
		return nil, translate(err)
	}
	return &invite, nil
}

func (s *gormInviteStore) FindLatestAccepted(ctx context.Context, email string) (*models.InviteToken, error) {
	var invite models.InviteToken
	err := s.db.WithContext(ctx).
		Where("email = ? AND status = ?", normaliseEmail(email), models.InviteAccepted).
		Order("accepted_at DESC").
		First(&invite).Error
	if err != nil {
		return nil, translate(err)
	}
	return &invite, nil
}

func (s *gormInviteStore) Accept(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.InviteToken{}).
		Where("id = ? AND status = ? AND expires_at >= ?", id, models.InvitePending, at).
		Updates(map[string]any{"status": models.InviteAccepted, "accepted_at": at})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormInviteStore) Release(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.InviteToken{}).
		Where("id = ? AND status = ?", id, models.InviteAccepted).
		Updates(map[string]any{"status": models.InvitePending, "accepted_at": nil})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormInviteStore) SupersedePending(ctx context.Context, email, keepID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.InviteToken{}).
		Where("email = ? AND status = ? AND id <> ?", normaliseEmail(email), models.InvitePending, keepID).
		Update("status", models.InviteExpired)
	return result.RowsAffected, translate(result.Error)
}

func (s *gormInviteStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.InviteToken{}).
		Where("status = ? AND expires_at < ?", models.InvitePending, now).
		Update("status", models.InviteExpired)
	return result.RowsAffected, translate(result.Error)
}

func (s *gormInviteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status <> ? AND expires_at < ?", models.InvitePending, cutoff).
		Delete(&models.InviteToken{})
	return result.RowsAffected, translate(result.Error)
}

type gormConfirmationStore struct {
	db *gorm.DB
}

func (s *gormConfirmationStore) Create(ctx context.Context, token *models.SignupConfirmationToken) error {
	token.Email = normaliseEmail(token.Email)
	return translate(s.db.WithContext(ctx).Create(token).Error)
}

func (s *gormConfirmationStore) FindByTokenHash(ctx context.Context, hash string) (*models.SignupConfirmationToken, error) {
	var token models.SignupConfirmationToken
	if err := s.db.WithContext(ctx).First(&token, "token_hash = ?", hash).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (s *gormConfirmationStore) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.SignupConfirmationToken{}).
		Where("id = ? AND used = ? AND expires_at >= ?", id, false, at).
		Updates(map[string]any{"used": true, "used_at": at})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormConfirmationStore) Release(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.SignupConfirmationToken{}).
		Where("id = ? AND used = ?", id, true).
		Updates(map[string]any{"used": false, "used_at": nil})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormConfirmationStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.SignupConfirmationToken{})
	return result.RowsAffected, translate(result.Error)
}
