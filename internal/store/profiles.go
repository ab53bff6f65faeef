package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tom2984/aac-sub001/internal/models"
)

// ProfileStore persists application-level profiles.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.Profile) error
	// Upsert inserts the profile or refreshes its name fields when it already exists.
	Upsert(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Profile, error)
	// Activate moves a pending profile to active. False means it was not pending.
	Activate(ctx context.Context, id string) (bool, error)
}

type gormProfileStore struct {
	db *gorm.DB
}

func (s *gormProfileStore) Create(ctx context.Context, profile *models.Profile) error {
	profile.Email = normaliseEmail(profile.Email)
	return translate(s.db.WithContext(ctx).Create(profile).Error)
}

func (s *gormProfileStore) Upsert(ctx context.Context, profile *models.Profile) error {
	profile.Email = normaliseEmail(profile.Email)
	profile.UpdatedAt = time.Now().UTC()
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "updated_at"}),
	}).Create(profile).Error)
}

func (s *gormProfileStore) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

func (s *gormProfileStore) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, translate(err)
	}
	for i := range profiles {
		out[profiles[i].ID] = &profiles[i]
	}
	return out, nil
}

func (s *gormProfileStore) Activate(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND status = ?", id, models.ProfilePending).
		Update("status", models.ProfileActive)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}
