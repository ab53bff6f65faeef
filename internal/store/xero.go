package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tom2984/aac-sub001/internal/models"
)

// XeroStore persists accounting integration credentials, one row per profile.
type XeroStore interface {
	Upsert(ctx context.Context, connection *models.XeroConnection) error
	FindByProfile(ctx context.Context, profileID string) (*models.XeroConnection, error)
}

type gormXeroStore struct {
	db *gorm.DB
}

func (s *gormXeroStore) Upsert(ctx context.Context, connection *models.XeroConnection) error {
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "access_token", "refresh_token", "token_type", "expires_at", "updated_at"}),
	}).Create(connection).Error)
}

func (s *gormXeroStore) FindByProfile(ctx context.Context, profileID string) (*models.XeroConnection, error) {
	var connection models.XeroConnection
	if err := s.db.WithContext(ctx).First(&connection, "profile_id = ?", profileID).Error; err != nil {
		return nil, translate(err)
	}
	return &connection, nil
}
