package database

import (
	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Profile{},
		&models.InviteToken{},
		&models.SignupConfirmationToken{},
		&models.Notification{},
		&models.Form{},
		&models.FormQuestion{},
		&models.FormAssignment{},
		&models.FormResponse{},
		&models.FormAnswer{},
		&models.XeroConnection{},
		&models.RateCounter{},
	)
}
