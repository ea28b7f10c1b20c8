package database

import (
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Transaction{},
		&models.DataRoom{},
		&models.DataRoomSettings{},
		&models.DataRoomPermission{},
		&models.DataRoomInvite{},
		&models.NDAAcceptance{},
		&models.Folder{},
		&models.Document{},
		&models.DocumentVersion{},
		&models.DocumentGrant{},
		&models.AuditEntry{},
	)
}
