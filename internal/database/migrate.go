package database

import (
	"retroboard/internal/models"

	"gorm.io/gorm"
)

// Migrate runs gorm auto-migration for every domain model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Board{},
		&models.Post{},
		&models.Task{},
		&models.Vote{},
	)
}
