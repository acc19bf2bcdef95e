package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&project.ProjectRecord{},
	)
}
