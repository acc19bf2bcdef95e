package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/roomforge-backend/internal/data/repos/projects"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

type ProjectRecordRepo = projects.ProjectRecordRepo

type Repos struct {
	ProjectRecords ProjectRecordRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		ProjectRecords: projects.NewProjectRecordRepo(db, log),
	}
}
