package projects

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

// ProjectRecordRepo maintains the queryable index of projects. Rows are written by
// the workflow's sync activity and read by the gateway.
type ProjectRecordRepo interface {
	Create(dbc dbctx.Context, rec *project.ProjectRecord) error
	// Upsert inserts or overwrites the mutable columns of rec.
	Upsert(dbc dbctx.Context, rec *project.ProjectRecord) error
	// Get returns project.ErrNotFound when no row exists.
	Get(dbc dbctx.Context, id string) (*project.ProjectRecord, error)
	ListByOwner(dbc dbctx.Context, ownerID string, limit int) ([]*project.ProjectRecord, error)
	Delete(dbc dbctx.Context, id string) error
	CountByStep(dbc dbctx.Context) (map[string]int64, error)
}

type projectRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRecordRepo {
	return &projectRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ProjectRecordRepo"),
	}
}

func (r *projectRecordRepo) Create(dbc dbctx.Context, rec *project.ProjectRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("project record: id required")
	}
	return dbc.DB(r.db).Create(rec).Error
}

func (r *projectRecordRepo) Upsert(dbc dbctx.Context, rec *project.ProjectRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("project record: id required")
	}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"step", "iteration_count", "error_code", "summary", "terminal_at", "updated_at",
		}),
	}).Create(rec).Error
}

func (r *projectRecordRepo) Get(dbc dbctx.Context, id string) (*project.ProjectRecord, error) {
	var rec project.ProjectRecord
	err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, project.ErrNotFound
	}
	return &rec, nil
}

func (r *projectRecordRepo) ListByOwner(dbc dbctx.Context, ownerID string, limit int) ([]*project.ProjectRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out := []*project.ProjectRecord{}
	err := dbc.DB(r.db).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRecordRepo) Delete(dbc dbctx.Context, id string) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&project.ProjectRecord{}).Error
}

func (r *projectRecordRepo) CountByStep(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Step  string
		Count int64
	}
	err := dbc.DB(r.db).
		Model(&project.ProjectRecord{}).
		Select("step, COUNT(*) AS count").
		Group("step").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Step] = row.Count
	}
	return out, nil
}
