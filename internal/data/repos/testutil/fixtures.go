package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

// SeedProject inserts an index row for a project in step.
func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, id, ownerID string, step project.Step, at time.Time) *project.ProjectRecord {
	tb.Helper()
	p := project.New(id, ownerID, at)
	p.Step = step
	summary, err := json.Marshal(p.Summary())
	if err != nil {
		tb.Fatalf("marshal summary: %v", err)
	}
	rec := &project.ProjectRecord{
		ID:         id,
		OwnerID:    ownerID,
		WorkflowID: project.WorkflowID(id),
		Step:       string(step),
		Summary:    datatypes.JSON(summary),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return rec
}
