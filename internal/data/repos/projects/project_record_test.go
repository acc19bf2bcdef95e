package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/roomforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
)

func TestProjectRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProjectRecordRepo(db, testutil.Logger(t))

	now := time.Now().UTC().Truncate(time.Second)
	testutil.SeedProject(t, ctx, tx, "p1", "owner-a", project.StepPhotoUpload, now.Add(-2*time.Hour))
	testutil.SeedProject(t, ctx, tx, "p2", "owner-a", project.StepIntake, now.Add(-time.Hour))
	testutil.SeedProject(t, ctx, tx, "p3", "owner-b", project.StepIntake, now)

	got, err := repo.Get(dbc, "p2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OwnerID != "owner-a" || got.WorkflowID != "project-p2" {
		t.Fatalf("Get: unexpected row %+v", got)
	}
	if _, err := repo.Get(dbc, "missing"); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("Get(missing): want ErrNotFound, got %v", err)
	}

	list, err := repo.ListByOwner(dbc, "owner-a", 10)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p2" {
		t.Fatalf("ListByOwner: want [p2 p1], got %d rows", len(list))
	}

	terminal := now.Add(time.Minute)
	if err := repo.Upsert(dbc, &project.ProjectRecord{
		ID:             "p2",
		OwnerID:        "owner-a",
		WorkflowID:     project.WorkflowID("p2"),
		Step:           string(project.StepCompleted),
		IterationCount: 3,
		Summary:        datatypes.JSON([]byte(`{"approved":true}`)),
		TerminalAt:     &terminal,
		CreatedAt:      now,
		UpdatedAt:      terminal,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, _ = repo.Get(dbc, "p2")
	if got.Step != string(project.StepCompleted) || got.IterationCount != 3 || got.TerminalAt == nil {
		t.Fatalf("Upsert did not update row: %+v", got)
	}

	counts, err := repo.CountByStep(dbc)
	if err != nil {
		t.Fatalf("CountByStep: %v", err)
	}
	if counts[string(project.StepIntake)] != 1 || counts[string(project.StepCompleted)] != 1 {
		t.Fatalf("CountByStep: %v", counts)
	}

	if err := repo.Delete(dbc, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(dbc, "p1"); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("Get after Delete: want ErrNotFound, got %v", err)
	}
	if err := repo.Delete(dbc, "p1"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
}

func TestUpsertInsertsMissingRow(t *testing.T) {
	db := testutil.DB(t)
	repo := NewProjectRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Background()
	now := time.Now().UTC()
	rec := &project.ProjectRecord{ID: "p9", WorkflowID: project.WorkflowID("p9"), Step: "scan", Summary: datatypes.JSON([]byte(`{}`)), CreatedAt: now, UpdatedAt: now}
	if err := repo.Upsert(dbc, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := repo.Get(dbc, "p9"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := repo.Upsert(dbc, &project.ProjectRecord{}); err == nil {
		t.Fatalf("Upsert without id should fail")
	}
}
